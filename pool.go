package main

import (
	"context"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner executes a resolved command
type Runner interface {
	Run(ctx context.Context, cmd string) error
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, cmd string) error

func (f RunnerFunc) Run(ctx context.Context, cmd string) error {
	return f(ctx, cmd)
}

// ShellRunner runs commands through Shell -c with the given standard
// streams. It is safe for concurrent use: reads and writes on streams
// that are not *os.File are serialized.
type ShellRunner struct {
	Shell  string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	mu   sync.Mutex
	inMu sync.Mutex
}

func (r *ShellRunner) Run(ctx context.Context, cmd string) error {
	c := exec.CommandContext(ctx, r.Shell, "-c", cmd)
	c.Stdin = r.Stdin
	if _, ok := r.Stdin.(*os.File); !ok && r.Stdin != nil {
		c.Stdin = &lockedReader{mu: &r.inMu, r: r.Stdin}
	}
	c.Stdout = r.guard(r.Stdout)
	c.Stderr = r.guard(r.Stderr)
	return c.Run()
}

// guard wraps w so that copies from concurrent commands do not
// interleave within a single Write
func (r *ShellRunner) guard(w io.Writer) io.Writer {
	switch w.(type) {
	case nil, *os.File:
		return w
	}
	return &lockedWriter{mu: &r.mu, w: w}
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// RunStatus records how a single command finished
type RunStatus struct {
	Cmd     string
	Err     error
	Elapsed time.Duration
}

// RunPool runs cmds on at most size concurrent workers and returns once
// all of them have finished. The statuses are in the order of cmds.
func RunPool(ctx context.Context, r Runner, cmds []string, size int) []RunStatus {
	if size < 1 {
		size = 1
	}
	statuses := make([]RunStatus, len(cmds))
	var g errgroup.Group
	g.SetLimit(size)
	for i, cmd := range cmds {
		i, cmd := i, cmd
		g.Go(func() error {
			start := time.Now()
			err := r.Run(ctx, cmd)
			statuses[i] = RunStatus{
				Cmd:     cmd,
				Err:     err,
				Elapsed: time.Since(start),
			}
			return nil
		})
	}
	g.Wait()
	return statuses
}

type lockedReader struct {
	mu *sync.Mutex
	r  io.Reader
}

func (l *lockedReader) Read(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Read(p)
}
