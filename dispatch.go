package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// Configuration errors, all reported before any script is written
var (
	ErrEmptyName     = errors.New("job name must not be empty")
	ErrNoFiles       = errors.New("command contains placeholders but no input files were given")
	ErrNoPlaceholder = errors.New("input files were given but the command has no placeholders")
	ErrMode          = errors.New("unknown mode")
)

// Mode selects what happens to each work item
type Mode int

const (
	ModeSubmit Mode = iota
	ModeLocal
	ModeParallel
)

func (m Mode) String() string {
	switch m {
	case ModeSubmit:
		return "submit"
	case ModeLocal:
		return "local"
	case ModeParallel:
		return "parallel"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode converts a --mode value into a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "submit", "":
		return ModeSubmit, nil
	case "local", "serial":
		return ModeLocal, nil
	case "parallel":
		return ModeParallel, nil
	}
	return ModeSubmit, fmt.Errorf("%w %q: want submit, local or parallel", ErrMode, s)
}

// WorkItem pairs the command with one input file. File is empty and
// Fanout false for the single job of a command without placeholders.
type WorkItem struct {
	Command string
	File    string
	Fanout  bool
}

// Resolved returns the command with the placeholders filled in from
// File
func (w WorkItem) Resolved() string {
	if !w.Fanout {
		return w.Command
	}
	return Resolve(w.Command, w.File)
}

// WorkItems applies the fanout rule: one item per file when cmd has
// placeholders, a single item when it has none and no files were given,
// and an error for either mismatch.
func WorkItems(cmd string, files []string) ([]WorkItem, error) {
	has := HasPlaceholder(cmd)
	switch {
	case has && len(files) == 0:
		return nil, ErrNoFiles
	case !has && len(files) > 0:
		return nil, ErrNoPlaceholder
	case !has:
		return []WorkItem{{Command: cmd}}, nil
	}
	items := make([]WorkItem, len(files))
	for i, f := range files {
		items[i] = WorkItem{Command: cmd, File: f, Fanout: true}
	}
	return items, nil
}

// Dispatcher carries out the work items in one Mode
type Dispatcher struct {
	Mode    Mode
	Options Options
	// Template is the script template body, only used by ModeSubmit
	Template string
	Slurm    *Slurm
	Runner   Runner
	Stdout   io.Writer
	Logger   *slog.Logger
	// WorkDir receives submitted scripts, ScriptDir holds them until
	// then
	WorkDir      string
	ScriptDir    string
	PollInterval time.Duration
	Now          func() time.Time
}

// Run processes items. In dry-run mode the resolved commands are only
// printed.
func (d *Dispatcher) Run(ctx context.Context, items []WorkItem) error {
	if d.Options.DryRun() {
		for _, item := range items {
			fmt.Fprintln(d.Stdout, item.Resolved())
		}
		return nil
	}
	switch d.Mode {
	case ModeSubmit:
		return d.submitAll(ctx, items)
	case ModeLocal:
		for _, item := range items {
			cmd := item.Resolved()
			d.Logger.Debug("running", "cmd", cmd)
			if err := d.Runner.Run(ctx, cmd); err != nil {
				d.Logger.Debug("command failed", "cmd", cmd, "err", err)
			}
		}
		return nil
	case ModeParallel:
		cmds := make([]string, len(items))
		for i, item := range items {
			cmds[i] = item.Resolved()
		}
		d.Logger.Debug("running in parallel", "commands", len(cmds),
			"workers", d.Options.NCPUs)
		s := Summarize(RunPool(ctx, d.Runner, cmds, d.Options.NCPUs))
		d.Logger.Debug("parallel run finished", "commands", s.N,
			"failed", s.Failed, "mean_s", s.Mean, "sd_s", s.StdDev,
			"max_s", s.Max)
		return nil
	}
	return fmt.Errorf("%w %v", ErrMode, d.Mode)
}

// submitAll submits the items in order. The first failure stops the run
// unless KeepGoing is set, in which case all failures are returned
// together at the end.
func (d *Dispatcher) submitAll(ctx context.Context, items []WorkItem) error {
	var (
		ids  []string
		errs []error
	)
	for _, item := range items {
		id, err := d.submit(ctx, item)
		if err != nil {
			if !d.Options.KeepGoing {
				return err
			}
			d.Logger.Error("submission failed", "file", item.File, "err", err)
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	if d.Options.Wait && len(ids) > 0 {
		if err := d.Slurm.Wait(ctx, d.Logger, ids, d.PollInterval); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Spec builds the parameters of the script for item
func (d *Dispatcher) Spec(item WorkItem) JobSpec {
	o := d.Options
	spec := JobSpec{
		Partition: o.Partition,
		Name:      o.Name,
		NCPUs:     o.NCPUs,
		Mem:       o.Mem,
		Walltime:  o.Walltime,
		Output:    o.Output,
		Error:     o.Error,
		Cmd:       item.Resolved(),
	}
	if spec.Output == "" {
		spec.Output = DefaultLogPath(o.Name, item.File, "out")
	}
	if spec.Error == "" {
		spec.Error = DefaultLogPath(o.Name, item.File, "err")
	}
	return spec
}

// submit renders, writes and submits the script for item and returns
// the job id
func (d *Dispatcher) submit(ctx context.Context, item WorkItem) (string, error) {
	text, err := Render(d.Template, d.Spec(item))
	if err != nil {
		return "", err
	}
	var script string
	temp := d.Options.Script == ""
	if temp {
		script, err = WriteTempScript(d.ScriptDir, d.Options.Name, text, d.Now())
	} else {
		script = ExplicitScriptPath(d.Options.Script, item.File)
		err = os.WriteFile(script, []byte(text), 0644)
	}
	if err != nil {
		return "", fmt.Errorf("writing script: %w", err)
	}
	d.Logger.Debug("submitting", "script", script, "cmd", item.Resolved())

	outcome, err := d.Slurm.Submit(ctx, script)
	if err != nil {
		if rerr := os.Remove(script); rerr != nil {
			d.Logger.Warn("removing script", "script", script, "err", rerr)
		}
		return "", err
	}
	fmt.Fprint(d.Stdout, outcome.Output)
	if temp && writable(d.WorkDir) {
		kept, err := KeepScript(script, d.WorkDir, d.Options.Name,
			outcome.JobID, item.File)
		if err != nil {
			d.Logger.Warn("keeping script", "script", script, "err", err)
		} else {
			d.Logger.Debug("kept script", "path", kept)
		}
	}
	return outcome.JobID, nil
}
