package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Errors
var (
	ErrSubmit  = errors.New("submission command failed")
	ErrNoJobID = errors.New("job id not found in scheduler output")
)

// output like "Submitted batch job 49229449"
var jobIDRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Slurm submits scripts with sbatch and inspects the queue with squeue
type Slurm struct {
	Sbatch string
	// StatCmd returns the command and arguments listing the jobs of
	// user
	StatCmd func(user string) (string, []string)
	User    string
}

// NewSlurm returns a Slurm using the given submission and queue
// commands for the current user
func NewSlurm(sbatch, squeue string) *Slurm {
	return &Slurm{
		Sbatch: sbatch,
		StatCmd: func(user string) (string, []string) {
			return squeue, []string{"-u", user}
		},
		User: currentUser(),
	}
}

// SubmissionOutcome is the raw scheduler response and the job id taken
// from it
type SubmissionOutcome struct {
	Output string
	JobID  string
}

// SubmitError is returned when a script could not be submitted. Err
// wraps ErrSubmit or ErrNoJobID.
type SubmitError struct {
	Script string
	Output string
	Err    error
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("submitting %s: %v", e.Script, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ParseJobID extracts the job id from sbatch output
func ParseJobID(output string) (string, error) {
	m := jobIDRe.FindStringSubmatch(output)
	if m == nil {
		return "", ErrNoJobID
	}
	return m[1], nil
}

// Submit sends script to the queue. The command runs in the current
// directory so relative paths in the job resolve the same way they do
// for the user.
func (s *Slurm) Submit(ctx context.Context, script string) (SubmissionOutcome, error) {
	cmd := exec.CommandContext(ctx, s.Sbatch, script)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	byts, err := cmd.Output()
	outcome := SubmissionOutcome{Output: string(byts)}
	if err != nil {
		return outcome, &SubmitError{
			Script: script,
			Output: outcome.Output + stderr.String(),
			Err:    fmt.Errorf("%w: %q: %v", ErrSubmit, cmd.String(), err),
		}
	}
	outcome.JobID, err = ParseJobID(outcome.Output)
	if err != nil {
		return outcome, &SubmitError{
			Script: script,
			Output: outcome.Output + stderr.String(),
			Err:    err,
		}
	}
	return outcome, nil
}
