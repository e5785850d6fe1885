package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// squeue states in which a job still occupies the queue
var activeStates = map[string]struct{}{
	"PD": {}, // pending
	"CF": {}, // configuring
	"R":  {}, // running
	"CG": {}, // completing
	"S":  {}, // suspended
	"RQ": {}, // requeued
	"RF": {}, // requeue fed
	"RS": {}, // resizing
}

// ParseQueue updates qstat from squeue output read from r. Every key is
// first set to false and then to true if its job is listed in an active
// state.
func ParseQueue(r io.Reader, qstat map[string]bool) error {
	scanner := bufio.NewScanner(r)
	var (
		line   string
		fields []string
		header = true
	)
	for key := range qstat {
		qstat[key] = false
	}
	for scanner.Scan() {
		line = scanner.Text()
		if strings.Contains(line, "JOBID") {
			header = false
			continue
		} else if header {
			continue
		}
		fields = strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if _, ok := qstat[fields[0]]; ok {
			if _, active := activeStates[fields[4]]; active {
				qstat[fields[0]] = true
			}
		}
	}
	return scanner.Err()
}

// Stat refreshes qstat, a map of job ids to whether they are still in
// the queue
func (s *Slurm) Stat(ctx context.Context, qstat map[string]bool) error {
	name, args := s.StatCmd(s.User)
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return fmt.Errorf("listing queue: %w", err)
	}
	return ParseQueue(strings.NewReader(string(out)), qstat)
}

// Wait polls the queue every interval until none of ids is active or
// ctx is done
func (s *Slurm) Wait(ctx context.Context, logger *slog.Logger, ids []string,
	interval time.Duration) error {
	qstat := make(map[string]bool, len(ids))
	for _, id := range ids {
		qstat[id] = true
	}
	for {
		if err := s.Stat(ctx, qstat); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		var remaining int
		for _, active := range qstat {
			if active {
				remaining++
			}
		}
		if remaining == 0 {
			return nil
		}
		logger.Info("waiting for jobs", "remaining", remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
