package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	flag "github.com/juju/gnuflag"
)

// Env is the process environment run works against
type Env struct {
	Stdin  io.Reader
	Piped  bool
	Stdout io.Writer
	Stderr io.Writer
	// Home is empty when no home directory could be found
	Home string
	// WorkDir receives submitted scripts
	WorkDir string
	// ScriptDir holds scripts until they are submitted
	ScriptDir string
}

func main() {
	home, err := homeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "easy-sbatch: %v\n", err)
	}
	wd, _ := os.Getwd()
	err = run(context.Background(), os.Args[1:], Env{
		Stdin:     os.Stdin,
		Piped:     isPiped(os.Stdin),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Home:      home,
		WorkDir:   wd,
		ScriptDir: TempScriptDir(),
	})
	code := exitCode(err)
	switch code {
	case 0:
	case 2:
		fmt.Fprintln(os.Stderr, err)
	default:
		fmt.Fprintf(os.Stderr, "easy-sbatch: %v\n", err)
	}
	os.Exit(code)
}

// exitCode maps the error returned by run to the process exit status
func exitCode(err error) int {
	var uerr *UsageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &uerr):
		return 2
	default:
		return 1
	}
}

func run(ctx context.Context, args []string, env Env) error {
	opts, err := ParseFlags(args, env.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	} else if err != nil {
		return err
	}
	logger := newLogger(opts.Verbose, env.Stderr)

	var tmplDir string
	if env.Home == "" {
		logger.Warn("no home directory, skipping template directory")
	} else {
		tmplDir, err = EnsureTemplateDir(env.Home)
		if err != nil {
			logger.Warn("creating template directory", "dir", tmplDir, "err", err)
		}
	}
	conf := DefaultConfig()
	confFile := opts.Config
	if confFile == "" && tmplDir != "" {
		confFile = filepath.Join(tmplDir, ConfigName)
	}
	if confFile != "" {
		conf, err = LoadConfig(confFile)
		if err != nil {
			return err
		}
	}
	opts.Merge(conf)
	mode, err := opts.Validate()
	if err != nil {
		return err
	}

	files := opts.Files
	if len(files) == 0 && env.Piped {
		files, err = ReadFileList(env.Stdin)
		if err != nil {
			return fmt.Errorf("reading file list: %w", err)
		}
	}
	items, err := WorkItems(opts.Command, files)
	if err != nil {
		return err
	}
	logger.Debug("dispatching", "mode", mode, "items", len(items))

	// commands share the terminal unless stdin carried the file list
	runner := &ShellRunner{Shell: conf.Shell, Stdout: env.Stdout, Stderr: env.Stderr}
	if !env.Piped {
		runner.Stdin = env.Stdin
	}
	d := &Dispatcher{
		Mode:         mode,
		Options:      opts,
		Slurm:        NewSlurm(conf.Sbatch, conf.Squeue),
		Runner:       runner,
		Stdout:       env.Stdout,
		Logger:       logger,
		WorkDir:      env.WorkDir,
		ScriptDir:    env.ScriptDir,
		PollInterval: conf.PollInterval.Duration,
		Now:          time.Now,
	}
	if mode == ModeSubmit && !opts.DryRun() {
		d.Template, err = loadTemplate(logger, tmplDir, opts.Template)
		if err != nil {
			return err
		}
	}
	return d.Run(ctx, items)
}

// loadTemplate falls back to the built-in template with a warning when
// the requested one is missing
func loadTemplate(logger *slog.Logger, dir, name string) (string, error) {
	body, err := LoadTemplate(dir, name)
	if errors.Is(err, ErrTemplateMissing) {
		logger.Warn("using built-in template", "err", err)
		return body, nil
	}
	return body, err
}
