package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/juju/gnuflag"
)

// UsageError is a problem with the command line itself
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// Options is the parsed command line
type Options struct {
	Mode      string
	Name      string
	NCPUs     int
	Mem       string
	Partition string
	Walltime  string
	Template  string
	Script    string
	Output    string
	Error     string
	Verbose   int
	KeepGoing bool
	Wait      bool
	Config    string

	Command string
	Files   []string

	// set holds the long names of the options given explicitly
	set map[string]bool
}

// DryRun reports whether only the resolved commands should be printed
func (o Options) DryRun() bool {
	return o.Verbose >= 2
}

// Merge fills every option the user did not set from conf
func (o *Options) Merge(conf Config) {
	if !o.set["name"] {
		o.Name = conf.Name
	}
	if !o.set["ncpus"] {
		o.NCPUs = conf.NCPUs
	}
	if !o.set["mem"] {
		o.Mem = conf.Mem
	}
	if !o.set["partition"] {
		o.Partition = conf.Partition
	}
	if !o.set["walltime"] {
		o.Walltime = conf.Walltime
	}
	if !o.set["template"] {
		o.Template = conf.Template
	}
}

const usage = `easy-sbatch - generate and submit Slurm batch scripts

Usage:
  easy-sbatch [options] COMMAND [FILE...]
  find . -name "*.fq" | easy-sbatch [options] COMMAND

Placeholders in COMMAND are replaced once per FILE:
  {}       full path          {/}      directory
  {%}      base name          {^suf}   full path without suf
  {%^suf}  base name without suf

Options:
`

// stringFlag registers a flag under both a short and a long name
func stringFlag(fs *flag.FlagSet, p *string, short, long, value, usage string) {
	fs.StringVar(p, short, value, usage)
	fs.StringVar(p, long, value, usage)
}

func intFlag(fs *flag.FlagSet, p *int, short, long string, value int, usage string) {
	fs.IntVar(p, short, value, usage)
	fs.IntVar(p, long, value, usage)
}

func boolFlag(fs *flag.FlagSet, p *bool, short, long string, usage string) {
	fs.BoolVar(p, short, false, usage)
	fs.BoolVar(p, long, false, usage)
}

// aliases maps short flag names to their long form
var aliases = map[string]string{
	"m": "mode", "J": "name", "c": "ncpus", "M": "mem",
	"p": "partition", "w": "walltime", "t": "template", "s": "script",
	"o": "output", "e": "error", "v": "verbose", "k": "keep-going",
	"W": "wait",
}

// ParseFlags parses args, writing usage to w. flag.ErrHelp is returned
// as is when help was requested.
func ParseFlags(args []string, w io.Writer) (Options, error) {
	var o Options
	def := DefaultConfig()
	fs := flag.NewFlagSet("easy-sbatch", flag.ContinueOnError)
	fs.SetOutput(w)
	fs.Usage = func() {
		fmt.Fprint(w, usage)
		fs.PrintDefaults()
	}

	stringFlag(fs, &o.Mode, "m", "mode", "submit",
		"submit, local (run serially here) or parallel (run here on ncpus workers)")
	stringFlag(fs, &o.Name, "J", "name", def.Name, "job name")
	intFlag(fs, &o.NCPUs, "c", "ncpus", def.NCPUs,
		"cpus per task, or workers in parallel mode")
	stringFlag(fs, &o.Mem, "M", "mem", def.Mem, "memory")
	stringFlag(fs, &o.Partition, "p", "partition", def.Partition, "partition")
	stringFlag(fs, &o.Walltime, "w", "walltime", def.Walltime, "walltime")
	stringFlag(fs, &o.Template, "t", "template", "",
		"template file, or the name of one in ~/"+TemplateDirName)
	stringFlag(fs, &o.Script, "s", "script", "",
		"write the script here instead of a temporary file")
	stringFlag(fs, &o.Output, "o", "output", "", "job output file")
	stringFlag(fs, &o.Error, "e", "error", "", "job error file")
	intFlag(fs, &o.Verbose, "v", "verbose", 0,
		"verbosity: 1 for debug logs, 2 to only print the commands")
	boolFlag(fs, &o.KeepGoing, "k", "keep-going",
		"keep submitting after a failed submission")
	boolFlag(fs, &o.Wait, "W", "wait",
		"wait for submitted jobs to leave the queue")
	fs.StringVar(&o.Config, "config", "",
		"config file (default ~/"+TemplateDirName+"/"+ConfigName+")")

	if err := fs.Parse(true, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return o, err
		}
		return o, &UsageError{Msg: err.Error()}
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		if long, ok := aliases[f.Name]; ok {
			o.set[long] = true
		} else {
			o.set[f.Name] = true
		}
	})
	if fs.NArg() == 0 {
		fs.Usage()
		return o, &UsageError{Msg: "missing COMMAND"}
	}
	o.Command = fs.Arg(0)
	o.Files = fs.Args()[1:]
	return o, nil
}

// Validate checks the options that do not depend on the input files
func (o Options) Validate() (Mode, error) {
	if o.Name == "" {
		return ModeSubmit, ErrEmptyName
	}
	return ParseMode(o.Mode)
}
