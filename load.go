package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const ConfigName = "config.toml"

// Duration is a time.Duration read from a TOML string like "30s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

// Config holds the per-user defaults for job parameters and the
// scheduler commands
type Config struct {
	Name         string
	NCPUs        int
	Mem          string
	Partition    string
	Walltime     string
	Template     string
	Sbatch       string
	Squeue       string
	Shell        string
	PollInterval Duration `toml:"poll_interval"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Name:         "easy_sbatch",
		NCPUs:        1,
		Mem:          "5G",
		Partition:    "normal",
		Walltime:     "30-00:00:00",
		Sbatch:       "sbatch",
		Squeue:       "squeue",
		Shell:        "/bin/sh",
		PollInterval: Duration{30 * time.Second},
	}
}

// LoadConfig reads filename over the defaults. A missing file is not an
// error, but keys that do not belong to Config are.
func LoadConfig(filename string) (Config, error) {
	conf := DefaultConfig()
	cont, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return conf, nil
	} else if err != nil {
		return conf, err
	}
	md, err := toml.Decode(string(cont), &conf)
	if err != nil {
		return conf, fmt.Errorf("loading %s: %w", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return conf, fmt.Errorf("loading %s: unknown keys %s",
			filename, strings.Join(keys, ", "))
	}
	if conf.PollInterval.Duration <= 0 {
		return conf, fmt.Errorf("loading %s: poll_interval must be positive, got %v",
			filename, conf.PollInterval.Duration)
	}
	return conf, nil
}
