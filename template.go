package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

const (
	TemplateDirName     = ".easy_sbatch"
	DefaultTemplateName = "batch_default.sbatch"
)

//go:embed default.sbatch
var DefaultTemplate string

var (
	ErrTemplate        = errors.New("invalid template")
	ErrTemplateMissing = errors.New("template not found")
)

// Key is one of the fields substituted into a script template
type Key string

const (
	KeyPartition Key = "partition"
	KeyName      Key = "name"
	KeyNCPUs     Key = "ncpus"
	KeyMem       Key = "mem"
	KeyWalltime  Key = "walltime"
	KeyOutput    Key = "output"
	KeyError     Key = "error"
	KeyCmd       Key = "cmd"
)

// Keys lists every key a template may reference
var Keys = []Key{
	KeyPartition, KeyName, KeyNCPUs, KeyMem,
	KeyWalltime, KeyOutput, KeyError, KeyCmd,
}

// JobSpec holds the resource and path parameters of a single generated
// script
type JobSpec struct {
	Partition string
	Name      string
	NCPUs     int
	Mem       string
	Walltime  string
	Output    string
	Error     string
	Cmd       string
}

// Values returns the substitution mapping for s
func (s JobSpec) Values() map[Key]string {
	return map[Key]string{
		KeyPartition: s.Partition,
		KeyName:      s.Name,
		KeyNCPUs:     strconv.Itoa(s.NCPUs),
		KeyMem:       s.Mem,
		KeyWalltime:  s.Walltime,
		KeyOutput:    s.Output,
		KeyError:     s.Error,
		KeyCmd:       s.Cmd,
	}
}

// TemplateError reports an unknown key or a malformed $ reference in a
// template body
type TemplateError struct {
	Line int
	Col  int
	Ref  string
	Msg  string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template line %d, col %d: %s %q",
		e.Line, e.Col, e.Msg, e.Ref)
}

func (e *TemplateError) Unwrap() error {
	return ErrTemplate
}

// refRe matches, in order, the $$ escape, a bare $key, a braced ${key}
// and anything else following a $
var refRe = regexp.MustCompile(
	`\$(?:(\$)|([_A-Za-z][_A-Za-z0-9]*)|\{([_A-Za-z][_A-Za-z0-9]*)\}|())`,
)

// Render substitutes the fields of spec into body. References are
// written $key or ${key}, and $$ stands for a literal $ so that
// scheduler variables like $$SLURM_JOB_ID pass through untouched.
func Render(body string, spec JobSpec) (string, error) {
	vals := spec.Values()
	var b strings.Builder
	last := 0
	for _, m := range refRe.FindAllStringSubmatchIndex(body, -1) {
		b.WriteString(body[last:m[0]])
		last = m[1]
		switch {
		case m[2] >= 0:
			b.WriteByte('$')
			continue
		case m[4] >= 0:
			if err := put(&b, vals, body, m[0], body[m[4]:m[5]]); err != nil {
				return "", err
			}
		case m[6] >= 0:
			if err := put(&b, vals, body, m[0], body[m[6]:m[7]]); err != nil {
				return "", err
			}
		default:
			line, col := position(body, m[0])
			end := m[0] + 2
			if end > len(body) {
				end = len(body)
			}
			return "", &TemplateError{
				Line: line,
				Col:  col,
				Ref:  body[m[0]:end],
				Msg:  "invalid placeholder",
			}
		}
	}
	b.WriteString(body[last:])
	return b.String(), nil
}

func put(b *strings.Builder, vals map[Key]string, body string, off int, key string) error {
	v, ok := vals[Key(key)]
	if !ok {
		line, col := position(body, off)
		return &TemplateError{Line: line, Col: col, Ref: key, Msg: "unknown key"}
	}
	b.WriteString(v)
	return nil
}

// position converts a byte offset in s into a 1-based line and column
func position(s string, off int) (line, col int) {
	line = 1 + strings.Count(s[:off], "\n")
	col = off - strings.LastIndex(s[:off], "\n")
	return
}

// DefaultLogPath returns the default output or error path for a job,
// leaving %j for Slurm to fill in with the job id
func DefaultLogPath(name, file, ext string) string {
	if file == "" {
		return fmt.Sprintf("%s.%%j.%s", name, ext)
	}
	_, base := splitPath(file)
	return fmt.Sprintf("%s.%%j-%s.%s", name, base, ext)
}

// EnsureTemplateDir creates the template directory under home and
// writes the built-in default template into it unless one is already
// there. It is safe to call repeatedly.
func EnsureTemplateDir(home string) (string, error) {
	dir := filepath.Join(home, TemplateDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return dir, err
	}
	f, err := os.OpenFile(filepath.Join(dir, DefaultTemplateName),
		os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, fs.ErrExist) {
		return dir, nil
	} else if err != nil {
		return dir, err
	}
	if _, err := f.WriteString(DefaultTemplate); err != nil {
		f.Close()
		return dir, err
	}
	return dir, f.Close()
}

// LoadTemplate reads the template called name, which may be a path or
// the name of a file in dir. An empty name selects the default template
// in dir. When nothing is found the built-in template is returned along
// with ErrTemplateMissing.
func LoadTemplate(dir, name string) (string, error) {
	if name == "" {
		if dir == "" {
			return DefaultTemplate, fmt.Errorf("%w: no template directory",
				ErrTemplateMissing)
		}
		name = filepath.Join(dir, DefaultTemplateName)
	}
	candidates := []string{name}
	if !filepath.IsAbs(name) && dir != "" {
		candidates = append(candidates, filepath.Join(dir, name))
	}
	for _, c := range candidates {
		byts, err := os.ReadFile(c)
		if err == nil {
			return string(byts), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return DefaultTemplate, fmt.Errorf("%w: %s", ErrTemplateMissing, name)
}
