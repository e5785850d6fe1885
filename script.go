package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const ScriptExt = ".sbatch"

// TempScriptDir returns the per-user directory for generated scripts
func TempScriptDir() string {
	return filepath.Join(os.TempDir(), "easy_sbatch-"+currentUser())
}

// WriteTempScript writes text to a new file in dir whose name carries
// the job name, the date and a unique suffix
func WriteTempScript(dir, name, text string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.%s%s",
		safeName(name), now.Format("20060102"), uuid.NewString(), ScriptExt))
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ExplicitScriptPath returns the user-requested script path for the
// work item on file. With fanout the input's base name is inserted
// before the extension so the scripts do not overwrite each other.
func ExplicitScriptPath(path, file string) string {
	if file == "" {
		return path
	}
	_, base := splitPath(file)
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + base + ext
}

// ScriptName is the permanent name of a submitted script
func ScriptName(name, jobID, file string) string {
	if file == "" {
		return fmt.Sprintf("%s.%s%s", safeName(name), jobID, ScriptExt)
	}
	_, base := splitPath(file)
	return fmt.Sprintf("%s.%s-%s%s", safeName(name), jobID, base, ScriptExt)
}

// KeepScript moves a submitted temporary script into dir under its
// permanent name and returns the new path
func KeepScript(script, dir, name, jobID, file string) (string, error) {
	dst := filepath.Join(dir, ScriptName(name, jobID, file))
	if err := moveFile(script, dst); err != nil {
		return script, err
	}
	return dst, nil
}

func safeName(name string) string {
	return strings.ReplaceAll(name, string(filepath.Separator), "_")
}
