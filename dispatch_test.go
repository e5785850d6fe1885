package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSbatch numbers submissions from 101, keeps a copy of each script
// next to itself and fails on the submission numbered failOn, if any
const fakeSbatch = `dir=$(dirname "$0")
n=$(cat "$dir/count" 2>/dev/null || echo 100)
n=$((n+1))
echo $n > "$dir/count"
if [ "$n" = "$FAIL_ON" ]; then
	echo "sbatch: error: QOSMaxSubmitJobPerUserLimit" >&2
	exit 1
fi
cp "$1" "$dir/submitted.$n"
echo "Submitted batch job $n"
`

type harness struct {
	d         *Dispatcher
	stdout    *bytes.Buffer
	binDir    string
	workDir   string
	scriptDir string
}

func newHarness(t *testing.T, failOn string) *harness {
	t.Helper()
	h := &harness{
		stdout:    new(bytes.Buffer),
		binDir:    t.TempDir(),
		workDir:   t.TempDir(),
		scriptDir: filepath.Join(t.TempDir(), "scripts"),
	}
	sbatch := writeExec(t, h.binDir, "sbatch",
		"FAIL_ON="+failOn+"\n"+fakeSbatch)
	opts := Options{
		Name:      "job",
		NCPUs:     2,
		Mem:       "1G",
		Partition: "short",
		Walltime:  "1:00:00",
	}
	h.d = &Dispatcher{
		Mode:      ModeSubmit,
		Options:   opts,
		Template:  DefaultTemplate,
		Slurm:     NewSlurm(sbatch, "squeue"),
		Stdout:    h.stdout,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		WorkDir:   h.workDir,
		ScriptDir: h.scriptDir,
		Now:       time.Now,
	}
	return h
}

func (h *harness) submitted(t *testing.T, n string) string {
	t.Helper()
	byts, err := os.ReadFile(filepath.Join(h.binDir, "submitted."+n))
	require.NoError(t, err)
	return string(byts)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWorkItems(t *testing.T) {
	got, err := WorkItems("cat /etc/hostname", nil)
	require.NoError(t, err)
	want := []WorkItem{{Command: "cat /etc/hostname"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	files := []string{"a.txt", "dir/b.txt", "c.txt"}
	got, err = WorkItems("wc -l {} > {%}.n", files)
	require.NoError(t, err)
	var resolved []string
	for _, item := range got {
		resolved = append(resolved, item.Resolved())
	}
	wantResolved := []string{
		"wc -l a.txt > a.txt.n",
		"wc -l dir/b.txt > b.txt.n",
		"wc -l c.txt > c.txt.n",
	}
	if diff := cmp.Diff(wantResolved, resolved); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	_, err = WorkItems("ls {}", nil)
	assert.ErrorIs(t, err, ErrNoFiles)
	_, err = WorkItems("ls", []string{"a.txt"})
	assert.ErrorIs(t, err, ErrNoPlaceholder)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":         ModeSubmit,
		"submit":   ModeSubmit,
		"local":    ModeLocal,
		"serial":   ModeLocal,
		"parallel": ModeParallel,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("qsub")
	assert.ErrorIs(t, err, ErrMode)
}

func TestDispatchSingle(t *testing.T) {
	h := newHarness(t, "")
	items, err := WorkItems("cat /etc/hostname", nil)
	require.NoError(t, err)
	require.NoError(t, h.d.Run(context.Background(), items))

	assert.Equal(t, "Submitted batch job 101\n", h.stdout.String())
	assert.Equal(t, []string{"job.101.sbatch"}, dirNames(t, h.workDir))
	assert.Empty(t, dirNames(t, h.scriptDir))

	script := h.submitted(t, "101")
	assert.Contains(t, script, "#SBATCH --output=job.%j.out\n")
	assert.Contains(t, script, "#SBATCH --error=job.%j.err\n")
	assert.Contains(t, script, "#SBATCH --partition=short\n")
	assert.Contains(t, script, "#SBATCH --cpus-per-task=2\n")
	assert.Contains(t, script, "\ncat /etc/hostname\n")
}

func TestDispatchFanout(t *testing.T) {
	h := newHarness(t, "")
	items, err := WorkItems("ls {}", []string{"a.txt", "b.txt"})
	require.NoError(t, err)
	require.NoError(t, h.d.Run(context.Background(), items))

	assert.Equal(t,
		"Submitted batch job 101\nSubmitted batch job 102\n",
		h.stdout.String())
	assert.ElementsMatch(t,
		[]string{"job.101-a.txt.sbatch", "job.102-b.txt.sbatch"},
		dirNames(t, h.workDir))

	a := h.submitted(t, "101")
	assert.Contains(t, a, "#SBATCH --output=job.%j-a.txt.out\n")
	assert.Contains(t, a, "\nls a.txt\n")
	b := h.submitted(t, "102")
	assert.Contains(t, b, "#SBATCH --error=job.%j-b.txt.err\n")
	assert.Contains(t, b, "\nls b.txt\n")
}

func TestDispatchExplicitPaths(t *testing.T) {
	h := newHarness(t, "")
	dir := t.TempDir()
	h.d.Options.Script = filepath.Join(dir, "run.sh")
	h.d.Options.Output = "logs/out.txt"
	items, err := WorkItems("gzip {}", []string{"x.fq", "y.fq"})
	require.NoError(t, err)
	require.NoError(t, h.d.Run(context.Background(), items))

	assert.ElementsMatch(t, []string{"run-x.fq.sh", "run-y.fq.sh"},
		dirNames(t, dir))
	assert.Empty(t, dirNames(t, h.workDir))
	assert.Contains(t, h.submitted(t, "101"), "--output=logs/out.txt\n")
	assert.Contains(t, h.submitted(t, "102"), "--error=job.%j-y.fq.err\n")
}

func TestDispatchSubmitFailure(t *testing.T) {
	h := newHarness(t, "102")
	items, err := WorkItems("ls {}", []string{"a", "b", "c"})
	require.NoError(t, err)
	err = h.d.Run(context.Background(), items)
	assert.ErrorIs(t, err, ErrSubmit)

	// the failed script is removed and c is never submitted
	assert.Equal(t, []string{"job.101-a.sbatch"}, dirNames(t, h.workDir))
	assert.Empty(t, dirNames(t, h.scriptDir))
	count, _ := os.ReadFile(filepath.Join(h.binDir, "count"))
	assert.Equal(t, "102\n", string(count))
}

func TestDispatchKeepGoing(t *testing.T) {
	h := newHarness(t, "102")
	h.d.Options.KeepGoing = true
	items, err := WorkItems("ls {}", []string{"a", "b", "c"})
	require.NoError(t, err)
	err = h.d.Run(context.Background(), items)
	assert.ErrorIs(t, err, ErrSubmit)

	assert.ElementsMatch(t, []string{"job.101-a.sbatch", "job.103-c.sbatch"},
		dirNames(t, h.workDir))
	assert.Empty(t, dirNames(t, h.scriptDir))
}

func TestDispatchTemplateError(t *testing.T) {
	h := newHarness(t, "")
	h.d.Template = "#!/bin/sh\n$queue\n"
	items, err := WorkItems("true", nil)
	require.NoError(t, err)
	err = h.d.Run(context.Background(), items)
	var terr *TemplateError
	assert.ErrorAs(t, err, &terr)
	assert.Empty(t, dirNames(t, h.scriptDir))
	assert.NoFileExists(t, filepath.Join(h.binDir, "count"))
}

func TestDispatchWait(t *testing.T) {
	h := newHarness(t, "")
	h.d.Options.Wait = true
	h.d.PollInterval = time.Millisecond
	h.d.Slurm.StatCmd = catStat("testfiles/squeue.dat")
	items, err := WorkItems("true", nil)
	require.NoError(t, err)
	// job 101 is not in the listing, so it has already left the queue
	require.NoError(t, h.d.Run(context.Background(), items))
}

func TestDispatchDryRun(t *testing.T) {
	h := newHarness(t, "")
	h.d.Options.Verbose = 2
	items, err := WorkItems("bzip2 {^.txt}", []string{"d/a.txt", "b.txt"})
	require.NoError(t, err)
	for _, mode := range []Mode{ModeSubmit, ModeLocal, ModeParallel} {
		h.stdout.Reset()
		h.d.Mode = mode
		h.d.Runner = RunnerFunc(func(context.Context, string) error {
			t.Errorf("%v: command executed during dry run", mode)
			return nil
		})
		require.NoError(t, h.d.Run(context.Background(), items))
		assert.Equal(t, "bzip2 d/a\nbzip2 b\n", h.stdout.String())
	}
	assert.Empty(t, dirNames(t, h.workDir))
	assert.Empty(t, dirNames(t, h.scriptDir))
	assert.NoFileExists(t, filepath.Join(h.binDir, "count"))
}

func TestDispatchLocal(t *testing.T) {
	h := newHarness(t, "")
	var got []string
	h.d.Mode = ModeLocal
	h.d.Runner = RunnerFunc(func(_ context.Context, cmd string) error {
		got = append(got, cmd)
		return errors.New("exit status 1")
	})
	items, err := WorkItems("echo {%}", []string{"x/1", "x/2", "x/3"})
	require.NoError(t, err)
	// failures of the commands themselves are not reported
	require.NoError(t, h.d.Run(context.Background(), items))
	assert.Equal(t, []string{"echo 1", "echo 2", "echo 3"}, got)
	assert.Empty(t, dirNames(t, h.scriptDir))
}

func TestDispatchParallel(t *testing.T) {
	h := newHarness(t, "")
	var (
		mu  sync.Mutex
		got []string
	)
	h.d.Mode = ModeParallel
	h.d.Runner = RunnerFunc(func(_ context.Context, cmd string) error {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
		return nil
	})
	items, err := WorkItems("echo {}", []string{"1", "2", "3"})
	require.NoError(t, err)
	require.NoError(t, h.d.Run(context.Background(), items))
	assert.ElementsMatch(t, []string{"echo 1", "echo 2", "echo 3"}, got)
}

func TestSpec(t *testing.T) {
	h := newHarness(t, "")
	got := h.d.Spec(WorkItem{Command: "cat {}", File: "in/a.txt", Fanout: true})
	want := JobSpec{
		Partition: "short",
		Name:      "job",
		NCPUs:     2,
		Mem:       "1G",
		Walltime:  "1:00:00",
		Output:    "job.%j-a.txt.out",
		Error:     "job.%j-a.txt.err",
		Cmd:       "cat in/a.txt",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(got.Cmd, "{") {
		t.Errorf("unresolved command %q", got.Cmd)
	}
}
