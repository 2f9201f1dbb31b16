package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
)

type fakeTasks struct {
	mu    sync.Mutex
	calls []TaskContext
	err   error
}

func (f *fakeTasks) RunTask(_ context.Context, ref string, _ map[string]string, tc TaskContext) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tc)
	return "ran " + ref, f.err
}

func newTestRunner(t *testing.T, tasks TaskRunner) *Runner {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewRunner(t.TempDir(), tasks, log)
}

func TestRunVariantFailFast(t *testing.T) {
	ft := &fakeTasks{}
	r := newTestRunner(t, ft)

	pipeline := &Pipeline{Jobs: []Job{{
		Job: "Test",
		Steps: []Step{
			{Script: "echo first"},
			{Script: "exit 7", DisplayName: "break"},
			{Script: "echo never"},
			{Task: "PublishTestResults@2", Condition: "succeededOrFailed()"},
		},
	}}}

	run, err := r.RunPipeline(context.Background(), pipeline)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(run.Variants) != 1 {
		t.Fatalf("expected 1 variant, got %d", len(run.Variants))
	}

	v := run.Variants[0]
	if v.Status != StatusFailed {
		t.Errorf("variant status: got %s", v.Status)
	}
	want := []Status{StatusSucceeded, StatusFailed, StatusSkipped, StatusSucceeded}
	for i, st := range v.Steps {
		if st.Status != want[i] {
			t.Errorf("step %d (%s): got %s, want %s", i, st.Step, st.Status, want[i])
		}
	}

	// The always-run publish step must have executed despite the failure,
	// and must be told the variant already failed.
	if len(ft.calls) != 1 {
		t.Fatalf("publish task ran %d times, want 1", len(ft.calls))
	}
	if !ft.calls[0].Failed {
		t.Errorf("task context should report the earlier step failure")
	}
	if run.Summary.ExitCode() == 0 {
		t.Errorf("failed run must exit non-zero")
	}
}

func TestRunVariantContinueOnError(t *testing.T) {
	ft := &fakeTasks{}
	r := newTestRunner(t, ft)
	pipeline := &Pipeline{Jobs: []Job{{
		Job: "Test",
		Steps: []Step{
			{Script: "exit 1", ContinueOnError: true},
			{Script: "echo still here"},
			{Task: "PublishTestResults@2"},
		},
	}}}

	run, err := r.RunPipeline(context.Background(), pipeline)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	v := run.Variants[0]
	if v.Status != StatusSucceeded {
		t.Errorf("continueOnError should keep the variant succeeded, got %s", v.Status)
	}
	if v.Steps[1].Status != StatusSucceeded {
		t.Errorf("second step should run, got %s", v.Steps[1].Status)
	}
	if len(ft.calls) != 1 || ft.calls[0].Failed {
		t.Errorf("task context should not report a failure for a tolerated error: %+v", ft.calls)
	}
}

func TestRunMatrixVariants(t *testing.T) {
	r := newTestRunner(t, &fakeTasks{})
	pipeline := &Pipeline{Jobs: []Job{{
		Job: "Test",
		Strategy: &Strategy{MaxParallel: 4, Matrix: Matrix{Variants: []MatrixVariant{
			{Name: "Python36", Variables: map[string]string{"PYTHON_VERSION": "3.6"}},
			{Name: "Python37", Variables: map[string]string{"PYTHON_VERSION": "3.7"}},
		}}},
		Steps: []Step{
			{Script: "echo version $(PYTHON_VERSION)"},
		},
	}}}

	run, err := r.RunPipeline(context.Background(), pipeline)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(run.Variants) != 2 {
		t.Fatalf("expected exactly 2 variant results, got %d", len(run.Variants))
	}
	// Results keep matrix order regardless of completion order.
	if run.Variants[0].Name != "Python36" || run.Variants[1].Name != "Python37" {
		t.Errorf("variant order: %s, %s", run.Variants[0].Name, run.Variants[1].Name)
	}
	for i, want := range []string{"3.6", "3.7"} {
		out := run.Variants[i].Steps[0].Output
		if out == "" || !containsLine(out, "version "+want) {
			t.Errorf("variant %d: macro not expanded in step, output %q", i, out)
		}
	}
}

func TestRunVariantPrependPath(t *testing.T) {
	r := newTestRunner(t, &fakeTasks{})

	base := t.TempDir()
	condaBin := filepath.Join(base, "conda", "bin")
	toolsBin := filepath.Join(base, "tools", "bin")
	for _, dir := range []string{condaBin, toolsBin} {
		if err := os.MkdirAll(dir, 0o775); err != nil {
			t.Fatal(err)
		}
	}

	pipeline := &Pipeline{Jobs: []Job{{
		Job: "Test",
		Steps: []Step{
			{Bash: fmt.Sprintf("echo '%s%s'\necho '%s%s'", PrependPathDirective, condaBin, PrependPathDirective, toolsBin)},
			{Script: "echo PATH=$PATH"},
		},
	}}}

	run, err := r.RunPipeline(context.Background(), pipeline)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Each directive prepends, so the one printed last wins the front spot.
	out := run.Variants[0].Steps[1].Output
	want := "PATH=" + toolsBin + ":" + condaBin + ":" + os.Getenv("PATH")
	if !containsLine(out, want) {
		t.Errorf("later step did not see prepended PATH:\n got %q\nwant line %q", out, want)
	}
}

func TestRunJournalsSteps(t *testing.T) {
	r := newTestRunner(t, &fakeTasks{})
	pipeline := &Pipeline{Jobs: []Job{{
		Job:   "Test",
		Steps: []Step{{Script: "echo a"}, {Script: "echo b"}},
	}}}

	run, err := r.RunPipeline(context.Background(), pipeline)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	recs := r.Journal.Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 journal records, got %d", len(recs))
	}
	if err := r.Journal.Verify(); err != nil {
		t.Errorf("journal verification failed: %v", err)
	}
	for _, rec := range recs {
		if rec.RunID != run.ID {
			t.Errorf("record carries run %q, want %q", rec.RunID, run.ID)
		}
		if rec.LogHash == "" || rec.LogPath == "" {
			t.Errorf("record missing log reference: %+v", rec)
		}
	}
}

func containsLine(s, line string) bool {
	for _, l := range strings.Split(s, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
