package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"matrixci/internal/journal"
	"matrixci/internal/storage"
	"matrixci/pkg/utils"
)

// TaskContext is what a built-in task gets to work with.
type TaskContext struct {
	RunID     string
	Variant   string
	WorkDir   string
	Variables map[string]string
	Failed    bool // whether an earlier step of the variant failed
}

// TaskRunner executes built-in task steps. Wired in by the caller so the
// core does not depend on the task implementations.
type TaskRunner interface {
	RunTask(ctx context.Context, ref string, inputs map[string]string, tc TaskContext) (string, error)
}

// Runner ties together Scheduler + Executor + tasks + log storage + journal.
// Matrix variants run concurrently up to the declared cap; the steps of one
// variant run strictly sequentially.
type Runner struct {
	Scheduler *Scheduler
	Executor  *Executor
	Tasks     TaskRunner
	Logs      *storage.LogStorage
	Journal   *journal.Journal
	Log       *logrus.Logger

	// WorkDir is where per-variant workspaces are created.
	WorkDir string
	// BaseEnv is the ambient environment; defaults to os.Environ().
	BaseEnv []string
}

// NewRunner builds a runner with the usual wiring. The journal is opened
// best-effort, same as the log directory: a run does not abort because its
// audit trail is unavailable.
func NewRunner(workDir string, tasks TaskRunner, log *logrus.Logger) *Runner {
	if log == nil {
		log = logrus.New()
	}
	if err := os.MkdirAll(workDir, 0o775); err != nil {
		log.WithError(err).Warn("cannot create work directory")
	}
	jnl, err := journal.Open(filepath.Join(workDir, "journal.jsonl"))
	if err != nil {
		log.WithError(err).Warn("cannot open run journal")
	}
	return &Runner{
		Scheduler: NewScheduler(),
		Executor:  NewExecutor(),
		Tasks:     tasks,
		Logs:      storage.NewLogStorage(filepath.Join(workDir, "logs")),
		Journal:   jnl,
		Log:       log,
		WorkDir:   workDir,
		BaseEnv:   os.Environ(),
	}
}

// RunPipeline executes every job in document order and aggregates the
// variant outcomes. A failing variant does not abort its siblings; the
// failure shows up in the summary and the exit code.
func (r *Runner) RunPipeline(ctx context.Context, pipeline *Pipeline) (*RunResult, error) {
	run := &RunResult{ID: uuid.NewString()}
	start := time.Now()
	for ji := range pipeline.Jobs {
		job := &pipeline.Jobs[ji]
		results, err := r.runJob(ctx, run.ID, job)
		if err != nil {
			return nil, err
		}
		run.Variants = append(run.Variants, results...)
	}
	run.Summary = summarize(run.Variants, time.Since(start))
	if r.Journal != nil {
		if err := r.Journal.Verify(); err != nil {
			r.Log.WithError(err).Warn("journal verification failed")
		}
	}
	return run, nil
}

func (r *Runner) runJob(ctx context.Context, runID string, job *Job) ([]VariantResult, error) {
	variants := r.Scheduler.Variants(job)
	width := r.Scheduler.ParallelWidth(job)
	r.Log.WithFields(logrus.Fields{
		"run":      runID,
		"job":      job.Name(),
		"variants": len(variants),
		"parallel": width,
	}).Info("starting job")

	results := make([]VariantResult, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(width)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			results[i] = r.runVariant(gctx, runID, variant, job.Steps)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// runVariant runs the step list sequentially in its own workspace. A step
// exiting non-zero marks the variant failed and skips what remains, except
// steps whose condition also holds after a failure.
func (r *Runner) runVariant(ctx context.Context, runID string, variant Variant, steps []Step) VariantResult {
	log := r.Log.WithFields(logrus.Fields{"run": runID, "variant": variant.Name})

	workDir := filepath.Join(r.WorkDir, storage.Sanitize(variant.Name))
	if err := os.MkdirAll(workDir, 0o775); err != nil {
		log.WithError(err).Error("cannot create variant workspace")
		return VariantResult{Name: variant.Name, Status: StatusFailed}
	}

	res := VariantResult{Name: variant.Name, Status: StatusSucceeded}
	failed := false
	var pathPrefix []string

	for si := range steps {
		step := &steps[si]
		name := ExpandMacros(step.Name(), variant.Variables)

		if !shouldRun(step.Condition, failed) {
			res.Steps = append(res.Steps, StepResult{Variant: variant.Name, Step: name, Status: StatusSkipped})
			continue
		}

		log.WithField("step", name).Info("running step")
		sr := r.runStep(ctx, runID, variant, step, name, workDir, pathPrefix, failed)
		if step.Command() != "" {
			// Each directive is a prepend, so the last one printed ends up
			// first on PATH.
			for _, dir := range scanPrependPath(sr.Output) {
				pathPrefix = append([]string{dir}, pathPrefix...)
			}
		}
		res.Steps = append(res.Steps, sr)

		if sr.Status == StatusFailed && !step.ContinueOnError {
			failed = true
			log.WithField("step", name).WithField("exit", sr.ExitCode).Error("step failed")
		}
	}
	if failed {
		res.Status = StatusFailed
	}
	return res
}

func (r *Runner) runStep(ctx context.Context, runID string, variant Variant, step *Step, name, workDir string, pathPrefix []string, priorFailed bool) StepResult {
	sr := StepResult{Variant: variant.Name, Step: name, Status: StatusSucceeded}

	dir := workDir
	if wd := ExpandMacros(step.WorkingDirectory, variant.Variables); wd != "" {
		if filepath.IsAbs(wd) {
			dir = wd
		} else {
			dir = filepath.Join(workDir, wd)
		}
	}

	var output string
	var err error
	start := time.Now()
	if step.IsTask() {
		inputs := make(map[string]string, len(step.Inputs))
		for k, v := range step.Inputs {
			inputs[k] = ExpandMacros(v, variant.Variables)
		}
		output, err = r.Tasks.RunTask(ctx, step.Task, inputs, TaskContext{
			RunID:     runID,
			Variant:   variant.Name,
			WorkDir:   dir,
			Variables: variant.Variables,
			Failed:    priorFailed,
		})
		if err != nil {
			sr.ExitCode = 1
		}
	} else {
		command := ExpandMacros(step.Command(), variant.Variables)
		stepEnv := make(map[string]string, len(step.Env))
		for k, v := range step.Env {
			stepEnv[k] = ExpandMacros(v, variant.Variables)
		}
		env := buildEnv(r.BaseEnv, mergeVars(variant.Variables, stepEnv), pathPrefix)
		timeout := time.Duration(step.TimeoutMinutes) * time.Minute
		var xr *ExecResult
		xr, err = r.Executor.RunShell(ctx, command, dir, env, timeout)
		output = xr.Output
		sr.ExitCode = xr.ExitCode
	}
	sr.Duration = time.Since(start)
	sr.Output = output
	if err != nil {
		sr.Status = StatusFailed
	}

	r.record(runID, variant.Name, name, sr.Status, output, &sr)
	return sr
}

// record saves the step log and appends a journal entry. Both are
// best-effort: a broken audit trail is warned about, never fatal to the run.
func (r *Runner) record(runID, variant, step string, status Status, output string, sr *StepResult) {
	if r.Logs == nil {
		return
	}
	logPath, err := r.Logs.SaveLog(variant, step, output)
	if err != nil {
		r.Log.WithError(err).Warn("cannot save step log")
		return
	}
	sr.LogPath = logPath

	if r.Journal == nil {
		return
	}
	logHash, err := utils.HashFile(logPath)
	if err != nil {
		r.Log.WithError(err).Warn("cannot hash step log")
		return
	}
	// AppendStep links the record under the journal's lock; concurrent
	// variants would otherwise race on index and prev-hash assignment.
	if _, err := r.Journal.AppendStep(runID, variant, step, string(status), logPath, logHash); err != nil {
		r.Log.WithError(err).Warn("cannot append journal record")
	}
}

// PrintSummary writes the human-readable outcome the CLI shows at the end.
func PrintSummary(run *RunResult) string {
	s := run.Summary
	return fmt.Sprintf("run %s: %d variant(s), %d failed; steps: %d passed, %d failed, %d skipped (%s)",
		run.ID, s.Variants, s.FailedVariants, s.Passed, s.Failed, s.Skipped, s.Duration.Round(time.Millisecond))
}
