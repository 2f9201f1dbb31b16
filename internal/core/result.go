package core

import "time"

// Status of a step or a variant.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StepResult captures the outcome of a single step.
type StepResult struct {
	Variant  string        `json:"variant"`
	Step     string        `json:"step"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exitCode"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	LogPath  string        `json:"logPath,omitempty"`
}

// VariantResult is the outcome of one matrix variant.
type VariantResult struct {
	Name   string       `json:"name"`
	Status Status       `json:"status"`
	Steps  []StepResult `json:"steps"`
}

// RunResult aggregates a whole pipeline run.
type RunResult struct {
	ID       string          `json:"id"`
	Variants []VariantResult `json:"variants"`
	Summary  Summary         `json:"summary"`
}

// Summary holds the counts a caller needs to decide the exit code.
type Summary struct {
	Variants       int           `json:"variants"`
	FailedVariants int           `json:"failedVariants"`
	Steps          int           `json:"steps"`
	Passed         int           `json:"passed"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	Duration       time.Duration `json:"duration"`
}

// ExitCode is non-zero when any variant failed.
func (s Summary) ExitCode() int {
	if s.FailedVariants > 0 {
		return 1
	}
	return 0
}

func summarize(variants []VariantResult, took time.Duration) Summary {
	sum := Summary{Variants: len(variants), Duration: took}
	for _, v := range variants {
		if v.Status == StatusFailed {
			sum.FailedVariants++
		}
		for _, st := range v.Steps {
			sum.Steps++
			switch st.Status {
			case StatusSucceeded:
				sum.Passed++
			case StatusFailed:
				sum.Failed++
			case StatusSkipped:
				sum.Skipped++
			}
		}
	}
	return sum
}
