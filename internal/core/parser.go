package core

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParsePipeline parses YAML content into a Pipeline and validates it.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var pipeline Pipeline
	if err := yaml.Unmarshal(data, &pipeline); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	if err := pipeline.Validate(); err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// LoadPipeline reads a pipeline file and returns the parsed Pipeline.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePipeline(data)
}

// Validate checks the document for the mistakes the runner cannot tolerate:
// missing steps, ambiguous step forms, duplicate variant names, malformed
// task references and unknown conditions.
func (p *Pipeline) Validate() error {
	if len(p.Jobs) == 0 {
		return fmt.Errorf("pipeline declares no jobs")
	}
	for ji := range p.Jobs {
		job := &p.Jobs[ji]
		if err := job.validate(); err != nil {
			return fmt.Errorf("job %q: %w", job.Name(), err)
		}
	}
	return nil
}

func (j *Job) validate() error {
	if len(j.Steps) == 0 {
		return fmt.Errorf("declares no steps")
	}
	if j.Strategy != nil {
		if j.Strategy.MaxParallel < 0 {
			return fmt.Errorf("maxParallel must not be negative")
		}
		seen := make(map[string]bool)
		for _, v := range j.Strategy.Matrix.Variants {
			if v.Name == "" {
				return fmt.Errorf("matrix variant with empty name")
			}
			if seen[v.Name] {
				return fmt.Errorf("duplicate matrix variant %q", v.Name)
			}
			seen[v.Name] = true
		}
	}
	for si := range j.Steps {
		step := &j.Steps[si]
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d (%s): %w", si+1, step.Name(), err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	switch s.forms() {
	case 0:
		return fmt.Errorf("no script, bash or task given")
	case 1:
	default:
		return fmt.Errorf("script, bash and task are mutually exclusive")
	}
	if s.IsTask() {
		// Task references look like Name@major, e.g. PublishTestResults@2.
		name, _, ok := strings.Cut(s.Task, "@")
		if !ok || name == "" {
			return fmt.Errorf("task reference %q is not of the form Name@version", s.Task)
		}
	}
	if s.TimeoutMinutes < 0 {
		return fmt.Errorf("timeoutMinutes must not be negative")
	}
	if _, err := parseCondition(s.Condition); err != nil {
		return err
	}
	return nil
}
