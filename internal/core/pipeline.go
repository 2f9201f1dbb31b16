package core

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Pipeline is the whole configuration document. The usual case is a single
// job; several jobs run in document order.
type Pipeline struct {
	Jobs []Job `yaml:"jobs"`
}

// Job is one matrix job: a pool selector, an optional strategy and an
// ordered list of steps.
type Job struct {
	Job         string            `yaml:"job"`
	DisplayName string            `yaml:"displayName"`
	Pool        Pool              `yaml:"pool"`
	Strategy    *Strategy         `yaml:"strategy"`
	Variables   map[string]string `yaml:"variables"`
	Steps       []Step            `yaml:"steps"`
}

// Name returns the display name, falling back to the job id.
func (j *Job) Name() string {
	if j.DisplayName != "" {
		return j.DisplayName
	}
	return j.Job
}

// Pool selects the agent image a job runs on. Accepts both the mapping form
// (vmImage: ubuntu-16.04) and a bare scalar pool name.
type Pool struct {
	VMImage string `yaml:"vmImage"`
	Name    string `yaml:"name"`
}

func (p *Pool) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		p.Name = node.Value
		return nil
	}
	type plain Pool
	return node.Decode((*plain)(p))
}

// Strategy declares the matrix variants and how many may run at once.
// MaxParallel of zero means unbounded.
type Strategy struct {
	Matrix      Matrix `yaml:"matrix"`
	MaxParallel int    `yaml:"maxParallel"`
}

// Matrix is the ordered set of named variants. Order follows the document so
// variant numbering stays reproducible run to run.
type Matrix struct {
	Variants []MatrixVariant
}

// MatrixVariant is one named set of variable bindings.
type MatrixVariant struct {
	Name      string
	Variables map[string]string
}

func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("matrix must be a mapping of variant names")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		vars := make(map[string]string)
		if err := node.Content[i+1].Decode(&vars); err != nil {
			return fmt.Errorf("matrix variant %q: %w", name, err)
		}
		m.Variants = append(m.Variants, MatrixVariant{Name: name, Variables: vars})
	}
	return nil
}
