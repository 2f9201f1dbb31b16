package core

import "strings"

// Step is a single entry in a job's step list: either an inline shell
// command (script/bash) or a reference to a built-in task with named inputs.
type Step struct {
	Script string            `yaml:"script"`
	Bash   string            `yaml:"bash"`
	Task   string            `yaml:"task"`
	Inputs map[string]string `yaml:"inputs"`

	DisplayName      string            `yaml:"displayName"`
	Condition        string            `yaml:"condition"`
	Env              map[string]string `yaml:"env"`
	TimeoutMinutes   int               `yaml:"timeoutMinutes"`
	ContinueOnError  bool              `yaml:"continueOnError"`
	WorkingDirectory string            `yaml:"workingDirectory"`
}

// IsTask reports whether the step invokes a built-in task rather than a shell.
func (s *Step) IsTask() bool {
	return s.Task != ""
}

// Command returns the inline shell text of a script/bash step.
func (s *Step) Command() string {
	if s.Script != "" {
		return s.Script
	}
	return s.Bash
}

// Name returns the display name, falling back to the task reference or the
// first line of the command.
func (s *Step) Name() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if s.IsTask() {
		return s.Task
	}
	line := s.Command()
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// forms counts how many executable forms the step declares. Valid steps have
// exactly one.
func (s *Step) forms() int {
	n := 0
	if s.Script != "" {
		n++
	}
	if s.Bash != "" {
		n++
	}
	if s.Task != "" {
		n++
	}
	return n
}
