// Package tasks implements the built-in platform tasks a step may reference
// with `task: Name@version`.
package tasks

import (
	"context"
	"fmt"
	"strings"

	"matrixci/internal/core"
)

// Task is one built-in task implementation.
type Task interface {
	// Ref is the reference steps use, e.g. "PublishTestResults@2".
	Ref() string
	// Run executes the task and returns its output text.
	Run(ctx context.Context, inputs map[string]string, tc core.TaskContext) (string, error)
}

// Registry resolves task references to implementations. It satisfies
// core.TaskRunner.
type Registry struct {
	tasks map[string]Task
}

// NewRegistry builds a registry with the given tasks registered.
func NewRegistry(tasks ...Task) *Registry {
	r := &Registry{tasks: make(map[string]Task)}
	for _, t := range tasks {
		r.Register(t)
	}
	return r
}

// Register adds a task under its canonical reference.
func (r *Registry) Register(t Task) {
	r.tasks[strings.ToLower(t.Ref())] = t
}

// Known reports whether a task reference resolves.
func (r *Registry) Known(ref string) bool {
	_, ok := r.tasks[strings.ToLower(ref)]
	return ok
}

// RunTask looks up the reference and runs the task.
func (r *Registry) RunTask(ctx context.Context, ref string, inputs map[string]string, tc core.TaskContext) (string, error) {
	t, ok := r.tasks[strings.ToLower(ref)]
	if !ok {
		return "", fmt.Errorf("unknown task %q", ref)
	}
	return t.Run(ctx, inputs, tc)
}
