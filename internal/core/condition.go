package core

import (
	"fmt"
	"strings"
)

// Step conditions are the three forms the platform defines. The default is
// succeeded(): run only while no earlier step of the variant has failed.
// succeededOrFailed() and always() also run after a failure; that is how the
// result-publishing step uploads its report even when the tests failed.
type condition int

const (
	condSucceeded condition = iota
	condSucceededOrFailed
	condAlways
)

func parseCondition(s string) (condition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "succeeded()":
		return condSucceeded, nil
	case "succeededorfailed()":
		return condSucceededOrFailed, nil
	case "always()":
		return condAlways, nil
	default:
		return 0, fmt.Errorf("unknown condition %q", s)
	}
}

// shouldRun decides whether a step runs given whether an earlier step of the
// same variant failed. Conditions are validated at parse time, so an unknown
// string here means the step never ran through Validate; treat it as the
// default.
func shouldRun(cond string, priorFailed bool) bool {
	c, err := parseCondition(cond)
	if err != nil {
		c = condSucceeded
	}
	switch c {
	case condSucceededOrFailed, condAlways:
		return true
	default:
		return !priorFailed
	}
}
