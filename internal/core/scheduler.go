package core

// Scheduler expands a job's strategy matrix into the concrete variants to
// run and decides how wide the matrix may fan out.
type Scheduler struct{}

// NewScheduler creates a new scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Variant is one materialized copy of a job: a name and the merged variable
// bindings (job variables overlaid by the matrix bindings).
type Variant struct {
	Name      string
	Variables map[string]string
}

// Variants returns the job's variants in document order. A job without a
// matrix yields a single implicit variant carrying only the job variables.
func (s *Scheduler) Variants(job *Job) []Variant {
	if job.Strategy == nil || len(job.Strategy.Matrix.Variants) == 0 {
		return []Variant{{
			Name:      job.Name(),
			Variables: mergeVars(job.Variables),
		}}
	}
	variants := make([]Variant, 0, len(job.Strategy.Matrix.Variants))
	for _, mv := range job.Strategy.Matrix.Variants {
		variants = append(variants, Variant{
			Name:      mv.Name,
			Variables: mergeVars(job.Variables, mv.Variables),
		})
	}
	return variants
}

// ParallelWidth returns how many variants may run at once: the declared
// maxParallel capped at the variant count, or the variant count when no cap
// is declared.
func (s *Scheduler) ParallelWidth(job *Job) int {
	n := len(s.Variants(job))
	if job.Strategy == nil || job.Strategy.MaxParallel <= 0 {
		return n
	}
	if job.Strategy.MaxParallel < n {
		return job.Strategy.MaxParallel
	}
	return n
}
