package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// PhaseReport records one phase of a pipeline run. Detail carries the
// phase's own result struct and marshals into the run report as-is.
type PhaseReport struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
	Detail     any    `json:"detail,omitempty"`
}

// Failed reports whether the phase ended with an error.
func (p *PhaseReport) Failed() bool {
	return p.Error != ""
}

// RunReport summarizes a full pipeline run.
type RunReport struct {
	RunID      string        `json:"runId"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	DurationMs int64         `json:"durationMs"`
	Phases     []PhaseReport `json:"phases"`

	// FlagDistribution is a post-run snapshot of how many carriers hold
	// each risk flag. Only populated when the ledger phase ran.
	FlagDistribution map[string]int64 `json:"flagDistribution,omitempty"`
}

func newRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

// FailedPhases returns the names of phases that ended with an error.
func (r *RunReport) FailedPhases() []string {
	var failed []string
	for _, p := range r.Phases {
		if p.Failed() {
			failed = append(failed, p.Name)
		}
	}
	return failed
}

// Phase returns the report for a named phase, or nil if it did not run.
func (r *RunReport) Phase(name string) *PhaseReport {
	for i := range r.Phases {
		if r.Phases[i].Name == name {
			return &r.Phases[i]
		}
	}
	return nil
}

func (r *RunReport) finish() {
	r.FinishedAt = time.Now().UTC()
	r.DurationMs = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
}
