package pipeline

import (
	"time"
)

// Mode names a workflow.
type Mode string

const (
	ModeBuild  Mode = "build"
	ModeNative Mode = "native"
)

// Outcome is the result of one step.
type Outcome string

const (
	OutcomeSuccess  Outcome = "ok"
	OutcomeFailed   Outcome = "failed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeCanceled Outcome = "canceled"
)

// StepResult records one executed step.
type StepResult struct {
	Name     string        `json:"name" yaml:"name"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Files    int64         `json:"files" yaml:"files"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the error the step failed with, if any.
func (s StepResult) Err() error {
	return s.err
}

// Report summarizes one workflow run. Failed steps do not stop the run, so a
// report is the only place a caller sees them.
type Report struct {
	ID       string        `json:"id" yaml:"id"`
	Mode     Mode          `json:"mode" yaml:"mode"`
	Started  time.Time     `json:"started" yaml:"started"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Steps    []StepResult  `json:"steps" yaml:"steps"`
}

// Failed returns the steps that failed.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// OK reports whether every step succeeded or was skipped.
func (r *Report) OK() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed || s.Outcome == OutcomeCanceled {
			return false
		}
	}
	return true
}

// Step returns the result of the named step.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
