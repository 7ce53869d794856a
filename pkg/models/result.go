package models

import (
	"time"

	"github.com/lcalzada-xor/declass/pkg/lower"
)

type Status string

const (
	StatusLowered   Status = "lowered"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Verification is the outcome of running a unit before and after lowering.
type Verification struct {
	Equivalent bool     `json:"equivalent"`
	Mismatches []string `json:"mismatches,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Result is what happened to one input.
type Result struct {
	Input       Input               `json:"input"`
	Status      Status              `json:"status"`
	Output      string              `json:"output,omitempty"`
	Scripts     int                 `json:"scripts,omitempty"`
	Classes     []lower.ClassReport `json:"classes,omitempty"`
	Diagnostics []lower.Diagnostic  `json:"diagnostics,omitempty"`
	Error       string              `json:"error,omitempty"`
	Verify      *Verification       `json:"verify,omitempty"`
	Cached      bool                `json:"cached,omitempty"`
	Duration    time.Duration       `json:"duration"`
	// Code is the lowered unit. It is written to the output, not reported.
	Code string `json:"-"`
}

// Stats sums up a run.
type Stats struct {
	Inputs   int `json:"inputs"`
	Lowered  int `json:"lowered"`
	Failed   int `json:"failed"`
	Classes  int `json:"classes"`
	Retained int `json:"retained"`
	Cached   int `json:"cached"`

	// Mismatched counts verified inputs that behaved differently.
	Mismatched int `json:"mismatched"`
}

// Add counts one result.
func (s *Stats) Add(r *Result) {
	s.Inputs++
	switch r.Status {
	case StatusLowered:
		s.Lowered++
	case StatusFailed:
		s.Failed++
	}
	if r.Cached {
		s.Cached++
	}
	if r.Verify != nil && !r.Verify.Equivalent {
		s.Mismatched++
	}
	s.Classes += len(r.Classes)
	for _, c := range r.Classes {
		if c.Retained {
			s.Retained++
		}
	}
}
