package verify

import (
	"context"
	"fmt"
	"strings"
)

// Report is the comparison of a program with its lowered form.
type Report struct {
	Original   *Outcome `json:"original"`
	Lowered    *Outcome `json:"lowered"`
	Mismatches []string `json:"mismatches,omitempty"`
}

// Equivalent reports whether both executions exposed the same behavior.
func (r *Report) Equivalent() bool {
	return len(r.Mismatches) == 0
}

func (r *Report) String() string {
	if r.Equivalent() {
		return "equivalent"
	}
	return strings.Join(r.Mismatches, "; ")
}

// Compare runs both programs and lists where they differ: the completion
// value, whether and what they threw, console output and the number of
// assertions that ran. Error messages are not compared, only error names.
func Compare(ctx context.Context, name, original, lowered string) (*Report, error) {
	before, err := Run(ctx, name, original)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	after, err := Run(ctx, name, lowered)
	if err != nil {
		return nil, fmt.Errorf("lowered: %w", err)
	}

	r := &Report{Original: before, Lowered: after}
	if before.Failed() != after.Failed() {
		r.mismatch("original threw %q, lowered threw %q", before.Thrown, after.Thrown)
	} else if before.ThrownName != after.ThrownName {
		r.mismatch("original threw %s, lowered threw %s", before.ThrownName, after.ThrownName)
	}
	if before.Value != after.Value {
		r.mismatch("value %s became %s", before.Value, after.Value)
	}
	if before.Assertions != after.Assertions {
		r.mismatch("%d assertions ran, %d after lowering", before.Assertions, after.Assertions)
	}
	if strings.Join(before.Output, "\n") != strings.Join(after.Output, "\n") {
		r.mismatch("console output differs")
	}
	return r, nil
}

func (r *Report) mismatch(format string, args ...interface{}) {
	r.Mismatches = append(r.Mismatches, fmt.Sprintf(format, args...))
}
