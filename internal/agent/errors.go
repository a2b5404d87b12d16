// Package agent implements the analysis pipeline: signal analysis,
// recommendation generation, critique, and the orchestrator that runs the
// stages as a bounded state machine.
package agent

import (
	"errors"
	"fmt"
	"strings"
)

// ModelInvocationError reports a transport or provider failure on a model
// call after the retry budget is exhausted.
type ModelInvocationError struct {
	Stage    string // "analyzer", "generator", or "critic".
	Attempts int    // Total calls made, including retries.
	Err      error
}

func (e *ModelInvocationError) Error() string {
	return fmt.Sprintf("agent: %s: model invocation failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *ModelInvocationError) Unwrap() error { return e.Err }

// SchemaValidationError reports a model response that parsed as JSON but did
// not satisfy the stage's output contract (missing fields, out-of-range
// values, unknown enum labels).
type SchemaValidationError struct {
	Stage string
	Err   error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("agent: %s: response failed validation: %v", e.Stage, e.Err)
}

func (e *SchemaValidationError) Unwrap() error { return e.Err }

// retriable reports whether err is worth another model call. Both transport
// failures and malformed responses are retried within the stage budget;
// everything else (cancellation, programming errors) is not.
func retriable(err error) bool {
	var mErr *ModelInvocationError
	var sErr *SchemaValidationError
	return errors.As(err, &mErr) || errors.As(err, &sErr)
}

// PolicyViolation is a safety rule breached by a draft recommendation.
// Violations are not errors: the pipeline continues, but the recommendation
// is flagged for human review.
type PolicyViolation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v PolicyViolation) String() string {
	return v.Rule + ": " + v.Detail
}

// Critique is the combined verdict of the deterministic policy gate and the
// critic model call. A failed critique is a regeneration signal, not an
// error: the orchestrator regenerates at most once, then finalizes with
// needs_review set.
type Critique struct {
	Passed     bool
	Issues     []string
	Violations []PolicyViolation
}

// Notes flattens the critique into reviewer-facing strings.
func (c Critique) Notes() []string {
	notes := make([]string, 0, len(c.Issues)+len(c.Violations))
	notes = append(notes, c.Issues...)
	for _, v := range c.Violations {
		notes = append(notes, v.String())
	}
	return notes
}

// Summary renders the critique as feedback text for a regeneration prompt.
func (c Critique) Summary() string {
	return strings.Join(c.Notes(), "; ")
}
