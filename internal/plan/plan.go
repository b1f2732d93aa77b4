// Package plan recovers a structured action plan from possibly-noisy language
// model output and validates it against the action-plan wire schema.
//
// The model is treated as an unreliable formatter: output is expected to be a
// JSON object but is frequently wrapped in markdown fences or surrounded by
// prose. The parser strips a fence if present, then falls back to scanning
// for the first balanced brace span outside string literals, and only then
// validates the recovered candidate strictly. A blob either yields exactly
// one plan or a typed failure — never a partial plan.
package plan

import (
	"encoding/json"
	"fmt"
)

// Plan is the validated result of interpreting a language model's textual
// output: either a direct reply or an ordered set of skill invocations.
type Plan interface {
	isPlan()
}

// Respond is a plan that answers the user directly with text.
type Respond struct {
	// Text is the reply to synthesise for the user.
	Text string
}

func (Respond) isPlan() {}

// CallSkills is a plan that invokes one or more skills in order.
type CallSkills struct {
	// Calls is the ordered list of skill invocations. Order matters: later
	// skills may depend on earlier side effects.
	Calls []SkillCall
}

func (CallSkills) isPlan() {}

// SkillCall is a single skill invocation within a [CallSkills] plan.
type SkillCall struct {
	// SkillID names the skill handler to invoke.
	SkillID string

	// Arguments is the raw JSON argument object. Always a valid JSON object;
	// defaults to "{}" when the model omitted it. Each skill handler decodes
	// its own typed view.
	Arguments json.RawMessage
}

// ErrorKind discriminates parse failure causes. Each kind is a structurally
// distinct condition the orchestrator may report differently.
type ErrorKind int

const (
	// ErrInvalidJSON means no JSON object could be recovered from the blob,
	// even after fence stripping and brace scanning.
	ErrInvalidJSON ErrorKind = iota

	// ErrMissingType means the recovered object has no "type" field.
	ErrMissingType

	// ErrUnknownType means the "type" field is neither "respond" nor
	// "call_skills".
	ErrUnknownType

	// ErrMissingField means a field required by the declared type is absent
	// or has the wrong shape.
	ErrMissingField
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrInvalidJSON:
		return "invalid_json"
	case ErrMissingType:
		return "missing_type"
	case ErrUnknownType:
		return "unknown_type"
	case ErrMissingField:
		return "missing_field"
	default:
		return "unknown"
	}
}

// ParseError is the typed failure returned by [Parse].
type ParseError struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Detail is a human-readable description of what was wrong.
	Detail string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("plan: %s: %s", e.Kind, e.Detail)
}

// AsParseError returns err as a *ParseError when it is one.
func AsParseError(err error) (*ParseError, bool) {
	pe, ok := err.(*ParseError)
	return pe, ok
}
