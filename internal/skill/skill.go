// Package skill implements the dispatch layer between validated action plans
// and the registered skill handlers, including deferred yes/no confirmations.
//
// A skill is a named, independently implemented capability. Handlers are
// registered in a [Registry] under their string id; the [Dispatcher] resolves
// each plan entry against the registry and executes the calls sequentially in
// plan order, folding per-call failures into the aggregate result set instead
// of aborting sibling calls.
package skill

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// RequestContext carries metadata about the user request that produced a
// skill invocation.
type RequestContext struct {
	// RequestID uniquely identifies the pipeline pass handling this request.
	RequestID string

	// SpeakerID and SpeakerName describe the identified speaker. Both are
	// empty for unidentified requests.
	SpeakerID   string
	SpeakerName string

	// Utterance is the transcribed user text that produced the plan.
	Utterance string

	// Source is the capture source tag of the originating audio.
	Source string
}

// Result is a successful handler outcome. Content is folded into the
// response composition in plan order.
type Result struct {
	Content string
}

// ConfirmationRequired is returned as an error by handlers whose effect must
// not run until the user explicitly confirms (e.g., "delete all reminders?").
// The dispatcher records a pending confirmation instead of a result.
type ConfirmationRequired struct {
	// Prompt is the yes/no question to put to the user.
	Prompt string
}

// Error implements the error interface.
func (e *ConfirmationRequired) Error() string {
	return fmt.Sprintf("skill: confirmation required: %s", e.Prompt)
}

// Handler executes a single skill. Implementations decode their own typed
// view of args — the dispatcher never inspects argument contents.
//
// Implementations must respect context cancellation: the dispatcher applies a
// per-call timeout so one slow skill cannot stall unrelated future calls.
type Handler interface {
	Execute(ctx context.Context, args json.RawMessage, req RequestContext) (Result, error)
}

// HandlerFunc adapts a function to the [Handler] interface.
type HandlerFunc func(ctx context.Context, args json.RawMessage, req RequestContext) (Result, error)

// Execute implements [Handler].
func (f HandlerFunc) Execute(ctx context.Context, args json.RawMessage, req RequestContext) (Result, error) {
	return f(ctx, args, req)
}

// Definition is a skill's LLM-facing schema plus dispatch metadata.
type Definition struct {
	// ID is the skill's unique identifier (e.g., "weather.forecast").
	ID string

	// Description explains what the skill does; included in LLM prompts.
	Description string

	// Parameters is the JSON Schema describing the skill's argument object.
	Parameters map[string]any

	// Timeout is the per-call execution budget. Zero uses the dispatcher
	// default.
	Timeout time.Duration
}

// Registration pairs a definition with its handler.
type Registration struct {
	Definition Definition
	Handler    Handler
}

// Registry maps skill ids to handlers. Registration normally happens at load
// time; lookups run on every dispatched call. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	order   []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a handler under def.ID. Returns an error on an empty id, a
// nil handler, or a duplicate registration.
func (r *Registry) Register(def Definition, h Handler) error {
	if def.ID == "" {
		return fmt.Errorf("skill: definition has no id")
	}
	if h == nil {
		return fmt.Errorf("skill: nil handler for %q", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.ID]; exists {
		return fmt.Errorf("skill: %q already registered", def.ID)
	}
	r.entries[def.ID] = Registration{Definition: def, Handler: h}
	r.order = append(r.order, def.ID)
	return nil
}

// Lookup returns the registration for id.
func (r *Registry) Lookup(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[id]
	return reg, ok
}

// Definitions returns all registered definitions in registration order,
// forming the tool manifest offered to the language model.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Definition)
	}
	return out
}
