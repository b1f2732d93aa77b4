// Package mock provides a test double for the [skill.Handler] interface.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/voxenlabs/voxen/internal/skill"
)

// Handler is a mock implementation of [skill.Handler] that records calls and
// returns configurable results. Safe for concurrent use.
type Handler struct {
	mu sync.Mutex

	// Result is returned by Execute when Err is nil.
	Result skill.Result

	// Err is returned by Execute when non-nil.
	Err error

	// ExecuteFn, when non-nil, overrides Result/Err entirely.
	ExecuteFn func(ctx context.Context, args json.RawMessage, req skill.RequestContext) (skill.Result, error)

	// ExecuteCalls records every Execute invocation in order.
	ExecuteCalls []ExecuteCall
}

// ExecuteCall records the arguments of one Execute invocation.
type ExecuteCall struct {
	Args    json.RawMessage
	Request skill.RequestContext
}

// Ensure Handler implements skill.Handler at compile time.
var _ skill.Handler = (*Handler)(nil)

// Execute implements [skill.Handler].
func (h *Handler) Execute(ctx context.Context, args json.RawMessage, req skill.RequestContext) (skill.Result, error) {
	h.mu.Lock()
	h.ExecuteCalls = append(h.ExecuteCalls, ExecuteCall{Args: append(json.RawMessage(nil), args...), Request: req})
	h.mu.Unlock()

	if h.ExecuteFn != nil {
		return h.ExecuteFn(ctx, args, req)
	}
	return h.Result, h.Err
}

// Calls returns a snapshot of the recorded invocations.
func (h *Handler) Calls() []ExecuteCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ExecuteCall(nil), h.ExecuteCalls...)
}

// Reset clears all recorded calls.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ExecuteCalls = nil
}
