// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends correct
// CompletionRequests and to feed controlled plan text without a live backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{`{"type":"respond","text":"Hello!"}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/voxenlabs/voxen/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause Complete to return an empty response.
// Set CompleteErr to inject errors.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of completion contents returned by successive
	// Complete calls. The last entry repeats once the sequence is exhausted.
	Responses []string

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// Model is returned by ModelID. Defaults to "mock-llm" when empty.
	Model string

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	calls int
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next configured response.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req})
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}

	var content string
	if len(p.Responses) > 0 {
		content = p.Responses[min(p.calls, len(p.Responses)-1)]
	}
	p.calls++
	return &llm.CompletionResponse{Content: content}, nil
}

// ModelID returns Model or "mock-llm".
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-llm"
	}
	return p.Model
}

// Reset clears all recorded calls and rewinds the response sequence.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.calls = 0
}
