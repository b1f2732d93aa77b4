// Package mock provides test doubles for the diarize package interfaces.
//
// Use Provider to inject per-call segment results and inspect the utterances
// submitted for embedding.
package mock

import (
	"context"
	"sync"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/provider/diarize"
)

// EmbedCall records a single invocation of Provider.Embed.
type EmbedCall struct {
	// Utterance is the utterance passed to Embed.
	Utterance audio.Utterance
}

// Provider is a mock implementation of diarize.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is the sequence of segment slices returned by successive Embed
	// calls. When exhausted, the last entry repeats. When empty, Embed
	// returns no segments.
	Results [][]diarize.Segment

	// EmbedErr, if non-nil, is returned by every Embed call.
	EmbedErr error

	// Dims is returned by Dimensions. Defaults to 3 when zero.
	Dims int

	// Model is returned by ModelID. Defaults to "mock-embedder-v1" when empty.
	Model string

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall

	next int
}

// Embed records the call and returns the next configured result.
func (p *Provider) Embed(_ context.Context, utt audio.Utterance) ([]diarize.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Utterance: utt})
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if len(p.Results) == 0 {
		return nil, nil
	}
	r := p.Results[min(p.next, len(p.Results)-1)]
	p.next++

	out := make([]diarize.Segment, len(r))
	copy(out, r)
	return out, nil
}

// Dimensions implements diarize.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 3
	}
	return p.Dims
}

// ModelID implements diarize.Provider.
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock-embedder-v1"
	}
	return p.Model
}

// Reset clears all recorded calls and rewinds the result sequence. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.next = 0
}

// Ensure Provider implements diarize.Provider at compile time.
var _ diarize.Provider = (*Provider)(nil)
