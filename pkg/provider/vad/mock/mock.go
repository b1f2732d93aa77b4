// Package mock provides test doubles for the vad package interfaces.
//
// Use Scorer to inject a fixed probability sequence and inspect the chunks
// that were submitted for scoring.
//
// Example:
//
//	sc := &mock.Scorer{Probabilities: []float64{0.1, 0.9, 0.9, 0.1}}
//	gate := vadgate.New(sc, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/voxenlabs/voxen/pkg/provider/vad"
)

// ScoreCall records a single invocation of Scorer.Score.
type ScoreCall struct {
	// Samples is a copy of the chunk passed to Score.
	Samples []float32
}

// Scorer is a mock implementation of vad.Scorer.
type Scorer struct {
	mu sync.Mutex

	// Probabilities is the sequence of scores returned by successive Score
	// calls. When exhausted, the last value repeats. When empty, Score
	// returns 0.
	Probabilities []float64

	// ScoreErr, if non-nil, is returned by every Score call.
	ScoreErr error

	// ScoreCalls records every call to Score in order.
	ScoreCalls []ScoreCall

	next int
}

// Score records the call and returns the next configured probability.
func (s *Scorer) Score(_ context.Context, samples []float32) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]float32, len(samples))
	copy(cp, samples)
	s.ScoreCalls = append(s.ScoreCalls, ScoreCall{Samples: cp})

	if s.ScoreErr != nil {
		return 0, s.ScoreErr
	}
	if len(s.Probabilities) == 0 {
		return 0, nil
	}
	p := s.Probabilities[min(s.next, len(s.Probabilities)-1)]
	s.next++
	return p, nil
}

// Reset clears all recorded calls and rewinds the probability sequence.
// Thread-safe.
func (s *Scorer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ScoreCalls = nil
	s.next = 0
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)
