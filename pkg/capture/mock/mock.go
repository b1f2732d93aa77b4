// Package mock provides a test double for the capture.Source interface.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/capture"
)

// Source is a mock implementation of capture.Source. It emits the configured
// Windows in order and then leaves the channel open until Close or ctx
// cancellation, mimicking a quiet live microphone.
type Source struct {
	mu sync.Mutex

	// Windows is the sequence emitted after Start.
	Windows []audio.Window

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// CloseAfterEmit closes the stream once all Windows are sent instead of
	// idling.
	CloseAfterEmit bool

	started bool
	done    chan struct{}
	once    sync.Once
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// Start implements [capture.Source].
func (s *Source) Start(ctx context.Context) (<-chan audio.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.StartErr != nil {
		return nil, s.StartErr
	}
	if s.started {
		return nil, errors.New("mock source: already started")
	}
	s.started = true
	s.done = make(chan struct{})

	out := make(chan audio.Window)
	windows := append([]audio.Window(nil), s.Windows...)
	done := s.done
	closeAfter := s.CloseAfterEmit

	go func() {
		defer close(out)
		for _, w := range windows {
			select {
			case out <- w:
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		if closeAfter {
			return
		}
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()

	return out, nil
}

// Close implements [capture.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}
