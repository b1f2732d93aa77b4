// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Utterance audio.Utterance
}

// Transcriber is a mock implementation of stt.Transcriber. Safe for
// concurrent use.
type Transcriber struct {
	mu sync.Mutex

	// Texts is the sequence of transcripts returned by successive Transcribe
	// calls. The last entry repeats once the sequence is exhausted.
	Texts []string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Model is returned by ModelID. Defaults to "mock-stt" when empty.
	Model string

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall

	calls int
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the next configured text.
func (t *Transcriber) Transcribe(_ context.Context, u audio.Utterance) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Utterance: u})
	if t.TranscribeErr != nil {
		return "", t.TranscribeErr
	}

	var text string
	if len(t.Texts) > 0 {
		text = t.Texts[min(t.calls, len(t.Texts)-1)]
	}
	t.calls++
	return text, nil
}

// ModelID returns Model or "mock-stt".
func (t *Transcriber) ModelID() string {
	if t.Model == "" {
		return "mock-stt"
	}
	return t.Model
}

// Reset clears all recorded calls and rewinds the text sequence.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
	t.calls = 0
}
