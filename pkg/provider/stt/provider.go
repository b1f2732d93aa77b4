// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// Segmentation happens upstream: the voice activity gate cuts the microphone
// stream into complete utterances before transcription, so a Transcriber
// receives one finished utterance at a time and returns the full text. This
// keeps backends simple — no streaming session management, no partial
// results.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/voxenlabs/voxen/pkg/audio"
)

// Transcriber converts a complete spoken utterance into text.
type Transcriber interface {
	// Transcribe runs speech recognition over u and returns the recognised
	// text with surrounding whitespace trimmed. An empty string with a nil
	// error means the audio contained no recognisable speech.
	Transcribe(ctx context.Context, u audio.Utterance) (string, error)

	// ModelID identifies the loaded model, for logging and health checks.
	ModelID() string
}
