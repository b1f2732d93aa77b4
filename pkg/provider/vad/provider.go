// Package vad defines the Scorer interface for voice-activity detection
// backends.
//
// A scorer wraps a frame-level speech model (e.g., Silero VAD, WebRTC VAD, or
// a plain energy detector) and maps a fixed-size chunk of mono samples to a
// speech probability. Scorers are stateless from the caller's point of view:
// all segmentation state (hysteresis, hangover counting, sample accumulation)
// lives in the gate that drives them.
//
// Implementations must be safe for concurrent use.
package vad

import "context"

// Scorer maps a chunk of mono PCM samples to a speech probability.
//
// Implementations may block on model inference; callers pass a context so a
// slow or wedged backend can be abandoned. A failing scorer is treated by the
// pipeline as "silence", never as a fatal condition, so implementations
// should return honest errors rather than guessing.
type Scorer interface {
	// Score returns the probability in [0, 1] that samples contain speech.
	// samples is mono PCM in [-1, 1] at the pipeline sample rate. The chunk
	// size is chosen by the caller; implementations that require an exact
	// size must document it and return an error on mismatch.
	Score(ctx context.Context, samples []float32) (float64, error)
}
