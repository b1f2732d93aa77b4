// Package vadgate converts a continuous speech-probability stream into
// discrete speech-start/continue/end/silence events.
//
// The gate is a two-state hysteresis machine. A single chunk above the speech
// threshold flips it to active immediately, but it only returns to silent
// after a configurable run of consecutive non-speech chunks (the hangover).
// This asymmetry prevents one dropped frame in the middle of a sentence from
// truncating the utterance.
//
// Because scorers consume fixed-size chunks while capture sources deliver
// whatever window size the OS hands them, incoming samples accumulate in an
// internal queue and are scored one full chunk at a time.
package vadgate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxenlabs/voxen/pkg/provider/vad"
)

// EventType enumerates gate transitions.
type EventType int

const (
	// SpeechStart indicates speech has just begun.
	SpeechStart EventType = iota

	// SpeechContinue indicates ongoing speech, including silent chunks still
	// inside the hangover window.
	SpeechContinue

	// SpeechEnd indicates speech has just ended after the hangover elapsed.
	SpeechEnd

	// Silence indicates no speech detected.
	Silence
)

// String returns the human-readable name of the event type.
func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechContinue:
		return "speech_continue"
	case SpeechEnd:
		return "speech_end"
	case Silence:
		return "silence"
	default:
		return "unknown"
	}
}

// Event is a single gate transition together with the probability that
// produced it.
type Event struct {
	Type        EventType
	Probability float64
}

// Config holds the gate parameters.
type Config struct {
	// ChunkSize is the number of samples scored per scorer call. Capture
	// windows smaller than this accumulate until a full chunk is queued.
	// Default 480 (30 ms at 16 kHz). Tests may use much smaller values.
	ChunkSize int

	// SpeechThreshold is the probability at or above which a chunk counts as
	// speech. Default 0.5.
	SpeechThreshold float64

	// SilenceChunks is the number of consecutive non-speech chunks after
	// which an active segment ends. Default 10 (~300 ms hangover at the
	// default chunk size).
	SilenceChunks int
}

const (
	defaultChunkSize       = 480
	defaultSpeechThreshold = 0.5
	defaultSilenceChunks   = 10
)

// Gate is the voice-activity state machine. All methods are safe for
// concurrent use; a single mutex serialises pushes and resets, matching the
// coarse-lock model of [audio.SegmentBuffer].
type Gate struct {
	scorer vad.Scorer
	cfg    Config

	mu         sync.Mutex
	queued     []float32
	active     bool
	silenceRun int

	warnedScorer sync.Once
}

// New creates a Gate driven by scorer. Zero-valued Config fields fall back to
// the package defaults.
func New(scorer vad.Scorer, cfg Config) *Gate {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = defaultSpeechThreshold
	}
	if cfg.SilenceChunks <= 0 {
		cfg.SilenceChunks = defaultSilenceChunks
	}
	return &Gate{
		scorer: scorer,
		cfg:    cfg,
		queued: make([]float32, 0, cfg.ChunkSize*2),
	}
}

// Push appends samples to the internal queue, scores every full chunk that is
// now available, and returns the resulting events in order. Partial chunks
// stay queued for the next call, so callers may push windows of any size.
//
// A scorer failure degrades to probability 0 (silence) rather than
// propagating: detection quality drops but the pipeline keeps running.
func (g *Gate) Push(ctx context.Context, samples []float32) []Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.queued = append(g.queued, samples...)

	var events []Event
	for len(g.queued) >= g.cfg.ChunkSize {
		chunk := g.queued[:g.cfg.ChunkSize]

		p, err := g.scorer.Score(ctx, chunk)
		if err != nil {
			g.warnedScorer.Do(func() {
				slog.Warn("vad gate: scorer failed, degrading to silence", "err", err)
			})
			p = 0
		}

		events = append(events, g.step(p))

		// Retain the tail in place; the scored chunk is no longer needed.
		g.queued = g.queued[:copy(g.queued, g.queued[g.cfg.ChunkSize:])]
	}
	return events
}

// step advances the state machine by one scored chunk. Must be called with
// g.mu held.
func (g *Gate) step(p float64) Event {
	speech := p >= g.cfg.SpeechThreshold

	switch {
	case !g.active && speech:
		g.active = true
		g.silenceRun = 0
		return Event{Type: SpeechStart, Probability: p}

	case g.active && speech:
		g.silenceRun = 0
		return Event{Type: SpeechContinue, Probability: p}

	case g.active && g.silenceRun < g.cfg.SilenceChunks:
		g.silenceRun++
		return Event{Type: SpeechContinue, Probability: p}

	case g.active:
		g.active = false
		g.silenceRun = 0
		return Event{Type: SpeechEnd, Probability: p}

	default:
		return Event{Type: Silence, Probability: p}
	}
}

// Reset clears all internal state: the sample queue, the active flag, and the
// silence counter. Used between enrollment phrases and after each completed
// utterance.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued = g.queued[:0]
	g.active = false
	g.silenceRun = 0
}

// Active reports whether the gate is currently inside a speech segment.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
