// Package energy implements a pure-Go [vad.Scorer] based on RMS signal
// energy. It has no model dependency and is the fallback scorer when no
// neural VAD backend is configured.
//
// The RMS level is mapped onto a probability by linear interpolation between
// a noise floor and a speech ceiling, so the output composes with the same
// probability threshold the gate applies to model-backed scorers.
package energy

import (
	"context"
	"math"

	"github.com/voxenlabs/voxen/pkg/provider/vad"
)

const (
	// defaultNoiseFloor is the RMS level mapped to probability 0.
	defaultNoiseFloor = 0.005

	// defaultSpeechCeiling is the RMS level mapped to probability 1.
	defaultSpeechCeiling = 0.06
)

// Scorer is an energy-based speech probability scorer. The zero value is not
// usable; create instances with [New].
type Scorer struct {
	noiseFloor    float64
	speechCeiling float64
}

// Option is a functional option for configuring a Scorer.
type Option func(*Scorer)

// WithNoiseFloor sets the RMS level treated as certain silence. Default 0.005.
func WithNoiseFloor(level float64) Option {
	return func(s *Scorer) { s.noiseFloor = level }
}

// WithSpeechCeiling sets the RMS level treated as certain speech. Default 0.06.
func WithSpeechCeiling(level float64) Option {
	return func(s *Scorer) { s.speechCeiling = level }
}

// New returns an energy Scorer configured with the supplied options.
func New(opts ...Option) *Scorer {
	s := &Scorer{
		noiseFloor:    defaultNoiseFloor,
		speechCeiling: defaultSpeechCeiling,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score implements [vad.Scorer]. It never returns an error.
func (s *Scorer) Score(_ context.Context, samples []float32) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}

	var sum float64
	for _, v := range samples {
		sum += float64(v) * float64(v)
	}
	rms := math.Sqrt(sum / float64(len(samples)))

	switch {
	case rms <= s.noiseFloor:
		return 0, nil
	case rms >= s.speechCeiling:
		return 1, nil
	default:
		return (rms - s.noiseFloor) / (s.speechCeiling - s.noiseFloor), nil
	}
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)
