package energy_test

import (
	"context"
	"math"
	"testing"

	"github.com/voxenlabs/voxen/pkg/provider/vad/energy"
)

// tone returns n samples of a constant-amplitude signal.
func tone(amplitude float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestScore_Silence(t *testing.T) {
	s := energy.New()
	p, err := s.Score(context.Background(), tone(0.001, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0 {
		t.Errorf("quiet signal: got %v, want 0", p)
	}
}

func TestScore_LoudSpeech(t *testing.T) {
	s := energy.New()
	p, err := s.Score(context.Background(), tone(0.5, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 1 {
		t.Errorf("loud signal: got %v, want 1", p)
	}
}

func TestScore_Interpolates(t *testing.T) {
	s := energy.New(energy.WithNoiseFloor(0.1), energy.WithSpeechCeiling(0.3))
	p, err := s.Score(context.Background(), tone(0.2, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p-0.5) > 1e-6 {
		t.Errorf("mid-level signal: got %v, want 0.5", p)
	}
}

func TestScore_EmptyChunk(t *testing.T) {
	s := energy.New()
	p, err := s.Score(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != 0 {
		t.Errorf("empty chunk: got %v, want 0", p)
	}
}
