package audio_test

import (
	"sync"
	"testing"

	"github.com/voxenlabs/voxen/pkg/audio"
)

// ramp returns n float32 samples counting up from start.
func ramp(start, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(start + i)
	}
	return out
}

func window(samples []float32) audio.Window {
	return audio.Window{Samples: samples, SampleRate: 16000, Source: audio.SourceLocal}
}

func TestSegmentBuffer_CapacityBound(t *testing.T) {
	buf := audio.NewSegmentBuffer(100, 10)

	for i := 0; i < 50; i++ {
		buf.Append(window(ramp(i*7, 7)))
		if got := buf.Len(); got > 100 {
			t.Fatalf("after append %d: length %d exceeds capacity 100", i, got)
		}
	}
	if got := buf.Len(); got != 100 {
		t.Errorf("final length: got %d, want 100", got)
	}
}

func TestSegmentBuffer_MarkAndExtract(t *testing.T) {
	buf := audio.NewSegmentBuffer(1000, 5)

	buf.Append(window(ramp(0, 20)))
	buf.MarkSpeechStart()
	buf.Append(window(ramp(20, 10)))

	utt := buf.ExtractUtteranceSinceStart()

	// Marker was 20 - 5 lookback = 15; utterance spans [15, 30).
	if got := len(utt.Samples); got != 15 {
		t.Fatalf("utterance length: got %d, want 15", got)
	}
	if utt.Samples[0] != 15 {
		t.Errorf("first sample: got %v, want 15", utt.Samples[0])
	}
	if utt.Samples[14] != 29 {
		t.Errorf("last sample: got %v, want 29", utt.Samples[14])
	}
	if utt.SampleRate != 16000 {
		t.Errorf("sample rate: got %d, want 16000", utt.SampleRate)
	}
	if utt.Source != audio.SourceLocal {
		t.Errorf("source: got %q, want %q", utt.Source, audio.SourceLocal)
	}
}

func TestSegmentBuffer_MarkLookbackFloorsAtZero(t *testing.T) {
	buf := audio.NewSegmentBuffer(1000, 50)

	// Only 10 samples buffered; lookback 50 must floor the marker at 0.
	buf.Append(window(ramp(0, 10)))
	buf.MarkSpeechStart()

	if got := buf.SpeechStart(); got != 0 {
		t.Fatalf("marker: got %d, want 0", got)
	}
	utt := buf.ExtractUtteranceSinceStart()
	if got := len(utt.Samples); got != 10 {
		t.Errorf("utterance length: got %d, want 10", got)
	}
}

func TestSegmentBuffer_ExtractClearsMarker(t *testing.T) {
	buf := audio.NewSegmentBuffer(1000, 0)

	buf.Append(window(ramp(0, 10)))
	buf.MarkSpeechStart()
	buf.Append(window(ramp(10, 5)))

	first := buf.ExtractUtteranceSinceStart()
	if got := len(first.Samples); got != 5 {
		t.Fatalf("first extract: got %d samples, want 5", got)
	}

	// Second extract without a new mark starts from index 0 and returns the
	// whole buffer.
	second := buf.ExtractUtteranceSinceStart()
	if got := len(second.Samples); got != 15 {
		t.Fatalf("second extract: got %d samples, want 15", got)
	}
	if second.Samples[0] != 0 {
		t.Errorf("second extract first sample: got %v, want 0", second.Samples[0])
	}
}

func TestSegmentBuffer_TrimRebasesMarker(t *testing.T) {
	buf := audio.NewSegmentBuffer(30, 0)

	buf.Append(window(ramp(0, 20)))
	buf.MarkSpeechStart() // marker at 20

	// Appending 20 more samples trims 10 from the head; marker shifts to 10.
	buf.Append(window(ramp(20, 20)))
	if got := buf.SpeechStart(); got != 10 {
		t.Fatalf("marker after trim: got %d, want 10", got)
	}

	utt := buf.ExtractUtteranceSinceStart()
	if got := len(utt.Samples); got != 20 {
		t.Fatalf("utterance length: got %d, want 20", got)
	}
	// The marker still points at sample value 20 — the lookback distance from
	// the live edge was preserved across the trim.
	if utt.Samples[0] != 20 {
		t.Errorf("first sample: got %v, want 20", utt.Samples[0])
	}
}

func TestSegmentBuffer_MarkerFlooredAtZeroAfterHeavyTrim(t *testing.T) {
	buf := audio.NewSegmentBuffer(10, 0)

	buf.Append(window(ramp(0, 10)))
	buf.MarkSpeechStart()
	// Evict far more than the marker offset.
	buf.Append(window(ramp(10, 100)))

	if got := buf.SpeechStart(); got != 0 {
		t.Fatalf("marker: got %d, want 0", got)
	}
	if got := buf.Len(); got != 10 {
		t.Fatalf("length: got %d, want 10", got)
	}
}

func TestSegmentBuffer_Clear(t *testing.T) {
	buf := audio.NewSegmentBuffer(100, 5)

	buf.Append(window(ramp(0, 50)))
	buf.MarkSpeechStart()
	buf.Clear()

	if got := buf.Len(); got != 0 {
		t.Errorf("length after clear: got %d, want 0", got)
	}
	if got := buf.SpeechStart(); got != 0 {
		t.Errorf("marker after clear: got %d, want 0", got)
	}
}

func TestSegmentBuffer_ConcurrentAppendExtract(t *testing.T) {
	buf := audio.NewSegmentBuffer(16000, 100)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			buf.Append(window(ramp(i, 160)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			buf.MarkSpeechStart()
			_ = buf.ExtractUtteranceSinceStart()
		}
	}()
	wg.Wait()

	if got := buf.Len(); got > 16000 {
		t.Errorf("length %d exceeds capacity after concurrent use", got)
	}
}

func TestDurationToSamples(t *testing.T) {
	tests := []struct {
		ms   int
		rate int
		want int
	}{
		{ms: 300, rate: 16000, want: 4800},
		{ms: 30, rate: 16000, want: 480},
		{ms: 1000, rate: 8000, want: 8000},
		{ms: 0, rate: 16000, want: 0},
	}
	for _, tt := range tests {
		got := audio.DurationToSamples(msToDuration(tt.ms), tt.rate)
		if got != tt.want {
			t.Errorf("DurationToSamples(%dms, %d): got %d, want %d", tt.ms, tt.rate, got, tt.want)
		}
	}
}
