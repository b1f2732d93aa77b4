package audio

import (
	"sync"
	"time"
)

// SegmentBuffer is a fixed-capacity rolling buffer of mono samples with a
// movable speech-start marker. The capture callback appends windows at the
// tail while a consumer extracts whole utterances, so every operation locks
// the same mutex. The critical sections are tiny (windows are tens of
// milliseconds, extraction happens once per utterance), which keeps the
// coarse lock cheap.
//
// The speech-start marker records where in the buffer the detector fired,
// minus a short lookback pre-roll that compensates for detector latency.
// When old samples are trimmed to honour the capacity bound, the marker is
// shifted down by the trimmed amount (floored at zero) so its distance from
// the live edge is preserved.
type SegmentBuffer struct {
	mu         sync.Mutex
	samples    []float32
	capacity   int
	lookback   int
	start      int
	sampleRate int
	source     string
}

// NewSegmentBuffer creates a buffer that retains at most capacity samples and
// applies a lookback pre-roll of lookback samples when marking speech start.
// Both values are sample counts; use [DurationToSamples] to derive them from
// wall-clock durations.
func NewSegmentBuffer(capacity, lookback int) *SegmentBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if lookback < 0 {
		lookback = 0
	}
	return &SegmentBuffer{
		samples:    make([]float32, 0, capacity),
		capacity:   capacity,
		lookback:   lookback,
		sampleRate: DefaultSampleRate,
		source:     SourceLocal,
	}
}

// DurationToSamples converts a wall-clock duration to a sample count at the
// given rate.
func DurationToSamples(d time.Duration, sampleRate int) int {
	return int(d * time.Duration(sampleRate) / time.Second)
}

// Append adds the window's samples to the tail of the buffer, trimming from
// the head once the total length exceeds the configured capacity. The window's
// sample rate and source tag are recorded for the next extracted utterance.
func (b *SegmentBuffer) Append(w Window) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w.SampleRate > 0 {
		b.sampleRate = w.SampleRate
	}
	if w.Source != "" {
		b.source = w.Source
	}

	b.samples = append(b.samples, w.Samples...)
	if over := len(b.samples) - b.capacity; over > 0 {
		// Copy to a fresh backing array so the evicted head does not pin memory.
		kept := make([]float32, b.capacity, b.capacity)
		copy(kept, b.samples[over:])
		b.samples = kept

		// Re-base the marker: keep its distance from the live edge.
		b.start -= over
		if b.start < 0 {
			b.start = 0
		}
	}
}

// MarkSpeechStart records the speech-start marker at the current length minus
// the lookback pre-roll, floored at zero. The pre-roll guarantees the next
// extracted utterance includes a short run-up before the detector fired.
func (b *SegmentBuffer) MarkSpeechStart() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.start = len(b.samples) - b.lookback
	if b.start < 0 {
		b.start = 0
	}
}

// ExtractUtteranceSinceStart returns every sample from the recorded
// speech-start marker to the tail as a new immutable [Utterance], then clears
// the marker. A given marker yields at most one utterance; a second call
// without a new [SegmentBuffer.MarkSpeechStart] returns from index zero.
func (b *SegmentBuffer) ExtractUtteranceSinceStart() Utterance {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]float32, len(b.samples)-b.start)
	copy(out, b.samples[b.start:])
	b.start = 0

	return Utterance{
		Samples:    out,
		SampleRate: b.sampleRate,
		Source:     b.source,
		Captured:   time.Now(),
	}
}

// Clear empties the buffer and resets the speech-start marker. Used between
// listening sessions and after a session reset.
func (b *SegmentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.start = 0
}

// Len returns the current number of buffered samples.
func (b *SegmentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// SpeechStart returns the current speech-start marker index. Intended for
// testing and debugging.
func (b *SegmentBuffer) SpeechStart() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start
}
