package audio

import "time"

// SourceLocal is the source tag for windows captured from the host microphone.
// Remote satellite devices use their configured device name instead.
const SourceLocal = "local"

// DefaultSampleRate is the sample rate the pipeline operates at. Capture
// sources are expected to deliver mono PCM at this rate; adapters for other
// rates must resample before handing windows to the pipeline.
const DefaultSampleRate = 16000

// Window represents a single fixed-size chunk of mono audio flowing from a
// capture source into the pipeline. Windows are immutable once produced —
// consumers must not modify Samples.
type Window struct {
	// Samples is mono PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz. Normally [DefaultSampleRate].
	SampleRate int

	// Source identifies where this window was captured: [SourceLocal] for the
	// host microphone, or the name of a remote satellite device.
	Source string

	// Timestamp marks when this window was captured, relative to stream start.
	Timestamp time.Duration
}

// Utterance is a contiguous span of audio judged to be one spoken turn,
// delimited by voice-activity start and end. Utterances are immutable.
type Utterance struct {
	// Samples is mono PCM in the range [-1, 1].
	Samples []float32

	// SampleRate in Hz.
	SampleRate int

	// Source is the capture source tag carried over from the windows that
	// produced this utterance.
	Source string

	// Captured records when the utterance was extracted.
	Captured time.Time
}

// Duration returns the utterance length as wall-clock audio time.
func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(u.Samples)) * time.Second / time.Duration(u.SampleRate)
}
