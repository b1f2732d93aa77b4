// Package diarize defines the Provider interface for speaker-embedding and
// diarization backends.
//
// A diarization provider wraps a model that splits an utterance into speaker
// segments and maps each segment to a fixed-length voice embedding (e.g., an
// x-vector or d-vector extractor). The speaker matcher consumes these
// embeddings for identification and enrollment; it never touches the model
// directly.
//
// Implementations must be safe for concurrent use.
package diarize

import (
	"context"

	"github.com/voxenlabs/voxen/pkg/audio"
)

// Segment is one diarized span of an utterance together with the embedding
// summarising its speaker characteristics.
type Segment struct {
	// SpeakerToken is the backend's opaque within-utterance speaker label
	// (e.g., "SPEAKER_00"). Tokens are not stable across utterances.
	SpeakerToken string

	// Embedding is the fixed-length voice embedding for this segment. Its
	// length equals the provider's Dimensions().
	Embedding []float32
}

// Provider is the abstraction over any speaker-embedding backend.
//
// Embeddings from different providers (or different models of the same
// provider) live in different vector spaces and must not be compared; callers
// record ModelID alongside stored embeddings for that reason.
type Provider interface {
	// Embed diarizes the utterance and returns zero or more segments with
	// embeddings. An utterance with no detectable speech yields an empty
	// slice and a nil error.
	Embed(ctx context.Context, utt audio.Utterance) ([]Segment, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider.
	Dimensions() int

	// ModelID returns the backend model identifier (e.g.,
	// "speechbrain/spkrec-ecapa-voxceleb"). Stored with enrolled profiles so
	// that embeddings from different models are never compared.
	ModelID() string
}
