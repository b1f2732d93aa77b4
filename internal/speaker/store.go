package speaker

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references a speaker ID that is
// not enrolled.
var ErrNotFound = errors.New("speaker: not found")

// Profile is a single enrolled speaker. Profiles are persisted as a flat
// collection: the whole set is loaded at startup and rewritten wholesale on
// every mutation.
type Profile struct {
	// ID is the stable speaker identity, assigned at enrollment.
	ID string `json:"id"`

	// Name is the speaker's display name.
	Name string `json:"name"`

	// Embedding is the averaged enrollment voice embedding.
	Embedding []float32 `json:"embedding"`

	// ModelVersion tags the embedding model that produced Embedding.
	// Embeddings from different models are never compared.
	ModelVersion string `json:"modelVersion"`

	// Threshold is the adaptive per-speaker acceptance threshold computed at
	// enrollment. Zero means unset; the matcher's global default applies.
	Threshold float64 `json:"threshold,omitempty"`

	// EnrolledAt records when the speaker was enrolled.
	EnrolledAt time.Time `json:"enrolledAt"`

	// CommandCount is the number of successfully identified commands.
	CommandCount int `json:"commandCount"`

	// LastSeen is the timestamp of the most recent successful identification.
	LastSeen time.Time `json:"lastSeen,omitzero"`
}

// Store persists the enrolled-speaker collection. Implementations replace the
// entire collection on every write — there is no incremental or append log —
// so a write is a single atomic item from the caller's point of view and a
// cancelled operation can never leave a half-updated store.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load reads the entire enrolled-speaker collection. A store that has
	// never been written returns an empty slice and a nil error.
	Load(ctx context.Context) ([]Profile, error)

	// Replace atomically rewrites the entire collection.
	Replace(ctx context.Context, profiles []Profile) error
}
