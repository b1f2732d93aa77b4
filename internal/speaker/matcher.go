// Package speaker implements voice-based speaker identification: enrollment
// of voice profiles, embedding-distance matching with adaptive per-speaker
// thresholds, and wholesale persistence of the enrolled collection.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/provider/diarize"
)

// Enrollment failure conditions surfaced to the enrollment caller. These are
// structural: enrollment is not retried automatically.
var (
	// ErrTooFewSamples means fewer recordings were supplied than the
	// configured minimum.
	ErrTooFewSamples = errors.New("speaker: too few enrollment samples")

	// ErrNoEmbeddings means no recording produced a usable embedding (no
	// speech segment was detected in any of them).
	ErrNoEmbeddings = errors.New("speaker: no embeddings extracted from enrollment samples")
)

// Config holds the matcher's tuning parameters. Zero values fall back to the
// package defaults.
type Config struct {
	// DefaultThreshold is the global acceptance distance used for profiles
	// without an adaptive threshold and as the fallback when the adaptive
	// computation is non-finite. Default 0.5.
	DefaultThreshold float64

	// MinEnrollmentSamples is the minimum number of separately recorded
	// phrases required to enroll a speaker. Default 8.
	MinEnrollmentSamples int

	// ThresholdFloor is the lower clamp for adaptive thresholds. Default 0.25.
	ThresholdFloor float64

	// ThresholdCeiling is the upper clamp for adaptive thresholds. Default 0.65.
	ThresholdCeiling float64
}

const (
	defaultThreshold        = 0.5
	defaultMinSamples       = 8
	defaultThresholdFloor   = 0.25
	defaultThresholdCeiling = 0.65
)

// Identification is the result of matching an utterance against the enrolled
// collection. An unidentified utterance is a normal outcome, not an error.
type Identification struct {
	// Identified reports whether a speaker was accepted.
	Identified bool

	// SpeakerID and Name describe the accepted speaker. Empty when
	// Identified is false.
	SpeakerID string
	Name      string

	// Distance is the cosine distance to the closest enrolled profile.
	// Meaningful only when at least one profile was compared.
	Distance float64

	// Threshold is the effective acceptance threshold that was applied.
	Threshold float64
}

// Matcher identifies and enrolls speakers. Identification and enrollment are
// long-running (model inference, store I/O) and are serialised at the matcher
// boundary: only one pass runs at a time per instance, so the enrolled
// collection is never written concurrently. Audio capture for the next
// utterance continues unaffected.
type Matcher struct {
	diarizer diarize.Provider
	store    Store
	cfg      Config

	mu       sync.Mutex
	profiles []Profile

	// now is stubbed in tests.
	now func() time.Time
}

// New creates a Matcher and loads the enrolled collection wholesale from
// store. Zero-valued Config fields fall back to the package defaults.
func New(ctx context.Context, diarizer diarize.Provider, store Store, cfg Config) (*Matcher, error) {
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = defaultThreshold
	}
	if cfg.MinEnrollmentSamples <= 0 {
		cfg.MinEnrollmentSamples = defaultMinSamples
	}
	if cfg.ThresholdFloor <= 0 {
		cfg.ThresholdFloor = defaultThresholdFloor
	}
	if cfg.ThresholdCeiling <= 0 {
		cfg.ThresholdCeiling = defaultThresholdCeiling
	}

	profiles, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("speaker: load enrolled profiles: %w", err)
	}

	return &Matcher{
		diarizer: diarizer,
		store:    store,
		cfg:      cfg,
		profiles: profiles,
		now:      time.Now,
	}, nil
}

// Identify matches the utterance against every enrolled profile and accepts
// the closest one when its distance is strictly below the effective
// threshold: max(profile's adaptive threshold or the global default, the
// caller-supplied override). Pass override 0 for no override.
//
// Degraded conditions — embedding failure, no speech segments, no enrolled
// speakers — yield an unidentified result and a nil error. On acceptance the
// matched profile's usage metadata is updated and persisted immediately; a
// persistence failure is logged but does not withdraw the identification,
// since the in-memory state is already accepted.
func (m *Matcher) Identify(ctx context.Context, utt audio.Utterance, override float64) (Identification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	segments, err := m.diarizer.Embed(ctx, utt)
	if err != nil {
		slog.Debug("speaker: embedding failed, returning unidentified", "err", err)
		return Identification{}, nil
	}
	if len(segments) == 0 || len(m.profiles) == 0 {
		return Identification{}, nil
	}

	vectors := make([][]float32, len(segments))
	for i, s := range segments {
		vectors[i] = s.Embedding
	}
	probe, err := AverageEmbeddings(vectors)
	if err != nil {
		slog.Debug("speaker: segment embeddings not averageable, returning unidentified", "err", err)
		return Identification{}, nil
	}

	best := -1
	bestDist := 2.0
	for i := range m.profiles {
		if d := CosineDistance(probe, m.profiles[i].Embedding); d < bestDist {
			bestDist = d
			best = i
		}
	}

	threshold := m.profiles[best].Threshold
	if threshold <= 0 {
		threshold = m.cfg.DefaultThreshold
	}
	if override > threshold {
		threshold = override
	}

	if bestDist >= threshold {
		return Identification{Distance: bestDist, Threshold: threshold}, nil
	}

	// Observable side effect of acceptance: bump usage metadata and persist.
	m.profiles[best].CommandCount++
	m.profiles[best].LastSeen = m.now()
	if err := m.store.Replace(ctx, m.profiles); err != nil {
		slog.Warn("speaker: persisting usage metadata failed", "speaker", m.profiles[best].ID, "err", err)
	}

	return Identification{
		Identified: true,
		SpeakerID:  m.profiles[best].ID,
		Name:       m.profiles[best].Name,
		Distance:   bestDist,
		Threshold:  threshold,
	}, nil
}

// Enroll creates a new speaker profile from separately recorded phrases.
//
// At least Config.MinEnrollmentSamples recordings are required. One embedding
// is extracted per recording independently; recordings with no detectable
// speech segment are discarded, and at least one valid embedding must remain.
// The valid embeddings are averaged into the profile embedding, and the
// per-sample distances to that average drive the adaptive acceptance
// threshold.
//
// The new profile is committed to memory only after the store write succeeds,
// so a persistence failure fails enrollment without corrupting state.
func (m *Matcher) Enroll(ctx context.Context, name string, recordings []audio.Utterance) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(recordings) < m.cfg.MinEnrollmentSamples {
		return Profile{}, fmt.Errorf("%w: got %d, need %d", ErrTooFewSamples, len(recordings), m.cfg.MinEnrollmentSamples)
	}

	var embeddings [][]float32
	for i, rec := range recordings {
		segments, err := m.diarizer.Embed(ctx, rec)
		if err != nil {
			slog.Debug("speaker: enrollment sample embedding failed, discarding", "sample", i, "err", err)
			continue
		}
		if len(segments) == 0 {
			continue // no speech detected in this recording
		}
		vectors := make([][]float32, len(segments))
		for j, s := range segments {
			vectors[j] = s.Embedding
		}
		avg, err := AverageEmbeddings(vectors)
		if err != nil {
			slog.Debug("speaker: enrollment sample not averageable, discarding", "sample", i, "err", err)
			continue
		}
		embeddings = append(embeddings, avg)
	}

	if len(embeddings) == 0 {
		return Profile{}, ErrNoEmbeddings
	}

	centroid, err := AverageEmbeddings(embeddings)
	if err != nil {
		return Profile{}, fmt.Errorf("speaker: average enrollment embeddings: %w", err)
	}

	distances := make([]float64, len(embeddings))
	for i, e := range embeddings {
		distances[i] = CosineDistance(e, centroid)
	}
	threshold := AdaptiveThreshold(distances,
		m.cfg.ThresholdFloor, m.cfg.ThresholdCeiling, m.cfg.DefaultThreshold)

	profile := Profile{
		ID:           uuid.NewString(),
		Name:         name,
		Embedding:    centroid,
		ModelVersion: m.diarizer.ModelID(),
		Threshold:    threshold,
		EnrolledAt:   m.now(),
	}

	next := append(append([]Profile{}, m.profiles...), profile)
	if err := m.store.Replace(ctx, next); err != nil {
		return Profile{}, fmt.Errorf("speaker: persist enrollment: %w", err)
	}
	m.profiles = next

	slog.Info("speaker enrolled",
		"speaker", profile.ID,
		"name", profile.Name,
		"samples", len(embeddings),
		"threshold", profile.Threshold,
	)
	return profile, nil
}

// Remove deletes the speaker with the given ID. Returns [ErrNotFound] if no
// such speaker is enrolled. Like enrollment, the in-memory collection changes
// only after the store write succeeds.
func (m *Matcher) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.profiles {
		if m.profiles[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make([]Profile, 0, len(m.profiles)-1)
	next = append(next, m.profiles[:idx]...)
	next = append(next, m.profiles[idx+1:]...)

	if err := m.store.Replace(ctx, next); err != nil {
		return fmt.Errorf("speaker: persist removal: %w", err)
	}
	m.profiles = next
	return nil
}

// List returns a copy of the enrolled collection.
func (m *Matcher) List() []Profile {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Profile, len(m.profiles))
	copy(out, m.profiles)
	return out
}
