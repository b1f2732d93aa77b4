// Package capture defines the Source interface for audio inputs feeding the
// assistant pipeline.
//
// A source produces a stream of fixed-format [audio.Window] values — local
// microphone frames, satellite node frames, or synthetic test audio. The
// pipeline consumes windows without caring where they came from; the Source
// tag on each window is carried through to identification and dispatch so
// responses can be routed back to the originating room.
package capture

import (
	"context"

	"github.com/voxenlabs/voxen/pkg/audio"
)

// Source is an audio input feeding the pipeline.
//
// Implementations must close the returned channel when the stream ends,
// whether through ctx cancellation, Close, or an unrecoverable transport
// failure. Windows are dropped rather than buffered unboundedly when the
// consumer falls behind.
type Source interface {
	// Start begins capture and returns the window stream. Calling Start more
	// than once is an error.
	Start(ctx context.Context) (<-chan audio.Window, error)

	// Close stops capture and releases resources. Safe to call multiple
	// times.
	Close() error
}
