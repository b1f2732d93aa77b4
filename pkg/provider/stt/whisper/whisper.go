// Package whisper implements stt.Transcriber using the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at startup and shared across all calls; each
// inference creates its own whisper context, which is cheap relative to the
// inference itself and keeps concurrent transcriptions isolated.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/provider/stt"
)

// defaultLanguage is used when no language option is supplied.
const defaultLanguage = "en"

// Compile-time assertion that Transcriber satisfies stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber runs whisper.cpp inference in-process.
type Transcriber struct {
	model    whisperlib.Model
	modelID  string
	language string
	threads  uint
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		if lang != "" {
			t.language = lang
		}
	}
}

// WithThreads sets the number of CPU threads used per inference. Zero keeps
// the whisper.cpp default.
func WithThreads(n uint) Option {
	return func(t *Transcriber) { t.threads = n }
}

// New creates a Transcriber that loads the whisper.cpp model from modelPath.
// The caller must call Close when the transcriber is no longer needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		modelID:  filepath.Base(modelPath),
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// ModelID implements [stt.Transcriber].
func (t *Transcriber) ModelID() string {
	return t.modelID
}

// Transcribe implements [stt.Transcriber]. Inference is CPU-bound and cannot
// be interrupted mid-run; ctx is checked before the work starts.
func (t *Transcriber) Transcribe(ctx context.Context, u audio.Utterance) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(u.Samples) == 0 {
		return "", nil
	}
	if u.SampleRate != audio.DefaultSampleRate {
		return "", fmt.Errorf("whisper: unsupported sample rate %d, want %d", u.SampleRate, audio.DefaultSampleRate)
	}

	// Each whisper context is single-use and not thread-safe; the model
	// itself can be shared across goroutines.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}
	if t.threads > 0 {
		wctx.SetThreads(t.threads)
	}

	if err := wctx.Process(u.Samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
