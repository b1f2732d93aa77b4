// Package satellite implements capture.Source for remote microphone nodes.
//
// A satellite is a small device (Raspberry Pi, ESP32 gateway) in another room
// that captures audio locally and streams it to the assistant host. Frames
// travel over a WebSocket connection as Opus packets — 16 kHz mono, 20 ms per
// frame — which keeps satellite uplink bandwidth around 24 kbit/s instead of
// the 512 kbit/s raw PCM would need.
package satellite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"layeh.com/gopus"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/capture"
)

// Satellites encode 16 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 16000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 320
)

// Compile-time assertion that Source satisfies capture.Source.
var _ capture.Source = (*Source)(nil)

// Source streams audio from one satellite node.
type Source struct {
	endpoint string
	name     string
	apiKey   string

	mu      sync.Mutex
	started bool
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithAPIKey sets a bearer token sent in the Authorization header.
func WithAPIKey(key string) Option {
	return func(s *Source) { s.apiKey = key }
}

// WithLogger sets the logger for transport warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Source for the satellite at endpoint
// (e.g., "ws://kitchen.local:9090/audio"). name tags every emitted window so
// the pipeline can route responses back to the right room.
func New(endpoint, name string, opts ...Option) (*Source, error) {
	if endpoint == "" {
		return nil, errors.New("satellite: endpoint must not be empty")
	}
	if name == "" {
		return nil, errors.New("satellite: name must not be empty")
	}
	s := &Source{
		endpoint: endpoint,
		name:     name,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Start implements [capture.Source]. The receive loop reconnects with backoff
// on transport failures until ctx is cancelled or Close is called.
func (s *Source) Start(ctx context.Context) (<-chan audio.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, errors.New("satellite: already started")
	}
	s.started = true
	s.done = make(chan struct{})

	out := make(chan audio.Window, 64)
	go s.receiveLoop(ctx, out)
	return out, nil
}

// Close implements [capture.Source].
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

func (s *Source) receiveLoop(ctx context.Context, out chan<- audio.Window) {
	defer close(out)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		err := s.streamOnce(ctx, out)
		if err == nil || ctx.Err() != nil || s.closed() {
			return
		}

		s.logger.Warn("satellite stream interrupted, reconnecting",
			"satellite", s.name, "error", err, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (s *Source) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// streamOnce holds one connection open, decoding frames until it breaks.
// Each connection gets a fresh decoder: Opus decoder state is only valid
// within a contiguous frame sequence.
func (s *Source) streamOnce(ctx context.Context, out chan<- audio.Window) error {
	headers := http.Header{}
	if s.apiKey != "" {
		headers.Set("Authorization", "Bearer "+s.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, s.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return fmt.Errorf("satellite: dial %s: %w", s.endpoint, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return fmt.Errorf("satellite: create opus decoder: %w", err)
	}

	start := time.Now()
	for {
		select {
		case <-s.done:
			return nil
		default:
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("satellite: read frame: %w", err)
		}
		if msgType != websocket.MessageBinary {
			// Text frames are satellite keepalives.
			continue
		}

		pcm, err := dec.Decode(data, opusFrameSize, false)
		if err != nil {
			s.logger.Warn("satellite frame decode failed, skipping",
				"satellite", s.name, "error", err)
			continue
		}

		w := audio.Window{
			Samples:    audio.Int16ToFloat32(pcm),
			SampleRate: opusSampleRate,
			Source:     "satellite:" + s.name,
			Timestamp:  time.Since(start),
		}
		select {
		case out <- w:
		default:
			// Consumer is behind; drop the frame rather than stall capture.
		}
	}
}
