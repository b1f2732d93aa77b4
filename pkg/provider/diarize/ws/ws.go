// Package ws implements diarize.Provider against a speaker-embedding service
// over WebSocket. The service (typically a Python sidecar wrapping an ECAPA
// or x-vector model) receives one utterance per connection and replies with
// the diarized segments and their embeddings.
//
// Wire protocol, per connection:
//
//  1. Client sends a JSON text frame: {"sample_rate": 16000, "format": "pcm_f32le"}.
//  2. Client sends the utterance samples as one binary frame of little-endian
//     float32 PCM.
//  3. Server replies with a JSON text frame:
//     {"model": "...", "dimensions": N, "segments": [{"speaker": "...", "embedding": [...]}]}.
//
// A connection per utterance keeps the sidecar stateless; utterances arrive
// every few seconds at most, so dial overhead is negligible next to model
// inference.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/provider/diarize"
)

const (
	defaultDimensions = 192
	defaultTimeout    = 15 * time.Second
)

// Compile-time assertion that Client satisfies diarize.Provider.
var _ diarize.Provider = (*Client)(nil)

// Client talks to a remote embedding service. Safe for concurrent use: each
// Embed call owns its own connection.
type Client struct {
	endpoint   string
	apiKey     string
	dimensions int
	modelID    string
	timeout    time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithAPIKey sets a bearer token sent in the Authorization header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithDimensions sets the expected embedding dimensionality. Defaults to 192
// (ECAPA-TDNN). Responses with a different dimensionality are rejected.
func WithDimensions(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.dimensions = n
		}
	}
}

// WithModelID overrides the model identifier reported by ModelID. Defaults to
// "remote-embedder".
func WithModelID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.modelID = id
		}
	}
}

// WithTimeout bounds a single Embed round trip. Defaults to 15s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a Client for the embedding service at endpoint
// (e.g., "ws://localhost:8765/embed").
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("diarize ws: endpoint must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		dimensions: defaultDimensions,
		modelID:    "remote-embedder",
		timeout:    defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Dimensions implements [diarize.Provider].
func (c *Client) Dimensions() int { return c.dimensions }

// ModelID implements [diarize.Provider].
func (c *Client) ModelID() string { return c.modelID }

// embedRequest is the handshake frame opening an embedding exchange.
type embedRequest struct {
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
}

// embedResponse is the service's reply frame.
type embedResponse struct {
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Error      string `json:"error,omitempty"`
	Segments   []struct {
		Speaker   string    `json:"speaker"`
		Embedding []float32 `json:"embedding"`
	} `json:"segments"`
}

// Embed implements [diarize.Provider].
func (c *Client) Embed(ctx context.Context, u audio.Utterance) ([]diarize.Segment, error) {
	if len(u.Samples) == 0 {
		return nil, errors.New("diarize ws: empty utterance")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}

	conn, _, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("diarize ws: dial %s: %w", c.endpoint, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Embedding payloads can exceed the library's 32 KiB default read limit.
	conn.SetReadLimit(8 << 20)

	header, err := json.Marshal(embedRequest{SampleRate: u.SampleRate, Format: "pcm_f32le"})
	if err != nil {
		return nil, fmt.Errorf("diarize ws: marshal header: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, header); err != nil {
		return nil, fmt.Errorf("diarize ws: send header: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, audio.Float32ToBytes(u.Samples)); err != nil {
		return nil, fmt.Errorf("diarize ws: send audio: %w", err)
	}

	msgType, data, err := conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("diarize ws: read response: %w", err)
	}
	if msgType != websocket.MessageText {
		return nil, fmt.Errorf("diarize ws: unexpected %v response frame", msgType)
	}

	var resp embedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("diarize ws: decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("diarize ws: service error: %s", resp.Error)
	}
	if resp.Dimensions != 0 && resp.Dimensions != c.dimensions {
		return nil, fmt.Errorf("diarize ws: service returned %d-dimensional embeddings, want %d", resp.Dimensions, c.dimensions)
	}

	segments := make([]diarize.Segment, 0, len(resp.Segments))
	for i, s := range resp.Segments {
		if len(s.Embedding) != c.dimensions {
			return nil, fmt.Errorf("diarize ws: segment %d has %d-dimensional embedding, want %d", i, len(s.Embedding), c.dimensions)
		}
		segments = append(segments, diarize.Segment{
			SpeakerToken: s.Speaker,
			Embedding:    s.Embedding,
		})
	}
	return segments, nil
}
