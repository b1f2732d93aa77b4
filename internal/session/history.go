// Package session holds per-conversation state that outlives a single
// pipeline pass, chiefly the bounded turn history fed back into planning
// prompts.
package session

import (
	"sync"
	"time"

	"github.com/voxenlabs/voxen/pkg/provider/llm"
)

// DefaultMaxTurns bounds the history when no limit is configured. At two
// messages per exchange this keeps roughly eight exchanges of context.
const DefaultMaxTurns = 16

// Turn is one message in the conversation history.
type Turn struct {
	// Role is "user" or "assistant".
	Role string

	// SpeakerName is the identified speaker for user turns, empty otherwise.
	SpeakerName string

	// Content is the turn's text: the transcript for user turns, the spoken
	// reply for assistant turns.
	Content string

	// At is when the turn was recorded.
	At time.Time
}

// History is a bounded conversation log. When the limit is reached the oldest
// turns are evicted, so the planner always sees the most recent exchanges.
// Safe for concurrent use.
type History struct {
	mu       sync.Mutex
	turns    []Turn
	maxTurns int
	now      func() time.Time
}

// NewHistory creates a History bounded to maxTurns. A non-positive limit
// uses [DefaultMaxTurns].
func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &History{maxTurns: maxTurns, now: time.Now}
}

// AddUser records a user turn.
func (h *History) AddUser(speakerName, content string) {
	h.add(Turn{Role: "user", SpeakerName: speakerName, Content: content})
}

// AddAssistant records an assistant turn.
func (h *History) AddAssistant(content string) {
	h.add(Turn{Role: "assistant", Content: content})
}

func (h *History) add(t Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	t.At = h.now()
	h.turns = append(h.turns, t)
	if over := len(h.turns) - h.maxTurns; over > 0 {
		// Re-slice onto a fresh array so evicted turns can be collected.
		kept := make([]Turn, h.maxTurns)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Turns returns a snapshot of the history, oldest first.
func (h *History) Turns() []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns...)
}

// Len returns the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Messages renders the history as LLM conversation messages, oldest first.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := make([]llm.Message, 0, len(h.turns))
	for _, t := range h.turns {
		msgs = append(msgs, llm.Message{
			Role:    t.Role,
			Name:    t.SpeakerName,
			Content: t.Content,
		})
	}
	return msgs
}

// Clear discards all turns.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
