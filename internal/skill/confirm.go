package skill

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
)

// Decision classifies the user's reply to a pending confirmation prompt.
type Decision int

const (
	// DecisionNone means the reply matched no confirmation vocabulary; the
	// utterance is an unrelated request and should flow on to the planner.
	DecisionNone Decision = iota
	// DecisionAffirm executes the deferred call.
	DecisionAffirm
	// DecisionDeny discards the deferred call with an acknowledgement.
	DecisionDeny
	// DecisionCancel discards the deferred call silently.
	DecisionCancel
)

// String returns the decision name for logging.
func (d Decision) String() string {
	switch d {
	case DecisionAffirm:
		return "affirm"
	case DecisionDeny:
		return "deny"
	case DecisionCancel:
		return "cancel"
	default:
		return "none"
	}
}

// Pending is a deferred skill call awaiting the user's yes/no.
type Pending struct {
	SkillID   string
	Arguments json.RawMessage
	Prompt    string
	Request   RequestContext
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Confirmation vocabulary. Multi-word entries are matched against the whole
// normalized utterance; single words against individual tokens.
var (
	affirmWords = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "affirmative", "please do", "go ahead", "do it"}
	denyWords   = []string{"no", "nope", "nah", "negative", "don't", "do not"}
	cancelWords = []string{"cancel", "stop", "abort", "forget it", "never mind", "nevermind"}
)

// minConfirmScore is the Jaro-Winkler similarity a token must reach against a
// vocabulary entry to count as a match. High enough that ordinary request
// words do not collide with the confirmation vocabulary.
const minConfirmScore = 0.92

// DefaultConfirmationTTL bounds how long a pending confirmation stays live.
const DefaultConfirmationTTL = 30 * time.Second

// ConfirmationGate holds at most one pending confirmation and classifies the
// next user utterance against it. Expiry is lazy: an expired entry is dropped
// the next time the gate is consulted, with no background timer.
//
// A newer confirmation displaces an older unanswered one.
type ConfirmationGate struct {
	mu      sync.Mutex
	pending *Pending
	ttl     time.Duration
	now     func() time.Time
}

// NewConfirmationGate returns a gate whose pending entries live for ttl.
// A non-positive ttl uses [DefaultConfirmationTTL].
func NewConfirmationGate(ttl time.Duration) *ConfirmationGate {
	if ttl <= 0 {
		ttl = DefaultConfirmationTTL
	}
	return &ConfirmationGate{ttl: ttl, now: time.Now}
}

// Offer records p as the live pending confirmation, stamping its lifetime.
func (g *ConfirmationGate) Offer(p Pending) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p.CreatedAt = g.now()
	p.ExpiresAt = p.CreatedAt.Add(g.ttl)
	g.pending = &p
}

// Pending reports whether a live (unexpired) confirmation is waiting.
func (g *ConfirmationGate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expireLocked()
	return g.pending != nil
}

// Take consumes the live pending confirmation against utterance. ok is false
// when no live confirmation exists (including the expired case, which is
// dropped silently). When ok is true the entry has been removed: the next
// user utterance consumes the confirmation whatever it says — a reply that
// matches no vocabulary returns [DecisionNone] and the caller treats the
// utterance as a fresh request.
func (g *ConfirmationGate) Take(utterance string) (p Pending, d Decision, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.expireLocked()
	if g.pending == nil {
		return Pending{}, DecisionNone, false
	}

	p = *g.pending
	g.pending = nil
	return p, Classify(utterance), true
}

func (g *ConfirmationGate) expireLocked() {
	if g.pending != nil && g.now().After(g.pending.ExpiresAt) {
		g.pending = nil
	}
}

// Classify maps a reply utterance onto a confirmation [Decision] using
// fuzzy matching, so transcription slips like "yess" or "okey" still land.
// Cancel outranks deny outranks affirm, keeping "no, cancel that" safe.
func Classify(utterance string) Decision {
	norm := normalizeReply(utterance)
	if norm == "" {
		return DecisionNone
	}
	tokens := strings.Fields(norm)

	switch {
	case matchesVocabulary(norm, tokens, cancelWords):
		return DecisionCancel
	case matchesVocabulary(norm, tokens, denyWords):
		return DecisionDeny
	case matchesVocabulary(norm, tokens, affirmWords):
		return DecisionAffirm
	default:
		return DecisionNone
	}
}

func matchesVocabulary(full string, tokens, vocab []string) bool {
	for _, v := range vocab {
		if strings.Contains(v, " ") {
			if matchr.JaroWinkler(full, v, false) >= minConfirmScore {
				return true
			}
			continue
		}
		for _, tok := range tokens {
			if tok == v || matchr.JaroWinkler(tok, v, false) >= minConfirmScore {
				return true
			}
		}
	}
	return false
}

// normalizeReply lowercases the utterance and strips everything but letters,
// digits, apostrophes and spaces, collapsing runs of whitespace.
func normalizeReply(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
