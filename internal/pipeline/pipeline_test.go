package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxenlabs/voxen/internal/session"
	"github.com/voxenlabs/voxen/internal/skill"
	skillmock "github.com/voxenlabs/voxen/internal/skill/mock"
	"github.com/voxenlabs/voxen/internal/speaker"
	"github.com/voxenlabs/voxen/internal/vadgate"
	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/capture"
	capturemock "github.com/voxenlabs/voxen/pkg/capture/mock"
	"github.com/voxenlabs/voxen/pkg/provider/diarize"
	diarizemock "github.com/voxenlabs/voxen/pkg/provider/diarize/mock"
	llmmock "github.com/voxenlabs/voxen/pkg/provider/llm/mock"
	sttmock "github.com/voxenlabs/voxen/pkg/provider/stt/mock"
	vadmock "github.com/voxenlabs/voxen/pkg/provider/vad/mock"
)

// recordingResponder captures every spoken reply.
type recordingResponder struct {
	mu      sync.Mutex
	replies []string
	sources []string
}

func (r *recordingResponder) Speak(_ context.Context, source, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, text)
	r.sources = append(r.sources, source)
	return nil
}

func (r *recordingResponder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.replies...)
}

type fixture struct {
	pipeline  *Pipeline
	stt       *sttmock.Transcriber
	llm       *llmmock.Provider
	responder *recordingResponder
	history   *session.History
	confirm   *skill.ConfirmationGate
	registry  *skill.Registry
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()

	f := &fixture{
		stt:       &sttmock.Transcriber{Texts: []string{"what's the weather"}},
		llm:       &llmmock.Provider{Responses: []string{`{"type":"respond","text":"Sunny."}`}},
		responder: &recordingResponder{},
		history:   session.NewHistory(16),
		confirm:   skill.NewConfirmationGate(time.Minute),
		registry:  skill.NewRegistry(),
	}

	cfg := Config{
		Sources:       []capture.Source{&capturemock.Source{CloseAfterEmit: true}},
		Scorer:        &vadmock.Scorer{Probabilities: []float64{0}},
		Transcriber:   f.stt,
		LLM:           f.llm,
		Registry:      f.registry,
		Confirmations: f.confirm,
		History:       f.history,
		Responder:     f.responder,
	}
	cfg.Dispatcher = skill.NewDispatcher(f.registry, f.confirm)
	if mutate != nil {
		mutate(&cfg)
	}

	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.pipeline = p
	return f
}

func testUtterance() audio.Utterance {
	return audio.Utterance{
		Samples:    make([]float32, 1600),
		SampleRate: audio.DefaultSampleRate,
		Source:     audio.SourceLocal,
		Captured:   time.Now(),
	}
}

func TestHandleUtterance_RespondPlan(t *testing.T) {
	f := newFixture(t, nil)

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != "Sunny." {
		t.Fatalf("got replies %v, want [Sunny.]", replies)
	}
	turns := f.history.Turns()
	if len(turns) != 2 {
		t.Fatalf("got %d history turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "what's the weather" {
		t.Errorf("user turn: %+v", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Content != "Sunny." {
		t.Errorf("assistant turn: %+v", turns[1])
	}
}

func TestHandleUtterance_EmptyTranscriptSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.stt.Texts = []string{"   "}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	if len(f.responder.all()) != 0 {
		t.Error("empty transcript should produce no reply")
	}
	if len(f.llm.CompleteCalls) != 0 {
		t.Error("empty transcript should never reach the planner")
	}
}

func TestHandleUtterance_CallSkillsPlan(t *testing.T) {
	f := newFixture(t, nil)
	handler := &skillmock.Handler{Result: skill.Result{Content: "Timer set for five minutes."}}
	if err := f.registry.Register(skill.Definition{ID: "timer.set", Description: "set a timer"}, handler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	f.stt.Texts = []string{"set a timer for five minutes"}
	f.llm.Responses = []string{`{"type":"call_skills","calls":[{"skillId":"timer.set","arguments":{"minutes":5}}]}`}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != "Timer set for five minutes." {
		t.Fatalf("got replies %v", replies)
	}
	calls := handler.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d handler calls, want 1", len(calls))
	}
	var args struct {
		Minutes int `json:"minutes"`
	}
	if err := json.Unmarshal(calls[0].Args, &args); err != nil || args.Minutes != 5 {
		t.Errorf("handler arguments: %s (err %v)", calls[0].Args, err)
	}
	if calls[0].Request.Utterance != "set a timer for five minutes" {
		t.Errorf("request context: %+v", calls[0].Request)
	}
}

// newTestMatcher builds a matcher over a file store seeded with one enrolled
// profile whose embedding the diarizer mock reproduces exactly.
func newTestMatcher(t *testing.T, diarizer diarize.Provider) *speaker.Matcher {
	t.Helper()
	ctx := context.Background()

	store, err := speaker.NewFileStore(filepath.Join(t.TempDir(), "profiles.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Replace(ctx, []speaker.Profile{
		{ID: "spk-ada", Name: "Ada", Embedding: []float32{1, 0, 0}},
	}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	matcher, err := speaker.New(ctx, diarizer, store, speaker.Config{})
	if err != nil {
		t.Fatalf("speaker.New: %v", err)
	}
	return matcher
}

func TestHandleUtterance_IdentifiedSpeakerFlowsToSkills(t *testing.T) {
	diarizer := &diarizemock.Provider{
		Results: [][]diarize.Segment{{{SpeakerToken: "SPEAKER_00", Embedding: []float32{1, 0, 0}}}},
	}
	f := newFixture(t, func(cfg *Config) {
		cfg.Matcher = newTestMatcher(t, diarizer)
	})
	handler := &skillmock.Handler{Result: skill.Result{Content: "Light is on."}}
	if err := f.registry.Register(skill.Definition{ID: "light.on", Description: "turn on a light"}, handler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	f.stt.Texts = []string{"turn on the light"}
	f.llm.Responses = []string{`{"type":"call_skills","calls":[{"skillId":"light.on","arguments":{}}]}`}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	calls := handler.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d handler calls, want 1", len(calls))
	}
	if calls[0].Request.SpeakerID != "spk-ada" || calls[0].Request.SpeakerName != "Ada" {
		t.Errorf("request context should carry the identified speaker: %+v", calls[0].Request)
	}
	if len(diarizer.EmbedCalls) != 1 {
		t.Errorf("got %d embed calls, want 1", len(diarizer.EmbedCalls))
	}
}

func TestHandleUtterance_IdentificationFailureDegrades(t *testing.T) {
	diarizer := &diarizemock.Provider{EmbedErr: errors.New("sidecar down")}
	f := newFixture(t, func(cfg *Config) {
		cfg.Matcher = newTestMatcher(t, diarizer)
	})
	handler := &skillmock.Handler{Result: skill.Result{Content: "Done."}}
	if err := f.registry.Register(skill.Definition{ID: "light.on", Description: "turn on a light"}, handler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	f.llm.Responses = []string{`{"type":"call_skills","calls":[{"skillId":"light.on","arguments":{}}]}`}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	// The request proceeds unidentified rather than being dropped.
	calls := handler.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d handler calls, want 1", len(calls))
	}
	if calls[0].Request.SpeakerID != "" || calls[0].Request.SpeakerName != "" {
		t.Errorf("request context should be unidentified: %+v", calls[0].Request)
	}
}

func TestHandleUtterance_ParseFailureFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.Responses = []string{"I'd love to help but here is prose with no JSON at all"}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != replyParseFailure {
		t.Fatalf("got replies %v, want the parse fallback", replies)
	}
	// The failed exchange still lands in history so the next turn has context.
	if f.history.Len() != 2 {
		t.Errorf("got %d history turns, want 2", f.history.Len())
	}
}

func TestHandleUtterance_PlannerErrorFallsBack(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.CompleteErr = errors.New("backend unreachable")

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != replyPlanFailure {
		t.Fatalf("got replies %v, want the planner fallback", replies)
	}
}

func TestHandleUtterance_ConfirmationRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	handler := &skillmock.Handler{Err: &skill.ConfirmationRequired{Prompt: "Delete all reminders?"}}
	if err := f.registry.Register(skill.Definition{ID: "reminders.clear", Description: "clear reminders"}, handler); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	f.stt.Texts = []string{"clear my reminders", "yes please"}
	f.llm.Responses = []string{`{"type":"call_skills","calls":[{"skillId":"reminders.clear","arguments":{}}]}`}

	// First utterance: the skill defers and the prompt is spoken.
	f.pipeline.handleUtterance(context.Background(), testUtterance())
	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != "Delete all reminders?" {
		t.Fatalf("got replies %v, want the confirmation prompt", replies)
	}

	// Second utterance affirms: the parked call runs without another planner
	// round trip.
	handler.Err = nil
	handler.Result = skill.Result{Content: "All reminders deleted."}
	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies = f.responder.all()
	if len(replies) != 2 || replies[1] != "All reminders deleted." {
		t.Fatalf("got replies %v", replies)
	}
	if len(f.llm.CompleteCalls) != 1 {
		t.Errorf("affirmation should not reach the planner, got %d planner calls", len(f.llm.CompleteCalls))
	}
}

func TestHandleUtterance_ConfirmationDenied(t *testing.T) {
	f := newFixture(t, nil)
	f.confirm.Offer(skill.Pending{SkillID: "reminders.clear", Prompt: "Sure?"})
	f.stt.Texts = []string{"no"}

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != replyDenied {
		t.Fatalf("got replies %v, want the denial acknowledgement", replies)
	}
	if len(f.llm.CompleteCalls) != 0 {
		t.Error("denial should not reach the planner")
	}
}

func TestHandleUtterance_UnrelatedUtteranceDiscardsConfirmation(t *testing.T) {
	f := newFixture(t, nil)
	f.confirm.Offer(skill.Pending{SkillID: "reminders.clear", Prompt: "Sure?"})

	f.pipeline.handleUtterance(context.Background(), testUtterance())

	// The unrelated question goes to the planner and gets a normal answer.
	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != "Sunny." {
		t.Fatalf("got replies %v", replies)
	}
	if f.confirm.Pending() {
		t.Error("pending confirmation should be discarded")
	}
}

func TestBuildSystemPrompt_ListsSkillManifest(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.registry.Register(skill.Definition{
		ID:          "weather.forecast",
		Description: "get the weather forecast",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{"city": map[string]any{"type": "string"}}},
	}, &skillmock.Handler{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	prompt := f.pipeline.buildSystemPrompt(skill.RequestContext{SpeakerName: "Ada"})
	// The instructed wire shape must match what the parser accepts.
	for _, want := range []string{`"skillId"`, "weather.forecast", "get the weather forecast", "The current speaker is Ada."} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	anon := f.pipeline.buildSystemPrompt(skill.RequestContext{})
	if !strings.Contains(anon, "not identified") {
		t.Errorf("anonymous prompt should note the unidentified speaker:\n%s", anon)
	}
}

func TestRun_EndToEndRespond(t *testing.T) {
	// One speech chunk, then three silent chunks: with SilenceChunks=2 the
	// hangover elapses on the third and the utterance closes.
	windows := []audio.Window{
		{Samples: []float32{0.5, 0.5, 0.5, 0.5}, SampleRate: audio.DefaultSampleRate, Source: audio.SourceLocal},
		{Samples: []float32{0, 0, 0, 0}, SampleRate: audio.DefaultSampleRate, Source: audio.SourceLocal},
		{Samples: []float32{0, 0, 0, 0}, SampleRate: audio.DefaultSampleRate, Source: audio.SourceLocal},
		{Samples: []float32{0, 0, 0, 0}, SampleRate: audio.DefaultSampleRate, Source: audio.SourceLocal},
	}
	src := &capturemock.Source{Windows: windows, CloseAfterEmit: true}

	f := newFixture(t, func(cfg *Config) {
		cfg.Sources = []capture.Source{src}
		cfg.Scorer = &vadmock.Scorer{Probabilities: []float64{0.9, 0.1, 0.1, 0.1}}
		cfg.Gate = vadgate.Config{ChunkSize: 4, SpeechThreshold: 0.5, SilenceChunks: 2}
	})

	if err := f.pipeline.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	replies := f.responder.all()
	if len(replies) != 1 || replies[0] != "Sunny." {
		t.Fatalf("got replies %v, want [Sunny.]", replies)
	}
	if f.responder.sources[0] != audio.SourceLocal {
		t.Errorf("reply routed to %q, want %q", f.responder.sources[0], audio.SourceLocal)
	}
}

func TestComposeResults(t *testing.T) {
	got := composeResults([]skill.CallResult{
		{SkillID: "a", Status: skill.StatusOK, Content: "Done A."},
		{SkillID: "b", Status: skill.StatusUnknownSkill},
		{SkillID: "c", Status: skill.StatusTimeout},
		{SkillID: "d", Status: skill.StatusFailed, Detail: "boom"},
	})
	for _, want := range []string{"Done A.", "I don't know how to do b.", "c took too long", "I couldn't run d."} {
		if !strings.Contains(got, want) {
			t.Errorf("composed reply missing %q: %s", want, got)
		}
	}

	if got := composeResults([]skill.CallResult{{SkillID: "a", Status: skill.StatusOK}}); got != "Done." {
		t.Errorf("contentless success: got %q, want %q", got, "Done.")
	}
}

func TestNew_MissingComponents(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("expected an error for an empty config")
	}
	if !strings.Contains(err.Error(), "transcriber") {
		t.Errorf("error should name missing components: %v", err)
	}
}
