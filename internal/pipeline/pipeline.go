// Package pipeline wires the capture-to-response path of the assistant.
//
// Each capture source gets its own worker: windows flow into the voice
// activity gate and the rolling segment buffer; when the gate reports the end
// of an utterance the buffered speech is extracted and handled as one
// request. Handling runs speaker identification and transcription in
// parallel, consults the confirmation gate, asks the planner for an action
// plan, dispatches skill calls, and hands the spoken reply to the responder.
//
// A slow stage never blocks capture: utterance handling runs on its own
// goroutine per utterance while the worker keeps feeding the gate.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/voxenlabs/voxen/internal/observe"
	"github.com/voxenlabs/voxen/internal/plan"
	"github.com/voxenlabs/voxen/internal/session"
	"github.com/voxenlabs/voxen/internal/skill"
	"github.com/voxenlabs/voxen/internal/speaker"
	"github.com/voxenlabs/voxen/internal/vadgate"
	"github.com/voxenlabs/voxen/pkg/audio"
	"github.com/voxenlabs/voxen/pkg/capture"
	"github.com/voxenlabs/voxen/pkg/provider/llm"
	"github.com/voxenlabs/voxen/pkg/provider/stt"
	"github.com/voxenlabs/voxen/pkg/provider/vad"
)

// Fallback replies for degraded conditions. Deterministic on purpose: a
// malformed plan or a dead backend must never produce silence.
const (
	replyParseFailure = "Sorry, I didn't catch that. Could you say it again?"
	replyPlanFailure  = "Sorry, I'm having trouble thinking right now."
	replyDenied       = "Okay, I won't."
)

// Stage timeout defaults.
const (
	defaultIdentifyTimeout   = 5 * time.Second
	defaultTranscribeTimeout = 30 * time.Second
	defaultPlanTimeout       = 30 * time.Second
)

// Segment buffer defaults.
const (
	defaultBufferSeconds = 30
	defaultLookback      = 300 * time.Millisecond
)

// Responder delivers the assistant's spoken reply for a given source. The
// pipeline does not care whether that means TTS to a local speaker, a frame
// to a satellite, or a line on stdout.
type Responder interface {
	Speak(ctx context.Context, source, text string) error
}

// ResponderFunc adapts a function to the [Responder] interface.
type ResponderFunc func(ctx context.Context, source, text string) error

// Speak implements [Responder].
func (f ResponderFunc) Speak(ctx context.Context, source, text string) error {
	return f(ctx, source, text)
}

// Config assembles the pipeline's collaborators. Sources, Transcriber, LLM,
// Registry, Dispatcher, Confirmations, History and Responder are required;
// Matcher may be nil, in which case every utterance is unidentified.
type Config struct {
	Sources       []capture.Source
	Scorer        vad.Scorer
	Gate          vadgate.Config
	Matcher       *speaker.Matcher
	Transcriber   stt.Transcriber
	LLM           llm.Provider
	Registry      *skill.Registry
	Dispatcher    *skill.Dispatcher
	Confirmations *skill.ConfirmationGate
	History       *session.History
	Responder     Responder
	Metrics       *observe.Metrics
	Logger        *slog.Logger

	// SystemPrompt is prepended to the built-in planning instructions, for
	// deployment-specific personality or house rules.
	SystemPrompt string

	// BufferSeconds bounds the per-source rolling sample buffer. Defaults to 30.
	BufferSeconds int

	// Lookback is the pre-speech audio prepended to each utterance so quiet
	// first syllables survive gate latency. Defaults to 300ms.
	Lookback time.Duration

	IdentifyTimeout   time.Duration
	TranscribeTimeout time.Duration
	PlanTimeout       time.Duration
}

// Pipeline runs the capture-to-response loop.
type Pipeline struct {
	cfg    Config
	tracer trace.Tracer

	wg sync.WaitGroup
}

// New validates cfg, fills defaults, and returns a ready Pipeline.
func New(cfg Config) (*Pipeline, error) {
	var missing []string
	if len(cfg.Sources) == 0 {
		missing = append(missing, "sources")
	}
	if cfg.Scorer == nil {
		missing = append(missing, "scorer")
	}
	if cfg.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if cfg.LLM == nil {
		missing = append(missing, "llm")
	}
	if cfg.Registry == nil {
		missing = append(missing, "registry")
	}
	if cfg.Dispatcher == nil {
		missing = append(missing, "dispatcher")
	}
	if cfg.Confirmations == nil {
		missing = append(missing, "confirmations")
	}
	if cfg.History == nil {
		missing = append(missing, "history")
	}
	if cfg.Responder == nil {
		missing = append(missing, "responder")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("pipeline: missing required components: %s", strings.Join(missing, ", "))
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = defaultBufferSeconds
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.IdentifyTimeout <= 0 {
		cfg.IdentifyTimeout = defaultIdentifyTimeout
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = defaultTranscribeTimeout
	}
	if cfg.PlanTimeout <= 0 {
		cfg.PlanTimeout = defaultPlanTimeout
	}

	return &Pipeline{
		cfg:    cfg,
		tracer: otel.Tracer("github.com/voxenlabs/voxen/internal/pipeline"),
	}, nil
}

// Run starts one worker per source and blocks until ctx is cancelled or a
// source fails to start. In-flight utterance handling finishes before Run
// returns.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.cfg.Sources {
		src := src
		g.Go(func() error {
			return p.runSource(gctx, src)
		})
	}
	err := g.Wait()
	p.wg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runSource owns one capture stream and its gate/buffer state.
func (p *Pipeline) runSource(ctx context.Context, src capture.Source) error {
	windows, err := src.Start(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: start source: %w", err)
	}
	defer src.Close()

	p.cfg.Metrics.ActiveSources.Add(ctx, 1)
	defer p.cfg.Metrics.ActiveSources.Add(ctx, -1)

	gate := vadgate.New(p.cfg.Scorer, p.cfg.Gate)

	capacity := p.cfg.BufferSeconds * audio.DefaultSampleRate
	lookback := audio.DurationToSamples(p.cfg.Lookback, audio.DefaultSampleRate)
	buffer := audio.NewSegmentBuffer(capacity, lookback)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w, ok := <-windows:
			if !ok {
				return nil
			}
			buffer.Append(w)
			for _, ev := range gate.Push(ctx, w.Samples) {
				switch ev.Type {
				case vadgate.SpeechStart:
					buffer.MarkSpeechStart()
				case vadgate.SpeechEnd:
					utt := buffer.ExtractUtteranceSinceStart()
					p.wg.Add(1)
					go func() {
						defer p.wg.Done()
						p.handleUtterance(ctx, utt)
					}()
				}
			}
		}
	}
}

// handleUtterance runs one complete request: identify and transcribe in
// parallel, resolve confirmations, plan, dispatch, respond.
func (p *Pipeline) handleUtterance(ctx context.Context, utt audio.Utterance) {
	requestID := uuid.NewString()
	logger := p.cfg.Logger.With("request", requestID, "source", utt.Source)

	ctx, span := p.tracer.Start(ctx, "pipeline.utterance", trace.WithAttributes(
		attribute.String("request", requestID),
		attribute.String("source", utt.Source),
	))
	defer span.End()

	var (
		ident speaker.Identification
		text  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if p.cfg.Matcher == nil {
			return nil
		}
		idCtx, cancel := context.WithTimeout(gctx, p.cfg.IdentifyTimeout)
		defer cancel()

		start := time.Now()
		var err error
		ident, err = p.cfg.Matcher.Identify(idCtx, utt, 0)
		p.cfg.Metrics.IdentifyDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			// Identification failure degrades to an unidentified request.
			logger.Warn("speaker identification failed", "error", err)
			p.cfg.Metrics.RecordProviderError(ctx, "diarize", "identify")
			ident = speaker.Identification{}
		}
		return nil
	})
	g.Go(func() error {
		sttCtx, cancel := context.WithTimeout(gctx, p.cfg.TranscribeTimeout)
		defer cancel()

		start := time.Now()
		var err error
		text, err = p.cfg.Transcriber.Transcribe(sttCtx, utt)
		p.cfg.Metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("transcription failed, dropping utterance", "error", err)
		p.cfg.Metrics.RecordProviderError(ctx, p.cfg.Transcriber.ModelID(), "stt")
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Debug("utterance produced no text, skipping")
		return
	}

	req := skill.RequestContext{
		RequestID: requestID,
		Utterance: text,
		Source:    utt.Source,
	}
	identified := ident.Identified
	if identified {
		req.SpeakerID = ident.SpeakerID
		req.SpeakerName = ident.Name
		logger = logger.With("speaker", ident.Name)
	}
	p.cfg.Metrics.RecordUtterance(ctx, utt.Source, identified)
	logger.Info("utterance received", "text", text)

	// A live pending confirmation is consumed by this utterance, whatever
	// it says; only a non-matching reply proceeds to the planner.
	if pending, decision, ok := p.cfg.Confirmations.Take(text); ok {
		p.cfg.Metrics.PendingConfirmations.Add(ctx, -1)
		switch decision {
		case skill.DecisionAffirm:
			start := time.Now()
			res := p.cfg.Dispatcher.ExecutePending(ctx, pending)
			p.cfg.Metrics.SkillDuration.Record(ctx, time.Since(start).Seconds())
			p.cfg.Metrics.RecordSkillCall(ctx, res.SkillID, string(res.Status))
			p.recordAndSpeak(ctx, logger, req, composeResults([]skill.CallResult{res}))
			return
		case skill.DecisionDeny:
			p.recordAndSpeak(ctx, logger, req, replyDenied)
			return
		case skill.DecisionCancel:
			logger.Info("pending confirmation cancelled")
			p.cfg.History.AddUser(req.SpeakerName, text)
			return
		}
		logger.Debug("pending confirmation discarded by unrelated utterance")
	}

	reply := p.planAndDispatch(ctx, logger, req)
	p.recordAndSpeak(ctx, logger, req, reply)
}

// planAndDispatch asks the planner for an action plan and executes it,
// returning the spoken reply.
func (p *Pipeline) planAndDispatch(ctx context.Context, logger *slog.Logger, req skill.RequestContext) string {
	planCtx, cancel := context.WithTimeout(ctx, p.cfg.PlanTimeout)
	defer cancel()

	messages := append(p.cfg.History.Messages(), llm.Message{
		Role:    "user",
		Name:    req.SpeakerName,
		Content: req.Utterance,
	})

	start := time.Now()
	resp, err := p.cfg.LLM.Complete(planCtx, llm.CompletionRequest{
		SystemPrompt: p.buildSystemPrompt(req),
		Messages:     messages,
	})
	p.cfg.Metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		logger.Error("planner request failed", "error", err)
		p.cfg.Metrics.RecordProviderError(ctx, p.cfg.LLM.ModelID(), "llm")
		return replyPlanFailure
	}

	parsed, err := plan.Parse(resp.Content)
	if err != nil {
		kind := "invalid"
		if pe, ok := plan.AsParseError(err); ok {
			kind = pe.Kind.String()
		}
		logger.Warn("planner output rejected", "error", err, "output_len", len(resp.Content))
		p.cfg.Metrics.PlanParseFailures.Add(ctx, 1, metric.WithAttributes(observe.Attr("kind", kind)))
		return replyParseFailure
	}

	switch pl := parsed.(type) {
	case plan.Respond:
		return pl.Text

	case plan.CallSkills:
		start := time.Now()
		results := p.cfg.Dispatcher.Dispatch(ctx, &pl, req)
		p.cfg.Metrics.SkillDuration.Record(ctx, time.Since(start).Seconds())
		for _, res := range results {
			p.cfg.Metrics.RecordSkillCall(ctx, res.SkillID, string(res.Status))
			if res.Status == skill.StatusAwaitingConfirmation {
				p.cfg.Metrics.PendingConfirmations.Add(ctx, 1)
			}
		}
		return composeResults(results)

	default:
		logger.Error("planner returned unhandled plan type", "type", fmt.Sprintf("%T", parsed))
		return replyPlanFailure
	}
}

// recordAndSpeak appends the exchange to the history and delivers the reply.
func (p *Pipeline) recordAndSpeak(ctx context.Context, logger *slog.Logger, req skill.RequestContext, reply string) {
	p.cfg.History.AddUser(req.SpeakerName, req.Utterance)
	if reply == "" {
		return
	}
	p.cfg.History.AddAssistant(reply)

	if err := p.cfg.Responder.Speak(ctx, req.Source, reply); err != nil {
		logger.Error("failed to deliver reply", "error", err)
	}
}

// buildSystemPrompt renders the planning instructions plus the skill
// manifest. The model must answer with a single JSON object in the plan
// format; the parser tolerates fences and surrounding prose anyway.
func (p *Pipeline) buildSystemPrompt(req skill.RequestContext) string {
	var b strings.Builder
	if p.cfg.SystemPrompt != "" {
		b.WriteString(p.cfg.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("You are a voice assistant. Reply with exactly one JSON object and nothing else.\n")
	b.WriteString(`To answer directly: {"type": "respond", "text": "..."}` + "\n")
	b.WriteString(`To use skills: {"type": "call_skills", "calls": [{"skillId": "...", "arguments": {...}}]}` + "\n")
	if req.SpeakerName != "" {
		fmt.Fprintf(&b, "The current speaker is %s.\n", req.SpeakerName)
	} else {
		b.WriteString("The current speaker is not identified.\n")
	}

	defs := p.cfg.Registry.Definitions()
	if len(defs) == 0 {
		b.WriteString("No skills are available; always respond directly.\n")
		return b.String()
	}

	b.WriteString("Available skills:\n")
	for _, def := range defs {
		schema, err := json.Marshal(def.Parameters)
		if err != nil || def.Parameters == nil {
			schema = []byte(`{"type":"object"}`)
		}
		fmt.Fprintf(&b, "- %s: %s (arguments schema: %s)\n", def.ID, def.Description, schema)
	}
	return b.String()
}

// composeResults folds per-call outcomes into one spoken reply, preserving
// plan order.
func composeResults(results []skill.CallResult) string {
	parts := make([]string, 0, len(results))
	for _, res := range results {
		switch res.Status {
		case skill.StatusOK:
			if res.Content != "" {
				parts = append(parts, res.Content)
			}
		case skill.StatusAwaitingConfirmation:
			parts = append(parts, res.Content)
		case skill.StatusUnknownSkill:
			parts = append(parts, fmt.Sprintf("I don't know how to do %s.", res.SkillID))
		case skill.StatusTimeout:
			parts = append(parts, fmt.Sprintf("%s took too long to respond.", res.SkillID))
		default:
			parts = append(parts, fmt.Sprintf("I couldn't run %s.", res.SkillID))
		}
	}
	if len(parts) == 0 {
		return "Done."
	}
	return strings.Join(parts, " ")
}
