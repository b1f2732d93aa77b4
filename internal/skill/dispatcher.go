package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxenlabs/voxen/internal/plan"
)

// CallStatus classifies the outcome of one dispatched skill call.
type CallStatus string

const (
	StatusOK                   CallStatus = "ok"
	StatusFailed               CallStatus = "failed"
	StatusUnknownSkill         CallStatus = "unknown_skill"
	StatusTimeout              CallStatus = "timeout"
	StatusAwaitingConfirmation CallStatus = "awaiting_confirmation"
)

// CallResult is the per-call outcome of a dispatch. Results are returned in
// plan order, one per requested call, so the response composer can interleave
// successes and failure summaries deterministically.
type CallResult struct {
	SkillID string
	Status  CallStatus

	// Content is the handler output on success, or the confirmation prompt
	// when Status is [StatusAwaitingConfirmation].
	Content string

	// Detail is a short human-readable failure summary, empty on success.
	Detail string
}

// DefaultCallTimeout bounds a single skill execution when neither the skill
// definition nor the dispatcher option overrides it.
const DefaultCallTimeout = 10 * time.Second

// Dispatcher resolves plan entries against a [Registry] and executes them.
type Dispatcher struct {
	registry      *Registry
	confirmations *ConfirmationGate
	callTimeout   time.Duration
	logger        *slog.Logger
}

// DispatcherOption configures a [Dispatcher].
type DispatcherOption func(*Dispatcher)

// WithCallTimeout overrides the default per-call execution budget.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.callTimeout = d
		}
	}
}

// WithDispatchLogger sets the logger used for per-call failure logging.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(dp *Dispatcher) {
		if l != nil {
			dp.logger = l
		}
	}
}

// NewDispatcher creates a Dispatcher over registry. Confirmation-requiring
// calls are parked in confirmations; pass a gate shared with the pipeline so
// the next utterance can resolve them. A nil gate gets a private one, which
// leaves deferred calls unreachable — fine for tests, wrong for production.
func NewDispatcher(registry *Registry, confirmations *ConfirmationGate, opts ...DispatcherOption) *Dispatcher {
	if confirmations == nil {
		confirmations = NewConfirmationGate(0)
	}
	d := &Dispatcher{
		registry:      registry,
		confirmations: confirmations,
		callTimeout:   DefaultCallTimeout,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes the plan's calls sequentially in plan order and returns
// one [CallResult] per call. A failing, unknown or timed-out call never
// aborts its siblings; only cancellation of ctx stops the chain, marking the
// remaining calls failed.
func (d *Dispatcher) Dispatch(ctx context.Context, p *plan.CallSkills, req RequestContext) []CallResult {
	results := make([]CallResult, 0, len(p.Calls))
	for i, call := range p.Calls {
		if err := ctx.Err(); err != nil {
			for _, rest := range p.Calls[i:] {
				results = append(results, CallResult{
					SkillID: rest.SkillID,
					Status:  StatusFailed,
					Detail:  "request canceled",
				})
			}
			return results
		}
		results = append(results, d.executeCall(ctx, call.SkillID, call.Arguments, req))
	}
	return results
}

// ExecutePending runs a previously confirmed deferred call. The handler is
// looked up again at execution time, so a skill unregistered in the interim
// fails cleanly.
func (d *Dispatcher) ExecutePending(ctx context.Context, p Pending) CallResult {
	return d.executeCall(ctx, p.SkillID, p.Arguments, p.Request)
}

func (d *Dispatcher) executeCall(ctx context.Context, id string, args []byte, req RequestContext) CallResult {
	reg, ok := d.registry.Lookup(id)
	if !ok {
		d.logger.Warn("skill call references unknown skill", "skill", id, "request", req.RequestID)
		return CallResult{
			SkillID: id,
			Status:  StatusUnknownSkill,
			Detail:  fmt.Sprintf("no skill registered as %q", id),
		}
	}

	timeout := reg.Definition.Timeout
	if timeout <= 0 {
		timeout = d.callTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := reg.Handler.Execute(callCtx, args, req)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		d.logger.Debug("skill call completed", "skill", id, "duration", elapsed)
		return CallResult{SkillID: id, Status: StatusOK, Content: res.Content}

	case isConfirmationRequired(err):
		var confirm *ConfirmationRequired
		errors.As(err, &confirm)
		d.confirmations.Offer(Pending{
			SkillID:   id,
			Arguments: args,
			Prompt:    confirm.Prompt,
			Request:   req,
		})
		d.logger.Info("skill call deferred pending confirmation", "skill", id)
		return CallResult{SkillID: id, Status: StatusAwaitingConfirmation, Content: confirm.Prompt}

	case errors.Is(err, context.DeadlineExceeded):
		d.logger.Warn("skill call timed out", "skill", id, "timeout", timeout)
		return CallResult{
			SkillID: id,
			Status:  StatusTimeout,
			Detail:  fmt.Sprintf("timed out after %s", timeout),
		}

	default:
		d.logger.Warn("skill call failed", "skill", id, "error", err, "duration", elapsed)
		return CallResult{SkillID: id, Status: StatusFailed, Detail: err.Error()}
	}
}

func isConfirmationRequired(err error) bool {
	var confirm *ConfirmationRequired
	return errors.As(err, &confirm)
}
