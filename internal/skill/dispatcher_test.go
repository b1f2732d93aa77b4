package skill_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voxenlabs/voxen/internal/plan"
	"github.com/voxenlabs/voxen/internal/skill"
	"github.com/voxenlabs/voxen/internal/skill/mock"
)

func callPlan(ids ...string) *plan.CallSkills {
	p := &plan.CallSkills{}
	for _, id := range ids {
		p.Calls = append(p.Calls, plan.SkillCall{SkillID: id, Arguments: json.RawMessage(`{}`)})
	}
	return p
}

func mustRegister(t *testing.T, r *skill.Registry, id string, h skill.Handler) {
	t.Helper()
	if err := r.Register(skill.Definition{ID: id, Description: id}, h); err != nil {
		t.Fatalf("Register(%q) failed: %v", id, err)
	}
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "timer.set", &mock.Handler{})
	if err := r.Register(skill.Definition{ID: "timer.set"}, &mock.Handler{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_DefinitionsInRegistrationOrder(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "weather.forecast", &mock.Handler{})
	mustRegister(t, r, "timer.set", &mock.Handler{})
	mustRegister(t, r, "lights.toggle", &mock.Handler{})

	defs := r.Definitions()
	want := []string{"weather.forecast", "timer.set", "lights.toggle"}
	if len(defs) != len(want) {
		t.Fatalf("got %d definitions, want %d", len(defs), len(want))
	}
	for i, w := range want {
		if defs[i].ID != w {
			t.Errorf("definition %d: got %q, want %q", i, defs[i].ID, w)
		}
	}
}

func TestDispatch_SequentialInPlanOrder(t *testing.T) {
	r := skill.NewRegistry()
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		id := id
		mustRegister(t, r, id, skill.HandlerFunc(func(context.Context, json.RawMessage, skill.RequestContext) (skill.Result, error) {
			order = append(order, id)
			return skill.Result{Content: "done " + id}, nil
		}))
	}

	d := skill.NewDispatcher(r, nil)
	results := d.Dispatch(context.Background(), callPlan("c", "a", "b"), skill.RequestContext{})

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	wantOrder := []string{"c", "a", "b"}
	for i, w := range wantOrder {
		if order[i] != w {
			t.Errorf("execution order %d: got %q, want %q", i, order[i], w)
		}
		if results[i].SkillID != w || results[i].Status != skill.StatusOK {
			t.Errorf("result %d: got %+v, want ok for %q", i, results[i], w)
		}
	}
}

func TestDispatch_UnknownSkillDoesNotAbortSiblings(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "known", &mock.Handler{Result: skill.Result{Content: "hi"}})

	d := skill.NewDispatcher(r, nil)
	results := d.Dispatch(context.Background(), callPlan("missing", "known"), skill.RequestContext{})

	if results[0].Status != skill.StatusUnknownSkill {
		t.Errorf("first call: got status %q, want %q", results[0].Status, skill.StatusUnknownSkill)
	}
	if results[0].Detail == "" {
		t.Error("unknown skill result should carry a detail message")
	}
	if results[1].Status != skill.StatusOK || results[1].Content != "hi" {
		t.Errorf("second call should still run: %+v", results[1])
	}
}

func TestDispatch_HandlerErrorIsIsolated(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "broken", &mock.Handler{Err: errors.New("device offline")})
	mustRegister(t, r, "fine", &mock.Handler{Result: skill.Result{Content: "ok"}})

	d := skill.NewDispatcher(r, nil)
	results := d.Dispatch(context.Background(), callPlan("broken", "fine"), skill.RequestContext{})

	if results[0].Status != skill.StatusFailed || results[0].Detail != "device offline" {
		t.Errorf("failed call: %+v", results[0])
	}
	if results[1].Status != skill.StatusOK {
		t.Errorf("sibling call: %+v", results[1])
	}
}

func TestDispatch_PerCallTimeout(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "slow", skill.HandlerFunc(func(ctx context.Context, _ json.RawMessage, _ skill.RequestContext) (skill.Result, error) {
		<-ctx.Done()
		return skill.Result{}, ctx.Err()
	}))
	mustRegister(t, r, "fast", &mock.Handler{Result: skill.Result{Content: "quick"}})

	d := skill.NewDispatcher(r, nil, skill.WithCallTimeout(10*time.Millisecond))
	results := d.Dispatch(context.Background(), callPlan("slow", "fast"), skill.RequestContext{})

	if results[0].Status != skill.StatusTimeout {
		t.Errorf("slow call: got status %q, want %q", results[0].Status, skill.StatusTimeout)
	}
	if results[1].Status != skill.StatusOK {
		t.Errorf("fast call after timeout: %+v", results[1])
	}
}

func TestDispatch_CanceledContextMarksRemainingFailed(t *testing.T) {
	r := skill.NewRegistry()
	mustRegister(t, r, "a", &mock.Handler{})
	mustRegister(t, r, "b", &mock.Handler{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := skill.NewDispatcher(r, nil)
	results := d.Dispatch(ctx, callPlan("a", "b"), skill.RequestContext{})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, res := range results {
		if res.Status != skill.StatusFailed {
			t.Errorf("result %d: got status %q, want %q", i, res.Status, skill.StatusFailed)
		}
	}
}

func TestDispatch_ConfirmationRequiredParksCall(t *testing.T) {
	r := skill.NewRegistry()
	handler := &mock.Handler{Err: &skill.ConfirmationRequired{Prompt: "Delete all reminders?"}}
	mustRegister(t, r, "reminders.clear", handler)

	gate := skill.NewConfirmationGate(time.Minute)
	d := skill.NewDispatcher(r, gate)

	req := skill.RequestContext{RequestID: "r-1", SpeakerID: "s-1", Utterance: "clear my reminders"}
	results := d.Dispatch(context.Background(), callPlan("reminders.clear"), req)

	if results[0].Status != skill.StatusAwaitingConfirmation {
		t.Fatalf("got status %q, want %q", results[0].Status, skill.StatusAwaitingConfirmation)
	}
	if results[0].Content != "Delete all reminders?" {
		t.Errorf("result content should carry the prompt: %q", results[0].Content)
	}
	if !gate.Pending() {
		t.Fatal("gate should hold a pending confirmation")
	}

	// Affirm and execute the parked call.
	handler.Err = nil
	handler.Result = skill.Result{Content: "cleared"}
	pending, decision, ok := gate.Take("yes please")
	if !ok || decision != skill.DecisionAffirm {
		t.Fatalf("Take: ok=%v decision=%v", ok, decision)
	}
	if pending.SkillID != "reminders.clear" || pending.Request.RequestID != "r-1" {
		t.Errorf("pending metadata: %+v", pending)
	}
	res := d.ExecutePending(context.Background(), pending)
	if res.Status != skill.StatusOK || res.Content != "cleared" {
		t.Errorf("ExecutePending: %+v", res)
	}
}

func TestDispatch_HandlerReceivesRequestContext(t *testing.T) {
	r := skill.NewRegistry()
	handler := &mock.Handler{}
	mustRegister(t, r, "echo", handler)

	d := skill.NewDispatcher(r, nil)
	req := skill.RequestContext{RequestID: "r-9", SpeakerName: "Ada", Utterance: "say hi"}
	d.Dispatch(context.Background(), callPlan("echo"), req)

	calls := handler.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d handler calls, want 1", len(calls))
	}
	if calls[0].Request.SpeakerName != "Ada" || calls[0].Request.Utterance != "say hi" {
		t.Errorf("request context not forwarded: %+v", calls[0].Request)
	}
}
