package vadgate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/voxenlabs/voxen/internal/vadgate"
	vadmock "github.com/voxenlabs/voxen/pkg/provider/vad/mock"
)

// testConfig uses a tiny chunk so fixtures stay small: 4 samples per chunk,
// 2-chunk hangover.
func testConfig() vadgate.Config {
	return vadgate.Config{ChunkSize: 4, SpeechThreshold: 0.5, SilenceChunks: 2}
}

// chunk returns one full chunk worth of samples for testConfig.
func chunk() []float32 {
	return make([]float32, 4)
}

// collectTypes pushes n chunks and returns the emitted event types.
func collectTypes(g *vadgate.Gate, n int) []vadgate.EventType {
	var types []vadgate.EventType
	for i := 0; i < n; i++ {
		for _, e := range g.Push(context.Background(), chunk()) {
			types = append(types, e.Type)
		}
	}
	return types
}

func TestGate_IsolatedSpeechWindow(t *testing.T) {
	sc := &vadmock.Scorer{Probabilities: []float64{0.1, 0.9, 0.1, 0.1, 0.1, 0.1, 0.1}}
	g := vadgate.New(sc, testConfig())

	got := collectTypes(g, 7)
	want := []vadgate.EventType{
		vadgate.Silence,        // 0.1
		vadgate.SpeechStart,    // 0.9
		vadgate.SpeechContinue, // 0.1, hangover 1
		vadgate.SpeechContinue, // 0.1, hangover 2
		vadgate.SpeechEnd,      // 0.1, hangover elapsed
		vadgate.Silence,
		vadgate.Silence,
	}
	if len(got) != len(want) {
		t.Fatalf("event count: got %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGate_SpeechResetsHangover(t *testing.T) {
	// Speech, one silent chunk, speech again: the dropped frame must not end
	// the segment and the counter must restart from zero.
	sc := &vadmock.Scorer{Probabilities: []float64{0.9, 0.1, 0.9, 0.1, 0.1, 0.1}}
	g := vadgate.New(sc, testConfig())

	got := collectTypes(g, 6)
	want := []vadgate.EventType{
		vadgate.SpeechStart,
		vadgate.SpeechContinue, // hangover 1
		vadgate.SpeechContinue, // speech again, counter reset
		vadgate.SpeechContinue, // hangover 1
		vadgate.SpeechContinue, // hangover 2
		vadgate.SpeechEnd,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGate_NeverEndsWithoutStart(t *testing.T) {
	sc := &vadmock.Scorer{Probabilities: []float64{0.1}}
	g := vadgate.New(sc, testConfig())

	for _, e := range collectTypes(g, 20) {
		if e == vadgate.SpeechEnd {
			t.Fatal("SpeechEnd emitted without a prior SpeechStart")
		}
	}
}

func TestGate_AccumulatesPartialChunks(t *testing.T) {
	sc := &vadmock.Scorer{Probabilities: []float64{0.9}}
	g := vadgate.New(sc, testConfig())

	// Three samples: not enough for a 4-sample chunk, nothing scored.
	if events := g.Push(context.Background(), make([]float32, 3)); len(events) != 0 {
		t.Fatalf("partial chunk: got %d events, want 0", len(events))
	}
	if len(sc.ScoreCalls) != 0 {
		t.Fatalf("scorer called on partial chunk")
	}

	// Five more samples: one full chunk scored, four samples carried over.
	events := g.Push(context.Background(), make([]float32, 5))
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != vadgate.SpeechStart {
		t.Errorf("first event: got %v, want SpeechStart", events[0].Type)
	}
	if len(sc.ScoreCalls) != 2 {
		t.Errorf("scorer calls: got %d, want 2", len(sc.ScoreCalls))
	}
	if got := len(sc.ScoreCalls[0].Samples); got != 4 {
		t.Errorf("chunk size: got %d, want 4", got)
	}
}

func TestGate_ScorerErrorDegradesToSilence(t *testing.T) {
	sc := &vadmock.Scorer{ScoreErr: errors.New("model not loaded")}
	g := vadgate.New(sc, testConfig())

	events := g.Push(context.Background(), chunk())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != vadgate.Silence {
		t.Errorf("got %v, want Silence", events[0].Type)
	}
	if events[0].Probability != 0 {
		t.Errorf("probability: got %v, want 0", events[0].Probability)
	}
}

func TestGate_Reset(t *testing.T) {
	sc := &vadmock.Scorer{Probabilities: []float64{0.9}}
	g := vadgate.New(sc, testConfig())

	g.Push(context.Background(), chunk())
	if !g.Active() {
		t.Fatal("gate should be active after speech")
	}

	g.Reset()
	if g.Active() {
		t.Error("gate still active after Reset")
	}

	// Queued partial samples are also discarded by Reset.
	g.Push(context.Background(), make([]float32, 3))
	g.Reset()
	calls := len(sc.ScoreCalls)
	g.Push(context.Background(), make([]float32, 3))
	if len(sc.ScoreCalls) != calls {
		t.Error("stale queued samples survived Reset")
	}
}
