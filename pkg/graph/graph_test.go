package graph

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xrsl/jobprep/pkg/checkpoint"
)

type counterState struct {
	Visits   []string `json:"visits"`
	Attempts int      `json:"attempts"`
	Approved bool     `json:"approved"`
	Note     string   `json:"note"`
}

func visit(name string) NodeFunc[counterState] {
	return func(_ context.Context, s counterState) (counterState, error) {
		s.Visits = append(s.Visits, name)
		return s, nil
	}
}

// draft -> check -> (draft again until approved or 3 attempts) -> publish -> end,
// pausing before publish.
func reviewGraph(approveOn int) *Graph[counterState] {
	g := New[counterState]()
	g.AddNode("draft", func(_ context.Context, s counterState) (counterState, error) {
		s.Visits = append(s.Visits, "draft")
		s.Attempts++
		return s, nil
	})
	g.AddNode("check", func(_ context.Context, s counterState) (counterState, error) {
		s.Visits = append(s.Visits, "check")
		s.Approved = approveOn > 0 && s.Attempts >= approveOn
		return s, nil
	})
	g.AddNode("publish", visit("publish"))
	g.AddEdge("draft", "check")
	g.AddConditionalEdge("check", func(s counterState) string {
		if s.Approved || s.Attempts >= 3 {
			return "publish"
		}
		return "draft"
	}, "draft", "publish")
	g.AddEdge("publish", End)
	g.InterruptBefore("publish")
	return g
}

func mustCompile(t *testing.T, g *Graph[counterState], opts ...Option) *Runner[counterState] {
	t.Helper()
	r, err := g.Compile(checkpoint.NewMemory(), opts...)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return r
}

func TestCompileValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Graph[counterState]
		want  string
	}{
		{"no nodes", func() *Graph[counterState] { return New[counterState]() }, "no entry node"},
		{"duplicate node", func() *Graph[counterState] {
			return New[counterState]().AddNode("a", visit("a")).AddNode("a", visit("a")).AddEdge("a", End)
		}, "duplicate node"},
		{"dangling edge", func() *Graph[counterState] {
			return New[counterState]().AddNode("a", visit("a")).AddEdge("a", "b")
		}, "unknown node \"b\""},
		{"missing outgoing", func() *Graph[counterState] {
			return New[counterState]().AddNode("a", visit("a")).AddNode("b", visit("b")).AddEdge("a", "b")
		}, "\"b\" has no outgoing edge"},
		{"two edges", func() *Graph[counterState] {
			return New[counterState]().AddNode("a", visit("a")).AddEdge("a", End).AddEdge("a", End)
		}, "already has an outgoing edge"},
		{"interrupt unknown", func() *Graph[counterState] {
			return New[counterState]().AddNode("a", visit("a")).AddEdge("a", End).InterruptBefore("zzz")
		}, "interrupt on unknown node"},
		{"reserved name", func() *Graph[counterState] {
			return New[counterState]().AddNode(End, visit("x"))
		}, "invalid node name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Compile(nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Compile error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestInvokeStopsAtInterrupt(t *testing.T) {
	r := mustCompile(t, reviewGraph(1))
	ctx := context.Background()

	snap, err := r.Invoke(ctx, "t1", counterState{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !snap.Interrupted() || snap.Next != "publish" {
		t.Fatalf("expected interrupt before publish, got status=%s next=%s", snap.Status, snap.Next)
	}
	if got := strings.Join(snap.State.Visits, ","); got != "draft,check" {
		t.Errorf("visits = %s", got)
	}

	stored, err := r.State(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != checkpoint.StatusInterrupted || stored.Step != 2 {
		t.Errorf("stored snapshot = %+v", stored)
	}

	snap, err = r.Resume(ctx, "t1", Command[counterState]{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !snap.Completed() {
		t.Fatalf("expected completion, got %s", snap.Status)
	}
	if got := strings.Join(snap.State.Visits, ","); got != "draft,check,publish" {
		t.Errorf("visits after resume = %s", got)
	}

	if _, err := r.Resume(ctx, "t1", Command[counterState]{}); !errors.Is(err, ErrNotResumable) {
		t.Errorf("resuming completed thread: expected ErrNotResumable, got %v", err)
	}
}

func TestConditionalLoopIsBounded(t *testing.T) {
	r := mustCompile(t, reviewGraph(0)) // never approves
	snap, err := r.Invoke(context.Background(), "loop", counterState{})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", snap.State.Attempts)
	}
	if snap.Next != "publish" {
		t.Errorf("next = %s, want publish", snap.Next)
	}
}

func TestResumeWithUpdateAndGoto(t *testing.T) {
	r := mustCompile(t, reviewGraph(1))
	ctx := context.Background()
	if _, err := r.Invoke(ctx, "t", counterState{}); err != nil {
		t.Fatal(err)
	}

	snap, err := r.Resume(ctx, "t", Command[counterState]{
		Update: func(s counterState) counterState {
			s.Note = "rework"
			s.Attempts = 0
			return s
		},
		Goto: "draft",
	})
	if err != nil {
		t.Fatal(err)
	}
	// reworked draft is approved and pauses again before publish
	if !snap.Interrupted() || snap.State.Note != "rework" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if got := strings.Join(snap.State.Visits, ","); got != "draft,check,draft,check" {
		t.Errorf("visits = %s", got)
	}

	if _, err := r.Resume(ctx, "t", Command[counterState]{Goto: "nowhere"}); err == nil {
		t.Error("expected error for unknown goto target")
	}
}

func TestInvokeTwiceFails(t *testing.T) {
	r := mustCompile(t, reviewGraph(1))
	ctx := context.Background()
	if _, err := r.Invoke(ctx, "dup", counterState{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Invoke(ctx, "dup", counterState{}); !errors.Is(err, ErrThreadExists) {
		t.Errorf("expected ErrThreadExists, got %v", err)
	}
}

func TestNodeFailureIsCheckpointedAndRetried(t *testing.T) {
	boom := errors.New("model unavailable")
	failures := 1

	g := New[counterState]()
	g.AddNode("fetch", visit("fetch"))
	g.AddNode("flaky", func(_ context.Context, s counterState) (counterState, error) {
		if failures > 0 {
			failures--
			return s, boom
		}
		s.Visits = append(s.Visits, "flaky")
		return s, nil
	})
	g.AddEdge("fetch", "flaky")
	g.AddEdge("flaky", End)
	r := mustCompile(t, g)
	ctx := context.Background()

	snap, err := r.Invoke(ctx, "f", counterState{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected node error, got %v", err)
	}
	if snap == nil || snap.Status != checkpoint.StatusFailed || snap.Next != "flaky" {
		t.Fatalf("expected failed snapshot pointing at flaky, got %+v", snap)
	}
	if !strings.Contains(snap.Error, "model unavailable") {
		t.Errorf("snapshot error = %q", snap.Error)
	}

	snap, err = r.Resume(ctx, "f", Command[counterState]{})
	if err != nil {
		t.Fatalf("Resume after failure: %v", err)
	}
	if !snap.Completed() || strings.Join(snap.State.Visits, ",") != "fetch,flaky" {
		t.Errorf("unexpected final snapshot: %+v", snap)
	}
}

func TestUndeclaredRouteFails(t *testing.T) {
	g := New[counterState]()
	g.AddNode("a", visit("a"))
	g.AddNode("b", visit("b"))
	g.AddConditionalEdge("a", func(counterState) string { return "c" }, "b")
	g.AddEdge("b", End)
	r := mustCompile(t, g)

	_, err := r.Invoke(context.Background(), "r", counterState{})
	if !errors.Is(err, ErrUnknownRoute) {
		t.Errorf("expected ErrUnknownRoute, got %v", err)
	}
}

func TestStepLimit(t *testing.T) {
	g := New[counterState]()
	g.AddNode("spin", visit("spin"))
	g.AddConditionalEdge("spin", func(counterState) string { return "spin" }, "spin", End)
	r := mustCompile(t, g, WithStepLimit(5))

	snap, err := r.Invoke(context.Background(), "s", counterState{})
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if len(snap.State.Visits) != 5 {
		t.Errorf("visits = %d, want 5", len(snap.State.Visits))
	}
}

func TestStepLimitKeepsInterrupt(t *testing.T) {
	ctx := context.Background()

	// the limit is reached exactly when the paused node is next
	r := mustCompile(t, reviewGraph(0), WithStepLimit(6))
	snap, err := r.Invoke(ctx, "edge", counterState{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !snap.Interrupted() || snap.Next != "publish" {
		t.Fatalf("expected pause before publish, got status=%s next=%s", snap.Status, snap.Next)
	}

	// a run failed by the limit pauses again on the way to publish
	r = mustCompile(t, reviewGraph(0), WithStepLimit(5))
	snap, err = r.Invoke(ctx, "limit", counterState{})
	if !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if snap.Status != checkpoint.StatusFailed || snap.Next != "check" {
		t.Fatalf("expected failed before check, got status=%s next=%s", snap.Status, snap.Next)
	}
	snap, err = r.Resume(ctx, "limit", Command[counterState]{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !snap.Interrupted() || snap.Next != "publish" {
		t.Fatalf("publish ran without a pause: status=%s visits=%v", snap.Status, snap.State.Visits)
	}
	for _, v := range snap.State.Visits {
		if v == "publish" {
			t.Fatalf("publish visited before approval: %v", snap.State.Visits)
		}
	}
}

func TestListenerEvents(t *testing.T) {
	var kinds []string
	r := mustCompile(t, reviewGraph(1), WithListener(func(e Event) {
		kinds = append(kinds, string(e.Kind)+":"+e.Node)
	}))
	if _, err := r.Invoke(context.Background(), "l", counterState{}); err != nil {
		t.Fatal(err)
	}
	want := "node_start:draft,node_end:draft,node_start:check,node_end:check,interrupt:publish"
	if got := strings.Join(kinds, ","); got != want {
		t.Errorf("events = %s\nwant     %s", got, want)
	}
}

func TestBusyThread(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	g := New[counterState]()
	g.AddNode("slow", func(_ context.Context, s counterState) (counterState, error) {
		close(started)
		<-release
		return s, nil
	})
	g.AddEdge("slow", End)
	r := mustCompile(t, g)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := r.Invoke(ctx, "busy", counterState{})
		done <- err
	}()
	<-started

	if !r.Busy("busy") {
		t.Error("Busy should report the running thread")
	}
	if _, err := r.Resume(ctx, "busy", Command[counterState]{}); !errors.Is(err, ErrThreadBusy) {
		t.Errorf("expected ErrThreadBusy, got %v", err)
	}
	if err := r.Delete(ctx, "busy"); !errors.Is(err, ErrThreadBusy) {
		t.Errorf("Delete while running: expected ErrThreadBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "busy"); err != nil {
		t.Errorf("Delete after completion: %v", err)
	}
}

func TestHistoryAndThreads(t *testing.T) {
	r := mustCompile(t, reviewGraph(1))
	ctx := context.Background()
	if _, err := r.Invoke(ctx, "h", counterState{}); err != nil {
		t.Fatal(err)
	}
	hist, err := r.History(ctx, "h")
	if err != nil {
		t.Fatal(err)
	}
	// draft, check, interrupt
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[0].Node != "draft" || hist[0].Next != "check" {
		t.Errorf("first checkpoint = %s -> %s", hist[0].Node, hist[0].Next)
	}

	threads, err := r.Threads(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 || threads[0].ThreadID != "h" {
		t.Errorf("threads = %+v", threads)
	}

	if _, err := r.State(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
