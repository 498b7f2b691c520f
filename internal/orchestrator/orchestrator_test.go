package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/session"
	"github.com/Iron-Ham/codeloom/internal/stage"
)

// fakeStage runs a caller-supplied function under a fixed stage name.
type fakeStage struct {
	name string
	run  func(ctx context.Context, sc *stage.Context) (stage.Result, error)
}

func (f *fakeStage) Name() string { return f.name }

func (f *fakeStage) Run(ctx context.Context, sc *stage.Context) (stage.Result, error) {
	if f.run == nil {
		return stage.Result{}, nil
	}
	return f.run(ctx, sc)
}

type harness struct {
	registry *session.Registry
	store    *fstore.Store
	orch     *Orchestrator
}

func newHarness(t *testing.T, stages []stage.Stage, opts Options) *harness {
	t.Helper()
	store, err := fstore.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	registry := session.NewRegistry(logging.NopLogger(), 1024)
	factory := func(ctx context.Context, _ SubmitOptions) ([]stage.Stage, error) {
		return stages, nil
	}
	return &harness{
		registry: registry,
		store:    store,
		orch:     New(registry, store, factory, logging.NopLogger(), opts),
	}
}

// collectEvents subscribes to the session and returns its snapshot plus
// every event up to channel close.
func collectEvents(t *testing.T, r *session.Registry, id string) (session.Session, []session.Event) {
	t.Helper()
	snapshot, ch, cancel, err := r.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer cancel()

	var events []session.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return snapshot, events
			}
			events = append(events, evt)
		case <-timeout:
			t.Fatalf("timed out waiting for terminal event; got %d events", len(events))
		}
	}
}

// waitTerminal blocks until the session reaches a terminal state.
func waitTerminal(t *testing.T, h *harness, id string) session.Session {
	t.Helper()
	collectEvents(t, h.registry, id)
	s, err := h.registry.Get(id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !s.IsTerminal() {
		t.Fatalf("session not terminal after event stream closed, status=%s", s.Status)
	}
	return s
}

func plannerLike() stage.Stage {
	return &fakeStage{
		name: session.StagePlanner,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			return stage.Result{Artifacts: map[string]json.RawMessage{
				stage.ArtifactPlan: json.RawMessage(`{"name":"todo"}`),
			}}, nil
		},
	}
}

func coderLike(files map[string]string) stage.Stage {
	return &fakeStage{
		name: session.StageCoder,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			result := stage.Result{}
			for path, content := range files {
				if err := sc.Store.Write(sc.SessionID, path, []byte(content)); err != nil {
					return result, err
				}
				result.FileWrites = append(result.FileWrites, path)
			}
			return result, nil
		},
	}
}

func TestSubmitRunsToCompletion(t *testing.T) {
	h := newHarness(t, []stage.Stage{
		plannerLike(),
		coderLike(map[string]string{"app.py": "print('todo')"}),
	}, Options{})

	s, err := h.orch.Submit("todo app", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if s.Status != session.StatusPending && s.Status != session.StatusRunning {
		t.Errorf("immediate status = %s, want pending or running", s.Status)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusCompleted {
		t.Fatalf("final status = %s, want completed (error: %+v)", final.Status, final.Error)
	}
	if len(final.TouchedFiles) == 0 {
		t.Error("completed session should have touched files")
	}
	if _, ok := final.Artifacts[stage.ArtifactPlan]; !ok {
		t.Error("completed session should have a plan artifact")
	}
	if final.CurrentStage != "" {
		t.Errorf("current stage = %q, want empty after completion", final.CurrentStage)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Error("started_at and completed_at should be stamped")
	}

	files, err := h.store.List(s.ID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "app.py" {
		t.Errorf("stored files = %v, want app.py", files)
	}
}

func TestEventOrdering(t *testing.T) {
	h := newHarness(t, []stage.Stage{
		plannerLike(),
		coderLike(map[string]string{"app.py": "x"}),
	}, Options{})

	s, err := h.orch.Submit("todo app", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	snapshot, events := collectEvents(t, h.registry, s.ID)

	if len(events) == 0 {
		t.Fatal("expected events")
	}
	// Sequence numbers continue the snapshot with no gaps
	for i, evt := range events {
		want := snapshot.Seq + int64(i) + 1
		if evt.Seq != want {
			t.Errorf("events[%d].Seq = %d, want %d", i, evt.Seq, want)
		}
	}

	last := events[len(events)-1]
	if last.Type != session.EventSessionCompleted {
		t.Errorf("last event type = %s, want %s", last.Type, session.EventSessionCompleted)
	}
	for _, evt := range events[:len(events)-1] {
		if evt.Type == session.EventSessionCompleted || evt.Type == session.EventSessionError {
			t.Errorf("terminal event %s appeared before the end", evt.Type)
		}
	}

	// Per stage: stage_started precedes its stage_completed, and
	// file_written events for a stage land between the two.
	started := map[string]int{}
	completed := map[string]int{}
	for i, evt := range events {
		switch evt.Type {
		case session.EventStageStarted:
			started[evt.Stage] = i
		case session.EventStageCompleted:
			completed[evt.Stage] = i
		case session.EventFileWritten:
			if si, ok := started[evt.Stage]; !ok || i < si {
				t.Errorf("file_written for %s before its stage_started", evt.Stage)
			}
		}
	}
	for name, ci := range completed {
		if si, ok := started[name]; !ok || ci < si {
			t.Errorf("stage %s completed before it started", name)
		}
	}
}

func TestFailingStage(t *testing.T) {
	executed := make(chan string, 4)
	failing := &fakeStage{
		name: session.StageArchitect,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			executed <- session.StageArchitect
			return stage.Result{}, errors.NewStageError(session.StageArchitect, "boom")
		},
	}
	after := &fakeStage{
		name: session.StageCoder,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			executed <- session.StageCoder
			return stage.Result{}, nil
		},
	}

	h := newHarness(t, []stage.Stage{plannerLike(), failing, after}, Options{})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Fatalf("final status = %s, want error", final.Status)
	}
	if final.Error == nil {
		t.Fatal("error info should be set")
	}
	if final.Error.Stage != session.StageArchitect {
		t.Errorf("error stage = %q, want %q", final.Error.Stage, session.StageArchitect)
	}
	if final.Error.Reason != "boom" {
		t.Errorf("error reason = %q, want %q", final.Error.Reason, "boom")
	}

	h.orch.Wait()
	close(executed)
	for name := range executed {
		if name == session.StageCoder {
			t.Error("no stage should run after a failure")
		}
	}
}

func TestCancelBetweenStages(t *testing.T) {
	h := newHarness(t, nil, Options{})

	// The first stage writes a file and then requests cancellation of
	// its own session, emulating a cancel arriving between stages.
	first := &fakeStage{
		name: session.StagePlanner,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			if err := sc.Store.Write(sc.SessionID, "early.py", []byte("kept")); err != nil {
				return stage.Result{}, err
			}
			if err := h.orch.Cancel(sc.SessionID); err != nil {
				return stage.Result{}, err
			}
			return stage.Result{FileWrites: []string{"early.py"}}, nil
		},
	}
	var secondRan sync.Once
	ran := false
	second := &fakeStage{
		name: session.StageCoder,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			secondRan.Do(func() { ran = true })
			return stage.Result{}, nil
		},
	}
	h.orch.stages = func(ctx context.Context, _ SubmitOptions) ([]stage.Stage, error) {
		return []stage.Stage{first, second}, nil
	}

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Fatalf("final status = %s, want error", final.Status)
	}
	if final.Error == nil || final.Error.Reason != "cancelled" {
		t.Fatalf("error = %+v, want reason cancelled", final.Error)
	}

	h.orch.Wait()
	if ran {
		t.Error("stage after cancellation should not run")
	}

	// The first stage's writes survive
	files, err := h.store.List(s.ID)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "early.py" {
		t.Errorf("files after cancel = %v, want early.py preserved", files)
	}
	if len(final.TouchedFiles) != 1 || final.TouchedFiles[0] != "early.py" {
		t.Errorf("touched files = %v, want early.py", final.TouchedFiles)
	}
}

func TestCancelDuringFinalStage(t *testing.T) {
	h := newHarness(t, nil, Options{})

	// The only stage cancels its own session and then returns success,
	// emulating a cancel that arrives while the last stage is in flight.
	// The stage finishes, but the cancellation still wins.
	last := &fakeStage{
		name: session.StagePlanner,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			if err := h.orch.Cancel(sc.SessionID); err != nil {
				return stage.Result{}, err
			}
			return stage.Result{Artifacts: map[string]json.RawMessage{
				stage.ArtifactPlan: json.RawMessage(`{"name":"todo"}`),
			}}, nil
		},
	}
	h.orch.stages = func(ctx context.Context, _ SubmitOptions) ([]stage.Stage, error) {
		return []stage.Stage{last}, nil
	}

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Fatalf("final status = %s, want error", final.Status)
	}
	if final.Error == nil || final.Error.Reason != "cancelled" {
		t.Fatalf("error = %+v, want reason cancelled", final.Error)
	}
	if final.Error.Stage != session.StagePlanner {
		t.Errorf("error stage = %q, want %q", final.Error.Stage, session.StagePlanner)
	}
}

func TestCancelTerminalSession(t *testing.T) {
	h := newHarness(t, []stage.Stage{plannerLike()}, Options{})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, h, s.ID)

	if err := h.orch.Cancel(s.ID); !errors.Is(err, errors.ErrSessionTerminal) {
		t.Errorf("Cancel on terminal session: expected ErrSessionTerminal, got %v", err)
	}
}

func TestDuplicateArtifactKindIsFatal(t *testing.T) {
	redefiner := &fakeStage{
		name: session.StageArchitect,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			return stage.Result{Artifacts: map[string]json.RawMessage{
				stage.ArtifactPlan: json.RawMessage(`{"name":"other"}`),
			}}, nil
		},
	}
	h := newHarness(t, []stage.Stage{plannerLike(), redefiner}, Options{})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Fatalf("final status = %s, want error", final.Status)
	}
	if final.Error == nil || final.Error.Stage != session.StageArchitect {
		t.Errorf("error = %+v, want stage architect", final.Error)
	}
	// The original artifact is untouched
	if string(final.Artifacts[stage.ArtifactPlan]) != `{"name":"todo"}` {
		t.Error("original artifact should survive the rejected redefinition")
	}
}

func TestRejectedDeltaMergesNothing(t *testing.T) {
	// A delta carrying both a fresh kind and a redefined kind must be
	// rejected whole: the fresh kind must not linger on the session.
	redefiner := &fakeStage{
		name: session.StageArchitect,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			return stage.Result{Artifacts: map[string]json.RawMessage{
				stage.ArtifactTaskPlan: json.RawMessage(`{"implementation_steps":[]}`),
				stage.ArtifactPlan:     json.RawMessage(`{"name":"other"}`),
			}}, nil
		},
	}
	h := newHarness(t, []stage.Stage{plannerLike(), redefiner}, Options{})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Fatalf("final status = %s, want error", final.Status)
	}
	if _, ok := final.Artifacts[stage.ArtifactTaskPlan]; ok {
		t.Error("fresh kind from a rejected delta should not be merged")
	}
	if string(final.Artifacts[stage.ArtifactPlan]) != `{"name":"todo"}` {
		t.Error("original artifact should survive the rejected redefinition")
	}
}

func TestSubmitEmptyPrompt(t *testing.T) {
	h := newHarness(t, []stage.Stage{plannerLike()}, Options{})

	_, err := h.orch.Submit("   ", SubmitOptions{})
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRetrySharesPrompt(t *testing.T) {
	h := newHarness(t, []stage.Stage{plannerLike()}, Options{})

	s, err := h.orch.Submit("build a todo app", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitTerminal(t, h, s.ID)

	retry, err := h.orch.Retry(s.ID, SubmitOptions{})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retry.ID == s.ID {
		t.Error("retry should create a fresh session ID")
	}
	if retry.Prompt != s.Prompt {
		t.Errorf("retry prompt = %q, want %q", retry.Prompt, s.Prompt)
	}
	waitTerminal(t, h, retry.ID)
}

func TestRetryUnknownSession(t *testing.T) {
	h := newHarness(t, []stage.Stage{plannerLike()}, Options{})

	if _, err := h.orch.Retry("nope", SubmitOptions{}); !errors.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}

func TestConcurrentSessionsConverge(t *testing.T) {
	h := newHarness(t, []stage.Stage{
		plannerLike(),
		coderLike(map[string]string{"main.go": "package main"}),
	}, Options{MaxConcurrentSessions: 2})

	const n = 6
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		s, err := h.orch.Submit("app", SubmitOptions{})
		if err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		ids = append(ids, s.ID)
	}

	for _, id := range ids {
		final := waitTerminal(t, h, id)
		if final.Status != session.StatusCompleted {
			t.Errorf("session %s status = %s, want completed", id, final.Status)
		}
	}
}

func TestTwoSubscribersConverge(t *testing.T) {
	h := newHarness(t, []stage.Stage{
		plannerLike(),
		coderLike(map[string]string{"a.py": "x", "b.py": "y"}),
	}, Options{})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	type view struct {
		snapshot session.Session
		events   []session.Event
	}
	results := make(chan view, 2)

	var wg sync.WaitGroup
	wg.Go(func() {
		snap, evts := collectEvents(t, h.registry, s.ID)
		results <- view{snap, evts}
	})
	wg.Go(func() {
		// Late subscriber
		time.Sleep(5 * time.Millisecond)
		snap, evts := collectEvents(t, h.registry, s.ID)
		results <- view{snap, evts}
	})
	wg.Wait()
	close(results)

	final, _ := h.registry.Get(s.ID)
	for v := range results {
		// Snapshot seq plus delivered events must land exactly on the
		// final sequence number: order-independent convergence.
		lastSeq := v.snapshot.Seq
		for _, evt := range v.events {
			if evt.Seq != lastSeq+1 {
				t.Errorf("gap in event stream: got Seq %d after %d", evt.Seq, lastSeq)
			}
			lastSeq = evt.Seq
		}
		if lastSeq != final.Seq {
			t.Errorf("subscriber ended at Seq %d, final is %d", lastSeq, final.Seq)
		}
	}
}

func TestStageTimeout(t *testing.T) {
	slow := &fakeStage{
		name: session.StagePlanner,
		run: func(ctx context.Context, sc *stage.Context) (stage.Result, error) {
			select {
			case <-ctx.Done():
				return stage.Result{}, errors.NewStageError(session.StagePlanner, "timed out").WithCause(ctx.Err())
			case <-time.After(5 * time.Second):
				return stage.Result{}, nil
			}
		},
	}
	h := newHarness(t, []stage.Stage{slow}, Options{StageTimeout: 20 * time.Millisecond})

	s, err := h.orch.Submit("x", SubmitOptions{})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	final := waitTerminal(t, h, s.ID)
	if final.Status != session.StatusError {
		t.Errorf("final status = %s, want error", final.Status)
	}
}
