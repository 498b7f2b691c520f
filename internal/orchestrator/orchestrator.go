// Package orchestrator drives sessions through the pipeline. Submission
// creates a session and runs its stages on a background goroutine; every
// state transition goes through the registry so ordering and event
// invariants hold no matter how many sessions run concurrently.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/logging"
	"github.com/Iron-Ham/codeloom/internal/session"
	"github.com/Iron-Ham/codeloom/internal/stage"
)

// cancelledReason is the error reason recorded for cancelled sessions.
const cancelledReason = "cancelled"

// SubmitOptions carries optional per-submission overrides.
type SubmitOptions struct {
	// Model overrides the configured model name for this session.
	Model string
	// Temperature overrides the configured sampling temperature.
	Temperature *float64
}

// StageFactory builds the pipeline stages for one submission. Options let
// a submission override the model backend without touching global config.
type StageFactory func(ctx context.Context, opts SubmitOptions) ([]stage.Stage, error)

// Orchestrator owns pipeline execution for all sessions.
type Orchestrator struct {
	registry *session.Registry
	store    *fstore.Store
	stages   StageFactory
	logger   *logging.Logger

	stageTimeout time.Duration
	sem          chan struct{}
	wg           sync.WaitGroup

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// Options configures an Orchestrator.
type Options struct {
	// StageTimeout bounds each stage's runtime, 0 = no timeout.
	StageTimeout time.Duration
	// MaxConcurrentSessions limits parallel pipeline runs, 0 = unlimited.
	MaxConcurrentSessions int
}

// New creates an Orchestrator.
func New(registry *session.Registry, store *fstore.Store, stages StageFactory, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	var sem chan struct{}
	if opts.MaxConcurrentSessions > 0 {
		sem = make(chan struct{}, opts.MaxConcurrentSessions)
	}
	return &Orchestrator{
		registry:     registry,
		store:        store,
		stages:       stages,
		logger:       logger,
		stageTimeout: opts.StageTimeout,
		sem:          sem,
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Submit validates the prompt, creates a new pending session, and starts
// its pipeline in the background. The returned snapshot is the session as
// created; callers observe progress via the registry.
func (o *Orchestrator) Submit(prompt string, opts SubmitOptions) (session.Session, error) {
	if strings.TrimSpace(prompt) == "" {
		return session.Session{}, errors.NewValidationError("prompt cannot be empty").WithField("prompt")
	}

	s := o.registry.Create(prompt)
	o.start(s.ID, opts)
	return s, nil
}

// Retry creates a fresh session sharing the original session's prompt.
// The original session is left untouched; retry never resumes a pipeline
// mid-flight.
func (o *Orchestrator) Retry(id string, opts SubmitOptions) (session.Session, error) {
	original, err := o.registry.Get(id)
	if err != nil {
		return session.Session{}, err
	}
	return o.Submit(original.Prompt, opts)
}

// Cancel requests cancellation of a running session. The flag is checked
// between stages, and the in-flight stage's context is cancelled so long
// model calls stop early. Cancelling a terminal session is an error.
func (o *Orchestrator) Cancel(id string) error {
	_, err := o.registry.Apply(id, func(live *session.Session) ([]session.Event, error) {
		if live.IsTerminal() {
			return nil, errors.Wrapf(errors.ErrSessionTerminal, "session %s", id)
		}
		live.Cancelled = true
		return nil, nil
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	cancel := o.cancels[id]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until every in-flight pipeline has finished. Used during
// graceful shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// StartSweeper periodically evicts old terminal sessions and their files
// until ctx is cancelled.
func (o *Orchestrator) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.sweep(maxAge)
			}
		}
	}()
}

func (o *Orchestrator) sweep(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	for _, s := range o.registry.List() {
		if !s.IsTerminal() || !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := o.registry.Delete(s.ID); err != nil {
			continue
		}
		if err := o.store.DeleteSession(s.ID); err != nil {
			o.logger.WithSession(s.ID).Warn("failed to delete swept session files", "error", err)
		}
	}
}

// start launches the pipeline goroutine for a freshly created session.
func (o *Orchestrator) start(id string, opts SubmitOptions) {
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[id] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.mu.Lock()
			delete(o.cancels, id)
			o.mu.Unlock()
		}()

		if o.sem != nil {
			select {
			case o.sem <- struct{}{}:
				defer func() { <-o.sem }()
			case <-runCtx.Done():
				o.fail(id, "", cancelledReason)
				return
			}
		}

		o.run(runCtx, id, opts)
	}()
}

// run executes the session's stages in order, publishing progress events
// through the registry as transitions happen.
func (o *Orchestrator) run(ctx context.Context, id string, opts SubmitOptions) {
	logger := o.logger.WithSession(id)

	stages, err := o.stages(ctx, opts)
	if err != nil {
		logger.Error("failed to build pipeline stages", "error", err)
		o.fail(id, "", err.Error())
		return
	}

	for i, st := range stages {
		first := i == 0

		// Advance to the stage inside the critical section; a
		// cancellation requested before this point ends the run here.
		snapshot, err := o.registry.Apply(id, func(live *session.Session) ([]session.Event, error) {
			if live.Cancelled {
				return nil, errors.ErrCancelled
			}
			if err := live.AdvanceStage(st.Name()); err != nil {
				return nil, err
			}
			if first {
				live.Status = session.StatusRunning
				now := time.Now()
				live.StartedAt = &now
			}
			return []session.Event{session.NewStageStartedEvent(st.Name())}, nil
		})
		if err != nil {
			if errors.Is(err, errors.ErrCancelled) {
				o.fail(id, snapshot.CurrentStage, cancelledReason)
			} else {
				logger.Error("failed to advance stage", "stage", st.Name(), "error", err)
				o.fail(id, st.Name(), err.Error())
			}
			return
		}

		result, err := o.runStage(ctx, st, snapshot, logger)
		if err != nil {
			// A stage interrupted by cancellation reports the
			// cancellation, not its own wrapped failure.
			if cur, getErr := o.registry.Get(id); getErr == nil && cur.Cancelled {
				o.fail(id, st.Name(), cancelledReason)
				return
			}
			logger.Warn("stage failed", "stage", st.Name(), "error", err)
			o.fail(id, st.Name(), failureReason(err))
			return
		}

		// Merge the stage's delta and publish its events atomically.
		// Every kind is validated before any is inserted so a rejected
		// delta leaves the session untouched.
		_, err = o.registry.Apply(id, func(live *session.Session) ([]session.Event, error) {
			for kind := range result.Artifacts {
				if _, exists := live.Artifacts[kind]; exists {
					return nil, errors.NewInvariantError(
						fmt.Sprintf("artifact kind %q redefined", kind), errors.ErrArtifactExists)
				}
			}
			for kind, payload := range result.Artifacts {
				if err := live.PutArtifact(kind, payload); err != nil {
					return nil, err
				}
			}
			events := make([]session.Event, 0, len(result.FileWrites)+1)
			for _, path := range result.FileWrites {
				live.TouchFile(path)
				events = append(events, session.NewFileWrittenEvent(st.Name(), path))
			}
			events = append(events, session.NewStageCompletedEvent(st.Name()))
			return events, nil
		})
		if err != nil {
			// Artifact redefinition is a programming contract
			// violation and fails the whole run.
			logger.Error("failed to merge stage result", "stage", st.Name(), "error", err)
			o.fail(id, st.Name(), err.Error())
			return
		}

		logger.WithStage(st.Name()).Info("stage completed",
			"files_written", len(result.FileWrites), "artifacts", len(result.Artifacts))
	}

	lastStage := ""
	if len(stages) > 0 {
		lastStage = stages[len(stages)-1].Name()
	}
	if o.complete(id, lastStage) {
		logger.Info("session completed")
	}
}

// runStage builds the stage context from the session snapshot and executes
// the stage under the configured timeout.
func (o *Orchestrator) runStage(ctx context.Context, st stage.Stage, snapshot session.Session, logger *logging.Logger) (stage.Result, error) {
	if o.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stageTimeout)
		defer cancel()
	}

	sc := &stage.Context{
		SessionID: snapshot.ID,
		Prompt:    snapshot.Prompt,
		Artifacts: snapshot.Artifacts,
		Store:     o.store,
		Logger:    logger.WithStage(st.Name()),
	}
	return st.Run(ctx, sc)
}

// complete transitions the session to its successful terminal state and
// reports whether it did. A cancellation that arrived while the final
// stage was in flight wins instead: the session ends in the error state
// with reason "cancelled".
func (o *Orchestrator) complete(id, lastStage string) bool {
	_, err := o.registry.Apply(id, func(live *session.Session) ([]session.Event, error) {
		if live.Cancelled {
			return nil, errors.ErrCancelled
		}
		live.Status = session.StatusCompleted
		live.CurrentStage = ""
		now := time.Now()
		live.CompletedAt = &now
		return []session.Event{session.NewSessionCompletedEvent()}, nil
	})
	if errors.Is(err, errors.ErrCancelled) {
		o.fail(id, lastStage, cancelledReason)
		return false
	}
	if err != nil {
		o.logger.WithSession(id).Error("failed to complete session", "error", err)
		return false
	}
	return true
}

// fail transitions the session to its error terminal state.
func (o *Orchestrator) fail(id, stageName, reason string) {
	_, err := o.registry.Apply(id, func(live *session.Session) ([]session.Event, error) {
		live.Status = session.StatusError
		live.CurrentStage = ""
		live.Error = &session.ErrorInfo{Stage: stageName, Reason: reason}
		now := time.Now()
		live.CompletedAt = &now
		return []session.Event{session.NewSessionErrorEvent(stageName, reason)}, nil
	})
	if err != nil {
		o.logger.WithSession(id).Error("failed to record session failure", "error", err)
	}
}

// failureReason extracts the user-facing reason from a stage failure.
func failureReason(err error) string {
	var stageErr *errors.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Reason
	}
	return err.Error()
}
