package stage

import (
	"context"
	"encoding/json"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/llm"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// Architect expands the Plan artifact into an ordered TaskPlan.
type Architect struct {
	client llm.Client
}

// NewArchitect creates the architect stage.
func NewArchitect(client llm.Client) *Architect {
	return &Architect{client: client}
}

// Name returns the stage's pipeline name.
func (a *Architect) Name() string { return session.StageArchitect }

// Run asks the model to break the plan into implementation tasks and
// records them as the "task_plan" artifact. Running without a plan
// artifact is a pipeline wiring bug, not a model failure.
func (a *Architect) Run(ctx context.Context, sc *Context) (Result, error) {
	var plan Plan
	found, err := sc.Artifact(ArtifactPlan, &plan)
	if err != nil {
		return Result{}, errors.NewStageError(a.Name(), "stored plan is malformed").WithCause(err)
	}
	if !found {
		return Result{}, errors.NewInvariantError("architect ran without a plan artifact", nil)
	}

	raw, err := a.client.CompleteWithSystem(ctx, structuredSystemPrompt, architectPrompt(plan))
	if err != nil {
		return Result{}, errors.NewStageError(a.Name(), "model call failed").WithCause(err)
	}

	var taskPlan TaskPlan
	if err := json.Unmarshal([]byte(StripFences(raw)), &taskPlan); err != nil {
		return Result{}, errors.NewStageError(a.Name(), "model returned malformed task plan").WithCause(err)
	}
	if len(taskPlan.ImplementationSteps) == 0 {
		return Result{}, errors.NewStageError(a.Name(), "task plan contains no implementation steps")
	}

	sc.Logger.Info("task plan created", "steps", len(taskPlan.ImplementationSteps))

	payload, err := json.Marshal(taskPlan)
	if err != nil {
		return Result{}, errors.NewStageError(a.Name(), "failed to encode task plan").WithCause(err)
	}
	return Result{Artifacts: map[string]json.RawMessage{ArtifactTaskPlan: payload}}, nil
}
