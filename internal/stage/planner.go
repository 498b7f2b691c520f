package stage

import (
	"context"
	"encoding/json"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/llm"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// Planner turns the user's project description into a structured Plan
// artifact.
type Planner struct {
	client llm.Client
}

// NewPlanner creates the planner stage.
func NewPlanner(client llm.Client) *Planner {
	return &Planner{client: client}
}

// Name returns the stage's pipeline name.
func (p *Planner) Name() string { return session.StagePlanner }

// Run asks the model for a project plan and records it as the "plan"
// artifact. A response that is not valid JSON or names no files fails the
// stage.
func (p *Planner) Run(ctx context.Context, sc *Context) (Result, error) {
	raw, err := p.client.CompleteWithSystem(ctx, structuredSystemPrompt, plannerPrompt(sc.Prompt))
	if err != nil {
		return Result{}, errors.NewStageError(p.Name(), "model call failed").WithCause(err)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(StripFences(raw)), &plan); err != nil {
		return Result{}, errors.NewStageError(p.Name(), "model returned malformed plan").WithCause(err)
	}
	if len(plan.Files) == 0 {
		return Result{}, errors.NewStageError(p.Name(), "plan contains no files")
	}

	sc.Logger.Info("plan created", "name", plan.Name, "files", len(plan.Files))

	payload, err := json.Marshal(plan)
	if err != nil {
		return Result{}, errors.NewStageError(p.Name(), "failed to encode plan").WithCause(err)
	}
	return Result{Artifacts: map[string]json.RawMessage{ArtifactPlan: payload}}, nil
}
