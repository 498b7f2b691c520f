package stage

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/codeloom/internal/errors"
	"github.com/Iron-Ham/codeloom/internal/llm"
	"github.com/Iron-Ham/codeloom/internal/session"
)

// Coder executes the TaskPlan step by step, generating file content with
// the model and writing it into the session's file store.
type Coder struct {
	client llm.Client
}

// NewCoder creates the coder stage.
func NewCoder(client llm.Client) *Coder {
	return &Coder{client: client}
}

// Name returns the stage's pipeline name.
func (c *Coder) Name() string { return session.StageCoder }

// Run processes each implementation step in order. A step's prompt
// includes the target file's current content, so later steps against the
// same file build on earlier output rather than overwriting it blindly.
// Writes from completed steps are kept even if a later step fails.
func (c *Coder) Run(ctx context.Context, sc *Context) (Result, error) {
	var taskPlan TaskPlan
	found, err := sc.Artifact(ArtifactTaskPlan, &taskPlan)
	if err != nil {
		return Result{}, errors.NewStageError(c.Name(), "stored task plan is malformed").WithCause(err)
	}
	if !found {
		return Result{}, errors.NewInvariantError("coder ran without a task_plan artifact", nil)
	}

	result := Result{}
	for i, task := range taskPlan.ImplementationSteps {
		if err := ctx.Err(); err != nil {
			return result, errors.NewStageError(c.Name(),
				fmt.Sprintf("interrupted at step %d/%d", i+1, len(taskPlan.ImplementationSteps))).WithCause(err)
		}

		stepLogger := sc.Logger.With("step", i+1, "file", task.FilePath)
		stepLogger.Debug("processing implementation step", "task", task.TaskDescription)

		// A missing file just means this is the first task for it.
		existing, err := sc.Store.Read(sc.SessionID, task.FilePath)
		if err != nil && !errors.Is(err, errors.ErrFileNotFound) {
			return result, errors.NewStageError(c.Name(),
				fmt.Sprintf("failed to read %s", task.FilePath)).WithCause(err)
		}

		raw, err := c.client.CompleteWithSystem(ctx, coderSystemPrompt(), coderTaskPrompt(task, string(existing)))
		if err != nil {
			return result, errors.NewStageError(c.Name(),
				fmt.Sprintf("model call failed at step %d/%d", i+1, len(taskPlan.ImplementationSteps))).WithCause(err)
		}

		content := StripFences(raw)
		if content == "" {
			return result, errors.NewStageError(c.Name(),
				fmt.Sprintf("model produced no content for %s", task.FilePath))
		}

		if err := sc.Store.Write(sc.SessionID, task.FilePath, []byte(content)); err != nil {
			return result, errors.NewStageError(c.Name(),
				fmt.Sprintf("failed to write %s", task.FilePath)).WithCause(err)
		}

		result.FileWrites = append(result.FileWrites, task.FilePath)
		stepLogger.Info("wrote file", "bytes", len(content))
	}

	return result, nil
}
