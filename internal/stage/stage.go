package stage

import (
	"context"
	"encoding/json"

	"github.com/Iron-Ham/codeloom/internal/fstore"
	"github.com/Iron-Ham/codeloom/internal/logging"
)

// Context carries everything a stage may consume: the original prompt, the
// artifacts accumulated by earlier stages, and sandboxed file access for
// the owning session.
type Context struct {
	// SessionID identifies the session the stage runs for.
	SessionID string
	// Prompt is the project description the session was created with.
	Prompt string
	// Artifacts holds the outputs of earlier stages by kind.
	Artifacts map[string]json.RawMessage
	// Store gives the stage sandboxed file access.
	Store *fstore.Store
	// Logger is scoped to the session and stage.
	Logger *logging.Logger
}

// Artifact decodes the artifact of the given kind into v. It returns false
// when no artifact of that kind exists.
func (c *Context) Artifact(kind string, v any) (bool, error) {
	raw, ok := c.Artifacts[kind]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, err
	}
	return true, nil
}

// Result is what a successful stage hands back to the orchestrator.
type Result struct {
	// Artifacts are new artifact kinds to merge into the session.
	// Redefining an existing kind fails the whole run.
	Artifacts map[string]json.RawMessage
	// FileWrites lists session-relative paths the stage wrote, in write
	// order.
	FileWrites []string
}

// Stage is a single unit of pipeline work. Run consumes the accumulated
// session state and either augments it with artifacts or performs file
// store writes, reporting both through its Result.
type Stage interface {
	// Name returns the stage's pipeline name.
	Name() string
	// Run executes the stage. A non-nil error fails the session.
	Run(ctx context.Context, sc *Context) (Result, error)
}
