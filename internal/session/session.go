// Package session defines the session model, progress events, and the
// in-memory registry that owns all session state. The registry is the single
// synchronization point: every state change and its resulting events happen
// under one per-session critical section, so subscribers always observe a
// consistent, gap-free ordering.
package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/codeloom/internal/errors"
)

// Status represents the lifecycle state of a session.
type Status string

// Session lifecycle states. A session starts pending, moves to running when
// its pipeline begins, and ends in exactly one of completed or error.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Pipeline stage names, in execution order.
const (
	StagePlanner   = "planner"
	StageArchitect = "architect"
	StageCoder     = "coder"
)

// Stages returns the pipeline stage names in execution order.
func Stages() []string {
	return []string{StagePlanner, StageArchitect, StageCoder}
}

// stageIndex returns the position of a stage in the pipeline, or -1 for an
// unknown name.
func stageIndex(stage string) int {
	return slices.Index(Stages(), stage)
}

// Session holds all state for a single generation run. Instances handed out
// by the Registry are snapshots; only the Registry mutates the live copy.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"`
	// Prompt is the project description the session was created with.
	Prompt string `json:"prompt"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// CurrentStage is the pipeline stage most recently started. Empty
	// until the first stage begins. Never moves backwards.
	CurrentStage string `json:"current_stage,omitempty"`
	// Artifacts maps artifact kind (e.g. "plan", "task_plan") to the
	// JSON document a stage produced. Each kind is written exactly once.
	Artifacts map[string]json.RawMessage `json:"artifacts,omitempty"`
	// TouchedFiles lists session-relative paths written by the pipeline,
	// in write order. Rewriting a file collapses the duplicate to its
	// last write position.
	TouchedFiles []string `json:"touched_files,omitempty"`
	// Error describes the failure when Status is error. A cancelled
	// session reports reason "cancelled".
	Error *ErrorInfo `json:"error,omitempty"`
	// Cancelled is set when cancellation has been requested. The pipeline
	// checks it between stages.
	Cancelled bool `json:"cancelled,omitempty"`
	// Seq is the sequence number of the most recent event published for
	// this session. Starts at 0 before any event.
	Seq int64 `json:"seq"`
	// CreatedAt is when the session was submitted.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the pipeline began running. Set at most once.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the session reached a terminal state. Set at
	// most once.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// UpdatedAt is when the session last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrorInfo describes why a session ended in the error state.
type ErrorInfo struct {
	// Stage is the pipeline stage where the failure occurred, when known.
	Stage string `json:"stage,omitempty"`
	// Reason is a human-readable failure message.
	Reason string `json:"reason"`
}

// Clone returns a deep copy of the session safe to hand outside the
// registry's critical section.
func (s *Session) Clone() Session {
	c := *s
	if s.Artifacts != nil {
		c.Artifacts = make(map[string]json.RawMessage, len(s.Artifacts))
		for k, v := range s.Artifacts {
			c.Artifacts[k] = slices.Clone(v)
		}
	}
	c.TouchedFiles = slices.Clone(s.TouchedFiles)
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return c
}

// IsTerminal reports whether the session has reached a final state.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// AdvanceStage moves the session to the given stage. The current stage only
// moves forward through the pipeline order.
func (s *Session) AdvanceStage(stage string) error {
	idx := stageIndex(stage)
	if idx < 0 {
		return errors.NewInvariantError(fmt.Sprintf("unknown stage %q", stage), nil)
	}
	if s.CurrentStage != "" && idx <= stageIndex(s.CurrentStage) {
		return errors.NewInvariantError(
			fmt.Sprintf("stage %q does not follow %q", stage, s.CurrentStage), nil)
	}
	s.CurrentStage = stage
	return nil
}

// PutArtifact records a stage output under the given kind. Each kind is
// write-once; a second write for the same kind is a fatal invariant
// violation.
func (s *Session) PutArtifact(kind string, payload json.RawMessage) error {
	if s.Artifacts == nil {
		s.Artifacts = make(map[string]json.RawMessage)
	}
	if _, exists := s.Artifacts[kind]; exists {
		return errors.NewInvariantError(
			fmt.Sprintf("artifact kind %q redefined", kind), errors.ErrArtifactExists)
	}
	s.Artifacts[kind] = payload
	return nil
}

// TouchFile records a written path in write order. Rewriting a path moves
// it to the end, so each path appears once at its last write position.
func (s *Session) TouchFile(path string) {
	if i := slices.Index(s.TouchedFiles, path); i >= 0 {
		s.TouchedFiles = slices.Delete(s.TouchedFiles, i, i+1)
	}
	s.TouchedFiles = append(s.TouchedFiles, path)
}
