// Package stage implements the pipeline stages that turn a project prompt
// into generated files: the planner produces a project plan, the architect
// expands it into ordered implementation tasks, and the coder executes each
// task against the session's file store.
package stage

// Artifact kinds produced by stages. Each kind is written once per session.
const (
	// ArtifactPlan is the planner's output.
	ArtifactPlan = "plan"
	// ArtifactTaskPlan is the architect's output.
	ArtifactTaskPlan = "task_plan"
)

// FileSpec names a file the planner wants created and why.
type FileSpec struct {
	// FilePath is the project-relative path of the file to create.
	FilePath string `json:"file_path"`
	// FilePurpose describes the file's role, e.g. "main application logic".
	FilePurpose string `json:"file_purpose"`
}

// Plan is the planner's structured description of the project to build.
type Plan struct {
	// Name of the app to be built.
	Name string `json:"name"`
	// Description is a one-line summary of the app.
	Description string `json:"description"`
	// TechStack names the technologies to use, e.g. "python, flask".
	TechStack string `json:"tech_stack"`
	// Features lists user-visible capabilities.
	Features []string `json:"features"`
	// Files lists the files to create.
	Files []FileSpec `json:"files"`
}

// ImplementationTask is a single unit of coding work.
type ImplementationTask struct {
	// FilePath is the project-relative path of the file to create or modify.
	FilePath string `json:"filepath"`
	// TaskDescription details the work to perform on that file.
	TaskDescription string `json:"task_description"`
}

// TaskPlan is the architect's ordered breakdown of the plan into tasks.
type TaskPlan struct {
	// ImplementationSteps is the ordered task list the coder executes.
	ImplementationSteps []ImplementationTask `json:"implementation_steps"`
}
