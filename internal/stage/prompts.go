package stage

import (
	"fmt"
	"strings"
)

// structuredSystemPrompt instructs the model to emit bare JSON for the
// planner and architect stages.
const structuredSystemPrompt = "Return ONLY JSON matching the schema. No prose."

// plannerPrompt asks the model to turn a project description into a Plan.
func plannerPrompt(userPrompt string) string {
	var b strings.Builder
	b.WriteString("You are the PLANNER agent. Convert the user request into a complete engineering project plan.\n\n")
	b.WriteString("User request:\n")
	b.WriteString(userPrompt)
	b.WriteString("\n\nRespond with a JSON object with these fields:\n")
	b.WriteString(`- "name": the name of the app to be built` + "\n")
	b.WriteString(`- "description": a one-line description of the app` + "\n")
	b.WriteString(`- "tech_stack": the tech stack to use, e.g. "python", "javascript", "flask"` + "\n")
	b.WriteString(`- "features": a list of feature strings` + "\n")
	b.WriteString(`- "files": a list of objects, each with "file_path" and "file_purpose"` + "\n")
	return b.String()
}

// architectPrompt asks the model to expand a Plan into ordered
// implementation tasks.
func architectPrompt(plan Plan) string {
	var b strings.Builder
	b.WriteString("You are the ARCHITECT agent. Break the project plan into explicit, ordered implementation tasks.\n\n")
	fmt.Fprintf(&b, "Project: %s\nDescription: %s\nTech stack: %s\n", plan.Name, plan.Description, plan.TechStack)
	if len(plan.Features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(plan.Features, ", "))
	}
	b.WriteString("\nFiles to create:\n")
	for _, f := range plan.Files {
		fmt.Fprintf(&b, "- %s: %s\n", f.FilePath, f.FilePurpose)
	}
	b.WriteString("\nRules:\n")
	b.WriteString("- Order tasks so that dependencies are implemented before the files that use them.\n")
	b.WriteString("- Each task must name exactly one file from the plan and describe precisely what to implement in it, including functions, classes, endpoints, and how they integrate with earlier files.\n")
	b.WriteString("\nRespond with a JSON object with one field:\n")
	b.WriteString(`- "implementation_steps": an ordered list of objects, each with "filepath" and "task_description"` + "\n")
	return b.String()
}

// coderSystemPrompt is the system instruction for the coder stage.
func coderSystemPrompt() string {
	return "You are the CODER agent. Generate the complete file content for the implementation. " +
		"Provide only the code, no explanations or markdown formatting."
}

// coderTaskPrompt builds the per-task prompt, including the file's current
// content so repeated tasks against one file build on earlier work.
func coderTaskPrompt(task ImplementationTask, existingContent string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\n", task.TaskDescription)
	fmt.Fprintf(&b, "File: %s\n", task.FilePath)
	b.WriteString("Existing content:\n")
	b.WriteString(existingContent)
	b.WriteString("\nRespond with the full updated content of the file.")
	return b.String()
}
