package tribunal

import "fmt"

// templates is the small per-task-type prompt library (spec's "one
// template per task type: code review, bug analysis, optimisation,
// security audit").
var templates = map[string]string{
	"code-review":    "Review the following code change for correctness, style, and risk. Respond with a verdict, a confidence in [0,1], and your reasoning.\n\n%s",
	"bug-analysis":   "Analyze the following bug report, identify the likely root cause, and propose a verdict with confidence.\n\n%s",
	"optimisation":   "Evaluate the following change for performance impact and regression risk. Provide a verdict and confidence.\n\n%s",
	"security-audit": "Perform a security audit of the following. Flag any vulnerability class you find, with a verdict and confidence.\n\n%s",
}

// BuildPrompt renders task into the template for its type, falling back to
// a generic template for unrecognised task types.
func BuildPrompt(task Task) string {
	tmpl, ok := templates[task.Type]
	if !ok {
		tmpl = "Evaluate the following and respond with a verdict and confidence.\n\n%s"
	}
	return fmt.Sprintf(tmpl, task.Content)
}
