package planner

import (
	"fmt"
	"strings"
)

// TaskContext is the opaque planning context the caller may supply:
// server info, constraints, and available tools.
type TaskContext struct {
	ServerInfo     map[string]interface{}
	Constraints    []string
	AvailableTools []string
}

// buildPlanningPrompt assembles the strict JSON-only planning prompt as
// plain string concatenation rather than through a templating engine.
func buildPlanningPrompt(description string, maxSteps int, ctx *TaskContext) string {
	var b strings.Builder
	b.WriteString("Break the following task into 1 to ")
	fmt.Fprintf(&b, "%d", maxSteps)
	b.WriteString(" ordered steps.\n\nTask: ")
	b.WriteString(description)
	b.WriteString("\n\n")

	if ctx != nil {
		if len(ctx.ServerInfo) > 0 {
			b.WriteString("Server info:\n")
			for k, v := range ctx.ServerInfo {
				fmt.Fprintf(&b, "- %s: %v\n", k, v)
			}
		}
		if len(ctx.Constraints) > 0 {
			b.WriteString("Constraints:\n")
			for _, c := range ctx.Constraints {
				fmt.Fprintf(&b, "- %s\n", c)
			}
		}
		if len(ctx.AvailableTools) > 0 {
			b.WriteString("Available tools: ")
			b.WriteString(strings.Join(ctx.AvailableTools, ", "))
			b.WriteString("\n")
		}
	}

	b.WriteString("\nRespond with ONLY a single JSON object, no prose, no markdown fences. Shape:\n")
	b.WriteString(`{"steps":[{"title":"...","description":"...","priority":"low|medium|high|critical","estimated_duration":<minutes>,"dependencies":[<0-based step index>,...]}]}`)
	b.WriteString("\n\nPrefer idempotent steps. Dependencies are 0-based indices into this same steps array.")
	return b.String()
}
