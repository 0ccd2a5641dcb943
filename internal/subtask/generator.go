// Package subtask implements the Subtask Generator: expands one Step into
// an ordered list of Subtasks, preferring a templated command chain over
// asking the model to invent commands from scratch.
package subtask

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/opsmind/sshagent/internal/autocorrect"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/validator"
)

// GenerationContext carries the information PlanSubtasks needs beyond the
// Step itself: the target OS family and a default command timeout.
type GenerationContext struct {
	OSType         string
	DefaultTimeout time.Duration
}

// Generator produces Subtasks for a Step, validating every command it
// proposes and asking the Autocorrection Engine for a replacement when the
// Validator rejects one.
type Generator struct {
	ai         coreapi.AIClient
	validator  *validator.Validator
	autocorrect *autocorrect.Engine
	logger     coreapi.Logger
}

// New creates a Generator.
func New(ai coreapi.AIClient, v *validator.Validator, ac *autocorrect.Engine, logger coreapi.Logger) *Generator {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	return &Generator{ai: ai, validator: v, autocorrect: ac, logger: logger}
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// PlanSubtasks produces a single templated Subtask when the step's
// title/description matches a known category, parameterized by the model,
// otherwise falls back to a from-scratch model-proposed Subtask. Every
// command is validated before being admitted.
func (g *Generator) PlanSubtasks(ctx context.Context, step *model.Step, genCtx GenerationContext) ([]model.Subtask, error) {
	if genCtx.OSType == "" {
		genCtx.OSType = "ubuntu"
	}
	if genCtx.DefaultTimeout == 0 {
		genCtx.DefaultTimeout = 30 * time.Second
	}

	var commands, healthChecks, rollback []string

	if catName, ok := matchCategory(step.Title, step.Description); ok {
		tmpl, ok := lookupTemplate(catName, genCtx.OSType)
		if !ok {
			return nil, coreapi.NewFrameworkError("subtask.PlanSubtasks", "subtask", coreapi.ErrPlanMalformed).WithID(step.ID)
		}
		params, err := g.parameterize(ctx, step, tmpl)
		if err != nil {
			return nil, err
		}
		commands = render(tmpl.Commands, params)
		healthChecks = render(tmpl.HealthChecks, params)
		rollback = render(tmpl.RollbackCommands, params)
	} else {
		generated, err := g.generateFromScratch(ctx, step)
		if err != nil {
			return nil, err
		}
		commands, healthChecks, rollback = generated.Commands, generated.HealthChecks, generated.RollbackCommands
	}

	validatedCommands, err := g.validateAll(ctx, step.ID, commands)
	if err != nil {
		return nil, err
	}

	sub := model.NewSubtask(step.ID, validatedCommands, healthChecks, rollback, genCtx.DefaultTimeout)
	return []model.Subtask{*sub}, nil
}

// validateAll runs every command through the Validator, substituting the
// Autocorrection Engine's candidate for any rejected command; a command
// neither permitted nor correctable fails the whole generation, marking the
// Subtask invalid and the step's planning failed.
func (g *Generator) validateAll(ctx context.Context, stepID string, commands []string) ([]string, error) {
	out := make([]string, 0, len(commands))
	for _, cmd := range commands {
		res := g.validator.Validate(cmd, &validator.ValidationContext{StepID: stepID})
		if res.Valid {
			out = append(out, cmd)
			continue
		}
		if g.autocorrect == nil {
			return nil, coreapi.NewFrameworkError("subtask.validateAll", "subtask", coreapi.ErrCommandForbidden).WithID(stepID)
		}
		candidate := g.autocorrect.Correct(ctx, cmd, strings.Join(res.Errors, "; "))
		if candidate.CorrectionType == autocorrect.TypeNone || candidate.CorrectedCommand == "" {
			return nil, coreapi.NewFrameworkError("subtask.validateAll", "subtask", coreapi.ErrCommandForbidden).WithID(stepID)
		}
		correctedResult := g.validator.Validate(candidate.CorrectedCommand, &validator.ValidationContext{StepID: stepID})
		if !correctedResult.Valid {
			return nil, coreapi.NewFrameworkError("subtask.validateAll", "subtask", coreapi.ErrCommandForbidden).WithID(stepID)
		}
		out = append(out, candidate.CorrectedCommand)
	}
	return out, nil
}

type generatedCommands struct {
	Commands         []string `json:"commands"`
	HealthChecks     []string `json:"health_checks"`
	RollbackCommands []string `json:"rollback_commands"`
}

// parameterize asks the model to fill in the template's {{placeholder}}
// values from the step's title/description; the model is asked only to
// parameterize the template, never to invent its own commands.
func (g *Generator) parameterize(ctx context.Context, step *model.Step, tmpl Template) (map[string]string, error) {
	placeholders := map[string]bool{}
	for _, c := range append(append(append([]string{}, tmpl.Commands...), tmpl.HealthChecks...), tmpl.RollbackCommands...) {
		for _, m := range placeholderPattern.FindAllStringSubmatch(c, -1) {
			placeholders[m[1]] = true
		}
	}
	if len(placeholders) == 0 {
		return map[string]string{}, nil
	}

	names := make([]string, 0, len(placeholders))
	for name := range placeholders {
		names = append(names, name)
	}

	resp, err := g.ai.Complete(ctx, coreapi.CompletionRequest{
		SystemMessage: "Extract template parameters as strict JSON, no prose.",
		Prompt: "Step title: " + step.Title + "\nStep description: " + step.Description +
			"\nRespond with a JSON object mapping each of these parameter names to a concrete value: " + strings.Join(names, ", "),
		Temperature: 0,
	})
	if err != nil {
		return nil, coreapi.NewFrameworkError("subtask.parameterize", "subtask", err).WithID(step.ID)
	}

	obj, ok := extractFirstJSONObject(resp.Content)
	if !ok {
		return nil, coreapi.NewFrameworkError("subtask.parameterize", "subtask", coreapi.ErrPlanMalformed).WithID(step.ID)
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(obj), &params); err != nil {
		return nil, coreapi.NewFrameworkError("subtask.parameterize", "subtask", coreapi.ErrPlanMalformed).WithID(step.ID)
	}
	return params, nil
}

// generateFromScratch asks the model to propose a full command set when no
// template category matches the step's intent.
func (g *Generator) generateFromScratch(ctx context.Context, step *model.Step) (*generatedCommands, error) {
	resp, err := g.ai.Complete(ctx, coreapi.CompletionRequest{
		SystemMessage: "You generate Linux shell command sequences for system administration tasks. Reply with strict JSON only.",
		Prompt: "Step title: " + step.Title + "\nStep description: " + step.Description +
			"\nRespond with a JSON object: {\"commands\":[...],\"health_checks\":[...],\"rollback_commands\":[...]}",
		Temperature: 0.2,
	})
	if err != nil {
		return nil, coreapi.NewFrameworkError("subtask.generateFromScratch", "subtask", err).WithID(step.ID)
	}
	obj, ok := extractFirstJSONObject(resp.Content)
	if !ok {
		return nil, coreapi.NewFrameworkError("subtask.generateFromScratch", "subtask", coreapi.ErrPlanMalformed).WithID(step.ID)
	}
	var gc generatedCommands
	if err := json.Unmarshal([]byte(obj), &gc); err != nil {
		return nil, coreapi.NewFrameworkError("subtask.generateFromScratch", "subtask", coreapi.ErrPlanMalformed).WithID(step.ID)
	}
	return &gc, nil
}

// extractFirstJSONObject mirrors planner.extractFirstJSONObject; duplicated
// rather than exported cross-package since both are small and package-local.
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
