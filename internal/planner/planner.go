// Package planner implements the Task Agent: it turns a free-text task
// description into an ordered, validated Task graph by prompting the
// model and never executes anything itself.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/telemetry"
)

// Config bounds the Planner's behavior.
type Config struct {
	MaxSteps    int
	Temperature float32
	ModelTimeout int // seconds, 0 uses the request default
}

// DefaultConfig mirrors the Planner's default max_steps of 10 and its
// temperature ceiling of 0.3.
func DefaultConfig() Config {
	return Config{MaxSteps: 10, Temperature: 0.3}
}

// PromptEnricher supplements the planning prompt with outside context
// before the Planner sends it to the model — e.g. prior task outcomes
// surfaced by an external task-tracking integration. Enrich may return
// the prompt unchanged.
type PromptEnricher interface {
	Enrich(ctx context.Context, description string, prompt string) string
}

// noopEnricher is the default PromptEnricher: it passes the prompt through
// unchanged.
type noopEnricher struct{}

func (noopEnricher) Enrich(_ context.Context, _ string, prompt string) string { return prompt }

// Planner drives PlanTask against an AIClient.
type Planner struct {
	ai       coreapi.AIClient
	config   Config
	logger   coreapi.Logger
	metrics  *telemetry.MetricInstruments
	enricher PromptEnricher
}

// New creates a Planner bound to ai.
func New(ai coreapi.AIClient, config Config, logger coreapi.Logger) *Planner {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if config.MaxSteps == 0 {
		config.MaxSteps = DefaultConfig().MaxSteps
	}
	if config.Temperature == 0 {
		config.Temperature = DefaultConfig().Temperature
	}
	return &Planner{ai: ai, config: config, logger: logger, metrics: telemetry.NewMetricInstruments("sshagent/planner"), enricher: noopEnricher{}}
}

// SetPromptEnricher overrides the default no-op PromptEnricher.
func (p *Planner) SetPromptEnricher(e PromptEnricher) {
	if e != nil {
		p.enricher = e
	}
}

// PlanTask runs the Planner's seven-step procedure: build the prompt,
// enrich it, send it to the model, parse and validate the resulting
// plan, then assemble and order the Task graph.
func (p *Planner) PlanTask(ctx context.Context, title, description string, priority model.Priority, taskCtx *TaskContext) (*model.Task, error) {
	ctx, finishSpan := telemetry.StartSpan(ctx, "planner.PlanTask")
	var spanErr error
	defer func() { finishSpan(spanErr) }()

	prompt := buildPlanningPrompt(description, p.config.MaxSteps, taskCtx)
	prompt = p.enricher.Enrich(ctx, description, prompt)

	resp, err := p.ai.Complete(ctx, coreapi.CompletionRequest{
		Prompt:        prompt,
		SystemMessage: "You are a planning engine. Reply with strict JSON only.",
		Temperature:   p.config.Temperature,
		Timeout:       time.Duration(p.config.ModelTimeout) * time.Second,
	})
	if err != nil {
		spanErr = err
		return nil, coreapi.NewFrameworkError("planner.PlanTask", "plan", err)
	}

	plan, err := parsePlan(resp.Content)
	if err != nil {
		return nil, err
	}

	if len(plan.Steps) == 0 {
		return nil, coreapi.NewFrameworkError("planner.PlanTask", "plan", coreapi.ErrPlanEmpty)
	}
	if len(plan.Steps) > p.config.MaxSteps {
		return nil, coreapi.NewFrameworkError("planner.PlanTask", "plan", coreapi.ErrPlanTooLarge)
	}

	ctxMap := map[string]interface{}{}
	if taskCtx != nil {
		ctxMap["server_info"] = taskCtx.ServerInfo
		ctxMap["constraints"] = taskCtx.Constraints
		ctxMap["available_tools"] = taskCtx.AvailableTools
	}
	task := model.NewTask(title, description, priority, ctxMap)

	// First pass: create Steps with empty dependency sets.
	steps := make([]*model.Step, 0, len(plan.Steps))
	for _, rs := range plan.Steps {
		prio := model.Priority(rs.Priority)
		if prio == "" {
			prio = model.PriorityMedium
		}
		steps = append(steps, model.NewStep(rs.Title, rs.Description, prio, rs.EstimatedDuration, nil))
	}

	// Second pass: resolve integer indices into generated step ids.
	for i, rs := range plan.Steps {
		deps := make([]string, 0, len(rs.Dependencies))
		for _, idx := range rs.Dependencies {
			if idx < 0 || idx >= len(steps) {
				return nil, coreapi.NewFrameworkError("planner.PlanTask", "plan", coreapi.ErrUnknownDependency).WithID(fmt.Sprintf("index %d", idx))
			}
			deps = append(deps, steps[idx].ID)
		}
		steps[i].Dependencies = deps
	}

	if err := validateDAG(steps); err != nil {
		return nil, err
	}

	order := topologicalOrder(steps)
	task.Steps = steps
	task.Metadata["execution_order"] = order
	if resp.Usage.TotalTokens > 0 {
		task.Metadata["token_usage"] = resp.Usage
	}

	var total int
	for _, s := range steps {
		total += s.EstimatedDuration
	}
	task.TotalEstimatedDuration = total

	p.metrics.RecordCounter(ctx, "sshagent.planner.plans_created", 1)
	p.logger.Info("task planned", map[string]interface{}{
		"task_id": task.ID, "steps": len(steps), "total_estimated_duration": total,
	})
	return task, nil
}
