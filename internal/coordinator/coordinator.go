// Package coordinator implements the driving loop that takes a single
// Task through Initializing, Planning, Executing and Escalated/Paused to
// a terminal status, publishing phase transitions on a typed event bus.
package coordinator

import (
	"context"
	"sort"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/escalation"
	"github.com/opsmind/sshagent/internal/executor"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/planner"
	"github.com/opsmind/sshagent/internal/subtask"
	"github.com/opsmind/sshagent/internal/telemetry"
	"github.com/opsmind/sshagent/internal/tracker"
)

// Config bounds Coordinator behavior.
type Config struct {
	DryRun               bool
	CriticalHealthChecks bool
	OSType               string
	// MaxStepRetryIterations is a defensive ceiling on a single step's
	// generate-execute-evaluate cycle, independent of the escalation
	// tiers that normally bound it (belt and suspenders against a
	// misconfigured threshold set).
	MaxStepRetryIterations int
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{OSType: "ubuntu", MaxStepRetryIterations: 50}
}

// EscalationConsumer is invoked synchronously whenever the Escalation
// System raises a plan-revision or human-escalation request; it must
// acknowledge and then resolve (or fail) the request via mgr before
// returning. The Coordinator blocks on that resolution before resuming
// the step.
type EscalationConsumer interface {
	Consume(ctx context.Context, mgr *escalation.Manager, req *model.EscalationRequest) error
}

// autoConsumer is the default EscalationConsumer when no interactive front
// end is attached: it acknowledges immediately and accepts a retry at the
// same step.
type autoConsumer struct{}

func (autoConsumer) Consume(_ context.Context, mgr *escalation.Manager, req *model.EscalationRequest) error {
	if err := mgr.Acknowledge(req.ID); err != nil {
		return err
	}
	return mgr.Resolve(req.ID, "auto-accepted: resume at same step", nil)
}

// Report summarizes a completed ExecuteTask call: every finished Task
// produces a terminal status and a summary listing any failed steps with
// their last error messages.
type Report struct {
	TaskID      string
	Status      model.TaskStatus
	FailedSteps []StepSummary
	Timeline    []TimelineMarker
	Duration    time.Duration
}

// StepSummary is one failed step's entry in a Report.
type StepSummary struct {
	StepID     string
	Title      string
	ErrorCount int
	LastError  string
}

// Coordinator wires the Planner, Subtask Generator, Executor, Tracker and
// Escalation Manager together for one Task at a time. A process may run
// many Coordinators concurrently, each owning its own Task loop.
type Coordinator struct {
	shell     coreapi.RemoteShell
	planner   *planner.Planner
	generator *subtask.Generator
	executor  *executor.Executor
	tracker   *tracker.Tracker
	escalator *escalation.Manager
	consumer  EscalationConsumer
	feedback  FeedbackSink
	bus       *Bus
	logger    coreapi.Logger
	config    Config
}

// New creates a Coordinator. bus, consumer and feedback may be nil; a
// fresh Bus, the default auto-accepting consumer, and a no-op
// FeedbackSink are used respectively.
func New(shell coreapi.RemoteShell, p *planner.Planner, g *subtask.Generator, ex *executor.Executor, tr *tracker.Tracker, escalator *escalation.Manager, bus *Bus, consumer EscalationConsumer, feedback FeedbackSink, logger coreapi.Logger, config Config) *Coordinator {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if bus == nil {
		bus = NewBus()
	}
	if consumer == nil {
		consumer = autoConsumer{}
	}
	if feedback == nil {
		feedback = noopFeedbackSink{}
	}
	if config.OSType == "" {
		config.OSType = DefaultConfig().OSType
	}
	if config.MaxStepRetryIterations == 0 {
		config.MaxStepRetryIterations = DefaultConfig().MaxStepRetryIterations
	}
	return &Coordinator{
		shell: shell, planner: p, generator: g, executor: ex, tracker: tr,
		escalator: escalator, consumer: consumer, feedback: feedback, bus: bus,
		logger: logger, config: config,
	}
}

// Bus exposes the event bus so collaborators can Subscribe before
// ExecuteTask runs.
func (c *Coordinator) Bus() *Bus { return c.bus }

// ExecuteTask runs the full state machine for one Task: Initializing,
// Ready/Planning, Executing, Escalated/Paused as needed, through to a
// terminal status.
func (c *Coordinator) ExecuteTask(ctx context.Context, title, description string, priority model.Priority, taskCtx *planner.TaskContext) (*Report, error) {
	start := time.Now()
	tl := newTimeline()
	ctx, finishSpan := telemetry.StartSpan(ctx, "coordinator.ExecuteTask")
	var spanErr error
	defer func() { finishSpan(spanErr) }()

	// Initializing: open the remote transport. Restoring prior state, if
	// any, is the embedding application's responsibility via the State
	// Manager before ExecuteTask is called.
	tl.mark("initializing", "opening remote transport")
	if err := c.shell.Connect(ctx); err != nil {
		spanErr = err
		return nil, coreapi.NewFrameworkError("coordinator.ExecuteTask", "transport", err)
	}

	// Planning: the Planner builds the Task itself (title, description,
	// priority, context, steps); the Coordinator adopts it rather than
	// building a second one, so task.ID is stable across every published
	// event.
	tl.mark("planning", "invoking planner")
	task, err := c.planner.PlanTask(ctx, title, description, priority, taskCtx)
	if err != nil {
		c.shell.Disconnect()
		spanErr = err
		tl.mark("failed", "planning failed: "+err.Error())
		c.logger.Warn("task planning failed", map[string]interface{}{"title": title, "error": err.Error()})
		return nil, err
	}
	task.MarkStarted()
	c.bus.Publish(Event{Kind: EventTaskStarted, TaskID: task.ID, Phase: "initializing", Message: "task started"})
	c.bus.Publish(Event{Kind: EventTaskPlanning, TaskID: task.ID, Phase: "planning"})

	// Executing.
	c.bus.Publish(Event{Kind: EventTaskExecuting, TaskID: task.ID, Phase: "executing"})
	tl.mark("executing", "beginning step execution")

	completed := map[string]bool{}
	order, _ := task.Metadata["execution_order"].([]string)

stepLoop:
	for {
		select {
		case <-ctx.Done():
			task.MarkTerminal(model.TaskCancelled)
			tl.mark("cancelled", "context cancelled")
			c.bus.Publish(Event{Kind: EventTaskCancelled, TaskID: task.ID, Phase: "cancelled"})
			break stepLoop
		default:
		}

		if task.IsComplete() {
			break stepLoop
		}

		step := pickNextStep(task, order, completed)
		if step == nil {
			// No ready step and task not complete: every remaining step is
			// blocked on a failed dependency. Nothing left to do.
			task.MarkTerminal(model.TaskFailed)
			break stepLoop
		}

		outcome := c.runStep(ctx, task, step, tl)
		switch outcome {
		case stepOutcomeCompleted:
			completed[step.ID] = true
		case stepOutcomeCancelled:
			task.MarkTerminal(model.TaskCancelled)
			break stepLoop
		case stepOutcomeEmergencyStop:
			task.MarkTerminal(model.TaskCancelled)
			break stepLoop
		case stepOutcomeFailed:
			task.MarkTerminal(model.TaskFailed)
			break stepLoop
		}
	}

	if task.Status == model.TaskInProgress {
		if task.IsComplete() {
			task.MarkTerminal(model.TaskCompleted)
		} else {
			task.MarkTerminal(model.TaskFailed)
		}
	}

	c.shell.Disconnect()
	tl.mark(string(task.Status), "task reached terminal status")

	var kind EventKind
	switch task.Status {
	case model.TaskCompleted:
		kind = EventTaskCompleted
	case model.TaskCancelled:
		kind = EventTaskCancelled
	default:
		kind = EventTaskFailed
	}
	c.bus.Publish(Event{Kind: kind, TaskID: task.ID, Phase: string(task.Status), ProgressPercentage: 100})
	c.logger.Info("task reached terminal status", map[string]interface{}{"task_id": task.ID, "status": task.Status})

	return c.buildReport(task, tl, start), nil
}

type stepOutcome int

const (
	stepOutcomeCompleted stepOutcome = iota
	stepOutcomeFailed
	stepOutcomeCancelled
	stepOutcomeEmergencyStop
)

// runStep drives the inner loop for one step: Subtask-Generate, Execute
// each subtask, and on failure query the Tracker and hand control to
// Escalation as needed.
func (c *Coordinator) runStep(ctx context.Context, task *model.Task, step *model.Step, tl *Timeline) stepOutcome {
	step.MarkStarted()
	c.bus.Publish(Event{Kind: EventStepStarted, TaskID: task.ID, StepID: step.ID, Phase: "executing", Message: step.Title})
	tl.mark("step_started", step.Title)

	lastErr := ""
	for iter := 0; iter < c.config.MaxStepRetryIterations; iter++ {
		select {
		case <-ctx.Done():
			return stepOutcomeCancelled
		default:
		}

		subtasks, err := c.generator.PlanSubtasks(ctx, step, subtask.GenerationContext{OSType: c.config.OSType})
		if err != nil {
			lastErr = err.Error()
			c.tracker.RecordError(step.ID, "subtask_generation", err.Error(), -1, false, nil)
			outcome, stop := c.handleStepFailure(ctx, task, step, tl)
			if stop {
				return outcome
			}
			continue
		}

		stepSucceeded := true
		for i := range subtasks {
			sub := subtasks[i]
			step.Subtasks = append(step.Subtasks, sub)
			res := c.executor.ExecuteSubtask(ctx, &sub, step, c.config.CriticalHealthChecks)
			if res.Success {
				continue
			}
			stepSucceeded = false
			if len(res.PerCommandResults) > 0 {
				lastErr = res.PerCommandResults[len(res.PerCommandResults)-1].Stderr
			}
			outcome, stop := c.handleStepFailure(ctx, task, step, tl)
			if stop {
				return outcome
			}
			break
		}

		if stepSucceeded {
			step.MarkCompleted()
			c.bus.Publish(Event{Kind: EventStepCompleted, TaskID: task.ID, StepID: step.ID, Phase: "completed"})
			tl.mark("step_completed", step.Title)
			return stepOutcomeCompleted
		}
	}

	markStepFailed(step)
	c.bus.Publish(Event{Kind: EventStepFailed, TaskID: task.ID, StepID: step.ID, Phase: "failed", Message: lastErr})
	return stepOutcomeFailed
}

// markStepFailed transitions step to its terminal failed state.
func markStepFailed(step *model.Step) {
	step.Status = model.StepFailed
	now := time.Now()
	step.CompletedAt = &now
}

// handleStepFailure mirrors the step's tracked error count into
// step.ErrorCount, asks the Escalation Manager to evaluate the current
// tier, and drives the Escalated/Paused phase. The
// returned bool is true when the step loop must stop immediately (the
// outcome is final); false means the step loop should retry from the top.
func (c *Coordinator) handleStepFailure(ctx context.Context, task *model.Task, step *model.Step, tl *Timeline) (stepOutcome, bool) {
	n := c.tracker.ErrorCount(step.ID)
	step.ErrorCount = n

	req, err := c.escalator.Evaluate(step.ID, task.ID, step.Title, n, nil)
	if err != nil {
		// Cooldown-suppressed duplicate: keep retrying without a new
		// request.
		return stepOutcomeFailed, false
	}
	if req == nil {
		// Below the first tier: ordinary retry.
		return stepOutcomeFailed, false
	}

	c.bus.Publish(Event{Kind: EventEscalationRaised, TaskID: task.ID, StepID: step.ID, Phase: "escalated", Message: string(req.Type)})
	tl.mark("escalation_raised", string(req.Type))

	switch req.Type {
	case model.EscalationTypePlannerNotification:
		c.escalator.Acknowledge(req.ID)
		c.escalator.Resolve(req.ID, "noted", nil)
		return stepOutcomeFailed, false

	case model.EscalationTypePlanRevision:
		c.feedback.NotifyPlanRevision(ctx, task.ID, step.ID, req.Reason)
		if err := c.consumer.Consume(ctx, c.escalator, req); err != nil {
			c.escalator.Fail(req.ID)
			markStepFailed(step)
			return stepOutcomeFailed, true
		}
		// Only a genuine revision (the consumer supplied a RevisedStep)
		// resets the error budget; an acknowledgement that just resumes
		// the same step leaves the count climbing toward the next tier,
		// otherwise a plan that is never actually revised would bounce
		// between plan-revision and none forever.
		if req.RevisedStep != nil {
			step.ResetErrors()
			c.tracker.ResetErrors(step.ID)
		}
		c.bus.Publish(Event{Kind: EventEscalationResolved, TaskID: task.ID, StepID: step.ID, Phase: "plan_revision_resolved"})
		tl.mark("plan_revision_resolved", step.Title)
		return stepOutcomeFailed, false

	case model.EscalationTypeHumanEscalation:
		payload, _ := c.escalator.HumanPayload(req.ID)
		c.feedback.NotifyHumanEscalation(ctx, task.ID, step.ID, payload)
		if err := c.consumer.Consume(ctx, c.escalator, req); err != nil {
			c.escalator.Fail(req.ID)
			markStepFailed(step)
			return stepOutcomeFailed, true
		}
		c.bus.Publish(Event{Kind: EventEscalationResolved, TaskID: task.ID, StepID: step.ID, Phase: "human_escalation_resolved"})
		tl.mark("human_escalation_resolved", step.Title)
		return stepOutcomeFailed, false

	case model.EscalationTypeEmergencyStop:
		c.escalator.Acknowledge(req.ID)
		c.escalator.Resolve(req.ID, "emergency stop: task cancelled", nil)
		tl.mark("emergency_stop", step.Title)
		markStepFailed(step)
		return stepOutcomeEmergencyStop, true

	default:
		return stepOutcomeFailed, false
	}
}

func (c *Coordinator) buildReport(task *model.Task, tl *Timeline, start time.Time) *Report {
	report := &Report{TaskID: task.ID, Status: task.Status, Timeline: tl.Marks(), Duration: time.Since(start)}
	for _, s := range task.Steps {
		if s.Status == model.StepFailed {
			lastErr := ""
			if rec, ok := c.tracker.LastError(s.ID); ok {
				lastErr = rec.ErrorMessage
			}
			report.FailedSteps = append(report.FailedSteps, StepSummary{
				StepID: s.ID, Title: s.Title, ErrorCount: s.ErrorCount, LastError: lastErr,
			})
		}
	}
	return report
}

// pickNextStep returns the highest-priority ready step, ties broken by the
// plan's topological order and then by insertion order.
func pickNextStep(task *model.Task, order []string, completed map[string]bool) *model.Step {
	var ready []*model.Step
	if len(order) > 0 {
		for _, id := range order {
			s := task.Step(id)
			if s != nil && s.Status == model.StepPending && s.IsReady(completed) {
				ready = append(ready, s)
			}
		}
	} else {
		for _, s := range task.Steps {
			if s.Status == model.StepPending && s.IsReady(completed) {
				ready = append(ready, s)
			}
		}
	}
	if len(ready) == 0 {
		return nil
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority.Rank() > ready[j].Priority.Rank()
	})
	return ready[0]
}
