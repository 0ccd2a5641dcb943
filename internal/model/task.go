// Package model defines the data shared by every pipeline component: the
// Task/Step/Subtask graph the Coordinator owns, and the append-only
// AttemptRecord/ErrorRecord/EscalationRequest ledgers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// StepStatus is the lifecycle state of a Step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepPlanning  StepStatus = "planning"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Priority orders steps and tasks; higher values execute first when ties
// need to be broken.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank gives Priority a total order for tie-breaking: critical > high >
// medium > low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// DefaultMaxErrors is the default per-step error budget.
const DefaultMaxErrors = 4

// Step is an atomic unit of a plan: a title/description, a dependency set
// on other step ids, an error budget, and the Subtasks collected as it
// executes.
type Step struct {
	ID                string
	Title             string
	Description       string
	Status            StepStatus
	Priority          Priority
	EstimatedDuration int // minutes
	Dependencies      []string
	ErrorCount        int
	MaxErrors         int
	CreatedAt         time.Time
	StartedAt         *time.Time
	CompletedAt       *time.Time
	Subtasks          []Subtask
	Metadata          map[string]interface{}
}

// NewStep creates a Step with a fresh id and the default error budget.
func NewStep(title, description string, priority Priority, estimatedDuration int, dependencies []string) *Step {
	return &Step{
		ID:                uuid.NewString(),
		Title:             title,
		Description:       description,
		Status:            StepPending,
		Priority:          priority,
		EstimatedDuration: estimatedDuration,
		Dependencies:      append([]string{}, dependencies...),
		MaxErrors:         DefaultMaxErrors,
		CreatedAt:         time.Now(),
		Metadata:          map[string]interface{}{},
	}
}

// IsReady reports whether every dependency id is present in completed: a
// Step is executable only once all of its dependencies have completed.
func (s *Step) IsReady(completed map[string]bool) bool {
	for _, dep := range s.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// CanRetry reports whether the step's error budget still allows another
// attempt.
func (s *Step) CanRetry() bool {
	return s.ErrorCount < s.MaxErrors
}

// MarkStarted transitions the step to executing and stamps StartedAt.
func (s *Step) MarkStarted() {
	now := time.Now()
	s.Status = StepExecuting
	s.StartedAt = &now
}

// MarkCompleted transitions the step to completed and stamps CompletedAt.
func (s *Step) MarkCompleted() {
	now := time.Now()
	s.Status = StepCompleted
	s.CompletedAt = &now
}

// MarkFailed increments the error count and, if the budget is exhausted,
// marks the step terminally failed. Returns true if the step is now
// failed-terminal.
func (s *Step) MarkFailed() bool {
	s.ErrorCount++
	if !s.CanRetry() {
		s.Status = StepFailed
		now := time.Now()
		s.CompletedAt = &now
		return true
	}
	return false
}

// ResetErrors clears the error count, used when a plan revision lands: the
// Coordinator resets the step's error count to zero and re-enters
// execution from the top of the step.
func (s *Step) ResetErrors() {
	s.ErrorCount = 0
}

// Task is a user-level intent expanded into a graph of Steps.
type Task struct {
	ID          string
	Title       string
	Description string
	Priority    Priority
	Status      TaskStatus
	Steps       []*Step
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// TotalEstimatedDuration is the sum of every step's EstimatedDuration.
	TotalEstimatedDuration int

	// Context is the opaque bag passed to the Planner and consulted by
	// the Subtask Generator (server info, constraints, available tools).
	Context  map[string]interface{}
	Metadata map[string]interface{}
}

// NewTask creates a Task with a fresh id.
func NewTask(title, description string, priority Priority, context map[string]interface{}) *Task {
	if context == nil {
		context = map[string]interface{}{}
	}
	return &Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      TaskPending,
		CreatedAt:   time.Now(),
		Context:     context,
		Metadata:    map[string]interface{}{},
	}
}

// Step returns the step with the given id, or nil.
func (t *Task) Step(id string) *Step {
	for _, s := range t.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// IsComplete reports whether a Task is completed: every step is completed
// or skipped.
func (t *Task) IsComplete() bool {
	for _, s := range t.Steps {
		if s.Status != StepCompleted && s.Status != StepSkipped {
			return false
		}
	}
	return true
}

// HasUnretryableFailure reports whether any step has failed with its
// budget exhausted, the condition under which a Task is failed.
func (t *Task) HasUnretryableFailure() bool {
	for _, s := range t.Steps {
		if s.Status == StepFailed && !s.CanRetry() {
			return true
		}
	}
	return false
}

// MarkStarted transitions the task to in-progress and stamps StartedAt.
func (t *Task) MarkStarted() {
	now := time.Now()
	t.Status = TaskInProgress
	t.StartedAt = &now
}

// MarkTerminal transitions the task to status and stamps CompletedAt.
func (t *Task) MarkTerminal(status TaskStatus) {
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
}
