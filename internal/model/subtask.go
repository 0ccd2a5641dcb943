package model

import (
	"time"

	"github.com/google/uuid"
)

// Subtask is a concrete command sequence for one Step: mutating commands,
// verification health checks, and a rollback list run only on failure
// after the subtask has begun mutating state.
type Subtask struct {
	ID               string
	StepID           string
	Commands         []string
	HealthChecks     []string
	RollbackCommands []string
	// DependsOn names sibling subtask ids that must complete first.
	DependsOn []string
	Timeout   time.Duration
}

// NewSubtask creates a Subtask with a fresh id.
func NewSubtask(stepID string, commands, healthChecks, rollback []string, timeout time.Duration) *Subtask {
	return &Subtask{
		ID:               uuid.NewString(),
		StepID:           stepID,
		Commands:         commands,
		HealthChecks:     healthChecks,
		RollbackCommands: rollback,
		Timeout:          timeout,
	}
}
