package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepIsReady(t *testing.T) {
	s := NewStep("install nginx", "", PriorityMedium, 5, []string{"a", "b"})
	assert.False(t, s.IsReady(map[string]bool{"a": true}), "step should not be ready with one dependency incomplete")
	assert.True(t, s.IsReady(map[string]bool{"a": true, "b": true}), "step should be ready once all dependencies are complete")
}

func TestStepMarkFailedRespectsBudget(t *testing.T) {
	s := NewStep("flaky", "", PriorityLow, 1, nil)
	s.MaxErrors = 2

	assert.False(t, s.MarkFailed(), "step should still be retryable after first failure")
	assert.True(t, s.CanRetry(), "expected one retry remaining")
	assert.True(t, s.MarkFailed(), "step should be terminally failed once budget is exhausted")
	assert.Equal(t, StepFailed, s.Status)
}

func TestTaskIsComplete(t *testing.T) {
	task := NewTask("t", "", PriorityMedium, nil)
	a := NewStep("a", "", PriorityMedium, 1, nil)
	b := NewStep("b", "", PriorityMedium, 1, nil)
	task.Steps = []*Step{a, b}

	assert.False(t, task.IsComplete(), "task with pending steps should not be complete")

	a.MarkCompleted()
	b.Status = StepSkipped
	assert.True(t, task.IsComplete(), "task should be complete once every step is completed or skipped")
}

func TestTaskHasUnretryableFailure(t *testing.T) {
	task := NewTask("t", "", PriorityMedium, nil)
	s := NewStep("s", "", PriorityMedium, 1, nil)
	s.MaxErrors = 1
	task.Steps = []*Step{s}

	s.MarkFailed()
	assert.True(t, task.HasUnretryableFailure(), "expected unretryable failure once the only step exhausts its budget")
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank(), "critical should outrank high")
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank(), "high should outrank medium")
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank(), "medium should outrank low")
}
