package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
)

type stubAI struct {
	content string
	err     error
}

func (s *stubAI) Complete(ctx context.Context, req coreapi.CompletionRequest) (*coreapi.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &coreapi.CompletionResponse{Content: s.content}, nil
}

func TestPlanTaskBuildsValidatedTask(t *testing.T) {
	ai := &stubAI{content: `Sure, here is the plan:
{"steps":[
  {"title":"Update packages","description":"apt update","priority":"medium","estimated_duration":2,"dependencies":[]},
  {"title":"Install nginx","description":"apt install nginx","priority":"high","estimated_duration":3,"dependencies":[0]}
]}
Let me know if you need anything else.`}
	p := New(ai, DefaultConfig(), nil)

	task, err := p.PlanTask(context.Background(), "Install nginx", "Install and start nginx", model.PriorityHigh, nil)
	require.NoError(t, err)
	require.Len(t, task.Steps, 2)
	assert.Equal(t, 5, task.TotalEstimatedDuration)
	require.Len(t, task.Steps[1].Dependencies, 1)
	assert.Equal(t, task.Steps[0].ID, task.Steps[1].Dependencies[0], "expected step 1 to depend on resolved id of step 0")
}

func TestPlanTaskRejectsEmptyPlan(t *testing.T) {
	ai := &stubAI{content: `{"steps":[]}`}
	p := New(ai, DefaultConfig(), nil)
	_, err := p.PlanTask(context.Background(), "t", "d", model.PriorityLow, nil)
	assert.Error(t, err, "expected ErrPlanEmpty")
}

func TestPlanTaskRejectsTooManySteps(t *testing.T) {
	ai := &stubAI{content: `{"steps":[
		{"title":"a","dependencies":[]},{"title":"b","dependencies":[]},{"title":"c","dependencies":[]}
	]}`}
	cfg := DefaultConfig()
	cfg.MaxSteps = 2
	p := New(ai, cfg, nil)
	_, err := p.PlanTask(context.Background(), "t", "d", model.PriorityLow, nil)
	assert.Error(t, err, "expected ErrPlanTooLarge")
}

func TestPlanTaskRejectsUnknownDependencyIndex(t *testing.T) {
	ai := &stubAI{content: `{"steps":[{"title":"a","dependencies":[5]}]}`}
	p := New(ai, DefaultConfig(), nil)
	_, err := p.PlanTask(context.Background(), "t", "d", model.PriorityLow, nil)
	assert.Error(t, err, "expected an unknown dependency error")
}

func TestPlanTaskRejectsCyclicDependencies(t *testing.T) {
	ai := &stubAI{content: `{"steps":[
		{"title":"root","dependencies":[]},
		{"title":"a","dependencies":[2]},
		{"title":"b","dependencies":[1]}
	]}`}
	p := New(ai, DefaultConfig(), nil)
	_, err := p.PlanTask(context.Background(), "t", "d", model.PriorityLow, nil)
	assert.ErrorIs(t, err, coreapi.ErrPlanCyclic, "expected a cyclic dependency error")
}

func TestPlanTaskRejectsMalformedResponse(t *testing.T) {
	ai := &stubAI{content: "not json at all"}
	p := New(ai, DefaultConfig(), nil)
	_, err := p.PlanTask(context.Background(), "t", "d", model.PriorityLow, nil)
	assert.Error(t, err, "expected a malformed-plan error")
}

func TestExtractFirstJSONObjectIgnoresBracesInsideStrings(t *testing.T) {
	obj, ok := extractFirstJSONObject(`prefix {"a":"} not a close {","b":1} suffix`)
	require.True(t, ok, "expected to extract an object")
	assert.Equal(t, `{"a":"} not a close {","b":1}`, obj)
}
