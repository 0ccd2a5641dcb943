package coordinator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/autocorrect"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/escalation"
	"github.com/opsmind/sshagent/internal/executor"
	"github.com/opsmind/sshagent/internal/health"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/planner"
	"github.com/opsmind/sshagent/internal/subtask"
	"github.com/opsmind/sshagent/internal/tracker"
	"github.com/opsmind/sshagent/internal/transport"
	"github.com/opsmind/sshagent/internal/validator"
)

type stubAI struct{}

func (stubAI) Complete(_ context.Context, req coreapi.CompletionRequest) (*coreapi.CompletionResponse, error) {
	if strings.Contains(req.SystemMessage, "planning engine") {
		return &coreapi.CompletionResponse{Content: `{"steps":[
			{"title":"Perform custom remediation routine","description":"a made-up routine with no category match at all","priority":"medium","estimated_duration":1,"dependencies":[]}
		]}`}, nil
	}
	return &coreapi.CompletionResponse{Content: `{"commands":["echo remediate"],"health_checks":[],"rollback_commands":[]}`}, nil
}

func buildCoordinator(t *testing.T, shell *transport.MockShell) (*Coordinator, *tracker.Tracker, *escalation.Manager) {
	t.Helper()
	v := validator.New(nil)
	var ac *autocorrect.Engine
	tr := tracker.New(tracker.Config{ErrorThresholdPerStep: 4, HumanEscalationThreshold: 6}, nil, nil)
	hc := health.New(shell, nil)
	ex := executor.New(shell, v, tr, ac, hc, nil, executor.Config{MaxRetriesPerCommand: 0}, nil)

	p := planner.New(stubAI{}, planner.DefaultConfig(), nil)
	g := subtask.New(stubAI{}, v, ac, nil)

	escCfg := escalation.DefaultConfig()
	escCfg.Cooldown = 0
	escMgr := escalation.New(escCfg, nil)

	coordCfg := DefaultConfig()
	coordCfg.MaxStepRetryIterations = 20
	co := New(shell, p, g, ex, tr, escMgr, nil, nil, nil, nil, coordCfg)
	return co, tr, escMgr
}

func TestExecuteTaskSucceedsWhenCommandsSucceed(t *testing.T) {
	shell := transport.NewMockShell()
	shell.Default = coreapi.ExecResult{ExitCode: 0}
	co, _, _ := buildCoordinator(t, shell)

	report, err := co.ExecuteTask(context.Background(), "Fix thing", "do the thing", model.PriorityMedium, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, report.Status)
	assert.Empty(t, report.FailedSteps)
}

func TestExecuteTaskEscalatesToEmergencyStopOnSustainedFailure(t *testing.T) {
	shell := transport.NewMockShell()
	shell.Default = coreapi.ExecResult{ExitCode: 1, Stderr: "boom"}
	co, tr, _ := buildCoordinator(t, shell)

	report, err := co.ExecuteTask(context.Background(), "Fix thing", "do the thing", model.PriorityMedium, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCancelled, report.Status, "expected cancelled (emergency stop)")
	require.Len(t, report.FailedSteps, 1)
	assert.GreaterOrEqual(t, report.FailedSteps[0].ErrorCount, 8, "expected error count to reach the emergency-stop threshold")
	_ = tr
}

func TestExecuteTaskPublishesLifecycleEvents(t *testing.T) {
	shell := transport.NewMockShell()
	shell.Default = coreapi.ExecResult{ExitCode: 0}
	co, _, _ := buildCoordinator(t, shell)

	var kinds []EventKind
	co.Bus().Subscribe(EventTaskCompleted, func(e Event) { kinds = append(kinds, e.Kind) })
	co.Bus().Subscribe(EventStepCompleted, func(e Event) { kinds = append(kinds, e.Kind) })

	_, err := co.ExecuteTask(context.Background(), "Fix thing", "do the thing", model.PriorityMedium, nil)
	require.NoError(t, err)
	assert.Len(t, kinds, 2, "expected 2 subscribed events to fire")
}

func TestExecuteTaskPlanningFailureReturnsError(t *testing.T) {
	shell := transport.NewMockShell()
	v := validator.New(nil)
	var ac *autocorrect.Engine
	tr := tracker.New(tracker.Config{}, nil, nil)
	hc := health.New(shell, nil)
	ex := executor.New(shell, v, tr, ac, hc, nil, executor.Config{}, nil)
	badAI := brokenAI{}
	p := planner.New(badAI, planner.DefaultConfig(), nil)
	g := subtask.New(badAI, v, ac, nil)
	escMgr := escalation.New(escalation.DefaultConfig(), nil)
	co := New(shell, p, g, ex, tr, escMgr, nil, nil, nil, nil, DefaultConfig())

	_, err := co.ExecuteTask(context.Background(), "x", "y", model.PriorityLow, nil)
	assert.Error(t, err, "expected planning failure to propagate as an error")
}

type brokenAI struct{}

func (brokenAI) Complete(context.Context, coreapi.CompletionRequest) (*coreapi.CompletionResponse, error) {
	return &coreapi.CompletionResponse{Content: "not json at all"}, nil
}
