package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/autocorrect"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/health"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/tracker"
	"github.com/opsmind/sshagent/internal/transport"
	"github.com/opsmind/sshagent/internal/validator"
)

func newTestExecutor(shell *transport.MockShell, cfg Config) (*Executor, *tracker.Tracker) {
	v := validator.New(nil)
	tr := tracker.New(tracker.Config{}, nil, nil)
	ac := autocorrect.New(nil, "ubuntu")
	hc := health.New(shell, nil)
	return New(shell, v, tr, ac, hc, nil, cfg, nil), tr
}

func TestExecuteSubtaskSucceeds(t *testing.T) {
	shell := transport.NewMockShell()
	shell.QueueResponse("mkdir -p /data", coreapi.ExecResult{ExitCode: 0})
	exec, tr := newTestExecutor(shell, DefaultConfig())

	step := model.NewStep("make dir", "", model.PriorityLow, 1, nil)
	sub := model.NewSubtask(step.ID, []string{"mkdir -p /data"}, nil, nil, time.Second)

	res := exec.ExecuteSubtask(context.Background(), sub, step, false)
	assert.True(t, res.Success, "%+v", res)
	assert.Equal(t, 0, tr.ErrorCount(step.ID))
}

func TestExecuteSubtaskRejectsForbiddenCommand(t *testing.T) {
	shell := transport.NewMockShell()
	exec, tr := newTestExecutor(shell, DefaultConfig())

	step := model.NewStep("wipe", "", model.PriorityLow, 1, nil)
	sub := model.NewSubtask(step.ID, []string{"rm -rf /"}, nil, nil, time.Second)

	res := exec.ExecuteSubtask(context.Background(), sub, step, false)
	assert.False(t, res.Success, "expected failure for forbidden command")
	assert.Empty(t, shell.Calls, "expected Execute never called for a rejected command")
	assert.Equal(t, 1, tr.ErrorCount(step.ID))
}

func TestExecuteSubtaskAutocorrectsAndRetries(t *testing.T) {
	shell := transport.NewMockShell()
	shell.QueueResponse("systemctl restart nginx", coreapi.ExecResult{ExitCode: 1, Stderr: "permission denied"})
	shell.QueueResponse("sudo systemctl restart nginx", coreapi.ExecResult{ExitCode: 0})
	exec, _ := newTestExecutor(shell, DefaultConfig())

	step := model.NewStep("restart nginx", "", model.PriorityLow, 1, nil)
	sub := model.NewSubtask(step.ID, []string{"systemctl restart nginx"}, nil, nil, time.Second)

	res := exec.ExecuteSubtask(context.Background(), sub, step, false)
	require.True(t, res.Success, "expected eventual success via autocorrection: %+v", res)
	assert.Equal(t, 1, res.AutocorrectionsApplied)
}

func TestExecuteSubtaskRollsBackOnFailureAfterMutation(t *testing.T) {
	shell := transport.NewMockShell()
	shell.QueueResponse("mkdir -p /data", coreapi.ExecResult{ExitCode: 0})
	shell.Default = coreapi.ExecResult{ExitCode: 1, Stderr: "boom"}
	exec, _ := newTestExecutor(shell, DefaultConfig())

	step := model.NewStep("two commands", "", model.PriorityLow, 1, nil)
	sub := model.NewSubtask(step.ID, []string{"mkdir -p /data", "touch /data/marker"}, nil, []string{"rmdir /data"}, time.Second)

	res := exec.ExecuteSubtask(context.Background(), sub, step, false)
	assert.False(t, res.Success, "expected failure")
	assert.True(t, res.RolledBack, "expected rollback to have run")
	assert.Contains(t, shell.Calls, "rmdir /data", "expected rollback command to have been executed")
}

func TestExecuteSubtaskDryRunSkipsRealExecution(t *testing.T) {
	shell := transport.NewMockShell()
	cfg := DefaultConfig()
	cfg.DryRun = true
	exec, _ := newTestExecutor(shell, cfg)

	step := model.NewStep("dry run step", "", model.PriorityLow, 1, nil)
	sub := model.NewSubtask(step.ID, []string{"mkdir -p /tmp/safe-to-simulate"}, nil, nil, time.Second)
	res := exec.ExecuteSubtask(context.Background(), sub, step, false)
	assert.True(t, res.Success, "expected dry run to simulate success: %+v", res)
	assert.Empty(t, shell.Calls, "expected no real Execute calls under dry_run")
}
