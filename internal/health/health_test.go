package health

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/transport"
)

func TestRunCheckPassesOnMatchingExitCode(t *testing.T) {
	shell := transport.NewMockShell()
	shell.QueueResponse("systemctl is-active nginx", coreapi.ExecResult{Stdout: "active\n", ExitCode: 0})
	c := New(shell, nil)

	res := c.RunCheck(context.Background(), "systemctl is-active nginx", "service_active", DefaultCheckConfig())
	require.Equal(t, StatusPassed, res.Status, "%+v", res)
}

func TestRunCheckFailsOnExitCodeMismatchAndRetries(t *testing.T) {
	shell := transport.NewMockShell()
	shell.Default = coreapi.ExecResult{Stdout: "", Stderr: "not active", ExitCode: 3}
	c := New(shell, nil)

	cfg := DefaultCheckConfig()
	cfg.RetryCount = 2
	cfg.RetryDelay = time.Millisecond

	res := c.RunCheck(context.Background(), "systemctl is-active nginx", "service_active", cfg)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Len(t, shell.Calls, 3, "expected 3 attempts (1 + 2 retries)")
}

func TestRunCheckWarnsOnWarningSubstring(t *testing.T) {
	shell := transport.NewMockShell()
	shell.QueueResponse("apt-get install -y foo", coreapi.ExecResult{Stdout: "Warning: foo already latest", ExitCode: 0})
	c := New(shell, nil)

	cfg := DefaultCheckConfig()
	cfg.ExpectedOutputPattern = regexp.MustCompile(`installed successfully`)
	res := c.RunCheck(context.Background(), "apt-get install -y foo", "pkg_install", cfg)
	assert.Equal(t, StatusWarning, res.Status)
}

func TestAggregateResultsOverallFailedOnCritical(t *testing.T) {
	results := []Result{
		{Status: StatusPassed},
		{Status: StatusFailed, Critical: true},
		{Status: StatusWarning},
	}
	agg := AggregateResults(results)
	assert.Equal(t, StatusFailed, agg.OverallStatus)
	assert.Equal(t, 1, agg.CriticalFailures)
}

func TestAggregateResultsOverallWarningOnNonCritical(t *testing.T) {
	results := []Result{
		{Status: StatusPassed},
		{Status: StatusFailed, Critical: false},
	}
	agg := AggregateResults(results)
	assert.Equal(t, StatusWarning, agg.OverallStatus)
}

func TestAggregateResultsOverallPassed(t *testing.T) {
	results := []Result{{Status: StatusPassed}, {Status: StatusPassed}}
	agg := AggregateResults(results)
	assert.Equal(t, StatusPassed, agg.OverallStatus)
	assert.Equal(t, 1.0, agg.SuccessRate)
}
