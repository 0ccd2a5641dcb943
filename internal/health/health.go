// Package health implements the Health Checker: runs a verification command
// after a Subtask executes and classifies the outcome against an expected
// exit code and/or output pattern, with retry.
package health

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/telemetry"
)

// Status is the outcome of a single health check.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusWarning Status = "warning"
	StatusUnknown Status = "unknown"
)

// CheckConfig configures one RunCheck invocation.
type CheckConfig struct {
	Timeout               time.Duration
	RetryCount            int
	RetryDelay            time.Duration
	ExpectedExitCode      int
	ExpectedOutputPattern *regexp.Regexp
	Critical              bool
}

// DefaultCheckConfig returns the package's documented defaults.
func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		Timeout:          30 * time.Second,
		RetryCount:       3,
		RetryDelay:       time.Second,
		ExpectedExitCode: 0,
		Critical:         false,
	}
}

// Result is the observed outcome of RunCheck.
type Result struct {
	CheckType string
	Status    Status
	Output    string
	Error     string
	ExitCode  int
	Duration  time.Duration
	Critical  bool
}

// Checker runs health-check commands over a RemoteShell.
type Checker struct {
	shell   coreapi.RemoteShell
	logger  coreapi.Logger
	metrics *telemetry.MetricInstruments
}

// New creates a Checker bound to shell.
func New(shell coreapi.RemoteShell, logger coreapi.Logger) *Checker {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	return &Checker{shell: shell, logger: logger, metrics: telemetry.NewMetricInstruments("sshagent/health")}
}

// RunCheck executes command up to config.RetryCount+1 times, classifying
// the outcome against the expected exit code and output pattern, and
// retries only while that outcome is not yet passed or warning.
func (c *Checker) RunCheck(ctx context.Context, command, checkType string, config CheckConfig) Result {
	if config.Timeout == 0 {
		config = mergeDefaults(config)
	}

	var last Result
	attempts := config.RetryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		res, err := c.shell.Execute(ctx, command, config.Timeout)
		elapsed := time.Since(start)

		last = Result{CheckType: checkType, ExitCode: res.ExitCode, Duration: elapsed, Critical: config.Critical, Output: res.Stdout}
		if err != nil {
			last.Status = StatusUnknown
			last.Error = err.Error()
		} else {
			last = classify(last, res, config)
		}

		c.metrics.RecordDuration(ctx, "sshagent.health.check_duration_seconds", elapsed.Seconds())

		if last.Status == StatusPassed || last.Status == StatusWarning {
			return last
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(config.RetryDelay):
			case <-ctx.Done():
				last.Status = StatusUnknown
				last.Error = ctx.Err().Error()
				return last
			}
		}
	}
	c.logger.Warn("health check failed after retries", map[string]interface{}{
		"check_type": checkType, "command": command, "status": last.Status,
	})
	return last
}

func classify(base Result, res coreapi.ExecResult, config CheckConfig) Result {
	if res.ExitCode != config.ExpectedExitCode {
		base.Status = StatusFailed
		base.Error = res.Stderr
		return base
	}
	if config.ExpectedOutputPattern == nil {
		base.Status = StatusPassed
		return base
	}
	if config.ExpectedOutputPattern.MatchString(res.Stdout) {
		base.Status = StatusPassed
		return base
	}
	if strings.Contains(strings.ToLower(res.Stdout), "warning") {
		base.Status = StatusWarning
		return base
	}
	base.Status = StatusFailed
	base.Error = "output did not match expected pattern"
	return base
}

func mergeDefaults(config CheckConfig) CheckConfig {
	d := DefaultCheckConfig()
	if config.Timeout == 0 {
		config.Timeout = d.Timeout
	}
	if config.RetryCount == 0 {
		config.RetryCount = d.RetryCount
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = d.RetryDelay
	}
	return config
}

// AggregateResult is the aggregated outcome of AggregateResults.
type AggregateResult struct {
	OverallStatus    Status
	SuccessRate      float64
	CriticalFailures int
	Total            int
	Passed           int
	Failed           int
	Warnings         int
}

// AggregateResults combines a batch of Results: overall is failed iff any
// critical check failed, warning iff any non-critical check failed or
// warned, else passed.
func AggregateResults(results []Result) AggregateResult {
	agg := AggregateResult{Total: len(results)}
	anyCriticalFailed := false
	anyNonCriticalFailedOrWarned := false

	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			agg.Passed++
		case StatusFailed:
			agg.Failed++
			if r.Critical {
				anyCriticalFailed = true
				agg.CriticalFailures++
			} else {
				anyNonCriticalFailedOrWarned = true
			}
		case StatusWarning:
			agg.Warnings++
			if !r.Critical {
				anyNonCriticalFailedOrWarned = true
			}
		}
	}

	switch {
	case anyCriticalFailed:
		agg.OverallStatus = StatusFailed
	case anyNonCriticalFailedOrWarned:
		agg.OverallStatus = StatusWarning
	default:
		agg.OverallStatus = StatusPassed
	}

	if agg.Total > 0 {
		agg.SuccessRate = float64(agg.Passed) / float64(agg.Total)
	}
	return agg
}
