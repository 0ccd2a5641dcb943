// Package executor implements the Executor: runs a Subtask's commands
// through the Validate -> Execute -> Observe -> Autocorrect loop, records
// every attempt to the Tracker, and drives rollback on exhaustion.
package executor

import (
	"context"
	"time"

	"github.com/opsmind/sshagent/internal/autocorrect"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/health"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/resilience"
	"github.com/opsmind/sshagent/internal/telemetry"
	"github.com/opsmind/sshagent/internal/tracker"
	"github.com/opsmind/sshagent/internal/validator"
)

// Config bounds the Executor's retry behavior.
type Config struct {
	MaxRetriesPerCommand int
	DryRun               bool
}

// DefaultConfig mirrors the Executor's default max_retries_per_command of 2.
func DefaultConfig() Config {
	return Config{MaxRetriesPerCommand: 2}
}

// CommandResult is the per-command outcome returned in Result.
type CommandResult struct {
	Command            string
	Success            bool
	Stdout             string
	Stderr             string
	ExitCode           int
	Duration           time.Duration
	AutocorrectionUsed bool
	AttemptsUsed       int
}

// Result is ExecuteSubtask's return value.
type Result struct {
	Success               bool
	PerCommandResults     []CommandResult
	ErrorCount            int
	Duration              time.Duration
	AutocorrectionsApplied int
	RolledBack            bool
	HealthCheckResults    []health.Result
}

// Executor wires the Validator, RemoteShell, Tracker, Autocorrection Engine
// and Health Checker together for one Subtask at a time.
type Executor struct {
	shell      coreapi.RemoteShell
	validator  *validator.Validator
	tracker    *tracker.Tracker
	autocorrect *autocorrect.Engine
	health     *health.Checker
	breaker    *resilience.CircuitBreaker
	config     Config
	logger     coreapi.Logger
	metrics    *telemetry.MetricInstruments
}

// New creates an Executor. breaker may be nil to run without connection
// circuit-breaking (tests, dry runs).
func New(shell coreapi.RemoteShell, v *validator.Validator, tr *tracker.Tracker, ac *autocorrect.Engine, hc *health.Checker, breaker *resilience.CircuitBreaker, config Config, logger coreapi.Logger) *Executor {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if config.MaxRetriesPerCommand < 0 {
		config.MaxRetriesPerCommand = DefaultConfig().MaxRetriesPerCommand
	}
	return &Executor{
		shell: shell, validator: v, tracker: tr, autocorrect: ac, health: hc, breaker: breaker,
		config: config, logger: logger, metrics: telemetry.NewMetricInstruments("sshagent/executor"),
	}
}

// ExecuteSubtask runs every command in sub.Commands, then sub.HealthChecks,
// rolling back via sub.RollbackCommands on failure.
func (e *Executor) ExecuteSubtask(ctx context.Context, sub *model.Subtask, step *model.Step, criticalHealthChecks bool) Result {
	start := time.Now()
	result := Result{Success: true}
	mutated := false

	for _, cmd := range sub.Commands {
		cr, ok := e.runCommandWithAutocorrect(ctx, step.ID, cmd, sub.Timeout)
		result.PerCommandResults = append(result.PerCommandResults, cr)
		if cr.AutocorrectionUsed {
			result.AutocorrectionsApplied++
		}
		if !ok {
			result.ErrorCount++
			result.Success = false
			if mutated && !e.config.DryRun {
				e.rollback(ctx, sub)
				result.RolledBack = true
			}
			result.Duration = time.Since(start)
			return result
		}
		mutated = true
	}

	if len(sub.HealthChecks) > 0 && e.health != nil {
		for _, check := range sub.HealthChecks {
			cfg := health.DefaultCheckConfig()
			cfg.Critical = criticalHealthChecks
			hr := e.health.RunCheck(ctx, check, "subtask_health_check", cfg)
			result.HealthCheckResults = append(result.HealthCheckResults, hr)
			if hr.Status == health.StatusFailed && hr.Critical {
				result.Success = false
				if !e.config.DryRun {
					e.rollback(ctx, sub)
					result.RolledBack = true
				}
			}
		}
	}

	result.Duration = time.Since(start)
	return result
}

// runCommandWithAutocorrect runs the Validate, Execute, Record, and up to
// MaxRetriesPerCommand Autocorrect-and-retry cycles for a single command.
func (e *Executor) runCommandWithAutocorrect(ctx context.Context, stepID, command string, timeout time.Duration) (CommandResult, bool) {
	current := command
	autocorrectionUsed := false

	for attempt := 0; attempt <= e.config.MaxRetriesPerCommand; attempt++ {
		valRes := e.validator.Validate(current, &validator.ValidationContext{StepID: stepID})
		if !valRes.Valid {
			e.tracker.RecordAttempt(stepID, current, false, 0, -1, "forbidden", autocorrectionUsed, nil)
			return CommandResult{Command: current, Success: false, Stderr: "forbidden", AttemptsUsed: attempt + 1}, false
		}

		res, execErr := e.executeOne(ctx, current, timeout)
		success := execErr == nil && res.ExitCode == 0 && !res.Cancelled

		e.tracker.RecordAttempt(stepID, current, success, res.Duration, res.ExitCode, res.Stderr, autocorrectionUsed, nil)

		cr := CommandResult{
			Command: current, Success: success, Stdout: res.Stdout, Stderr: res.Stderr,
			ExitCode: res.ExitCode, Duration: res.Duration, AutocorrectionUsed: autocorrectionUsed, AttemptsUsed: attempt + 1,
		}
		if success {
			return cr, true
		}

		if attempt == e.config.MaxRetriesPerCommand || e.autocorrect == nil {
			return cr, false
		}

		candidate := e.autocorrect.Correct(ctx, current, res.Stderr)
		if candidate.CorrectionType == autocorrect.TypeNone || candidate.CorrectedCommand == "" {
			return cr, false
		}
		current = candidate.CorrectedCommand
		autocorrectionUsed = true
	}
	return CommandResult{Command: current, Success: false}, false
}

// executeOne runs command through the RemoteShell, optionally guarded by a
// circuit breaker, or simulates success under dry_run.
func (e *Executor) executeOne(ctx context.Context, command string, timeout time.Duration) (coreapi.ExecResult, error) {
	if e.config.DryRun {
		return coreapi.ExecResult{Stdout: "dry_run: " + command, ExitCode: 0}, nil
	}

	spanCtx, finish := telemetry.StartSpan(ctx, "executor.Execute")
	var res coreapi.ExecResult
	var err error
	run := func(c context.Context) error {
		res, err = e.shell.Execute(c, command, timeout)
		return err
	}

	if e.breaker != nil {
		cbErr := e.breaker.Execute(spanCtx, run)
		finish(cbErr)
		if cbErr != nil {
			return coreapi.ExecResult{Stderr: "connection_error", ExitCode: -1}, cbErr
		}
		return res, nil
	}

	cbErr := run(spanCtx)
	finish(cbErr)
	return res, cbErr
}

// rollback runs sub.RollbackCommands in order, logging but ignoring their
// own failures.
func (e *Executor) rollback(ctx context.Context, sub *model.Subtask) {
	for _, cmd := range sub.RollbackCommands {
		res, err := e.executeOne(ctx, cmd, sub.Timeout)
		if err != nil || res.ExitCode != 0 {
			e.logger.Warn("rollback command failed", map[string]interface{}{
				"subtask_id": sub.ID, "command": cmd, "exit_code": res.ExitCode,
			})
		}
	}
}
