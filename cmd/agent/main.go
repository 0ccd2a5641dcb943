// Command agent is a minimal wiring entrypoint: it assembles the ten core
// components into one running Coordinator and executes a single task
// against the local host. The interactive CLI (execute/status/history/
// cleanup/config/init) is a separate collaborator and is not reimplemented
// here; this binary exists so the module is runnable end to end with real
// (if locally-scoped) transports.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/opsmind/sshagent/internal/autocorrect"
	"github.com/opsmind/sshagent/internal/coordinator"
	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/escalation"
	"github.com/opsmind/sshagent/internal/executor"
	"github.com/opsmind/sshagent/internal/health"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/planner"
	"github.com/opsmind/sshagent/internal/state"
	"github.com/opsmind/sshagent/internal/subtask"
	"github.com/opsmind/sshagent/internal/telemetry"
	"github.com/opsmind/sshagent/internal/tracker"
	"github.com/opsmind/sshagent/internal/transport"
	"github.com/opsmind/sshagent/internal/validator"
)

func main() {
	title := flag.String("title", "", "short task title")
	description := flag.String("description", "", "task description handed to the planner")
	dryRun := flag.Bool("dry-run", false, "validate and plan without executing commands")
	statePath := flag.String("state-file", "sshagent-state.yaml", "path to the State Manager's snapshot document")
	flag.Parse()

	if *description == "" {
		log.Fatal("agent: --description is required")
	}
	if *title == "" {
		*title = *description
	}

	logger := telemetry.NewStructuredLogger("sshagent-agent")
	cfg, err := coreapi.NewConfig(coreapi.WithLogger(logger), coreapi.WithDryRun(*dryRun))
	if err != nil {
		log.Fatalf("agent: invalid configuration: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init("sshagent-agent")
	if err != nil {
		log.Fatalf("agent: failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	shell := transport.NewLocalShell()
	ai := unconfiguredAIClient{}

	v := validator.New(logger)
	tr := tracker.New(tracker.Config{
		ErrorThresholdPerStep:    cfg.ErrorThresholdPerStep,
		HumanEscalationThreshold: cfg.HumanEscalationThreshold,
		MaxRetentionDays:         cfg.MaxRetentionDays,
	}, nil, logger)
	hc := health.New(shell, logger)
	var ac *autocorrect.Engine
	if cfg.AutoCorrectionEnabled {
		ac = autocorrect.New(ai, "ubuntu")
	}
	ex := executor.New(shell, v, tr, ac, hc, nil, executor.Config{
		MaxRetriesPerCommand: cfg.MaxRetriesPerCommand,
		DryRun:               cfg.DryRunMode,
	}, logger)

	p := planner.New(ai, planner.Config{MaxSteps: cfg.MaxSteps}, logger)
	g := subtask.New(ai, v, ac, logger)

	escMgr := escalation.New(escalation.Config{
		ErrorThresholdPerStep:    cfg.ErrorThresholdPerStep,
		HumanEscalationThreshold: cfg.HumanEscalationThreshold,
		Cooldown:                 cfg.EscalationCooldown,
	}, logger)

	bus := coordinator.NewBus()
	bus.Subscribe(coordinator.EventTaskStarted, func(e coordinator.Event) {
		logger.Info("task started", map[string]interface{}{"task_id": e.TaskID})
	})
	bus.Subscribe(coordinator.EventEscalationRaised, func(e coordinator.Event) {
		logger.Warn("escalation raised", map[string]interface{}{"task_id": e.TaskID, "step_id": e.StepID, "type": e.Message})
	})

	sm := state.New(*statePath, state.Config{SnapshotInterval: cfg.StateSnapshotInterval}, logger)
	if err := sm.Load(); err != nil {
		log.Fatalf("agent: failed to load state snapshot: %v", err)
	}
	sm.SetRestoreHandler(func(snapshotID, reason string) {
		bus.Publish(coordinator.Event{Kind: coordinator.EventStateRestored, Phase: "restored", Message: fmt.Sprintf("%s: %s", snapshotID, reason)})
	})
	stopAutoSave := make(chan struct{})
	sm.StartAutoSave(stopAutoSave)
	defer func() {
		close(stopAutoSave)
		sm.StopAutoSave()
	}()

	coordCfg := coordinator.DefaultConfig()
	coordCfg.DryRun = cfg.DryRunMode
	co := coordinator.New(shell, p, g, ex, tr, escMgr, bus, nil, nil, logger, coordCfg)

	sm.Set(state.ChannelAgent, "running", "agent started")
	if _, err := sm.Snapshot("startup"); err != nil {
		logger.Warn("initial state snapshot failed", map[string]interface{}{"error": err.Error()})
	}

	ctx := context.Background()
	report, err := co.ExecuteTask(ctx, *title, *description, model.PriorityMedium, nil)
	sm.Set(state.ChannelAgent, "idle", "task finished")
	if err != nil {
		log.Fatalf("agent: task failed to start: %v", err)
	}

	fmt.Printf("task %s finished with status %s in %s\n", report.TaskID, report.Status, report.Duration)
	for _, fs := range report.FailedSteps {
		fmt.Printf("  failed step %s (%q): %d errors, last: %s\n", fs.StepID, fs.Title, fs.ErrorCount, fs.LastError)
	}
	if report.Status != model.TaskCompleted {
		os.Exit(1)
	}
}

// unconfiguredAIClient is a placeholder coreapi.AIClient: it is not a real
// model backend. Embedding applications are expected to supply their own
// AIClient, a stateless oracle the core never implements itself; this stub
// only keeps the binary runnable without one configured.
type unconfiguredAIClient struct{}

func (unconfiguredAIClient) Complete(_ context.Context, req coreapi.CompletionRequest) (*coreapi.CompletionResponse, error) {
	return nil, coreapi.NewFrameworkError("unconfiguredAIClient.Complete", "ai_client",
		fmt.Errorf("no AIClient configured; wire a real implementation in %s", filepath.Base(os.Args[0])))
}
