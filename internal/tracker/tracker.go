package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
	"github.com/opsmind/sshagent/internal/telemetry"
)

// Config configures the Tracker's escalation thresholds and retention.
type Config struct {
	// ErrorThresholdPerStep is T_planner.
	ErrorThresholdPerStep int
	// HumanEscalationThreshold is T_human.
	HumanEscalationThreshold int
	// MaxRetentionDays bounds CleanupOldRecords.
	MaxRetentionDays int
}

// Tracker is the append-only ledger of attempts and errors per step, plus
// the derived stats view and the EscalationLevel pure function.
type Tracker struct {
	config  Config
	store   Store
	logger  coreapi.Logger
	metrics *telemetry.MetricInstruments

	// stepLocks gives each step id its own logical lock so record writes
	// for different steps never wait on each other; mu guards only the
	// stepLocks and stats maps themselves.
	mu        sync.Mutex
	stepLocks map[string]*sync.Mutex
	stats     map[string]*model.StepErrorStats
}

// New creates a Tracker backed by store (MemoryStore if nil).
func New(config Config, store Store, logger coreapi.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if config.ErrorThresholdPerStep == 0 {
		config.ErrorThresholdPerStep = 4
	}
	if config.HumanEscalationThreshold == 0 {
		config.HumanEscalationThreshold = 6
	}
	if config.MaxRetentionDays == 0 {
		config.MaxRetentionDays = 7
	}
	return &Tracker{
		config:    config,
		store:     store,
		logger:    logger,
		metrics:   telemetry.NewMetricInstruments("sshagent/tracker"),
		stepLocks: map[string]*sync.Mutex{},
		stats:     map[string]*model.StepErrorStats{},
	}
}

func (t *Tracker) lockFor(stepID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.stepLocks[stepID]
	if !ok {
		l = &sync.Mutex{}
		t.stepLocks[stepID] = l
	}
	return l
}

func (t *Tracker) statsFor(stepID string) *model.StepErrorStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[stepID]
	if !ok {
		s = model.NewStepErrorStats(stepID)
		t.stats[stepID] = s
	}
	return s
}

// RecordAttempt appends an AttemptRecord and, when success is false, also
// appends the implied ErrorRecord with the same payload.
func (t *Tracker) RecordAttempt(stepID, command string, success bool, duration time.Duration, exitCode int, errMsg string, autocorrectionUsed bool, metadata map[string]interface{}) (string, error) {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()

	rec := model.NewAttemptRecord(stepID, command, success, duration, exitCode, errMsg, autocorrectionUsed, metadata)
	if err := t.store.AppendAttempt(rec); err != nil {
		return "", err
	}

	stats := t.statsFor(stepID)
	stats.TotalAttempts++
	stats.TotalDuration += duration
	if success {
		stats.SuccessfulAttempts++
	} else {
		stats.FailedAttempts++
	}

	t.metrics.RecordCounter(context.Background(), "sshagent.tracker.attempts", 1)
	t.logger.Debug("attempt recorded", map[string]interface{}{
		"step_id": stepID, "command": command, "success": success,
	})

	if !success {
		if _, err := t.recordErrorLocked(stepID, command, errMsg, exitCode, autocorrectionUsed, metadata); err != nil {
			return rec.ID, err
		}
	}
	return rec.ID, nil
}

// RecordError classifies severity and escalation level, appends the
// ErrorRecord, and updates the pattern histogram. Exported for callers
// (e.g. the Coordinator, when subtask generation fails) that record a
// failure without a preceding Execute attempt.
func (t *Tracker) RecordError(stepID, command, errMsg string, exitCode int, autocorrectionApplied bool, metadata map[string]interface{}) (string, error) {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()
	return t.recordErrorLocked(stepID, command, errMsg, exitCode, autocorrectionApplied, metadata)
}

// recordErrorLocked assumes the caller already holds the per-step lock.
func (t *Tracker) recordErrorLocked(stepID, command, errMsg string, exitCode int, autocorrectionApplied bool, metadata map[string]interface{}) (string, error) {
	severity := classifySeverity(errMsg)

	stats := t.statsFor(stepID)
	stats.ErrorCount++
	now := time.Now()
	stats.LastErrorTimestamp = &now
	stats.ErrorPatterns[patternKey(errMsg)]++
	if autocorrectionApplied {
		stats.AutocorrectionCount++
	}

	level := t.escalationLevelLocked(stats.ErrorCount)
	stats.EscalationHistory = append(stats.EscalationHistory, level)

	rec := model.NewErrorRecord(stepID, command, errMsg, severity, exitCode, stats.ErrorCount, autocorrectionApplied, level, metadata)
	if err := t.store.AppendError(rec); err != nil {
		return "", err
	}

	t.metrics.RecordCounter(context.Background(), "sshagent.tracker.errors", 1)
	t.logger.Warn("error recorded", map[string]interface{}{
		"step_id": stepID, "severity": severity, "escalation_level": level, "error_count": stats.ErrorCount,
	})
	return rec.ID, nil
}

// EscalationLevel reads the step's current error count and maps it
// against the two thresholds. It takes no lock on the write path but does
// read stats under the step's lock to avoid torn reads of ErrorCount.
func (t *Tracker) EscalationLevel(stepID string) model.EscalationLevel {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()
	return t.escalationLevelLocked(t.statsFor(stepID).ErrorCount)
}

func (t *Tracker) escalationLevelLocked(count int) model.EscalationLevel {
	switch {
	case count == 0:
		return model.EscalationNone
	case count < t.config.ErrorThresholdPerStep:
		return model.EscalationAutocorrection
	case count < t.config.HumanEscalationThreshold:
		return model.EscalationPlannerNotification
	default:
		return model.EscalationHumanEscalation
	}
}

// ErrorCount returns the current error count for stepID, used by the
// Coordinator without needing the full stats view.
func (t *Tracker) ErrorCount(stepID string) int {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()
	return t.statsFor(stepID).ErrorCount
}

// ResetErrors clears a step's tracked error count after a plan revision
// lands, without deleting its historical ledger.
func (t *Tracker) ResetErrors(stepID string) {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()
	stats := t.statsFor(stepID)
	stats.ErrorCount = 0
}

// LastError returns the most recently recorded ErrorRecord for stepID, if
// any. Used by report-building callers (e.g. the Coordinator) that need
// the actual last failure message rather than the pattern histogram.
func (t *Tracker) LastError(stepID string) (model.ErrorRecord, bool) {
	errs, err := t.store.Errors(stepID)
	if err != nil || len(errs) == 0 {
		return model.ErrorRecord{}, false
	}
	return errs[len(errs)-1], true
}

// ErrorSummary returns a copy of the derived stats view for stepID.
func (t *Tracker) ErrorSummary(stepID string) model.StepErrorStats {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()
	s := t.statsFor(stepID)
	return *s
}

// GlobalStats aggregates every tracked step's stats into one summary.
type GlobalStats struct {
	TotalAttempts      int
	TotalErrors        int
	TotalAutocorrected int
	StepsTracked       int
}

// GlobalStats returns a read-only aggregate across every step.
func (t *Tracker) GlobalStats() GlobalStats {
	t.mu.Lock()
	ids := make([]string, 0, len(t.stats))
	for id := range t.stats {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var g GlobalStats
	for _, id := range ids {
		s := t.ErrorSummary(id)
		g.TotalAttempts += s.TotalAttempts
		g.TotalErrors += s.ErrorCount
		g.TotalAutocorrected += s.AutocorrectionCount
		g.StepsTracked++
	}
	return g
}

// CleanupOldRecords drops records older than the retention window for
// steps not in activeSteps, and recomputes their stats from what remains.
// A record of an active step is never dropped.
func (t *Tracker) CleanupOldRecords(activeSteps map[string]bool) error {
	cutoff := time.Now().AddDate(0, 0, -t.config.MaxRetentionDays)
	if err := t.store.DropBefore(cutoff, activeSteps); err != nil {
		return err
	}

	t.mu.Lock()
	ids := make([]string, 0, len(t.stats))
	for id := range t.stats {
		if !activeSteps[id] {
			ids = append(ids, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		if err := t.recomputeStats(id); err != nil {
			return err
		}
	}
	return nil
}

// recomputeStats replays the (post-cleanup) ledger for stepID and rebuilds
// its StepErrorStats from scratch, exercising the same derivation used
// live so a replay and the live counters always agree.
func (t *Tracker) recomputeStats(stepID string) error {
	lock := t.lockFor(stepID)
	lock.Lock()
	defer lock.Unlock()

	attempts, err := t.store.Attempts(stepID)
	if err != nil {
		return err
	}
	errs, err := t.store.Errors(stepID)
	if err != nil {
		return err
	}

	stats := model.NewStepErrorStats(stepID)
	for _, a := range attempts {
		stats.TotalAttempts++
		stats.TotalDuration += a.Duration
		if a.Success {
			stats.SuccessfulAttempts++
		} else {
			stats.FailedAttempts++
		}
	}
	for _, e := range errs {
		stats.ErrorCount++
		ts := e.Timestamp
		stats.LastErrorTimestamp = &ts
		stats.ErrorPatterns[patternKey(e.ErrorMessage)]++
		if e.AutocorrectionApplied {
			stats.AutocorrectionCount++
		}
		stats.EscalationHistory = append(stats.EscalationHistory, e.EscalationLevel)
	}
	t.mu.Lock()
	t.stats[stepID] = stats
	t.mu.Unlock()
	return nil
}

// ReplayStats rebuilds StepErrorStats for stepID purely from the ledger,
// without touching the live in-memory counters — used by tests asserting
// that replaying the log recomputes the same stats.
func (t *Tracker) ReplayStats(stepID string) (model.StepErrorStats, error) {
	attempts, err := t.store.Attempts(stepID)
	if err != nil {
		return model.StepErrorStats{}, err
	}
	errs, err := t.store.Errors(stepID)
	if err != nil {
		return model.StepErrorStats{}, err
	}
	stats := model.NewStepErrorStats(stepID)
	for _, a := range attempts {
		stats.TotalAttempts++
		stats.TotalDuration += a.Duration
		if a.Success {
			stats.SuccessfulAttempts++
		} else {
			stats.FailedAttempts++
		}
	}
	for _, e := range errs {
		stats.ErrorCount++
		ts := e.Timestamp
		stats.LastErrorTimestamp = &ts
		stats.ErrorPatterns[patternKey(e.ErrorMessage)]++
		if e.AutocorrectionApplied {
			stats.AutocorrectionCount++
		}
		stats.EscalationHistory = append(stats.EscalationHistory, e.EscalationLevel)
	}
	return *stats, nil
}
