package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/model"
)

func newTestTracker() *Tracker {
	return New(Config{ErrorThresholdPerStep: 4, HumanEscalationThreshold: 6, MaxRetentionDays: 7}, nil, nil)
}

func TestRecordAttemptSuccessDoesNotRecordError(t *testing.T) {
	tr := newTestTracker()
	_, err := tr.RecordAttempt("s1", "apt update", true, time.Millisecond, 0, "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, tr.ErrorCount("s1"))

	summary := tr.ErrorSummary("s1")
	assert.Equal(t, 1, summary.TotalAttempts)
	assert.Equal(t, 1, summary.SuccessfulAttempts)
}

func TestRecordAttemptFailureAlsoRecordsError(t *testing.T) {
	tr := newTestTracker()
	_, err := tr.RecordAttempt("s1", "apt install x", false, time.Millisecond, 1, "permission denied", false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.ErrorCount("s1"))

	errs, err := tr.store.Errors("s1")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, model.SeverityCritical, errs[0].Severity)
}

func TestEscalationLevelThresholds(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 3; i++ {
		tr.RecordError("s1", "cmd", "command not found", 127, false, nil)
	}
	assert.Equal(t, model.EscalationAutocorrection, tr.EscalationLevel("s1"), "expected autocorrection at count 3")

	tr.RecordError("s1", "cmd", "command not found", 127, false, nil)
	assert.Equal(t, model.EscalationPlannerNotification, tr.EscalationLevel("s1"), "expected planner_notification at count 4 (T_planner)")

	for i := 0; i < 2; i++ {
		tr.RecordError("s1", "cmd", "command not found", 127, false, nil)
	}
	assert.Equal(t, model.EscalationHumanEscalation, tr.EscalationLevel("s1"), "expected human_escalation at count 6 (T_human)")
}

func TestResetErrorsClearsCountButKeepsLedger(t *testing.T) {
	tr := newTestTracker()
	tr.RecordError("s1", "cmd", "timeout", 1, false, nil)
	tr.RecordError("s1", "cmd", "timeout", 1, false, nil)
	tr.ResetErrors("s1")
	assert.Equal(t, 0, tr.ErrorCount("s1"))

	errs, _ := tr.store.Errors("s1")
	assert.Len(t, errs, 2, "expected ledger to retain 2 error records")
}

func TestLastErrorReturnsMostRecentRecord(t *testing.T) {
	tr := newTestTracker()
	tr.RecordError("s1", "cmd", "first failure", 1, false, nil)
	tr.RecordError("s1", "cmd", "second failure", 1, false, nil)

	rec, ok := tr.LastError("s1")
	require.True(t, ok)
	assert.Equal(t, "second failure", rec.ErrorMessage)

	_, ok = tr.LastError("unknown-step")
	assert.False(t, ok)
}

func TestReplayStatsMatchesLiveCounters(t *testing.T) {
	tr := newTestTracker()
	tr.RecordAttempt("s1", "cmd-a", true, time.Millisecond, 0, "", false, nil)
	tr.RecordAttempt("s1", "cmd-b", false, time.Millisecond, 1, "file not found", false, nil)
	tr.RecordAttempt("s1", "cmd-b", true, time.Millisecond, 0, "", true, nil)

	live := tr.ErrorSummary("s1")
	replayed, err := tr.ReplayStats("s1")
	require.NoError(t, err)
	assert.Equal(t, live.TotalAttempts, replayed.TotalAttempts)
	assert.Equal(t, live.SuccessfulAttempts, replayed.SuccessfulAttempts)
	assert.Equal(t, live.FailedAttempts, replayed.FailedAttempts)
	assert.Equal(t, live.ErrorCount, replayed.ErrorCount)
}

func TestCleanupOldRecordsSkipsActiveSteps(t *testing.T) {
	tr := newTestTracker()
	tr.RecordError("active", "cmd", "timeout", 1, false, nil)
	tr.RecordError("inactive", "cmd", "timeout", 1, false, nil)

	// Force every record to look old by cleaning up with a retention of 0
	// days relative to "now", except the active step must survive.
	tr.config.MaxRetentionDays = 0
	require.NoError(t, tr.CleanupOldRecords(map[string]bool{"active": true}))

	activeErrs, _ := tr.store.Errors("active")
	assert.Len(t, activeErrs, 1, "expected active step's records preserved")
}
