package model

import (
	"time"

	"github.com/google/uuid"
)

// ErrorSeverity classifies an ErrorRecord by substring match on its
// message.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// EscalationLevel is the pure function of a step's error count against the
// configured thresholds.
type EscalationLevel string

const (
	EscalationNone                 EscalationLevel = "none"
	EscalationAutocorrection       EscalationLevel = "autocorrection"
	EscalationPlannerNotification  EscalationLevel = "planner_notification"
	EscalationHumanEscalation      EscalationLevel = "human_escalation"
)

// AttemptRecord is one execution of one command, success or failure. The
// Executor appends these via the Tracker; they are never mutated.
type AttemptRecord struct {
	ID                  string
	StepID              string
	Command             string
	Timestamp           time.Time
	Success             bool
	Duration            time.Duration
	ExitCode            int
	ErrorMessage        string
	AutocorrectionUsed  bool
	Metadata            map[string]interface{}
}

// NewAttemptRecord creates an AttemptRecord with a fresh id and the current
// timestamp.
func NewAttemptRecord(stepID, command string, success bool, duration time.Duration, exitCode int, errMsg string, autocorrected bool, metadata map[string]interface{}) AttemptRecord {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return AttemptRecord{
		ID:                 uuid.NewString(),
		StepID:             stepID,
		Command:            command,
		Timestamp:          time.Now(),
		Success:            success,
		Duration:           duration,
		ExitCode:           exitCode,
		ErrorMessage:       errMsg,
		AutocorrectionUsed: autocorrected,
		Metadata:           metadata,
	}
}

// ErrorRecord is the failure-side projection of an attempt, classified by
// severity and pattern.
type ErrorRecord struct {
	ID                    string
	StepID                string
	Command               string
	ErrorMessage          string
	Severity              ErrorSeverity
	Timestamp             time.Time
	ExitCode              int
	RetryCount            int
	AutocorrectionApplied bool
	EscalationLevel       EscalationLevel
	Metadata              map[string]interface{}
}

// NewErrorRecord creates an ErrorRecord with a fresh id and the current
// timestamp.
func NewErrorRecord(stepID, command, errMsg string, severity ErrorSeverity, exitCode, retryCount int, autocorrected bool, level EscalationLevel, metadata map[string]interface{}) ErrorRecord {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return ErrorRecord{
		ID:                    uuid.NewString(),
		StepID:                stepID,
		Command:               command,
		ErrorMessage:          errMsg,
		Severity:              severity,
		Timestamp:             time.Now(),
		ExitCode:              exitCode,
		RetryCount:            retryCount,
		AutocorrectionApplied: autocorrected,
		EscalationLevel:       level,
		Metadata:              metadata,
	}
}

// StepErrorStats is the derived, read-only view per step id the Tracker
// maintains incrementally.
type StepErrorStats struct {
	StepID               string
	TotalAttempts        int
	SuccessfulAttempts   int
	FailedAttempts       int
	ErrorCount           int
	AutocorrectionCount  int
	TotalDuration        time.Duration
	LastErrorTimestamp   *time.Time
	ErrorPatterns        map[string]int
	EscalationHistory    []EscalationLevel
}

// NewStepErrorStats creates an empty stats view for stepID.
func NewStepErrorStats(stepID string) *StepErrorStats {
	return &StepErrorStats{
		StepID:        stepID,
		ErrorPatterns: map[string]int{},
	}
}

// SuccessRate returns the percentage of attempts that succeeded, 0 if none.
func (s *StepErrorStats) SuccessRate() float64 {
	if s.TotalAttempts == 0 {
		return 0
	}
	return float64(s.SuccessfulAttempts) / float64(s.TotalAttempts) * 100
}

// FailureRate returns 100 - SuccessRate.
func (s *StepErrorStats) FailureRate() float64 {
	return 100 - s.SuccessRate()
}

// AverageDuration returns the mean attempt duration, 0 if none.
func (s *StepErrorStats) AverageDuration() time.Duration {
	if s.TotalAttempts == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.TotalAttempts)
}

// EscalationType names the four escalation tiers.
type EscalationType string

const (
	EscalationTypePlannerNotification EscalationType = "planner-notification"
	EscalationTypePlanRevision         EscalationType = "plan-revision"
	EscalationTypeHumanEscalation      EscalationType = "human-escalation"
	EscalationTypeEmergencyStop        EscalationType = "emergency-stop"
)

// EscalationStatus is the lifecycle state of an EscalationRequest.
type EscalationStatus string

const (
	EscalationStatusPending    EscalationStatus = "pending"
	EscalationStatusInProgress EscalationStatus = "in_progress"
	EscalationStatusResolved   EscalationStatus = "resolved"
	EscalationStatusFailed     EscalationStatus = "failed"
	EscalationStatusCancelled  EscalationStatus = "cancelled"
)

// EscalationRequest is created by the Escalation System and mutated only
// to record resolution.
type EscalationRequest struct {
	ID                string
	Type              EscalationType
	StepID            string
	TaskID            string
	Reason            string
	ErrorCountAtTrigger int
	ThresholdExceeded int
	Timestamp         time.Time
	ErrorDetails      []ErrorRecord
	Status            EscalationStatus
	Resolution        string
	// RevisedStep is populated only for plan-revision requests once a
	// resolution lands.
	RevisedStep *Step
}

// NewEscalationRequest creates an EscalationRequest in pending status.
func NewEscalationRequest(kind EscalationType, stepID, taskID, reason string, errorCount, threshold int, details []ErrorRecord) *EscalationRequest {
	return &EscalationRequest{
		ID:                  uuid.NewString(),
		Type:                kind,
		StepID:              stepID,
		TaskID:              taskID,
		Reason:              reason,
		ErrorCountAtTrigger: errorCount,
		ThresholdExceeded:   threshold,
		Timestamp:           time.Now(),
		ErrorDetails:        details,
		Status:              EscalationStatusPending,
	}
}
