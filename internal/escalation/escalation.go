// Package escalation implements the Escalation System: the four-tier state
// machine (planner-notification, plan-revision, human-escalation,
// emergency-stop) driven by a step's tracked error count, with a
// per-(step,type) cooldown.
package escalation

import (
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
)

// Config parameterizes the thresholds and cooldown window.
type Config struct {
	// ErrorThresholdPerStep is T1 (= the Tracker's T_planner).
	ErrorThresholdPerStep int
	// HumanEscalationThreshold is T2 (= the Tracker's T_human).
	HumanEscalationThreshold int
	// Cooldown is the window in which a new request for a (step, type)
	// pair is refused while an earlier one for that pair is still
	// pending or in progress.
	Cooldown time.Duration
}

// DefaultConfig returns the package's documented defaults: T1=4, T2=6,
// cooldown=5m.
func DefaultConfig() Config {
	return Config{ErrorThresholdPerStep: 4, HumanEscalationThreshold: 6, Cooldown: 5 * time.Minute}
}

// t3 is T_human + 2, the emergency-stop threshold.
func (c Config) t3() int { return c.HumanEscalationThreshold + 2 }

type cooldownKey struct {
	stepID string
	kind   model.EscalationType
}

// Manager tracks pending/in-progress/resolved EscalationRequests and
// enforces the cooldown window.
type Manager struct {
	config Config
	logger coreapi.Logger

	mu           sync.Mutex
	requests     map[string]*model.EscalationRequest
	lastFired    map[cooldownKey]time.Time
	humanPayload map[string]*HumanEscalationPayload
}

// New creates a Manager.
func New(config Config, logger coreapi.Logger) *Manager {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if config.ErrorThresholdPerStep == 0 {
		config = DefaultConfig()
	}
	return &Manager{
		config:       config,
		logger:       logger,
		requests:     map[string]*model.EscalationRequest{},
		lastFired:    map[cooldownKey]time.Time{},
		humanPayload: map[string]*HumanEscalationPayload{},
	}
}

// Evaluate maps the step's current error count to an escalation tier, and
// creates a new EscalationRequest unless a prior request for the same
// (step, type) is still pending/in-progress within the cooldown window.
// Returns (nil, nil) when the error count is below T1 (no escalation
// needed).
func (m *Manager) Evaluate(stepID, taskID, stepTitle string, errorCount int, details []model.ErrorRecord) (*model.EscalationRequest, error) {
	t1 := m.config.ErrorThresholdPerStep
	t2 := m.config.HumanEscalationThreshold
	t3 := m.config.t3()

	var kind model.EscalationType
	switch {
	case errorCount < t1:
		return nil, nil
	case errorCount < t1+1:
		kind = model.EscalationTypePlannerNotification
	case errorCount < t2:
		kind = model.EscalationTypePlanRevision
	case errorCount < t3:
		kind = model.EscalationTypeHumanEscalation
	default:
		kind = model.EscalationTypeEmergencyStop
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := cooldownKey{stepID: stepID, kind: kind}
	if m.withinCooldownLocked(key) {
		return nil, coreapi.NewFrameworkError("escalation.Evaluate", "escalation", coreapi.ErrEscalationCooldown).WithID(stepID)
	}

	req := model.NewEscalationRequest(kind, stepID, taskID, reasonFor(kind, errorCount), errorCount, thresholdFor(kind, t1, t2, t3), details)
	if kind == model.EscalationTypeHumanEscalation {
		m.humanPayload[req.ID] = &HumanEscalationPayload{
			OperatorID:       "",
			Channel:          defaultChannel(),
			Severity:         severityForErrorCount(errorCount, t2, t3),
			Title:            "Step requires human attention: " + stepTitle,
			Message:          reasonFor(kind, errorCount),
			SuggestedActions: suggestedActionsFor(stepTitle),
			CreatedAt:        time.Now(),
		}
	}

	m.requests[req.ID] = req
	m.lastFired[key] = time.Now()

	m.logger.Warn("escalation request created", map[string]interface{}{
		"step_id": stepID, "task_id": taskID, "type": kind, "error_count": errorCount,
	})
	return req, nil
}

func (m *Manager) withinCooldownLocked(key cooldownKey) bool {
	last, ok := m.lastFired[key]
	if !ok {
		return false
	}
	for _, req := range m.requests {
		if req.StepID == key.stepID && req.Type == key.kind &&
			(req.Status == model.EscalationStatusPending || req.Status == model.EscalationStatusInProgress) {
			return time.Since(last) < m.config.Cooldown
		}
	}
	return false
}

func reasonFor(kind model.EscalationType, errorCount int) string {
	switch kind {
	case model.EscalationTypePlannerNotification:
		return "step error count reached the planner-notification threshold"
	case model.EscalationTypePlanRevision:
		return "step error count requires a plan revision"
	case model.EscalationTypeHumanEscalation:
		return "step error count requires human operator attention"
	case model.EscalationTypeEmergencyStop:
		return "step error count exceeded the emergency-stop threshold"
	default:
		return ""
	}
}

func thresholdFor(kind model.EscalationType, t1, t2, t3 int) int {
	switch kind {
	case model.EscalationTypePlannerNotification:
		return t1
	case model.EscalationTypePlanRevision:
		return t1 + 1
	case model.EscalationTypeHumanEscalation:
		return t2
	case model.EscalationTypeEmergencyStop:
		return t3
	default:
		return 0
	}
}

// Acknowledge transitions a pending request to in-progress, invoked by the
// consumer callback.
func (m *Manager) Acknowledge(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return coreapi.NewFrameworkError("escalation.Acknowledge", "escalation", coreapi.ErrEscalationNotFound).WithID(requestID)
	}
	if req.Status != model.EscalationStatusPending {
		return coreapi.NewFrameworkError("escalation.Acknowledge", "escalation", coreapi.ErrEscalationResolved).WithID(requestID)
	}
	req.Status = model.EscalationStatusInProgress
	return nil
}

// Resolve transitions an in-progress request to resolved, optionally
// attaching a revised Step for plan-revision requests.
func (m *Manager) Resolve(requestID, resolution string, revisedStep *model.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return coreapi.NewFrameworkError("escalation.Resolve", "escalation", coreapi.ErrEscalationNotFound).WithID(requestID)
	}
	if req.Status == model.EscalationStatusResolved {
		return coreapi.NewFrameworkError("escalation.Resolve", "escalation", coreapi.ErrEscalationResolved).WithID(requestID)
	}
	req.Status = model.EscalationStatusResolved
	req.Resolution = resolution
	req.RevisedStep = revisedStep
	return nil
}

// Fail transitions an in-progress request to failed when the consumer
// callback itself errors.
func (m *Manager) Fail(requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	if !ok {
		return coreapi.NewFrameworkError("escalation.Fail", "escalation", coreapi.ErrEscalationNotFound).WithID(requestID)
	}
	req.Status = model.EscalationStatusFailed
	return nil
}

// Get returns the request by id.
func (m *Manager) Get(requestID string) (*model.EscalationRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[requestID]
	return req, ok
}

// HumanPayload returns the HumanEscalationPayload attached to a
// human-escalation request, if any.
func (m *Manager) HumanPayload(requestID string) (*HumanEscalationPayload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.humanPayload[requestID]
	return p, ok
}
