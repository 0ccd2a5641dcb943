package escalation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmind/sshagent/internal/coreapi"
	"github.com/opsmind/sshagent/internal/model"
)

func testConfig() Config {
	return Config{ErrorThresholdPerStep: 4, HumanEscalationThreshold: 6, Cooldown: 0}
}

func TestEvaluateBelowThresholdReturnsNone(t *testing.T) {
	m := New(testConfig(), nil)
	req, err := m.Evaluate("step-1", "task-1", "restart nginx", 3, nil)
	require.NoError(t, err)
	assert.Nil(t, req, "expected no escalation below T1")
}

func TestEvaluateAtT1IsPlannerNotification(t *testing.T) {
	m := New(testConfig(), nil)
	req, err := m.Evaluate("step-1", "task-1", "restart nginx", 4, nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.EscalationTypePlannerNotification, req.Type)
}

func TestEvaluateAtT1Plus1IsPlanRevision(t *testing.T) {
	m := New(testConfig(), nil)
	req, err := m.Evaluate("step-1", "task-1", "restart nginx", 5, nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.EscalationTypePlanRevision, req.Type)
}

func TestEvaluateAtT2IsHumanEscalation(t *testing.T) {
	m := New(testConfig(), nil)
	req, err := m.Evaluate("step-1", "task-1", "restart nginx", 6, nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.EscalationTypeHumanEscalation, req.Type)

	payload, ok := m.HumanPayload(req.ID)
	assert.True(t, ok)
	assert.NotNil(t, payload, "expected a HumanEscalationPayload attached to a human-escalation request")
}

func TestEvaluateAtT3IsEmergencyStop(t *testing.T) {
	m := New(testConfig(), nil)
	req, err := m.Evaluate("step-1", "task-1", "restart nginx", 8, nil)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, model.EscalationTypeEmergencyStop, req.Type)
}

func TestEvaluateCooldownSuppressesDuplicateRequest(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = 1000000000 // 1s, long enough that the test won't race past it
	m := New(cfg, nil)

	first, err := m.Evaluate("step-1", "task-1", "restart nginx", 4, nil)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := m.Evaluate("step-1", "task-1", "restart nginx", 4, nil)
	assert.Nil(t, second, "expected second identical request to be suppressed")
	assert.ErrorIs(t, err, coreapi.ErrEscalationCooldown)
}

func TestAcknowledgeResolveLifecycle(t *testing.T) {
	m := New(testConfig(), nil)
	req, _ := m.Evaluate("step-1", "task-1", "restart nginx", 4, nil)
	require.Equal(t, model.EscalationStatusPending, req.Status)

	require.NoError(t, m.Acknowledge(req.ID))
	got, _ := m.Get(req.ID)
	assert.Equal(t, model.EscalationStatusInProgress, got.Status)

	require.NoError(t, m.Resolve(req.ID, "retried with sudo", nil))
	got, _ = m.Get(req.ID)
	assert.Equal(t, model.EscalationStatusResolved, got.Status)
}

func TestFailTransitionsToFailed(t *testing.T) {
	m := New(testConfig(), nil)
	req, _ := m.Evaluate("step-1", "task-1", "restart nginx", 4, nil)
	require.NoError(t, m.Fail(req.ID))
	got, _ := m.Get(req.ID)
	assert.Equal(t, model.EscalationStatusFailed, got.Status)
}

func TestAcknowledgeUnknownRequestFails(t *testing.T) {
	m := New(testConfig(), nil)
	err := m.Acknowledge("does-not-exist")
	assert.ErrorIs(t, err, coreapi.ErrEscalationNotFound)
}
