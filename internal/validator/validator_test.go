package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAllowsPlainCommand(t *testing.T) {
	v := New(nil)
	res := v.Validate("ls -la", nil)
	assert.True(t, res.Valid)
	assert.Equal(t, SecurityLow, res.SecurityLevel)
}

func TestValidateRejectsForbidden(t *testing.T) {
	v := New(nil)
	res := v.Validate("rm -rf /", &ValidationContext{StepID: "s1", TaskID: "t1"})
	assert.False(t, res.Valid, "expected rm -rf / to be rejected")
	assert.NotEmpty(t, res.Errors, "expected errors populated on rejection")
}

func TestValidateWarnsOnDangerousPattern(t *testing.T) {
	v := New(nil)
	res := v.Validate("shutdown -h +5", nil)
	assert.True(t, res.Valid, "dangerous-but-not-forbidden command should remain valid")
	assert.NotEmpty(t, res.Warnings)
	assert.True(t, res.RequiresConfirmation, "expected a destructive warning requiring confirmation")
}

func TestValidateWhitelistMode(t *testing.T) {
	v := New(nil, "ls", "pwd", "whoami", "cat", "echo")
	assert.True(t, v.Validate("ls -la", nil).Valid, "expected ls to be allowed in whitelist mode")
	assert.False(t, v.Validate("rm file.txt", nil).Valid, "expected rm to be rejected in whitelist mode")
}

func TestAddRemoveForbidden(t *testing.T) {
	v := New(nil)
	assert.True(t, v.Validate("dangerous_custom_command", nil).Valid, "command should not yet be forbidden")

	v.AddForbidden("dangerous_custom_command")
	assert.False(t, v.Validate("dangerous_custom_command", nil).Valid, "expected command to be rejected after AddForbidden")

	v.RemoveForbidden("dangerous_custom_command")
	assert.True(t, v.Validate("dangerous_custom_command", nil).Valid, "expected command to be allowed again after RemoveForbidden")
}

func TestAddDangerousPattern(t *testing.T) {
	v := New(nil)
	require.NoError(t, v.AddDangerousPattern(`custom_dangerous_.*`, "custom rule"))

	res := v.Validate("custom_dangerous_operation", nil)
	assert.True(t, res.Valid)
	assert.NotEmpty(t, res.Warnings, "expected custom dangerous pattern to surface a warning")
}

func TestAddDangerousPatternRejectsInvalidRegex(t *testing.T) {
	v := New(nil)
	assert.Error(t, v.AddDangerousPattern(`(unclosed`, "broken"), "expected compile error for invalid regex")
}
