package autocorrect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrectPrependsSudoOnPermissionDenied(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "systemctl restart nginx", "permission denied")
	assert.Equal(t, TypePrependSudo, c.CorrectionType)
	assert.Equal(t, "sudo systemctl restart nginx", c.CorrectedCommand)
}

func TestCorrectDoesNotDoubleSudo(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "sudo systemctl restart nginx", "permission denied")
	assert.Equal(t, TypeNone, c.CorrectionType, "expected no candidate when sudo already present")
}

func TestCorrectCommandNotFoundProposesInstall(t *testing.T) {
	e := New(nil, "centos")
	c := e.Correct(context.Background(), "nginx -v", "bash: nginx: command not found")
	assert.Equal(t, TypeInstallMissing, c.CorrectionType)
}

func TestCorrectPackageNotFoundTriggersUpdate(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "apt install foo", "E: Package foo not found")
	assert.Equal(t, TypePackageUpdate, c.CorrectionType)
}

func TestCorrectUnitNotFoundTriggersDaemonReload(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "systemctl start foo.service", "Unit not found.")
	assert.Equal(t, TypeServiceReload, c.CorrectionType)
}

func TestCorrectDiskFullYieldsCleanupCandidateNotFix(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "cp big.iso /data", "no space left on device")
	assert.Equal(t, TypeDiskCleanup, c.CorrectionType)
}

func TestCorrectNetworkUnreachableExtractsInterface(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "ping -I eth0 -c 1 10.0.0.1", "Network is unreachable")
	assert.Equal(t, TypeNetworkInterface, c.CorrectionType)
}

func TestCorrectSyntaxErrorWithNoAIClientYieldsNone(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "ls -Z", "syntax error near unexpected token")
	assert.Equal(t, TypeNone, c.CorrectionType, "expected none without an AI client")
}

func TestCorrectUnmatchedFailureYieldsNone(t *testing.T) {
	e := New(nil, "ubuntu")
	c := e.Correct(context.Background(), "echo hi", "some unrelated failure")
	assert.Equal(t, TypeNone, c.CorrectionType)
}
