// Package transport provides coreapi.RemoteShell implementations. The core
// itself never opens a network socket; a real SSH-backed RemoteShell is
// expected to be supplied by the embedding application. This package ships
// LocalShell, an os/exec-backed implementation used for local development
// and as the default when no remote transport is configured.
package transport

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// LocalShell runs commands on the local host via /bin/sh. It satisfies
// coreapi.RemoteShell so the rest of the core is transport-agnostic.
type LocalShell struct {
	connected bool
}

// NewLocalShell creates a disconnected LocalShell.
func NewLocalShell() *LocalShell { return &LocalShell{} }

func (l *LocalShell) Connect(ctx context.Context) error {
	l.connected = true
	return nil
}

func (l *LocalShell) Disconnect() error {
	l.connected = false
	return nil
}

// Execute runs command through /bin/sh -c, honoring timeout and ctx
// cancellation. A context cancellation mid-execution is reported via
// ExecResult.Cancelled rather than only as an error, per coreapi.RemoteShell's
// contract.
func (l *LocalShell) Execute(ctx context.Context, command string, timeout time.Duration) (coreapi.ExecResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	res := coreapi.ExecResult{Stdout: stdout.String(), Stderr: stderr.String(), Duration: elapsed}
	if runCtx.Err() != nil {
		res.Cancelled = true
		res.ExitCode = -1
		return res, nil
	}
	if err == nil {
		res.ExitCode = 0
		return res, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}
