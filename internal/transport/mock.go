package transport

import (
	"context"
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// MockShell is a scripted coreapi.RemoteShell for tests: each call to
// Execute pops the next queued response, or falls back to a default one.
type MockShell struct {
	mu        sync.Mutex
	responses map[string][]coreapi.ExecResult
	Default   coreapi.ExecResult
	Calls     []string
	ConnectErr error
}

// NewMockShell creates an empty MockShell that returns a zero-value
// successful ExecResult by default.
func NewMockShell() *MockShell {
	return &MockShell{responses: map[string][]coreapi.ExecResult{}}
}

// QueueResponse schedules result to be returned the next time command is
// executed; responses for the same command are returned FIFO.
func (m *MockShell) QueueResponse(command string, result coreapi.ExecResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[command] = append(m.responses[command], result)
}

func (m *MockShell) Connect(ctx context.Context) error { return m.ConnectErr }
func (m *MockShell) Disconnect() error                 { return nil }

func (m *MockShell) Execute(ctx context.Context, command string, timeout time.Duration) (coreapi.ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, command)

	queue := m.responses[command]
	if len(queue) == 0 {
		return m.Default, nil
	}
	next := queue[0]
	m.responses[command] = queue[1:]
	return next, nil
}
