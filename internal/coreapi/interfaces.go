package coreapi

import (
	"context"
	"time"
)

// AIClient is the large-model interface the core treats as a stateless
// oracle (spec §6). The core never retains model state across calls.
type AIClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest mirrors the model interface's Complete(prompt, params).
type CompletionRequest struct {
	Prompt        string
	SystemMessage string
	Temperature   float32
	MaxTokens     int
	Timeout       time.Duration
}

// CompletionResponse carries the model's answer plus usage accounting.
type CompletionResponse struct {
	Content  string
	Model    string
	Usage    TokenUsage
	Duration time.Duration
}

// TokenUsage accounts for a single completion call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// RemoteShell is the transport the core drives commands over (spec §6).
// Implementations must be cancellation-safe: a context cancellation
// delivered mid-Execute must interrupt the in-flight call.
type RemoteShell interface {
	Connect(ctx context.Context) error
	Execute(ctx context.Context, command string, timeout time.Duration) (ExecResult, error)
	Disconnect() error
}

// ExecResult is the observed outcome of one remote command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	// Cancelled is true when the call was interrupted by context
	// cancellation rather than completing (spec §5, Cancellation).
	Cancelled bool
}
