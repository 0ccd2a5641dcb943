// Package telemetry provides the structured logger and OpenTelemetry
// wiring used by every component: JSON logs in production, text locally,
// rate-limited error output, and span helpers for the pipeline's
// suspension points.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// StructuredLogger is the default coreapi.ComponentAwareLogger
// implementation. It auto-detects a Kubernetes environment to switch
// between JSON and text output and rate-limits error logs so a failing
// step cannot flood stdout.
type StructuredLogger struct {
	serviceName string
	component   string
	level       string
	debug       bool
	format      string
	output      io.Writer
	mu          sync.RWMutex

	errorLimiter *rateLimiter
}

// NewStructuredLogger builds a logger for serviceName. Configuration
// priority: explicit env vars (SSHAGENT_LOG_LEVEL, SSHAGENT_LOG_FORMAT),
// then Kubernetes auto-detection, then defaults.
func NewStructuredLogger(serviceName string) *StructuredLogger {
	level := os.Getenv("SSHAGENT_LOG_LEVEL")
	if level == "" {
		level = "INFO"
	}
	debug := strings.ToUpper(level) == "DEBUG" || os.Getenv("SSHAGENT_DEBUG") == "true"

	format := "text"
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		format = "json"
	}
	if envFormat := os.Getenv("SSHAGENT_LOG_FORMAT"); envFormat != "" {
		format = envFormat
	}

	return &StructuredLogger{
		serviceName:  serviceName,
		component:    serviceName,
		level:        strings.ToUpper(level),
		debug:        debug,
		format:       format,
		output:       os.Stdout,
		errorLimiter: newRateLimiter(time.Second),
	}
}

// WithComponent returns a logger scoped to component, sharing the parent's
// rate limiter and output so an operator can filter by component while the
// flood protection stays process-wide.
func (l *StructuredLogger) WithComponent(component string) coreapi.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &StructuredLogger{
		serviceName:  l.serviceName,
		component:    component,
		level:        l.level,
		debug:        l.debug,
		format:       l.format,
		output:       l.output,
		errorLimiter: l.errorLimiter,
	}
}

func (l *StructuredLogger) Info(msg string, fields map[string]interface{}) {
	l.log(context.Background(), "INFO", msg, fields)
}

func (l *StructuredLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(context.Background(), "WARN", msg, fields)
}

func (l *StructuredLogger) Error(msg string, fields map[string]interface{}) {
	if !l.errorLimiter.allow() {
		return
	}
	l.log(context.Background(), "ERROR", msg, fields)
}

func (l *StructuredLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log(context.Background(), "DEBUG", msg, fields)
}

func (l *StructuredLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, "INFO", msg, fields)
}

func (l *StructuredLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, "WARN", msg, fields)
}

func (l *StructuredLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.errorLimiter.allow() {
		return
	}
	l.log(ctx, "ERROR", msg, fields)
}

func (l *StructuredLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if !l.debug {
		return
	}
	l.log(ctx, "DEBUG", msg, fields)
}

func (l *StructuredLogger) log(ctx context.Context, level, msg string, fields map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	timestamp := time.Now().Format(time.RFC3339)
	traceID := spanTraceID(ctx)

	if l.format == "json" {
		entry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"agent":     l.serviceName,
			"component": l.component,
			"message":   msg,
		}
		if traceID != "" {
			entry["trace_id"] = traceID
		}
		for k, v := range fields {
			entry[k] = v
		}
		if data, err := json.Marshal(entry); err == nil {
			fmt.Fprintln(l.output, string(data))
		}
		return
	}

	var b strings.Builder
	if len(fields) > 0 {
		b.WriteString(" ")
		for k, v := range fields {
			fmt.Fprintf(&b, "%s=%v ", k, v)
		}
	}
	traceInfo := ""
	if traceID != "" {
		traceInfo = fmt.Sprintf("[trace=%s] ", traceID)
	}
	fmt.Fprintf(l.output, "%s [%s] [%s] %s%s%s\n",
		timestamp, level, l.component, traceInfo, msg, b.String())
}

// rateLimiter admits at most one event per interval; extras are dropped.
type rateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func newRateLimiter(interval time.Duration) *rateLimiter {
	return &rateLimiter{interval: interval}
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.last) < r.interval {
		return false
	}
	r.last = now
	return true
}
