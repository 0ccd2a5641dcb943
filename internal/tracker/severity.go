// Package tracker implements the Error Tracker: the append-only
// attempt/error ledger, the derived per-step stats view, and the pure
// EscalationLevel function of error count against thresholds.
package tracker

import (
	"strings"

	"github.com/opsmind/sshagent/internal/model"
)

// classifySeverity applies a substring taxonomy, matching
// case-insensitively against the error message.
func classifySeverity(errMsg string) model.ErrorSeverity {
	m := strings.ToLower(errMsg)
	switch {
	case containsAny(m, "permission denied", "disk full", "no space left", "out of memory"):
		return model.SeverityCritical
	case containsAny(m, "connection refused", "timeout", "service not found", "package not found", "command not found"):
		return model.SeverityHigh
	case containsAny(m, "syntax error", "invalid option", "file not found", "directory not found"):
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

// patternKey returns the first matching error-pattern class for the
// tracker's pattern histogram.
func patternKey(errMsg string) string {
	m := strings.ToLower(errMsg)
	switch {
	case containsAny(m, "permission denied"):
		return "permission_denied"
	case containsAny(m, "command not found"):
		return "command_not_found"
	case containsAny(m, "connection refused", "connection reset", "connection error"):
		return "connection_error"
	case containsAny(m, "syntax error"):
		return "syntax_error"
	case containsAny(m, "file not found", "directory not found", "no such file"):
		return "file_not_found"
	case containsAny(m, "package not found", "unable to locate"):
		return "package_error"
	case containsAny(m, "service not found", "unit not found"):
		return "service_error"
	default:
		return "unknown"
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
