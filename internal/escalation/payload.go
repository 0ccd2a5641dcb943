package escalation

import "time"

// HumanEscalationPayload is the notification shape handed off on a
// human-escalation EscalationRequest. Delivery (Slack/email/webhook) stays
// out of scope; this is only the payload the core attaches to the request.
type HumanEscalationPayload struct {
	OperatorID       string
	Channel          string
	Severity         string
	Title            string
	Message          string
	SuggestedActions []string
	CreatedAt        time.Time
}

func defaultChannel() string { return "console" }

func severityForErrorCount(errorCount, t2, t3 int) string {
	switch {
	case errorCount >= t3:
		return "critical"
	case errorCount >= t2+1:
		return "high"
	default:
		return "medium"
	}
}

func suggestedActionsFor(stepTitle string) []string {
	return []string{
		"review the step's recent AttemptRecord ledger",
		"confirm the target host is reachable",
		"consider a manual command for: " + stepTitle,
	}
}
