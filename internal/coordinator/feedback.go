package coordinator

import "context"

// FeedbackSink lets an interactive front end (out of scope for this
// module) prompt a user at plan-revision and human-escalation boundaries.
// The core only defines and calls the interface.
type FeedbackSink interface {
	NotifyPlanRevision(ctx context.Context, taskID, stepID, reason string)
	NotifyHumanEscalation(ctx context.Context, taskID, stepID string, payload interface{})
}

// noopFeedbackSink discards every notification; the default when no
// front end is attached.
type noopFeedbackSink struct{}

func (noopFeedbackSink) NotifyPlanRevision(context.Context, string, string, string)       {}
func (noopFeedbackSink) NotifyHumanEscalation(context.Context, string, string, interface{}) {}
