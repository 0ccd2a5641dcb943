package coordinator

import (
	"sync"
	"time"
)

// TimelineMarker is one phase transition recorded for a Task, with the
// elapsed time since the Task started.
type TimelineMarker struct {
	Phase     string
	Message   string
	At        time.Time
	Elapsed   time.Duration
}

// Timeline is an append-only list of TimelineMarkers for one Task. It is
// additive telemetry layered over the event bus, not a new control-flow
// component.
type Timeline struct {
	mu      sync.Mutex
	started time.Time
	marks   []TimelineMarker
}

func newTimeline() *Timeline {
	return &Timeline{started: time.Now()}
}

func (tl *Timeline) mark(phase, message string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	now := time.Now()
	tl.marks = append(tl.marks, TimelineMarker{Phase: phase, Message: message, At: now, Elapsed: now.Sub(tl.started)})
}

// Marks returns a copy of the recorded markers in recording order.
func (tl *Timeline) Marks() []TimelineMarker {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return append([]TimelineMarker{}, tl.marks...)
}
