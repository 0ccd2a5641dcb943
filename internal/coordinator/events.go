package coordinator

import "sync"

// EventKind names one of the event kinds the Coordinator publishes:
// STATE_RESTORED, TASK_*, STEP_*, ESCALATION_*.
type EventKind string

const (
	EventStateRestored      EventKind = "STATE_RESTORED"
	EventTaskStarted        EventKind = "TASK_STARTED"
	EventTaskPlanning       EventKind = "TASK_PLANNING"
	EventTaskExecuting      EventKind = "TASK_EXECUTING"
	EventTaskCompleted      EventKind = "TASK_COMPLETED"
	EventTaskFailed         EventKind = "TASK_FAILED"
	EventTaskCancelled      EventKind = "TASK_CANCELLED"
	EventStepStarted        EventKind = "STEP_STARTED"
	EventStepCompleted      EventKind = "STEP_COMPLETED"
	EventStepFailed         EventKind = "STEP_FAILED"
	EventEscalationRaised   EventKind = "ESCALATION_RAISED"
	EventEscalationResolved EventKind = "ESCALATION_RESOLVED"
)

// Event is the envelope published at every Coordinator state transition:
// task id, phase, an optional step id, a progress percentage, and a
// human-readable message.
type Event struct {
	Kind               EventKind
	TaskID             string
	Phase              string
	StepID             string
	ProgressPercentage float64
	Message            string
}

// Handler receives published Events. Handlers run synchronously on the
// publishing goroutine and must not block the driving loop for long.
type Handler func(Event)

// Bus is a minimal typed publish/subscribe bus: subscriber lists are
// append-only per kind, read under a lock so Publish never races with a
// concurrent Subscribe, since notification/report/timeline collaborators
// typically attach after the Coordinator is already running.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventKind][]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: map[EventKind][]Handler{}}
}

// Subscribe registers handler for kind. Returns an unsubscribe func.
func (b *Bus) Subscribe(kind EventKind, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], handler)
	idx := len(b.subscribers[kind]) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		handlers := b.subscribers[kind]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

// Publish invokes every handler subscribed to event.Kind, in subscription
// order, skipping any that unsubscribed.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Kind]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		if h != nil {
			h(event)
		}
	}
}
