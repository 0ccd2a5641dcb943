package tracker

import (
	"sync"
	"time"

	"github.com/opsmind/sshagent/internal/model"
)

// Store is the Tracker's persistence seam: an append-only ledger of
// attempts and errors keyed by step id. MemoryStore is the default;
// RedisStore lets multiple Coordinator processes share one ledger.
type Store interface {
	AppendAttempt(rec model.AttemptRecord) error
	AppendError(rec model.ErrorRecord) error
	Attempts(stepID string) ([]model.AttemptRecord, error)
	Errors(stepID string) ([]model.ErrorRecord, error)
	AllAttempts() ([]model.AttemptRecord, error)
	AllErrors() ([]model.ErrorRecord, error)
	// DropBefore removes records older than cutoff for steps not present
	// in activeSteps: a record of an active step is never dropped.
	DropBefore(cutoff time.Time, activeSteps map[string]bool) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	attempts map[string][]model.AttemptRecord
	errors   map[string][]model.ErrorRecord
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: map[string][]model.AttemptRecord{},
		errors:   map[string][]model.ErrorRecord{},
	}
}

func (s *MemoryStore) AppendAttempt(rec model.AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[rec.StepID] = append(s.attempts[rec.StepID], rec)
	return nil
}

func (s *MemoryStore) AppendError(rec model.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[rec.StepID] = append(s.errors[rec.StepID], rec)
	return nil
}

func (s *MemoryStore) Attempts(stepID string) ([]model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AttemptRecord, len(s.attempts[stepID]))
	copy(out, s.attempts[stepID])
	return out, nil
}

func (s *MemoryStore) Errors(stepID string) ([]model.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ErrorRecord, len(s.errors[stepID]))
	copy(out, s.errors[stepID])
	return out, nil
}

func (s *MemoryStore) AllAttempts() ([]model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AttemptRecord
	for _, recs := range s.attempts {
		out = append(out, recs...)
	}
	return out, nil
}

func (s *MemoryStore) AllErrors() ([]model.ErrorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ErrorRecord
	for _, recs := range s.errors {
		out = append(out, recs...)
	}
	return out, nil
}

func (s *MemoryStore) DropBefore(cutoff time.Time, activeSteps map[string]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for stepID, recs := range s.attempts {
		if activeSteps[stepID] {
			continue
		}
		kept := recs[:0]
		for _, r := range recs {
			if r.Timestamp.After(cutoff) {
				kept = append(kept, r)
			}
		}
		s.attempts[stepID] = kept
	}
	for stepID, recs := range s.errors {
		if activeSteps[stepID] {
			continue
		}
		kept := recs[:0]
		for _, r := range recs {
			if r.Timestamp.After(cutoff) {
				kept = append(kept, r)
			}
		}
		s.errors[stepID] = kept
	}
	return nil
}
