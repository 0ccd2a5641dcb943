// Package state implements the State Manager: a periodic, versioned
// snapshot of the agent's typed channels to a durable YAML document, with
// a bounded change-history ring and atomic restore.
package state

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/opsmind/sshagent/internal/coreapi"
)

// Channel names one of the agent's typed state channels.
type Channel string

const (
	ChannelAgent      Channel = "agent"
	ChannelTask       Channel = "task"
	ChannelExecution  Channel = "execution"
	ChannelConnection Channel = "connection"
	ChannelError      Channel = "error"
	ChannelConfig     Channel = "config"
)

// CurrentSchemaVersion is the top-level schema version stamped on every
// persisted document.
const CurrentSchemaVersion = 1

// StateChange is one recorded mutation.
type StateChange struct {
	ChangeID  string      `yaml:"change_id"`
	Channel   Channel     `yaml:"channel"`
	Timestamp time.Time   `yaml:"timestamp"`
	Old       interface{} `yaml:"old"`
	New       interface{} `yaml:"new"`
	Reason    string      `yaml:"reason"`
}

// Snapshot is one named, timestamped copy of every channel's current
// value, kept so RestoreFromSnapshot has something to restore to.
type Snapshot struct {
	ID            string                 `yaml:"id"`
	SavedAt       time.Time              `yaml:"saved_at"`
	CurrentStates map[Channel]interface{} `yaml:"current_states"`
}

// Stats is the small counters block carried in the persisted document.
type Stats struct {
	TotalChanges   int `yaml:"total_changes"`
	TotalSnapshots int `yaml:"total_snapshots"`
	TotalRestores  int `yaml:"total_restores"`
}

// Document is the full persisted layout: one document per agent instance
// containing current_states, state_snapshots[], a bounded state_history[],
// stats, and saved_at. Persisted as YAML rather than JSON.
type Document struct {
	SchemaVersion int                      `yaml:"schema_version"`
	CurrentStates map[Channel]interface{}  `yaml:"current_states"`
	Snapshots     []Snapshot               `yaml:"state_snapshots"`
	History       []StateChange            `yaml:"state_history"`
	Stats         Stats                    `yaml:"stats"`
	SavedAt       time.Time                `yaml:"saved_at"`
}

func newDocument() Document {
	return Document{
		SchemaVersion: CurrentSchemaVersion,
		CurrentStates: map[Channel]interface{}{},
	}
}

// Config bounds the Manager's retention and cadence.
type Config struct {
	// HistoryLimit bounds the change-history ring (default 100).
	HistoryLimit int
	// SnapshotInterval is the cadence StartAutoSave saves at (default 30s).
	SnapshotInterval time.Duration
}

// DefaultConfig returns the package's documented defaults.
func DefaultConfig() Config {
	return Config{HistoryLimit: 100, SnapshotInterval: 30 * time.Second}
}

// RestoreHandler is invoked after RestoreFromSnapshot re-applies a past
// snapshot. The Coordinator is responsible for deciding whether its
// in-flight Task is still valid after a restore.
type RestoreHandler func(snapshotID, reason string)

// Manager owns one agent instance's persisted state document.
type Manager struct {
	path   string
	config Config
	logger coreapi.Logger

	mu  sync.RWMutex
	doc Document

	onRestore RestoreHandler

	stopAutoSave chan struct{}
	autoSaveWG   sync.WaitGroup
}

// New creates a Manager backed by the file at path. Call Load before use
// to pick up a prior document, if any.
func New(path string, config Config, logger coreapi.Logger) *Manager {
	if logger == nil {
		logger = coreapi.NoOpLogger{}
	}
	if config.HistoryLimit == 0 {
		config.HistoryLimit = DefaultConfig().HistoryLimit
	}
	if config.SnapshotInterval == 0 {
		config.SnapshotInterval = DefaultConfig().SnapshotInterval
	}
	return &Manager{path: path, config: config, logger: logger, doc: newDocument()}
}

// SetRestoreHandler registers the callback RestoreFromSnapshot invokes.
func (m *Manager) SetRestoreHandler(h RestoreHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRestore = h
}

// Load reads the latest valid document from disk, if one exists. A
// missing file is not an error: the Manager starts from a fresh document.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return coreapi.NewFrameworkError("state.Load", "state", err).WithID(m.path)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return coreapi.NewFrameworkError("state.Load", "state", err).WithID(m.path)
	}
	if doc.CurrentStates == nil {
		doc.CurrentStates = map[Channel]interface{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.doc = doc
	return nil
}

// Get returns channel's current value.
func (m *Manager) Get(channel Channel) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.doc.CurrentStates[channel]
	return v, ok
}

// Set records a mutation to channel and appends a StateChange to the
// bounded history ring.
func (m *Manager) Set(channel Channel, newValue interface{}, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.doc.CurrentStates[channel]
	m.doc.CurrentStates[channel] = newValue

	change := StateChange{
		ChangeID: uuid.NewString(), Channel: channel, Timestamp: time.Now(),
		Old: old, New: newValue, Reason: reason,
	}
	m.doc.History = append(m.doc.History, change)
	if len(m.doc.History) > m.config.HistoryLimit {
		m.doc.History = m.doc.History[len(m.doc.History)-m.config.HistoryLimit:]
	}
	m.doc.Stats.TotalChanges++
}

// Snapshot persists the current document to disk and appends a named
// Snapshot entry, returning its id.
func (m *Manager) Snapshot(reason string) (string, error) {
	m.mu.Lock()
	id := uuid.NewString()
	now := time.Now()
	states := make(map[Channel]interface{}, len(m.doc.CurrentStates))
	for k, v := range m.doc.CurrentStates {
		states[k] = v
	}
	m.doc.Snapshots = append(m.doc.Snapshots, Snapshot{ID: id, SavedAt: now, CurrentStates: states})
	m.doc.Stats.TotalSnapshots++
	m.doc.SavedAt = now
	m.doc.SchemaVersion = CurrentSchemaVersion
	doc := m.doc
	m.mu.Unlock()

	if err := m.persist(doc); err != nil {
		return "", err
	}
	m.logger.Debug("state snapshot saved", map[string]interface{}{"snapshot_id": id, "reason": reason})
	return id, nil
}

// persist writes doc to m.path via a temp-file-then-rename so a crash
// mid-write never corrupts the last good document.
func (m *Manager) persist(doc Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return coreapi.NewFrameworkError("state.persist", "state", err)
	}
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".state-*.yaml.tmp")
	if err != nil {
		return coreapi.NewFrameworkError("state.persist", "state", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return coreapi.NewFrameworkError("state.persist", "state", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return coreapi.NewFrameworkError("state.persist", "state", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return coreapi.NewFrameworkError("state.persist", "state", err)
	}
	return nil
}

// RestoreFromSnapshot re-applies a past snapshot's channel values
// atomically and emits a STATE_RESTORED notification via the registered
// RestoreHandler.
func (m *Manager) RestoreFromSnapshot(snapshotID, reason string) error {
	m.mu.Lock()
	var found *Snapshot
	for i := range m.doc.Snapshots {
		if m.doc.Snapshots[i].ID == snapshotID {
			found = &m.doc.Snapshots[i]
			break
		}
	}
	if found == nil {
		m.mu.Unlock()
		return coreapi.NewFrameworkError("state.RestoreFromSnapshot", "state", coreapi.ErrSnapshotNotFound).WithID(snapshotID)
	}

	restored := make(map[Channel]interface{}, len(found.CurrentStates))
	for k, v := range found.CurrentStates {
		restored[k] = v
	}
	m.doc.CurrentStates = restored
	m.doc.Stats.TotalRestores++
	handler := m.onRestore
	m.mu.Unlock()

	m.logger.Info("state restored from snapshot", map[string]interface{}{"snapshot_id": snapshotID, "reason": reason})
	if handler != nil {
		handler(snapshotID, reason)
	}
	return nil
}

// StartAutoSave runs Snapshot on config.SnapshotInterval, in its own
// goroutine, until stop is closed or StopAutoSave is called.
func (m *Manager) StartAutoSave(stop <-chan struct{}) {
	m.stopAutoSave = make(chan struct{})
	m.autoSaveWG.Add(1)
	go func() {
		defer m.autoSaveWG.Done()
		ticker := time.NewTicker(m.config.SnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := m.Snapshot("periodic auto-save"); err != nil {
					m.logger.Warn("periodic state snapshot failed", map[string]interface{}{"error": err.Error()})
				}
			case <-stop:
				return
			case <-m.stopAutoSave:
				return
			}
		}
	}()
}

// StopAutoSave stops the background loop started by StartAutoSave and
// waits for it to exit.
func (m *Manager) StopAutoSave() {
	if m.stopAutoSave == nil {
		return
	}
	close(m.stopAutoSave)
	m.autoSaveWG.Wait()
}

// History returns a copy of the bounded change-history ring.
func (m *Manager) History() []StateChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]StateChange{}, m.doc.History...)
}

// StatsSnapshot returns a copy of the document's counters.
func (m *Manager) StatsSnapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.doc.Stats
}
