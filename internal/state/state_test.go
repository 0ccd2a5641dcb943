package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	dir := t.TempDir()
	m := New(filepath.Join(dir, "state.yaml"), Config{HistoryLimit: 3, SnapshotInterval: time.Hour}, nil)
	require.NoError(t, m.Load())
	return m
}

func TestLoadMissingFileStartsFresh(t *testing.T) {
	m := testManager(t)
	_, ok := m.Get(ChannelTask)
	assert.False(t, ok, "expected no task state on a fresh document")
}

func TestSetRecordsBoundedHistory(t *testing.T) {
	m := testManager(t)
	for i := 0; i < 5; i++ {
		m.Set(ChannelTask, i, "progressing")
	}
	hist := m.History()
	require.Len(t, hist, 3, "expected history bounded to 3")
	assert.Equal(t, 4, hist[len(hist)-1].New, "expected last history entry to carry the most recent value")
	assert.Equal(t, 5, m.StatsSnapshot().TotalChanges, "expected total_changes to count every Set call regardless of ring bounding")
}

func TestSnapshotPersistsAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.yaml")
	m := New(path, Config{}, nil)
	require.NoError(t, m.Load())
	m.Set(ChannelAgent, "running", "startup")

	_, err := m.Snapshot("manual")
	require.NoError(t, err)

	reloaded := New(path, Config{}, nil)
	require.NoError(t, reloaded.Load())
	v, ok := reloaded.Get(ChannelAgent)
	require.True(t, ok)
	assert.Equal(t, "running", v, "expected reloaded document to carry the persisted agent state")
	assert.Equal(t, 1, reloaded.StatsSnapshot().TotalSnapshots)
}

func TestRestoreFromSnapshotReappliesPastStateAndFiresHandler(t *testing.T) {
	m := testManager(t)
	m.Set(ChannelTask, "step-1", "planning")
	id, err := m.Snapshot("checkpoint")
	require.NoError(t, err)
	m.Set(ChannelTask, "step-2", "drifted")

	var gotID, gotReason string
	m.SetRestoreHandler(func(snapshotID, reason string) { gotID = snapshotID; gotReason = reason })

	require.NoError(t, m.RestoreFromSnapshot(id, "operator requested rollback"))
	v, _ := m.Get(ChannelTask)
	assert.Equal(t, "step-1", v, "expected restore to revert task state to the snapshot's value")
	assert.Equal(t, id, gotID)
	assert.Equal(t, "operator requested rollback", gotReason)
	assert.Equal(t, 1, m.StatsSnapshot().TotalRestores)
}

func TestRestoreFromUnknownSnapshotFails(t *testing.T) {
	m := testManager(t)
	err := m.RestoreFromSnapshot("does-not-exist", "test")
	assert.Error(t, err, "expected an error restoring an unknown snapshot id")
}

func TestStartAutoSaveStopsCleanly(t *testing.T) {
	m := testManager(t)
	m.config.SnapshotInterval = 10 * time.Millisecond
	stop := make(chan struct{})
	m.StartAutoSave(stop)
	time.Sleep(30 * time.Millisecond)
	close(stop)
	m.autoSaveWG.Wait()
	assert.Greater(t, m.StatsSnapshot().TotalSnapshots, 0, "expected at least one periodic auto-save snapshot to have run")
}
