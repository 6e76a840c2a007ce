package statewriter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSeq(t *testing.T, path string) int64 {
	t.Helper()
	var snap Snapshot
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap.Seq
}

func assertNoTempFile(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestScheduleWriteWritesImmediatelyOutsideCooldown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	w := NewWriter(path, time.Hour)

	require.NoError(t, w.ScheduleWrite(Snapshot{Seq: 1}))
	assert.Equal(t, int64(1), readSeq(t, path))
	assertNoTempFile(t, path)
}

func TestScheduleWriteDuringCooldownArmsDeferredWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	w := NewWriter(path, 50*time.Millisecond)

	require.NoError(t, w.ScheduleWrite(Snapshot{Seq: 1}))
	require.NoError(t, w.ScheduleWrite(Snapshot{Seq: 2})) // during cooldown, no-op beyond updating latest
	assert.Equal(t, int64(1), readSeq(t, path), "second call must not write immediately")

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(2), readSeq(t, path), "deferred timer must flush the latest snapshot")
}

func TestShutdownCancelsPendingTimerAndWritesSynchronously(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	w := NewWriter(path, time.Hour)

	require.NoError(t, w.ScheduleWrite(Snapshot{Seq: 1}))
	require.NoError(t, w.ScheduleWrite(Snapshot{Seq: 2})) // armed, would fire in ~1h
	require.NoError(t, w.Shutdown())
	assert.Equal(t, int64(2), readSeq(t, path))
}

func TestTailStringsTruncatesFromFront(t *testing.T) {
	s := []string{"a", "b", "c", "d"}
	assert.Equal(t, []string{"c", "d"}, TailStrings(s, 2))
	assert.Equal(t, s, TailStrings(s, 10))
}
