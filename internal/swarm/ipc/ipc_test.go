package ipc

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomicNeverLeavesTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]int{"a": 1}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var out map[string]int
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, 1, out["a"])
}

func TestReadJSONMissingFileLeavesDefault(t *testing.T) {
	var out struct{ X int }
	out.X = 7
	require.NoError(t, ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &out))
	assert.Equal(t, 7, out.X)
}

func TestWriteInboxAssignsMonotonicSeq(t *testing.T) {
	dir := t.TempDir()
	inboxPath := filepath.Join(dir, "agent-1.inbox.json")
	lockPath := filepath.Join(dir, "agent-1.inbox.lock")
	ctx := context.Background()

	m0, err := WriteInbox(ctx, inboxPath, lockPath, "task_assignment", "t0", map[string]string{"prompt": "do it"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m0.Seq)

	m1, err := WriteInbox(ctx, inboxPath, lockPath, "task_assignment", "t1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m1.Seq)

	msgs, err := ReadInboxSince(inboxPath, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestWriteInboxConcurrentWritersNoLostUpdates(t *testing.T) {
	dir := t.TempDir()
	inboxPath := filepath.Join(dir, "agent-1.inbox.json")
	lockPath := filepath.Join(dir, "agent-1.inbox.lock")
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := WriteInbox(ctx, inboxPath, lockPath, "task_assignment", "t", nil, false)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	msgs, err := ReadInboxSince(inboxPath, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, n)

	seen := make(map[int64]bool)
	for _, m := range msgs {
		assert.False(t, seen[m.Seq], "duplicate seq %d", m.Seq)
		seen[m.Seq] = true
	}
}

func TestAppendOutboxEventsAssignsSeqAndPersists(t *testing.T) {
	dir := t.TempDir()
	outboxPath := filepath.Join(dir, "agent-1.outbox.json")
	lockPath := filepath.Join(dir, "agent-1.outbox.lock")
	ctx := context.Background()

	events, err := AppendOutboxEvents(ctx, outboxPath, lockPath, []NewEvent{
		{Type: "task_done", TaskID: "t0", TokenUsage: 100, CostUSD: 0.01},
		{Type: "heartbeat", TaskID: "t0"},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(0), events[0].Seq)
	assert.Equal(t, int64(1), events[1].Seq)

	more, err := AppendOutboxEvents(ctx, outboxPath, lockPath, []NewEvent{{Type: "task_failed", TaskID: "t1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), more[0].Seq)

	all, err := ReadOutboxSince(outboxPath, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJournalAppendAndReadTolerant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	j := NewJournal(path, "run-1")

	require.NoError(t, j.AppendEvent(EventTaskCreated, map[string]string{"task_id": "t0"}))
	require.NoError(t, j.AppendEvent(EventTaskTransition, map[string]string{"task_id": "t0", "to": "ready"}))

	entries, err := ReadJournal(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventTaskCreated, entries[0].Type)
	assert.Equal(t, "run-1", entries[0].RunID)

	// Simulate a crash mid-write: append a truncated trailing line.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"error","payloa`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err = ReadJournal(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "truncated trailing line must be tolerated, not error")
}

func TestLockExcludesConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "x.lock")
	ctx := context.Background()

	release, err := NewLock(lockPath).Acquire(ctx, 0)
	require.NoError(t, err)

	_, err = os.Stat(lockPath)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = NewLock(lockPath).Acquire(waitCtx, 0)
	assert.Error(t, err, "a second acquire must block until its context ends")

	release()
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
}
