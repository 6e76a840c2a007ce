// Package statewriter owns the single state.json snapshot: a rate-limited,
// always-atomic (temp+rename) writer with debounced scheduling.
package statewriter

import (
	"sync"
	"time"

	"swarmcoord/internal/swarm/ipc"
)

// Edge is one DAG dependency edge in the snapshot.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// TaskRow is the projected view of a task in the snapshot — a subset of
// task.Task plus result/file-change summaries the coordinator accumulates
// separately from the task graph itself.
type TaskRow struct {
	TaskID          string   `json:"task_id"`
	Status          string   `json:"status"`
	Attempts        int      `json:"attempts"`
	AssignedAgentID string   `json:"assigned_agent_id,omitempty"`
	FilesModified   []string `json:"files_modified,omitempty"`
	ResultSummary   string   `json:"result_summary,omitempty"`
}

// AgentRow is the projected view of a live agent.
type AgentRow struct {
	AgentID       string    `json:"agent_id"`
	RoleID        string    `json:"role_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Restarts      int       `json:"restarts"`
	Running       bool      `json:"running"`
}

// StatusBlock is the snapshot's top-level phase/progress/budget summary.
type StatusBlock struct {
	Phase      string         `json:"phase"`
	Wave       int            `json:"wave"`
	QueueStats map[string]int `json:"queue_stats"`
	Budget     map[string]any `json:"budget"`
}

// Snapshot is the full state.json document. It is an immutable value once
// constructed by the coordinator each tick — the Writer never mutates it,
// which is what makes handing it to a deferred-write timer goroutine safe
// without extra locking on the coordinator's own state.
type Snapshot struct {
	Seq               int64              `json:"seq"`
	Timestamp         time.Time          `json:"timestamp"`
	Status            StatusBlock        `json:"status"`
	Tasks             map[string]TaskRow `json:"tasks"`
	Edges             []Edge             `json:"edges"`
	Agents            []AgentRow         `json:"agents"`
	Timeline          []ipc.JournalEntry `json:"timeline"`
	Errors            []string           `json:"errors"`
	Decisions         []string           `json:"decisions"`
	ModelHealth       map[string]any     `json:"model_health,omitempty"`
	Plan              any                `json:"plan,omitempty"`
	Verification      any                `json:"verification,omitempty"`
	ArtifactInventory []string           `json:"artifact_inventory,omitempty"`
	WorkerLogFiles    map[string]string  `json:"worker_log_files,omitempty"`
	QualityStats      any                `json:"quality_stats,omitempty"`
	WaveReviews       any                `json:"wave_reviews,omitempty"`
	QualityResults    any                `json:"quality_results,omitempty"`
}

const (
	TimelineTailLen  = 200
	ErrorsTailLen    = 100
	DecisionsTailLen = 100
)

// TailStrings returns the last n elements of s, preserving order.
func TailStrings(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// TailJournal returns the last n entries of entries, preserving order.
func TailJournal(entries []ipc.JournalEntry, n int) []ipc.JournalEntry {
	if len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// Writer debounces writes to path: at most one write per minInterval:
// a call outside the cooldown writes immediately; a call during the
// cooldown arms a single deferred write for when the cooldown ends (a
// second call during the same cooldown window is a no-op beyond updating
// the snapshot that will eventually be written); Shutdown cancels any
// pending deferred write and writes synchronously.
type Writer struct {
	mu          sync.Mutex
	path        string
	minInterval time.Duration
	lastWriteAt time.Time
	timerArmed  bool
	timer       *time.Timer
	latest      Snapshot
}

// NewWriter constructs a Writer targeting path, with no write considered
// "in flight" yet.
func NewWriter(path string, minInterval time.Duration) *Writer {
	return &Writer{path: path, minInterval: minInterval}
}

// ScheduleWrite is the coordinator tick's single entry point: pass the
// snapshot built from this tick's state. Returns an error only when an
// immediate (non-deferred) write fails; deferred-write failures are
// swallowed (there is no caller left to report to by the time the timer
// fires).
func (w *Writer) ScheduleWrite(snap Snapshot) error {
	w.mu.Lock()
	w.latest = snap

	now := time.Now()
	elapsed := now.Sub(w.lastWriteAt)
	if !w.timerArmed && elapsed >= w.minInterval {
		w.lastWriteAt = now
		w.mu.Unlock()
		return ipc.WriteJSONAtomic(w.path, snap)
	}
	if w.timerArmed {
		w.mu.Unlock()
		return nil
	}

	w.timerArmed = true
	delay := w.minInterval - elapsed
	if delay < 0 {
		delay = 0
	}
	w.timer = time.AfterFunc(delay, func() {
		w.mu.Lock()
		w.timerArmed = false
		w.lastWriteAt = time.Now()
		toWrite := w.latest
		w.mu.Unlock()
		_ = ipc.WriteJSONAtomic(w.path, toWrite)
	})
	w.mu.Unlock()
	return nil
}

// Shutdown cancels any pending deferred write and performs a final
// synchronous write of the most recently scheduled snapshot, regardless
// of the rate limiter.
func (w *Writer) Shutdown() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerArmed = false
	snap := w.latest
	w.mu.Unlock()
	return ipc.WriteJSONAtomic(w.path, snap)
}
