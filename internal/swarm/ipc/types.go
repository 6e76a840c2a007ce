// Package ipc implements the file-based IPC bus between the coordinator and
// agent subprocesses: per-agent inbox/outbox documents, the shared events
// journal, and the file locks that serialize access to each.
package ipc

import "time"

// InboxMessage is one task assignment (or control message) delivered to an
// agent.
type InboxMessage struct {
	Seq         int64     `json:"seq"`
	MessageID   string    `json:"message_id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        string    `json:"kind"`
	TaskID      string    `json:"task_id,omitempty"`
	Payload     any       `json:"payload,omitempty"`
	RequiresAck bool      `json:"requires_ack"`
}

// Inbox is the per-agent inbox document: an append-only message list plus
// NextSeq, the sequence number WriteInbox assigns to the next appended
// message.
type Inbox struct {
	NextSeq  int64          `json:"next_seq"`
	Messages []InboxMessage `json:"messages"`
}

// OutboxEvent is one event an agent reports back to the coordinator.
type OutboxEvent struct {
	Seq        int64     `json:"seq"`
	EventID    string    `json:"event_id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	TaskID     string    `json:"task_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	TokenUsage int64     `json:"token_usage,omitempty"`
	CostUSD    float64   `json:"cost_usd,omitempty"`
}

// Outbox is the per-agent outbox document.
type Outbox struct {
	NextSeq int64         `json:"next_seq"`
	Events  []OutboxEvent `json:"events"`
}

// JournalEntry is one line of the append-only events journal.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	Payload   any       `json:"payload,omitempty"`
}

// Event type constants for every journal entry the coordinator appends.
const (
	EventSwarmStart            = "swarm.start"
	EventAgentSpawned          = "agent.spawned"
	EventAgentRestart          = "agent.restart"
	EventAgentTaskLaunch       = "agent.task.launch"
	EventAgentEvent            = "agent.event"
	EventAgentTaskExit         = "agent.task.exit"
	EventAgentTaskClassified   = "agent.task.classified"
	EventTaskCreated           = "task.created"
	EventTaskTransition        = "task.transition"
	EventTaskFilesChanged      = "task.files_changed"
	EventDecompositionParallel = "decomposition.parallel"
	EventDecompositionFallback = "decomposition.fallback"
	EventError                 = "error"
	EventDebugPrefix           = "debug."
)
