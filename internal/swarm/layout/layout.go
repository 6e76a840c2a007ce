// Package layout owns the on-disk directory tree for a single coordinator
// run: manifest, state snapshot, events journal, per-agent inbox/outbox,
// per-task records, worktrees, logs, and locks.
package layout

import (
	"os"
	"path/filepath"
)

// Layout resolves every path the coordinator reads or writes for one run.
// All paths are joined under Root; they are absolute only when Root is.
type Layout struct {
	Root          string
	Manifest      string
	State         string
	Events        string
	Agents        string
	Tasks         string
	Worktrees     string
	Logs          string
	Locks         string
	IndexSnapshot string
}

// New resolves the fixed on-disk tree rooted at root.
func New(root string) Layout {
	return Layout{
		Root:          root,
		Manifest:      filepath.Join(root, "manifest.json"),
		State:         filepath.Join(root, "state.json"),
		Events:        filepath.Join(root, "events.jsonl"),
		Agents:        filepath.Join(root, "agents"),
		Tasks:         filepath.Join(root, "tasks"),
		Worktrees:     filepath.Join(root, "worktrees"),
		Logs:          filepath.Join(root, "logs"),
		Locks:         filepath.Join(root, "locks"),
		IndexSnapshot: filepath.Join(root, "index.snapshot.json"),
	}
}

// Ensure creates every directory in the tree idempotently. It never creates
// the top-level files (manifest.json, state.json, events.jsonl) — those are
// written by the components that own them.
func (l Layout) Ensure() error {
	dirs := []string{l.Root, l.Agents, l.Tasks, l.Worktrees, l.Logs, l.Locks}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// AgentInboxPath and AgentOutboxPath name the per-agent IPC documents.
func (l Layout) AgentInboxPath(agentID string) string {
	return filepath.Join(l.Agents, agentID+".inbox.json")
}

func (l Layout) AgentOutboxPath(agentID string) string {
	return filepath.Join(l.Agents, agentID+".outbox.json")
}

func (l Layout) InboxLockPath(agentID string) string {
	return filepath.Join(l.Locks, "agent-"+agentID+".inbox.lock")
}

func (l Layout) OutboxLockPath(agentID string) string {
	return filepath.Join(l.Locks, "agent-"+agentID+".outbox.lock")
}

// TaskPath names the per-task record file.
func (l Layout) TaskPath(taskID string) string {
	return filepath.Join(l.Tasks, "task-"+taskID+".json")
}

// AgentLogPath names the per-agent stdout+stderr capture file.
func (l Layout) AgentLogPath(agentID string) string {
	return filepath.Join(l.Logs, "agent-"+agentID+".log")
}

// AgentWorktreePath names the per-agent isolated working directory.
func (l Layout) AgentWorktreePath(agentID string) string {
	return filepath.Join(l.Worktrees, agentID)
}

// Exists reports whether this run directory already has a manifest, i.e.
// whether resume should reload existing state rather than bootstrap fresh.
func (l Layout) Exists() bool {
	_, err := os.Stat(l.Manifest)
	return err == nil
}
