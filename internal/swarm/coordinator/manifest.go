package coordinator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"swarmcoord/internal/swarm/decompose"
	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/statewriter"
	"swarmcoord/internal/swarm/task"
)

// Manifest is the run's immutable half: who's in the roster, what strategy
// seeded the DAG, and the DAG's initial shape. It is written once at
// bootstrap and re-read verbatim on resume; the task rows inside it are
// stale by design the moment any task progresses, which is why resume prefers
// state.json and the tasks/ directory for status/attempts/assignment and
// falls back to a manifest row's own values only when neither has that task.
// The structural fields (id, dependencies, kind, role hint) that
// decomposition fixed for good come from the manifest; it also exists so a
// resumed run doesn't need its
// goal/roster/strategy repeated on the command line.
type Manifest struct {
	RunID                 string         `json:"run_id"`
	Goal                  string         `json:"goal"`
	CreatedAt             time.Time      `json:"created_at"`
	Roles                 []role.Spec    `json:"roles"`
	OrchestrationStrategy decompose.Mode `json:"orchestration_strategy"`
	Tasks                 []task.Task    `json:"tasks"`
}

// bootstrapOrLoad creates the run layout, then either resumes from an
// existing manifest (restoring live status from state.json and any
// per-task records, then reconciling any task still `running` at the
// last restart down to `ready`) or decomposes a fresh task set from the
// goal and persists a new manifest.
func (c *Coordinator) bootstrapOrLoad() error {
	if err := c.layout.Ensure(); err != nil {
		return fmt.Errorf("coordinator: ensure layout: %w", err)
	}

	if c.opts.Resume && c.layout.Exists() {
		return c.resumeFromManifest()
	}
	return c.bootstrapFresh()
}

func (c *Coordinator) resumeFromManifest() error {
	var m Manifest
	if err := ipc.ReadJSON(c.layout.Manifest, &m); err != nil {
		return fmt.Errorf("coordinator: read manifest: %w", err)
	}
	c.runID = m.RunID
	c.goal = m.Goal
	c.roles = m.Roles
	c.journal = ipc.NewJournal(c.layout.Events, c.runID)

	var snap statewriter.Snapshot
	haveSnapshot := ipc.ReadJSON(c.layout.State, &snap) == nil

	for _, t := range m.Tasks {
		if haveSnapshot {
			if row, ok := snap.Tasks[t.ID]; ok {
				t.Status = task.Status(row.Status)
				t.Attempts = row.Attempts
				t.AssignedAgentID = row.AssignedAgentID
				t.FailureMode = row.ResultSummary
			}
		}
		// A per-task record, if present, is the single-task terminal record
		// and wins over state.json (which may lag behind it by a debounce
		// window at the moment of a crash).
		var rec task.Task
		if err := ipc.ReadJSON(c.layout.TaskPath(t.ID), &rec); err == nil && rec.ID != "" {
			t = rec
		}
		c.graph.Add(t)
	}

	if haveSnapshot {
		c.stateSeq = snap.Seq
		if tokensUsed, costUSD, ok := budgetFromBudgetDict(snap.Status.Budget); ok {
			c.budgetCounter.Restore(tokensUsed, costUSD)
		}
	}

	for _, t := range c.graph.All() {
		if t.Status != task.StatusRunning {
			continue
		}
		c.graph.SetAssignedAgent(t.ID, "")
		c.graph.Transition(t.ID, task.StatusReady, "coordinator", "resume_reconciliation")
	}

	for _, t := range c.graph.All() {
		if task.Reviewable(t.Kind) && t.Status == task.StatusReviewing {
			c.mergeQueue.Enqueue(t.ID, nil)
			if item := c.mergeQueue.Find(t.ID); item != nil {
				c.applyReviewActions(c.advanceReviewItem(item))
			}
		}
	}

	c.journal.AppendEvent(ipc.EventSwarmStart, map[string]any{"run_id": c.runID, "resumed": true})
	return nil
}

// budgetFromBudgetDict recovers the two accumulator fields budget.Counter.AsDict
// wrote into the snapshot. Values round-trip through JSON as float64 even
// though AsDict sets them as int64/float64 natively, so both are read back
// via type switch rather than a direct assertion.
func budgetFromBudgetDict(dict map[string]any) (tokensUsed int64, costUSD float64, ok bool) {
	raw, present := dict["tokens_used"]
	if !present {
		return 0, 0, false
	}
	tokensUsed, ok = asInt64(raw)
	if !ok {
		return 0, 0, false
	}
	costUSD, _ = asFloat64(dict["cost_usd"])
	return tokensUsed, costUSD, true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (c *Coordinator) bootstrapFresh() error {
	c.runID = uuid.NewString()
	c.goal = c.opts.Goal
	c.roles = c.cfg.Roles
	c.journal = ipc.NewJournal(c.layout.Events, c.runID)

	tasks, events := decompose.Decompose(c.goal, c.roles, c.cfg.OrchestrationStrategy, c.cfg.MaxTasks)
	for _, t := range tasks {
		c.graph.Add(t)
		c.journal.AppendEvent(ipc.EventTaskCreated, map[string]any{
			"task_id": t.ID, "kind": t.Kind, "title": t.Title, "status": t.Status,
		})
	}
	for _, ev := range events {
		c.journal.AppendEvent(ev.Type, ev.Payload)
		c.noteDecision(ev.Type)
	}

	m := Manifest{
		RunID:                 c.runID,
		Goal:                  c.goal,
		CreatedAt:             time.Now().UTC(),
		Roles:                 c.roles,
		OrchestrationStrategy: c.cfg.OrchestrationStrategy,
		Tasks:                 c.graph.All(),
	}
	if err := ipc.WriteJSONAtomic(c.layout.Manifest, m); err != nil {
		return fmt.Errorf("coordinator: write manifest: %w", err)
	}

	c.journal.AppendEvent(ipc.EventSwarmStart, map[string]any{"run_id": c.runID, "resumed": false, "goal": c.goal})
	return nil
}
