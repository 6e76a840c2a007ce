package coordinator

import (
	"time"

	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/statewriter"
)

// buildSnapshot projects the coordinator's live state into the immutable
// value the state writer persists. Called once per tick, after every
// mutation for that tick has already been applied.
func (c *Coordinator) buildSnapshot() statewriter.Snapshot {
	tasks := make(map[string]statewriter.TaskRow)
	for _, t := range c.graph.All() {
		tasks[t.ID] = statewriter.TaskRow{
			TaskID:          t.ID,
			Status:          string(t.Status),
			Attempts:        t.Attempts,
			AssignedAgentID: t.AssignedAgentID,
			ResultSummary:   t.FailureMode,
		}
	}

	edges := make([]statewriter.Edge, 0, len(c.graph.Edges()))
	for _, e := range c.graph.Edges() {
		edges = append(edges, statewriter.Edge{Source: e.Source, Target: e.Target})
	}

	agents := make([]statewriter.AgentRow, 0, len(c.agents))
	for id, st := range c.agents {
		agents = append(agents, statewriter.AgentRow{
			AgentID:       id,
			RoleID:        st.roleSpec.RoleID,
			LastHeartbeat: st.proc.LastHeartbeat(),
			Restarts:      st.restarts,
			Running:       !st.exited,
		})
	}

	var timeline []ipc.JournalEntry
	if entries, err := ipc.ReadJournal(c.layout.Events); err == nil {
		if len(entries) > statewriter.TimelineTailLen {
			entries = entries[len(entries)-statewriter.TimelineTailLen:]
		}
		timeline = entries
	}

	errs := c.errors
	if len(errs) > statewriter.ErrorsTailLen {
		errs = errs[len(errs)-statewriter.ErrorsTailLen:]
	}
	decisions := c.decisions
	if len(decisions) > statewriter.DecisionsTailLen {
		decisions = decisions[len(decisions)-statewriter.DecisionsTailLen:]
	}

	counts := c.graph.StatusCounts()
	queueStats := make(map[string]int, len(counts))
	for status, n := range counts {
		queueStats[string(status)] = n
	}

	return statewriter.Snapshot{
		Seq:       c.stateSeq,
		Timestamp: time.Now().UTC(),
		Status: statewriter.StatusBlock{
			Phase:      c.phase,
			QueueStats: queueStats,
			Budget:     c.budgetCounter.AsDict(),
		},
		Tasks:     tasks,
		Edges:     edges,
		Agents:    agents,
		Timeline:  timeline,
		Errors:    errs,
		Decisions: decisions,
	}
}
