package coordinator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"swarmcoord/internal/swarm/agentproc"
	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/task"
	"swarmcoord/internal/swarm/worktree"
)

const terminateGrace = 5 * time.Second

// agentState is the coordinator's live view of one spawned agent: its
// process handle, its working directory, and the bookkeeping the tick loop
// needs to decide whether it's free, what task it's running, and how far
// its output has been harvested.
type agentState struct {
	agentID  string
	roleSpec role.Spec
	proc     *agentproc.Process
	workDir  string

	nextReadSeq   int64
	nextOutboxSeq int64

	runningTaskID string
	taskStartedAt time.Time

	restarts int
	exited   bool
}

func (a *agentState) busy() bool { return a.runningTaskID != "" }

// spawnAgents resolves a working directory and launches one process per
// configured agent slot across every role in the roster.
func (c *Coordinator) spawnAgents() error {
	for _, r := range c.roles {
		for i := 0; i < r.Count; i++ {
			agentID := fmt.Sprintf("%s-%d", r.RoleID, i)
			if err := c.spawnOneAgent(r, agentID); err != nil {
				return fmt.Errorf("coordinator: spawn %s: %w", agentID, err)
			}
		}
	}
	return nil
}

func (c *Coordinator) resolveWorkspace(r role.Spec, agentID string) (string, error) {
	mode := r.WorkspaceMode
	writeAccess := r.WriteAccess
	if mode == "" {
		mode = role.DefaultWorkspaceMode(r.Type)
		writeAccess = role.DefaultWriteAccess(r.Type)
	}
	return c.workspaces.Ensure(agentID, worktree.Mode(mode), writeAccess)
}

func (c *Coordinator) spawnOneAgent(r role.Spec, agentID string) error {
	workDir, err := c.resolveWorkspace(r, agentID)
	if err != nil {
		return err
	}
	cmdParts, err := agentproc.RoleCommand(r, c.cfg.Debug)
	if err != nil {
		return err
	}

	proc, err := agentproc.Spawn(agentproc.Spec{
		AgentID: agentID,
		Binary:  cmdParts[0],
		Args:    cmdParts[1:],
		Cwd:     workDir,
		LogFile: c.layout.AgentLogPath(agentID),
	})
	if err != nil {
		return err
	}

	c.agents[agentID] = &agentState{agentID: agentID, roleSpec: r, proc: proc, workDir: workDir}
	_ = ipc.WriteJSONAtomic(c.layout.AgentInboxPath(agentID), ipc.Inbox{})
	_ = ipc.WriteJSONAtomic(c.layout.AgentOutboxPath(agentID), ipc.Outbox{})
	c.journal.AppendEvent(ipc.EventAgentSpawned, map[string]any{
		"agent_id": agentID, "role_id": r.RoleID, "backend": r.Backend, "work_dir": workDir,
	})
	return nil
}

// restartAgent terminates and respawns one agent, re-queuing its in-flight
// task to ready without consulting the attempt cap. A watchdog-driven
// restart is not an attempt: the agent process died or went silent, it
// didn't report a task failure. Like respawnExited, this is capped by
// MaxAgentRestarts to bound a hung-and-restarting agent's cost to the run.
func (c *Coordinator) restartAgent(ctx context.Context, agentID, reason string) {
	st, ok := c.agents[agentID]
	if !ok {
		return
	}
	_ = st.proc.Terminate(ctx, terminateGrace)
	st.exited = true

	if st.runningTaskID != "" {
		taskID := st.runningTaskID
		c.graph.SetAssignedAgent(taskID, "")
		c.graph.Transition(taskID, task.StatusReady, "watchdog", reason)
		delete(c.lastProgress, taskID)
		delete(c.taskStarted, taskID)
	}

	if c.cfg.MaxAgentRestarts > 0 && st.restarts >= c.cfg.MaxAgentRestarts {
		c.recordError("agent_restart_cap_reached", fmt.Errorf("agent %s exceeded max_agent_restarts=%d", agentID, c.cfg.MaxAgentRestarts))
		return
	}

	restarts := st.restarts + 1
	if err := c.spawnOneAgent(st.roleSpec, agentID); err != nil {
		c.recordError("agent_restart_spawn_failed", err)
		return
	}
	c.agents[agentID].restarts = restarts
	c.metrics.IncAgentRestart()
	c.journal.AppendEvent(ipc.EventAgentRestart, map[string]any{
		"agent_id": agentID, "reason": reason, "restart_count": restarts,
	})
}

// terminateAll shuts down every live agent process in parallel, used on
// graceful shutdown and when the run trips into a failing phase
// (budget/runtime exhaustion stop all further dispatch). Each process gets
// its own grace period concurrently rather than paying terminateGrace once
// per agent serially.
func (c *Coordinator) terminateAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for _, st := range c.agents {
		if st.exited {
			continue
		}
		st := st
		st.exited = true
		g.Go(func() error {
			return st.proc.Terminate(gctx, terminateGrace)
		})
	}
	_ = g.Wait()
}
