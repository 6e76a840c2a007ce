// Package coordinator is the composition root: it owns one instance of
// every swarm component (task graph, scheduler, watchdog, review queue,
// budget counter, workspace manager, state writer, metrics) and drives them
// through the per-tick control loop — harvest, review queue, dispatch,
// watchdog (silence and duration timeouts, then heartbeat lag), budget/runtime
// check, state write, sleep — with no task-state mutation happening outside
// that loop. Task timeouts are applied in the watchdog step, after dispatch,
// not before the review queue.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	swarmerrors "swarmcoord/internal/errors"
	"swarmcoord/internal/swarm/budget"
	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/layout"
	"swarmcoord/internal/swarm/metrics"
	"swarmcoord/internal/swarm/review"
	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/scheduler"
	"swarmcoord/internal/swarm/statewriter"
	"swarmcoord/internal/swarm/swarmconfig"
	"swarmcoord/internal/swarm/task"
	"swarmcoord/internal/swarm/watchdog"
	"swarmcoord/internal/swarm/worktree"
)

// Phase is the run's overall lifecycle stage, surfaced in the state
// snapshot's status.phase field.
const (
	PhasePending   = "pending"
	PhaseRunning   = "running"
	PhaseCompleted = "completed"
	PhaseFailed    = "failed"
)

// Options configures one coordinator run; everything here is set once at
// construction and never mutated afterward.
type Options struct {
	Goal        string
	RunDir      string
	ProjectRoot string
	Resume      bool
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Coordinator is the single logically-serial control loop. Every field here
// is owned exclusively by the goroutine running Run: the DAG, attempt map,
// merge queue, and budget counters need no locking because only this loop
// ever touches them.
type Coordinator struct {
	opts   Options
	cfg    swarmconfig.SwarmConfig
	layout layout.Layout
	logger *slog.Logger

	runID string
	goal  string
	roles []role.Spec

	graph         *task.Graph
	journal       *ipc.Journal
	budgetCounter *budget.Counter
	mergeQueue    review.Queue
	workspaces    *worktree.Manager
	stateWriter   *statewriter.Writer
	metrics       *metrics.Metrics

	agents       map[string]*agentState
	lastProgress map[string]time.Time
	taskStarted  map[string]time.Time

	phase     string
	stateSeq  int64
	startedAt time.Time
	decisions []string
	errors    []string
}

// New constructs a Coordinator for one run. Nothing is spawned or written
// to disk until Run is called.
func New(cfg swarmconfig.SwarmConfig, opts Options) (*Coordinator, error) {
	if opts.RunDir == "" {
		return nil, fmt.Errorf("coordinator: RunDir is required")
	}
	if opts.ProjectRoot == "" {
		opts.ProjectRoot = "."
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewMetricsWithRegisterer(prometheus.NewRegistry())
	}

	l := layout.New(opts.RunDir)
	pollInterval := time.Duration(cfg.PollIntervalSeconds * float64(time.Second))
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	return &Coordinator{
		opts:          opts,
		cfg:           cfg,
		layout:        l,
		logger:        logger,
		graph:         task.NewGraph(),
		budgetCounter: budget.NewCounter(cfg.TokenCap, cfg.CostCapUSD, cfg.BudgetReserveRatio, cfg.CharsPerTokenFallback, cfg.CostPerThousandTokens, cfg.TokenEncoding),
		workspaces:    worktree.NewManager(opts.ProjectRoot, l.Worktrees),
		stateWriter:   statewriter.NewWriter(l.State, pollInterval),
		metrics:       m,
		agents:        map[string]*agentState{},
		lastProgress:  map[string]time.Time{},
		taskStarted:   map[string]time.Time{},
		phase:         PhasePending,
	}, nil
}

// Run executes the full run lifecycle: bootstrap/resume, spawn agents, tick
// until the phase leaves "running", then shut down. A panic anywhere in the
// loop is converted to a coordinator_crash error event and a best-effort
// shutdown rather than taking down the process.
func (c *Coordinator) Run(ctx context.Context) (runErr error) {
	defer func() {
		if r := recover(); r != nil {
			c.recordError("coordinator_crash", fmt.Errorf("panic: %v", r))
			c.phase = PhaseFailed
			runErr = fmt.Errorf("coordinator: crashed: %v", r)
		}
		c.shutdown(context.Background())
	}()

	c.startedAt = time.Now().UTC()
	if err := c.bootstrapOrLoad(); err != nil {
		return err
	}
	if err := c.spawnAgents(); err != nil {
		return err
	}
	c.phase = PhaseRunning

	poll := time.Duration(c.cfg.PollIntervalSeconds * float64(time.Second))
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for c.phase == PhaseRunning {
		select {
		case <-ctx.Done():
			c.phase = PhaseFailed
			c.recordError("context_cancelled", ctx.Err())
			return ctx.Err()
		default:
		}

		if err := c.tick(ctx); err != nil {
			return err
		}
		if c.phase != PhaseRunning {
			break
		}

		select {
		case <-ctx.Done():
			c.phase = PhaseFailed
			c.recordError("context_cancelled", ctx.Err())
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil
}

// tick runs one pass of the control loop: harvest, review queue advance,
// dispatch, watchdog, budget/runtime check, state write.
func (c *Coordinator) tick(ctx context.Context) error {
	for _, st := range c.agents {
		c.harvestAgent(ctx, st)
	}

	for i := range c.mergeQueue.Items {
		item := &c.mergeQueue.Items[i]
		if item.Status == review.StatusMerged || item.Status == review.StatusRejected {
			continue
		}
		c.applyReviewActions(c.advanceReviewItem(item))
	}

	c.dispatchReady(ctx)
	c.runWatchdog(ctx)
	c.checkBudgetAndRuntime(ctx)

	c.stateSeq++
	if err := c.stateWriter.ScheduleWrite(c.buildSnapshot()); err != nil {
		c.recordError("state_write_failed", err)
	}
	c.updateMetrics()
	c.metrics.IncTick()

	if c.phase == PhaseRunning && c.graph.AllTerminal() {
		c.phase = PhaseCompleted
	}
	return nil
}

func (c *Coordinator) shutdown(ctx context.Context) {
	c.terminateAll(ctx)
	if err := c.workspaces.Cleanup(); err != nil {
		c.logger.Warn("worktree cleanup failed", "err", err)
	}
	if err := c.stateWriter.Shutdown(); err != nil {
		c.logger.Warn("final state write failed", "err", err)
	}
}

func (c *Coordinator) checkBudgetAndRuntime(ctx context.Context) {
	if c.phase != PhaseRunning {
		return
	}
	if c.budgetCounter.HardExceeded() {
		c.phase = PhaseFailed
		c.recordError("budget_exhausted", swarmerrors.NewDegradedError("token or cost cap exceeded"))
		c.terminateAll(ctx)
		return
	}
	if c.cfg.MaxRuntimeSeconds > 0 && time.Since(c.startedAt).Seconds() >= c.cfg.MaxRuntimeSeconds {
		c.phase = PhaseFailed
		c.recordError("max_runtime_exceeded", swarmerrors.NewDegradedError(fmt.Sprintf("run exceeded max_runtime_seconds=%v", c.cfg.MaxRuntimeSeconds)))
		c.terminateAll(ctx)
	}
}

func (c *Coordinator) recordError(category string, err error) {
	msg := fmt.Sprintf("%s: %v", category, err)
	c.errors = append(c.errors, msg)
	if len(c.errors) > statewriter.ErrorsTailLen*2 {
		c.errors = c.errors[len(c.errors)-statewriter.ErrorsTailLen:]
	}
	errType := swarmerrors.GetErrorType(err)
	c.journal.AppendEvent(ipc.EventError, map[string]any{
		"category": category, "message": err.Error(), "error_type": errType.String(),
	})
	c.logger.Error("coordinator error", "category", category, "err", err, "error_type", errType)
	if swarmerrors.IsDegraded(err) {
		c.phase = PhaseFailed
	}
}

func (c *Coordinator) noteDecision(desc string) {
	c.decisions = append(c.decisions, desc)
	if len(c.decisions) > statewriter.DecisionsTailLen*2 {
		c.decisions = c.decisions[len(c.decisions)-statewriter.DecisionsTailLen:]
	}
}

func (c *Coordinator) updateMetrics() {
	counts := map[string]int{}
	for _, t := range c.graph.All() {
		counts[string(t.Status)]++
	}
	c.metrics.SetTaskCounts(counts)

	agentCounts := map[string]int{"running": 0, "idle": 0, "exited": 0}
	for _, st := range c.agents {
		switch {
		case st.exited:
			agentCounts["exited"]++
		case st.busy():
			agentCounts["running"]++
		default:
			agentCounts["idle"]++
		}
	}
	c.metrics.SetAgentCounts(agentCounts)
	c.metrics.SetMergeQueueCounts(c.mergeQueue.Summary())
	c.metrics.SetBudget(c.budgetCounter.TokensUsed, c.budgetCounter.CostUSD, c.budgetCounter.HardExceeded())
}

// advanceReviewItem resolves the review policy and role lookups for one
// Advance call against the live roster and task graph.
func (c *Coordinator) advanceReviewItem(item *review.Item) []review.Action {
	policy := review.Policy{
		AuthorityRole:    c.cfg.AuthorityRole,
		QualityThreshold: c.cfg.QualityThreshold,
		MaxTaskAttempts:  c.cfg.MaxTaskAttempts,
	}
	roleTypeOf := func(roleID string) role.Type { return review.RoleType(c.roles, roleID) }
	reviewRoles := review.ReviewRoles(c.roles, c.cfg.ReviewRoles)
	status := func(taskID string) (task.Status, bool) {
		t, ok := c.graph.Get(taskID)
		return t.Status, ok
	}
	return review.Advance(item, policy, roleTypeOf, reviewRoles, status)
}

// applyReviewActions performs the task-graph mutations review.Advance
// decided on, since that package never touches task.Graph directly.
func (c *Coordinator) applyReviewActions(actions []review.Action) {
	for _, a := range actions {
		if a.CreateTask != nil {
			c.graph.Add(*a.CreateTask)
			c.journal.AppendEvent(ipc.EventTaskCreated, map[string]any{
				"task_id": a.CreateTask.ID, "kind": a.CreateTask.Kind, "title": a.CreateTask.Title,
			})
		}
		if a.TransitionTask == "" {
			continue
		}
		tr, ok := c.graph.Transition(a.TransitionTask, a.TransitionTo, a.Actor, a.Reason)
		if !ok {
			continue
		}
		c.journal.AppendEvent(ipc.EventTaskTransition, tr)
		switch a.TransitionTo {
		case task.StatusFailed:
			c.metrics.IncTaskFailed()
			c.persistTaskRecord(a.TransitionTask)
		case task.StatusDone:
			c.metrics.IncTaskDone()
			c.persistTaskRecord(a.TransitionTask)
		case task.StatusSkipped:
			c.persistTaskRecord(a.TransitionTask)
		}
	}
}

// failTask applies the shared task-failure contract: return to ready while
// attempts remain, else fail terminally.
func (c *Coordinator) failTask(taskID, actor, reason string) {
	attempts := c.graph.Attempts(taskID)
	var classified error = swarmerrors.NewTransientError(taskID, reason)
	to := task.StatusReady
	if attempts >= c.cfg.MaxTaskAttempts {
		classified = swarmerrors.NewPermanentError(taskID, reason)
		to = task.StatusFailed
	}
	c.graph.SetFailureMode(taskID, reason)
	c.graph.SetAssignedAgent(taskID, "")
	delete(c.lastProgress, taskID)
	delete(c.taskStarted, taskID)

	if tr, ok := c.graph.Transition(taskID, to, actor, reason); ok {
		c.journal.AppendEvent(ipc.EventTaskTransition, tr)
	}
	outcome := "retry"
	if swarmerrors.IsPermanent(classified) {
		outcome = "failure"
		c.metrics.IncTaskFailed()
		c.persistTaskRecord(taskID)
	}
	c.logger.Warn("task failed", "task_id", taskID, "reason", reason,
		"error_type", swarmerrors.GetErrorType(classified), "outcome", outcome)
	c.journal.AppendEvent(ipc.EventAgentTaskClassified, map[string]any{
		"task_id": taskID, "outcome": outcome, "reason": reason, "next_status": to,
	})
}

// persistTaskRecord writes the task's current state to its per-task record
// file. Called whenever a task reaches a terminal status, so a resume that
// finds state.json stale or missing (a crash mid-debounce-window) still
// recovers the task's last known-good outcome from tasks/task-{id}.json.
func (c *Coordinator) persistTaskRecord(taskID string) {
	t, ok := c.graph.Get(taskID)
	if !ok {
		return
	}
	if err := ipc.WriteJSONAtomic(c.layout.TaskPath(taskID), t); err != nil {
		c.recordError("task_record_write_failed", err)
	}
}

// freeAgent clears an agent's current-task bookkeeping once that task has
// left the running state, one way or another.
func (c *Coordinator) freeAgent(agentID string) {
	if st, ok := c.agents[agentID]; ok {
		st.runningTaskID = ""
		st.taskStartedAt = time.Time{}
	}
}

// onTaskDone handles a worker's [TASK_DONE] marker: reviewable kinds enter
// the merge queue via StatusReviewing; everything else goes straight to
// done, per task.ReviewSkipKinds.
func (c *Coordinator) onTaskDone(agentID, taskID string) {
	t, ok := c.graph.Get(taskID)
	if !ok {
		return
	}
	if task.Reviewable(t.Kind) {
		c.mergeQueue.Enqueue(taskID, nil)
		if tr, ok := c.graph.Transition(taskID, task.StatusReviewing, "worker", "task_done"); ok {
			c.journal.AppendEvent(ipc.EventTaskTransition, tr)
		}
	} else if tr, ok := c.graph.Transition(taskID, task.StatusDone, "worker", "task_done"); ok {
		c.journal.AppendEvent(ipc.EventTaskTransition, tr)
		c.metrics.IncTaskDone()
		c.persistTaskRecord(taskID)
	}
	c.graph.SetAssignedAgent(taskID, "")
	delete(c.lastProgress, taskID)
	delete(c.taskStarted, taskID)
	c.journal.AppendEvent(ipc.EventAgentTaskClassified, map[string]any{"task_id": taskID, "outcome": "success"})
	c.freeAgent(agentID)
}

func (c *Coordinator) onTaskFailed(agentID, taskID string) {
	c.failTask(taskID, "worker", "task_failed")
	c.freeAgent(agentID)
}

// dispatchReady matches ready tasks to free agents and launches each match.
// Attempt-capped tasks fail before matching; everything else goes through
// scheduler.Assign.
func (c *Coordinator) dispatchReady(ctx context.Context) {
	ready := c.graph.ReadySet()
	eligible := make([]task.Task, 0, len(ready))
	for _, t := range ready {
		if c.graph.Attempts(t.ID) >= c.cfg.MaxTaskAttempts {
			c.graph.SetFailureMode(t.ID, "max_task_attempts_exceeded")
			if tr, ok := c.graph.Transition(t.ID, task.StatusFailed, "scheduler", "max_task_attempts_exceeded"); ok {
				c.journal.AppendEvent(ipc.EventTaskTransition, tr)
				c.metrics.IncTaskFailed()
				c.persistTaskRecord(t.ID)
			}
			continue
		}
		eligible = append(eligible, t)
	}

	slots := make([]scheduler.AgentSlot, 0, len(c.agents))
	for id, st := range c.agents {
		if st.exited {
			continue
		}
		slots = append(slots, scheduler.AgentSlot{
			AgentID: id, RoleID: st.roleSpec.RoleID, Type: st.roleSpec.Type,
			TaskKinds: st.roleSpec.TaskKinds, Busy: st.busy(),
		})
	}

	for _, a := range scheduler.Assign(eligible, slots) {
		c.dispatchOne(ctx, a)
	}
}

func (c *Coordinator) dispatchOne(ctx context.Context, a scheduler.Assignment) {
	t, ok := c.graph.Get(a.TaskID)
	if !ok {
		return
	}
	st, ok := c.agents[a.AgentID]
	if !ok {
		return
	}

	attempts := c.graph.IncrementAttempts(a.TaskID)
	c.graph.SetAssignedAgent(a.TaskID, a.AgentID)
	if tr, ok := c.graph.Transition(a.TaskID, task.StatusRunning, "scheduler", "dispatched"); ok {
		c.journal.AppendEvent(ipc.EventTaskTransition, tr)
	}

	now := time.Now().UTC()
	st.runningTaskID = a.TaskID
	st.taskStartedAt = now
	c.lastProgress[a.TaskID] = now
	c.taskStarted[a.TaskID] = now

	prompt := scheduler.BuildTaskPrompt(c.goal, t)
	if _, err := ipc.WriteInbox(ctx, c.layout.AgentInboxPath(a.AgentID), c.layout.InboxLockPath(a.AgentID),
		"task_assignment", a.TaskID, map[string]any{"prompt": prompt}, false); err != nil {
		c.recordError("inbox_write_failed", err)
	}
	if err := st.proc.SendLine(prompt); err != nil {
		c.recordError("send_line_failed", err)
	}
	c.journal.AppendEvent(ipc.EventAgentTaskLaunch, map[string]any{
		"agent_id": a.AgentID, "task_id": a.TaskID, "attempt": attempts,
	})
}

// runWatchdog applies the silence and duration timers to every running
// task, then the per-agent heartbeat-lag timer. A task is failed at most
// once per tick even if both timers fire for it the same tick.
func (c *Coordinator) runWatchdog(ctx context.Context) {
	now := time.Now().UTC()
	runningByAgent := map[string]string{}
	for id, st := range c.agents {
		if !st.exited && st.runningTaskID != "" {
			runningByAgent[id] = st.runningTaskID
		}
	}

	handled := map[string]bool{}
	for _, e := range watchdog.EnforceSilenceTimeouts(runningByAgent, c.lastProgress, c.cfg.SilenceTimeoutSeconds, now) {
		if handled[e.TaskID] {
			continue
		}
		handled[e.TaskID] = true
		c.failTask(e.TaskID, "watchdog", e.Reason)
		c.freeAgent(e.AgentID)
	}
	for _, e := range watchdog.EnforceDurationLimits(runningByAgent, c.taskStarted, c.cfg.TaskMaxDurationSeconds, now) {
		if handled[e.TaskID] {
			continue
		}
		handled[e.TaskID] = true
		c.failTask(e.TaskID, "watchdog", e.Reason)
		c.freeAgent(e.AgentID)
	}

	heartbeat := map[string]time.Time{}
	running := map[string]bool{}
	for id, st := range c.agents {
		if lh := st.proc.LastHeartbeat(); !lh.IsZero() {
			heartbeat[id] = lh
			running[id] = !st.exited
		}
	}
	hbTimeout := time.Duration(c.cfg.HeartbeatTimeoutSeconds * float64(time.Second))
	result := watchdog.EvaluateHeartbeat(heartbeat, running, hbTimeout, now)
	for _, agentID := range result.RestartAgents {
		c.restartAgent(ctx, agentID, "heartbeat_lag")
	}
}

// harvestAgent drains one agent's classified stdout events since the last
// harvest, mirrors them to its outbox, routes progress/terminal markers to
// the task graph, and detects a process that exited silently.
func (c *Coordinator) harvestAgent(ctx context.Context, st *agentState) {
	events := st.proc.ReadOutput(st.nextReadSeq)
	if len(events) > 0 {
		newEvents := make([]ipc.NewEvent, 0, len(events))
		for _, ev := range events {
			st.nextReadSeq = ev.Seq + 1
			taskID := st.runningTaskID
			newEvents = append(newEvents, ipc.NewEvent{
				Type: "agent." + ev.Type, TaskID: taskID,
				Payload: map[string]any{"line": ev.Line}, TokenUsage: ev.TokenUsage, CostUSD: ev.CostUSD,
			})
			c.journal.AppendEvent(ipc.EventAgentEvent, map[string]any{
				"agent_id": st.agentID, "task_id": taskID, "type": ev.Type,
			})

			switch ev.Type {
			case "output", "debug":
				if taskID != "" {
					c.lastProgress[taskID] = ev.Timestamp
					c.budgetCounter.AddUsage(ev.TokenUsage, ev.CostUSD, ev.Line)
				}
			case "task_done":
				if taskID != "" {
					c.onTaskDone(st.agentID, taskID)
				}
			case "task_failed":
				if taskID != "" {
					c.onTaskFailed(st.agentID, taskID)
				}
			}
		}
		if _, err := ipc.AppendOutboxEvents(ctx, c.layout.AgentOutboxPath(st.agentID), c.layout.OutboxLockPath(st.agentID), newEvents); err != nil {
			c.recordError("outbox_write_failed", err)
		}
	}

	select {
	case <-st.proc.Done():
		if st.exited {
			return
		}
		st.exited = true
		if st.runningTaskID != "" {
			taskID := st.runningTaskID
			reason := st.proc.ExitReason("process_exit_without_terminal_marker")
			c.journal.AppendEvent(ipc.EventAgentTaskExit, map[string]any{
				"agent_id": st.agentID, "task_id": taskID, "reason": reason,
			})
			c.failTask(taskID, "watchdog", reason)
		}
		if c.phase == PhaseRunning {
			c.respawnExited(st)
		}
	default:
	}
}

// respawnExited relaunches an agent slot whose process exited silently. It
// is capped by MaxAgentRestarts so a crash-looping backend can't burn the
// run's wall-clock indefinitely; once the cap is reached the slot is left
// exited and its next assigned task will simply never find a free agent of
// that role, surfacing as a stalled run rather than a restart storm.
func (c *Coordinator) respawnExited(st *agentState) {
	if c.cfg.MaxAgentRestarts > 0 && st.restarts >= c.cfg.MaxAgentRestarts {
		c.recordError("agent_restart_cap_reached", fmt.Errorf("agent %s exceeded max_agent_restarts=%d", st.agentID, c.cfg.MaxAgentRestarts))
		return
	}
	restarts := st.restarts + 1
	if err := c.spawnOneAgent(st.roleSpec, st.agentID); err != nil {
		c.recordError("agent_respawn_failed", err)
		return
	}
	c.agents[st.agentID].restarts = restarts
	c.metrics.IncAgentRestart()
	c.journal.AppendEvent(ipc.EventAgentRestart, map[string]any{
		"agent_id": st.agentID, "reason": "process_exit", "restart_count": restarts,
	})
}
