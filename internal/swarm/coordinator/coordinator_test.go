package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcoord/internal/swarm/decompose"
	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/review"
	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/swarmconfig"
	"swarmcoord/internal/swarm/task"
)

func testCoordinatorWithJournal(t *testing.T) *Coordinator {
	t.Helper()
	cfg := swarmconfig.SwarmConfig{
		Roles: []role.Spec{
			{RoleID: "worker", Type: role.TypeWorker, Count: 1, Backend: role.BackendClaude},
			{RoleID: "judge", Type: role.TypeJudge, Count: 1, Backend: role.BackendClaude},
		},
		OrchestrationStrategy:  decompose.ModeManual,
		MaxTaskAttempts:        2,
		QualityThreshold:       1.0,
		AuthorityRole:          "worker",
		SilenceTimeoutSeconds:  120,
		TaskMaxDurationSeconds: 1800,
		HeartbeatTimeoutSeconds: 30,
		PollIntervalSeconds:    0.1,
	}
	c, err := New(cfg, Options{Goal: "test goal", RunDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, c.layout.Ensure())

	c.runID = "run-test"
	c.goal = c.opts.Goal
	c.roles = cfg.Roles
	c.journal = ipc.NewJournal(c.layout.Events, c.runID)
	c.phase = PhaseRunning
	return c
}

func TestFailTaskRetriesUnderAttemptCap(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.graph.Add(task.Task{ID: "t0", Status: task.StatusRunning, Kind: task.KindImplement})
	c.graph.IncrementAttempts("t0")
	c.graph.SetAssignedAgent("t0", "worker-0")
	c.lastProgress["t0"] = time.Now()

	c.failTask("t0", "watchdog", "silent_timeout>120.0s")

	got, ok := c.graph.Get("t0")
	require.True(t, ok)
	assert.Equal(t, task.StatusReady, got.Status)
	assert.Equal(t, "", got.AssignedAgentID)
	assert.Equal(t, "silent_timeout>120.0s", got.FailureMode)
	_, stillTracked := c.lastProgress["t0"]
	assert.False(t, stillTracked)
}

func TestFailTaskFailsTerminallyAtAttemptCap(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.cfg.MaxTaskAttempts = 1
	c.graph.Add(task.Task{ID: "t0", Status: task.StatusRunning, Kind: task.KindImplement})
	c.graph.IncrementAttempts("t0")

	c.failTask("t0", "watchdog", "duration_exceeded>1800.0s")

	got, ok := c.graph.Get("t0")
	require.True(t, ok)
	assert.Equal(t, task.StatusFailed, got.Status)
}

func TestOnTaskDoneRoutesReviewableKindsThroughMergeQueue(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.graph.Add(task.Task{ID: "impl-1", Status: task.StatusRunning, Kind: task.KindImplement})
	c.agents["worker-0"] = &agentState{agentID: "worker-0", runningTaskID: "impl-1"}

	c.onTaskDone("worker-0", "impl-1")

	got, ok := c.graph.Get("impl-1")
	require.True(t, ok)
	assert.Equal(t, task.StatusReviewing, got.Status)
	require.NotNil(t, c.mergeQueue.Find("impl-1"))
	assert.Equal(t, review.StatusPending, c.mergeQueue.Find("impl-1").Status)
	assert.Equal(t, "", c.agents["worker-0"].runningTaskID)
}

func TestOnTaskDoneSkipsReviewForAnalysisKind(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.graph.Add(task.Task{ID: "an-1", Status: task.StatusRunning, Kind: task.KindAnalysis})
	c.agents["judge-0"] = &agentState{agentID: "judge-0", runningTaskID: "an-1"}

	c.onTaskDone("judge-0", "an-1")

	got, ok := c.graph.Get("an-1")
	require.True(t, ok)
	assert.Equal(t, task.StatusDone, got.Status)
	assert.Nil(t, c.mergeQueue.Find("an-1"))
}

func TestOnTaskFailedAppliesAttemptCapSemantics(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.graph.Add(task.Task{ID: "t0", Status: task.StatusRunning, Kind: task.KindImplement})
	c.graph.IncrementAttempts("t0")
	c.agents["worker-0"] = &agentState{agentID: "worker-0", runningTaskID: "t0"}

	c.onTaskFailed("worker-0", "t0")

	got, _ := c.graph.Get("t0")
	assert.Equal(t, task.StatusReady, got.Status)
	assert.Equal(t, "", c.agents["worker-0"].runningTaskID)
}

func TestApplyReviewActionsAdvancesMergeQueueEndToEnd(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.cfg.QualityThreshold = 1.0
	c.cfg.AuthorityRole = "worker"
	c.roles = []role.Spec{
		{RoleID: "worker", Type: role.TypeWorker},
		{RoleID: "judge", Type: role.TypeJudge},
	}
	c.graph.Add(task.Task{ID: "impl-1", Status: task.StatusReviewing, Kind: task.KindImplement})
	c.mergeQueue.Enqueue("impl-1", nil)
	item := c.mergeQueue.Find("impl-1")

	c.applyReviewActions(c.advanceReviewItem(item))
	reviewTaskID := "review-impl-1-judge"
	_, ok := c.graph.Get(reviewTaskID)
	require.True(t, ok, "expected review task to be created")
	assert.Equal(t, review.StatusInReview, item.Status)

	c.graph.Transition(reviewTaskID, task.StatusRunning, "scheduler", "dispatched")
	c.graph.Transition(reviewTaskID, task.StatusDone, "worker", "task_done")

	c.applyReviewActions(c.advanceReviewItem(item))
	assert.Equal(t, review.StatusApproved, item.Status)

	c.applyReviewActions(c.advanceReviewItem(item))
	mergeTaskID := "merge-impl-1"
	_, ok = c.graph.Get(mergeTaskID)
	require.True(t, ok, "expected merge task to be created")
	assert.Equal(t, review.StatusApproved, item.Status)

	c.graph.Transition(mergeTaskID, task.StatusRunning, "scheduler", "dispatched")
	c.graph.Transition(mergeTaskID, task.StatusDone, "worker", "task_done")
	c.applyReviewActions(c.advanceReviewItem(item))
	assert.Equal(t, review.StatusMerged, item.Status)
}

func TestCheckBudgetAndRuntimeTripsOnHardBudgetExceeded(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.budgetCounter.TokenCap = 100
	c.budgetCounter.ReserveRatio = 0
	c.budgetCounter.AddUsage(150, 0, "")

	c.checkBudgetAndRuntime(context.Background())
	assert.Equal(t, PhaseFailed, c.phase)
}

func TestCheckBudgetAndRuntimeTripsOnMaxRuntime(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.cfg.MaxRuntimeSeconds = 0.01
	c.startedAt = time.Now().Add(-1 * time.Second)

	c.checkBudgetAndRuntime(context.Background())
	assert.Equal(t, PhaseFailed, c.phase)
}

func TestDispatchReadyFailsTasksAtAttemptCapBeforeMatching(t *testing.T) {
	c := testCoordinatorWithJournal(t)
	c.cfg.MaxTaskAttempts = 1
	c.graph.Add(task.Task{ID: "t0", Status: task.StatusReady, Kind: task.KindImplement})
	c.graph.IncrementAttempts("t0")

	c.dispatchReady(context.Background())

	got, ok := c.graph.Get("t0")
	require.True(t, ok)
	assert.Equal(t, task.StatusFailed, got.Status)
	assert.Equal(t, "max_task_attempts_exceeded", got.FailureMode)
}
