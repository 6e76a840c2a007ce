package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/task"
)

func TestAssignMatchesRoleHintAndSkipsBusyAgents(t *testing.T) {
	ready := []task.Task{
		{ID: "t0", RoleHint: "worker", Priority: 1},
		{ID: "t1", RoleHint: "judge", Priority: 2},
	}
	slots := []AgentSlot{
		{AgentID: "worker-1", RoleID: "worker", Busy: false},
		{AgentID: "worker-2", RoleID: "worker", Busy: true},
		{AgentID: "judge-1", RoleID: "judge", Busy: false},
	}
	assignments := Assign(ready, slots)
	require.Len(t, assignments, 2)
	assert.Equal(t, Assignment{TaskID: "t0", AgentID: "worker-1"}, assignments[0])
	assert.Equal(t, Assignment{TaskID: "t1", AgentID: "judge-1"}, assignments[1])
}

func TestAssignSkipsTaskWithNoFreeMatch(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "judge"}}
	slots := []AgentSlot{{AgentID: "worker-1", RoleID: "worker"}}
	assert.Empty(t, Assign(ready, slots))
}

func TestAssignWithoutRoleHintMatchesAnyFreeAgent(t *testing.T) {
	ready := []task.Task{{ID: "t0"}}
	slots := []AgentSlot{{AgentID: "worker-1", RoleID: "worker"}}
	assignments := Assign(ready, slots)
	require.Len(t, assignments, 1)
	assert.Equal(t, "worker-1", assignments[0].AgentID)
}

func TestAssignFallsBackToWorkerRoleAcceptingTaskKind(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "researcher", Kind: task.KindImplement}}
	slots := []AgentSlot{
		{AgentID: "worker-1", RoleID: "worker", Type: role.TypeWorker, TaskKinds: []task.Kind{task.KindImplement}},
	}
	assignments := Assign(ready, slots)
	require.Len(t, assignments, 1)
	assert.Equal(t, "worker-1", assignments[0].AgentID)
}

func TestAssignFallbackRequiresAcceptedKind(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "researcher", Kind: task.KindAnalysis}}
	slots := []AgentSlot{
		{AgentID: "worker-1", RoleID: "worker", Type: role.TypeWorker, TaskKinds: []task.Kind{task.KindImplement}},
	}
	assert.Empty(t, Assign(ready, slots))
}

func TestAssignFallbackIgnoresNonWorkerRoles(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "researcher", Kind: task.KindImplement}}
	slots := []AgentSlot{
		{AgentID: "judge-1", RoleID: "judge", Type: role.TypeJudge, TaskKinds: []task.Kind{task.KindImplement}},
	}
	assert.Empty(t, Assign(ready, slots))
}

func TestAssignPrefersExactRoleHintOverFallback(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "researcher", Kind: task.KindImplement}}
	slots := []AgentSlot{
		{AgentID: "worker-1", RoleID: "worker", Type: role.TypeWorker, TaskKinds: []task.Kind{task.KindImplement}},
		{AgentID: "researcher-1", RoleID: "researcher", Type: role.TypeResearcher},
	}
	assignments := Assign(ready, slots)
	require.Len(t, assignments, 1)
	assert.Equal(t, "researcher-1", assignments[0].AgentID)
}

func TestAssignDoesNotDoubleBookAnAgent(t *testing.T) {
	ready := []task.Task{{ID: "t0", RoleHint: "worker"}, {ID: "t1", RoleHint: "worker"}}
	slots := []AgentSlot{{AgentID: "worker-1", RoleID: "worker"}}
	assignments := Assign(ready, slots)
	assert.Len(t, assignments, 1)
}

func TestBuildTaskPromptNeverContainsProtocolMarkers(t *testing.T) {
	tk := task.Task{ID: "t0", Title: "Implement X", Description: "do the thing", Kind: task.KindImplement,
		Acceptance: []string{"passes tests"}}
	prompt := BuildTaskPrompt("ship it", tk)
	assert.Contains(t, prompt, "Project goal: ship it")
	assert.Contains(t, prompt, "Acceptance criteria")
	assert.Contains(t, prompt, "coding agent")
	assert.NotContains(t, prompt, "[TASK_DONE]")
	assert.NotContains(t, prompt, "[TASK_FAILED]")
}

func TestBuildTaskPromptVariesByKind(t *testing.T) {
	judge := scheduleTask(task.KindJudge)
	analysis := scheduleTask(task.KindAnalysis)
	merge := scheduleTask(task.KindMerge)

	assert.Contains(t, BuildTaskPrompt("", judge), "Evaluate the work")
	assert.Contains(t, BuildTaskPrompt("", analysis), "written plan or analysis")
	assert.Contains(t, BuildTaskPrompt("", merge), "Complete this task using the files")
}

func scheduleTask(kind task.Kind) task.Task {
	return task.Task{ID: "t0", Title: "T", Description: "d", Kind: kind}
}
