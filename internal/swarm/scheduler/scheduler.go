// Package scheduler matches ready tasks to free agents and synthesizes the
// prompt text sent to an agent for a given task.
package scheduler

import (
	"sort"
	"strings"

	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/task"
)

// AgentSlot describes one spawned agent's current assignability.
type AgentSlot struct {
	AgentID   string
	RoleID    string
	Type      role.Type
	TaskKinds []task.Kind
	Busy      bool
}

func (s AgentSlot) acceptsKind(k task.Kind) bool {
	for _, tk := range s.TaskKinds {
		if tk == k {
			return true
		}
	}
	return false
}

// Assignment pairs a ready task with the agent that should run it.
type Assignment struct {
	TaskID  string
	AgentID string
}

// Assign performs a stable, deterministic match of ready tasks to free
// agents: ready tasks are already priority-ordered (task.Graph.ReadySet),
// agents are considered in agent-id order, and a task's RoleHint (if set)
// restricts it to agents of that role. When a task has a RoleHint but no
// free agent of that exact role is available, it falls back to any free
// worker-role agent whose accepted task kinds include the task's kind. A
// task with no matching free agent (exact or fallback) is skipped this
// tick and retried on the next.
func Assign(ready []task.Task, slots []AgentSlot) []Assignment {
	free := make([]AgentSlot, 0, len(slots))
	for _, s := range slots {
		if !s.Busy {
			free = append(free, s)
		}
	}
	sort.SliceStable(free, func(i, j int) bool { return free[i].AgentID < free[j].AgentID })

	used := make(map[string]bool, len(free))
	var out []Assignment
	for _, t := range ready {
		agentID := ""
		for _, slot := range free {
			if used[slot.AgentID] {
				continue
			}
			if t.RoleHint != "" && t.RoleHint != slot.RoleID {
				continue
			}
			agentID = slot.AgentID
			break
		}
		if agentID == "" && t.RoleHint != "" {
			for _, slot := range free {
				if used[slot.AgentID] || slot.Type != role.TypeWorker {
					continue
				}
				if !slot.acceptsKind(t.Kind) {
					continue
				}
				agentID = slot.AgentID
				break
			}
		}
		if agentID == "" {
			continue
		}
		out = append(out, Assignment{TaskID: t.ID, AgentID: agentID})
		used[agentID] = true
	}
	return out
}

// BuildTaskPrompt synthesizes the prompt text sent to an agent for t,
// selected by task kind. It intentionally never includes protocol markers
// like "[TASK_DONE]"/"[TASK_FAILED]" — those come from the heartbeat
// wrapper based on exit code, not from agent-authored text.
func BuildTaskPrompt(goal string, t task.Task) string {
	desc := strings.TrimSpace(strings.ReplaceAll(t.Description, "\n", " "))
	goalCtx := ""
	if goal != "" {
		goalCtx = "Project goal: " + goal + "\n\n"
	}

	var acceptanceBlock string
	if len(t.Acceptance) > 0 {
		var b strings.Builder
		for _, a := range t.Acceptance {
			b.WriteString("  - ")
			b.WriteString(a)
			b.WriteString("\n")
		}
		acceptanceBlock = "\nAcceptance criteria:\n" + b.String() + "\n"
	}

	header := goalCtx + "Task " + t.ID + ": " + t.Title + "\n\n" + desc + "\n" + acceptanceBlock + "\n"

	switch t.Kind {
	case task.KindImplement, task.KindTest, task.KindIntegrate:
		return header +
			"You are a coding agent. Read the existing code in this working directory, " +
			"then create or modify the necessary files to complete this task. " +
			"Write clean, working code. Run any available tests to verify correctness."
	case task.KindAnalysis, task.KindDesign:
		return header +
			"Analyze the codebase in this working directory and produce a concrete " +
			"written plan or analysis. Include specific file paths, function names, " +
			"and implementation details."
	case task.KindJudge, task.KindCritic:
		return header +
			"Evaluate the work in this working directory. Check for correctness, " +
			"completeness, and adherence to the acceptance criteria. Report any issues found."
	default:
		return header + "Complete this task using the files in the current working directory."
	}
}
