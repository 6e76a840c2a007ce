// Package decompose turns a goal and a role roster into the initial task
// DAG, implementing the four decomposition strategies (manual, fast,
// parallel, hierarchical) plus the llm-falls-back-to-parallel rule.
package decompose

import (
	"fmt"

	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/task"
)

// Mode selects a decomposition strategy.
type Mode string

const (
	ModeManual      Mode = "manual"
	ModeFast        Mode = "fast"
	ModeParallel    Mode = "parallel"
	ModeHierarchical Mode = "hierarchical"
	ModeLLM         Mode = "llm"
)

// Event is a decomposition-time decision worth journaling, returned
// alongside the tasks so the caller can append it without this package
// knowing about the journal.
type Event struct {
	Type    string
	Payload map[string]any
}

// Decompose produces the initial task set for goal given roles and mode,
// capped at maxTasks, plus zero or more journal-worthy events. Unknown modes
// and "hierarchical" both fall through to the full hierarchical pipeline.
func Decompose(goal string, roles []role.Spec, mode Mode, maxTasks int) ([]task.Task, []Event) {
	if maxTasks < 1 {
		maxTasks = 1
	}

	switch mode {
	case ModeManual:
		return manual(goal, roles), nil
	case ModeFast:
		return fast(goal, roles, maxTasks), nil
	case ModeParallel:
		tasks, ev := parallel(goal, roles, maxTasks)
		return tasks, ev
	case ModeLLM:
		tasks, ev := parallel(goal, roles, maxTasks)
		fallback := Event{Type: "decomposition.fallback", Payload: map[string]any{
			"reason": "llm_planner_not_configured", "mode": "parallel",
		}}
		return tasks, append([]Event{fallback}, ev...)
	default:
		return hierarchical(goal, roles, maxTasks), nil
	}
}

func manual(goal string, roles []role.Spec) []task.Task {
	return []task.Task{
		{
			ID:          "t0",
			Title:       "Primary objective",
			Description: goal,
			RoleHint:    role.FirstRoleID(roles),
			Kind:        task.KindImplement,
			Status:      task.StatusPending,
		},
	}
}

func fast(goal string, roles []role.Spec, maxTasks int) []task.Task {
	worker := role.FindByType(roles, role.FirstRoleID(roles), role.TypeWorker)

	tasks := []task.Task{
		{
			ID:          "t0",
			Title:       "Implement core changes",
			Description: goal,
			RoleHint:    worker,
			Kind:        task.KindImplement,
			Status:      task.StatusReady,
		},
	}
	if role.WorkerCount(roles) > 1 {
		tasks = append(tasks, task.Task{
			ID:           "t1",
			Title:        "Add/adjust tests",
			Description:  "Add tests that validate behavior and edge cases.",
			Dependencies: []string{"t0"},
			RoleHint:     worker,
			Kind:         task.KindTest,
			Status:       task.StatusPending,
		})
	}
	deps := make([]string, len(tasks))
	for i, t := range tasks {
		deps[i] = t.ID
	}
	tasks = append(tasks, task.Task{
		ID:           fmt.Sprintf("t%d", len(tasks)),
		Title:        "Integrate and finalize",
		Description:  "Integrate implementation and tests into coherent final output.",
		Dependencies: deps,
		RoleHint:     worker,
		Kind:         task.KindIntegrate,
		Status:       task.StatusPending,
	})

	if len(tasks) > maxTasks {
		tasks = tasks[:maxTasks]
	}
	return tasks
}

func hierarchical(goal string, roles []role.Spec, maxTasks int) []task.Task {
	worker := role.FindByType(roles, role.FirstRoleID(roles), role.TypeWorker)
	research := role.FindByType(roles, worker, role.TypeResearcher, role.TypeOrchestrator)
	judge := role.FindByType(roles, "", role.TypeJudge)
	critic := role.FindByType(roles, "", role.TypeCritic)

	base := []task.Task{
		{ID: "t0", Title: "Analyze goal and constraints",
			Description: fmt.Sprintf("Analyze objective and identify required modules: %s", goal),
			RoleHint:    research, Kind: task.KindAnalysis, Status: task.StatusPending},
		{ID: "t1", Title: "Design implementation plan",
			Description: "Design concrete implementation and file-level plan.",
			Dependencies: []string{"t0"}, RoleHint: research, Kind: task.KindDesign, Status: task.StatusPending},
		{ID: "t2", Title: "Implement core changes",
			Description: goal, Dependencies: []string{"t1"}, RoleHint: worker, Kind: task.KindImplement, Status: task.StatusPending},
		{ID: "t3", Title: "Add/adjust tests",
			Description: "Add tests that validate behavior and edge cases.",
			Dependencies: []string{"t1"}, RoleHint: worker, Kind: task.KindTest, Status: task.StatusPending},
		{ID: "t4", Title: "Integrate and finalize",
			Description: "Integrate implementation and tests into coherent final output.",
			Dependencies: []string{"t2", "t3"}, RoleHint: worker, Kind: task.KindIntegrate, Status: task.StatusPending},
	}

	if judge != "" {
		base = append(base, task.Task{ID: "t5", Title: "Judge final quality",
			Description: "Evaluate correctness, completeness, and clarity.",
			Dependencies: []string{"t4"}, RoleHint: judge, Kind: task.KindJudge, Status: task.StatusPending})
	}
	if critic != "" {
		deps := []string{"t4"}
		if judge != "" {
			deps = append(deps, "t5")
		}
		base = append(base, task.Task{ID: "t6", Title: "Critic risk review",
			Description: "Identify contradictions, weak assumptions, and regressions.",
			Dependencies: deps, RoleHint: critic, Kind: task.KindCritic, Status: task.StatusPending})
	}

	if len(base) > maxTasks {
		base = base[:maxTasks]
	}
	if len(base) > 0 {
		base[0].Status = task.StatusReady
	}
	return base
}

func parallel(goal string, roles []role.Spec, maxTasks int) ([]task.Task, []Event) {
	worker := role.FindByType(roles, role.FirstRoleID(roles), role.TypeWorker)
	judge := role.FindByType(roles, "", role.TypeJudge)
	critic := role.FindByType(roles, "", role.TypeCritic)
	workerCount := role.WorkerCount(roles)

	if workerCount <= 1 {
		tasks := []task.Task{
			{ID: "t0", Title: "Implement full objective", Description: goal,
				RoleHint: worker, Kind: task.KindImplement, Status: task.StatusReady},
		}
		if len(tasks) > maxTasks {
			tasks = tasks[:maxTasks]
		}
		return tasks, nil
	}

	type focusArea struct {
		title string
		kind  task.Kind
	}
	focusAreas := []focusArea{
		{"Implement core logic and main features", task.KindImplement},
		{"Implement tests and edge cases", task.KindTest},
	}
	if workerCount >= 3 {
		focusAreas = append(focusAreas, focusArea{"Implement integration, docs, and auxiliary modules", task.KindImplement})
	}
	for extra := 3; extra < workerCount; extra++ {
		focusAreas = append(focusAreas, focusArea{fmt.Sprintf("Implement additional scope (area %d)", extra+1), task.KindImplement})
	}
	if len(focusAreas) > workerCount {
		focusAreas = focusAreas[:workerCount]
	}

	var implTasks []task.Task
	for i, fa := range focusAreas {
		implTasks = append(implTasks, task.Task{
			ID:    fmt.Sprintf("t%d", i),
			Title: fa.title,
			Description: fmt.Sprintf("%s\n\nFocus area: %s. Do not modify files outside your scope unless necessary for your task.",
				goal, fa.title),
			RoleHint: worker,
			Kind:     fa.kind,
			Status:   task.StatusReady,
		})
	}

	integrateIdx := len(implTasks)
	deps := make([]string, len(implTasks))
	for i, t := range implTasks {
		deps[i] = t.ID
	}
	integrateTask := task.Task{
		ID:           fmt.Sprintf("t%d", integrateIdx),
		Title:        "Integrate and finalize",
		Description:  "Integrate all parallel work into coherent final output. Run tests, fix conflicts.",
		Dependencies: deps,
		RoleHint:     worker,
		Kind:         task.KindIntegrate,
		Status:       task.StatusPending,
	}

	allTasks := append(append([]task.Task{}, implTasks...), integrateTask)
	nextIdx := integrateIdx + 1

	if judge != "" {
		allTasks = append(allTasks, task.Task{
			ID: fmt.Sprintf("t%d", nextIdx), Title: "Judge final quality",
			Description: "Evaluate correctness, completeness, and clarity.",
			Dependencies: []string{integrateTask.ID}, RoleHint: judge, Kind: task.KindJudge, Status: task.StatusPending,
		})
		nextIdx++
	}
	if critic != "" {
		criticDeps := []string{integrateTask.ID}
		if judge != "" {
			criticDeps = append(criticDeps, fmt.Sprintf("t%d", nextIdx-1))
		}
		allTasks = append(allTasks, task.Task{
			ID: fmt.Sprintf("t%d", nextIdx), Title: "Critic risk review",
			Description: "Identify contradictions, weak assumptions, and regressions.",
			Dependencies: criticDeps, RoleHint: critic, Kind: task.KindCritic, Status: task.StatusPending,
		})
	}

	event := Event{Type: "decomposition.parallel", Payload: map[string]any{
		"worker_count":   workerCount,
		"parallel_tasks": len(implTasks),
		"total_tasks":    len(allTasks),
	}}

	if len(allTasks) > maxTasks {
		allTasks = allTasks[:maxTasks]
	}
	return allTasks, []Event{event}
}
