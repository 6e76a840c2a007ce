// Package role describes the agent roles a run is configured with: how many
// agents of each role to spawn, what backend CLI each one runs, and what
// category of work it is eligible for.
package role

import "swarmcoord/internal/swarm/task"

// Type classifies a role's function in decomposition and review.
type Type string

const (
	TypeWorker       Type = "worker"
	TypeJudge        Type = "judge"
	TypeCritic       Type = "critic"
	TypeResearcher   Type = "researcher"
	TypeOrchestrator Type = "orchestrator"
)

// Backend is the underlying coding-agent CLI a role's agents invoke.
type Backend string

const (
	BackendClaude   Backend = "claude"
	BackendCodex    Backend = "codex"
	BackendAider    Backend = "aider"
	BackendAttocode Backend = "attocode"
)

// Spec configures one role: an id, a type, how many agents to spawn under
// it, and the backend/model/command it runs.
type Spec struct {
	RoleID  string  `yaml:"role_id" json:"role_id"`
	Type    Type    `yaml:"role_type" json:"role_type"`
	Count   int     `yaml:"count" json:"count"`
	Backend Backend `yaml:"backend" json:"backend"`
	Model   string  `yaml:"model,omitempty" json:"model,omitempty"`
	// Command overrides the backend's default invocation when set.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// WorkspaceMode selects the working-directory strategy (worktree.Mode)
	// for this role's agents. Empty defers to DefaultWorkspaceMode.
	WorkspaceMode string `yaml:"workspace_mode,omitempty" json:"workspace_mode,omitempty"`
	// WriteAccess declares whether this role's agents modify files, which
	// worktree.Manager.Ensure enforces against shared_ro.
	WriteAccess bool `yaml:"write_access" json:"write_access"`

	// TaskKinds filters which task kinds this role accepts when the
	// scheduler falls back from an exact role_hint match to a worker role.
	// Empty means no kind-based fallback claims this role.
	TaskKinds []task.Kind `yaml:"task_kinds,omitempty" json:"task_kinds,omitempty"`
}

// AcceptsKind reports whether r is willing to take a task of kind k via the
// accepted-kinds fallback.
func (r Spec) AcceptsKind(k task.Kind) bool {
	for _, tk := range r.TaskKinds {
		if tk == k {
			return true
		}
	}
	return false
}

// DefaultWorkspaceMode picks a sensible working-directory strategy when a
// role leaves WorkspaceMode unset: worker/orchestrator roles write, so they
// get their own worktree; judge/critic/researcher roles only read, so they
// share the project root read-only.
func DefaultWorkspaceMode(t Type) string {
	switch t {
	case TypeWorker, TypeOrchestrator:
		return "worktree"
	default:
		return "shared_ro"
	}
}

// DefaultWriteAccess mirrors DefaultWorkspaceMode's reasoning for the
// write_access flag when a role leaves it at its zero value.
func DefaultWriteAccess(t Type) bool {
	return t == TypeWorker || t == TypeOrchestrator
}

// FindByType returns the role_id of the first role matching any of types,
// or fallback if none match.
func FindByType(roles []Spec, fallback string, types ...Type) string {
	want := make(map[Type]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for _, r := range roles {
		if want[r.Type] {
			return r.RoleID
		}
	}
	return fallback
}

// WorkerCount sums the configured agent count across every worker role.
func WorkerCount(roles []Spec) int {
	total := 0
	for _, r := range roles {
		if r.Type == TypeWorker {
			total += r.Count
		}
	}
	return total
}

// FirstRoleID returns roles[0].RoleID, or "" if roles is empty — the
// fallback used when no role of the requested type exists and no worker
// role exists either.
func FirstRoleID(roles []Spec) string {
	if len(roles) == 0 {
		return ""
	}
	return roles[0].RoleID
}
