// Package review implements the merge queue: the judge/critic review task
// synthesis, quality scoring, and authority-role merge task synthesis a
// reviewable task goes through after an agent claims it done.
package review

import (
	"fmt"

	"swarmcoord/internal/swarm/role"
	"swarmcoord/internal/swarm/task"
)

// Status is a merge queue item's lifecycle stage.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInReview  Status = "in_review"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusMerged    Status = "merged"
)

// Item tracks one task through review and merge.
type Item struct {
	TaskID        string   `json:"task_id"`
	Status        Status   `json:"status"`
	Decision      string   `json:"decision,omitempty"`
	Artifacts     []string `json:"artifacts,omitempty"`
	JudgeTaskIDs  []string `json:"judge_task_ids,omitempty"`
	QualityScore  float64  `json:"quality_score,omitempty"`
	MergeTaskID   string   `json:"merge_task_id,omitempty"`
	MergeAttempts int      `json:"merge_attempts"`
}

// Queue is the in-memory merge queue. It is not written to the state
// snapshot; on resume the coordinator rebuilds it by re-enqueuing every
// reviewable task still in reviewing status.
type Queue struct {
	Items []Item `json:"items"`
}

// Enqueue adds a task to the queue as pending review.
func (q *Queue) Enqueue(taskID string, artifacts []string) {
	q.Items = append(q.Items, Item{TaskID: taskID, Status: StatusPending, Artifacts: artifacts})
}

// Find returns a pointer to the item for taskID, or nil.
func (q *Queue) Find(taskID string) *Item {
	for i := range q.Items {
		if q.Items[i].TaskID == taskID {
			return &q.Items[i]
		}
	}
	return nil
}

// Summary tallies item counts per status, for the state snapshot's
// merge_queue summary block.
func (q *Queue) Summary() map[string]int {
	out := map[string]int{
		string(StatusPending): 0, string(StatusInReview): 0,
		string(StatusApproved): 0, string(StatusRejected): 0, string(StatusMerged): 0,
	}
	for _, item := range q.Items {
		out[string(item.Status)]++
	}
	return out
}

// ReviewRoles returns the role ids eligible to review a completed task:
// every configured judge/critic role, falling back to configured judge
// roles if the roster has none.
func ReviewRoles(roles []role.Spec, configuredJudgeRoles []string) []string {
	var ids []string
	for _, r := range roles {
		if r.Type == role.TypeJudge || r.Type == role.TypeCritic {
			ids = append(ids, r.RoleID)
		}
	}
	if len(ids) == 0 {
		ids = append(ids, configuredJudgeRoles...)
	}
	return ids
}

// RoleType returns the role_type of roleID within roles, defaulting to
// "worker" when unknown — the same fallback _role_type/_role_type_by_agent
// use, since an unrecognized actor role shouldn't block a task transition.
func RoleType(roles []role.Spec, roleID string) role.Type {
	for _, r := range roles {
		if r.RoleID == roleID {
			return r.Type
		}
	}
	return role.TypeWorker
}

// Advance runs one tick of the review queue state machine for a single
// item, given read access to the task graph (terminal-status lookups) and
// the merge policy. Tasks it decides to create/transition are returned as
// Actions for the caller to apply against the task graph (this package
// never mutates task.Graph directly, matching the narrow-component
// pattern the rest of this tree follows).
type Policy struct {
	AuthorityRole   string
	QualityThreshold float64
	MaxTaskAttempts int
}

// Action is one task-graph mutation the caller must apply.
type Action struct {
	CreateTask     *task.Task // non-nil: append this task as given; a separate Action moves it to ready
	TransitionTask string     // non-empty: task id to transition
	TransitionTo   task.Status
	Actor          string
	Reason         string
}

// StatusLookup looks up a task's current status, defaulting to pending for
// an id the graph doesn't know about yet.
type StatusLookup func(taskID string) (task.Status, bool)

// Advance mutates item in place (status/decision/judge_task_ids/
// quality_score/merge_task_id/merge_attempts) and returns the task-graph
// actions the caller must apply. roleTypeOf resolves a role id's type to
// decide judge vs critic task kind.
func Advance(item *Item, policy Policy, roleTypeOf func(roleID string) role.Type, reviewRoles []string, status StatusLookup) []Action {
	var actions []Action

	if item.Status == StatusPending {
		var created []string
		for _, rid := range reviewRoles {
			reviewID := fmt.Sprintf("review-%s-%s", item.TaskID, rid)
			if _, ok := status(reviewID); ok {
				created = append(created, reviewID)
				continue
			}
			kind := task.KindCritic
			if roleTypeOf(rid) == role.TypeJudge {
				kind = task.KindJudge
			}
			actions = append(actions, Action{
				CreateTask: &task.Task{
					ID:           reviewID,
					Title:        "Review " + item.TaskID,
					Description:  "Validate completion claim for " + item.TaskID,
					Dependencies: []string{item.TaskID},
					RoleHint:     rid,
					Kind:         kind,
					Status:       task.StatusPending,
				},
			})
			actions = append(actions, Action{TransitionTask: reviewID, TransitionTo: task.StatusReady,
				Actor: "coordinator", Reason: "review_created"})
			created = append(created, reviewID)
		}
		item.JudgeTaskIDs = created
		item.Status = StatusInReview
		item.Decision = "reviewing"
	}

	if item.Status == StatusInReview {
		if len(item.JudgeTaskIDs) == 0 {
			item.Status = StatusApproved
			item.Decision = "approved_without_review_roles"
		} else {
			var statuses []task.Status
			pending := false
			for _, tid := range item.JudgeTaskIDs {
				s, ok := status(tid)
				if !ok {
					s = task.StatusPending
				}
				statuses = append(statuses, s)
				if s == task.StatusPending || s == task.StatusReady || s == task.StatusRunning || s == task.StatusReviewing {
					pending = true
				}
			}
			if !pending {
				passed := 0
				for _, s := range statuses {
					if s == task.StatusDone {
						passed++
					}
				}
				denom := len(statuses)
				if denom == 0 {
					denom = 1
				}
				score := float64(passed) / float64(denom)
				item.QualityScore = score
				if score >= policy.QualityThreshold {
					item.Status = StatusApproved
					item.Decision = "approved"
				} else {
					item.Status = StatusRejected
					item.Decision = "rejected"
					actions = append(actions, Action{TransitionTask: item.TaskID, TransitionTo: task.StatusFailed,
						Actor: "review", Reason: "insufficient_quality"})
				}
			}
		}
	}

	if item.Status == StatusApproved {
		if item.MergeTaskID == "" {
			mergeID := "merge-" + item.TaskID
			if _, ok := status(mergeID); !ok {
				deps := append([]string{item.TaskID}, item.JudgeTaskIDs...)
				actions = append(actions, Action{CreateTask: &task.Task{
					ID:           mergeID,
					Title:        "Merge " + item.TaskID,
					Description:  "Apply and reconcile outputs for " + item.TaskID,
					Dependencies: deps,
					RoleHint:     policy.AuthorityRole,
					Kind:         task.KindMerge,
					Status:       task.StatusPending,
				}})
				actions = append(actions, Action{TransitionTask: mergeID, TransitionTo: task.StatusReady,
					Actor: "coordinator", Reason: "merge_created"})
			}
			item.MergeTaskID = mergeID
		} else {
			s, _ := status(item.MergeTaskID)
			switch s {
			case task.StatusDone:
				item.Status = StatusMerged
				item.Decision = "merged"
				actions = append(actions, Action{TransitionTask: item.TaskID, TransitionTo: task.StatusDone,
					Actor: "merger", Reason: "merge_completed"})
			case task.StatusFailed:
				item.MergeAttempts++
				if item.MergeAttempts >= policy.MaxTaskAttempts {
					item.Status = StatusRejected
					item.Decision = "merge_failed"
				}
			}
		}
	}

	return actions
}
