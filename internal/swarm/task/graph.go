package task

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Graph is the in-memory task collection: the canonical source of truth the
// coordinator mutates every tick. It is not safe to share across goroutines
// without the coordinator's own serialization, but the internal mutex keeps
// isolated reads (e.g. from a status command) safe regardless.
type Graph struct {
	mu             sync.Mutex
	tasks          map[string]Task
	order          []string // insertion order, for stable iteration
	transitionLog  []Transition
	maxLogEntries  int
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:         make(map[string]Task),
		maxLogEntries: 4000,
	}
}

// Add inserts a new task. Destroyed never: once added, a task persists for
// the life of the run (callers transition it to a terminal status instead
// of removing it).
func (g *Graph) Add(t Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tasks[t.ID]; !exists {
		g.order = append(g.order, t.ID)
	}
	g.tasks[t.ID] = t.Clone()
}

// Get returns a copy of the task, if present.
func (g *Graph) Get(id string) (Task, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// All returns a snapshot of every task, in insertion order.
func (g *Graph) All() []Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].Clone())
	}
	return out
}

// Edges returns every dependency edge as {source: dep, target: task}.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (g *Graph) Edges() []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var edges []Edge
	for _, id := range g.order {
		for _, dep := range g.tasks[id].Dependencies {
			edges = append(edges, Edge{Source: dep, Target: id})
		}
	}
	return edges
}

// Transition validates and applies a status change, appending to the
// transition log. An illegal transition is ignored — the task's status is
// left untouched and nothing is added to the log. It returns the Transition
// record and whether it was applied: for an illegal move the record carries
// an "invalid_transition: ..." reason, for an unknown task or a move to the
// current status it is the zero value.
func (g *Graph) Transition(id string, to Status, actor, reason string) (Transition, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	t, ok := g.tasks[id]
	if !ok {
		return Transition{}, false
	}
	from := t.Status
	if from == to {
		return Transition{}, false
	}
	if !Allowed(from, to) {
		return Transition{TaskID: id, From: from, To: to, Actor: actor,
			Reason: fmt.Sprintf("invalid_transition: %s->%s by %s (%s)", from, to, actor, reason),
			Timestamp: time.Now().UTC()}, false
	}

	t.Status = to
	g.tasks[id] = t
	tr := Transition{TaskID: id, From: from, To: to, Actor: actor, Reason: reason, Timestamp: time.Now().UTC()}
	g.transitionLog = append(g.transitionLog, tr)
	if len(g.transitionLog) > g.maxLogEntries {
		g.transitionLog = g.transitionLog[len(g.transitionLog)-g.maxLogEntries:]
	}
	return tr, true
}

// IncrementAttempts and Attempts manage the per-task attempt counter
// (kept on the Task record itself so persistence stays a single struct).
func (g *Graph) IncrementAttempts(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return 0
	}
	t.Attempts++
	g.tasks[id] = t
	return t.Attempts
}

func (g *Graph) Attempts(id string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tasks[id].Attempts
}

// SetFailureMode records the reason a task last failed, without touching status.
func (g *Graph) SetFailureMode(id, mode string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	t.FailureMode = mode
	g.tasks[id] = t
}

// SetAssignedAgent records which agent is running a task (cleared with "").
func (g *Graph) SetAssignedAgent(id, agentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return
	}
	t.AssignedAgentID = agentID
	g.tasks[id] = t
}

// TransitionsFor returns the bounded, most-recent transition history for a
// task — used when persisting per-task records.
func (g *Graph) TransitionsFor(id string, limit int) []Transition {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Transition
	for _, tr := range g.transitionLog {
		if tr.TaskID == id {
			out = append(out, tr)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// TransitionLog returns the bounded overall transition log tail.
func (g *Graph) TransitionLog(limit int) []Transition {
	g.mu.Lock()
	defer g.mu.Unlock()
	if limit <= 0 || limit >= len(g.transitionLog) {
		out := make([]Transition, len(g.transitionLog))
		copy(out, g.transitionLog)
		return out
	}
	out := make([]Transition, limit)
	copy(out, g.transitionLog[len(g.transitionLog)-limit:])
	return out
}

// ReadySet computes the tasks eligible for dispatch: status pending or
// ready, and every dependency has reached done or skipped. Results are
// returned in (priority asc, then insertion order) to give the scheduler a
// stable order to assign against.
func (g *Graph) ReadySet() []Task {
	g.mu.Lock()
	tasks := make(map[string]Task, len(g.tasks))
	order := append([]string(nil), g.order...)
	for k, v := range g.tasks {
		tasks[k] = v
	}
	g.mu.Unlock()

	depsSatisfied := func(t Task) bool {
		for _, dep := range t.Dependencies {
			dt, ok := tasks[dep]
			if !ok {
				return false
			}
			if dt.Status != StatusDone && dt.Status != StatusSkipped {
				return false
			}
		}
		return true
	}

	var ready []Task
	for _, id := range order {
		t := tasks[id]
		if t.Status != StatusPending && t.Status != StatusReady {
			continue
		}
		if !depsSatisfied(t) {
			continue
		}
		ready = append(ready, t.Clone())
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority < ready[j].Priority
	})
	return ready
}

// AllTerminal reports whether every task has reached a terminal status —
// the coordinator's "phase = completed" condition.
func (g *Graph) AllTerminal() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tasks {
		if !Terminal(t.Status) {
			return false
		}
	}
	return true
}

// StatusCounts tallies tasks per status. The sum over
// {ready,running,done,failed,skipped} (plus any other live status) always
// equals the total task count.
func (g *Graph) StatusCounts() map[Status]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	counts := make(map[Status]int)
	for _, t := range g.tasks {
		counts[t.Status]++
	}
	return counts
}
