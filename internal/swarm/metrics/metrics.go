// Package metrics exposes the coordinator's budget, task, and merge-queue
// state as Prometheus gauges/counters, served over an optional HTTP port
// via promhttp.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every gauge/counter the coordinator tick updates. It follows
// the NewXMetricsWithRegisterer convention: a constructor that takes an
// explicit registerer for tests and a package-level default for production,
// with one GaugeVec per per-status/per-state metric family, keyed by label.
type Metrics struct {
	tasksByStatus      *prometheus.GaugeVec
	agentsByState      *prometheus.GaugeVec
	mergeQueueByStatus *prometheus.GaugeVec

	tokensUsed  prometheus.Gauge
	costUSD     prometheus.Gauge
	budgetHard  prometheus.Gauge
	ticks       prometheus.Counter
	tasksDone   prometheus.Counter
	tasksFailed prometheus.Counter
	restarts    prometheus.Counter
}

// NewMetricsWithRegisterer constructs a Metrics registered against reg —
// used directly in tests with a fresh prometheus.NewRegistry().
func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "tasks_by_status", Help: "Current task count per status.",
		}, []string{"status"}),
		agentsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "agents_by_state", Help: "Current agent count per liveness state.",
		}, []string{"state"}),
		mergeQueueByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "merge_queue_by_status", Help: "Current merge queue item count per status.",
		}, []string{"status"}),
		tokensUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "budget_tokens_used", Help: "Tokens consumed so far this run.",
		}),
		costUSD: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "budget_cost_usd", Help: "Estimated cost in USD so far this run.",
		}),
		budgetHard: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "swarmcoord", Name: "budget_hard_exceeded", Help: "1 when the budget hard cap has been crossed.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcoord", Name: "coordinator_ticks_total", Help: "Total coordinator control loop iterations.",
		}),
		tasksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcoord", Name: "tasks_done_total", Help: "Total tasks that reached done.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcoord", Name: "tasks_failed_total", Help: "Total tasks that reached failed.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "swarmcoord", Name: "agent_restarts_total", Help: "Total watchdog-triggered agent restarts.",
		}),
	}
	reg.MustRegister(m.tasksByStatus, m.agentsByState, m.mergeQueueByStatus,
		m.tokensUsed, m.costUSD, m.budgetHard, m.ticks, m.tasksDone, m.tasksFailed, m.restarts)
	return m
}

// NewMetrics registers against prometheus.DefaultRegisterer, for
// production wiring in cmd/swarmcoord.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// SetTaskCounts replaces the current gauge value for each status with
// counts (a full snapshot of the task graph's status tally, not a delta).
func (m *Metrics) SetTaskCounts(counts map[string]int) {
	for status, n := range counts {
		m.tasksByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetAgentCounts replaces the current gauge value for each liveness state.
func (m *Metrics) SetAgentCounts(counts map[string]int) {
	for state, n := range counts {
		m.agentsByState.WithLabelValues(state).Set(float64(n))
	}
}

// SetMergeQueueCounts replaces the current gauge value for each merge
// queue status.
func (m *Metrics) SetMergeQueueCounts(counts map[string]int) {
	for status, n := range counts {
		m.mergeQueueByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// SetBudget updates the budget gauges from a budget.Counter snapshot.
func (m *Metrics) SetBudget(tokensUsed int64, costUSD float64, hardExceeded bool) {
	m.tokensUsed.Set(float64(tokensUsed))
	m.costUSD.Set(costUSD)
	if hardExceeded {
		m.budgetHard.Set(1)
	} else {
		m.budgetHard.Set(0)
	}
}

func (m *Metrics) IncTick()         { m.ticks.Inc() }
func (m *Metrics) IncTaskDone()     { m.tasksDone.Inc() }
func (m *Metrics) IncTaskFailed()   { m.tasksFailed.Inc() }
func (m *Metrics) IncAgentRestart() { m.restarts.Inc() }

// Handler returns the promhttp handler for the default registry, to be
// mounted on an optional metrics port.
func Handler() http.Handler {
	return promhttp.Handler()
}
