package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetTaskCountsUpdatesGaugePerStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.SetTaskCounts(map[string]int{"done": 3, "running": 1})

	if got := testutil.ToFloat64(m.tasksByStatus.WithLabelValues("done")); got != 3 {
		t.Fatalf("expected done=3, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksByStatus.WithLabelValues("running")); got != 1 {
		t.Fatalf("expected running=1, got %v", got)
	}
}

func TestSetBudgetReflectsHardExceeded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.SetBudget(500, 1.25, true)
	if got := testutil.ToFloat64(m.tokensUsed); got != 500 {
		t.Fatalf("expected tokensUsed=500, got %v", got)
	}
	if got := testutil.ToFloat64(m.costUSD); got != 1.25 {
		t.Fatalf("expected costUSD=1.25, got %v", got)
	}
	if got := testutil.ToFloat64(m.budgetHard); got != 1 {
		t.Fatalf("expected budgetHard=1, got %v", got)
	}

	m.SetBudget(500, 1.25, false)
	if got := testutil.ToFloat64(m.budgetHard); got != 0 {
		t.Fatalf("expected budgetHard=0 after clearing, got %v", got)
	}
}

func TestIncrementCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegisterer(reg)

	m.IncTick()
	m.IncTick()
	m.IncTaskDone()
	m.IncTaskFailed()
	m.IncAgentRestart()

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Fatalf("expected ticks=2, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksDone); got != 1 {
		t.Fatalf("expected tasksDone=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.tasksFailed); got != 1 {
		t.Fatalf("expected tasksFailed=1, got %v", got)
	}
	if got := testutil.ToFloat64(m.restarts); got != 1 {
		t.Fatalf("expected restarts=1, got %v", got)
	}
}
