package agentproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnClassifiesOutputAndReportsExit(t *testing.T) {
	p, err := Spawn(Spec{
		AgentID: "worker-1",
		Binary:  "sh",
		Args:    []string{"-c", `echo "[HEARTBEAT]"; read line; echo "got: $line"; echo "[TASK_DONE]"`},
	})
	require.NoError(t, err)

	require.NoError(t, p.SendLine("do the thing"))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit in time")
	}

	events := p.ReadOutput(0)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, EventHeartbeat, events[0].Type)

	var sawOutput, sawDone bool
	for _, ev := range events {
		if ev.Type == EventOutput && ev.Line == "got: do the thing" {
			sawOutput = true
		}
		if ev.Type == EventTaskDone {
			sawDone = true
		}
	}
	assert.True(t, sawOutput)
	assert.True(t, sawDone)
	assert.Equal(t, 0, p.ExitCode())
}

func TestSpawnTaskFailedMarker(t *testing.T) {
	p, err := Spawn(Spec{
		AgentID: "worker-2",
		Binary:  "sh",
		Args:    []string{"-c", `echo "[TASK_FAILED]"; exit 1`},
	})
	require.NoError(t, err)

	<-p.Done()
	events := p.ReadOutput(0)
	require.NotEmpty(t, events)
	assert.Equal(t, EventTaskFailed, events[0].Type)
	assert.Equal(t, 1, p.ExitCode())
}

func TestExitReasonEmbedsCodeAndStderrTail(t *testing.T) {
	p, err := Spawn(Spec{
		AgentID: "worker-3",
		Binary:  "sh",
		Args:    []string{"-c", `echo "boom" 1>&2; exit 7`},
	})
	require.NoError(t, err)
	<-p.Done()

	reason := p.ExitReason("process_exit_without_terminal_event")
	assert.Contains(t, reason, "exit_code=7")
	assert.Contains(t, reason, "stderr=boom")
}

func TestTerminateKillsLongRunningProcess(t *testing.T) {
	p, err := Spawn(Spec{
		AgentID: "worker-4",
		Binary:  "sh",
		Args:    []string{"-c", `trap '' TERM; sleep 30`},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, p.Terminate(ctx, 500*time.Millisecond))

	select {
	case <-p.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("process survived SIGKILL escalation")
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, EventHeartbeat, classify("[HEARTBEAT]"))
	assert.Equal(t, EventTaskDone, classify("  [TASK_DONE]  "))
	assert.Equal(t, EventTaskFailed, classify("[TASK_FAILED]"))
	assert.Equal(t, EventDebug, classify("[DEBUG:CMD_START] 123"))
	assert.Equal(t, EventOutput, classify("some agent output"))
}
