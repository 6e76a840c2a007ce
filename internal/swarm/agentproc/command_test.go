package agentproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcoord/internal/swarm/role"
)

func TestDefaultCommandPerBackend(t *testing.T) {
	cmd, err := DefaultCommand(role.BackendClaude, "", false)
	require.NoError(t, err)
	require.Len(t, cmd, 3)
	assert.Equal(t, "sh", cmd[0])
	assert.Contains(t, cmd[2], "claude -p --dangerously-skip-permissions")
	assert.NotContains(t, cmd[2], "--model")

	cmd, err = DefaultCommand(role.BackendCodex, "gpt-5", false)
	require.NoError(t, err)
	assert.Contains(t, cmd[2], "codex exec --json")
	assert.Contains(t, cmd[2], "--model 'gpt-5'")
}

func TestDefaultCommandUnsupportedBackend(t *testing.T) {
	_, err := DefaultCommand(role.Backend("unknown"), "", false)
	assert.Error(t, err)
}

func TestRoleCommandPrefersOverride(t *testing.T) {
	r := role.Spec{Backend: role.BackendClaude, Command: []string{"echo", "hi"}}
	cmd, err := RoleCommand(r, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, cmd)
}

func TestBuildHeartbeatScriptDebugAddsMarkersAndMergesStderr(t *testing.T) {
	script := BuildHeartbeatScript(`echo hi`, true)
	assert.Contains(t, script, "[DEBUG:CMD_START]")
	assert.Contains(t, script, "2>&1 < /dev/null")

	plain := BuildHeartbeatScript(`echo hi`, false)
	assert.NotContains(t, plain, "[DEBUG:")
	assert.Contains(t, plain, "< /dev/null")
	assert.Contains(t, plain, "[TASK_DONE]")
	assert.Contains(t, plain, "[TASK_FAILED]")
}
