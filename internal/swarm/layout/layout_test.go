package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureIsIdempotent(t *testing.T) {
	root := t.TempDir()
	l := New(root)

	require.NoError(t, l.Ensure())
	require.NoError(t, l.Ensure())

	for _, dir := range []string{l.Agents, l.Tasks, l.Worktrees, l.Logs, l.Locks} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.False(t, l.Exists())
}

func TestPathHelpers(t *testing.T) {
	l := New("/tmp/run")
	assert.Equal(t, filepath.Join("/tmp/run", "agents", "worker-1.inbox.json"), l.AgentInboxPath("worker-1"))
	assert.Equal(t, filepath.Join("/tmp/run", "tasks", "task-t0.json"), l.TaskPath("t0"))
}
