package swarmconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmcoord/internal/swarm/role"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
roles:
  - role_id: worker
    role_type: worker
    backend: claude
    count: 1
max_task_attempts: 3
`

func TestLoadAppliesDefaultsForAbsentFields(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MaxTasks)
	assert.Equal(t, 0.7, cfg.QualityThreshold)
	assert.Equal(t, "cl100k_base", cfg.TokenEncoding)
}

func TestLoadRejectsNoRoles(t *testing.T) {
	_, err := Load(writeConfig(t, "roles: []\n"))
	assert.Error(t, err)
}

func TestLoadRejectsMaxTaskAttemptsBelowOne(t *testing.T) {
	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, "max_task_attempts: 3", "max_task_attempts: 0", 1)))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownAuthorityRole(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+"authority_role: nonexistent\n"))
	assert.Error(t, err)
}

func TestLoadRejectsDuplicateRoleID(t *testing.T) {
	cfg := `
roles:
  - role_id: worker
    role_type: worker
    backend: claude
    count: 1
  - role_id: worker
    role_type: worker
    backend: claude
    count: 1
max_task_attempts: 3
`
	_, err := Load(writeConfig(t, cfg))
	assert.Error(t, err)
}

func TestLoadAcceptsValidAuthorityRole(t *testing.T) {
	cfg := minimalConfig + "authority_role: worker\n"
	loaded, err := Load(writeConfig(t, cfg))
	require.NoError(t, err)
	assert.Equal(t, "worker", loaded.AuthorityRole)
}

func TestEnvOverrideWinsOverFileAndDefault(t *testing.T) {
	t.Setenv("SWARMCOORD_MAX_TASK_ATTEMPTS", "5")
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxTaskAttempts)
}

func TestValidateRejectsQualityThresholdOutOfRange(t *testing.T) {
	cfg := defaults()
	cfg.Roles = []role.Spec{{RoleID: "worker", Type: role.TypeWorker}}
	cfg.QualityThreshold = 1.5
	assert.Error(t, Validate(cfg))
}

func TestLoadDefaultsMaxAgentRestarts(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxAgentRestarts)
}

func TestValidateRejectsNegativeMaxAgentRestarts(t *testing.T) {
	cfg := defaults()
	cfg.Roles = []role.Spec{{RoleID: "worker", Type: role.TypeWorker}}
	cfg.MaxAgentRestarts = -1
	assert.Error(t, Validate(cfg))
}

func TestEnvOverrideAppliesToMaxAgentRestarts(t *testing.T) {
	t.Setenv("SWARMCOORD_MAX_AGENT_RESTARTS", "9")
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.MaxAgentRestarts)
}
