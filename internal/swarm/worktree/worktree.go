// Package worktree resolves each agent's working directory and owns the
// git-worktree mechanics behind the "worktree" workspace mode. It supports
// four modes: shared_rw, shared_ro, worktree, and isolated.
package worktree

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Mode selects how an agent's working directory relates to the project's
// primary checkout.
type Mode string

const (
	// ModeSharedRW gives every agent the project root directly; concurrent
	// writers can race, so this mode suits a single worker or read-mostly
	// roles (judge/critic/analysis).
	ModeSharedRW Mode = "shared_rw"
	// ModeSharedRO is the same directory, but Ensure refuses to create it
	// for a role that declares write access — there is no portable
	// userspace read-only bind mount, so this is an agreement enforced at
	// assignment time rather than an OS-level guarantee.
	ModeSharedRO Mode = "shared_ro"
	// ModeWorktree gives each agent its own `git worktree` checkout sharing
	// the same object store and history as the project root.
	ModeWorktree Mode = "worktree"
	// ModeIsolated copies the project root into a scratch directory with no
	// git relationship back to it at all.
	ModeIsolated Mode = "isolated"
)

// Manager resolves and tears down per-agent working directories rooted at
// ProjectRoot, using WorktreeDir (layout.Layout.Worktrees) to hold
// git-worktree checkouts and isolated copies.
type Manager struct {
	ProjectRoot string
	WorktreeDir string

	mu      sync.Mutex
	created map[string]string // agentID -> path, for Cleanup
}

// NewManager constructs a Manager. projectRoot must already be a git
// repository for ModeWorktree to succeed.
func NewManager(projectRoot, worktreeDir string) *Manager {
	return &Manager{ProjectRoot: projectRoot, WorktreeDir: worktreeDir, created: map[string]string{}}
}

// Ensure resolves (creating if necessary) the working directory for
// agentID under mode. writeAccess is the role's declared need to write;
// ModeSharedRO refuses to serve a write-access role.
func (m *Manager) Ensure(agentID string, mode Mode, writeAccess bool) (string, error) {
	switch mode {
	case ModeSharedRW:
		return m.ProjectRoot, nil
	case ModeSharedRO:
		if writeAccess {
			return "", fmt.Errorf("worktree: role %s declares write access but is assigned shared_ro", agentID)
		}
		return m.ProjectRoot, nil
	case ModeWorktree:
		return m.ensureGitWorktree(agentID)
	case ModeIsolated:
		return m.ensureIsolatedCopy(agentID)
	default:
		return "", fmt.Errorf("worktree: unknown mode %q", mode)
	}
}

func (m *Manager) agentPath(agentID string) string {
	return filepath.Join(m.WorktreeDir, agentID)
}

func (m *Manager) ensureGitWorktree(agentID string) (string, error) {
	path := m.agentPath(agentID)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		m.remember(agentID, path)
		return path, nil
	}
	branch := "swarm/" + agentID
	if _, err := m.git("worktree", "add", "-B", branch, path, "HEAD"); err != nil {
		return "", fmt.Errorf("worktree: git worktree add for %s: %w", agentID, err)
	}
	m.remember(agentID, path)
	return path, nil
}

func (m *Manager) ensureIsolatedCopy(agentID string) (string, error) {
	path := m.agentPath(agentID)
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		m.remember(agentID, path)
		return path, nil
	}
	if err := copyTree(m.ProjectRoot, path); err != nil {
		return "", fmt.Errorf("worktree: isolated copy for %s: %w", agentID, err)
	}
	m.remember(agentID, path)
	return path, nil
}

func (m *Manager) remember(agentID, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created[agentID] = path
}

// Cleanup removes every worktree/isolated directory this Manager created
// this run. git worktrees are removed with `git worktree remove --force`;
// isolated copies are removed directly. Errors for one agent don't stop
// cleanup of the rest — they're collected and returned together.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	entries := make(map[string]string, len(m.created))
	for k, v := range m.created {
		entries[k] = v
	}
	m.mu.Unlock()

	var errs []string
	for agentID, path := range entries {
		if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
			if _, gitErr := m.git("worktree", "remove", "--force", path); gitErr != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", agentID, gitErr))
				continue
			}
		} else if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", agentID, err))
			continue
		}
		m.mu.Lock()
		delete(m.created, agentID)
		m.mu.Unlock()
	}
	if len(errs) > 0 {
		return fmt.Errorf("worktree cleanup: %s", strings.Join(errs, "; "))
	}
	return nil
}

// git runs a git subcommand rooted at ProjectRoot via `git -C <root>`.
func (m *Manager) git(args ...string) (string, error) {
	fullArgs := append([]string{"-C", m.ProjectRoot}, args...)
	cmd := exec.Command("git", fullArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// copyTree recursively copies src into dst, preserving file modes. Used
// only for ModeIsolated, which deliberately has no git relationship back
// to the project root.
func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if strings.Contains(path, string(filepath.Separator)+".git") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
