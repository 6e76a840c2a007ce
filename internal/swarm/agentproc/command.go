package agentproc

import (
	"fmt"

	"swarmcoord/internal/swarm/role"
)

// StripEnvVars names process-identity variables inherited from the
// coordinator's own environment that must not leak into a spawned agent
// (an agent CLI that detects it is itself running inside a coding-agent
// session behaves differently, e.g. refusing nested invocation).
var StripEnvVars = map[string]bool{
	"CLAUDECODE":              true,
	"CLAUDE_CODE_ENTRYPOINT":  true,
	"CLAUDE_REPL":             true,
	"CLAUDE_CODE_PACKAGE_DIR": true,
}

// BuildHeartbeatScript wraps agentCmd with a background heartbeat and stdin
// isolation: an immediate "[HEARTBEAT]" on startup, a 5-second heartbeat
// loop while agentCmd runs, stdin redirected from /dev/null so the agent
// can't consume a later task line, and "[TASK_DONE]"/"[TASK_FAILED]" on the
// wrapped command's exit code. When debug is true, "[DEBUG:*]" markers are
// added and the agent's stderr is merged into stdout.
func BuildHeartbeatScript(agentCmd string, debug bool) string {
	if debug {
		return "echo \"[HEARTBEAT]\"; " +
			"while IFS= read -r line; do " +
			"[ -z \"$line\" ] && continue; " +
			"echo \"[DEBUG:STDIN_READ] $(date +%s) len=${#line}\"; " +
			"(while true; do sleep 5; echo \"[HEARTBEAT]\"; done) & " +
			"_hb=$!; " +
			"echo \"[DEBUG:CMD_START] $(date +%s)\"; " +
			agentCmd + " 2>&1 < /dev/null; " +
			"_rc=$?; " +
			"echo \"[DEBUG:CMD_EXIT] $(date +%s) rc=$_rc\"; " +
			"kill $_hb 2>/dev/null; wait $_hb 2>/dev/null; " +
			"if [ $_rc -eq 0 ]; then echo \"[TASK_DONE]\"; else echo \"[TASK_FAILED]\"; fi; " +
			"done"
	}
	return "echo \"[HEARTBEAT]\"; " +
		"while IFS= read -r line; do " +
		"[ -z \"$line\" ] && continue; " +
		"(while true; do sleep 5; echo \"[HEARTBEAT]\"; done) & " +
		"_hb=$!; " +
		agentCmd + " < /dev/null; " +
		"_rc=$?; " +
		"kill $_hb 2>/dev/null; wait $_hb 2>/dev/null; " +
		"if [ $_rc -eq 0 ]; then echo \"[TASK_DONE]\"; else echo \"[TASK_FAILED]\"; fi; " +
		"done"
}

// shellQuote does minimal POSIX single-quote escaping, equivalent to
// Python's shlex.quote for the model strings this package ever passes.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	out := "'"
	for _, r := range s {
		if r == '\'' {
			out += `'\''`
		} else {
			out += string(r)
		}
	}
	return out + "'"
}

// DefaultCommand resolves the shell invocation for a backend/model pair
// when a role carries no explicit command override.
func DefaultCommand(backend role.Backend, model string, debug bool) ([]string, error) {
	modelFlag := ""
	if model != "" {
		modelFlag = fmt.Sprintf("--model %s ", shellQuote(model))
	}

	var agentCmd string
	switch backend {
	case role.BackendClaude:
		agentCmd = fmt.Sprintf(`claude -p %s--dangerously-skip-permissions "$line"`, modelFlag)
	case role.BackendCodex:
		agentCmd = fmt.Sprintf(`codex exec --json --skip-git-repo-check --sandbox workspace-write %s"$line"`, modelFlag)
	case role.BackendAider:
		agentCmd = fmt.Sprintf(`aider %s--message "$line"`, modelFlag)
	case role.BackendAttocode:
		agentCmd = fmt.Sprintf(`attocode %s--non-interactive "$line"`, modelFlag)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
	return []string{"sh", "-c", BuildHeartbeatScript(agentCmd, debug)}, nil
}

// RoleCommand resolves the command a role's agents should run: an explicit
// override from the role spec if present, otherwise DefaultCommand.
func RoleCommand(r role.Spec, debug bool) ([]string, error) {
	if len(r.Command) > 0 {
		return r.Command, nil
	}
	return DefaultCommand(r.Backend, r.Model, debug)
}
