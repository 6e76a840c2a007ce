package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"swarmcoord/internal/swarm/ipc"
	"swarmcoord/internal/swarm/layout"
	"swarmcoord/internal/swarm/statewriter"
)

func newStatusCommand() *cobra.Command {
	var runDir string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a run's current state from its state.json snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(runDir) == "" {
				return fmt.Errorf("--run-dir is required")
			}
			l := layout.New(runDir)
			if !l.Exists() {
				return fmt.Errorf("no run found at %s (missing manifest.json)", runDir)
			}

			var snap statewriter.Snapshot
			if err := ipc.ReadJSON(l.State, &snap); err != nil {
				return fmt.Errorf("read state: %w", err)
			}

			printSnapshot(cmd.OutOrStdout(), snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Run directory to inspect")
	return cmd
}

func printSnapshot(w io.Writer, snap statewriter.Snapshot) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", bold("phase:"), statusColor(snap.Status.Phase))
	printKV(&b, "seq", snap.Seq)
	printKV(&b, "timestamp", snap.Timestamp.Format("2006-01-02T15:04:05Z07:00"))

	b.WriteString(bold("tasks by status:\n"))
	statuses := make([]string, 0, len(snap.Status.QueueStats))
	for s := range snap.Status.QueueStats {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		printKV(&b, s, snap.Status.QueueStats[s])
	}

	b.WriteString(bold("agents:\n"))
	for _, a := range snap.Agents {
		state := "idle"
		if !a.Running {
			state = red("exited")
		} else if a.Restarts > 0 {
			state = yellow(fmt.Sprintf("running (restarts=%d)", a.Restarts))
		} else {
			state = green("running")
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", a.AgentID, a.RoleID, state)
	}

	if len(snap.Errors) > 0 {
		b.WriteString(bold("recent errors:\n"))
		for _, e := range tail(snap.Errors, 5) {
			fmt.Fprintf(&b, "  %s\n", red(e))
		}
	}

	budget, _ := snap.Status.Budget["tokens_used"]
	if budget != nil {
		printKV(&b, "tokens_used", budget)
	}

	fmt.Fprint(w, b.String())
}

func tail(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
