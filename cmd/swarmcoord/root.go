package main

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the swarmcoord CLI: run starts (or resumes) a
// coordinator run, status inspects an existing run directory without
// starting one.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "swarmcoord",
		Short: "Hybrid multi-agent coding coordinator",
		Long: bold("swarmcoord") + ` drives a roster of coding-agent CLI subprocesses
through a task DAG: it decomposes a goal into tasks, dispatches them to
worker agents over a file-based IPC bus, routes completed work through a
review/merge pipeline, and watches every agent's heartbeat for silent
failure.`,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newStatusCommand())
	return root
}
