package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// isTTY reports whether stdout is an interactive terminal rather than a
// pipe or redirected file.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func init() {
	if !isTTY() {
		color.NoColor = true
	}
}

// Color helpers for the CLI's status/error output.
var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func statusColor(phase string) string {
	switch phase {
	case "completed":
		return green(phase)
	case "failed":
		return red(phase)
	case "running":
		return blue(phase)
	default:
		return yellow(phase)
	}
}

func printKV(w *strings.Builder, key string, value any) {
	fmt.Fprintf(w, "  %s: %v\n", gray(key), value)
}
