package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"swarmcoord/internal/swarm/coordinator"
	"swarmcoord/internal/swarm/metrics"
	"swarmcoord/internal/swarm/swarmconfig"
)

func newRunCommand() *cobra.Command {
	var (
		configPath  string
		goal        string
		runDir      string
		projectRoot string
		resume      bool
		logLevel    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start or resume a coordinator run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(runDir) == "" {
				return fmt.Errorf("--run-dir is required")
			}
			if !resume && strings.TrimSpace(goal) == "" {
				return fmt.Errorf("--goal is required for a fresh run (or pass --resume)")
			}

			cfg, err := swarmconfig.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(logLevel)})
			logger := slog.New(handler)

			m := metrics.NewMetrics()
			if metricsAddr != "" {
				go serveMetrics(logger, metricsAddr)
			}

			c, err := coordinator.New(cfg, coordinator.Options{
				Goal:        goal,
				RunDir:      runDir,
				ProjectRoot: projectRoot,
				Resume:      resume,
				Logger:      logger,
				Metrics:     m,
			})
			if err != nil {
				return fmt.Errorf("init coordinator: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := c.Run(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", red("run failed:"), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s run complete\n", green("done:"))
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the swarm config YAML")
	cmd.Flags().StringVar(&goal, "goal", "", "Goal to decompose into tasks (fresh runs only)")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Run directory (manifest, agent ipc, state, events live here)")
	cmd.Flags().StringVar(&projectRoot, "project-root", ".", "Project root agents operate against")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume an existing run from its manifest")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on, e.g. :9090")
	return cmd
}

func serveMetrics(logger *slog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
