// Command taskweave-server runs the workflow engine with its HTTP and
// MCP transports.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/pkg/service/bootstrap"
	"github.com/taskweave/taskweave/pkg/service/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath     string
		httpAddr       string
		transport      string
		databaseURL    string
		logLevel       string
		maxConcurrency int
		deadline       time.Duration
	)

	cmd := &cobra.Command{
		Use:           "taskweave-server",
		Short:         "Workflow engine for tool DAGs",
		Version:       bootstrap.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Explicit flags win over file and environment.
			flags := cmd.Flags()
			if flags.Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if flags.Changed("transport") {
				cfg.Transport = transport
			}
			if flags.Changed("database-url") {
				cfg.DatabaseURL = databaseURL
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("max-concurrency") {
				cfg.MaxConcurrency = maxConcurrency
			}
			if flags.Changed("workflow-deadline") {
				cfg.WorkflowDeadline = deadline
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return bootstrap.Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP API listen address")
	cmd.Flags().StringVar(&transport, "transport", config.TransportHTTP, "transport: http, stdio, or both")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres DSN (empty for in-memory store)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "max concurrently executing nodes (0 = unbounded)")
	cmd.Flags().DurationVar(&deadline, "workflow-deadline", 0, "per-workflow deadline (0 = none)")
	return cmd
}
