// Package bootstrap assembles the server: config, logging, store,
// recovery, registry, engine, and transports, in that order.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskweave/taskweave/pkg/engine"
	"github.com/taskweave/taskweave/pkg/logger"
	"github.com/taskweave/taskweave/pkg/observability/metrics"
	"github.com/taskweave/taskweave/pkg/recovery"
	"github.com/taskweave/taskweave/pkg/registry"
	"github.com/taskweave/taskweave/pkg/service/config"
	"github.com/taskweave/taskweave/pkg/service/httpapi"
	"github.com/taskweave/taskweave/pkg/service/mcpserver"
	"github.com/taskweave/taskweave/pkg/store"
	"github.com/taskweave/taskweave/pkg/store/bunstore"
	"github.com/taskweave/taskweave/pkg/tools"
)

// Version is stamped at build time.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Run starts the server and blocks until ctx is cancelled or a transport
// fails. Recovery runs before any new work is accepted.
func Run(ctx context.Context, cfg *config.Config) error {
	log := logger.New(cfg.LogLevel)
	log.Info().
		Str("version", Version).
		Str("transport", cfg.Transport).
		Msg("Starting taskweave")

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("Failed to close store")
		}
	}()

	report, err := recovery.New(st, log).Recover(ctx)
	if err != nil {
		return err
	}
	if len(report.WorkflowIDs) > 0 {
		log.Info().Strs("workflow_ids", report.WorkflowIDs).Msg("Workflows reset to PENDING after restart")
	}

	reg := registry.New(log)
	if err := tools.RegisterBuiltins(reg); err != nil {
		return err
	}

	m := metrics.New()
	eng := engine.New(reg, st, log,
		engine.WithMaxConcurrency(cfg.MaxConcurrency),
		engine.WithDeadline(cfg.WorkflowDeadline),
		engine.WithEventBuffer(cfg.EventBuffer),
		engine.WithMetrics(m),
	)

	errCh := make(chan error, 2)

	var httpServer *http.Server
	if cfg.Transport == config.TransportHTTP || cfg.Transport == config.TransportBoth {
		api := httpapi.New(eng, reg, st, m, log)
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
			if serr := httpServer.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				errCh <- serr
			}
		}()
	}

	if cfg.Transport == config.TransportStdio || cfg.Transport == config.TransportBoth {
		mcp := mcpserver.New(eng, reg, st, Version, log)
		go func() {
			log.Info().Msg("MCP stdio transport serving")
			if serr := mcp.ServeStdio(); serr != nil {
				errCh <- serr
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("Transport failed")
		return err
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
			log.Error().Err(serr).Msg("HTTP shutdown failed")
			return serr
		}
	}
	log.Info().Msg("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("No database configured, using in-memory store")
		return store.NewMemory(), nil
	}
	return bunstore.Open(ctx, cfg.DatabaseURL, log)
}
