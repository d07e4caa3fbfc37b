package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"datacite-api/internal/authz"
	"datacite-api/internal/logger"
	"datacite-api/internal/metrics"
	"datacite-api/internal/server"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Development(), cfg.LogLevel)
			if err != nil {
				return err
			}
			defer log.Sync()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			m := metrics.New(reg)

			client, err := newDataCiteClient(cfg, log, m)
			if err != nil {
				return err
			}
			gate := authz.NewGate(authz.Config{
				NoAuth:         cfg.NoAuth,
				AccountsAPIURL: cfg.AccountsAPIURL,
				Audience:       cfg.OAuth2Audience,
				Scope:          cfg.OAuth2Scope,
				AllowedRoles:   cfg.AllowedRoles,
				Development:    cfg.Development(),
				Logger:         log,
				Metrics:        m,
			})
			if !gate.Enabled() {
				log.Warn("authorization is disabled; every request is allowed")
			}
			handler, err := server.New(server.Config{
				Registry: client,
				Auth:     gate,
				BasePath: cfg.BasePath,
				Version:  version,
				Logger:   log,
				Metrics:  m,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.Addr(),
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("serving DataCite API",
					zap.String("addr", cfg.Addr()),
					zap.String("base_path", cfg.BasePath),
					zap.String("env", string(cfg.ServerEnv)),
					zap.String("datacite", client.BaseURL()),
					zap.String("prefix", client.Prefix()),
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				log.Info("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}
}
