package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/finchat/internal/cli"
	"github.com/aretw0/finchat/internal/logging"
	httpAdapter "github.com/aretw0/finchat/pkg/adapters/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves POST /api/query and the supporting endpoints. The tool provider is started on the first query and shut down with the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cfg, logger, err := buildApp(cmd, true)
		if err != nil {
			return err
		}
		defer func() {
			if err := app.Close(); err != nil {
				logger.Warn("Shutdown incomplete", "error", err)
			}
		}()

		opts := []httpAdapter.Option{
			httpAdapter.WithLogger(logging.Component(logger, "http")),
			httpAdapter.WithStaticDir(cfg.HTTP.StaticDir),
			httpAdapter.WithMetrics(app.Metrics.Handler()),
			httpAdapter.WithHealthCheck(app.Health),
			httpAdapter.WithQueryTimeout(cfg.HTTP.QueryTimeout),
			httpAdapter.WithInfo(map[string]any{
				"model":    app.Model,
				"max_hops": app.Agent.MaxHops(),
				"store":    cfg.Store.Driver,
			}),
		}
		if app.Publisher != nil {
			opts = append(opts, httpAdapter.WithPublisher(app.Publisher))
		}
		handler, err := httpAdapter.NewHandler(app.Agent, opts...)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("Starting finchat server", "addr", srv.Addr, "model", app.Model, "store", cfg.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-ctx.Done():
			logger.Info("Start shutdown", "signal", ctx.Signal())

			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", 5*time.Second, "error", err)
				if err := srv.Close(); err != nil {
					logger.Error("Error killing server", "error", err)
				}
			}
			logger.Info("finchat server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from http.addr)")
	bindLocal(serveCmd, "http.addr", "addr")
}

func bindLocal(cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}
