package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yegors/atlas/internal/api"
	"github.com/yegors/atlas/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.config.Server.Addr()
			}
			log := a.logger.Named("server")

			sessions := api.NewSessionStore(a.config.Server.MaxSessions, a.config.Server.SessionTTL(), a.logger)
			router := api.NewRouter(a.pipeline, sessions, a.records, a.config, a.logger)

			srv := &http.Server{
				Addr:         addr,
				Handler:      router.Routes(),
				ReadTimeout:  time.Duration(a.config.Server.ReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(a.config.Server.WriteTimeoutSeconds) * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownErr := make(chan error, 1)
			go func() {
				<-ctx.Done()
				log.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				shutdownErr <- srv.Shutdown(shutdownCtx)
			}()

			log.Info("Starting server",
				logger.String("addr", addr),
				logger.Bool("hybrid", a.config.Parser.EnableHybrid),
				logger.Bool("trace", a.config.Trace.Enabled),
				logger.Bool("storage", a.config.Storage.Enabled),
				logger.Int("max_sessions", a.config.Server.MaxSessions))

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve: %w", err)
			}
			if err := <-shutdownErr; err != nil {
				return fmt.Errorf("failed to shut down server: %w", err)
			}
			log.Info("Server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.host:server.port)")
	return cmd
}
