package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/easeaico/scene-studio/internal/httpapi"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the inference and embeddings HTTP API",
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			ctx := cmd.Context()
			a.backend.Warm(ctx)

			srv := &http.Server{
				Addr:              addr,
				Handler:           httpapi.NewServer(a.orchestrator, a.backend, a.indexer).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("http server listening", "addr", addr, "remote", a.backend.UsingRemote(ctx))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("failed to serve: %w", err)
			case <-ctx.Done():
			}

			slog.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default LISTEN_ADDR or :3000)")
	return cmd
}
