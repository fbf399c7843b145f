package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/and161185/topiclist/internal/remote"
	"github.com/and161185/topiclist/internal/remote/rest"
	"github.com/and161185/topiclist/internal/ui"
)

func uiCmd(a *app) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "ui",
		Short: "Serve the web UI",
		Long: `ui serves the checklist as a web page. Every browser gets its own backend
session kept in memory; the CLI session file is not used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(); err != nil {
				return err
			}
			cfg := a.cfg
			if listen != "" {
				cfg.UI.Listen = listen
			}

			newClient := func() (remote.Client, error) {
				return rest.New(rest.Config{
					URL:     cfg.Backend.URL,
					AnonKey: cfg.Backend.AnonKey,
					Timeout: cfg.Backend.Timeout,
				}, rest.WithLogger(a.log))
			}
			s, err := ui.NewServer(ui.ServerConfig{
				PublicURL:     cfg.UI.PublicURL,
				CookieSecure:  cfg.UI.CookieSecure,
				OAuthProvider: cfg.UI.OAuthProvider,
				MaxSessions:   cfg.UI.MaxSessions,
			}, newClient, a.log)
			if err != nil {
				return err
			}
			defer s.Close()

			srv := &http.Server{
				Addr:              cfg.UI.Listen,
				Handler:           s.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, a.log, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", cfg.UI.PublicURL)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides ui.listen")
	return cmd
}

// serve runs srv until ctx is cancelled and then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, log *zap.Logger, ready func()) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("ui listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	ready()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("ui: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("ui shutdown", zap.Error(err))
		return err
	}
	log.Info("ui stopped")
	return nil
}
