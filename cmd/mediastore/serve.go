package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/spf13/cobra"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/simple-media/pkg/mediastore"
	"github.com/tendant/simple-media/pkg/mediastore/api"
	"github.com/tendant/simple-media/pkg/mediastore/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			var extra []config.Option
			if port != "" {
				extra = append(extra, config.WithPort(port))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, cfg, logger, cleanup, err := root.buildService(ctx, extra...)
			if err != nil {
				return err
			}
			defer cleanup()

			handler, err := newRouter(cfg, svc, logger)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, handler, logger)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides PORT)")
	return cmd
}

// newRouter assembles the HTTP handler: health checks, blob retrieval and
// the owner API behind the configured authentication.
func newRouter(cfg *config.ServerConfig, svc mediastore.Service, logger *slog.Logger) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(api.RequestIDMiddleware)
	r.Use(api.RecoveryMiddleware(logger))
	r.Use(api.LoggingMiddleware(logger))

	app.RoutesHealthz(r)
	app.RoutesHealthzReady(r)

	var auth []func(http.Handler) http.Handler
	if cfg.APIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"mediastore": cfg.APIKeySHA256,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("initialize API key middleware: %w", err)
		}
		auth = append(auth, apiKeyMiddleware)
	}
	if cfg.JWTSecret != "" {
		tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
		auth = append(auth, jwtauth.Verifier(tokenAuth), jwtauth.Authenticator)
	}

	handler := api.NewMediaHandler(svc,
		api.WithHandlerLogger(logger),
		api.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	r.Route(apiBasePath(cfg.APIBaseURL), func(r chi.Router) {
		handler.RegisterBlobRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth...)
			handler.RegisterOwnerRoutes(r)
		})
	})
	return r, nil
}

// apiBasePath returns the path component of the configured API base URL,
// which may be absolute ("https://api.example.com/api/v1") or a path.
func apiBasePath(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Path == "" || u.Path == "/" {
		return mediastore.DefaultAPIBaseURL
	}
	return u.Path
}

func serve(ctx context.Context, cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("media store starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType,
			"image_storage", cfg.StorageBackends[mediastore.MediaKindImage].Type,
			"video_storage", cfg.StorageBackends[mediastore.MediaKindVideo].Type,
			"cache", cfg.CacheType,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}
