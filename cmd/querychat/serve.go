package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/querychat/internal/config"
	"github.com/capitalize-ai/querychat/internal/handler"
	"github.com/capitalize-ai/querychat/internal/middleware"
	"github.com/capitalize-ai/querychat/pkg/logger"
	"github.com/capitalize-ai/querychat/pkg/tracing"
)

func newServeCommand(setup setupFunc) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway the browser UI talks to",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log, token)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token used to hydrate on start (default $QUERYCHAT_TOKEN)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, token string) error {
	log.Info("starting querychat gateway")

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "querychat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if token == "" {
		token = envToken()
	}
	if token != "" && cfg.HydrateOnStart {
		if err := a.auth.SetToken(token); err != nil {
			log.Warn("ignoring startup token", zap.Error(err))
		} else if err := a.store.HydrateFromRemote(ctx); err != nil {
			log.Warn("startup hydration failed", zap.Error(err))
		}
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      newRouter(cfg, a, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("server error", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return nil
}

func newRouter(cfg *config.Config, a *app, log *logger.Logger) http.Handler {
	checks := map[string]handler.ReadinessCheck{}
	if a.nats != nil {
		checks["nats"] = a.nats.Ping
	}
	healthHandler := handler.NewHealthHandler(checks)
	conversationHandler := handler.NewConversationHandler(a.store, log)
	sessionHandler := handler.NewSessionHandler(a.store, log)
	queryHandler := handler.NewQueryHandler(a.controller, log)
	streamHandler := handler.NewStreamHandler(a.events, handler.DefaultHeartbeatInterval, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(a.auth, log))

		r.Post("/session/hydrate", sessionHandler.Hydrate)
		r.Get("/events", streamHandler.Stream)

		r.With(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)).
			Post("/query", queryHandler.Submit)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Post("/load", conversationHandler.Load)
				r.Get("/context", conversationHandler.Context)
			})
		})
	})

	return r
}
