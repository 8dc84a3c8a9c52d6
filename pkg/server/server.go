package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	handlers "github.com/de-tools/recon-atlas/pkg/handlers/session"
	"github.com/de-tools/recon-atlas/pkg/models/domain"
	"github.com/de-tools/recon-atlas/pkg/services/resolver"
	"github.com/de-tools/recon-atlas/pkg/services/rules"
	"github.com/de-tools/recon-atlas/pkg/services/session"
	reconmiddleware "github.com/de-tools/recon-atlas/pkg/server/middleware"
)

type WebAPI struct {
	router          *chi.Mux
	logger          *zerolog.Logger
	server          *http.Server
	shutdownTimeout time.Duration
	cancelRuns      context.CancelFunc
}

type Dependencies struct {
	Sessions session.Controller
	Resolver resolver.Resolver
	Registry rules.Registry
	Features domain.FeatureFlags
	Logger   zerolog.Logger
}

type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	Dependencies    Dependencies
}

// ConfigureRouter builds the API router. Background runs use runCtx.
func ConfigureRouter(runCtx context.Context, config Config) *chi.Mux {
	deps := config.Dependencies
	sessionRouter := handlers.NewSessionRouter(runCtx, deps.Sessions, deps.Resolver, deps.Registry, deps.Features)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(reconmiddleware.Logger(&deps.Logger))
	router.Use(middleware.Recoverer)

	router.Route("/api/v1", sessionRouter.Routes)
	return router
}

func NewWebAPI(config Config) *WebAPI {
	logger := config.Dependencies.Logger
	runCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	router := ConfigureRouter(runCtx, config)

	return &WebAPI{
		router:          router,
		logger:          &logger,
		shutdownTimeout: config.ShutdownTimeout,
		cancelRuns:      cancel,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (w *WebAPI) Handler() http.Handler {
	return w.router
}

// Start serves until ctx is done, then shuts down gracefully and cancels
// the runs still in flight.
func (w *WebAPI) Start(ctx context.Context) error {
	defer w.cancelRuns()

	serverErrors := make(chan error, 1)
	go func() {
		w.logger.Info().Str("addr", w.server.Addr).Msg("starting server")
		serverErrors <- w.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		w.logger.Info().Msg("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownTimeout)
		defer cancel()

		err := w.server.Shutdown(shutdownCtx)
		if err != nil {
			w.logger.Error().Err(err).Msg("graceful shutdown failed")
			err = w.server.Close()
		}
		return err
	}
}
