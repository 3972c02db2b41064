package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modahaus/storefront/internal/config"
	"github.com/modahaus/storefront/internal/middleware"
)

type application struct {
	logger *slog.Logger

	router   chi.Router
	httpSrv  *http.Server
	starters []Starter
	closers  []Closer
}

func New(logger *slog.Logger, cfg config.Config) *application {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics)
	router.Use(chimw.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Cors.AllowedOrigins,
	}))

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Handler: router,
		Addr:    net.JoinHostPort(cfg.Http.Host, cfg.Http.Port),
	}

	return &application{
		logger:  logger,
		httpSrv: httpSrv,
		router:  router,
	}
}

type HTTPHandler interface {
	Init(r chi.Router)
}

func (a *application) SetHTTPHandlers(handlers ...HTTPHandler) {
	for _, h := range handlers {
		h.Init(a.router)
	}
}

// Starter is a background component tied to the application lifetime.
type Starter interface {
	Start(ctx context.Context) error
}

func (a *application) SetStarters(starters ...Starter) {
	a.starters = starters
}

type Closer interface {
	Close() error
}

func (a *application) SetClosers(closers ...Closer) {
	a.closers = closers
}

func (a *application) Start(ctx context.Context) error {
	for _, s := range a.starters {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}

	go a.startServer()

	a.logger.Info("application started")
	return nil
}

func (a *application) startServer() {
	a.logger.Info("starting http server", slog.String("addr", a.httpSrv.Addr))
	if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error("failed to start http server", slog.Any("error", err))
	}
}

const gracefulShutdownTimeout = 5 * time.Second

func (a *application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		return err
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("failed to close component", slog.Any("error", err))
		}
	}

	a.logger.Info("application stopped")
	return nil
}
