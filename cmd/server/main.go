package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-pages/pkg/simplepages/api"
	"github.com/tendant/simple-pages/pkg/simplepages/config"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		if help, herr := config.EnvHelp(); herr == nil {
			os.Stderr.WriteString(help)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.ServerConfig) *slog.Logger {
	if cfg.Environment == "development" {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func run(cfg *config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stack, err := cfg.Build(ctx, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Error("Failed to release resources", "err", err)
		}
	}()

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		stack.RunWorker(workerCtx)
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(stack, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Simple Pages server starting",
			"port", cfg.Port,
			"env", cfg.Environment,
			"database", cfg.DatabaseType,
			"counter_mode", cfg.CounterMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Requests are finished, so no more jobs are published.
	if err := drainCounters(stack, workerDone, stopWorker, 10*time.Second, logger); err != nil {
		return err
	}

	logger.Info("Server exiting")
	return nil
}

// drainCounters closes the counter queue so the worker applies every job
// already queued, and waits for it to stop. The worker is cancelled only when
// the timeout expires first; jobs it had not received are then lost for the
// memory queue and stay on the list for the redis one.
func drainCounters(stack *config.Stack, done <-chan struct{}, cancel context.CancelFunc, timeout time.Duration, logger *slog.Logger) error {
	if stack.Queue != nil {
		if err := stack.Queue.Close(); err != nil {
			logger.Error("Failed to close counter queue", "err", err)
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	}

	logger.Warn("Counter worker did not drain in time, cancelling", "timeout", timeout.String())
	cancel()
	<-done
	return errors.New("counter queue not drained before shutdown timeout")
}

// NewRouter mounts health, metrics and the pages API.
func NewRouter(stack *config.Stack, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	app.RoutesHealthz(r)
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := stack.Ready(r.Context()); err != nil {
			logger.Warn("Readiness check failed", "err", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.PlainText(w, r, http.StatusText(http.StatusServiceUnavailable))
			return
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/pages", api.NewPageHandler(stack.Service, logger).Routes())

	return r
}
