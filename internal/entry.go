// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/cdot/Squirrel-sub002/internal/api"
	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/sse"
	"github.com/cdot/Squirrel-sub002/internal/storage"
	"github.com/cdot/Squirrel-sub002/internal/vault"
	"github.com/cdot/Squirrel-sub002/internal/watcher"
)

// NewLogger returns the structured JSON logger used by every command.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// Vault is an opened vault service together with the stores behind it.
type Vault struct {
	Service *vault.Service
	Local   *storage.FS
	closers []func() error
}

// Close releases the cloud backend.
func (v *Vault) Close() error {
	var errs []error
	for _, c := range v.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// OpenVault builds the stores described by cfg and opens the vault
// service over them. Extra options are applied after the defaults.
func OpenVault(ctx context.Context, cfg *Config, logger *slog.Logger, opts ...vault.Option) (*Vault, error) {
	local, err := storage.NewFS(cfg.Local.Path)
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	v := &Vault{Local: local}

	svcOpts := []vault.Option{vault.WithLogger(logger)}
	if cfg.Cloud.Enabled() {
		cloud, closer, err := openCloud(&cfg.Cloud)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			v.closers = append(v.closers, closer)
		}
		svcOpts = append(svcOpts, vault.WithCloud(cloud, cfg.Cloud.Document))
	}
	svcOpts = append(svcOpts, opts...)

	v.Service = vault.New(local, cfg.Local.Document, svcOpts...)
	if err := v.Service.Open(ctx); err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}

func openCloud(cfg *CloudConfig) (storage.Provider, func() error, error) {
	switch cfg.Backend {
	case CloudFS:
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init cloud store: %w", err)
		}
		return fs, nil, nil
	case CloudSQLite:
		db, err := storage.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("init cloud store: %w", err)
		}
		return db, db.Close, nil
	case CloudHTTP:
		var opts []storage.HTTPOption
		if cfg.Token != "" {
			opts = append(opts, storage.WithToken(cfg.Token))
		}
		h, err := storage.NewHTTP(cfg.URL, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("init cloud store: %w", err)
		}
		return h, nil, nil
	}
	return nil, nil, fmt.Errorf("cloud backend %q: %w", cfg.Backend, apperr.ErrMalformed)
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(os.Stdout, cfg.App.LogLevel)
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("local_path", cfg.Local.Path),
		slog.String("cloud_backend", cfg.Cloud.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	vaultOpts := []vault.Option{vault.WithEvents(broker)}
	if app.clock != nil {
		vaultOpts = append(vaultOpts, vault.WithClock(app.clock))
	}
	v, err := OpenVault(ctx, cfg, logger, vaultOpts...)
	if err != nil {
		return err
	}
	defer v.Close()
	svc := v.Service

	var blobs storage.Provider
	if cfg.Store.Path != "" {
		blobStore, err := storage.NewFS(cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("init blob store: %w", err)
		}
		blobs = blobStore
	}

	apiRouter := api.NewRouter(svc, blobs, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := svc.Ready(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Reload when another process rewrites the local document.
	g.Go(func() error {
		if err := watcher.Watch(gCtx, v.Local.Root(), cfg.Local.Document, svc, watcher.DefaultDebounce, logger); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		every(gCtx, time.Duration(cfg.Alarms.Interval), func(ctx context.Context) {
			if _, err := svc.CheckAlarms(ctx); err != nil {
				logger.Warn("alarm scan failed", slog.String("error", err.Error()))
			}
		})
		return nil
	})

	if cfg.Sync.Interval > 0 && svc.HasCloud() {
		g.Go(func() error {
			every(gCtx, time.Duration(cfg.Sync.Interval), func(ctx context.Context) {
				rep, err := svc.Sync(ctx)
				if err != nil {
					logger.Warn("periodic sync failed", slog.String("error", err.Error()))
					return
				}
				logger.Debug("periodic sync",
					slog.Int("merged", rep.Merged),
					slog.Int("conflicts", len(rep.Conflicts)))
			})
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the background loops stop with the server.
var errShutdown = errors.New("shutdown")

// every calls fn each period until ctx is done.
func every(ctx context.Context, period time.Duration, fn func(context.Context)) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}
