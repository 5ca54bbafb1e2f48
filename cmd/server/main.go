package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-catalog/internal/auth"
	"github.com/p-n-ai/pai-catalog/internal/content"
	"github.com/p-n-ai/pai-catalog/internal/curriculum"
	"github.com/p-n-ai/pai-catalog/internal/dataserver"
	"github.com/p-n-ai/pai-catalog/internal/live"
	"github.com/p-n-ai/pai-catalog/internal/platform/cache"
	"github.com/p-n-ai/pai-catalog/internal/platform/config"
	"github.com/p-n-ai/pai-catalog/internal/platform/database"
	"github.com/p-n-ai/pai-catalog/internal/tracking"
	"github.com/p-n-ai/pai-catalog/internal/video"
)

const (
	sessionTTL    = 24 * time.Hour
	reportTimeout = 10 * time.Second
	syncTimeout   = 30 * time.Second
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the process logger. An unknown level falls back to info.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      newMux(a),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.Content.Watch {
		g.Go(func() error {
			if err := dataserver.Watch(gctx, a.catalog, dataserver.DefaultDebounce); err != nil {
				slog.Error("catalog watcher stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		a.live.Hub().CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

// catalogSync reloads the catalog and registers its videos with the tracking
// store, so reports for catalog resources are accepted.
type catalogSync struct {
	loader   *curriculum.Loader
	registry tracking.ResourceRegistry
}

func (c *catalogSync) Root() string {
	return c.loader.Root()
}

func (c *catalogSync) Reload() error {
	if err := c.loader.Reload(); err != nil {
		return err
	}
	return c.sync(context.Background())
}

func (c *catalogSync) sync(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, syncTimeout)
	defer cancel()
	if err := tracking.SyncCatalog(ctx, c.registry, c.loader.VideoResources()); err != nil {
		return fmt.Errorf("sync tracking resources: %w", err)
	}
	return nil
}

// app holds the wired components of the process.
type app struct {
	loader   *curriculum.Loader
	catalog  *catalogSync
	sessions auth.Store
	tracking *tracking.Handler
	live     *live.Handler
	checks   []readinessCheck
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp wires storage, the catalog backend and the live surface. Postgres and
// Redis are optional; without them tracking and sessions live in memory.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	loader, err := curriculum.NewLoader(cfg.Content.Root)
	if err != nil {
		return nil, err
	}
	a.loader = loader

	var (
		store    tracking.Store
		registry tracking.ResourceRegistry
		events   tracking.EventLogger
		onSignIn func(context.Context, auth.Session)
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		a.checks = append(a.checks, readinessCheck{"database", db.HealthCheck})

		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		pgStore, err := tracking.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		store, registry = pgStore, pgStore
		events = tracking.NewPostgresEventLogger(db.Pool)
	} else {
		slog.Warn("database disabled, tracking data is kept in memory")
		mem := tracking.NewMemoryStore()
		store, registry = mem, mem
		events = tracking.NopEventLogger{}
		// Without an account database, signed-in sessions are the only source
		// of users the tracking endpoint can authorize.
		onSignIn = func(_ context.Context, sess auth.Session) {
			mem.AddUser(sess.UserID, sess.Token)
		}
	}

	a.catalog = &catalogSync{loader: loader, registry: registry}
	if err := a.catalog.sync(ctx); err != nil {
		a.close()
		return nil, err
	}

	var (
		sessions  auth.Store
		bodyCache content.BodyCache
	)
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		a.checks = append(a.checks, readinessCheck{"cache", c.HealthCheck})

		sessions = auth.NewRedisStore(c, sessionTTL)
		bodyCache = content.NewRedisCache(c, cfg.Cache.TTL)
	} else {
		sessions = auth.NewMemoryStore()
		if !cfg.Content.Watch {
			// The memory cache never expires, so only a static catalog uses it.
			bodyCache = content.NewMemoryCache()
		}
	}

	opts := []content.Option{
		content.WithExtension(cfg.Content.Ext),
		content.WithHTTPClient(&http.Client{Timeout: cfg.Content.FetchTimeout}),
	}
	if bodyCache != nil {
		opts = append(opts, content.WithCache(bodyCache))
	}
	fetcher := content.NewClient(cfg.Content.BaseURL, opts...)

	trackingHandler, err := tracking.NewHandler(store, events)
	if err != nil {
		a.close()
		return nil, err
	}
	a.tracking = trackingHandler

	a.sessions = sessions
	a.live = live.NewHandler(live.Options{
		Fetcher:  fetcher,
		Reporter: video.NewHTTPReporter(cfg.Tracking.URL, video.WithHTTPClient(&http.Client{Timeout: reportTimeout})),
		Sessions: sessions,
		Debug:    cfg.Debug,
		Interval: cfg.Tracking.Interval,
		OnSignIn: onSignIn,
	})
	return a, nil
}

// newMux creates the HTTP router.
func newMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET "+dataserver.Prefix, dataserver.New(a.loader))
	mux.Handle("PATCH /api/videos/track", a.tracking)
	mux.Handle("GET /ws", a.live)
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *app) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range a.checks {
		if err := c.check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.name, "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "check": c.name})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
