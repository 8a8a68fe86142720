// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crewsync/fieldnotify/internal/config"
	"github.com/crewsync/fieldnotify/internal/dedup"
	dedupPostgres "github.com/crewsync/fieldnotify/internal/dedup/postgres"
	"github.com/crewsync/fieldnotify/internal/directory"
	"github.com/crewsync/fieldnotify/internal/notify"
	"github.com/crewsync/fieldnotify/internal/pkg/ctxlog"
	"github.com/crewsync/fieldnotify/internal/pkg/httputil"
	"github.com/crewsync/fieldnotify/internal/pkg/metrics"
	"github.com/crewsync/fieldnotify/internal/pkg/postgres"
	"github.com/crewsync/fieldnotify/internal/ratelimit"
	"github.com/crewsync/fieldnotify/internal/sender/push"
	"github.com/crewsync/fieldnotify/internal/sender/realtime"
	"github.com/crewsync/fieldnotify/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	statusWriter  *dedup.Writer
	sweeper       *dedup.Sweeper
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	var db *pgxpool.Pool
	if cfg.Dedup.PersistentStorage {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("migrate database: %w", err)
		}

		connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
		defer connectCancel()

		var err error
		db, err = postgres.Connect(connectCtx, postgres.Config{
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnectAttempts: cfg.Database.ConnectAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	} else {
		slog.Warn("persistent storage disabled: dedup is limited to this process lifetime")
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	if db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	router, err := app.setupRouter()
	if err != nil {
		if db != nil {
			db.Close()
		}
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	// Stop background loops after the request path has drained so
	// in-flight decisions can still enqueue status updates.
	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.statusWriter != nil {
		a.statusWriter.Stop()
	}

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	// Durable tier is optional; with it disabled the store runs on the
	// fast tier alone.
	var repo dedup.Repository
	if a.db != nil {
		pgRepo := dedupPostgres.NewRepository(a.db)
		repo = pgRepo

		a.statusWriter = dedup.NewWriter(dedup.WriterConfig{
			QueueSize:         a.config.StatusWriter.QueueSize,
			NumWorkers:        a.config.StatusWriter.NumWorkers,
			MaxAttempts:       a.config.StatusWriter.MaxAttempts,
			InitialBackoff:    a.config.StatusWriter.InitialBackoff,
			MaxBackoff:        a.config.StatusWriter.MaxBackoff,
			BackoffMultiplier: a.config.StatusWriter.BackoffMultiplier,
		}, pgRepo)
		a.statusWriter.Start()
	}

	storeOpts := []dedup.StoreOption{}
	if a.statusWriter != nil {
		storeOpts = append(storeOpts, dedup.WithWriter(a.statusWriter))
	}
	store := dedup.NewStore(repo, a.config.Dedup.MaxHistoryAge, storeOpts...)

	scopes := make(map[string]ratelimit.Scope, len(a.config.RateLimits))
	for name, rl := range a.config.RateLimits {
		scopes[name] = ratelimit.Scope{Limit: rl.Limit, Window: rl.Window}
	}
	limiter := ratelimit.New(scopes)

	a.sweeper = dedup.NewSweeper(a.config.Dedup.CleanupInterval, store, limiter)
	a.sweeper.Start()

	tracker := notify.NewTracker(store, a.config.Dedup.MaxHistoryAge)
	engine := notify.NewEngine(a.config.Dedup, store, limiter, tracker)

	slog.Info("channels configured",
		"push_enabled", a.config.Channels.Push.Enabled,
		"realtime_enabled", a.config.Channels.Realtime.Enabled,
	)

	var senders []notify.Sender

	pushSender, err := push.NewSender(push.Config{
		Enabled:     a.config.Channels.Push.Enabled,
		ProviderURL: a.config.Channels.Push.ProviderURL,
		APIKey:      a.config.Channels.Push.APIKey,
		Timeout:     a.config.Channels.Push.Timeout,
		RateLimit:   a.config.Channels.Push.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create push sender: %w", err)
	}
	if !a.config.Channels.Push.Enabled {
		slog.Warn("push sender is disabled: push notifications will not be sent")
	}
	senders = append(senders, pushSender)

	realtimeSender := realtime.NewSender(realtime.Config{
		Enabled: a.config.Channels.Realtime.Enabled,
		Timeout: a.config.Channels.Realtime.Timeout,
	})
	if !a.config.Channels.Realtime.Enabled {
		slog.Warn("realtime sender is disabled: in-app notifications will not be sent")
	}
	senders = append(senders, realtimeSender)

	directoryClient := directory.NewClient(directory.Config{
		BaseURL: a.config.Directory.URL,
		Timeout: a.config.Directory.Timeout,
	})

	dispatcher := notify.NewDispatcher(directoryClient, tracker, senders...)
	handler := notify.NewHandler(engine, dispatcher)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(a.config.Auth.Secret))
			handler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	if a.db == nil {
		httputil.Text(w, http.StatusOK, "OK")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
