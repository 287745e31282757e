package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"pms/internal/domain/appraisal"
	"pms/internal/domain/audit"
	"pms/internal/domain/auth"
	"pms/internal/domain/core"
	"pms/internal/domain/kpi"
	"pms/internal/domain/notifications"
	"pms/internal/domain/reports"
	"pms/internal/platform/config"
	cryptoutil "pms/internal/platform/crypto"
	"pms/internal/platform/db"
	"pms/internal/platform/email"
	"pms/internal/platform/jobs"
	"pms/internal/platform/metrics"
	"pms/internal/transport/http/api"
	appraisalhandler "pms/internal/transport/http/handlers/appraisal"
	audithandler "pms/internal/transport/http/handlers/audit"
	authhandler "pms/internal/transport/http/handlers/auth"
	corehandler "pms/internal/transport/http/handlers/core"
	kpihandler "pms/internal/transport/http/handlers/kpi"
	notificationshandler "pms/internal/transport/http/handlers/notifications"
	reportshandler "pms/internal/transport/http/handlers/reports"
	"pms/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
}

// New connects to the database, applies migrations and seed data when enabled and wires every
// service behind the HTTP router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	sealer, err := cryptoutil.NewSealer(cfg.DataEncryptionKey)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if !sealer.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set, mfa enrolment is disabled")
	}

	collector := metrics.New()
	jobSvc := jobs.New(jobs.NewStore(pool), collector)

	coreSvc := core.NewService(core.NewStore(pool))
	authSvc := auth.NewService(auth.NewStore(pool), sealer, cfg.JWTSecret)
	auditSvc := audit.New(pool)
	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg))
	kpiSvc := kpi.NewService(kpi.NewStore(pool), coreSvc, notifications.NewWorkflowNotifier(notifySvc), collector)
	appraisalSvc := appraisal.NewService(appraisal.NewStore(pool), coreSvc, notifySvc)
	reportsSvc := reports.NewService(reports.NewStore(pool), kpiSvc, coreSvc, jobSvc)

	jobSvc.Schedule(appraisal.JobTypeCloseCycles, cfg.CycleCloseInterval, appraisalSvc.CloseExpiredCycles)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Total-Count", "X-Unread-Count", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	router.Use(middleware.Auth(cfg.JWTSecret, authSvc))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
	router.Use(middleware.SensitiveMutationRateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, collector.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	router.Route("/api/v1", func(r chi.Router) {
		authHandler := authhandler.NewHandler(authSvc, auditSvc)
		authHandler.RegisterPublicRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			authHandler.RegisterRoutes(r)
			corehandler.NewHandler(coreSvc, authSvc, auditSvc).RegisterRoutes(r)
			kpihandler.NewHandler(kpiSvc, coreSvc, authSvc, auditSvc, middleware.NewIdempotencyStore(pool)).RegisterRoutes(r)
			appraisalhandler.NewHandler(appraisalSvc, coreSvc, authSvc, auditSvc, jobSvc).RegisterRoutes(r)
			reportshandler.NewHandler(reportsSvc, kpiSvc, coreSvc, authSvc).RegisterRoutes(r)
			notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
			audithandler.NewHandler(auditSvc, authSvc).RegisterRoutes(r)
		})
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})

	return &App{Config: cfg, DB: pool, Router: router, Jobs: jobSvc, Metrics: collector}, nil
}

// Run serves HTTP and the background jobs until ctx is cancelled, then drains both.
func (a *App) Run(ctx context.Context) error {
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()
	a.Jobs.Start(jobCtx)

	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("PMS server listening", "addr", a.Config.Addr, "env", a.Config.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	stopJobs()
	a.Jobs.Wait()
	return err
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// requireUser rejects anonymous requests on routes that do not check a permission themselves.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
