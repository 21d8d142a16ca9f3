package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"attendx/internal/account"
	"attendx/internal/attendance"
	"attendx/internal/audit"
	"attendx/internal/auth"
	"attendx/internal/config"
	"attendx/internal/enrollment"
	"attendx/internal/httpapi"
	"attendx/internal/httpmiddleware"
	"attendx/internal/logging"
	"attendx/internal/media"
	"attendx/internal/memstore"
	"attendx/internal/metrics"
	"attendx/internal/project"
	"attendx/internal/queue"
	"attendx/internal/store"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.Production())

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		slog.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

// stores groups the persistence each service needs.
type stores struct {
	accounts   account.Store
	projects   project.Store
	users      project.Users
	enrollment enrollment.Store
	attendance attendance.Store
	activity   audit.Store
}

func openStores(ctx context.Context, cfg config.App) (stores, *store.DB, error) {
	if cfg.StoreBackend == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		m := memstore.New()
		return stores{m, m, m, m, m, m}, nil, nil
	}

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, db, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(db.Client); err != nil {
			return stores{}, db, err
		}
	}
	users := account.NewRepository(db.Client)
	return stores{
		accounts:   users,
		projects:   project.NewRepository(db.Client),
		users:      users,
		enrollment: enrollment.NewRepository(db.Client),
		attendance: attendance.NewRepository(db.Client),
		activity:   audit.NewRepository(db.Client),
	}, db, nil
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, db, err := openStores(ctx, cfg)
	defer func() { _ = db.Close() }()
	if err != nil {
		return err
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.RateLimitBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// no separate worker shares an in-memory queue, so drain it here
		msgs, err := mem.Consume(ctx)
		if err != nil {
			return err
		}
		go audit.Consume(ctx, msgs, st.activity)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var limiter httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	} else {
		limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	}

	var images project.ImageStore
	uploadDir := ""
	if cfg.CloudinaryConfigured() {
		images = media.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		slog.Info("cloudinary configured", "cloud", cfg.CloudinaryCloudName)
	} else {
		disk, err := media.NewDisk(cfg.UploadDir, "/uploads")
		if err != nil {
			return err
		}
		images = disk
		uploadDir = cfg.UploadDir
		slog.Info("storing project images on disk", "dir", cfg.UploadDir)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tokens := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
	health := map[string]httpapi.HealthCheck{}
	if db != nil {
		health["db"] = db.Healthy
	}
	if redisClient != nil {
		health["redis"] = redisClient.Healthy
	}

	h := &httpapi.Handler{
		Accounts:   account.NewService(st.accounts, tokens),
		Projects:   project.NewService(st.projects, st.users, images),
		Enrollment: enrollment.NewService(st.enrollment),
		Attendance: attendance.NewService(st.attendance),
		Activity:   st.activity,
		Events:     audit.NewPublisher(q),
		Tokens:     tokens,
		Metrics:    metrics.New(reg),
		Gatherer:   reg,
		Limiter:    limiter,
		Health:     health,
		UploadDir:  uploadDir,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.HTTPPort, "store", cfg.StoreBackend, "queue", cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	slog.Info("shutting down server")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server forced shutdown", "err", err)
	}
	slog.Info("server exited")
	return nil
}
