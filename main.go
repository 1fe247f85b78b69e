package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/camden-git/parentsgallery/config"
	"github.com/camden-git/parentsgallery/database"
	"github.com/camden-git/parentsgallery/handlers"
	"github.com/camden-git/parentsgallery/logging"
	"github.com/camden-git/parentsgallery/media"
	"github.com/camden-git/parentsgallery/models"
	"github.com/camden-git/parentsgallery/realtime"
	"github.com/camden-git/parentsgallery/repository"
	"github.com/camden-git/parentsgallery/services"
	"github.com/camden-git/parentsgallery/workers"
)

const shutdownTimeout = 15 * time.Second

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	for _, p := range []string{cfg.GalleryDir, filepath.Dir(cfg.DatabasePath)} {
		if err := os.MkdirAll(p, 0755); err != nil {
			logger.WithError(err).WithField("path", p).Fatal("failed to create storage directory")
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database")
	}
	defer func() {
		if err := database.Close(db); err != nil {
			logger.WithError(err).Error("failed to close database")
		}
	}()
	if err := database.AutoMigrateModels(db); err != nil {
		logger.WithError(err).Fatal("database migration failed")
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.WithError(err).Fatal("failed to get underlying sql.DB")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users := repository.New[models.User](db)
	blogs := repository.New[models.Blog](db)
	if err := services.Bootstrap(ctx, users, blogs, cfg.AdminUsername, cfg.AdminPassword, logger); err != nil {
		logger.WithError(err).Fatal("failed to seed database")
	}

	store, err := media.NewLocalStorage(cfg.GalleryDir, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize media store")
	}
	processor, err := media.NewProcessor(store, media.ProcessorOptions{
		ThumbnailMaxSize: cfg.ThumbnailMaxSize,
		WatermarkPath:    cfg.WatermarkPath,
		WatermarkOpacity: cfg.WatermarkOpacity,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize image processor")
	}

	hub := realtime.NewHub(cfg.CORSOrigins, logger)
	go hub.Run(ctx)

	logger.WithFields(logrus.Fields{
		"workers": cfg.NumThumbnailWorkers,
		"queue":   cfg.ThumbnailQueueSize,
		"max_px":  cfg.ThumbnailMaxSize,
	}).Info("starting thumbnail worker pool")
	thumbnails := workers.NewThumbnailGenerator(processor, store, sqlDB, hub, logger, cfg.ThumbnailQueueSize, cfg.NumThumbnailWorkers)
	defer thumbnails.Stop()

	galleries, err := services.NewGalleryService(services.GalleryServiceConfig{
		Repo:       repository.NewGalleryRepository(db),
		Store:      store,
		Processor:  processor,
		Thumbnails: thumbnails,
		Hub:        hub,
		Log:        logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize gallery service")
	}
	actions := services.NewActionService(repository.New[models.Action](db), galleries, logger)

	jobs, err := galleries.ThumbnailJobs(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to list images for thumbnail backfill")
	} else {
		thumbnails.Backfill(ctx, jobs)
	}

	loginLimiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	unlockLimiter := handlers.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	loginLimiter.StartCleanup(ctx, 10*time.Minute)
	unlockLimiter.StartCleanup(ctx, 10*time.Minute)

	router := handlers.NewRouter(handlers.RouterDeps{
		Users:          users,
		Blogs:          blogs,
		Galleries:      galleries,
		Actions:        actions,
		Hub:            hub,
		Tokens:         handlers.NewTokenManager(cfg.JWTSecret, cfg.GalleryJWTSecret, cfg.TokenTTL, cfg.GalleryTokenTTL),
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
		MaxUploadBytes: cfg.MaxUploadBytes,
		FrontendDir:    cfg.FrontendDir,
		LoginLimiter:   loginLimiter,
		UnlockLimiter:  unlockLimiter,
		Log:            logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			stop()
			thumbnails.Stop()
			_ = database.Close(db)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}
