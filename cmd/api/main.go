package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"facegallery/internal/auth"
	"facegallery/internal/blob"
	"facegallery/internal/config"
	"facegallery/internal/face"
	"facegallery/internal/faceclient"
	"facegallery/internal/gallery"
	"facegallery/internal/handler"
	"facegallery/internal/janitor"
	"facegallery/internal/logging"
	"facegallery/internal/queue"
	"facegallery/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Caller: !cfg.Production()})

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func run(cfg config.App, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := map[string]handler.HealthCheck{}

	var (
		users   gallery.UserStore
		images  gallery.ImageStore
		matcher gallery.Matcher
	)
	switch cfg.StoreBackend {
	case "memory":
		repo := gallery.NewMemoryRepository()
		users, images = repo, repo
		log.Warn("using in-memory store, data is lost on restart")
	default:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(db.Client); err != nil {
			return err
		}
		repo := gallery.NewRepository(db.Client)
		users, images = repo, repo
		if cfg.MatchStrategy == "index" {
			matcher = repo
		}
		health["db"] = db.Healthy
	}

	blobs, err := blob.Open(ctx, cfg.Blob.Storage())
	if err != nil {
		return fmt.Errorf("blob storage: %w", err)
	}
	log.WithField("backend", cfg.Blob.Backend).Info("blob storage ready")

	var q queue.Queue
	inProcessJanitor := cfg.QueueBackend == "memory"
	if inProcessJanitor {
		q = queue.NewInMemory(64)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
		health["redis"] = redisClient.Healthy
	}
	jan := janitor.New(q, blobs, log)
	if inProcessJanitor {
		go func() {
			if err := jan.Run(ctx); err != nil {
				log.WithError(err).Error("janitor stopped")
			}
		}()
	}

	faces := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if cfg.FaceSkip {
		log.Warn("FACE_SKIP is set, descriptors are derived from image bytes")
	}
	pool := face.NewPool(faces, cfg.ExtractWorkers, cfg.ExtractQueue, cfg.ExtractTimeout)
	defer pool.Close()

	readiness := &face.Readiness{}
	go func() {
		log.WithField("url", cfg.FaceServiceURL).Info("waiting for face service")
		if err := readiness.Load(ctx, faces.Health, cfg.FaceReadyAttempts, cfg.FaceReadyInterval); err != nil {
			log.WithError(err).Error("face service unavailable, uploads and verification stay disabled")
			return
		}
		log.Info("face service ready")
	}()

	tokens := auth.NewTokenManager(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTTTL)
	svc := gallery.NewService(gallery.Deps{
		Users:    users,
		Images:   images,
		Matcher:  matcher,
		Blobs:    blobs,
		Detector: pool,
		Hasher:   auth.NewHasher(cfg.BcryptCost),
		Tokens:   tokens,
		Cleanup:  jan,
		Log:      log,
	}, gallery.Options{
		Threshold:             cfg.MatchThreshold,
		DownloadRequiresMatch: cfg.DownloadRequireMatch,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Service:         svc,
		Tokens:          tokens,
		Readiness:       readiness,
		Health:          health,
		Log:             log,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// uploads wait for extraction before answering
		WriteTimeout: cfg.ExtractTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced shutdown")
	}

	log.Info("Server exited")
	return nil
}
