package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/handlers"
	"circulation/internal/notify"
	"circulation/internal/repositories"
	"circulation/internal/services"
	"circulation/internal/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	repos, err := openRepositories(cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}

	logNotifier, err := notify.NewLogNotifier(cfg.NotifyLogPath)
	if err != nil {
		log.Fatalf("failed to open notification log: %v", err)
	}
	defer logNotifier.Close()

	notifier := notify.Fanout{logNotifier}
	if cfg.NotifyStore {
		notifier = append(notifier, notify.NewStoreNotifier(repos.Notifications))
	}

	circulationService, err := services.NewCirculationService(repos, cfg.Policy, notifier)
	if err != nil {
		log.Fatalf("failed to create service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := circulationService.Load(ctx); err != nil {
		log.Fatalf("failed to load state: %v", err)
	}

	go workers.NewSweeper(circulationService, cfg.SweepInterval).Run(ctx)

	router := gin.Default()

	handlers.RegisterRoutes(router, circulationService)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[ERROR] shutdown: %v", err)
		}
	}()

	log.Printf("Starting server on %s (storage=%s)", cfg.ServerAddr, cfg.Storage)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func openRepositories(cfg *config.Config) (repositories.Set, error) {
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			return repositories.Set{}, err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return repositories.Set{}, err
		}
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)

		if cfg.AutoMigrate {
			if err := repositories.Migrate(db); err != nil {
				return repositories.Set{}, err
			}
		}
		return repositories.NewGormSet(db), nil
	case config.StorageFile:
		return repositories.NewFileSet(cfg.DataDir)
	default:
		log.Println("[WARN] storage: using in-memory repositories, state is lost on exit")
		return repositories.NewMemorySet(), nil
	}
}
