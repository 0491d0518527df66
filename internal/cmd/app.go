// Package cmd holds the parkingd subcommands.
package cmd

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/allocation"
	"parking-spot-backend/internal/db"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/notification"
	"parking-spot-backend/internal/scheduler"
	"parking-spot-backend/internal/store"
)

const defaultConfigPath = "./config/config.yaml"

// loadConfig resolves the config path from the flag, then CONFIG_PATH, then
// the local default.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, nil
}

// app is a fully wired allocation core.
type app struct {
	cfg     *config.Config
	logger  *log.Logger
	db      *gorm.DB
	store   store.Store
	timers  *scheduler.Scheduler
	pool    *notification.WorkerPool
	engine  *allocation.Engine
	webpush *webpush.Options
}

func newLogger() *log.Logger {
	return log.New(os.Stdout, "parkingd ", log.LstdFlags)
}

// openApp connects to the database, seeds the spots and starts the
// notification workers. The caller must call close.
func openApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	gormDB, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	logger.Println("database initialized successfully")

	appStore := store.NewGormStore(gormDB, cfg.Database.QueryTimeout)
	if err := appStore.UpsertSpots(ctx, spotsFromConfig(cfg.Spots)); err != nil {
		return nil, fmt.Errorf("failed to seed parking spots: %w", err)
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	} else {
		logger.Println("VAPID keys are not configured, web push is disabled")
	}

	poolOpts := []notification.Option{
		notification.WithSendTimeout(cfg.WorkerPool.SendTimeout),
		notification.WithLocation(cfg.Allocation.Location),
	}
	if cfg.Broker.Enabled {
		poolOpts = append(poolOpts, notification.WithPublisher(notification.NewBrokerPublisher(cfg.Broker.URL, cfg.Broker.Queue)))
		logger.Printf("publishing notification intents to queue %s", cfg.Broker.Queue)
	}
	if webpushOptions == nil {
		poolOpts = append(poolOpts, notification.WithoutPush())
	}
	pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, poolOpts...)
	pool.Start(ctx)

	timers := scheduler.New()

	var engineOpts []allocation.Option
	if cfg.Allocation.Seed != 0 {
		engineOpts = append(engineOpts, allocation.WithRand(rand.New(rand.NewSource(cfg.Allocation.Seed))))
	}
	engine := allocation.New(appStore, timers, pool, policyFromConfig(cfg.Allocation), engineOpts...)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      gormDB,
		store:   appStore,
		timers:  timers,
		pool:    pool,
		engine:  engine,
		webpush: webpushOptions,
	}, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return gormDB, nil
}

// close stops the timers first so that no handler dispatches into a
// stopped pool.
func (a *app) close() {
	a.timers.Close()
	a.pool.Stop()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func policyFromConfig(cfg config.AllocationConfig) allocation.Policy {
	return allocation.Policy{
		Location:         cfg.Location,
		CutoffHour:       cfg.CutoffHour,
		CutoffMinute:     cfg.CutoffMinute,
		ConfirmWindow:    cfg.ConfirmWindow,
		ExcludeSuppliers: cfg.ExcludeSuppliers != nil && *cfg.ExcludeSuppliers,
	}
}

func spotsFromConfig(spots []config.SpotConfig) []model.ParkingSpot {
	out := make([]model.ParkingSpot, 0, len(spots))
	for _, s := range spots {
		label := s.Label
		if label == "" {
			label = fmt.Sprintf("№%d", s.ID)
		}
		out = append(out, model.ParkingSpot{
			ID:     s.ID,
			Label:  label,
			Active: s.Active == nil || *s.Active,
		})
	}
	return out
}
