// Package housekeeping runs the periodic jobs around the allocation engine.
package housekeeping

import (
	"context"
	"log"
	"time"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/model"
)

// Engine is what a housekeeping tick drives.
type Engine interface {
	Today() model.Date
	SweepStale(ctx context.Context) (releases, requests int64, err error)
	SendReminders(ctx context.Context, date model.Date) (sent, deferred int, err error)
	RunDistribution(ctx context.Context) (int, error)
	RestoreTimers(ctx context.Context) (int, error)
}

// Service sweeps stale rows, sends next-day reminders, adopts holds opened by
// other processes and retries distribution on a fixed interval.
type Service struct {
	cfg    config.AllocationConfig
	engine Engine
	now    func() time.Time

	remindedOn model.Date
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a housekeeping service.
func NewService(cfg config.AllocationConfig, engine Engine, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	s := &Service{cfg: cfg, engine: engine, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks once right away and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.HousekeepingInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("Starting housekeeping every %s...", interval)

	s.TickOnce(ctx)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Housekeeping shutting down.")
			return
		case <-timer.C:
			s.TickOnce(ctx)
			timer.Reset(interval)
		}
	}
}

// TickOnce performs one round. Each step runs even if an earlier one failed.
func (s *Service) TickOnce(ctx context.Context) {
	if _, _, err := s.engine.SweepStale(ctx); err != nil {
		log.Printf("Housekeeping: sweep failed: %v", err)
	}

	now := s.now().In(s.cfg.Location)
	today := model.DateOf(now)
	if now.Hour() >= s.cfg.ReminderHour && !s.remindedOn.Equal(today) {
		tomorrow := today.AddDays(1)
		switch _, deferred, err := s.engine.SendReminders(ctx, tomorrow); {
		case err != nil:
			log.Printf("Housekeeping: reminders for %s failed: %v", tomorrow, err)
		case deferred > 0:
			// Retried on the next tick once those users have answered.
			log.Printf("Housekeeping: %d reminders for %s deferred", deferred, tomorrow)
		default:
			s.remindedOn = today
		}
	}

	// Holds opened by a one-shot CLI run have no timer in this process.
	if _, err := s.engine.RestoreTimers(ctx); err != nil {
		log.Printf("Housekeeping: restoring timers failed: %v", err)
	}

	if _, err := s.engine.RunDistribution(ctx); err != nil {
		log.Printf("Housekeeping: distribution failed: %v", err)
	}
}
