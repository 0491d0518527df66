// Package scheduler keeps one-shot timers keyed by a string. Arming an
// existing key replaces its job; a job fires at most once.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

// Key identifies a job.
type Key string

// SpotKey is the key of the same-day confirmation timer of a user.
func SpotKey(userID, date string) Key {
	return Key(fmt.Sprintf("auto_cancel_%s_%s", userID, date))
}

// ReminderKey is the key of the next-day reminder timer of an award.
func ReminderKey(releaseID, requestID string) Key {
	return Key(fmt.Sprintf("auto_cancel_reminder_%s_%s", releaseID, requestID))
}

// Handler is called on the timer goroutine when a job expires. The job has
// already left the registry when it runs.
type Handler func(ctx context.Context, key Key, payload any)

type job struct {
	key      Key
	deadline time.Time
	payload  any
	timer    *time.Timer
}

// Scheduler is a registry of pending timers.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[Key]*job
	handler Handler
	now     func() time.Time
	closed  bool

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock makes deadlines relative to the given clock instead of
// time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:   make(map[Key]*job),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers the function called when a job fires.
func (s *Scheduler) Handle(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Arm schedules payload to fire after delay and returns the deadline.
func (s *Scheduler) Arm(key Key, delay time.Duration, payload any) time.Time {
	return s.ArmAt(key, s.now().Add(delay), payload)
}

// ArmAt schedules payload to fire at deadline. A deadline in the past fires
// right away.
func (s *Scheduler) ArmAt(key Key, deadline time.Time, payload any) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Printf("scheduler: closed, dropping job %s", key)
		return deadline
	}
	if old, ok := s.jobs[key]; ok {
		old.timer.Stop()
	}

	delay := deadline.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	j := &job{key: key, deadline: deadline, payload: payload}
	// fire blocks on mu until the job is registered below.
	j.timer = time.AfterFunc(delay, func() { s.fire(j) })
	s.jobs[key] = j
	return deadline
}

// Disarm removes the job under key. It reports whether a job was removed;
// false means it had already fired or never existed.
func (s *Scheduler) Disarm(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok {
		return false
	}
	j.timer.Stop()
	delete(s.jobs, key)
	return true
}

// Pending returns the deadline of the job under key.
func (s *Scheduler) Pending(key Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[key]
	if !ok {
		return time.Time{}, false
	}
	return j.deadline, true
}

// Len returns the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Close stops every pending timer and waits for running handlers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, j := range s.jobs {
		j.timer.Stop()
		delete(s.jobs, key)
	}
	s.cancel()
	s.mu.Unlock()

	s.running.Wait()
}

func (s *Scheduler) fire(j *job) {
	s.mu.Lock()
	if s.closed || s.jobs[j.key] != j {
		// Replaced or disarmed after the timer went off.
		s.mu.Unlock()
		return
	}
	delete(s.jobs, j.key)
	h := s.handler
	s.running.Add(1)
	s.mu.Unlock()
	defer s.running.Done()

	if h == nil {
		log.Printf("scheduler: no handler for expired job %s", j.key)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: handler for %s panicked: %v", j.key, r)
		}
	}()
	h(s.ctx, j.key, j.payload)
}
