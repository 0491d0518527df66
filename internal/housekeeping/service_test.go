package housekeeping

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"parking-spot-backend/config"
	"parking-spot-backend/internal/model"
)

// mockEngine is a mock implementation of the Engine interface.
type mockEngine struct {
	mu           sync.Mutex
	SweepFunc    func() (int64, int64, error)
	RemindFunc   func(date model.Date) (int, int, error)
	DistributeFn func() (int, error)
	calls        []string
}

func (m *mockEngine) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockEngine) Today() model.Date { return model.Date{} }

func (m *mockEngine) SweepStale(context.Context) (int64, int64, error) {
	m.record("sweep")
	if m.SweepFunc != nil {
		return m.SweepFunc()
	}
	return 0, 0, nil
}

func (m *mockEngine) SendReminders(_ context.Context, date model.Date) (int, int, error) {
	m.record("remind " + date.String())
	if m.RemindFunc != nil {
		return m.RemindFunc(date)
	}
	return 0, 0, nil
}

func (m *mockEngine) RestoreTimers(context.Context) (int, error) {
	m.record("restore")
	return 0, nil
}

func (m *mockEngine) RunDistribution(context.Context) (int, error) {
	m.record("distribute")
	if m.DistributeFn != nil {
		return m.DistributeFn()
	}
	return 0, nil
}

func TestTickOnce(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	cfg := config.AllocationConfig{Location: loc, ReminderHour: 18}

	testCases := []struct {
		name     string
		now      time.Time
		expected []string
	}{
		{
			name:     "before reminder hour",
			now:      time.Date(2025, 3, 10, 17, 59, 0, 0, loc),
			expected: []string{"sweep", "restore", "distribute"},
		},
		{
			name:     "at reminder hour",
			now:      time.Date(2025, 3, 10, 18, 0, 0, 0, loc),
			expected: []string{"sweep", "remind 2025-03-11", "restore", "distribute"},
		},
		{
			name:     "reminder hour in local time",
			now:      time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC),
			expected: []string{"sweep", "remind 2025-03-11", "restore", "distribute"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &mockEngine{}
			s := NewService(cfg, engine, WithClock(func() time.Time { return tc.now }))
			s.TickOnce(context.Background())
			assert.Equal(t, tc.expected, engine.Calls())
		})
	}
}

func TestTickOnce_RemindsOncePerDay(t *testing.T) {
	now := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	engine := &mockEngine{}
	s := NewService(config.AllocationConfig{ReminderHour: 18}, engine, WithClock(func() time.Time { return now }))

	s.TickOnce(context.Background())
	s.TickOnce(context.Background())
	now = now.Add(24 * time.Hour)
	s.TickOnce(context.Background())

	var reminders []string
	for _, c := range engine.Calls() {
		if strings.HasPrefix(c, "remind") {
			reminders = append(reminders, c)
		}
	}
	assert.Equal(t, []string{"remind 2025-03-11", "remind 2025-03-12"}, reminders)
}

func TestTickOnce_FailuresDoNotStopOtherSteps(t *testing.T) {
	now := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC)
	failing := true
	engine := &mockEngine{
		SweepFunc: func() (int64, int64, error) { return 0, 0, errors.New("db down") },
		RemindFunc: func(model.Date) (int, int, error) {
			if failing {
				return 0, 0, errors.New("db down")
			}
			return 1, 0, nil
		},
		DistributeFn: func() (int, error) { return 0, errors.New("db down") },
	}
	s := NewService(config.AllocationConfig{ReminderHour: 18}, engine, WithClock(func() time.Time { return now }))

	s.TickOnce(context.Background())
	assert.Equal(t, []string{"sweep", "remind 2025-03-11", "restore", "distribute"}, engine.Calls())

	// A failed reminder round is retried on the next tick.
	failing = false
	s.TickOnce(context.Background())
	s.TickOnce(context.Background())
	count := 0
	for _, c := range engine.Calls() {
		if c == "remind 2025-03-11" {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestRun_StopsOnCancel(t *testing.T) {
	engine := &mockEngine{}
	s := NewService(config.AllocationConfig{ReminderHour: 25, HousekeepingInterval: 10 * time.Millisecond}, engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(engine.Calls()) >= 6 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickOnce_RetriesDeferredReminders(t *testing.T) {
	now := time.Date(2025, 3, 10, 19, 0, 0, 0, time.UTC)
	deferred := 1
	engine := &mockEngine{
		RemindFunc: func(model.Date) (int, int, error) {
			d := deferred
			deferred = 0
			return 0, d, nil
		},
	}
	s := NewService(config.AllocationConfig{ReminderHour: 18}, engine, WithClock(func() time.Time { return now }))

	s.TickOnce(context.Background())
	s.TickOnce(context.Background())
	s.TickOnce(context.Background())

	var reminders []string
	for _, c := range engine.Calls() {
		if strings.HasPrefix(c, "remind") {
			reminders = append(reminders, c)
		}
	}
	assert.Equal(t, []string{"remind 2025-03-11", "remind 2025-03-11"}, reminders)
}
