package allocation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"parking-spot-backend/internal/db"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/notification"
	"parking-spot-backend/internal/scheduler"
	"parking-spot-backend/internal/status"
	"parking-spot-backend/internal/store"
)

// testNow is past the 09:00 cutoff.
var testNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

var (
	today    = model.NewDate(2025, 3, 10)
	tomorrow = model.NewDate(2025, 3, 11)
)

type recordingNotifier struct {
	mu      sync.Mutex
	intents []notification.Intent
}

func (r *recordingNotifier) Dispatch(in notification.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, in)
}

func (r *recordingNotifier) all() []notification.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification.Intent(nil), r.intents...)
}

func (r *recordingNotifier) kinds(user uuid.UUID) []notification.Kind {
	var kinds []notification.Kind
	for _, in := range r.all() {
		if in.UserID == user {
			kinds = append(kinds, in.Kind)
		}
	}
	return kinds
}

type env struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	store  store.Store
	timers *scheduler.Scheduler
	notes  *recordingNotifier
	engine *Engine
	policy Policy
}

func newEnv(t *testing.T, now time.Time, policy Policy) *env {
	t.Helper()
	dsn := fmt.Sprintf("file:alloc_%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true, Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))

	e := &env{
		t:      t,
		ctx:    context.Background(),
		db:     gdb,
		store:  store.NewGormStore(gdb, 5*time.Second),
		notes:  &recordingNotifier{},
		policy: policy,
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	e.engine, e.timers = e.newEngine(e.store, now)
	return e
}

// newEngine builds another engine over the same database, as a restarted
// process would.
func (e *env) newEngine(s store.Store, now time.Time) (*Engine, *scheduler.Scheduler) {
	clock := func() time.Time { return now }
	timers := scheduler.New(scheduler.WithClock(clock))
	e.t.Cleanup(timers.Close)
	engine := New(s, timers, e.notes, e.policy, WithClock(clock), WithRand(rand.New(rand.NewSource(7))))
	return engine, timers
}

func (e *env) user(handle string, rating int) uuid.UUID {
	e.t.Helper()
	u := &model.User{Handle: handle, DisplayName: handle, Rating: rating, Active: true}
	require.NoError(e.t, e.store.CreateUser(e.ctx, u))
	return u.ID
}

func (e *env) spot(ids ...int64) {
	e.t.Helper()
	spots := make([]model.ParkingSpot, 0, len(ids))
	for _, id := range ids {
		spots = append(spots, model.ParkingSpot{ID: id, Label: fmt.Sprintf("№%d", id), Active: true})
	}
	require.NoError(e.t, e.store.UpsertSpots(e.ctx, spots))
}

func (e *env) release(owner uuid.UUID, spotID int64, date model.Date, createdAt time.Time) uuid.UUID {
	e.t.Helper()
	rel := &model.Release{OwnerID: owner, SpotID: spotID, Date: date, Status: status.ReleasePending, CreatedAt: createdAt}
	require.NoError(e.t, e.store.InTx(e.ctx, func(tx store.Tx) error { return tx.CreateRelease(rel) }))
	return rel.ID
}

func (e *env) request(user uuid.UUID, date model.Date, createdAt time.Time) uuid.UUID {
	e.t.Helper()
	req := &model.Request{UserID: user, Date: date, Status: status.RequestPending, CreatedAt: createdAt}
	require.NoError(e.t, e.store.InTx(e.ctx, func(tx store.Tx) error { return tx.CreateRequest(req) }))
	return req.ID
}

// The lookups below never fail the test so they can be polled from
// assert.Eventually.

func (e *env) getRelease(id uuid.UUID) model.Release {
	var rel model.Release
	e.db.First(&rel, "id = ?", id)
	return rel
}

func (e *env) releaseStatus(id uuid.UUID) status.ReleaseStatus {
	return e.getRelease(id).Status
}

func (e *env) requestStatus(id uuid.UUID) status.RequestStatus {
	var req model.Request
	e.db.First(&req, "id = ?", id)
	return req.Status
}

func (e *env) rating(user uuid.UUID) int {
	var u model.User
	e.db.First(&u, "id = ?", user)
	return u.Rating
}

func (e *env) activeHold(user uuid.UUID, kind model.HoldKind) *model.Hold {
	var holds []model.Hold
	e.db.Where("user_id = ? AND kind = ? AND is_active = ?", user, kind, true).Find(&holds)
	if len(holds) == 0 {
		return nil
	}
	return &holds[0]
}
