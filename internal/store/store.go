package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
)

// Store defines the interface for all database operations. Everything that
// changes allocation state goes through InTx.
type Store interface {
	// InTx runs fn in one transaction. A non-nil error from fn rolls the
	// transaction back and is returned as is when typed, or wrapped as a
	// PersistenceError otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateUser(ctx context.Context, u *model.User) error
	GetUserByHandle(ctx context.Context, handle string) (*model.User, error)
	UpsertSpots(ctx context.Context, spots []model.ParkingSpot) error
	ListSpots(ctx context.Context) ([]model.ParkingSpot, error)
	ListUserReleases(ctx context.Context, userID uuid.UUID, from model.Date) ([]model.Release, error)
	ListUserRequests(ctx context.Context, userID uuid.UUID, from model.Date) ([]model.Request, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, userID uuid.UUID, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, userID uuid.UUID, endpoint string) error

	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

// NewGormStore creates a new GORM-backed store. A positive queryTimeout
// bounds every call.
func NewGormStore(db *gorm.DB, queryTimeout time.Duration) Store {
	return &gormStore{db: db, queryTimeout: queryTimeout}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *gormStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
	return apperr.Persistence("transaction", err)
}

func (s *gormStore) CreateUser(ctx context.Context, u *model.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Create(u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("user", u.Handle, "", "handle already registered")
	}
	return apperr.Persistence("create user", err)
}

func (s *gormStore) GetUserByHandle(ctx context.Context, handle string) (*model.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var u model.User
	if err := s.db.WithContext(ctx).First(&u, "handle = ?", handle).Error; err != nil {
		return nil, notFoundOr(err, "user", handle, "get user")
	}
	return &u, nil
}

// UpsertSpots inserts new spots and refreshes the label and active flag of
// known ones.
func (s *gormStore) UpsertSpots(ctx context.Context, spots []model.ParkingSpot) error {
	if len(spots) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "active", "updated_at"}),
	}).Create(&spots).Error
	return apperr.Persistence("upsert spots", err)
}

func (s *gormStore) ListSpots(ctx context.Context) ([]model.ParkingSpot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var spots []model.ParkingSpot
	if err := s.db.WithContext(ctx).Order("id").Find(&spots).Error; err != nil {
		return nil, apperr.Persistence("list spots", err)
	}
	return spots, nil
}

// ListUserReleases returns the user's releases dated from onwards, including
// finished ones.
func (s *gormStore) ListUserReleases(ctx context.Context, userID uuid.UUID, from model.Date) ([]model.Release, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var releases []model.Release
	if err := s.db.WithContext(ctx).
		Where("owner_id = ? AND date >= ?", userID, from).
		Order("date, spot_id").
		Find(&releases).Error; err != nil {
		return nil, apperr.Persistence("list user releases", err)
	}
	return releases, nil
}

func (s *gormStore) ListUserRequests(ctx context.Context, userID uuid.UUID, from model.Date) ([]model.Request, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var requests []model.Request
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND date >= ?", userID, from).
		Order("date, created_at").
		Find(&requests).Error; err != nil {
		return nil, apperr.Persistence("list user requests", err)
	}
	return requests, nil
}

// SaveSubscription creates or replaces a push subscription.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
	return apperr.Persistence("save subscription", err)
}

func (s *gormStore) GetSubscription(ctx context.Context, userID uuid.UUID, endpoint string) (*model.PushSubscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).
		First(&sub, "endpoint = ? AND user_id = ?", endpoint, userID).Error; err != nil {
		return nil, notFoundOr(err, "subscription", "", "get subscription")
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, userID uuid.UUID, endpoint string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Where("endpoint = ? AND user_id = ?", endpoint, userID).
		Delete(&model.PushSubscription{})
	if res.Error != nil {
		return apperr.Persistence("delete subscription", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("subscription", "")
	}
	return nil
}

func notFoundOr(err error, entity, id, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity, id)
	}
	return apperr.Persistence(op, err)
}
