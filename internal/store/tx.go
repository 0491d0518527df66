package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/status"
)

// Tx is the set of operations available inside Store.InTx. Status writes are
// compare-and-set: they only apply when the row is still in the expected
// state and return a ConflictError otherwise.
type Tx interface {
	GetUser(id uuid.UUID) (*model.User, error)
	GetSpot(id int64) (*model.ParkingSpot, error)
	GetRelease(id uuid.UUID) (*model.Release, error)
	GetRequest(id uuid.UUID) (*model.Request, error)
	GetHold(id uuid.UUID) (*model.Hold, error)

	CreateRelease(r *model.Release) error
	CreateRequest(r *model.Request) error
	CreateHold(h *model.Hold) error

	// Find* return (nil, nil) when nothing matches.
	FindActiveRelease(spotID int64, date model.Date) (*model.Release, error)
	FindActiveRequest(userID uuid.UUID, date model.Date) (*model.Request, error)
	FindAwardedRelease(userID uuid.UUID, date model.Date) (*model.Release, error)
	FindActiveHold(userID uuid.UUID, kind model.HoldKind) (*model.Hold, error)
	FindActiveHoldForRelease(releaseID uuid.UUID, kind model.HoldKind) (*model.Hold, error)

	DatesWithAvailability(from model.Date) ([]model.Date, error)
	ListFreeReleases(date model.Date) ([]model.Release, error)
	ListPendingRequests(date model.Date, excludeSuppliers bool) ([]Candidate, error)
	ListAcceptedAwards(date model.Date) ([]Award, error)
	ListActiveHolds() ([]model.Hold, error)

	AwardRelease(id, awardee uuid.UUID, to status.ReleaseStatus) error
	AwardRequest(id uuid.UUID, to status.RequestStatus, at time.Time) error
	SetReleaseStatus(id uuid.UUID, from, to status.ReleaseStatus) error
	SetRequestStatus(id uuid.UUID, from, to status.RequestStatus) error
	IncrementRating(userID uuid.UUID) error
	DecrementRating(userID uuid.UUID) error

	// DeactivateHold reports whether this call flipped the hold from active
	// to inactive. Only one caller can win.
	DeactivateHold(id uuid.UUID) (bool, error)

	SweepStale(before model.Date) (releases int64, requests int64, err error)
}

// Candidate is a pending request together with what the fairness rule
// needs to rank it.
type Candidate struct {
	RequestID uuid.UUID
	UserID    uuid.UUID
	Rating    int
	CreatedAt time.Time
}

// Award links an accepted release to the accepted request it was given to.
type Award struct {
	ReleaseID uuid.UUID
	RequestID uuid.UUID
	UserID    uuid.UUID
	OwnerID   uuid.UUID
	SpotID    int64
	Date      model.Date
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetUser(id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := t.db.First(&u, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "user", id.String(), "get user")
	}
	return &u, nil
}

func (t *gormTx) GetSpot(id int64) (*model.ParkingSpot, error) {
	var spot model.ParkingSpot
	if err := t.db.First(&spot, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "spot", fmt.Sprint(id), "get spot")
	}
	return &spot, nil
}

func (t *gormTx) GetRelease(id uuid.UUID) (*model.Release, error) {
	var r model.Release
	if err := t.db.First(&r, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "release", id.String(), "get release")
	}
	return &r, nil
}

func (t *gormTx) GetRequest(id uuid.UUID) (*model.Request, error) {
	var r model.Request
	if err := t.db.First(&r, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "request", id.String(), "get request")
	}
	return &r, nil
}

func (t *gormTx) GetHold(id uuid.UUID) (*model.Hold, error) {
	var h model.Hold
	if err := t.db.First(&h, "id = ?", id).Error; err != nil {
		return nil, notFoundOr(err, "hold", id.String(), "get hold")
	}
	return &h, nil
}

func (t *gormTx) CreateRelease(r *model.Release) error {
	err := t.db.Omit(clause.Associations).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("release", "", "", fmt.Sprintf("spot %d is already released for %s", r.SpotID, r.Date))
	}
	return apperr.Persistence("create release", err)
}

func (t *gormTx) CreateRequest(r *model.Request) error {
	err := t.db.Omit(clause.Associations).Create(r).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("request", "", "", "already requested a spot for "+r.Date.String())
	}
	return apperr.Persistence("create request", err)
}

func (t *gormTx) CreateHold(h *model.Hold) error {
	err := t.db.Create(h).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("hold", "", "", fmt.Sprintf("user already has an active %s hold", h.Kind))
	}
	return apperr.Persistence("create hold", err)
}

func (t *gormTx) FindActiveRelease(spotID int64, date model.Date) (*model.Release, error) {
	var rows []model.Release
	err := t.db.
		Where("spot_id = ? AND date = ? AND status NOT IN ?", spotID, date, inactiveStatuses).
		Limit(1).
		Find(&rows).Error
	return first(rows, err, "find active release")
}

func (t *gormTx) FindActiveRequest(userID uuid.UUID, date model.Date) (*model.Request, error) {
	var rows []model.Request
	err := t.db.
		Where("user_id = ? AND date = ? AND status NOT IN ?", userID, date, inactiveStatuses).
		Limit(1).
		Find(&rows).Error
	return first(rows, err, "find active request")
}

// FindAwardedRelease returns the release given to userID on date, whether
// confirmed or still waiting for confirmation.
func (t *gormTx) FindAwardedRelease(userID uuid.UUID, date model.Date) (*model.Release, error) {
	var rows []model.Release
	err := t.db.
		Where("taken_by = ? AND date = ? AND status IN ?", userID, date,
			[]status.ReleaseStatus{status.ReleaseWaiting, status.ReleaseAccepted}).
		Limit(1).
		Find(&rows).Error
	return first(rows, err, "find awarded release")
}

func (t *gormTx) FindActiveHold(userID uuid.UUID, kind model.HoldKind) (*model.Hold, error) {
	var rows []model.Hold
	err := t.db.
		Where("user_id = ? AND kind = ? AND is_active = ?", userID, kind, true).
		Limit(1).
		Find(&rows).Error
	return first(rows, err, "find active hold")
}

func (t *gormTx) FindActiveHoldForRelease(releaseID uuid.UUID, kind model.HoldKind) (*model.Hold, error) {
	var rows []model.Hold
	err := t.db.
		Where("release_id = ? AND kind = ? AND is_active = ?", releaseID, kind, true).
		Limit(1).
		Find(&rows).Error
	return first(rows, err, "find active hold for release")
}

// DatesWithAvailability returns, in order, the dates from onwards that have
// both a free release and a pending request.
func (t *gormTx) DatesWithAvailability(from model.Date) ([]model.Date, error) {
	var dates []model.Date
	err := t.db.Model(&model.Release{}).
		Distinct("date").
		Where("status = ? AND date >= ?", status.ReleasePending, from).
		Where("EXISTS (SELECT 1 FROM requests WHERE requests.date = releases.date AND requests.status = ?)", status.RequestPending).
		Order("date").
		Pluck("date", &dates).Error
	if err != nil {
		return nil, apperr.Persistence("list dates with availability", err)
	}
	return dates, nil
}

// ListFreeReleases returns the pending releases of date, oldest first. On
// postgres the rows stay locked until the transaction ends.
func (t *gormTx) ListFreeReleases(date model.Date) ([]model.Release, error) {
	q := t.db.Where("date = ? AND status = ?", date, status.ReleasePending).
		Order("created_at ASC").
		Order("id ASC")
	if t.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var releases []model.Release
	if err := q.Find(&releases).Error; err != nil {
		return nil, apperr.Persistence("list free releases", err)
	}
	return releases, nil
}

// ListPendingRequests returns the pending requests of active users for date,
// lowest rating first, then oldest first. With excludeSuppliers, users who
// have a free release on the same date are left out.
func (t *gormTx) ListPendingRequests(date model.Date, excludeSuppliers bool) ([]Candidate, error) {
	q := t.db.Table("requests").
		Select("requests.id AS request_id, requests.user_id AS user_id, users.rating AS rating, requests.created_at AS created_at").
		Joins("JOIN users ON users.id = requests.user_id").
		Where("requests.date = ? AND requests.status = ? AND users.active = ?", date, status.RequestPending, true)
	if excludeSuppliers {
		q = q.Where("NOT EXISTS (SELECT 1 FROM releases WHERE releases.owner_id = requests.user_id AND releases.date = requests.date AND releases.status = ?)",
			status.ReleasePending)
	}

	var candidates []Candidate
	if err := q.Order("users.rating ASC, requests.created_at ASC").Scan(&candidates).Error; err != nil {
		return nil, apperr.Persistence("list pending requests", err)
	}
	return candidates, nil
}

// ListAcceptedAwards returns the confirmed awards of date whose request never
// got a reminder.
func (t *gormTx) ListAcceptedAwards(date model.Date) ([]Award, error) {
	var awards []Award
	err := t.db.Table("releases").
		Select("releases.id AS release_id, requests.id AS request_id, requests.user_id AS user_id, "+
			"releases.owner_id AS owner_id, releases.spot_id AS spot_id, releases.date AS date").
		Joins("JOIN requests ON requests.user_id = releases.taken_by AND requests.date = releases.date").
		Where("releases.date = ? AND releases.status = ? AND requests.status = ?",
			date, status.ReleaseAccepted, status.RequestAccepted).
		Where("NOT EXISTS (SELECT 1 FROM holds WHERE holds.release_id = releases.id AND holds.request_id = requests.id AND holds.kind = ?)",
			model.HoldReminder).
		Order("releases.spot_id").
		Scan(&awards).Error
	if err != nil {
		return nil, apperr.Persistence("list accepted awards", err)
	}
	return awards, nil
}

func (t *gormTx) ListActiveHolds() ([]model.Hold, error) {
	var holds []model.Hold
	if err := t.db.Where("is_active = ?", true).Order("deadline").Find(&holds).Error; err != nil {
		return nil, apperr.Persistence("list active holds", err)
	}
	return holds, nil
}

// AwardRelease moves a free release to WAITING or ACCEPTED and records who
// it went to.
func (t *gormTx) AwardRelease(id, awardee uuid.UUID, to status.ReleaseStatus) error {
	if err := status.ReleaseTransition(id.String(), status.ReleasePending, to); err != nil {
		return err
	}
	res := t.db.Model(&model.Release{}).
		Where("id = ? AND status = ?", id, status.ReleasePending).
		Updates(map[string]any{"status": to, "taken_by": awardee})
	return casResult(res, "release", id, string(status.ReleasePending), "award release")
}

// AwardRequest moves a pending request to WAITING_CONFIRMATION or ACCEPTED.
func (t *gormTx) AwardRequest(id uuid.UUID, to status.RequestStatus, at time.Time) error {
	if err := status.RequestTransition(id.String(), status.RequestPending, to); err != nil {
		return err
	}
	res := t.db.Model(&model.Request{}).
		Where("id = ? AND status = ?", id, status.RequestPending).
		Updates(map[string]any{"status": to, "processed_at": at})
	return casResult(res, "request", id, string(status.RequestPending), "award request")
}

// SetReleaseStatus moves a release from one status to another. Going back to
// PENDING clears taken_by.
func (t *gormTx) SetReleaseStatus(id uuid.UUID, from, to status.ReleaseStatus) error {
	if err := status.ReleaseTransition(id.String(), from, to); err != nil {
		return err
	}
	values := map[string]any{"status": to}
	if to == status.ReleasePending {
		values["taken_by"] = nil
	}
	res := t.db.Model(&model.Release{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return casResult(res, "release", id, string(from), "set release status")
}

func (t *gormTx) SetRequestStatus(id uuid.UUID, from, to status.RequestStatus) error {
	if err := status.RequestTransition(id.String(), from, to); err != nil {
		return err
	}
	res := t.db.Model(&model.Request{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	return casResult(res, "request", id, string(from), "set request status")
}

func (t *gormTx) IncrementRating(userID uuid.UUID) error {
	return t.addRating(userID, 1)
}

func (t *gormTx) DecrementRating(userID uuid.UUID) error {
	return t.addRating(userID, -1)
}

func (t *gormTx) addRating(userID uuid.UUID, delta int) error {
	res := t.db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("rating", gorm.Expr("rating + ?", delta))
	if res.Error != nil {
		return apperr.Persistence("update rating", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user", userID.String())
	}
	return nil
}

func (t *gormTx) DeactivateHold(id uuid.UUID) (bool, error) {
	res := t.db.Model(&model.Hold{}).
		Where("id = ? AND is_active = ?", id, true).
		Update("is_active", false)
	if res.Error != nil {
		return false, apperr.Persistence("deactivate hold", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SweepStale closes the pending releases and requests dated before the
// given day. Nothing can be matched for them anymore.
func (t *gormTx) SweepStale(before model.Date) (int64, int64, error) {
	if err := status.ReleaseTransition("", status.ReleasePending, status.ReleaseNotFound); err != nil {
		return 0, 0, err
	}
	if err := status.RequestTransition("", status.RequestPending, status.RequestNotFound); err != nil {
		return 0, 0, err
	}

	rel := t.db.Model(&model.Release{}).
		Where("status = ? AND date < ?", status.ReleasePending, before).
		Update("status", status.ReleaseNotFound)
	if rel.Error != nil {
		return 0, 0, apperr.Persistence("sweep releases", rel.Error)
	}
	req := t.db.Model(&model.Request{}).
		Where("status = ? AND date < ?", status.RequestPending, before).
		Update("status", status.RequestNotFound)
	if req.Error != nil {
		return 0, 0, apperr.Persistence("sweep requests", req.Error)
	}
	return rel.RowsAffected, req.RowsAffected, nil
}

var inactiveStatuses = []string{string(status.ReleaseCanceled), string(status.ReleaseNotFound)}

func first[T any](rows []T, err error, op string) (*T, error) {
	if err != nil {
		return nil, apperr.Persistence(op, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func casResult(res *gorm.DB, entity string, id uuid.UUID, expected, op string) error {
	if res.Error != nil {
		return apperr.Persistence(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict(entity, id.String(), "", "no longer "+expected)
	}
	return nil
}
