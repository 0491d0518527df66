package allocation

import (
	"context"

	"github.com/google/uuid"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/status"
	"parking-spot-backend/internal/store"
)

// ReleaseSpot offers the owner's spot for date and runs a distribution.
func (e *Engine) ReleaseSpot(ctx context.Context, ownerID uuid.UUID, spotID int64, date model.Date) (*model.Release, error) {
	if err := e.validateDate(date); err != nil {
		return nil, err
	}

	var rel *model.Release
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := activeUser(tx, ownerID); err != nil {
			return err
		}
		spot, err := tx.GetSpot(spotID)
		if apperr.IsNotFound(err) {
			return apperr.Validation("spot_id", "spot %d does not exist", spotID)
		}
		if err != nil {
			return err
		}
		if !spot.Active {
			return apperr.Validation("spot_id", "spot %d is not in use", spotID)
		}

		existing, err := tx.FindActiveRelease(spotID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("release", existing.ID.String(), string(existing.Status),
				"spot is already released for "+date.String())
		}

		rel = &model.Release{OwnerID: ownerID, SpotID: spotID, Date: date, Status: status.ReleasePending}
		return tx.CreateRelease(rel)
	})
	if err != nil {
		return nil, err
	}

	e.redistribute(ctx)
	return e.reloadRelease(ctx, rel), nil
}

// RequestSpot asks for any spot on date and runs a distribution.
func (e *Engine) RequestSpot(ctx context.Context, userID uuid.UUID, date model.Date) (*model.Request, error) {
	if err := e.validateDate(date); err != nil {
		return nil, err
	}

	var req *model.Request
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		if err := activeUser(tx, userID); err != nil {
			return err
		}
		existing, err := tx.FindActiveRequest(userID, date)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Conflict("request", existing.ID.String(), string(existing.Status),
				"already requested a spot for "+date.String())
		}

		req = &model.Request{UserID: userID, Date: date, Status: status.RequestPending}
		return tx.CreateRequest(req)
	})
	if err != nil {
		return nil, err
	}

	e.redistribute(ctx)
	return e.reloadRequest(ctx, req), nil
}

func (e *Engine) validateDate(date model.Date) error {
	if date.IsZero() {
		return apperr.Validation("date", "is required")
	}
	if _, today := e.clock(); date.Before(today) {
		return apperr.Validation("date", "%s is in the past", date)
	}
	return nil
}

func activeUser(tx store.Tx, id uuid.UUID) error {
	u, err := tx.GetUser(id)
	if err != nil {
		return err
	}
	if !u.Active {
		return apperr.Validation("user", "user %s is deactivated", u.Handle)
	}
	return nil
}

// reloadRelease returns the row as it is after the distribution that
// followed its creation. The original is returned if the read fails.
func (e *Engine) reloadRelease(ctx context.Context, rel *model.Release) *model.Release {
	fresh := rel
	_ = e.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRelease(rel.ID)
		if err == nil {
			fresh = r
		}
		return nil
	})
	return fresh
}

func (e *Engine) reloadRequest(ctx context.Context, req *model.Request) *model.Request {
	fresh := req
	_ = e.store.InTx(ctx, func(tx store.Tx) error {
		r, err := tx.GetRequest(req.ID)
		if err == nil {
			fresh = r
		}
		return nil
	})
	return fresh
}
