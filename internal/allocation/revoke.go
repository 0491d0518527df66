package allocation

import (
	"context"
	"log"

	"github.com/google/uuid"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/scheduler"
	"parking-spot-backend/internal/status"
	"parking-spot-backend/internal/store"
)

// RevokeRelease withdraws a release that nobody has been given yet.
// Removing supply cannot create matches, so no distribution follows.
func (e *Engine) RevokeRelease(ctx context.Context, releaseID, actingUser uuid.UUID) error {
	return e.store.InTx(ctx, func(tx store.Tx) error {
		rel, err := tx.GetRelease(releaseID)
		if err != nil {
			return err
		}
		if rel.OwnerID != actingUser {
			return apperr.NotFound("release", releaseID.String())
		}
		switch rel.Status {
		case status.ReleaseWaiting, status.ReleaseAccepted:
			return apperr.Conflict("release", releaseID.String(), string(rel.Status), "already offered or taken")
		}
		return tx.SetReleaseStatus(rel.ID, rel.Status, status.ReleaseCanceled)
	})
}

// RevokeRequest withdraws a request. Giving back a spot that was already
// awarded costs one rating point, and the spot is offered again.
func (e *Engine) RevokeRequest(ctx context.Context, requestID, actingUser uuid.UUID) error {
	var (
		fx           effects
		redistribute bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.GetRequest(requestID)
		if err != nil {
			return err
		}
		if req.UserID != actingUser {
			return apperr.NotFound("request", requestID.String())
		}

		switch req.Status {
		case status.RequestPending:
			return tx.SetRequestStatus(req.ID, status.RequestPending, status.RequestCanceled)
		case status.RequestWaitingConfirmation:
			redistribute = true
			return e.revokeWaiting(tx, req, &fx)
		case status.RequestAccepted:
			redistribute = true
			return e.revokeAccepted(tx, req, &fx)
		default:
			return apperr.Conflict("request", requestID.String(), string(req.Status), "request is already closed")
		}
	})
	if err != nil {
		return err
	}
	e.apply(&fx)
	if redistribute {
		e.redistribute(ctx)
	}
	return nil
}

// revokeWaiting behaves like declining the provisional award.
func (e *Engine) revokeWaiting(tx store.Tx, req *model.Request, fx *effects) error {
	hold, err := tx.FindActiveHold(req.UserID, model.HoldSpot)
	if err != nil {
		return err
	}
	if hold != nil && hold.RequestID == req.ID {
		if _, err := tx.DeactivateHold(hold.ID); err != nil {
			return err
		}
		fx.disarm(holdKey(hold))
		return revertSpotHold(tx, hold)
	}

	rel, err := tx.FindAwardedRelease(req.UserID, req.Date)
	if err != nil {
		return err
	}
	if rel != nil && rel.Status == status.ReleaseWaiting {
		if err := tx.SetReleaseStatus(rel.ID, status.ReleaseWaiting, status.ReleasePending); err != nil {
			return err
		}
	}
	fx.disarm(scheduler.SpotKey(req.UserID.String(), req.Date.String()))
	return tx.SetRequestStatus(req.ID, status.RequestWaitingConfirmation, status.RequestCanceled)
}

func (e *Engine) revokeAccepted(tx store.Tx, req *model.Request, fx *effects) error {
	rel, err := tx.FindAwardedRelease(req.UserID, req.Date)
	if err != nil {
		return err
	}
	if rel == nil || rel.Status != status.ReleaseAccepted {
		log.Printf("Accepted request %s has no accepted release, canceling it alone", req.ID)
		return tx.SetRequestStatus(req.ID, status.RequestAccepted, status.RequestCanceled)
	}

	if err := tx.SetReleaseStatus(rel.ID, status.ReleaseAccepted, status.ReleasePending); err != nil {
		return err
	}
	if err := tx.SetRequestStatus(req.ID, status.RequestAccepted, status.RequestCanceled); err != nil {
		return err
	}
	if err := tx.DecrementRating(req.UserID); err != nil {
		return err
	}

	reminder, err := tx.FindActiveHoldForRelease(rel.ID, model.HoldReminder)
	if err != nil {
		return err
	}
	if reminder != nil {
		if _, err := tx.DeactivateHold(reminder.ID); err != nil {
			return err
		}
		fx.disarm(holdKey(reminder))
	}
	return nil
}
