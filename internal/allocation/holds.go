package allocation

import (
	"context"
	"log"

	"github.com/google/uuid"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/notification"
	"parking-spot-backend/internal/scheduler"
	"parking-spot-backend/internal/status"
	"parking-spot-backend/internal/store"
)

// ConfirmSpot accepts the provisional award the user is waiting on.
func (e *Engine) ConfirmSpot(ctx context.Context, userID uuid.UUID) error {
	var fx effects
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		hold, err := claimHold(tx, userID, model.HoldSpot)
		if err != nil {
			return err
		}
		rel, err := tx.GetRelease(hold.ReleaseID)
		if err != nil {
			return err
		}
		if err := tx.SetReleaseStatus(hold.ReleaseID, status.ReleaseWaiting, status.ReleaseAccepted); err != nil {
			return err
		}
		if err := tx.SetRequestStatus(hold.RequestID, status.RequestWaitingConfirmation, status.RequestAccepted); err != nil {
			return err
		}
		if err := tx.IncrementRating(userID); err != nil {
			return err
		}

		fx.disarm(holdKey(hold))
		if rel.OwnerID != userID {
			fx.notify(notification.Intent{Kind: notification.AwardGivenAway, UserID: rel.OwnerID, SpotID: rel.SpotID, Date: rel.Date})
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.apply(&fx)
	return nil
}

// CancelSpot declines the provisional award. The spot goes back to the pool
// and the next candidate is tried right away.
func (e *Engine) CancelSpot(ctx context.Context, userID uuid.UUID) error {
	var fx effects
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		hold, err := claimHold(tx, userID, model.HoldSpot)
		if err != nil {
			return err
		}
		fx.disarm(holdKey(hold))
		return revertSpotHold(tx, hold)
	})
	if err != nil {
		return err
	}
	e.apply(&fx)
	e.redistribute(ctx)
	return nil
}

// HandleTimeout reverts the award behind an expired hold. A hold that was
// already confirmed or canceled is left alone.
func (e *Engine) HandleTimeout(ctx context.Context, holdID uuid.UUID) error {
	var (
		fx       effects
		reverted bool
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		hold, err := tx.GetHold(holdID)
		if apperr.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if !hold.IsActive {
			return nil
		}
		won, err := tx.DeactivateHold(hold.ID)
		if err != nil || !won {
			return err
		}

		in := notification.Intent{UserID: hold.UserID, SpotID: hold.SpotID, Date: hold.Date}
		switch hold.Kind {
		case model.HoldReminder:
			err = revertReminderHold(tx, hold)
			in.Kind = notification.ReminderExpired
		default:
			err = revertSpotHold(tx, hold)
			in.Kind = notification.ConfirmationExpired
		}
		if err != nil {
			return err
		}
		fx.notify(in)
		reverted = true
		return nil
	})
	if err != nil {
		return err
	}
	if !reverted {
		return nil
	}

	log.Printf("Hold %s expired, spot %d is back in the pool", holdID, fx.intents[0].SpotID)
	e.apply(&fx)
	e.redistribute(ctx)
	return nil
}

func (e *Engine) onTimeout(ctx context.Context, key scheduler.Key, payload any) {
	holdID, ok := payload.(uuid.UUID)
	if !ok {
		log.Printf("Timer %s fired with unexpected payload %T", key, payload)
		return
	}
	if err := e.HandleTimeout(ctx, holdID); err != nil {
		log.Printf("Failed to handle expired hold %s: %v", holdID, err)
	}
}

// RestoreTimers re-arms a timer for every active hold at its stored
// deadline. Deadlines that passed while the process was down fire at once.
// Re-arming a hold that already has a timer only replaces it.
func (e *Engine) RestoreTimers(ctx context.Context) (int, error) {
	var holds []model.Hold
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		holds, err = tx.ListActiveHolds()
		return err
	})
	if err != nil {
		return 0, err
	}

	for i := range holds {
		h := &holds[i]
		e.timers.ArmAt(holdKey(h), h.Deadline, h.ID)
	}
	return len(holds), nil
}

// claimHold finds the user's active hold of kind and deactivates it. Only
// one of a user action and the timer can win this.
func claimHold(tx store.Tx, userID uuid.UUID, kind model.HoldKind) (*model.Hold, error) {
	hold, err := tx.FindActiveHold(userID, kind)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, apperr.NotFound(string(kind)+" hold", "")
	}
	won, err := tx.DeactivateHold(hold.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, apperr.Conflict(string(kind)+" hold", hold.ID.String(), "inactive", "confirmation window already closed")
	}
	return hold, nil
}

// revertSpotHold puts the release back in the pool and cancels the request.
func revertSpotHold(tx store.Tx, hold *model.Hold) error {
	if err := tx.SetReleaseStatus(hold.ReleaseID, status.ReleaseWaiting, status.ReleasePending); err != nil {
		return err
	}
	return tx.SetRequestStatus(hold.RequestID, status.RequestWaitingConfirmation, status.RequestCanceled)
}

// revertReminderHold gives a confirmed spot back. Ratings stay as they are.
func revertReminderHold(tx store.Tx, hold *model.Hold) error {
	if err := tx.SetReleaseStatus(hold.ReleaseID, status.ReleaseAccepted, status.ReleasePending); err != nil {
		return err
	}
	return tx.SetRequestStatus(hold.RequestID, status.RequestAccepted, status.RequestCanceled)
}
