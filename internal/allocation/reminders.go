package allocation

import (
	"context"
	"log"

	"github.com/google/uuid"

	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/notification"
	"parking-spot-backend/internal/store"
)

// SendReminders asks every user holding a confirmed spot on date whether
// they still need it. Each award is reminded at most once. It returns the
// number of reminders sent and the number deferred because the user is still
// answering another reminder; deferred awards are picked up by a later call.
func (e *Engine) SendReminders(ctx context.Context, date model.Date) (sent, deferred int, err error) {
	now, _ := e.clock()
	deadline := now.Add(ReminderWindow)

	var fx effects
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		deferred = 0
		awards, err := tx.ListAcceptedAwards(date)
		if err != nil {
			return err
		}
		for _, a := range awards {
			existing, err := tx.FindActiveHold(a.UserID, model.HoldReminder)
			if err != nil {
				return err
			}
			if existing != nil {
				log.Printf("User %s still has an open reminder, deferring spot %d on %s", a.UserID, a.SpotID, a.Date)
				deferred++
				continue
			}

			hold := &model.Hold{
				Kind:      model.HoldReminder,
				UserID:    a.UserID,
				ReleaseID: a.ReleaseID,
				RequestID: a.RequestID,
				SpotID:    a.SpotID,
				Date:      a.Date,
				IsActive:  true,
				ArmedAt:   now,
				Deadline:  deadline,
			}
			if err := tx.CreateHold(hold); err != nil {
				return err
			}
			fx.arm(holdKey(hold), deadline, hold.ID)
			fx.notify(notification.Intent{
				Kind:     notification.ReminderNeeded,
				UserID:   a.UserID,
				SpotID:   a.SpotID,
				Date:     a.Date,
				Deadline: &deadline,
			})
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	e.apply(&fx)
	if len(fx.arms) > 0 {
		log.Printf("Sent %d reminders for %s", len(fx.arms), date)
	}
	return len(fx.arms), deferred, nil
}

// ConfirmReminder keeps the spot. Statuses do not change.
func (e *Engine) ConfirmReminder(ctx context.Context, userID uuid.UUID) error {
	var fx effects
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		hold, err := claimHold(tx, userID, model.HoldReminder)
		if err != nil {
			return err
		}
		fx.disarm(holdKey(hold))
		return nil
	})
	if err != nil {
		return err
	}
	e.apply(&fx)
	return nil
}

// CancelReminder gives the spot back without a rating penalty.
func (e *Engine) CancelReminder(ctx context.Context, userID uuid.UUID) error {
	var fx effects
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		hold, err := claimHold(tx, userID, model.HoldReminder)
		if err != nil {
			return err
		}
		fx.disarm(holdKey(hold))
		return revertReminderHold(tx, hold)
	})
	if err != nil {
		return err
	}
	e.apply(&fx)
	e.redistribute(ctx)
	return nil
}

// SweepStale closes pending releases and requests whose date has passed.
func (e *Engine) SweepStale(ctx context.Context) (releases, requests int64, err error) {
	_, today := e.clock()
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		releases, requests, err = tx.SweepStale(today)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	if releases > 0 || requests > 0 {
		log.Printf("Swept %d stale releases and %d stale requests", releases, requests)
	}
	return releases, requests, nil
}
