// Package allocation matches released parking spots to requests.
//
// Every operation runs its reads and writes in one store transaction. Timers
// and notifications are side effects collected during the transaction and
// applied only after it commits, so a rolled back run leaves no trace.
package allocation

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"parking-spot-backend/internal/model"
	"parking-spot-backend/internal/notification"
	"parking-spot-backend/internal/scheduler"
	"parking-spot-backend/internal/status"
	"parking-spot-backend/internal/store"
)

// ReminderWindow is how long a user has to answer the evening reminder.
const ReminderWindow = 5*time.Hour + 50*time.Minute

// Notifier receives intents after a successful commit. Delivery is best
// effort.
type Notifier interface {
	Dispatch(in notification.Intent)
}

// Timers is the part of the scheduler the engine needs.
type Timers interface {
	Handle(h scheduler.Handler)
	ArmAt(key scheduler.Key, deadline time.Time, payload any) time.Time
	Disarm(key scheduler.Key) bool
}

// Policy holds the matching rules.
type Policy struct {
	Location *time.Location
	// Awards for today made after the cutoff wait for confirmation.
	CutoffHour   int
	CutoffMinute int
	// ConfirmWindow is how long a provisional award waits.
	ConfirmWindow time.Duration
	// ExcludeSuppliers leaves out requesters who have a free release on
	// the same date.
	ExcludeSuppliers bool
}

// DefaultPolicy is the 09:00 cutoff with a 15 minute window.
func DefaultPolicy() Policy {
	return Policy{
		Location:         time.UTC,
		CutoffHour:       9,
		ConfirmWindow:    15 * time.Minute,
		ExcludeSuppliers: true,
	}
}

// Engine runs distributions and the confirmation handshake.
type Engine struct {
	store    store.Store
	timers   Timers
	notifier Notifier
	policy   Policy
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRand sets the source used to break rating ties.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New creates an engine and registers it as the timers' expiry handler.
func New(s store.Store, timers Timers, notifier Notifier, policy Policy, opts ...Option) *Engine {
	if policy.Location == nil {
		policy.Location = time.UTC
	}
	e := &Engine{
		store:    s,
		timers:   timers,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	timers.Handle(e.onTimeout)
	return e
}

type armJob struct {
	key      scheduler.Key
	deadline time.Time
	holdID   uuid.UUID
}

// effects are applied once the transaction that produced them commits.
type effects struct {
	intents []notification.Intent
	arms    []armJob
	disarms []scheduler.Key
}

func (fx *effects) notify(in notification.Intent) {
	fx.intents = append(fx.intents, in)
}

func (fx *effects) arm(key scheduler.Key, deadline time.Time, holdID uuid.UUID) {
	fx.arms = append(fx.arms, armJob{key: key, deadline: deadline, holdID: holdID})
}

func (fx *effects) disarm(key scheduler.Key) {
	fx.disarms = append(fx.disarms, key)
}

func (e *Engine) apply(fx *effects) {
	for _, key := range fx.disarms {
		e.timers.Disarm(key)
	}
	for _, job := range fx.arms {
		e.timers.ArmAt(job.key, job.deadline, job.holdID)
	}
	for _, in := range fx.intents {
		e.notifier.Dispatch(in)
	}
}

// clock returns the current time in the policy location and today's date.
func (e *Engine) clock() (time.Time, model.Date) {
	now := e.now().In(e.policy.Location)
	return now, model.DateOf(now)
}

// Today is the current date in the policy location.
func (e *Engine) Today() model.Date {
	_, today := e.clock()
	return today
}

func (e *Engine) pastCutoff(now time.Time) bool {
	y, m, d := now.Date()
	cutoff := time.Date(y, m, d, e.policy.CutoffHour, e.policy.CutoffMinute, 0, 0, now.Location())
	return now.After(cutoff)
}

// RunDistribution awards free releases to pending requests for every date
// from today on. It returns the number of direct (confirmed) awards;
// provisional awards are not counted. On failure nothing is written and the
// count is 0.
func (e *Engine) RunDistribution(ctx context.Context) (int, error) {
	now, today := e.clock()
	provisionalToday := e.pastCutoff(now)

	var (
		fx      effects
		awarded int
	)
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		dates, err := tx.DatesWithAvailability(today)
		if err != nil {
			return err
		}
		for _, date := range dates {
			n, err := e.distributeDate(tx, date, provisionalToday && date.Equal(today), now, &fx)
			if err != nil {
				return err
			}
			awarded += n
		}
		return nil
	})
	if err != nil {
		log.Printf("Distribution failed: %v", err)
		return 0, err
	}

	e.apply(&fx)
	if awarded > 0 || len(fx.arms) > 0 {
		log.Printf("Distributed %d parking spots, %d awaiting confirmation", awarded, len(fx.arms))
	}
	return awarded, nil
}

func (e *Engine) distributeDate(tx store.Tx, date model.Date, provisional bool, now time.Time, fx *effects) (int, error) {
	free, err := tx.ListFreeReleases(date)
	if err != nil || len(free) == 0 {
		return 0, err
	}
	candidates, err := tx.ListPendingRequests(date, e.policy.ExcludeSuppliers)
	if err != nil || len(candidates) == 0 {
		return 0, err
	}

	awarded := 0
	for i, c := range e.selectCandidates(candidates, len(free)) {
		rel := free[i]
		if provisional {
			if err := e.offer(tx, rel, c, now, fx); err != nil {
				return 0, err
			}
			continue
		}
		if err := e.award(tx, rel, c, now, fx); err != nil {
			return 0, err
		}
		awarded++
	}
	return awarded, nil
}

// award gives rel to c straight away.
func (e *Engine) award(tx store.Tx, rel model.Release, c store.Candidate, now time.Time, fx *effects) error {
	if err := tx.AwardRelease(rel.ID, c.UserID, status.ReleaseAccepted); err != nil {
		return err
	}
	if err := tx.AwardRequest(c.RequestID, status.RequestAccepted, now); err != nil {
		return err
	}
	if err := tx.IncrementRating(c.UserID); err != nil {
		return err
	}

	fx.notify(notification.Intent{Kind: notification.AwardGranted, UserID: c.UserID, SpotID: rel.SpotID, Date: rel.Date})
	if rel.OwnerID != c.UserID {
		fx.notify(notification.Intent{Kind: notification.AwardGivenAway, UserID: rel.OwnerID, SpotID: rel.SpotID, Date: rel.Date})
	}
	return nil
}

// offer gives rel to c provisionally and opens a confirmation window.
func (e *Engine) offer(tx store.Tx, rel model.Release, c store.Candidate, now time.Time, fx *effects) error {
	if err := tx.AwardRelease(rel.ID, c.UserID, status.ReleaseWaiting); err != nil {
		return err
	}
	if err := tx.AwardRequest(c.RequestID, status.RequestWaitingConfirmation, now); err != nil {
		return err
	}

	deadline := now.Add(e.policy.ConfirmWindow)
	hold := &model.Hold{
		Kind:      model.HoldSpot,
		UserID:    c.UserID,
		ReleaseID: rel.ID,
		RequestID: c.RequestID,
		SpotID:    rel.SpotID,
		Date:      rel.Date,
		IsActive:  true,
		ArmedAt:   now,
		Deadline:  deadline,
	}
	if err := tx.CreateHold(hold); err != nil {
		return err
	}

	fx.arm(holdKey(hold), deadline, hold.ID)
	fx.notify(notification.Intent{
		Kind:     notification.ConfirmationNeeded,
		UserID:   c.UserID,
		SpotID:   rel.SpotID,
		Date:     rel.Date,
		Deadline: &deadline,
	})
	return nil
}

// selectCandidates picks up to k candidates. The lowest rating goes first;
// within one rating the order is a uniform random permutation. When a rating
// tier has fewer members than k, the next tier fills the rest.
func (e *Engine) selectCandidates(candidates []store.Candidate, k int) []store.Candidate {
	sorted := append([]store.Candidate(nil), candidates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating < sorted[j].Rating })

	selected := make([]store.Candidate, 0, k)
	for start := 0; start < len(sorted) && len(selected) < k; {
		end := start
		for end < len(sorted) && sorted[end].Rating == sorted[start].Rating {
			end++
		}
		tier := sorted[start:end]
		e.shuffle(tier)

		need := k - len(selected)
		if need > len(tier) {
			need = len(tier)
		}
		selected = append(selected, tier[:need]...)
		start = end
	}
	return selected
}

func (e *Engine) shuffle(c []store.Candidate) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(c), func(i, j int) { c[i], c[j] = c[j], c[i] })
}

// redistribute runs a distribution after a successful user action. A failure
// is logged and left to the next trigger.
func (e *Engine) redistribute(ctx context.Context) {
	if _, err := e.RunDistribution(ctx); err != nil {
		log.Printf("Redistribution after user action failed: %v", err)
	}
}

func holdKey(h *model.Hold) scheduler.Key {
	if h.Kind == model.HoldReminder {
		return scheduler.ReminderKey(h.ReleaseID.String(), h.RequestID.String())
	}
	return scheduler.SpotKey(h.UserID.String(), h.Date.String())
}
