package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"parking-spot-backend/internal/apperr"
	"parking-spot-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// Publisher forwards intents to another channel, such as a message broker.
type Publisher interface {
	Publish(ctx context.Context, in Intent) error
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size         int
	jobs         chan Intent
	db           *gorm.DB
	webpush      *webpush.Options
	sender       NotificationSender
	publisher    Publisher
	sendTimeout  time.Duration
	dispatchWait time.Duration
	loc          *time.Location

	wg sync.WaitGroup
	// stopMu guards stopped and the close of jobs against concurrent sends.
	stopMu  sync.RWMutex
	stopped bool
}

// Option configures a WorkerPool.
type Option func(*WorkerPool)

// WithPublisher also hands every intent to p.
func WithPublisher(p Publisher) Option {
	return func(wp *WorkerPool) { wp.publisher = p }
}

// WithoutPush skips web push delivery. Intents still reach the publisher.
func WithoutPush() Option {
	return func(wp *WorkerPool) { wp.sender = nil }
}

// WithSendTimeout bounds each delivery attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(wp *WorkerPool) { wp.sendTimeout = d }
}

// WithLocation sets the zone deadlines are shown in.
func WithLocation(loc *time.Location) Option {
	return func(wp *WorkerPool) { wp.loc = loc }
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, opts ...Option) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	wp := &WorkerPool{
		size:         size,
		jobs:         make(chan Intent, queueSize),
		db:           db,
		webpush:      webpushOptions,
		sender:       &WebPushSender{}, // Use the real sender by default
		sendTimeout:  10 * time.Second,
		dispatchWait: time.Second,
		loc:          time.UTC,
	}
	for _, opt := range opts {
		opt(wp)
	}
	return wp
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop closes the queue and waits until the workers have delivered what was
// already queued. Intents dispatched after Stop are dropped.
func (wp *WorkerPool) Stop() {
	wp.stopMu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.jobs)
	}
	wp.stopMu.Unlock()
	wp.wg.Wait()
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)
	for {
		select {
		case in, ok := <-wp.jobs:
			if !ok {
				log.Printf("Worker %d drained", id)
				return
			}
			wp.deliver(ctx, in)
		case <-ctx.Done():
			log.Printf("Worker %d shutting down", id)
			return
		}
	}
}

// Dispatch queues an intent. When the queue stays full for longer than the
// dispatch wait the intent is dropped and logged.
func (wp *WorkerPool) Dispatch(in Intent) {
	wp.stopMu.RLock()
	defer wp.stopMu.RUnlock()
	if wp.stopped {
		err := &apperr.GatewayError{Op: "dispatch " + string(in.Kind), Err: fmt.Errorf("worker pool stopped")}
		log.Printf("Dropping notification for user %s: %v", in.UserID, err)
		return
	}

	select {
	case wp.jobs <- in:
		return
	default:
	}

	timer := time.NewTimer(wp.dispatchWait)
	defer timer.Stop()
	select {
	case wp.jobs <- in:
	case <-timer.C:
		err := &apperr.GatewayError{Op: "dispatch " + string(in.Kind), Err: fmt.Errorf("queue full")}
		log.Printf("Dropping notification for user %s: %v", in.UserID, err)
	}
}

func (wp *WorkerPool) deliver(ctx context.Context, in Intent) {
	if wp.publisher != nil {
		pctx, cancel := context.WithTimeout(ctx, wp.sendTimeout)
		if err := wp.publisher.Publish(pctx, in); err != nil {
			log.Printf("%v", &apperr.GatewayError{Op: "publish " + string(in.Kind), Err: err})
		}
		cancel()
	}
	if wp.sender == nil {
		return
	}
	wp.sendNotificationsForUser(ctx, in)
}

// sendNotificationsForUser fetches the user's subscriptions and pushes the
// rendered intent to each of them.
func (wp *WorkerPool) sendNotificationsForUser(ctx context.Context, in Intent) {
	var subscriptions []model.PushSubscription
	if err := wp.db.WithContext(ctx).
		Where("user_id = ?", in.UserID).
		Find(&subscriptions).Error; err != nil {
		log.Printf("Error fetching subscriptions for user %s: %v", in.UserID, err)
		return
	}

	if len(subscriptions) == 0 {
		return
	}

	spotLabel := fmt.Sprintf("№%d", in.SpotID)
	var spot model.ParkingSpot
	if err := wp.db.WithContext(ctx).
		Select("label").
		First(&spot, in.SpotID).Error; err != nil {
		log.Printf("Error fetching spot %d: %v", in.SpotID, err)
	} else if spot.Label != "" {
		spotLabel = spot.Label
	}

	payload, err := json.Marshal(Render(in, spotLabel, wp.loc))
	if err != nil {
		log.Printf("Error encoding %s notification: %v", in.Kind, err)
		return
	}

	log.Printf("Sending %s to %d subscriptions of user %s", in.Kind, len(subscriptions), in.UserID)
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	// Manually construct the webpush.Subscription object
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	sctx, cancel := context.WithTimeout(ctx, wp.sendTimeout)
	defer cancel()
	resp, err := wp.sender.Send(sctx, payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("%v", &apperr.GatewayError{Op: "push to " + sub.Endpoint, Err: err})
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	}
}
