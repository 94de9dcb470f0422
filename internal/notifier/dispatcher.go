package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/quiet-harbor/guardrail/internal/metrics"
	"github.com/quiet-harbor/guardrail/internal/models"
)

// AttemptRecorder persists delivery outcomes. RecordAttempt stores one
// attempt row; MarkDelivered stamps the alert's delivered_at entry for a
// channel that succeeded.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	MarkDelivered(ctx context.Context, alertID string, channel models.DeliveryChannel, at time.Time) error
}

// Options configures the dispatcher.
type Options struct {
	// MaxConcurrent bounds total concurrent delivery attempts across all
	// alerts, so a burst of failing tests cannot fan out without limit.
	MaxConcurrent int64
	// SendTimeout bounds one channel send; a timed-out attempt is a
	// failure, never left pending.
	SendTimeout time.Duration
	// RatePerSecond caps notification sends; 0 disables rate limiting.
	RatePerSecond float64
	// RateBurst is the rate limiter burst size.
	RateBurst int
}

// DefaultOptions returns default dispatcher options.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent: 16,
		SendTimeout:   10 * time.Second,
		RatePerSecond: 0,
		RateBurst:     1,
	}
}

// Dispatcher fans a firing alert out to its delivery channels. Channels
// are independent: each send succeeds or fails on its own, outcomes are
// recorded per channel, and no failure propagates to the caller.
type Dispatcher struct {
	mu        sync.RWMutex
	notifiers map[models.DeliveryChannel]Notifier

	recorder AttemptRecorder
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	timeout  time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher. recorder may be nil, in which case
// outcomes are only logged (used by tests and by test-delivery).
func NewDispatcher(recorder AttemptRecorder, opts Options) *Dispatcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 16
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}

	d := &Dispatcher{
		notifiers: make(map[models.DeliveryChannel]Notifier),
		recorder:  recorder,
		sem:       semaphore.NewWeighted(opts.MaxConcurrent),
		timeout:   opts.SendTimeout,
	}
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return d
}

// Register adds a notifier for its channel.
func (d *Dispatcher) Register(n Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifiers[n.Channel()] = n
}

// Get returns the notifier for a channel.
func (d *Dispatcher) Get(ch models.DeliveryChannel) (Notifier, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.notifiers[ch]
	return n, ok
}

// Deliver fans the alert out to all of its channels asynchronously and
// returns immediately. Alert creation is complete before Deliver is
// called; delivery outcome never affects it.
func (d *Dispatcher) Deliver(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.DeliverSync(ctx, alert, settings)
	}()
}

// DeliverSync delivers to all of the alert's channels concurrently and
// waits for the outcomes. Used by the redeliver operation, which reports
// attempt results to the caller. Re-sending to a channel that already
// succeeded is acceptable duplication.
func (d *Dispatcher) DeliverSync(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) []*models.DeliveryAttempt {
	attempts := make([]*models.DeliveryAttempt, len(alert.DeliveryChannels))

	var wg sync.WaitGroup
	for i, ch := range alert.DeliveryChannels {
		wg.Add(1)
		go func(i int, ch models.DeliveryChannel) {
			defer wg.Done()
			attempts[i] = d.deliverChannel(ctx, alert, ch, settings)
		}(i, ch)
	}
	wg.Wait()

	return attempts
}

// deliverChannel performs one channel's delivery attempt and records the
// outcome. Cancelling one channel's attempt does not affect the others.
func (d *Dispatcher) deliverChannel(ctx context.Context, alert *models.Alert, ch models.DeliveryChannel, settings models.ChannelSettings) *models.DeliveryAttempt {
	if d.limiter != nil && !d.limiter.Allow() {
		metrics.DeliveriesRateLimited.Inc()
		return d.record(ctx, alert.ID, ch, fmt.Errorf("notification rate limit exceeded"))
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return d.record(ctx, alert.ID, ch, fmt.Errorf("acquire delivery slot: %w", err))
	}
	defer d.sem.Release(1)

	n, ok := d.Get(ch)
	if !ok {
		return d.record(ctx, alert.ID, ch, fmt.Errorf("no notifier for channel %q", ch))
	}

	metrics.DeliveriesInFlight.Inc()
	defer metrics.DeliveriesInFlight.Dec()

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := n.Send(sendCtx, alert, settings)
	metrics.DeliveryDuration.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())

	return d.record(ctx, alert.ID, ch, err)
}

// record persists one attempt outcome and, on success, the alert's
// delivered_at stamp. Persistence failures are logged only: delivery
// outcomes are data, not control flow.
func (d *Dispatcher) record(ctx context.Context, alertID string, ch models.DeliveryChannel, sendErr error) *models.DeliveryAttempt {
	now := time.Now()
	attempt := &models.DeliveryAttempt{
		ID:          uuid.New().String(),
		AlertID:     alertID,
		Channel:     ch,
		Succeeded:   sendErr == nil,
		AttemptedAt: now,
	}

	outcome := "success"
	if sendErr != nil {
		outcome = "failure"
		attempt.Reason = sendErr.Error()
		log.Printf("delivery failed: alert %s channel %s: %v", alertID, ch, sendErr)
	}
	metrics.DeliveryAttempts.WithLabelValues(string(ch), outcome).Inc()

	if d.recorder == nil {
		return attempt
	}

	if err := d.recorder.RecordAttempt(ctx, attempt); err != nil {
		log.Printf("warning: record delivery attempt for alert %s: %v", alertID, err)
	}
	if sendErr == nil {
		if err := d.recorder.MarkDelivered(ctx, alertID, ch, now); err != nil {
			log.Printf("warning: mark alert %s delivered on %s: %v", alertID, ch, err)
		}
	}

	return attempt
}

// TestDelivery performs one ad hoc delivery attempt against the given
// channel and settings, without creating or touching any alert. Used to
// validate configuration before a rule is saved.
func (d *Dispatcher) TestDelivery(ctx context.Context, ch models.DeliveryChannel, settings models.ChannelSettings) error {
	n, ok := d.Get(ch)
	if !ok {
		return fmt.Errorf("no notifier for channel %q", ch)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	now := time.Now()
	probe := &models.Alert{
		ID:          uuid.New().String(),
		AlertNumber: 0,
		Title:       "Guardrail test notification",
		Description: "This is a test delivery. No alert was created.",
		Severity:    models.SeverityLow,
		Status:      models.StatusOpen,
		RuleName:    "test-delivery",
		TestID:      "test",
		ControlID:   "test",
		Result: models.ResultSnapshot{
			Status:   models.ResultStatusPass,
			Message:  "test delivery probe",
			TestedAt: now,
		},
		DeliveryChannels: []models.DeliveryChannel{ch},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	return n.Send(sendCtx, probe, settings)
}

// Shutdown waits for in-flight deliveries to finish or the context to
// expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
