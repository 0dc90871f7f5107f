package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
)

// maxReleaseBackoff caps the delay between attempts of a queued release
const maxReleaseBackoff = time.Hour

// ReleaseWorkerConfig holds configuration for the release worker
type ReleaseWorkerConfig struct {
	Interval    time.Duration // time between cycles, also the first retry delay
	MaxAttempts int           // delivery attempts of a release before manual review
	ClaimLease  time.Duration // claims older than this are treated as abandoned
	BatchSize   int
}

// DefaultReleaseWorkerConfig returns default configuration
func DefaultReleaseWorkerConfig() ReleaseWorkerConfig {
	return ReleaseWorkerConfig{
		Interval:    30 * time.Second,
		MaxAttempts: 10,
		ClaimLease:  5 * time.Minute,
		BatchSize:   100,
	}
}

// ReleaseCycleStats summarizes one worker cycle
type ReleaseCycleStats struct {
	BookingReleases   int   `json:"booking_releases"`
	BookingsDeferred  int   `json:"bookings_deferred"`
	BookingsEscalated int   `json:"bookings_escalated"`
	StaleBookings     int   `json:"stale_bookings"`
	QueueReleased     int   `json:"queue_released"`
	QueueRescheduled  int   `json:"queue_rescheduled"`
	QueueEscalated    int   `json:"queue_escalated"`
	StaleQueueClaims  int64 `json:"stale_queue_claims"`
}

// ReleaseWorker delivers seat releases that could not complete inline: releases
// owed by bookings and compensations queued after a failed booking insert.
type ReleaseWorker struct {
	coordinator *ReservationCoordinator
	ledger      *InventoryLedger
	bookings    BookingStore
	queue       ReleaseQueue
	config      ReleaseWorkerConfig
	now         func() time.Time
	logger      *logrus.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	mu       sync.Mutex // serializes cycles between the ticker and manual runs
	last     *ReleaseCycleStats
	lastRun  time.Time
}

// NewReleaseWorker creates a new release worker
func NewReleaseWorker(
	coordinator *ReservationCoordinator,
	ledger *InventoryLedger,
	bookings BookingStore,
	queue ReleaseQueue,
	config ReleaseWorkerConfig,
	logger *logrus.Logger,
) *ReleaseWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultReleaseWorkerConfig().Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultReleaseWorkerConfig().BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultReleaseWorkerConfig().MaxAttempts
	}
	return &ReleaseWorker{
		coordinator: coordinator,
		ledger:      ledger,
		bookings:    bookings,
		queue:       queue,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background loop
func (w *ReleaseWorker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	w.logger.WithField("interval", w.config.Interval.String()).Info("Starting release worker")
	go w.run()
}

// Stop ends the loop and waits for the current cycle to finish
func (w *ReleaseWorker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping release worker")
		close(w.stopCh)
		if w.started.Load() {
			<-w.doneCh
		}
	})
}

func (w *ReleaseWorker) run() {
	defer close(w.doneCh)

	// Run immediately on start
	w.RunOnce(context.Background())

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.RunOnce(context.Background())
		case <-w.stopCh:
			w.logger.Info("Release worker stopped")
			return
		}
	}
}

// RunOnce runs a single cycle (used by the loop, tests and the admin trigger)
func (w *ReleaseWorker) RunOnce(ctx context.Context) *ReleaseCycleStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := &ReleaseCycleStats{}
	now := w.now()

	// 1. Releases owed by bookings
	w.deliverBookingReleases(ctx, stats)

	// 2. Booking claims nobody finished
	w.escalateStaleBookingClaims(ctx, now, stats)

	// 3. Queued compensations
	w.drainQueue(ctx, now, stats)

	if *stats != (ReleaseCycleStats{}) {
		w.logger.WithFields(logrus.Fields{
			"booking_releases":   stats.BookingReleases,
			"bookings_deferred":  stats.BookingsDeferred,
			"bookings_escalated": stats.BookingsEscalated,
			"stale_bookings":     stats.StaleBookings,
			"queue_released":     stats.QueueReleased,
			"queue_rescheduled":  stats.QueueRescheduled,
			"queue_escalated":    stats.QueueEscalated,
			"stale_queue_claims": stats.StaleQueueClaims,
		}).Info("Release cycle finished")
	}

	w.last = stats
	w.lastRun = now
	return stats
}

// GetStats returns the outcome of the most recent cycle
func (w *ReleaseWorker) GetStats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	return map[string]interface{}{
		"interval":   w.config.Interval.String(),
		"last_run":   w.lastRun,
		"last_cycle": w.last,
	}
}

func (w *ReleaseWorker) deliverBookingReleases(ctx context.Context, stats *ReleaseCycleStats) {
	pending, err := w.bookings.ListByReleaseState(ctx, models.ReleaseStatePending, w.config.BatchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to list pending booking releases")
		return
	}

	for _, b := range pending {
		if b.ReleaseAttempts >= w.config.MaxAttempts {
			w.escalateBookingRelease(ctx, b, stats)
			continue
		}

		state, _ := w.coordinator.DeliverRelease(ctx, b)
		switch state {
		case models.ReleaseStateDone:
			stats.BookingReleases++
		case models.ReleaseStatePending:
			stats.BookingsDeferred++
		case models.ReleaseStateManualReview:
			stats.BookingsEscalated++
		}
	}
}

// escalateBookingRelease stops retrying a release whose deliveries keep failing
func (w *ReleaseWorker) escalateBookingRelease(ctx context.Context, b *models.Booking, stats *ReleaseCycleStats) {
	moved, err := w.coordinator.EscalateRelease(ctx, b, "release attempts exhausted")
	if err != nil {
		w.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to escalate booking release")
		return
	}
	if moved {
		stats.BookingsEscalated++
	}
}

// escalateStaleBookingClaims moves abandoned claims to manual review. The
// ledger call behind such a claim may or may not have applied, so it is never
// repeated automatically.
func (w *ReleaseWorker) escalateStaleBookingClaims(ctx context.Context, now time.Time, stats *ReleaseCycleStats) {
	stale, err := w.bookings.ListStaleReleaseClaims(ctx, now.Add(-w.config.ClaimLease), w.config.BatchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to list stale release claims")
		return
	}

	for _, b := range stale {
		moved, err := w.bookings.TransitionRelease(ctx, b.ID, models.ReleaseStateClaimed, models.ReleaseStateManualReview)
		if err != nil {
			w.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to escalate stale release claim")
			continue
		}
		if moved {
			stats.StaleBookings++
			w.logger.WithFields(logrus.Fields{
				"booking_id":   b.ID,
				"departure_id": b.DepartureID,
				"seats":        b.NumPeople,
				"claimed_at":   b.ReleaseClaimedAt,
			}).Error("Seat release claim expired, needs manual review")
		}
	}
}

func (w *ReleaseWorker) drainQueue(ctx context.Context, now time.Time, stats *ReleaseCycleStats) {
	flagged, err := w.queue.FlagStaleClaims(ctx, now.Add(-w.config.ClaimLease))
	if err != nil {
		w.logger.WithError(err).Error("Failed to flag stale queued releases")
	} else if flagged > 0 {
		stats.StaleQueueClaims = flagged
		w.logger.WithField("count", flagged).Error("Queued release claims expired, need manual review")
	}

	due, err := w.queue.ClaimDue(ctx, now, w.config.BatchSize)
	if err != nil {
		w.logger.WithError(err).Error("Failed to claim queued releases")
		return
	}

	for _, pr := range due {
		w.processQueued(ctx, now, pr, stats)
	}
}

func (w *ReleaseWorker) processQueued(ctx context.Context, now time.Time, pr *models.PendingRelease, stats *ReleaseCycleStats) {
	log := w.logger.WithFields(logrus.Fields{
		"pending_release_id": pr.ID,
		"departure_id":       pr.DepartureID,
		"seats":              pr.Seats,
	})

	_, relErr := w.ledger.Release(ctx, pr.DepartureID, pr.Seats)
	if relErr == nil {
		if err := w.queue.MarkDone(ctx, pr.ID); err != nil {
			log.WithError(err).Error("Seats released but queue item not marked done")
			return
		}
		stats.QueueReleased++
		log.Info("Queued release completed")
		return
	}

	attempts := pr.Attempts + 1
	if !releaseNotApplied(relErr) || attempts >= w.config.MaxAttempts {
		if err := w.queue.MarkManualReview(ctx, pr.ID, attempts, relErr.Error()); err != nil {
			log.WithError(err).Error("Failed to escalate queued release")
			return
		}
		stats.QueueEscalated++
		log.WithError(relErr).WithField("attempts", attempts).Error("Queued release needs manual review")
		return
	}

	next := now.Add(releaseRetryDelay(w.config.Interval, attempts))
	if err := w.queue.Reschedule(ctx, pr.ID, attempts, relErr.Error(), next); err != nil {
		log.WithError(err).Error("Failed to reschedule queued release")
		return
	}
	stats.QueueRescheduled++
	log.WithError(relErr).WithFields(logrus.Fields{
		"attempts":        attempts,
		"next_attempt_at": next,
	}).Warn("Queued release failed, rescheduled")
}

// releaseRetryDelay doubles base for every attempt after the first
func releaseRetryDelay(base time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxReleaseBackoff {
			return maxReleaseBackoff
		}
	}
	return delay
}
