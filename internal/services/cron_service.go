package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
)

// CronConfig holds the job schedules
type CronConfig struct {
	TripCompletionSpec string        // "0 */15 * * * *" = every 15 minutes
	PayoutSpec         string        // "0 0 * * * *" = hourly
	RefundWindow       time.Duration // payouts wait this long after the trip date
	BatchSize          int
}

// DefaultCronConfig returns default configuration
func DefaultCronConfig() CronConfig {
	return CronConfig{
		TripCompletionSpec: "0 */15 * * * *",
		PayoutSpec:         "0 0 * * * *",
		RefundWindow:       48 * time.Hour,
		BatchSize:          200,
	}
}

// JobResult summarizes one run of a scheduled job
type JobResult struct {
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// CronService manages scheduled background jobs that drive time based
// lifecycle triggers
type CronService struct {
	cron        *cron.Cron
	coordinator *ReservationCoordinator
	ledger      *InventoryLedger
	departures  DepartureStore
	bookings    BookingStore
	config      CronConfig
	now         func() time.Time
	logger      *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(
	coordinator *ReservationCoordinator,
	ledger *InventoryLedger,
	departures DepartureStore,
	bookings BookingStore,
	config CronConfig,
	logger *logrus.Logger,
) *CronService {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultCronConfig().BatchSize
	}
	return &CronService{
		// Seconds precision: second minute hour day month weekday
		cron:        cron.New(cron.WithSeconds()),
		coordinator: coordinator,
		ledger:      ledger,
		departures:  departures,
		bookings:    bookings,
		config:      config,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger,
	}
}

// Start schedules all jobs and starts the scheduler
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	if _, err := s.cron.AddFunc(s.config.TripCompletionSpec, s.completeTripsJob); err != nil {
		return fmt.Errorf("failed to schedule trip completion job: %w", err)
	}
	s.logger.WithField("spec", s.config.TripCompletionSpec).Info("✓ Scheduled: Complete past trips")

	if _, err := s.cron.AddFunc(s.config.PayoutSpec, s.payoutsJob); err != nil {
		return fmt.Errorf("failed to schedule payout job: %w", err)
	}
	s.logger.WithField("spec", s.config.PayoutSpec).Info("✓ Scheduled: Begin vendor payouts")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

func (s *CronService) completeTripsJob() {
	s.logger.Info("[CRON] Starting trip completion job...")
	result := s.CompleteTrips(context.Background())
	s.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"duration":  result.Duration.String(),
	}).Info("[CRON] ✓ Trip completion job finished")
}

func (s *CronService) payoutsJob() {
	s.logger.Info("[CRON] Starting payout job...")
	result := s.BeginPayouts(context.Background())
	s.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"duration":  result.Duration.String(),
	}).Info("[CRON] ✓ Payout job finished")
}

// CompleteTrips marks departures whose time has passed as completed and
// applies MarkTripComplete to their confirmed bookings
func (s *CronService) CompleteTrips(ctx context.Context) *JobResult {
	start := time.Now()
	result := &JobResult{}
	now := s.now()

	departures, err := s.departures.ListDueForCompletion(ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to list departures due for completion")
		result.Failed++
	}
	for _, d := range departures {
		if _, err := s.ledger.SetStatus(ctx, d.ID, models.DepartureStatusCompleted); err != nil {
			s.logger.WithError(err).WithField("departure_id", d.ID).Error("[CRON ERROR] Failed to complete departure")
			result.Failed++
		}
	}

	bookings, err := s.bookings.ListDueForTripCompletion(ctx, now, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to list bookings due for completion")
		result.Failed++
		result.Duration = time.Since(start)
		return result
	}
	s.applyAll(ctx, bookings, models.EventMarkTripComplete, result)

	result.Duration = time.Since(start)
	return result
}

// BeginPayouts starts vendor payouts for paid bookings whose refund window
// has closed
func (s *CronService) BeginPayouts(ctx context.Context) *JobResult {
	start := time.Now()
	result := &JobResult{}

	cutoff := s.now().Add(-s.config.RefundWindow)
	bookings, err := s.bookings.ListDueForPayout(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Failed to list bookings due for payout")
		result.Failed++
		result.Duration = time.Since(start)
		return result
	}
	s.applyAll(ctx, bookings, models.EventBeginPayout, result)

	result.Duration = time.Since(start)
	return result
}

func (s *CronService) applyAll(ctx context.Context, bookings []*models.Booking, event models.BookingEvent, result *JobResult) {
	actx := models.AuditContext{Source: models.AuditSourceScheduler}

	for _, b := range bookings {
		_, err := s.coordinator.ApplyBookingEvent(ctx, b.ID, event, models.EventPayload{}, actx)
		switch {
		case err == nil:
			result.Processed++
		case errors.Is(err, ErrInvalidStateTransition):
			// Booking moved on since it was listed
			result.Skipped++
		default:
			result.Failed++
			s.logger.WithError(err).WithFields(logrus.Fields{
				"booking_id": b.ID,
				"event":      event,
			}).Error("[CRON ERROR] Failed to apply scheduled event")
		}
	}
}

// RunCompleteTripsNow runs the trip completion job immediately
func (s *CronService) RunCompleteTripsNow(ctx context.Context) *JobResult {
	s.logger.Info("[MANUAL] Running trip completion now...")
	return s.CompleteTrips(ctx)
}

// RunPayoutsNow runs the payout job immediately
func (s *CronService) RunPayoutsNow(ctx context.Context) *JobResult {
	s.logger.Info("[MANUAL] Running payouts now...")
	return s.BeginPayouts(ctx)
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	return map[string]interface{}{
		"running":   len(entries) > 0,
		"job_count": len(entries),
		"jobs":      jobs,
	}
}
