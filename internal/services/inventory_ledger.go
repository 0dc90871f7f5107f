package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tripnest/booking-backend/internal/models"
)

// InventoryLedgerConfig bounds retries on departure writes
type InventoryLedgerConfig struct {
	MaxCASAttempts int         // lost races tolerated per call (default 20)
	Retry          RetryPolicy // transient store failures
}

// DefaultInventoryLedgerConfig returns default configuration
func DefaultInventoryLedgerConfig() InventoryLedgerConfig {
	return InventoryLedgerConfig{
		MaxCASAttempts: 20,
		Retry:          DefaultRetryPolicy(),
	}
}

// InventoryLedger is the only writer of a departure's booked seats and status.
// Every write is conditional on the version read just before it, so concurrent
// callers never overwrite each other and capacity is never exceeded.
type InventoryLedger struct {
	departures DepartureStore
	config     InventoryLedgerConfig
	logger     *logrus.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(departures DepartureStore, config InventoryLedgerConfig, logger *logrus.Logger) *InventoryLedger {
	if config.MaxCASAttempts < 1 {
		config.MaxCASAttempts = 1
	}
	return &InventoryLedger{
		departures: departures,
		config:     config,
		logger:     logger,
	}
}

// ============================================================================
// OPERATIONS
// ============================================================================

// Reserve adds seats to a departure's booked count if they fit
func (l *InventoryLedger) Reserve(ctx context.Context, departureID string, seats int) (*models.Departure, error) {
	if seats <= 0 {
		return nil, ErrInvalidSeatCount
	}

	return l.mutate(ctx, departureID, "reserve", func(d *models.Departure) (bool, error) {
		if d.Status.IsTerminal() {
			return false, ErrDepartureClosed
		}
		if !d.HasCapacityFor(seats) {
			return false, ErrCapacityExceeded
		}
		d.BookedSeats += seats
		return true, nil
	})
}

// Release returns seats to a departure. It never clamps: releasing more than
// is booked is rejected with ErrInvalidRelease.
func (l *InventoryLedger) Release(ctx context.Context, departureID string, seats int) (*models.Departure, error) {
	if seats <= 0 {
		return nil, ErrInvalidSeatCount
	}

	return l.mutate(ctx, departureID, "release", func(d *models.Departure) (bool, error) {
		if d.BookedSeats < seats {
			return false, ErrInvalidRelease
		}
		d.BookedSeats -= seats
		return true, nil
	})
}

// SetStatus moves a departure between statuses. Cancelled and completed are final.
func (l *InventoryLedger) SetStatus(ctx context.Context, departureID string, status models.DepartureStatus) (*models.Departure, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidStatusChange, status)
	}

	return l.mutate(ctx, departureID, "set_status", func(d *models.Departure) (bool, error) {
		if d.Status == status {
			return false, nil
		}
		if d.Status.IsTerminal() || status == models.DepartureStatusScheduled {
			return false, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, d.Status, status)
		}
		d.Status = status
		return true, nil
	})
}

// Get returns a departure or ErrDepartureNotFound
func (l *InventoryLedger) Get(ctx context.Context, departureID string) (*models.Departure, error) {
	return l.load(ctx, departureID)
}

// Open stores a new departure with no seats booked
func (l *InventoryLedger) Open(ctx context.Context, d *models.Departure) error {
	d.BookedSeats = 0
	d.Version = 0
	if d.Status == "" {
		d.Status = models.DepartureStatusScheduled
	}

	_, err := withRetry(ctx, l.config.Retry, func() (struct{}, error) {
		return struct{}{}, l.departures.Create(ctx, d)
	})
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"departure_id": d.ID,
		"plan_id":      d.PlanID,
		"capacity":     d.TotalCapacity,
	}).Info("Departure opened")
	return nil
}

// ============================================================================
// CONDITIONAL WRITE LOOP
// ============================================================================

// mutate reads the departure, applies fn to a copy and writes it back only if
// nobody else wrote in between. A lost race re-reads and re-evaluates fn, so a
// capacity or floor rejection always reflects the latest committed state.
func (l *InventoryLedger) mutate(
	ctx context.Context,
	departureID string,
	op string,
	fn func(d *models.Departure) (bool, error),
) (*models.Departure, error) {
	for attempt := 1; attempt <= l.config.MaxCASAttempts; attempt++ {
		current, err := l.load(ctx, departureID)
		if err != nil {
			return nil, err
		}

		next := *current
		changed, err := fn(&next)
		if err != nil {
			return nil, err
		}
		if !changed {
			return current, nil
		}

		// Nothing has been written yet, so cancellation is side-effect free
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		swapped, err := withRetry(ctx, l.config.Retry, func() (bool, error) {
			return l.departures.CompareAndSwap(ctx, &next, current.Version)
		})
		if err != nil {
			return nil, err
		}

		if swapped {
			l.logger.WithFields(logrus.Fields{
				"departure_id": departureID,
				"op":           op,
				"booked_seats": next.BookedSeats,
				"capacity":     next.TotalCapacity,
				"status":       next.Status,
				"version":      next.Version,
				"attempt":      attempt,
			}).Debug("Departure updated")
			return &next, nil
		}

		l.logger.WithFields(logrus.Fields{
			"departure_id": departureID,
			"op":           op,
			"attempt":      attempt,
		}).Debug("Lost departure write race, re-reading")
	}

	l.logger.WithFields(logrus.Fields{
		"departure_id": departureID,
		"op":           op,
		"attempts":     l.config.MaxCASAttempts,
	}).Warn("Departure write retries exhausted")
	return nil, ErrConcurrencyExhausted
}

func (l *InventoryLedger) load(ctx context.Context, departureID string) (*models.Departure, error) {
	d, err := withRetry(ctx, l.config.Retry, func() (*models.Departure, error) {
		return l.departures.GetByID(ctx, departureID)
	})
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrDepartureNotFound
	}
	return d, nil
}
