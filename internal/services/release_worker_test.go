package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/database"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/pkg/events"
)

func newTestWorker(env *testEnv) *ReleaseWorker {
	return NewReleaseWorker(env.coordinator, env.ledger, env.bookings, env.releases, ReleaseWorkerConfig{
		Interval:    time.Second,
		MaxAttempts: 3,
		ClaimLease:  5 * time.Minute,
		BatchSize:   10,
	}, quietLogger())
}

func newFlakyEnv(t *testing.T) (*testEnv, *flakyDepartures) {
	flaky := &flakyDepartures{}
	env := newTestEnv(t, withDepartureStore(func(s DepartureStore) DepartureStore {
		flaky.DepartureStore = s
		return flaky
	}))
	return env, flaky
}

// failPaymentWithLedgerDown leaves the booking owing a pending release
func failPaymentWithLedgerDown(t *testing.T, env *testEnv, flaky *flakyDepartures, bookingID string) {
	t.Helper()
	flaky.setFailures(-1, database.ErrTransient)
	_, err := env.coordinator.ApplyBookingEvent(context.Background(), bookingID, models.EventPaymentFailed, models.EventPayload{}, adminAudit)
	require.NoError(t, err)
	flaky.setFailures(0, nil)
}

func TestReleaseWorker_DeliversPendingBookingReleases(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	d := env.seedDeparture(t, 10, future())
	b := env.createBooking(t, d.ID, 4)
	failPaymentWithLedgerDown(t, env, flaky, b.ID)
	require.Equal(t, 4, env.bookedSeats(t, d.ID))

	stats := newTestWorker(env).RunOnce(context.Background())
	assert.Equal(t, 1, stats.BookingReleases)
	assert.Zero(t, env.bookedSeats(t, d.ID))

	// Nothing left to do
	stats = newTestWorker(env).RunOnce(context.Background())
	assert.Equal(t, ReleaseCycleStats{}, *stats)
	assert.Zero(t, env.bookedSeats(t, d.ID))
}

func TestReleaseWorker_DefersWhileLedgerIsDown(t *testing.T) {
	env, flaky := newFlakyEnv(t)
	d := env.seedDeparture(t, 10, future())
	b := env.createBooking(t, d.ID, 4)
	failPaymentWithLedgerDown(t, env, flaky, b.ID)

	flaky.setFailures(-1, database.ErrTransient)
	stats := newTestWorker(env).RunOnce(context.Background())
	assert.Equal(t, 1, stats.BookingsDeferred)

	stored, err := env.bookings.GetByID(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStatePending, stored.ReleaseState)
}

func TestReleaseWorker_EscalatesBookingReleaseAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	env, flaky := newFlakyEnv(t)
	d := env.seedDeparture(t, 10, future())
	b := env.createBooking(t, d.ID, 4)
	failPaymentWithLedgerDown(t, env, flaky, b.ID)

	flaky.setFailures(-1, database.ErrTransient)
	worker := newTestWorker(env)
	escalated := 0
	for i := 0; i < 20; i++ {
		escalated += worker.RunOnce(ctx).BookingsEscalated
	}
	assert.Equal(t, 1, escalated)

	stored, err := env.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStateManualReview, stored.ReleaseState)
	assert.Equal(t, 3, stored.ReleaseAttempts)
	assert.Equal(t, 4, env.bookedSeats(t, d.ID))
	assert.Contains(t, env.publisher.types(), events.TypeReleaseEscalate)

	// Escalated releases are left to an operator even once the ledger recovers
	flaky.setFailures(0, nil)
	stats := worker.RunOnce(ctx)
	assert.Zero(t, stats.BookingReleases)
	assert.Equal(t, 4, env.bookedSeats(t, d.ID))
}

func TestReleaseWorker_EscalatesStaleBookingClaims(t *testing.T) {
	ctx := context.Background()
	env, flaky := newFlakyEnv(t)
	d := env.seedDeparture(t, 10, future())
	b := env.createBooking(t, d.ID, 4)
	failPaymentWithLedgerDown(t, env, flaky, b.ID)

	// A worker claimed the release long ago and never finished
	env.store.SetClock(func() time.Time { return time.Now().UTC().Add(-time.Hour) })
	claimed, err := env.bookings.TransitionRelease(ctx, b.ID, models.ReleaseStatePending, models.ReleaseStateClaimed)
	require.NoError(t, err)
	require.True(t, claimed)
	env.store.SetClock(func() time.Time { return time.Now().UTC() })

	stats := newTestWorker(env).RunOnce(ctx)
	assert.Equal(t, 1, stats.StaleBookings)
	assert.Zero(t, stats.BookingReleases)

	stored, err := env.bookings.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReleaseStateManualReview, stored.ReleaseState)
	assert.Equal(t, 4, env.bookedSeats(t, d.ID), "an abandoned claim is never released automatically")
}

func TestReleaseWorker_Queue(t *testing.T) {
	ctx := context.Background()

	enqueue := func(t *testing.T, env *testEnv, departureID string, seats, attempts int) *models.PendingRelease {
		t.Helper()
		pr := &models.PendingRelease{
			DepartureID: departureID,
			Seats:       seats,
			Reason:      "booking insert failed",
			Attempts:    attempts,
		}
		require.NoError(t, env.releases.Enqueue(ctx, pr))
		return pr
	}

	t.Run("releases due items", func(t *testing.T) {
		env, _ := newFlakyEnv(t)
		d := env.seedDeparture(t, 10, future())
		_, err := env.ledger.Reserve(ctx, d.ID, 5)
		require.NoError(t, err)
		enqueue(t, env, d.ID, 3, 0)

		stats := newTestWorker(env).RunOnce(ctx)
		assert.Equal(t, 1, stats.QueueReleased)
		assert.Equal(t, 2, env.bookedSeats(t, d.ID))

		done, err := env.releases.ListByStatus(ctx, models.PendingReleaseStatusDone, 10)
		require.NoError(t, err)
		assert.Len(t, done, 1)
	})

	t.Run("reschedules with backoff on transient failure", func(t *testing.T) {
		env, flaky := newFlakyEnv(t)
		d := env.seedDeparture(t, 10, future())
		_, err := env.ledger.Reserve(ctx, d.ID, 5)
		require.NoError(t, err)
		enqueue(t, env, d.ID, 3, 0)

		flaky.setFailures(-1, database.ErrTransient)
		before := time.Now().UTC()
		stats := newTestWorker(env).RunOnce(ctx)
		assert.Equal(t, 1, stats.QueueRescheduled)

		pending, err := env.releases.ListByStatus(ctx, models.PendingReleaseStatusPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 1, pending[0].Attempts)
		assert.True(t, pending[0].NextAttemptAt.After(before))
		require.NotNil(t, pending[0].LastError)

		// Not due yet
		flaky.setFailures(0, nil)
		stats = newTestWorker(env).RunOnce(ctx)
		assert.Zero(t, stats.QueueReleased)
		assert.Equal(t, 5, env.bookedSeats(t, d.ID))
	})

	t.Run("escalates after max attempts", func(t *testing.T) {
		env, flaky := newFlakyEnv(t)
		d := env.seedDeparture(t, 10, future())
		_, err := env.ledger.Reserve(ctx, d.ID, 5)
		require.NoError(t, err)
		enqueue(t, env, d.ID, 3, 2)

		flaky.setFailures(-1, database.ErrTransient)
		stats := newTestWorker(env).RunOnce(ctx)
		assert.Equal(t, 1, stats.QueueEscalated)

		review, err := env.releases.ListByStatus(ctx, models.PendingReleaseStatusManualReview, 10)
		require.NoError(t, err)
		require.Len(t, review, 1)
		assert.Equal(t, 3, review[0].Attempts)
	})

	t.Run("escalates ledger rejections immediately", func(t *testing.T) {
		env, _ := newFlakyEnv(t)
		d := env.seedDeparture(t, 10, future())
		enqueue(t, env, d.ID, 3, 0)

		stats := newTestWorker(env).RunOnce(ctx)
		assert.Equal(t, 1, stats.QueueEscalated)
		assert.Zero(t, env.bookedSeats(t, d.ID))
	})

	t.Run("flags abandoned claims", func(t *testing.T) {
		env, _ := newFlakyEnv(t)
		d := env.seedDeparture(t, 10, future())
		enqueue(t, env, d.ID, 3, 0)

		env.store.SetClock(func() time.Time { return time.Now().UTC().Add(-time.Hour) })
		claimed, err := env.releases.ClaimDue(ctx, time.Now().UTC(), 10)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		env.store.SetClock(func() time.Time { return time.Now().UTC() })

		stats := newTestWorker(env).RunOnce(ctx)
		assert.Equal(t, int64(1), stats.StaleQueueClaims)

		review, err := env.releases.ListByStatus(ctx, models.PendingReleaseStatusManualReview, 10)
		require.NoError(t, err)
		assert.Len(t, review, 1)
	})
}

func TestReleaseRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: 1, want: 30 * time.Second},
		{attempts: 2, want: time.Minute},
		{attempts: 3, want: 2 * time.Minute},
		{attempts: 7, want: 32 * time.Minute},
		{attempts: 8, want: time.Hour},
		{attempts: 50, want: time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, releaseRetryDelay(30*time.Second, tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestReleaseWorker_StartStop(t *testing.T) {
	env := newTestEnv(t)

	t.Run("stop without start returns", func(t *testing.T) {
		newTestWorker(env).Stop()
	})

	t.Run("start then stop", func(t *testing.T) {
		w := newTestWorker(env)
		w.Start()
		w.Start()
		w.Stop()
		w.Stop()

		stats := w.GetStats()
		assert.Equal(t, "1s", stats["interval"])
	})
}
