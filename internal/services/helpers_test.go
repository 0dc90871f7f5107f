package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/booking-backend/internal/database"
	"github.com/tripnest/booking-backend/internal/database/memory"
	"github.com/tripnest/booking-backend/internal/models"
	"github.com/tripnest/booking-backend/pkg/events"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fastRetry keeps transient retries bounded and quick in tests
func fastRetry() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Initial:    time.Millisecond,
		Max:        2 * time.Millisecond,
		MaxElapsed: time.Second,
		Multiplier: 2,
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv wires every service over one in-memory store
type testEnv struct {
	store       *memory.Store
	departures  DepartureStore
	bookings    BookingStore
	plans       PlanStore
	releases    ReleaseQueue
	audits      AuditLog
	publisher   *recordingPublisher
	ledger      *InventoryLedger
	lifecycle   *BookingLifecycleService
	coordinator *ReservationCoordinator
}

type envOption func(*testEnv)

func withDepartureStore(wrap func(DepartureStore) DepartureStore) envOption {
	return func(e *testEnv) { e.departures = wrap(e.departures) }
}

func withBookingStore(wrap func(BookingStore) BookingStore) envOption {
	return func(e *testEnv) { e.bookings = wrap(e.bookings) }
}

func withReleaseQueue(wrap func(ReleaseQueue) ReleaseQueue) envOption {
	return func(e *testEnv) { e.releases = wrap(e.releases) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := memory.NewStore()
	env := &testEnv{
		store:      store,
		departures: store.Departures(),
		bookings:   store.Bookings(),
		plans:      store.Plans(),
		releases:   store.Releases(),
		audits:     store.Audits(),
		publisher:  &recordingPublisher{},
	}
	for _, opt := range opts {
		opt(env)
	}

	logger := quietLogger()
	env.ledger = NewInventoryLedger(env.departures, InventoryLedgerConfig{MaxCASAttempts: 20, Retry: fastRetry()}, logger)
	env.lifecycle = NewBookingLifecycleService(env.bookings, 20, fastRetry(), logger)

	cfg := DefaultReservationCoordinatorConfig()
	cfg.Retry = fastRetry()
	env.coordinator = NewReservationCoordinator(
		env.ledger, env.lifecycle, env.bookings, env.plans, env.releases, env.audits,
		env.publisher, cfg, logger,
	)
	return env
}

// seedDeparture stores an active plan and a departure with the given capacity
func (e *testEnv) seedDeparture(t *testing.T, capacity int, departureTime time.Time) *models.Departure {
	t.Helper()
	ctx := context.Background()

	plan := &models.Plan{VendorID: "vendor-1", Name: "Ella Hike", Price: 100, IsActive: true}
	require.NoError(t, e.store.Plans().Create(ctx, plan))

	d := &models.Departure{
		PlanID:         plan.ID,
		DepartureTime:  departureTime,
		PickupLocation: "Kandy",
		PickupTime:     "06:30",
		TotalCapacity:  capacity,
	}
	require.NoError(t, e.ledger.Open(ctx, d))
	return d
}

func (e *testEnv) bookedSeats(t *testing.T, departureID string) int {
	t.Helper()
	d, err := e.store.Departures().GetByID(context.Background(), departureID)
	require.NoError(t, err)
	require.NotNil(t, d)
	return d.BookedSeats
}

func (e *testEnv) createBooking(t *testing.T, departureID string, seats int) *models.Booking {
	t.Helper()
	b, err := e.coordinator.CreateBooking(context.Background(), "user-1", &models.CreateBookingRequest{
		DepartureID: departureID,
		NumPeople:   seats,
		Amount:      200,
	}, models.AuditContext{Source: models.AuditSourceAPI, ActorID: "user-1"})
	require.NoError(t, err)
	return b
}

// ============================================================================
// FAULT INJECTION
// ============================================================================

// contendedDepartures loses every conditional write
type contendedDepartures struct {
	DepartureStore
	mu    sync.Mutex
	swaps int
}

func (d *contendedDepartures) CompareAndSwap(context.Context, *models.Departure, int64) (bool, error) {
	d.mu.Lock()
	d.swaps++
	d.mu.Unlock()
	return false, nil
}

// flakyDepartures fails the next n conditional writes with err before delegating
type flakyDepartures struct {
	DepartureStore
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (d *flakyDepartures) CompareAndSwap(ctx context.Context, dep *models.Departure, expected int64) (bool, error) {
	d.mu.Lock()
	d.calls++
	if d.failures != 0 {
		if d.failures > 0 {
			d.failures--
		}
		d.mu.Unlock()
		return false, d.err
	}
	d.mu.Unlock()
	return d.DepartureStore.CompareAndSwap(ctx, dep, expected)
}

func (d *flakyDepartures) setFailures(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures, d.err = n, err
}

// failingCreateBookings rejects every insert
type failingCreateBookings struct {
	BookingStore
	err error
}

func (b *failingCreateBookings) Create(context.Context, *models.Booking) error {
	return b.err
}

// failingQueue rejects every enqueue
type failingQueue struct {
	ReleaseQueue
}

func (q *failingQueue) Enqueue(context.Context, *models.PendingRelease) error {
	return database.ErrTransient
}

// sweepingBookings escalates a claim to manual review just before its holder
// records the outcome, as the stale claim sweep would
type sweepingBookings struct {
	BookingStore
}

func (b *sweepingBookings) TransitionRelease(ctx context.Context, id string, from, to models.ReleaseState) (bool, error) {
	if from == models.ReleaseStateClaimed {
		if _, err := b.BookingStore.TransitionRelease(ctx, id, models.ReleaseStateClaimed, models.ReleaseStateManualReview); err != nil {
			return false, err
		}
	}
	return b.BookingStore.TransitionRelease(ctx, id, from, to)
}
