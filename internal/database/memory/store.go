// Package memory is an in-process store with the same conditional-write
// semantics as the Postgres repositories. It backs tests and DATABASE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/booking-backend/internal/models"
)

// Store holds every table behind a single lock
type Store struct {
	mu         sync.RWMutex
	departures map[string]models.Departure
	bookings   map[string]*models.Booking
	plans      map[string]models.Plan
	releases   map[string]models.PendingRelease
	audits     []*models.BookingAudit
	now        func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		departures: make(map[string]models.Departure),
		bookings:   make(map[string]*models.Booking),
		plans:      make(map[string]models.Plan),
		releases:   make(map[string]models.PendingRelease),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's notion of now
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Ping always succeeds
func (s *Store) Ping() error { return nil }

// Close is a no-op
func (s *Store) Close() error { return nil }

// Departures returns the departure table view
func (s *Store) Departures() *Departures { return &Departures{s: s} }

// Bookings returns the booking table view
func (s *Store) Bookings() *Bookings { return &Bookings{s: s} }

// Plans returns the plan table view
func (s *Store) Plans() *Plans { return &Plans{s: s} }

// Releases returns the pending release queue view
func (s *Store) Releases() *Releases { return &Releases{s: s} }

// Audits returns the audit log view
func (s *Store) Audits() *Audits { return &Audits{s: s} }

// ============================================================================
// DEPARTURES
// ============================================================================

// Departures mirrors database.DepartureRepository
type Departures struct{ s *Store }

func (r *Departures) Create(_ context.Context, d *models.Departure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if _, exists := r.s.departures[d.ID]; exists {
		return fmt.Errorf("failed to create departure: duplicate id %s", d.ID)
	}
	if d.BookedSeats < 0 || d.BookedSeats > d.TotalCapacity {
		return fmt.Errorf("failed to create departure: booked seats out of range")
	}
	now := r.s.now()
	d.CreatedAt, d.UpdatedAt = now, now
	r.s.departures[d.ID] = *d
	return nil
}

func (r *Departures) GetByID(_ context.Context, id string) (*models.Departure, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.departures[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r *Departures) CompareAndSwap(_ context.Context, d *models.Departure, expectedVersion int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.departures[d.ID]
	if !ok || stored.Version != expectedVersion {
		return false, nil
	}
	// Mirrors the table's CHECK constraint
	if d.BookedSeats < 0 || d.BookedSeats > stored.TotalCapacity {
		return false, fmt.Errorf("failed to update departure: booked seats %d outside [0, %d]", d.BookedSeats, stored.TotalCapacity)
	}

	stored.BookedSeats = d.BookedSeats
	stored.Status = d.Status
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = r.s.now()
	r.s.departures[d.ID] = stored

	d.Version = stored.Version
	d.UpdatedAt = stored.UpdatedAt
	return true, nil
}

func (r *Departures) ListByPlan(_ context.Context, planID string) ([]*models.Departure, error) {
	return r.filter(func(d *models.Departure) bool { return d.PlanID == planID }, 0), nil
}

func (r *Departures) ListDueForCompletion(_ context.Context, now time.Time, limit int) ([]*models.Departure, error) {
	return r.filter(func(d *models.Departure) bool {
		return !d.Status.IsTerminal() && d.DepartureTime.Before(now)
	}, limit), nil
}

func (r *Departures) filter(match func(*models.Departure) bool, limit int) []*models.Departure {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.Departure{}
	for _, d := range r.s.departures {
		d := d
		if match(&d) {
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ============================================================================
// BOOKINGS
// ============================================================================

// Bookings mirrors database.BookingRepository
type Bookings struct{ s *Store }

func (r *Bookings) Create(_ context.Context, b *models.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if _, exists := r.s.bookings[b.ID]; exists {
		return fmt.Errorf("failed to create booking: duplicate id %s", b.ID)
	}
	now := r.s.now()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	r.s.bookings[b.ID] = b.Clone()
	return nil
}

func (r *Bookings) GetByID(_ context.Context, id string) (*models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (r *Bookings) Update(_ context.Context, b *models.Booking, expectedVersion int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.bookings[b.ID]
	if !ok || stored.Version != expectedVersion {
		return false, nil
	}

	next := b.Clone()
	// Identity and money columns are immutable
	next.DepartureID, next.PlanID, next.UserID, next.VendorID = stored.DepartureID, stored.PlanID, stored.UserID, stored.VendorID
	next.TripDate, next.NumPeople = stored.TripDate, stored.NumPeople
	next.TotalAmount, next.PlatformCut, next.VendorPayoutAmount = stored.TotalAmount, stored.PlatformCut, stored.VendorPayoutAmount
	next.CreatedAt = stored.CreatedAt
	next.ReleaseAttempts = stored.ReleaseAttempts
	next.Version = expectedVersion + 1
	next.UpdatedAt = r.s.now()
	r.s.bookings[b.ID] = next

	b.Version = next.Version
	b.UpdatedAt = next.UpdatedAt
	return true, nil
}

func (r *Bookings) TransitionRelease(_ context.Context, id string, from, to models.ReleaseState) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.bookings[id]
	if !ok || stored.ReleaseState != from {
		return false, nil
	}

	now := r.s.now()
	stored.ReleaseState = to
	if to == models.ReleaseStateClaimed {
		stored.ReleaseClaimedAt = &now
	}
	if from == models.ReleaseStateClaimed && to == models.ReleaseStatePending {
		stored.ReleaseAttempts++
	}
	stored.Version++
	stored.UpdatedAt = now
	return true, nil
}

func (r *Bookings) ListByUser(_ context.Context, userID string, limit, offset int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool { return b.UserID == userID }, newestFirst), limit, offset), nil
}

func (r *Bookings) ListByVendor(_ context.Context, vendorID string, limit, offset int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool { return b.VendorID == vendorID }, newestFirst), limit, offset), nil
}

func (r *Bookings) ListByDeparture(_ context.Context, departureID string) ([]*models.Booking, error) {
	return r.filter(func(b *models.Booking) bool { return b.DepartureID == departureID }, oldestFirst), nil
}

func (r *Bookings) ListByReleaseState(_ context.Context, state models.ReleaseState, limit int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool { return b.ReleaseState == state }, oldestFirst), limit, 0), nil
}

func (r *Bookings) ListStaleReleaseClaims(_ context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool {
		return b.ReleaseState == models.ReleaseStateClaimed && b.ReleaseClaimedAt != nil && b.ReleaseClaimedAt.Before(cutoff)
	}, oldestFirst), limit, 0), nil
}

func (r *Bookings) ListDueForTripCompletion(_ context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool {
		return b.BookingStatus == models.BookingStatusConfirmed && b.TripDate.Before(now)
	}, byTripDate), limit, 0), nil
}

func (r *Bookings) ListDueForPayout(_ context.Context, cutoff time.Time, limit int) ([]*models.Booking, error) {
	return r.page(r.filter(func(b *models.Booking) bool {
		return b.IsPayoutEligible() && b.TripDate.Before(cutoff)
	}, byTripDate), limit, 0), nil
}

type bookingOrder func(a, b *models.Booking) bool

func newestFirst(a, b *models.Booking) bool { return a.CreatedAt.After(b.CreatedAt) }
func oldestFirst(a, b *models.Booking) bool { return a.CreatedAt.Before(b.CreatedAt) }
func byTripDate(a, b *models.Booking) bool  { return a.TripDate.Before(b.TripDate) }

func (r *Bookings) filter(match func(*models.Booking) bool, less bookingOrder) []*models.Booking {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.Booking{}
	for _, b := range r.s.bookings {
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func (r *Bookings) page(items []*models.Booking, limit, offset int) []*models.Booking {
	if offset >= len(items) {
		return []*models.Booking{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// ============================================================================
// PLANS
// ============================================================================

// Plans mirrors database.PlanRepository
type Plans struct{ s *Store }

func (r *Plans) Create(_ context.Context, p *models.Plan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if _, exists := r.s.plans[p.ID]; exists {
		return nil
	}
	now := r.s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.plans[p.ID] = *p
	return nil
}

func (r *Plans) GetByID(_ context.Context, id string) (*models.Plan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ============================================================================
// PENDING RELEASES
// ============================================================================

// Releases mirrors database.PendingReleaseRepository
type Releases struct{ s *Store }

func (r *Releases) Enqueue(_ context.Context, pr *models.PendingRelease) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if pr.ID == "" {
		pr.ID = uuid.New().String()
	}
	now := r.s.now()
	pr.CreatedAt, pr.UpdatedAt = now, now
	if pr.Status == "" {
		pr.Status = models.PendingReleaseStatusPending
	}
	if pr.NextAttemptAt.IsZero() {
		pr.NextAttemptAt = now
	}
	r.s.releases[pr.ID] = *pr
	return nil
}

func (r *Releases) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.PendingRelease, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := []models.PendingRelease{}
	for _, pr := range r.s.releases {
		if pr.Status == models.PendingReleaseStatusPending && !pr.NextAttemptAt.After(now) {
			due = append(due, pr)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextAttemptAt.Before(due[j].NextAttemptAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimedAt := r.s.now()
	out := make([]*models.PendingRelease, 0, len(due))
	for _, pr := range due {
		pr.Status = models.PendingReleaseStatusClaimed
		pr.ClaimedAt = &claimedAt
		pr.UpdatedAt = claimedAt
		r.s.releases[pr.ID] = pr
		pr := pr
		out = append(out, &pr)
	}
	return out, nil
}

func (r *Releases) MarkDone(_ context.Context, id string) error {
	return r.update(id, func(pr *models.PendingRelease) bool {
		if pr.Status != models.PendingReleaseStatusClaimed {
			return false
		}
		pr.Status = models.PendingReleaseStatusDone
		return true
	})
}

func (r *Releases) Reschedule(_ context.Context, id string, attempts int, lastErr string, next time.Time) error {
	return r.update(id, func(pr *models.PendingRelease) bool {
		if pr.Status != models.PendingReleaseStatusClaimed {
			return false
		}
		pr.Status = models.PendingReleaseStatusPending
		pr.Attempts = attempts
		pr.LastError = &lastErr
		pr.NextAttemptAt = next
		pr.ClaimedAt = nil
		return true
	})
}

func (r *Releases) MarkManualReview(_ context.Context, id string, attempts int, lastErr string) error {
	return r.update(id, func(pr *models.PendingRelease) bool {
		pr.Status = models.PendingReleaseStatusManualReview
		pr.Attempts = attempts
		pr.LastError = &lastErr
		return true
	})
}

func (r *Releases) FlagStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var flagged int64
	for id, pr := range r.s.releases {
		if pr.Status == models.PendingReleaseStatusClaimed && pr.ClaimedAt != nil && pr.ClaimedAt.Before(cutoff) {
			pr.Status = models.PendingReleaseStatusManualReview
			if pr.LastError == nil {
				msg := "claim expired before completion"
				pr.LastError = &msg
			}
			pr.UpdatedAt = r.s.now()
			r.s.releases[id] = pr
			flagged++
		}
	}
	return flagged, nil
}

func (r *Releases) ListByStatus(_ context.Context, status models.PendingReleaseStatus, limit int) ([]*models.PendingRelease, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.PendingRelease{}
	for _, pr := range r.s.releases {
		if pr.Status == status {
			pr := pr
			out = append(out, &pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Releases) update(id string, apply func(*models.PendingRelease) bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pr, ok := r.s.releases[id]
	if !ok {
		return fmt.Errorf("pending release %s not found", id)
	}
	if apply(&pr) {
		pr.UpdatedAt = r.s.now()
		r.s.releases[id] = pr
	}
	return nil
}

// ============================================================================
// AUDITS
// ============================================================================

// Audits mirrors database.BookingAuditRepository
type Audits struct{ s *Store }

func (r *Audits) Log(_ context.Context, audit *models.BookingAudit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry := *audit
	r.s.audits = append(r.s.audits, &entry)
	return nil
}

func (r *Audits) ListByBooking(_ context.Context, bookingID string) ([]*models.BookingAudit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*models.BookingAudit{}
	for _, a := range r.s.audits {
		if a.BookingID == bookingID {
			entry := *a
			out = append(out, &entry)
		}
	}
	return out, nil
}
