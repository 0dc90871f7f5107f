package database

import (
	"context"
	"fmt"
)

// schemaStatements create the tables and secondary indexes. Every statement is
// idempotent so EnsureSchema can run on each deploy.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id          TEXT PRIMARY KEY,
		vendor_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		price       NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		vendor_cut  NUMERIC(5,2) CHECK (vendor_cut > 0 AND vendor_cut <= 100),
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_plans_vendor_id ON plans (vendor_id)`,

	`CREATE TABLE IF NOT EXISTS departures (
		id              TEXT PRIMARY KEY,
		plan_id         TEXT NOT NULL REFERENCES plans (id),
		departure_time  TIMESTAMPTZ NOT NULL,
		pickup_location TEXT NOT NULL,
		pickup_time     TEXT NOT NULL,
		total_capacity  INTEGER NOT NULL CHECK (total_capacity > 0),
		booked_seats    INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'scheduled'
		                CHECK (status IN ('scheduled', 'confirmed', 'cancelled', 'completed')),
		version         BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT departures_booked_within_capacity
			CHECK (booked_seats >= 0 AND booked_seats <= total_capacity)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_departures_plan_id ON departures (plan_id, departure_time)`,
	`CREATE INDEX IF NOT EXISTS idx_departures_open ON departures (departure_time)
		WHERE status IN ('scheduled', 'confirmed')`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                   TEXT PRIMARY KEY,
		departure_id         TEXT NOT NULL REFERENCES departures (id),
		plan_id              TEXT NOT NULL,
		user_id              TEXT NOT NULL,
		vendor_id            TEXT NOT NULL,
		trip_date            TIMESTAMPTZ NOT NULL,
		num_people           INTEGER NOT NULL CHECK (num_people > 0),
		total_amount         NUMERIC(12,2) NOT NULL,
		platform_cut         NUMERIC(12,2) NOT NULL,
		refund_amount        NUMERIC(12,2),
		vendor_payout_amount NUMERIC(12,2) NOT NULL,
		payment_status       TEXT NOT NULL DEFAULT 'pending',
		booking_status       TEXT NOT NULL DEFAULT '',
		refund_status        TEXT NOT NULL DEFAULT 'none',
		vendor_payout_status TEXT NOT NULL DEFAULT 'pending',
		payment_reference    TEXT,
		refund_reference     TEXT,
		payout_reference     TEXT,
		seats_released       BOOLEAN NOT NULL DEFAULT FALSE,
		release_state        TEXT NOT NULL DEFAULT 'none',
		release_claimed_at   TIMESTAMPTZ,
		release_attempts     INTEGER NOT NULL DEFAULT 0,
		refunded_at          TIMESTAMPTZ,
		paid_out_at          TIMESTAMPTZ,
		version              BIGINT NOT NULL DEFAULT 0,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_vendor_id ON bookings (vendor_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_departure_id ON bookings (departure_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_release_state ON bookings (release_state)
		WHERE release_state IN ('pending', 'claimed')`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_confirmed_trip ON bookings (trip_date)
		WHERE booking_status = 'confirmed'`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_payout_pending ON bookings (trip_date)
		WHERE vendor_payout_status = 'pending' AND payment_status = 'completed'`,

	`CREATE TABLE IF NOT EXISTS pending_releases (
		id              TEXT PRIMARY KEY,
		departure_id    TEXT NOT NULL REFERENCES departures (id),
		seats           INTEGER NOT NULL CHECK (seats > 0),
		booking_id      TEXT,
		reason          TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		attempts        INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		claimed_at      TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_releases_due ON pending_releases (next_attempt_at)
		WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS booking_audits (
		id                   UUID PRIMARY KEY,
		booking_id           TEXT NOT NULL,
		event                TEXT NOT NULL,
		source               TEXT NOT NULL,
		actor_id             TEXT,
		replayed             BOOLEAN NOT NULL DEFAULT FALSE,
		payment_status       TEXT NOT NULL,
		booking_status       TEXT NOT NULL,
		refund_status        TEXT NOT NULL,
		vendor_payout_status TEXT NOT NULL,
		ip_address           TEXT,
		device_type          TEXT,
		platform             TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_booking_audits_booking_id ON booking_audits (booking_id, created_at)`,
}

// EnsureSchema creates all tables and indexes that do not exist yet
func EnsureSchema(ctx context.Context, db DB) error {
	for i, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
