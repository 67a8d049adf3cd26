// Package postgres stores finished rides and their chat transcript.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/gocomet/ride-realtime/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS ride_archive (
	booking_id   TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	customer_id  TEXT NOT NULL DEFAULT '',
	driver_id    TEXT NOT NULL DEFAULT '',
	pickup_lat   DOUBLE PRECISION NOT NULL,
	pickup_lon   DOUBLE PRECISION NOT NULL,
	dropoff_lat  DOUBLE PRECISION NOT NULL,
	dropoff_lon  DOUBLE PRECISION NOT NULL,
	fare_amount  DOUBLE PRECISION NOT NULL DEFAULT 0,
	end_reason   TEXT NOT NULL DEFAULT '',
	accepted_at  TIMESTAMPTZ NOT NULL,
	started_at   TIMESTAMPTZ,
	ended_at     TIMESTAMPTZ,
	transcript   JSONB NOT NULL DEFAULT '[]',
	archived_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsert = `
INSERT INTO ride_archive (
	booking_id, status, customer_id, driver_id,
	pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
	fare_amount, end_reason, accepted_at, started_at, ended_at, transcript
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (booking_id) DO UPDATE SET
	status = EXCLUDED.status,
	end_reason = EXCLUDED.end_reason,
	ended_at = EXCLUDED.ended_at,
	transcript = EXCLUDED.transcript,
	archived_at = NOW()`

// RideArchive writes terminal rides to Postgres
type RideArchive struct {
	db *sql.DB
}

// NewRideArchive creates an archive on db
func NewRideArchive(db *sql.DB) *RideArchive {
	return &RideArchive{db: db}
}

// EnsureSchema creates the archive table if needed
func (a *RideArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return errors.Internal("Failed to create ride archive table", err)
	}
	return nil
}

type record struct {
	BookingID  string
	Status     string
	CustomerID string
	DriverID   string
	PickupLat  float64
	PickupLon  float64
	DropoffLat float64
	DropoffLon float64
	Fare       float64
	EndReason  string
	AcceptedAt time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Transcript []byte
}

func toRecord(r *ride.Ride) (record, error) {
	if !r.Status.IsTerminal() {
		return record{}, fmt.Errorf("ride %s is still %s", r.BookingID, r.Status)
	}
	transcript, err := json.Marshal(r.ChatMessages)
	if err != nil {
		return record{}, fmt.Errorf("failed to encode transcript: %w", err)
	}
	if r.ChatMessages == nil {
		transcript = []byte("[]")
	}
	rec := record{
		BookingID:  r.BookingID,
		Status:     string(r.Status),
		CustomerID: r.Customer.ID,
		PickupLat:  r.Pickup.Latitude,
		PickupLon:  r.Pickup.Longitude,
		DropoffLat: r.Dropoff.Latitude,
		DropoffLon: r.Dropoff.Longitude,
		Fare:       r.FareAmount,
		EndReason:  r.EndReason,
		AcceptedAt: r.AcceptedAt,
		StartedAt:  r.StartedAt,
		EndedAt:    r.EndedAt,
		Transcript: transcript,
	}
	if r.Driver != nil {
		rec.DriverID = r.Driver.ID
	}
	return rec, nil
}

// Archive stores r. Archiving the same booking twice keeps the latest copy.
func (a *RideArchive) Archive(ctx context.Context, r *ride.Ride) error {
	rec, err := toRecord(r)
	if err != nil {
		return errors.Business("ARCHIVE_REJECTED", "Ride cannot be archived", err)
	}
	_, err = a.db.ExecContext(ctx, upsert,
		rec.BookingID, rec.Status, rec.CustomerID, rec.DriverID,
		rec.PickupLat, rec.PickupLon, rec.DropoffLat, rec.DropoffLon,
		rec.Fare, rec.EndReason, rec.AcceptedAt, rec.StartedAt, rec.EndedAt, rec.Transcript,
	)
	if err != nil {
		return errors.Internal("Failed to archive ride", err)
	}
	return nil
}

// Count returns how many rides are archived
func (a *RideArchive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ride_archive`).Scan(&n); err != nil {
		return 0, errors.Internal("Failed to count archived rides", err)
	}
	return n, nil
}
