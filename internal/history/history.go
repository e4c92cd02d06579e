// Package history records confirmed bookings in Postgres.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/slotbot/internal/db"
)

type Booking struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	Centre    string
	Date      string
	Time      string
	DateTime  string
	Countdown string
	SlotID    string
	Reference string
	URL       string
	CreatedAt time.Time
}

// Store is the part of *db.DB the repo needs.
type Store interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Query(ctx context.Context, sql string, args ...any) (db.Rows, error)
}

type Repo struct{ db Store }

func NewRepo(d Store) *Repo { return &Repo{db: d} }

// Record inserts b, assigning an ID when it has none.
func (r *Repo) Record(ctx context.Context, b Booking) (uuid.UUID, error) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.db.Exec(ctx, `
INSERT INTO bookings(id,run_id,centre,test_date,test_time,date_time,countdown,slot_id,reference,url)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		b.ID, b.RunID, b.Centre, b.Date, b.Time, b.DateTime, b.Countdown, b.SlotID, b.Reference, b.URL,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("record booking: %w", err)
	}
	return b.ID, nil
}

// List returns the most recent bookings, newest first.
func (r *Repo) List(ctx context.Context, limit int) ([]Booking, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
SELECT id,run_id,centre,test_date,test_time,date_time,countdown,slot_id,reference,url,created_at
FROM bookings
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.RunID, &b.Centre, &b.Date, &b.Time, &b.DateTime, &b.Countdown, &b.SlotID, &b.Reference, &b.URL, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Sink records each notified booking. It satisfies booking.Notifier so it
// can sit alongside the webhooks.
type Sink struct {
	Repo  *Repo
	RunID uuid.UUID
	Log   zerolog.Logger
}

func (s *Sink) Notify(ctx context.Context, details map[string]string, referenceURL string) bool {
	id, err := s.Repo.Record(ctx, FromDetails(s.RunID, details, referenceURL))
	if err != nil {
		s.Log.Error().Err(err).Msg("booking not recorded")
		return false
	}
	s.Log.Debug().Stringer("id", id).Msg("booking recorded")
	return true
}

// FromDetails maps the notification fields onto a Booking.
func FromDetails(runID uuid.UUID, details map[string]string, referenceURL string) Booking {
	return Booking{
		RunID:     runID,
		Centre:    details["centre"],
		Date:      details["date"],
		Time:      details["time"],
		DateTime:  details["date_time"],
		Countdown: details["countdown"],
		SlotID:    details["slot_id"],
		Reference: details["reference"],
		URL:       referenceURL,
	}
}
