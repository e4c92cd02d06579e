package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/slotbot/internal/db"
)

type sliceRows struct {
	data []Booking
	i    int
}

func (r *sliceRows) Close() {}

func (r *sliceRows) Err() error { return nil }

func (r *sliceRows) Next() bool {
	r.i++
	return r.i <= len(r.data)
}

func (r *sliceRows) Scan(dest ...any) error {
	b := r.data[r.i-1]
	vals := []any{b.ID, b.RunID, b.Centre, b.Date, b.Time, b.DateTime, b.Countdown, b.SlotID, b.Reference, b.URL, b.CreatedAt}
	for i, v := range vals {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		}
	}
	return nil
}

type memStore struct {
	rows []Booking
	err  error
}

func (m *memStore) Exec(_ context.Context, _ string, args ...any) error {
	if m.err != nil {
		return m.err
	}
	s := func(i int) string { return args[i].(string) }
	m.rows = append([]Booking{{
		ID: args[0].(uuid.UUID), RunID: args[1].(uuid.UUID),
		Centre: s(2), Date: s(3), Time: s(4), DateTime: s(5), Countdown: s(6), SlotID: s(7), Reference: s(8), URL: s(9),
		CreatedAt: time.Date(2025, 3, 4, 10, len(m.rows), 0, 0, time.UTC),
	}}, m.rows...)
	return nil
}

func (m *memStore) Query(_ context.Context, _ string, args ...any) (db.Rows, error) {
	limit := args[0].(int)
	return &sliceRows{data: m.rows[:min(limit, len(m.rows))]}, nil
}

func TestSinkRecordsBooking(t *testing.T) {
	store := &memStore{}
	run := uuid.New()
	sink := &Sink{Repo: NewRepo(store), RunID: run, Log: zerolog.Nop()}

	ok := sink.Notify(context.Background(), map[string]string{
		"centre": "Wood Green (London)", "date": "04 Mar 2025", "time": "10:04",
		"slot_id": "1234", "reference": "EXEC-e3s2",
	}, "https://booking.test/pay")
	require.True(t, ok)

	got, err := sink.Repo.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEqual(t, uuid.Nil, got[0].ID)

	want := Booking{
		ID: got[0].ID, RunID: run, Centre: "Wood Green (London)", Date: "04 Mar 2025", Time: "10:04",
		SlotID: "1234", Reference: "EXEC-e3s2", URL: "https://booking.test/pay", CreatedAt: got[0].CreatedAt,
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("booking mismatch (-want +got):\n%s", diff)
	}
}

func TestListNewestFirstWithLimit(t *testing.T) {
	store := &memStore{}
	repo := NewRepo(store)
	for _, c := range []string{"A", "B", "C"} {
		_, err := repo.Record(context.Background(), Booking{Centre: c})
		require.NoError(t, err)
	}
	got, err := repo.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].Centre)
	assert.Equal(t, "B", got[1].Centre)
}

func TestSinkReportsFailure(t *testing.T) {
	sink := &Sink{Repo: NewRepo(&memStore{err: errors.New("down")}), Log: zerolog.Nop()}
	assert.False(t, sink.Notify(context.Background(), map[string]string{}, ""))
}
