package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseWeek(t *testing.T) {
	tests := []struct {
		header     string
		start, end time.Time
		ok         bool
	}{
		{"2024-W1", day(2024, time.January, 1), day(2024, time.January, 7), true},
		{"2025-W01", day(2024, time.December, 30), day(2025, time.January, 5), true},
		{"2026-W53", day(2026, time.December, 28), day(2027, time.January, 3), true},
		{"Monday 3 March 2025 - Sunday 9 March 2025", day(2025, time.March, 3), day(2025, time.March, 9), true},
		{"Week commencing 3rd Mar 2025", day(2025, time.March, 3), day(2025, time.March, 9), true},
		{"Slots in 2025", day(2025, time.January, 1), day(2025, time.December, 31), true},
		{"No dates here", time.Time{}, time.Time{}, false},
		{"", time.Time{}, time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			start, end, ok := ParseWeek(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.True(t, tt.start.Equal(start), "start: want %s got %s", tt.start, start)
			assert.True(t, tt.end.Equal(end), "end: want %s got %s", tt.end, end)
		})
	}
}

func TestWindowLocate(t *testing.T) {
	w := Window{Earliest: day(2025, time.January, 1), Latest: day(2025, time.June, 30)}

	assert.Equal(t, Before, w.Locate("2024-W1"))
	assert.Equal(t, Before, w.Locate("2024-W2"))
	assert.Equal(t, In, w.Locate("2025-W1"), "week spanning the earliest date is in the window")
	assert.Equal(t, In, w.Locate("Monday 30 June 2025 - Sunday 6 July 2025"))
	assert.Equal(t, After, w.Locate("2025-W30"))
	assert.Equal(t, After, w.Locate("unparseable header"), "a bounded window does not search unplaced weeks")
	assert.Equal(t, After, w.Locate(""))

	open := Window{}
	assert.Equal(t, In, open.Locate("1999-W10"))
	assert.Equal(t, In, open.Locate("unparseable header"))
}
