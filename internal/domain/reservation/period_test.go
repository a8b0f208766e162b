package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodKey(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		graceDays int
		want      string
	}{
		{
			name:      "mid month",
			now:       time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC),
			graceDays: 3,
			want:      "2025/11",
		},
		{
			name:      "within grace window uses previous month",
			now:       time.Date(2025, 12, 2, 9, 0, 0, 0, time.UTC),
			graceDays: 3,
			want:      "2025/11",
		},
		{
			name:      "last grace day",
			now:       time.Date(2025, 12, 3, 23, 59, 0, 0, time.UTC),
			graceDays: 3,
			want:      "2025/11",
		},
		{
			name:      "first day after grace",
			now:       time.Date(2025, 12, 4, 0, 0, 1, 0, time.UTC),
			graceDays: 3,
			want:      "2025/12",
		},
		{
			name:      "january grace rolls back the year",
			now:       time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
			graceDays: 3,
			want:      "2025/12",
		},
		{
			name:      "zero grace never rolls back",
			now:       time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			graceDays: 0,
			want:      "2025/12",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PeriodKey(tt.now, tt.graceDays))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "2025/11/001", FormatNumber("2025/11/", 1))
	assert.Equal(t, "2025/11/042", FormatNumber("2025/11/", 42))
	assert.Equal(t, "2025/11/1000", FormatNumber("2025/11/", 1000))
}

func TestReservationStatusAt(t *testing.T) {
	now := time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

	active := &Reservation{ExpiresAt: now.Add(4*time.Minute + 30*time.Second)}
	assert.Equal(t, "Active (4 min left)", active.StatusAt(now))
	assert.True(t, active.Active(now))

	expired := &Reservation{ExpiresAt: now.Add(-time.Second)}
	assert.Equal(t, "EXPIRED", expired.StatusAt(now))
	assert.True(t, expired.Expired(now))

	used := &Reservation{IsUsed: true, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, used.Expired(now))
	assert.False(t, used.Active(now))
}
