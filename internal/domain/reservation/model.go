// Package reservation implements the report number reservation service:
// gap-filling sequence allocation, time-limited reservations with caps,
// expiry sweeping, and admin inspection/override operations.
package reservation

import (
	"fmt"
	"time"
)

// PoolHolder is the synthetic owner of pre-reserved batch pool entries.
const PoolHolder = "BATCH_POOL"

// Reservation is one row of the reservation store: a time-limited hold on a
// (serial_number, report_number) pair for one user. Rows with IsUsed=true are
// permanent history and are never deleted.
type Reservation struct {
	ID           int64     `db:"reservation_id"`
	ReportNumber string    `db:"report_number"`
	SerialNumber int64     `db:"serial_number"`
	ReservedBy   string    `db:"reserved_by"`
	ReservedAt   time.Time `db:"reserved_at"`
	ExpiresAt    time.Time `db:"expires_at"`
	IsUsed       bool      `db:"is_used"`
}

// Expired reports whether the reservation's hold has lapsed at the given time.
func (r *Reservation) Expired(now time.Time) bool {
	return !r.IsUsed && now.After(r.ExpiresAt)
}

// Active reports whether the reservation still holds its numbers: not yet
// used and not yet expired.
func (r *Reservation) Active(now time.Time) bool {
	return !r.IsUsed && !now.After(r.ExpiresAt)
}

// StatusAt derives the display status at view time. This is intentionally a
// computed property, not a persisted state: an admin snapshot may show
// EXPIRED rows that the sweeper physically removes a moment later.
func (r *Reservation) StatusAt(now time.Time) string {
	if r.Expired(now) {
		return "EXPIRED"
	}
	minutesLeft := int(r.ExpiresAt.Sub(now).Minutes())
	return fmt.Sprintf("Active (%d min left)", minutesLeft)
}

// GapInfo carries deletion provenance shown to the user when a hard-deleted
// report's numbers are being reused.
type GapInfo struct {
	ReportNumber string    `json:"report_number"`
	SerialNumber int64     `json:"serial_number"`
	DeletedAt    time.Time `json:"deleted_at"`
	DeletedBy    string    `json:"deleted_by"`
	Message      string    `json:"message"`
}

// Grant is the result handed back to a caller of Reserve: the created (or
// extended) reservation plus gap metadata for UI display.
type Grant struct {
	Reservation
	HasGap  bool
	GapInfo *GapInfo
	Message string
}

// Candidate is the allocator's proposed next number pair.
type Candidate struct {
	SerialNumber int64
	ReportNumber string
	HasGap       bool
	GapInfo      *GapInfo
}

// Stats aggregates reservation store health numbers for admin monitoring.
type Stats struct {
	ActiveReservations  int            `json:"active_reservations"`
	ExpiredReservations int            `json:"expired_reservations"`
	UsedReservations    int            `json:"used_reservations"`
	CurrentMonthGaps    int            `json:"current_month_gaps"`
	LatestSerial        int64          `json:"latest_serial"`
	ByUser              map[string]int `json:"by_user"`
}

// ActivityEntry is one row of the recent-activity feed.
type ActivityEntry struct {
	ReportNumber string    `json:"report_number"`
	ReservedBy   string    `json:"reserved_by"`
	Action       string    `json:"action"` // "Reserved" or "Created Report"
	Timestamp    time.Time `json:"timestamp"`
}

// PendingView is an admin list row: a pending reservation plus its view-time
// status.
type PendingView struct {
	Reservation
	Status string `json:"status"`
}
