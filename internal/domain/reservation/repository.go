package reservation

import (
	"context"
	"errors"
	"time"
)

// ErrNumberTaken is returned by Store.Insert when the storage-level
// uniqueness constraint rejects the candidate pair. It is the arbiter of the
// one true race window: two allocators computing the same candidate
// concurrently. The service retries allocation on it.
var ErrNumberTaken = errors.New("report number or serial already reserved")

// Store is the persistence contract for the reservation table.
// The PostgreSQL implementation lives in
// infrastructure/storage/postgres/reservation_repo.
//
// "Active" always means is_used=false AND expires_at > now: expired rows are
// logically free even while physically present (until swept).
type Store interface {
	// CountActive returns the number of active reservations system-wide.
	CountActive(ctx context.Context, now time.Time) (int, error)

	// CountActiveByUser returns the number of active reservations held by one user.
	CountActiveByUser(ctx context.Context, username string, now time.Time) (int, error)

	// ActiveSerials returns serial numbers of all active reservations, sorted
	// ascending.
	ActiveSerials(ctx context.Context, now time.Time) ([]int64, error)

	// MaxActivePeriodSequence returns the highest numeric suffix (NNN) among
	// active reservation numbers matching the period prefix ("YYYY/MM/").
	MaxActivePeriodSequence(ctx context.Context, periodPrefix string, now time.Time) (int, error)

	// Insert creates a new pending reservation row. Returns ErrNumberTaken
	// when the unique constraint on report_number or serial_number rejects it.
	Insert(ctx context.Context, r *Reservation) error

	// DeleteExpiredMatching removes expired rows still physically holding the
	// candidate pair, so the uniqueness constraint does not reject a
	// legitimate reuse of a lapsed hold.
	DeleteExpiredMatching(ctx context.Context, serial int64, reportNumber string, now time.Time) error

	// MarkUsed flips is_used on the owner's pending reservation. Returns
	// false when no matching pending row exists.
	MarkUsed(ctx context.Context, reportNumber, username string) (bool, error)

	// DeleteOwned removes the owner's pending reservation. Returns false when
	// no matching row exists (already cancelled, swept, or used).
	DeleteOwned(ctx context.Context, reportNumber, username string) (bool, error)

	// DeleteExpired removes every expired pending row; returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// --- Batch pool ---

	// OldestPoolEntry returns the lowest-serial active pool reservation, or
	// nil when the pool is empty.
	OldestPoolEntry(ctx context.Context, now time.Time) (*Reservation, error)

	// ClaimPoolEntry reassigns a pool reservation to a user, restarting its
	// hold window. Returns false when the entry was claimed by someone else
	// first.
	ClaimPoolEntry(ctx context.Context, reportNumber, username string, claimedAt, expiresAt time.Time) (bool, error)

	// CountPool returns the number of unclaimed active pool entries.
	CountPool(ctx context.Context, now time.Time) (int, error)

	// --- Admin inspection & override ---

	// ListPending returns all pending (is_used=false) rows, newest first,
	// including expired-but-unswept ones so the admin view can show their
	// computed EXPIRED status.
	ListPending(ctx context.Context) ([]Reservation, error)

	// CountExpired returns pending rows whose expiry has lapsed.
	CountExpired(ctx context.Context, now time.Time) (int, error)

	// CountUsed returns the historical count of used reservations.
	CountUsed(ctx context.Context) (int, error)

	// MaxSerial returns the highest serial number ever reserved.
	MaxSerial(ctx context.Context) (int64, error)

	// CountPendingByUser returns pending reservation counts grouped by user.
	CountPendingByUser(ctx context.Context) (map[string]int, error)

	// RecentActivity returns the most recent rows (reserved or used), newest
	// first, up to limit.
	RecentActivity(ctx context.Context, limit int) ([]Reservation, error)

	// ReleaseByNumber removes a pending reservation regardless of owner
	// (admin override). Returns false when no pending row matched.
	ReleaseByNumber(ctx context.Context, reportNumber string) (bool, error)

	// ReleaseByUser removes all pending reservations held by a user (admin
	// override); returns the count removed.
	ReleaseByUser(ctx context.Context, username string) (int64, error)
}

// Auditor records reservation lifecycle events. Implementations must be
// fire-and-forget safe: a failed audit write never rolls back the
// reservation operation itself.
type Auditor interface {
	Record(ctx context.Context, action, reportNumber string, serial int64, username string, details map[string]any)
}

// NopAuditor discards all events.
type NopAuditor struct{}

func (NopAuditor) Record(context.Context, string, string, int64, string, map[string]any) {}
