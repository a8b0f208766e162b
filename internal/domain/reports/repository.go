package reports

import (
	"context"
)

// Store is the read contract the sequence allocator has against the reports
// table. Implementations live in infrastructure/storage/postgres/report_repo.
type Store interface {
	// UsedSerials returns the serial numbers of all non-deleted reports,
	// sorted ascending.
	UsedSerials(ctx context.Context) ([]int64, error)

	// MaxPeriodSequence returns the highest numeric suffix (NNN) among
	// non-deleted report numbers matching the given period prefix
	// ("YYYY/MM/"), or 0 when none exist.
	MaxPeriodSequence(ctx context.Context, periodPrefix string) (int, error)

	// DeletedBySerial returns deletion provenance for a hard-deleted report
	// holding the given serial number, or nil when the serial was never
	// assigned to a deleted report.
	DeletedBySerial(ctx context.Context, serial int64) (*DeletedReport, error)

	// DeletedInPeriod returns report numbers of deleted reports within the
	// period prefix, sorted ascending. Powers the gap notification.
	DeletedInPeriod(ctx context.Context, periodPrefix string) ([]string, error)

	// CountDeletedInPeriod returns how many deleted reports exist in the
	// period, for admin statistics.
	CountDeletedInPeriod(ctx context.Context, periodPrefix string) (int, error)

	// MaxNumberInPeriod returns the highest non-deleted report number in the
	// period, or empty string when none exist.
	MaxNumberInPeriod(ctx context.Context, periodPrefix string) (string, error)
}
