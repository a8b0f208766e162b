package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fiunum/internal/domain/reports"
)

// Allocator computes the next (serial_number, report_number) candidate.
//
// Serial numbers fill gaps: the candidate serial is the lowest positive
// integer not held by a non-deleted report or an active reservation. Report
// numbers are period-scoped (YYYY/MM/NNN); when the gap serial belongs to a
// report deleted within the current period, the deleted report's exact
// number is reused, otherwise NNN continues from the period's high-water
// mark.
//
// The allocator only proposes. Uniqueness is enforced by the store's
// constraints at insert time; the service retries on conflict.
type Allocator struct {
	reports      reports.Store
	reservations Store
}

// NewAllocator creates an Allocator over the two stores.
func NewAllocator(reportStore reports.Store, reservationStore Store) *Allocator {
	return &Allocator{reports: reportStore, reservations: reservationStore}
}

// Next returns the candidate pair for the period active at now.
func (a *Allocator) Next(ctx context.Context, now time.Time, graceDays int) (Candidate, error) {
	serial, err := a.nextSerial(ctx, now)
	if err != nil {
		return Candidate{}, err
	}

	prefix := PeriodPrefix(now, graceDays)

	deleted, err := a.reports.DeletedBySerial(ctx, serial)
	if err != nil {
		return Candidate{}, fmt.Errorf("lookup deleted report for serial %d: %w", serial, err)
	}

	if deleted != nil && strings.HasPrefix(deleted.ReportNumber, prefix) {
		return Candidate{
			SerialNumber: serial,
			ReportNumber: deleted.ReportNumber,
			HasGap:       true,
			GapInfo: &GapInfo{
				ReportNumber: deleted.ReportNumber,
				SerialNumber: deleted.SerialNumber,
				DeletedAt:    deleted.DeletedAt,
				DeletedBy:    deleted.DeletedBy,
				Message:      fmt.Sprintf("Gap detected: Report %s was deleted and is being reused.", deleted.ReportNumber),
			},
		}, nil
	}

	seq, err := a.nextSequence(ctx, prefix, now)
	if err != nil {
		return Candidate{}, err
	}

	c := Candidate{
		SerialNumber: serial,
		ReportNumber: FormatNumber(prefix, seq),
	}

	// A deleted report outside the current period still explains the serial
	// gap, even though its number cannot be reused.
	if deleted != nil {
		c.HasGap = true
		c.GapInfo = &GapInfo{
			ReportNumber: deleted.ReportNumber,
			SerialNumber: deleted.SerialNumber,
			DeletedAt:    deleted.DeletedAt,
			DeletedBy:    deleted.DeletedBy,
			Message:      fmt.Sprintf("Gap detected: Report %s was deleted and is being reused.", deleted.ReportNumber),
		}
	}

	return c, nil
}

// nextSerial finds the lowest serial not held by a report or an active
// reservation.
func (a *Allocator) nextSerial(ctx context.Context, now time.Time) (int64, error) {
	used, err := a.reports.UsedSerials(ctx)
	if err != nil {
		return 0, fmt.Errorf("list used serials: %w", err)
	}
	held, err := a.reservations.ActiveSerials(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list reserved serials: %w", err)
	}

	taken := make(map[int64]struct{}, len(used)+len(held))
	for _, s := range used {
		taken[s] = struct{}{}
	}
	for _, s := range held {
		taken[s] = struct{}{}
	}

	var serial int64 = 1
	for {
		if _, ok := taken[serial]; !ok {
			return serial, nil
		}
		serial++
	}
}

// nextSequence returns the next NNN within the period, counting both created
// reports and active reservations so two users never draft the same number.
func (a *Allocator) nextSequence(ctx context.Context, prefix string, now time.Time) (int, error) {
	fromReports, err := a.reports.MaxPeriodSequence(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("max report sequence: %w", err)
	}
	fromReservations, err := a.reservations.MaxActivePeriodSequence(ctx, prefix, now)
	if err != nil {
		return 0, fmt.Errorf("max reserved sequence: %w", err)
	}

	seq := fromReports
	if fromReservations > seq {
		seq = fromReservations
	}
	return seq + 1, nil
}
