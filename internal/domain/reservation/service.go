package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fiunum/internal/core/apperror"
	"fiunum/internal/core/tx"
	"fiunum/internal/domain/reports"
	"fiunum/pkg/logger"
)

// maxReserveAttempts bounds the retry loop around the one true race window:
// two allocators computing the same candidate before either inserts.
const maxReserveAttempts = 3

// MsgReserved is returned on a fresh grant.
const MsgReserved = "Numbers reserved successfully."

// retryableConflict reports whether a failed reservation attempt lost a race
// and may succeed with a freshly computed candidate: either the store
// rejected the pair (unique violation) or the database aborted the
// serializable transaction at commit.
func retryableConflict(err error) bool {
	return errors.Is(err, ErrNumberTaken) || errors.Is(err, tx.ErrSerializationFailure)
}

// Service orchestrates the reservation lifecycle: allocate, hold, consume or
// release. All mutations run inside transactions via the injected manager;
// uniqueness is ultimately enforced by storage constraints, not application
// locks.
type Service struct {
	txm     tx.Manager
	store   Store
	reports reports.Store
	limits  *LimitsProvider
	alloc   *Allocator
	audit   Auditor
	now     func() time.Time
}

// NewService wires a Service. Pass nil auditor to disable auditing.
func NewService(txm tx.Manager, store Store, reportStore reports.Store, limits *LimitsProvider, audit Auditor) *Service {
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Service{
		txm:     txm,
		store:   store,
		reports: reportStore,
		limits:  limits,
		alloc:   NewAllocator(reportStore, store),
		audit:   audit,
		now:     time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Limits exposes the limits provider for admin handlers.
func (s *Service) Limits() *LimitsProvider {
	return s.limits
}

// Reserve grants the caller the next free (serial, report number) pair, held
// until the configured timeout.
//
// Capacity checks and the insert happen in one serializable transaction;
// conflicting concurrent grants surface as ErrNumberTaken from the store or
// as a serialization failure at commit, and are retried with a fresh
// candidate.
func (s *Service) Reserve(ctx context.Context, username string) (*Grant, error) {
	if username == "" {
		return nil, apperror.NewValidation("username is required")
	}

	limits, err := s.limits.Load(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	var grant *Grant
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		grant, err = s.tryReserve(ctx, username, limits)
		if err == nil || !retryableConflict(err) {
			break
		}
		logger.Warn(ctx, "reservation candidate lost race, retrying",
			"attempt", attempt+1, "username", username)
	}
	if retryableConflict(err) {
		return nil, apperror.NewAllocationConflict()
	}
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "reservation granted",
		"report_number", grant.ReportNumber,
		"serial_number", grant.SerialNumber,
		"username", username,
		"expires_at", grant.ExpiresAt,
		"has_gap", grant.HasGap,
	)
	return grant, nil
}

func (s *Service) tryReserve(ctx context.Context, username string, limits Limits) (*Grant, error) {
	now := s.now()
	var grant *Grant

	err := s.txm.RunSerializable(ctx, func(ctx context.Context) error {
		perUser, err := s.store.CountActiveByUser(ctx, username, now)
		if err != nil {
			return apperror.NewDatabase(err)
		}
		if perUser >= limits.MaxPerUser {
			return apperror.NewUserCapacityExceeded(perUser, limits.MaxPerUser)
		}

		total, err := s.store.CountActive(ctx, now)
		if err != nil {
			return apperror.NewDatabase(err)
		}
		if total >= limits.MaxConcurrent {
			return apperror.NewCapacityExceeded(limits.MaxConcurrent)
		}

		cand, err := s.alloc.Next(ctx, now, limits.MonthGraceDays)
		if err != nil {
			return apperror.NewDatabase(err)
		}

		// Expired rows still physically holding the candidate pair would
		// trip the unique constraints. They are logically free; clear them
		// before inserting.
		if err := s.store.DeleteExpiredMatching(ctx, cand.SerialNumber, cand.ReportNumber, now); err != nil {
			return apperror.NewDatabase(err)
		}

		r := &Reservation{
			ReportNumber: cand.ReportNumber,
			SerialNumber: cand.SerialNumber,
			ReservedBy:   username,
			ReservedAt:   now,
			ExpiresAt:    now.Add(limits.Timeout),
		}
		if err := s.store.Insert(ctx, r); err != nil {
			return err
		}

		grant = &Grant{
			Reservation: *r,
			HasGap:      cand.HasGap,
			GapInfo:     cand.GapInfo,
			Message:     MsgReserved,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "reserve", grant.ReportNumber, grant.SerialNumber, username, map[string]any{
		"expires_at": grant.ExpiresAt,
		"has_gap":    grant.HasGap,
	})
	return grant, nil
}

// MarkUsed permanently consumes the caller's reservation after the report is
// created. A missing reservation is logged and tolerated: the report exists,
// the hold has merely lapsed or been swept, and failing here would strand a
// successfully created report.
func (s *Service) MarkUsed(ctx context.Context, reportNumber, username string) error {
	var consumed bool
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.store.MarkUsed(ctx, reportNumber, username)
		if err != nil {
			return apperror.NewDatabase(err)
		}
		consumed = ok
		return nil
	})
	if err != nil {
		return err
	}
	if !consumed {
		logger.Warn(ctx, "no pending reservation to mark used",
			"report_number", reportNumber, "username", username)
		return nil
	}
	// Audit after commit so a failed audit insert cannot abort the
	// transaction that consumed the reservation.
	s.audit.Record(ctx, "use", reportNumber, 0, username, nil)
	return nil
}

// Cancel releases the caller's reservation, freeing its numbers for the next
// allocator pass. Cancelling a reservation that no longer exists succeeds:
// the desired end state already holds.
func (s *Service) Cancel(ctx context.Context, reportNumber, username string) error {
	var removed bool
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.store.DeleteOwned(ctx, reportNumber, username)
		if err != nil {
			return apperror.NewDatabase(err)
		}
		removed = ok
		return nil
	})
	if err != nil {
		return err
	}
	if !removed {
		logger.Debug(ctx, "cancel of absent reservation",
			"report_number", reportNumber, "username", username)
		return nil
	}
	s.audit.Record(ctx, "cancel", reportNumber, 0, username, nil)
	logger.Info(ctx, "reservation cancelled",
		"report_number", reportNumber, "username", username)
	return nil
}

// CleanupExpired deletes every expired pending row and returns the count.
// Called by the sweeper and the admin cleanup endpoint.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	var removed int64
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := s.store.DeleteExpired(ctx, s.now())
		if err != nil {
			return apperror.NewDatabase(err)
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.audit.Record(ctx, "cleanup", "", 0, "", map[string]any{"removed": removed})
		logger.Info(ctx, "expired reservations swept", "removed", removed)
	}
	return removed, nil
}

// GapNotification describes deleted report numbers in the current period.
type GapNotification struct {
	Period  string   `json:"period"`
	Gaps    []string `json:"gaps"`
	Message string   `json:"message"`
}

// CurrentGaps reports which numbers in the active period belong to deleted
// reports and may be reissued.
func (s *Service) CurrentGaps(ctx context.Context) (*GapNotification, error) {
	limits, err := s.limits.Load(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}
	now := s.now()
	prefix := PeriodPrefix(now, limits.MonthGraceDays)

	gaps, err := s.reports.DeletedInPeriod(ctx, prefix)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	n := &GapNotification{Period: PeriodKey(now, limits.MonthGraceDays), Gaps: gaps}
	switch len(gaps) {
	case 0:
		n.Message = "No gaps in the current period."
	case 1:
		n.Message = fmt.Sprintf("1 deleted report number will be reused: %s", gaps[0])
	default:
		n.Message = fmt.Sprintf("%d deleted report numbers will be reused.", len(gaps))
	}
	return n, nil
}
