package reservation

import (
	"context"

	"fiunum/internal/core/apperror"
	"fiunum/pkg/logger"
)

// Admin operations: inspection, statistics, forced release, and limit
// changes. Authorization is the HTTP layer's responsibility; these methods
// trust their caller.

// ListPending returns every pending reservation with its view-time status.
// Expired rows not yet swept appear as EXPIRED rather than being hidden:
// the admin view shows the table as it physically is.
func (s *Service) ListPending(ctx context.Context) ([]PendingView, error) {
	rows, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	now := s.now()
	views := make([]PendingView, len(rows))
	for i, r := range rows {
		views[i] = PendingView{Reservation: r, Status: r.StatusAt(now)}
	}
	return views, nil
}

// Stats aggregates store health numbers for the admin dashboard.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	limits, err := s.limits.Load(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}
	now := s.now()

	st := &Stats{}
	if st.ActiveReservations, err = s.store.CountActive(ctx, now); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	if st.ExpiredReservations, err = s.store.CountExpired(ctx, now); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	if st.UsedReservations, err = s.store.CountUsed(ctx); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	prefix := PeriodPrefix(now, limits.MonthGraceDays)
	if st.CurrentMonthGaps, err = s.reports.CountDeletedInPeriod(ctx, prefix); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	if st.LatestSerial, err = s.store.MaxSerial(ctx); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	if st.ByUser, err = s.store.CountPendingByUser(ctx); err != nil {
		return nil, apperror.NewDatabase(err)
	}
	return st, nil
}

// Activity returns the recent reservation feed, newest first. The feed
// defaults to the last 50 rows.
func (s *Service) Activity(ctx context.Context, limit int) ([]ActivityEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.store.RecentActivity(ctx, limit)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	entries := make([]ActivityEntry, len(rows))
	for i, r := range rows {
		action := "Reserved"
		if r.IsUsed {
			action = "Created Report"
		}
		entries[i] = ActivityEntry{
			ReportNumber: r.ReportNumber,
			ReservedBy:   r.ReservedBy,
			Action:       action,
			Timestamp:    r.ReservedAt,
		}
	}
	return entries, nil
}

// Release force-removes a pending reservation regardless of owner.
func (s *Service) Release(ctx context.Context, reportNumber, admin string) error {
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		ok, err := s.store.ReleaseByNumber(ctx, reportNumber)
		if err != nil {
			return apperror.NewDatabase(err)
		}
		if !ok {
			return apperror.NewNotFound("reservation", reportNumber)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.Record(ctx, "release", reportNumber, 0, admin, nil)
	logger.Info(ctx, "reservation force-released",
		"report_number", reportNumber, "admin", admin)
	return nil
}

// ReleaseUser force-removes all of a user's pending reservations and returns
// the count.
func (s *Service) ReleaseUser(ctx context.Context, username, admin string) (int64, error) {
	var removed int64
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := s.store.ReleaseByUser(ctx, username)
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
		s.audit.Record(ctx, "release", "", 0, admin, map[string]any{
			"target_user": username,
			"removed":     removed,
		})
		logger.Info(ctx, "user reservations force-released",
			"target_user", username, "removed", removed, "admin", admin)
	}
	return removed, nil
}

// UpdateCaps persists new concurrency caps. Takes effect on the next
// reservation attempt.
func (s *Service) UpdateCaps(ctx context.Context, maxConcurrent, maxPerUser int, admin string) error {
	if maxConcurrent < 1 || maxPerUser < 1 {
		return apperror.NewValidation("caps must be positive")
	}
	if err := s.limits.SetCaps(ctx, maxConcurrent, maxPerUser); err != nil {
		return apperror.NewDatabase(err)
	}
	logger.Info(ctx, "reservation caps updated",
		"max_concurrent", maxConcurrent, "max_per_user", maxPerUser, "admin", admin)
	return nil
}

// UpdateTimeout persists a new reservation timeout in minutes. Existing
// holds keep their original expiry.
func (s *Service) UpdateTimeout(ctx context.Context, minutes int, admin string) error {
	if minutes < 1 || minutes > 1440 {
		return apperror.NewValidation("timeout must be between 1 and 1440 minutes")
	}
	if err := s.limits.SetTimeout(ctx, minutes); err != nil {
		return apperror.NewDatabase(err)
	}
	logger.Info(ctx, "reservation timeout updated",
		"timeout_minutes", minutes, "admin", admin)
	return nil
}
