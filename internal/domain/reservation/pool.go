package reservation

import (
	"context"
	"time"

	"fiunum/internal/core/apperror"
	"fiunum/pkg/logger"
)

// Batch pool guardrails. Pool entries are reserved under PoolHolder with a
// longer hold so an admin can pre-allocate numbers ahead of a filing rush.
const (
	MaxBatchSize   = 50
	DefaultPoolTTL = time.Hour
)

// ReserveBatch pre-reserves count numbers under the pool holder, each held
// for ttl. The per-user cap does not apply to the pool holder; the global
// cap still does.
func (s *Service) ReserveBatch(ctx context.Context, count int, ttl time.Duration) ([]Reservation, error) {
	if count < 1 || count > MaxBatchSize {
		return nil, apperror.NewValidation("batch size must be between 1 and 50")
	}
	if ttl <= 0 {
		ttl = DefaultPoolTTL
	}

	limits, err := s.limits.Load(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	reserved := make([]Reservation, 0, count)
	for i := 0; i < count; i++ {
		r, err := s.reservePoolEntry(ctx, limits, ttl)
		if err != nil {
			// Partial batches stand. The caller sees what was actually
			// secured alongside the failure reason.
			return reserved, err
		}
		reserved = append(reserved, *r)
	}

	logger.Info(ctx, "batch pool filled", "count", len(reserved), "ttl", ttl)
	return reserved, nil
}

func (s *Service) reservePoolEntry(ctx context.Context, limits Limits, ttl time.Duration) (*Reservation, error) {
	var out *Reservation
	var err error

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		now := s.now()
		err = s.txm.RunSerializable(ctx, func(ctx context.Context) error {
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
			if err := s.store.DeleteExpiredMatching(ctx, cand.SerialNumber, cand.ReportNumber, now); err != nil {
				return apperror.NewDatabase(err)
			}

			r := &Reservation{
				ReportNumber: cand.ReportNumber,
				SerialNumber: cand.SerialNumber,
				ReservedBy:   PoolHolder,
				ReservedAt:   now,
				ExpiresAt:    now.Add(ttl),
			}
			if err := s.store.Insert(ctx, r); err != nil {
				return err
			}
			out = r
			return nil
		})
		if err == nil || !retryableConflict(err) {
			break
		}
	}
	if retryableConflict(err) {
		return nil, apperror.NewAllocationConflict()
	}
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, "reserve", out.ReportNumber, out.SerialNumber, PoolHolder, map[string]any{
		"expires_at": out.ExpiresAt,
		"pool":       true,
	})
	return out, nil
}

// ReserveFromPool hands the oldest unclaimed pool entry to the user,
// restarting its hold with the standard timeout. Falls back to a regular
// Reserve when the pool is empty. The per-user cap applies the same as for
// a direct Reserve.
func (s *Service) ReserveFromPool(ctx context.Context, username string) (*Grant, error) {
	if username == "" {
		return nil, apperror.NewValidation("username is required")
	}

	limits, err := s.limits.Load(ctx)
	if err != nil {
		return nil, apperror.NewDatabase(err)
	}

	var grant *Grant
	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		now := s.now()
		poolEmpty := false

		err = s.txm.RunSerializable(ctx, func(ctx context.Context) error {
			perUser, err := s.store.CountActiveByUser(ctx, username, now)
			if err != nil {
				return apperror.NewDatabase(err)
			}
			if perUser >= limits.MaxPerUser {
				return apperror.NewUserCapacityExceeded(perUser, limits.MaxPerUser)
			}

			entry, err := s.store.OldestPoolEntry(ctx, now)
			if err != nil {
				return apperror.NewDatabase(err)
			}
			if entry == nil {
				poolEmpty = true
				return nil
			}

			until := now.Add(limits.Timeout)
			ok, err := s.store.ClaimPoolEntry(ctx, entry.ReportNumber, username, now, until)
			if err != nil {
				return apperror.NewDatabase(err)
			}
			if !ok {
				return ErrNumberTaken
			}

			entry.ReservedBy = username
			entry.ReservedAt = now
			entry.ExpiresAt = until
			grant = &Grant{Reservation: *entry, Message: MsgReserved}
			return nil
		})
		if err != nil && retryableConflict(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if poolEmpty {
			return s.Reserve(ctx, username)
		}
		break
	}
	if retryableConflict(err) {
		return nil, apperror.NewAllocationConflict()
	}

	s.audit.Record(ctx, "reserve", grant.ReportNumber, grant.SerialNumber, username, map[string]any{
		"from_pool": true,
	})
	logger.Info(ctx, "pool entry claimed",
		"report_number", grant.ReportNumber, "username", username)
	return grant, nil
}

// PoolSize returns the number of unclaimed active pool entries.
func (s *Service) PoolSize(ctx context.Context) (int, error) {
	n, err := s.store.CountPool(ctx, s.now())
	if err != nil {
		return 0, apperror.NewDatabase(err)
	}
	return n, nil
}
