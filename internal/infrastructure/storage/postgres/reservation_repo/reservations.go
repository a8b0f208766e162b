// Package reservation_repo provides the PostgreSQL implementation of the
// reservation store.
//
// Uniqueness of (report_number) and (serial_number) among pending rows is
// enforced by partial unique indexes (WHERE NOT is_used); a violation maps
// to reservation.ErrNumberTaken so the service can retry with a fresh
// candidate.
package reservation_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/storage/postgres"
)

const tableName = "report_number_reservations"

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

var selectCols = []string{
	"reservation_id", "report_number", "serial_number",
	"reserved_by", "reserved_at", "expires_at", "is_used",
}

// Repo implements reservation.Store on PostgreSQL.
type Repo struct {
	txm *postgres.TxManager
}

var _ reservation.Store = (*Repo)(nil)

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

func (r *Repo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// activePred selects rows still holding their numbers.
func activePred(now time.Time) squirrel.Sqlizer {
	return squirrel.And{
		squirrel.Eq{"is_used": false},
		squirrel.Gt{"expires_at": now},
	}
}

func (r *Repo) CountActive(ctx context.Context, now time.Time) (int, error) {
	return r.count(ctx, activePred(now))
}

func (r *Repo) CountActiveByUser(ctx context.Context, username string, now time.Time) (int, error) {
	return r.count(ctx, squirrel.And{activePred(now), squirrel.Eq{"reserved_by": username}})
}

func (r *Repo) CountExpired(ctx context.Context, now time.Time) (int, error) {
	return r.count(ctx, squirrel.And{
		squirrel.Eq{"is_used": false},
		squirrel.LtOrEq{"expires_at": now},
	})
}

func (r *Repo) CountUsed(ctx context.Context) (int, error) {
	return r.count(ctx, squirrel.Eq{"is_used": true})
}

func (r *Repo) CountPool(ctx context.Context, now time.Time) (int, error) {
	return r.count(ctx, squirrel.And{activePred(now), squirrel.Eq{"reserved_by": reservation.PoolHolder}})
}

func (r *Repo) count(ctx context.Context, pred squirrel.Sqlizer) (int, error) {
	sql, args, err := r.builder().
		Select("COUNT(*)").
		From(tableName).
		Where(pred).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}

	var n int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

func (r *Repo) ActiveSerials(ctx context.Context, now time.Time) ([]int64, error) {
	sql, args, err := r.builder().
		Select("serial_number").
		From(tableName).
		Where(activePred(now)).
		OrderBy("serial_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build active serials: %w", err)
	}

	var serials []int64
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &serials, sql, args...); err != nil {
		return nil, fmt.Errorf("select active serials: %w", err)
	}
	return serials, nil
}

func (r *Repo) MaxActivePeriodSequence(ctx context.Context, periodPrefix string, now time.Time) (int, error) {
	sql := `
		SELECT COALESCE(MAX(substring(report_number from '([0-9]+)$')::int), 0)
		FROM report_number_reservations
		WHERE is_used = false
		  AND expires_at > $1
		  AND report_number LIKE $2 || '%'
	`

	var max int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, now, periodPrefix).Scan(&max); err != nil {
		return 0, fmt.Errorf("max reserved sequence: %w", err)
	}
	return max, nil
}

func (r *Repo) OldestPoolEntry(ctx context.Context, now time.Time) (*reservation.Reservation, error) {
	return r.findOne(ctx, squirrel.And{activePred(now), squirrel.Eq{"reserved_by": reservation.PoolHolder}}, "serial_number")
}

func (r *Repo) findOne(ctx context.Context, pred squirrel.Sqlizer, orderBy string) (*reservation.Reservation, error) {
	sql, args, err := r.builder().
		Select(selectCols...).
		From(tableName).
		Where(pred).
		OrderBy(orderBy).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var res reservation.Reservation
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &res, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select reservation: %w", err)
	}
	return &res, nil
}

func (r *Repo) Insert(ctx context.Context, res *reservation.Reservation) error {
	sql, args, err := r.builder().
		Insert(tableName).
		Columns("report_number", "serial_number", "reserved_by", "reserved_at", "expires_at", "is_used").
		Values(res.ReportNumber, res.SerialNumber, res.ReservedBy, res.ReservedAt, res.ExpiresAt, false).
		Suffix("RETURNING reservation_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&res.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return reservation.ErrNumberTaken
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (r *Repo) DeleteExpiredMatching(ctx context.Context, serial int64, reportNumber string, now time.Time) error {
	sql, args, err := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{"is_used": false}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		Where(squirrel.Or{
			squirrel.Eq{"serial_number": serial},
			squirrel.Eq{"report_number": reportNumber},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete expired matching: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete expired matching: %w", err)
	}
	return nil
}

func (r *Repo) MarkUsed(ctx context.Context, reportNumber, username string) (bool, error) {
	sql, args, err := r.builder().
		Update(tableName).
		Set("is_used", true).
		Where(squirrel.Eq{
			"report_number": reportNumber,
			"reserved_by":   username,
			"is_used":       false,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build mark used: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("mark reservation used: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) DeleteOwned(ctx context.Context, reportNumber, username string) (bool, error) {
	sql, args, err := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{
			"report_number": reportNumber,
			"reserved_by":   username,
			"is_used":       false,
		}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete owned: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	sql, args, err := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{"is_used": false}).
		Where(squirrel.LtOrEq{"expires_at": now}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) ClaimPoolEntry(ctx context.Context, reportNumber, username string, claimedAt, expiresAt time.Time) (bool, error) {
	sql, args, err := r.builder().
		Update(tableName).
		Set("reserved_by", username).
		Set("reserved_at", claimedAt).
		Set("expires_at", expiresAt).
		Where(squirrel.Eq{
			"report_number": reportNumber,
			"reserved_by":   reservation.PoolHolder,
			"is_used":       false,
		}).
		Where(squirrel.Gt{"expires_at": claimedAt}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build claim pool entry: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("claim pool entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) ListPending(ctx context.Context) ([]reservation.Reservation, error) {
	return r.list(ctx, squirrel.Eq{"is_used": false}, 0)
}

func (r *Repo) RecentActivity(ctx context.Context, limit int) ([]reservation.Reservation, error) {
	return r.list(ctx, nil, uint64(limit))
}

func (r *Repo) list(ctx context.Context, pred squirrel.Sqlizer, limit uint64) ([]reservation.Reservation, error) {
	q := r.builder().
		Select(selectCols...).
		From(tableName).
		OrderBy("reservation_id DESC")
	if pred != nil {
		q = q.Where(pred)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	var rows []reservation.Reservation
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return rows, nil
}

func (r *Repo) MaxSerial(ctx context.Context) (int64, error) {
	sql, args, err := r.builder().
		Select("COALESCE(MAX(serial_number), 0)").
		From(tableName).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build max serial: %w", err)
	}

	var max int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("max serial: %w", err)
	}
	return max, nil
}

func (r *Repo) CountPendingByUser(ctx context.Context) (map[string]int, error) {
	sql, args, err := r.builder().
		Select("reserved_by", "COUNT(*)").
		From(tableName).
		Where(squirrel.Eq{"is_used": false}).
		GroupBy("reserved_by").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count by user: %w", err)
	}

	rows, err := r.txm.GetQuerier(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("count by user: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var username string
		var n int
		if err := rows.Scan(&username, &n); err != nil {
			return nil, fmt.Errorf("scan count by user: %w", err)
		}
		out[username] = n
	}
	return out, rows.Err()
}

func (r *Repo) ReleaseByNumber(ctx context.Context, reportNumber string) (bool, error) {
	sql, args, err := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{"report_number": reportNumber, "is_used": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build release: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repo) ReleaseByUser(ctx context.Context, username string) (int64, error) {
	sql, args, err := r.builder().
		Delete(tableName).
		Where(squirrel.Eq{"reserved_by": username, "is_used": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build release by user: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("release user reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}
