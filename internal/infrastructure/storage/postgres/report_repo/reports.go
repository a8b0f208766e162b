// Package report_repo provides the PostgreSQL view of the reports table
// consumed by the sequence allocator.
package report_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"fiunum/internal/domain/reports"
	"fiunum/internal/infrastructure/storage/postgres"
)

const tableName = "reports"

// Repo implements reports.Store on PostgreSQL.
type Repo struct {
	txm *postgres.TxManager
}

var _ reports.Store = (*Repo)(nil)

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

func (r *Repo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *Repo) UsedSerials(ctx context.Context) ([]int64, error) {
	sql, args, err := r.builder().
		Select("serial_number").
		From(tableName).
		Where(squirrel.Eq{"is_deleted": false}).
		OrderBy("serial_number").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build used serials: %w", err)
	}

	var serials []int64
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &serials, sql, args...); err != nil {
		return nil, fmt.Errorf("select used serials: %w", err)
	}
	return serials, nil
}

func (r *Repo) MaxPeriodSequence(ctx context.Context, periodPrefix string) (int, error) {
	sql := `
		SELECT COALESCE(MAX(substring(report_number from '([0-9]+)$')::int), 0)
		FROM reports
		WHERE is_deleted = false
		  AND report_number LIKE $1 || '%'
	`

	var max int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, periodPrefix).Scan(&max); err != nil {
		return 0, fmt.Errorf("max report sequence: %w", err)
	}
	return max, nil
}

func (r *Repo) DeletedBySerial(ctx context.Context, serial int64) (*reports.DeletedReport, error) {
	sql, args, err := r.builder().
		Select("report_number", "serial_number", "updated_at", "updated_by").
		From(tableName).
		Where(squirrel.Eq{"is_deleted": true, "serial_number": serial}).
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build deleted by serial: %w", err)
	}

	var d reports.DeletedReport
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &d, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select deleted report: %w", err)
	}
	return &d, nil
}

func (r *Repo) DeletedInPeriod(ctx context.Context, periodPrefix string) ([]string, error) {
	sql := `
		SELECT report_number FROM reports
		WHERE is_deleted = true
		  AND report_number LIKE $1 || '%'
		ORDER BY report_number
	`

	var numbers []string
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &numbers, sql, periodPrefix); err != nil {
		return nil, fmt.Errorf("select deleted in period: %w", err)
	}
	return numbers, nil
}

func (r *Repo) CountDeletedInPeriod(ctx context.Context, periodPrefix string) (int, error) {
	sql := `
		SELECT COUNT(*) FROM reports
		WHERE is_deleted = true
		  AND report_number LIKE $1 || '%'
	`

	var n int
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, periodPrefix).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deleted in period: %w", err)
	}
	return n, nil
}

func (r *Repo) MaxNumberInPeriod(ctx context.Context, periodPrefix string) (string, error) {
	sql := `
		SELECT COALESCE(MAX(report_number), '') FROM reports
		WHERE is_deleted = false
		  AND report_number LIKE $1 || '%'
	`

	var number string
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, periodPrefix).Scan(&number); err != nil {
		return "", fmt.Errorf("max number in period: %w", err)
	}
	return number, nil
}

// Create inserts a report row. Used by seed tooling and the report creation
// flow; the allocator itself never writes to this table.
func (r *Repo) Create(ctx context.Context, rep *reports.Report) error {
	sql, args, err := r.builder().
		Insert(tableName).
		Columns("report_number", "serial_number", "subject", "amount", "currency",
			"created_by", "created_at", "is_deleted", "updated_by", "updated_at").
		Values(rep.ReportNumber, rep.SerialNumber, rep.Subject, rep.Amount, rep.Currency,
			rep.CreatedBy, rep.CreatedAt, rep.IsDeleted, rep.UpdatedBy, rep.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert report: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// HardDelete marks a report deleted, retiring its number and opening a gap
// for the allocator.
func (r *Repo) HardDelete(ctx context.Context, reportNumber, deletedBy string) (bool, error) {
	sql, args, err := r.builder().
		Update(tableName).
		Set("is_deleted", true).
		Set("updated_by", deletedBy).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"report_number": reportNumber, "is_deleted": false}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete report: %w", err)
	}

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("delete report: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
