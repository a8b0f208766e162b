// Package settings_repo provides the PostgreSQL key/value settings store.
package settings_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fiunum/internal/domain/settings"
	"fiunum/internal/infrastructure/storage/postgres"
)

// Repo implements settings.Store on PostgreSQL.
type Repo struct {
	txm *postgres.TxManager
}

var _ settings.Store = (*Repo)(nil)

// New creates the repository.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{txm: txm}
}

func (r *Repo) Get(ctx context.Context, key string) (string, bool, error) {
	sql := `SELECT setting_value FROM system_settings WHERE setting_key = $1`

	var value string
	err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (r *Repo) Set(ctx context.Context, key, value string) error {
	sql := `
		INSERT INTO system_settings (setting_key, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_key)
		DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = NOW()
	`

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
