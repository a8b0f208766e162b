// Package main provides a CLI tool for creating the fiunum schema and
// seeding the database with initial data.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"fiunum/internal/domain/reservation"
	"fiunum/internal/infrastructure/storage/postgres"
	"fiunum/pkg/logger"
)

// Schema statements are idempotent so the tool can run on every deploy.
//
// reports carries a surrogate primary key. Uniqueness of report_number and
// serial_number is enforced only among live rows, so the numbers of a deleted
// report can be reissued to a later one.
//
// The two partial unique indexes on report_number_reservations are load
// bearing: they are what turns a lost race between two serializable
// reservation transactions into a unique violation instead of a duplicate
// report number.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS reports (
		report_id     BIGSERIAL PRIMARY KEY,
		report_number TEXT NOT NULL,
		serial_number BIGINT NOT NULL,
		subject       TEXT NOT NULL DEFAULT '',
		amount        NUMERIC(18, 2) NOT NULL DEFAULT 0,
		currency      TEXT NOT NULL DEFAULT 'EUR',
		created_by    TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_deleted    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_by    TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_reports_number_live
		ON reports (report_number) WHERE NOT is_deleted`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_reports_serial_live
		ON reports (serial_number) WHERE NOT is_deleted`,
	`CREATE INDEX IF NOT EXISTS idx_reports_deleted_number
		ON reports (report_number) WHERE is_deleted`,

	`CREATE TABLE IF NOT EXISTS report_number_reservations (
		reservation_id BIGSERIAL PRIMARY KEY,
		report_number  TEXT NOT NULL,
		serial_number  BIGINT NOT NULL,
		reserved_by    TEXT NOT NULL,
		reserved_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at     TIMESTAMPTZ NOT NULL,
		is_used        BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_reservations_number_live
		ON report_number_reservations (report_number) WHERE NOT is_used`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_reservations_serial_live
		ON report_number_reservations (serial_number) WHERE NOT is_used`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_reserved_by
		ON report_number_reservations (reserved_by)`,
	`CREATE INDEX IF NOT EXISTS idx_reservations_expires_at
		ON report_number_reservations (expires_at) WHERE NOT is_used`,

	`CREATE TABLE IF NOT EXISTS system_settings (
		setting_key   TEXT PRIMARY KEY,
		setting_value TEXT NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		user_id               BIGSERIAL PRIMARY KEY,
		username              TEXT NOT NULL UNIQUE,
		password_hash         TEXT NOT NULL,
		full_name             TEXT NOT NULL DEFAULT '',
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		is_admin              BOOLEAN NOT NULL DEFAULT FALSE,
		roles                 TEXT[] NOT NULL DEFAULT '{}',
		last_login_at         TIMESTAMPTZ,
		failed_login_attempts INT NOT NULL DEFAULT 0,
		locked_until          TIMESTAMPTZ,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		token_id       BIGSERIAL PRIMARY KEY,
		username       TEXT NOT NULL,
		token_hash     TEXT NOT NULL UNIQUE,
		expires_at     TIMESTAMPTZ NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		revoked_at     TIMESTAMPTZ,
		revoked_reason TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_username
		ON refresh_tokens (username)`,

	`CREATE TABLE IF NOT EXISTS reservation_audit (
		audit_id           BIGSERIAL PRIMARY KEY,
		action             TEXT NOT NULL,
		report_number      TEXT NOT NULL,
		serial_number      BIGINT NOT NULL,
		username           TEXT NOT NULL,
		details            JSONB,
		details_compressed BYTEA,
		compression_algo   TEXT NOT NULL DEFAULT 'none',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reservation_audit_created_at
		ON reservation_audit (created_at)`,
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	if err := createSchema(ctx, pool); err != nil {
		log.Fatalw("failed to create schema", "error", err)
	}
	log.Info("schema up to date")

	if err := seedSettings(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed settings", "error", err)
	}

	if err := seedAdminUser(ctx, pool, log); err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoReports(ctx, pool, log); err != nil {
			log.Fatalw("failed to seed demo reports", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func createSchema(ctx context.Context, pool *postgres.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// seedSettings inserts the default reservation limits without overwriting
// values an admin may have changed.
func seedSettings(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	defaults := map[string]string{
		reservation.KeyMaxConcurrent:  strconv.Itoa(reservation.DefaultMaxConcurrent),
		reservation.KeyMaxPerUser:     strconv.Itoa(reservation.DefaultMaxPerUser),
		reservation.KeyTimeoutMinutes: strconv.Itoa(int(reservation.DefaultTimeout / time.Minute)),
		reservation.KeyMonthGraceDays: strconv.Itoa(reservation.DefaultMonthGraceDays),
	}

	for key, value := range defaults {
		tag, err := pool.Exec(ctx, `
			INSERT INTO system_settings (setting_key, setting_value)
			VALUES ($1, $2)
			ON CONFLICT (setting_key) DO NOTHING
		`, key, value)
		if err != nil {
			return fmt.Errorf("insert setting %s: %w", key, err)
		}
		if tag.RowsAffected() > 0 {
			log.Infow("seeded setting", "key", key, "value", value)
		}
	}
	return nil
}

func seedAdminUser(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	if adminUsername == "" {
		adminUsername = "admin"
	}

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "Admin123!"
	}

	var existingID int64
	err := pool.QueryRow(ctx,
		`SELECT user_id FROM users WHERE username = $1`,
		adminUsername,
	).Scan(&existingID)
	if err == nil {
		log.Infow("admin user already exists", "username", adminUsername, "user_id", existingID)
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("check admin exists: %w", err)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, full_name, is_active, is_admin, roles)
		VALUES ($1, $2, 'System Administrator', TRUE, TRUE, '{admin}')
	`, adminUsername, string(passwordHash))
	if err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}

	log.Infow("admin user created", "username", adminUsername)
	return nil
}

// seedDemoReports creates a handful of reports for the current period,
// including one deleted report so the gap reuse path has something to find.
func seedDemoReports(ctx context.Context, pool *postgres.Pool, log *logger.Logger) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&count); err != nil {
		return fmt.Errorf("count reports: %w", err)
	}
	if count > 0 {
		log.Infow("reports table not empty, skipping demo data", "count", count)
		return nil
	}

	now := time.Now().UTC()
	prefix := reservation.PeriodPrefix(now, reservation.DefaultMonthGraceDays)

	for serial := 1; serial <= 3; serial++ {
		number := reservation.FormatNumber(prefix, serial)
		_, err := pool.Exec(ctx, `
			INSERT INTO reports (report_number, serial_number, subject, amount, currency, created_by, is_deleted, updated_by)
			VALUES ($1, $2, $3, $4, 'EUR', 'seed', $5, 'seed')
		`, number, serial, fmt.Sprintf("Demo suspicious transaction report %d", serial), 1000*serial, serial == 2)
		if err != nil {
			return fmt.Errorf("insert demo report %s: %w", number, err)
		}
	}

	log.Infow("seeded demo reports", "period", prefix, "count", 3, "deleted", 1)
	return nil
}
