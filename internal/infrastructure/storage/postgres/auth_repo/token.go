package auth_repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"fiunum/internal/domain/auth"
	"fiunum/internal/infrastructure/storage/postgres"
)

const tokensTable = "refresh_tokens"

// TokenRepo implements auth.TokenRepository on PostgreSQL.
type TokenRepo struct {
	txm *postgres.TxManager
}

var _ auth.TokenRepository = (*TokenRepo)(nil)

// NewTokenRepo creates the repository.
func NewTokenRepo(txm *postgres.TxManager) *TokenRepo {
	return &TokenRepo{txm: txm}
}

func (r *TokenRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *TokenRepo) SaveRefreshToken(ctx context.Context, token *auth.RefreshToken) error {
	sql, args, err := r.builder().
		Insert(tokensTable).
		Columns("username", "token_hash", "expires_at", "created_at").
		Values(token.Username, token.TokenHash, token.ExpiresAt, token.CreatedAt).
		Suffix("RETURNING token_id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token: %w", err)
	}

	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&token.ID); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepo) GetRefreshToken(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	sql, args, err := r.builder().
		Select("token_id", "username", "token_hash", "expires_at", "created_at",
			"revoked_at", "revoked_reason").
		From(tokensTable).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token: %w", err)
	}

	var token auth.RefreshToken
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &token, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("refresh token not found")
		}
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &token, nil
}

func (r *TokenRepo) RevokeRefreshToken(ctx context.Context, tokenID int64, reason string) error {
	sql, args, err := r.builder().
		Update(tokensTable).
		Set("revoked_at", squirrel.Expr("NOW()")).
		Set("revoked_reason", reason).
		Where(squirrel.Eq{"token_id": tokenID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke token: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *TokenRepo) RevokeAllUserTokens(ctx context.Context, username, reason string) error {
	sql, args, err := r.builder().
		Update(tokensTable).
		Set("revoked_at", squirrel.Expr("NOW()")).
		Set("revoked_reason", reason).
		Where(squirrel.Eq{"username": username}).
		Where(squirrel.Eq{"revoked_at": nil}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke user tokens: %w", err)
	}

	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	return nil
}

func (r *TokenRepo) CleanupExpiredTokens(ctx context.Context) (int, error) {
	sql := `DELETE FROM refresh_tokens WHERE expires_at < NOW()`

	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
