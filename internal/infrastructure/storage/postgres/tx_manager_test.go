package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"fiunum/internal/core/tx"
)

func TestTranslateTxErrorSerializationFailure(t *testing.T) {
	pgErr := &pgconn.PgError{Code: pgSerializationFailure, Message: "could not serialize access"}
	wrapped := fmt.Errorf("commit transaction: %w", pgErr)

	err := translateTxError(wrapped)
	assert.ErrorIs(t, err, tx.ErrSerializationFailure)
}

func TestTranslateTxErrorPassthrough(t *testing.T) {
	assert.NoError(t, translateTxError(nil))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, translateTxError(plain))

	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	err := translateTxError(unique)
	assert.False(t, errors.Is(err, tx.ErrSerializationFailure))
	assert.Equal(t, unique, err)
}
