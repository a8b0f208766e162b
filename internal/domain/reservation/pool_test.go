package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiunum/internal/core/apperror"
)

func TestReserveBatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	batch, err := env.svc.ReserveBatch(ctx, 3, time.Hour)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	for i, r := range batch {
		assert.Equal(t, PoolHolder, r.ReservedBy)
		assert.Equal(t, int64(i+1), r.SerialNumber)
		assert.Equal(t, testNow.Add(time.Hour), r.ExpiresAt)
	}
	assert.Equal(t, "2025/11/001", batch[0].ReportNumber)
	assert.Equal(t, "2025/11/003", batch[2].ReportNumber)

	size, err := env.svc.PoolSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestReserveBatchSizeValidation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.ReserveBatch(ctx, 0, time.Hour)
	require.Error(t, err)

	_, err = env.svc.ReserveBatch(ctx, MaxBatchSize+1, time.Hour)
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestReserveBatchRespectsGlobalCap(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.settings.Set(ctx, KeyMaxConcurrent, "2"))

	batch, err := env.svc.ReserveBatch(ctx, 5, time.Hour)
	require.Error(t, err)
	assert.True(t, apperror.IsCapacity(err))
	// The partial batch before the cap stands.
	assert.Len(t, batch, 2)
}

func TestReserveFromPoolClaimsOldest(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.ReserveBatch(ctx, 2, time.Hour)
	require.NoError(t, err)

	grant, err := env.svc.ReserveFromPool(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/001", grant.ReportNumber)
	assert.Equal(t, "alice", grant.ReservedBy)
	// The claim restarts the hold with the standard timeout.
	assert.Equal(t, testNow.Add(5*time.Minute), grant.ExpiresAt)

	size, err := env.svc.PoolSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestReserveFromPoolFallsBackWhenEmpty(t *testing.T) {
	env := newTestEnv()

	grant, err := env.svc.ReserveFromPool(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/001", grant.ReportNumber)
	assert.Equal(t, "alice", grant.ReservedBy)
	assert.Equal(t, MsgReserved, grant.Message)
}

func TestReserveFromPoolRejectsUserAtCap(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.svc.ReserveBatch(ctx, 1, time.Hour)
	require.NoError(t, err)

	_, err = env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	_, err = env.svc.ReserveFromPool(ctx, "alice")
	require.Error(t, err)
	assert.True(t, apperror.IsCapacity(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUserCapacityExceeded, appErr.Code)

	// The pool entry is untouched.
	size, err := env.svc.PoolSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}
