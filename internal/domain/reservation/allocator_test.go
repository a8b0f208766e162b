package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC)

func TestAllocatorFirstNumber(t *testing.T) {
	alloc := NewAllocator(newMemReports(), newMemStore())

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cand.SerialNumber)
	assert.Equal(t, "2025/11/001", cand.ReportNumber)
	assert.False(t, cand.HasGap)
}

func TestAllocatorContinuesSequence(t *testing.T) {
	rep := newMemReports()
	rep.addReport(1, "2025/11/001")
	rep.addReport(2, "2025/11/002")
	alloc := NewAllocator(rep, newMemStore())

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cand.SerialNumber)
	assert.Equal(t, "2025/11/003", cand.ReportNumber)
}

func TestAllocatorReusesDeletedNumberInPeriod(t *testing.T) {
	rep := newMemReports()
	for _, r := range []struct {
		serial int64
		number string
	}{
		{1, "2025/11/001"}, {2, "2025/11/002"}, {4, "2025/11/004"}, {5, "2025/11/005"},
	} {
		rep.addReport(r.serial, r.number)
	}
	deletedAt := testNow.Add(-2 * time.Hour)
	rep.addDeleted(3, "2025/11/003", "alice", deletedAt)

	alloc := NewAllocator(rep, newMemStore())

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cand.SerialNumber)
	assert.Equal(t, "2025/11/003", cand.ReportNumber)
	assert.True(t, cand.HasGap)
	require.NotNil(t, cand.GapInfo)
	assert.Equal(t, "alice", cand.GapInfo.DeletedBy)
	assert.Equal(t, "Gap detected: Report 2025/11/003 was deleted and is being reused.", cand.GapInfo.Message)
}

func TestAllocatorGapSerialFromOlderPeriodGetsFreshNumber(t *testing.T) {
	rep := newMemReports()
	rep.addReport(1, "2025/10/001")
	rep.addReport(2, "2025/10/002")
	rep.addReport(4, "2025/11/001")
	rep.addDeleted(3, "2025/10/003", "bob", testNow.AddDate(0, -1, 0))

	alloc := NewAllocator(rep, newMemStore())

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	// Serial 3 is reclaimed, but the October number stays retired.
	assert.Equal(t, int64(3), cand.SerialNumber)
	assert.Equal(t, "2025/11/002", cand.ReportNumber)
	assert.True(t, cand.HasGap)
}

func TestAllocatorSkipsActivelyReservedSerials(t *testing.T) {
	rep := newMemReports()
	rep.addReport(1, "2025/11/001")

	store := newMemStore()
	require.NoError(t, store.Insert(context.Background(), &Reservation{
		ReportNumber: "2025/11/002",
		SerialNumber: 2,
		ReservedBy:   "alice",
		ReservedAt:   testNow,
		ExpiresAt:    testNow.Add(5 * time.Minute),
	}))

	alloc := NewAllocator(rep, store)

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(3), cand.SerialNumber)
	assert.Equal(t, "2025/11/003", cand.ReportNumber)
}

func TestAllocatorIgnoresExpiredReservations(t *testing.T) {
	rep := newMemReports()
	store := newMemStore()
	require.NoError(t, store.Insert(context.Background(), &Reservation{
		ReportNumber: "2025/11/001",
		SerialNumber: 1,
		ReservedBy:   "alice",
		ReservedAt:   testNow.Add(-10 * time.Minute),
		ExpiresAt:    testNow.Add(-5 * time.Minute),
	}))

	alloc := NewAllocator(rep, store)

	cand, err := alloc.Next(context.Background(), testNow, 3)
	require.NoError(t, err)

	// The lapsed hold no longer blocks serial 1.
	assert.Equal(t, int64(1), cand.SerialNumber)
	assert.Equal(t, "2025/11/001", cand.ReportNumber)
}
