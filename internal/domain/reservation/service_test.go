package reservation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiunum/internal/core/apperror"
	"fiunum/internal/core/tx"
)

type testEnv struct {
	svc      *Service
	store    *memStore
	reports  *memReports
	settings *memSettings
	clock    *fakeClock
	tx       *lockTx
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEnv() *testEnv {
	return newTestEnvWithAuditor(nil)
}

func newTestEnvWithAuditor(audit Auditor) *testEnv {
	store := newMemStore()
	rep := newMemReports()
	set := newMemSettings()
	clock := &fakeClock{now: testNow}
	txm := &lockTx{}

	svc := NewService(txm, store, rep, NewLimitsProvider(set), audit).WithClock(clock.Now)

	return &testEnv{svc: svc, store: store, reports: rep, settings: set, clock: clock, tx: txm}
}

// flakyStore injects insert conflicts to exercise the retry loop.
type flakyStore struct {
	*memStore
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Insert(ctx context.Context, r *Reservation) error {
	f.mu.Lock()
	fail := f.failures > 0
	if fail {
		f.failures--
	}
	f.mu.Unlock()
	if fail {
		return ErrNumberTaken
	}
	return f.memStore.Insert(ctx, r)
}

func TestReserveFirstGrant(t *testing.T) {
	env := newTestEnv()

	grant, err := env.svc.Reserve(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/001", grant.ReportNumber)
	assert.Equal(t, int64(1), grant.SerialNumber)
	assert.Equal(t, "alice", grant.ReservedBy)
	assert.Equal(t, testNow.Add(5*time.Minute), grant.ExpiresAt)
	assert.Equal(t, MsgReserved, grant.Message)
	assert.False(t, grant.HasGap)
}

func TestReserveRequiresUsername(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Reserve(context.Background(), "")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeValidation, appErr.Code)
}

func TestReserveSecondUserGetsNextPair(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)
	second, err := env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/001", first.ReportNumber)
	assert.Equal(t, "2025/11/002", second.ReportNumber)
	assert.Equal(t, int64(2), second.SerialNumber)
}

func TestReservePerUserCapRejectsSecondAttempt(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	env.clock.Advance(2 * time.Minute)

	_, err = env.svc.Reserve(ctx, "alice")
	require.Error(t, err)
	assert.True(t, apperror.IsCapacity(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeUserCapacityExceeded, appErr.Code)

	// The existing hold is untouched: same expiry, still the only one.
	count, err := env.store.CountActiveByUser(ctx, "alice", env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	views, err := env.svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, first.ExpiresAt, views[0].ExpiresAt)
}

func TestReservePerUserCapAllowsMoreWhenRaised(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.settings.Set(ctx, KeyMaxPerUser, "2"))

	_, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)
	second, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2025/11/002", second.ReportNumber)

	_, err = env.svc.Reserve(ctx, "alice")
	require.Error(t, err)
	assert.True(t, apperror.IsCapacity(err))
}

func TestReserveGlobalCap(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.settings.Set(ctx, KeyMaxConcurrent, "2"))

	_, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)
	_, err = env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)

	_, err = env.svc.Reserve(ctx, "carol")
	require.Error(t, err)
	assert.True(t, apperror.IsCapacity(err))

	appErr, _ := apperror.AsAppError(err)
	assert.Equal(t, apperror.CodeCapacityExceeded, appErr.Code)
	assert.Contains(t, appErr.Message, "Maximum concurrent reservations (2) reached")
}

func TestReserveReclaimsExpiredHold(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	require.NoError(t, env.store.Insert(ctx, &Reservation{
		ReportNumber: "2025/11/001",
		SerialNumber: 1,
		ReservedBy:   "alice",
		ReservedAt:   testNow.Add(-10 * time.Minute),
		ExpiresAt:    testNow.Add(-5 * time.Minute),
	}))

	grant, err := env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/001", grant.ReportNumber)
	assert.Equal(t, int64(1), grant.SerialNumber)
	assert.Equal(t, "bob", grant.ReservedBy)

	// The expired corpse was physically removed, not just shadowed.
	pending, err := env.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestReserveRetriesOnInsertConflict(t *testing.T) {
	flaky := &flakyStore{memStore: newMemStore(), failures: 2}
	svc := NewService(&lockTx{}, flaky, newMemReports(), NewLimitsProvider(newMemSettings()), nil).
		WithClock(func() time.Time { return testNow })

	grant, err := svc.Reserve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "2025/11/001", grant.ReportNumber)
}

func TestReserveConflictExhaustsRetries(t *testing.T) {
	flaky := &flakyStore{memStore: newMemStore(), failures: maxReserveAttempts}
	svc := NewService(&lockTx{}, flaky, newMemReports(), NewLimitsProvider(newMemSettings()), nil).
		WithClock(func() time.Time { return testNow })

	_, err := svc.Reserve(context.Background(), "alice")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeAllocationConflict, appErr.Code)
}

// restartTx aborts the first N serializable transactions the way PostgreSQL
// does when it cannot serialize them, before any work runs.
type restartTx struct {
	lockTx
	failmu   sync.Mutex
	failures int
}

func (t *restartTx) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	t.failmu.Lock()
	fail := t.failures > 0
	if fail {
		t.failures--
	}
	t.failmu.Unlock()
	if fail {
		return fmt.Errorf("commit transaction: %w", tx.ErrSerializationFailure)
	}
	return t.lockTx.RunSerializable(ctx, fn)
}

func TestReserveRetriesOnSerializationFailure(t *testing.T) {
	txm := &restartTx{failures: 2}
	svc := NewService(txm, newMemStore(), newMemReports(), NewLimitsProvider(newMemSettings()), nil).
		WithClock(func() time.Time { return testNow })

	grant, err := svc.Reserve(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "2025/11/001", grant.ReportNumber)
}

func TestReserveSerializationFailureExhaustsRetries(t *testing.T) {
	txm := &restartTx{failures: maxReserveAttempts}
	svc := NewService(txm, newMemStore(), newMemReports(), NewLimitsProvider(newMemSettings()), nil).
		WithClock(func() time.Time { return testNow })

	_, err := svc.Reserve(context.Background(), "alice")
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeAllocationConflict, appErr.Code)
}

func TestConcurrentReservesAreUnique(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	const users = 10
	grants := make([]*Grant, users)
	errs := make([]error, users)

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			grants[i], errs[i] = env.svc.Reserve(ctx, fmt.Sprintf("user-%02d", i))
		}(i)
	}
	wg.Wait()

	seenNumbers := make(map[string]bool)
	seenSerials := make(map[int64]bool)
	for i := 0; i < users; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seenNumbers[grants[i].ReportNumber], "duplicate number %s", grants[i].ReportNumber)
		assert.False(t, seenSerials[grants[i].SerialNumber], "duplicate serial %d", grants[i].SerialNumber)
		seenNumbers[grants[i].ReportNumber] = true
		seenSerials[grants[i].SerialNumber] = true
	}
}

func TestMarkUsedConsumesReservation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, env.svc.MarkUsed(ctx, grant.ReportNumber, "alice"))

	used, err := env.store.CountUsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	active, err := env.store.CountActive(ctx, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, active)
}

func TestMarkUsedMissingIsTolerated(t *testing.T) {
	env := newTestEnv()

	err := env.svc.MarkUsed(context.Background(), "2025/11/099", "alice")
	assert.NoError(t, err)
}

func TestMarkUsedWrongOwnerDoesNotConsume(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, env.svc.MarkUsed(ctx, grant.ReportNumber, "bob"))

	used, err := env.store.CountUsed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

func TestCancelFreesNumbers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancel(ctx, grant.ReportNumber, "alice"))

	again, err := env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, grant.ReportNumber, again.ReportNumber)
	assert.Equal(t, grant.SerialNumber, again.SerialNumber)
}

func TestCancelIsIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	grant, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	require.NoError(t, env.svc.Cancel(ctx, grant.ReportNumber, "alice"))
	require.NoError(t, env.svc.Cancel(ctx, grant.ReportNumber, "alice"))
}

func TestCleanupExpired(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		require.NoError(t, env.store.Insert(ctx, &Reservation{
			ReportNumber: fmt.Sprintf("2025/11/00%d", i),
			SerialNumber: int64(i),
			ReservedBy:   "alice",
			ReservedAt:   testNow.Add(-20 * time.Minute),
			ExpiresAt:    testNow.Add(-10 * time.Minute),
		}))
	}
	require.NoError(t, env.store.Insert(ctx, &Reservation{
		ReportNumber: "2025/11/003",
		SerialNumber: 3,
		ReservedBy:   "bob",
		ReservedAt:   testNow,
		ExpiresAt:    testNow.Add(5 * time.Minute),
	}))

	removed, err := env.svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	pending, err := env.store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestCurrentGaps(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	n, err := env.svc.CurrentGaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025/11", n.Period)
	assert.Empty(t, n.Gaps)
	assert.Equal(t, "No gaps in the current period.", n.Message)

	env.reports.addDeleted(3, "2025/11/003", "alice", testNow.Add(-time.Hour))

	n, err = env.svc.CurrentGaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025/11/003"}, n.Gaps)
	assert.Equal(t, "1 deleted report number will be reused: 2025/11/003", n.Message)
}

func TestReserveUsesGapFromDeletedReport(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for _, r := range []struct {
		serial int64
		number string
	}{
		{1, "2025/11/001"}, {2, "2025/11/002"}, {4, "2025/11/004"}, {5, "2025/11/005"},
	} {
		env.reports.addReport(r.serial, r.number)
	}
	env.reports.addDeleted(3, "2025/11/003", "bob", testNow.Add(-time.Hour))

	grant, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, "2025/11/003", grant.ReportNumber)
	assert.Equal(t, int64(3), grant.SerialNumber)
	assert.True(t, grant.HasGap)
	require.NotNil(t, grant.GapInfo)
	assert.Equal(t, "Gap detected: Report 2025/11/003 was deleted and is being reused.", grant.GapInfo.Message)

	// The gap is consumed; the next grant continues past the high-water mark.
	next, err := env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "2025/11/006", next.ReportNumber)
	assert.Equal(t, int64(6), next.SerialNumber)
}

type recordedEvent struct {
	action   string
	number   string
	insideTx bool
}

// recordingAuditor captures each event together with whether the transaction
// manager was mid-transaction when it fired.
type recordingAuditor struct {
	tx     *lockTx
	mu     sync.Mutex
	events []recordedEvent
}

func (a *recordingAuditor) Record(_ context.Context, action, reportNumber string, _ int64, _ string, _ map[string]any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, recordedEvent{
		action:   action,
		number:   reportNumber,
		insideTx: a.tx.inTx.Load(),
	})
}

func TestAuditRunsAfterTransactionCommit(t *testing.T) {
	auditor := &recordingAuditor{}
	env := newTestEnvWithAuditor(auditor)
	auditor.tx = env.tx
	ctx := context.Background()

	first, err := env.svc.Reserve(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, env.svc.MarkUsed(ctx, first.ReportNumber, "alice"))

	second, err := env.svc.Reserve(ctx, "bob")
	require.NoError(t, err)
	require.NoError(t, env.svc.Cancel(ctx, second.ReportNumber, "bob"))

	third, err := env.svc.Reserve(ctx, "carol")
	require.NoError(t, err)
	require.NoError(t, env.svc.Release(ctx, third.ReportNumber, "admin"))

	require.Len(t, auditor.events, 6)
	actions := make([]string, len(auditor.events))
	for i, ev := range auditor.events {
		actions[i] = ev.action
		assert.False(t, ev.insideTx, "audit for %q fired inside a transaction", ev.action)
	}
	assert.Equal(t, []string{"reserve", "use", "reserve", "cancel", "reserve", "release"}, actions)
}
