package reservation

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fiunum/internal/domain/reports"
)

// memStore is an in-memory Store honoring the same uniqueness rules as the
// partial unique indexes in the PostgreSQL implementation.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*Reservation
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[int64]*Reservation)}
}

func (m *memStore) active(r *Reservation, now time.Time) bool {
	return !r.IsUsed && !now.After(r.ExpiresAt)
}

func (m *memStore) CountActive(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if m.active(r, now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountActiveByUser(_ context.Context, username string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if m.active(r, now) && r.ReservedBy == username {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ActiveSerials(_ context.Context, now time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var serials []int64
	for _, r := range m.rows {
		if m.active(r, now) {
			serials = append(serials, r.SerialNumber)
		}
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return serials, nil
}

func (m *memStore) MaxActivePeriodSequence(_ context.Context, prefix string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, r := range m.rows {
		if !m.active(r, now) || !strings.HasPrefix(r.ReportNumber, prefix) {
			continue
		}
		if seq, err := strconv.Atoi(strings.TrimPrefix(r.ReportNumber, prefix)); err == nil && seq > max {
			max = seq
		}
	}
	return max, nil
}

func (m *memStore) Insert(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.rows {
		if existing.IsUsed {
			continue
		}
		if existing.ReportNumber == r.ReportNumber || existing.SerialNumber == r.SerialNumber {
			return ErrNumberTaken
		}
	}
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.rows[r.ID] = &cp
	return nil
}

func (m *memStore) DeleteExpiredMatching(_ context.Context, serial int64, reportNumber string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if !r.IsUsed && r.Expired(now) && (r.SerialNumber == serial || r.ReportNumber == reportNumber) {
			delete(m.rows, id)
		}
	}
	return nil
}

func (m *memStore) MarkUsed(_ context.Context, reportNumber, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if !r.IsUsed && r.ReportNumber == reportNumber && r.ReservedBy == username {
			r.IsUsed = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteOwned(_ context.Context, reportNumber, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if !r.IsUsed && r.ReportNumber == reportNumber && r.ReservedBy == username {
			delete(m.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if !r.IsUsed && r.Expired(now) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) OldestPoolEntry(_ context.Context, now time.Time) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *Reservation
	for _, r := range m.rows {
		if m.active(r, now) && r.ReservedBy == PoolHolder {
			if oldest == nil || r.SerialNumber < oldest.SerialNumber {
				oldest = r
			}
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (m *memStore) ClaimPoolEntry(_ context.Context, reportNumber, username string, claimedAt, expiresAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if !r.IsUsed && r.ReservedBy == PoolHolder && r.ReportNumber == reportNumber {
			r.ReservedBy = username
			r.ReservedAt = claimedAt
			r.ExpiresAt = expiresAt
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) CountPool(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if m.active(r, now) && r.ReservedBy == PoolHolder {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListPending(_ context.Context) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.rows {
		if !r.IsUsed {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CountPending is a test helper, not part of the Store contract.
func (m *memStore) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if !r.IsUsed {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.Expired(now) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountUsed(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.IsUsed {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MaxSerial(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, r := range m.rows {
		if r.SerialNumber > max {
			max = r.SerialNumber
		}
	}
	return max, nil
}

func (m *memStore) CountPendingByUser(_ context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, r := range m.rows {
		if !r.IsUsed {
			out[r.ReservedBy]++
		}
	}
	return out, nil
}

func (m *memStore) RecentActivity(_ context.Context, limit int) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ReleaseByNumber(_ context.Context, reportNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.rows {
		if !r.IsUsed && r.ReportNumber == reportNumber {
			delete(m.rows, id)
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ReleaseByUser(_ context.Context, username string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.rows {
		if !r.IsUsed && r.ReservedBy == username {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// memReports is a fixture-backed reports.Store.
type memReports struct {
	mu      sync.Mutex
	serials []int64
	maxSeq  map[string]int
	deleted map[int64]*reports.DeletedReport
}

func newMemReports() *memReports {
	return &memReports{
		maxSeq:  make(map[string]int),
		deleted: make(map[int64]*reports.DeletedReport),
	}
}

func (m *memReports) addReport(serial int64, reportNumber string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serials = append(m.serials, serial)
	if i := strings.LastIndex(reportNumber, "/"); i >= 0 {
		prefix := reportNumber[:i+1]
		if seq, err := strconv.Atoi(reportNumber[i+1:]); err == nil && seq > m.maxSeq[prefix] {
			m.maxSeq[prefix] = seq
		}
	}
}

func (m *memReports) addDeleted(serial int64, reportNumber, deletedBy string, deletedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[serial] = &reports.DeletedReport{
		ReportNumber: reportNumber,
		SerialNumber: serial,
		DeletedAt:    deletedAt,
		DeletedBy:    deletedBy,
	}
}

func (m *memReports) UsedSerials(_ context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, len(m.serials))
	copy(out, m.serials)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *memReports) MaxPeriodSequence(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxSeq[prefix], nil
}

func (m *memReports) DeletedBySerial(_ context.Context, serial int64) (*reports.DeletedReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.deleted[serial]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (m *memReports) DeletedInPeriod(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, d := range m.deleted {
		if strings.HasPrefix(d.ReportNumber, prefix) {
			out = append(out, d.ReportNumber)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memReports) CountDeletedInPeriod(ctx context.Context, prefix string) (int, error) {
	gaps, err := m.DeletedInPeriod(ctx, prefix)
	return len(gaps), err
}

func (m *memReports) MaxNumberInPeriod(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq, ok := m.maxSeq[prefix]; ok && seq > 0 {
		return prefix + strconv.Itoa(seq), nil
	}
	return "", nil
}

// memSettings is an in-memory settings.Store.
type memSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemSettings() *memSettings {
	return &memSettings{values: make(map[string]string)}
}

func (m *memSettings) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memSettings) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// lockTx mimics serializable isolation by running each transaction under one
// mutex. Good enough for exercising the retry and cap logic. The inTx flag
// lets tests observe whether a callback ran inside a transaction.
type lockTx struct {
	mu   sync.Mutex
	inTx atomic.Bool
}

func (t *lockTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inTx.Store(true)
	defer t.inTx.Store(false)
	return fn(ctx)
}

func (t *lockTx) RunSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.RunInTransaction(ctx, fn)
}
