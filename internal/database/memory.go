package database

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryCapacity is how many reports a MemoryStore keeps.
const DefaultMemoryCapacity = 100

// MemoryStore keeps the most recent reports in a fixed-size ring. Used when
// DATABASE_URL is not set; contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	ring  []ReportRecord
	next  int
	count int
	now   func() time.Time
}

// NewMemoryStore creates a ring holding up to capacity reports.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{ring: make([]ReportRecord, capacity), now: time.Now}
}

func (m *MemoryStore) InsertReport(ctx context.Context, rec *ReportRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring[m.next] = *rec
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	return nil
}

func (m *MemoryStore) GetReport(ctx context.Context, id string) (*ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := 0; i < m.count; i++ {
		if rec := m.at(i); rec.ID == id {
			out := *rec
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) LatestReport(ctx context.Context) (*ReportRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.count == 0 {
		return nil, ErrNotFound
	}
	out := *m.at(0)
	return &out, nil
}

func (m *MemoryStore) ListReports(ctx context.Context, f ReportFilter) ([]ReportRecord, int, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []ReportRecord{}
	total := 0
	for i := 0; i < m.count; i++ {
		rec := m.at(i)
		if f.Email != "" && rec.Email != f.Email {
			continue
		}
		if total >= offset && len(out) < limit {
			out = append(out, *rec)
		}
		total++
	}
	return out, total, nil
}

// at returns the i-th newest record. Caller holds the lock.
func (m *MemoryStore) at(i int) *ReportRecord {
	idx := (m.next - 1 - i + 2*len(m.ring)) % len(m.ring)
	return &m.ring[idx]
}
