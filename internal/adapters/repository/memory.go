package repository

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/okian/clutch/internal/domain/model"
)

const driverMemory = "memory"

type memRecord struct {
	session   model.Session
	summaries map[model.StreamKind]model.StreamSummary
	chunks    map[model.StreamKind]map[int][]byte
	report    *model.FinalReport
}

// MemoryStore is an in-process Store guarded by a single mutex.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*memRecord
	bySubject map[string][]string
	now       func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:   make(map[string]*memRecord),
		bySubject: make(map[string][]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Create(_ context.Context, s model.Session) error {
	defer observe(driverMemory, "create", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[s.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, s.ID)
	}
	rec := s.Clone()
	rec.BiomechanicalSummary, rec.BehavioralSummary, rec.Report = nil, nil, nil
	if rec.Version == 0 {
		rec.Version = 1
	}
	m.records[s.ID] = &memRecord{
		session:   rec,
		summaries: make(map[model.StreamKind]model.StreamSummary, 2),
		chunks:    make(map[model.StreamKind]map[int][]byte, 2),
	}
	m.bySubject[s.SubjectID] = append(m.bySubject[s.SubjectID], s.ID)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.Session, error) {
	defer observe(driverMemory, "get", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.full(), nil
}

func (r *memRecord) full() model.Session {
	s := r.session.Clone()
	for _, sum := range r.summaries {
		sum.Attach(&s)
	}
	if r.report != nil {
		c := r.report.Clone()
		s.Report = &c
	}
	return s
}

func (m *MemoryStore) BySubject(_ context.Context, subjectID string, since time.Time) ([]model.Session, error) {
	defer observe(driverMemory, "by_subject", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []model.Session{}
	for _, id := range m.bySubject[subjectID] {
		rec := m.records[id]
		if rec.session.CreatedAt.Before(since) {
			continue
		}
		out = append(out, rec.full())
	}
	slices.SortStableFunc(out, func(a, b model.Session) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*model.Session) error) (model.Session, error) {
	defer observe(driverMemory, "update", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := rec.session.Clone()
	if err := fn(&next); err != nil {
		return model.Session{}, err
	}
	next.ID = rec.session.ID
	next.SubjectID = rec.session.SubjectID
	next.CreatedAt = rec.session.CreatedAt
	next.Version = rec.session.Version + 1
	next.UpdatedAt = m.now()
	next.BiomechanicalSummary, next.BehavioralSummary, next.Report = nil, nil, nil
	rec.session = next
	return next.Clone(), nil
}

func (m *MemoryStore) SaveSummary(_ context.Context, id string, sum model.StreamSummary) error {
	defer observe(driverMemory, "save_summary", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, exists := rec.summaries[sum.Kind]; exists {
		return fmt.Errorf("%w: %s/%s", ErrSummaryExists, id, sum.Kind)
	}
	var c model.StreamSummary
	c.Kind = sum.Kind
	if sum.Biomechanical != nil {
		b := sum.Biomechanical.Clone()
		c.Biomechanical = &b
	}
	if sum.Behavioral != nil {
		b := sum.Behavioral.Clone()
		c.Behavioral = &b
	}
	rec.summaries[sum.Kind] = c
	return nil
}

func (m *MemoryStore) AppendChunk(_ context.Context, id string, kind model.StreamKind, index int, blob []byte) error {
	defer observe(driverMemory, "append_chunk", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	chunks := rec.chunks[kind]
	if chunks == nil {
		chunks = make(map[int][]byte)
		rec.chunks[kind] = chunks
	}
	if _, exists := chunks[index]; !exists {
		chunks[index] = slices.Clone(blob)
	}
	return nil
}

func (m *MemoryStore) Chunks(_ context.Context, id string, kind model.StreamKind) ([][]byte, error) {
	defer observe(driverMemory, "chunks", time.Now())
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	chunks := rec.chunks[kind]
	out := make([][]byte, 0, len(chunks))
	for _, idx := range slices.Sorted(maps.Keys(chunks)) {
		out = append(out, slices.Clone(chunks[idx]))
	}
	return out, nil
}

func (m *MemoryStore) SaveReport(_ context.Context, id string, r model.FinalReport) error {
	defer observe(driverMemory, "save_report", time.Now())
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.report != nil {
		return fmt.Errorf("%w: %s", ErrReportExists, id)
	}
	c := r.Clone()
	rec.report = &c
	return nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error { return nil }
