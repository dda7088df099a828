package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const defaultMemoryCapacity = 200

// memoryTimetableStore keeps recent runs in process when no database is configured.
// It reports misses as sql.ErrNoRows so callers handle both stores the same way.
type memoryTimetableStore struct {
	capacity int
	mu       sync.RWMutex
	items    map[string]storedTimetable
	seq      uint64
}

// storedTimetable orders runs by insertion when GeneratedAt ties.
type storedTimetable struct {
	timetable models.Timetable
	seq       uint64
}

func newMemoryTimetableStore(capacity int) *memoryTimetableStore {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &memoryTimetableStore{
		capacity: capacity,
		items:    make(map[string]storedTimetable),
	}
}

func (s *memoryTimetableStore) Create(_ context.Context, tt *models.Timetable) error {
	if tt.ID == "" {
		tt.ID = uuid.NewString()
	}
	if tt.GeneratedAt.IsZero() {
		tt.GeneratedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.items[tt.ID] = storedTimetable{timetable: *tt, seq: s.seq}
	for len(s.items) > s.capacity {
		oldest := ""
		for id, item := range s.items {
			if oldest == "" || older(item, s.items[oldest]) {
				oldest = id
			}
		}
		delete(s.items, oldest)
	}
	return nil
}

func (s *memoryTimetableStore) GetByID(_ context.Context, id string) (*models.Timetable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	tt := item.timetable
	return &tt, nil
}

func (s *memoryTimetableStore) Latest(_ context.Context) (*models.Timetable, error) {
	items := s.sorted()
	if len(items) == 0 {
		return nil, sql.ErrNoRows
	}
	return &items[0], nil
}

func (s *memoryTimetableStore) List(_ context.Context, filter models.TimetableFilter) ([]models.Timetable, int, error) {
	items := s.sorted()
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []models.Timetable{}, len(items), nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], len(items), nil
}

func (s *memoryTimetableStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

// sorted returns a newest-first copy.
func (s *memoryTimetableStore) sorted() []models.Timetable {
	s.mu.RLock()
	stored := make([]storedTimetable, 0, len(s.items))
	for _, item := range s.items {
		stored = append(stored, item)
	}
	s.mu.RUnlock()
	sort.Slice(stored, func(i, j int) bool {
		return older(stored[j], stored[i])
	})
	items := make([]models.Timetable, len(stored))
	for i, item := range stored {
		items[i] = item.timetable
	}
	return items
}

func older(a, b storedTimetable) bool {
	if a.timetable.GeneratedAt.Equal(b.timetable.GeneratedAt) {
		return a.seq < b.seq
	}
	return a.timetable.GeneratedAt.Before(b.timetable.GeneratedAt)
}
