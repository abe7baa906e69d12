package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"qrattend/internal/attendance"
)

// MemoryDays is a process-local day store for development and tests.
type MemoryDays struct {
	mu   sync.Mutex
	days map[string]attendance.DayRecord
}

// NewMemoryDays creates an empty store.
func NewMemoryDays() *MemoryDays {
	return &MemoryDays{days: make(map[string]attendance.DayRecord)}
}

// Get loads the record for date.
func (s *MemoryDays) Get(_ context.Context, date string) (*attendance.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.days[date]
	if !ok {
		return nil, attendance.ErrDayNotFound
	}
	out := rec.Clone()
	return &out, nil
}

// Put writes rec if the stored version still equals rec.Version.
func (s *MemoryDays) Put(_ context.Context, rec attendance.DayRecord) error {
	if rec.Date == "" {
		return errors.New("day record has no date")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.days[rec.Date]; cur.Version != rec.Version {
		return attendance.ErrVersionConflict
	}
	next := rec.Clone()
	next.Version = rec.Version + 1
	s.days[rec.Date] = next
	return nil
}

// MemoryRoster is a process-local roster.
type MemoryRoster struct {
	mu       sync.RWMutex
	students map[string]attendance.Identity
}

// NewMemoryRoster creates a roster holding ids.
func NewMemoryRoster(ids ...attendance.Identity) *MemoryRoster {
	r := &MemoryRoster{students: make(map[string]attendance.Identity)}
	for _, id := range ids {
		r.students[id.Roll] = id
	}
	return r
}

// FindByEmail returns every student registered under email.
func (r *MemoryRoster) FindByEmail(_ context.Context, email string) ([]attendance.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []attendance.Identity
	for _, id := range r.students {
		if id.Email == email {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Roll < out[j].Roll })
	return out, nil
}

// Upsert creates or updates a student by roll.
func (r *MemoryRoster) Upsert(_ context.Context, id attendance.Identity) error {
	if id.Roll == "" || id.Email == "" {
		return errors.New("roll and email required")
	}
	r.mu.Lock()
	r.students[id.Roll] = id
	r.mu.Unlock()
	return nil
}

// LoadRosterFile reads a JSON array of {name, roll, email}.
func LoadRosterFile(path string) ([]attendance.Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []attendance.Identity
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}
	return ids, nil
}
