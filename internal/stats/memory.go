package stats

import (
	"context"
	"sort"
	"sync"
)

var _ Service = (*InMemory)(nil)

// InMemory implements Service with in-process state. Used by handler tests
// and local development without a database.
type InMemory struct {
	mu      sync.RWMutex
	rows    map[int64]map[Mode]Row
	names   map[int64]string
	country map[int64]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		rows:    make(map[int64]map[Mode]Row),
		names:   make(map[int64]string),
		country: make(map[int64]string),
	}
}

// Seed creates the eight initial mode rows for an account.
func (s *InMemory) Seed(accountID int64, name, country string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMode := make(map[Mode]Row, len(AllModes()))
	for _, mode := range AllModes() {
		byMode[mode] = Row{AccountID: accountID, Mode: mode}
	}
	s.rows[accountID] = byMode
	s.names[accountID] = name
	s.country[accountID] = country
}

// Set replaces one row, creating the account bucket if needed.
func (s *InMemory) Set(r Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byMode, ok := s.rows[r.AccountID]
	if !ok {
		byMode = make(map[Mode]Row)
		s.rows[r.AccountID] = byMode
	}
	byMode[r.Mode] = r
}

func (s *InMemory) ForAccount(ctx context.Context, accountID int64, mode Mode) (Row, error) {
	if !mode.Valid() {
		return Row{}, ErrInvalidMode
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	byMode, ok := s.rows[accountID]
	if !ok {
		return Row{}, ErrNotFound
	}
	r, ok := byMode[mode]
	if !ok {
		return Row{}, ErrNotFound
	}
	return r, nil
}

func (s *InMemory) Leaderboard(ctx context.Context, mode Mode, limit, offset int) ([]Entry, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	s.mu.RLock()
	var entries []Entry
	for id, byMode := range s.rows {
		if r, ok := byMode[mode]; ok {
			entries = append(entries, Entry{Row: r, Name: s.names[id], Country: s.country[id]})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].PP != entries[j].PP {
			return entries[i].PP > entries[j].PP
		}
		return entries[i].RankedScore > entries[j].RankedScore
	})
	if offset >= len(entries) {
		return nil, nil
	}
	entries = entries[offset:]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
