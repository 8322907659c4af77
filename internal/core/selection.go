package core

import (
	"sort"
	"sync"
)

// Selection tracks donations marked for bulk operations. It is never
// persisted and is safe for concurrent use.
type Selection struct {
	mu  sync.Mutex
	ids map[ID]struct{}
}

func NewSelection() *Selection {
	return &Selection{ids: make(map[ID]struct{})}
}

// Toggle flips id and reports whether it is selected afterwards.
func (s *Selection) Toggle(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// SelectAll adds every id in visible.
func (s *Selection) SelectAll(visible []ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range visible {
		s.ids[id] = struct{}{}
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[ID]struct{})
}

func (s *Selection) Has(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Selection) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// IDs returns the selected ids in sorted order.
func (s *Selection) IDs() []ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Retain drops every selected id that is not in existing and returns how
// many were dropped.
func (s *Selection) Retain(existing []ID) int {
	keep := make(map[ID]struct{}, len(existing))
	for _, id := range existing {
		keep[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for id := range s.ids {
		if _, ok := keep[id]; !ok {
			delete(s.ids, id)
			dropped++
		}
	}
	return dropped
}
