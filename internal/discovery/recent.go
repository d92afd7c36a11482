package discovery

import (
	"sync"
	"time"
)

// Default RecentSet sizing
const (
	DefaultRecentWindow   = 24 * time.Hour
	DefaultRecentCapacity = 1024
)

type recentEntry struct {
	id string // empty marks a slot superseded by a later Mark
	at time.Time
}

// RecentSet remembers initiative ids acted on recently. Entries live in a
// fixed ring in insertion order with a map index; they are evicted once older
// than the window, or oldest-first when the ring is full.
type RecentSet struct {
	window time.Duration

	mu    sync.Mutex
	ring  []recentEntry
	head  int // oldest slot
	size  int
	index map[string]int
}

// NewRecentSet creates a set. Non-positive arguments use the defaults.
func NewRecentSet(window time.Duration, capacity int) *RecentSet {
	if window <= 0 {
		window = DefaultRecentWindow
	}
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentSet{
		window: window,
		ring:   make([]recentEntry, capacity),
		index:  make(map[string]int, capacity),
	}
}

// Seen reports whether id was marked within the window ending at now
func (s *RecentSet) Seen(id string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(now)
	_, ok := s.index[id]
	return ok
}

// Mark records id as acted on at now
func (s *RecentSet) Mark(id string, now time.Time) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(now)

	if slot, ok := s.index[id]; ok {
		s.ring[slot].id = ""
		delete(s.index, id)
	}

	if s.size == len(s.ring) {
		if len(s.index) < s.size {
			s.compactLocked()
		} else {
			s.popLocked()
		}
	}

	slot := (s.head + s.size) % len(s.ring)
	s.ring[slot] = recentEntry{id: id, at: now}
	s.index[id] = slot
	s.size++
}

// Len returns the number of live ids
func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// evictLocked drops superseded and expired entries from the head
func (s *RecentSet) evictLocked(now time.Time) {
	for s.size > 0 {
		e := s.ring[s.head]
		if e.id != "" && now.Sub(e.at) < s.window {
			return
		}
		s.popLocked()
	}
}

func (s *RecentSet) popLocked() {
	e := s.ring[s.head]
	if e.id != "" {
		delete(s.index, e.id)
	}
	s.ring[s.head] = recentEntry{}
	s.head = (s.head + 1) % len(s.ring)
	s.size--
}

// compactLocked drops superseded slots, keeping live entries in insertion order
func (s *RecentSet) compactLocked() {
	live := make([]recentEntry, 0, len(s.index))
	for i := 0; i < s.size; i++ {
		if e := s.ring[(s.head+i)%len(s.ring)]; e.id != "" {
			live = append(live, e)
		}
	}

	clear(s.ring)
	for i, e := range live {
		s.ring[i] = e
		s.index[e.id] = i
	}
	s.head = 0
	s.size = len(live)
}
