package store

import (
	"sync"
	"time"

	"helmbridge"
)

// subBuffer is the per-subscriber channel capacity. A subscriber that falls
// behind misses intermediate values; the writer never blocks.
const subBuffer = 16

// Store holds the latest known DataPoint per (path, source). One writer (the
// inbound delta handler), many readers. Consumers interested in changes take a
// per-path subscription rather than filtering a global feed themselves.
type Store struct {
	mu      sync.RWMutex
	points  map[pointKey]helmbridge.DataPoint
	latest  map[string]helmbridge.DataPoint // newest value per path across sources
	subs    map[string]map[int]*subscription
	nextSub int
	closed  bool
}

type pointKey struct {
	path   string
	source string
}

type subscription struct {
	ch   chan helmbridge.DataPoint
	once sync.Once
}

func (sub *subscription) close() {
	sub.once.Do(func() { close(sub.ch) })
}

func New() *Store {
	return &Store{
		points: make(map[pointKey]helmbridge.DataPoint),
		latest: make(map[string]helmbridge.DataPoint),
		subs:   make(map[string]map[int]*subscription),
	}
}

// Set records a new value for (path, source) and notifies subscribers of
// path. A zero ts is stamped with the current time.
func (s *Store) Set(path, source string, value any, ts time.Time) {
	if path == "" {
		return
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	} else {
		ts = ts.UTC()
	}
	p := helmbridge.DataPoint{Path: path, Source: source, Value: value, Timestamp: ts}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.points[pointKey{path: path, source: source}] = p
	s.latest[path] = p
	var targets []*subscription
	for _, sub := range s.subs[path] {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- p:
		default: // subscriber is behind; drop rather than block the writer
		}
	}
}

// Get returns the newest value on path across all sources.
func (s *Store) Get(path string) (helmbridge.DataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[path]
	return p, ok
}

// GetFrom returns the value on path from a specific source.
func (s *Store) GetFrom(path, source string) (helmbridge.DataPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[pointKey{path: path, source: source}]
	return p, ok
}

// Fresh reports whether path has a value younger than ttl. ttl <= 0 means any
// recorded value counts as fresh.
func (s *Store) Fresh(path string, ttl time.Duration) bool {
	p, ok := s.Get(path)
	if !ok {
		return false
	}
	if ttl <= 0 {
		return true
	}
	return time.Since(p.Timestamp) <= ttl
}

// Subscribe returns a channel receiving future updates for path, and a cancel
// function that releases the subscription. Cancel is idempotent and safe to
// call after Close.
func (s *Store) Subscribe(path string) (<-chan helmbridge.DataPoint, func()) {
	sub := &subscription{ch: make(chan helmbridge.DataPoint, subBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	if s.subs[path] == nil {
		s.subs[path] = make(map[int]*subscription)
	}
	s.subs[path][id] = sub
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if m, ok := s.subs[path]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(s.subs, path)
			}
		}
		s.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Snapshot returns a copy of every (path, source) point, for the REST listing
// and for persistence.
func (s *Store) Snapshot() []helmbridge.DataPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]helmbridge.DataPoint, 0, len(s.points))
	for _, p := range s.points {
		out = append(out, p)
	}
	return out
}

// Paths returns every path that currently has a value.
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.latest))
	for p := range s.latest {
		out = append(out, p)
	}
	return out
}

// Close drops all subscriptions and closes their channels. Further Set calls
// are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var all []*subscription
	for _, m := range s.subs {
		for _, sub := range m {
			all = append(all, sub)
		}
	}
	s.subs = make(map[string]map[int]*subscription)
	s.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}
