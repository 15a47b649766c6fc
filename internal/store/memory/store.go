// Package memory provides a keyed store for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Store implements scheduler.KeyedStore with mutex-guarded maps. Sorted-set
// semantics match the production store: members are unique, adding an
// existing member overwrites its score, and range bounds are inclusive.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	zsets  map[string]map[string]float64
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		hashes: make(map[string]map[string]string),
		zsets:  make(map[string]map[string]float64),
	}
}

// HashGet returns one field of a hash; ok is false when key or field is absent.
func (s *Store) HashGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[key]
	if !ok {
		return "", false, nil
	}
	v, ok := h[field]
	return v, ok, nil
}

// HashGetAll returns a copy of the hash, or nil when the key is absent.
func (s *Store) HashGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hashes[key]
	if !ok {
		return nil, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// HashSet merges fields into the hash, creating it if needed.
func (s *Store) HashSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

// HashSetField sets a single field.
func (s *Store) HashSetField(ctx context.Context, key, field, value string) error {
	return s.HashSet(ctx, key, map[string]string{field: value})
}

// Delete removes a hash or sorted set entirely.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, key)
	delete(s.zsets, key)
	return nil
}

// SortedSetAdd upserts members with their scores.
func (s *Store) SortedSetAdd(_ context.Context, key string, members ...scheduler.ScoredMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64, len(members))
		s.zsets[key] = z
	}
	for _, m := range members {
		z[m.Member] = m.Score
	}
	return nil
}

// SortedSetRemove drops members; the set is removed when it empties.
func (s *Store) SortedSetRemove(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zsets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(z, m)
	}
	if len(z) == 0 {
		delete(s.zsets, key)
	}
	return nil
}

// SortedSetRangeByScore returns members within [min, max] ordered by score
// then member, honoring the limit.
func (s *Store) SortedSetRangeByScore(_ context.Context, key string, opts scheduler.RangeOptions) ([]scheduler.ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []scheduler.ScoredMember
	for member, score := range s.zsets[key] {
		if inRange(score, opts) {
			out = append(out, scheduler.ScoredMember{Score: score, Member: member})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].Member < out[j].Member
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// SortedSetCount counts members within [min, max].
func (s *Store) SortedSetCount(_ context.Context, key string, opts scheduler.RangeOptions) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, score := range s.zsets[key] {
		if inRange(score, opts) {
			n++
		}
	}
	return n, nil
}

// SortedSetScore returns the member's score; ok is false when absent.
func (s *Store) SortedSetScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zsets[key]
	if !ok {
		return 0, false, nil
	}
	score, ok := z[member]
	return score, ok, nil
}

func inRange(score float64, opts scheduler.RangeOptions) bool {
	if opts.Min != nil && score < *opts.Min {
		return false
	}
	if opts.Max != nil && score > *opts.Max {
		return false
	}
	return true
}
