// Package memory implements db.Store with exact (brute-force) cosine search.
// It backs local runs and tests; no data survives the process.
package memory

import (
	"context"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kailas-cloud/raredex/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Store is an in-memory db.Store. Writers take the exclusive lock, searches
// share the read lock, so readers always observe a consistent snapshot.
type Store struct {
	mu      sync.RWMutex
	hashes  map[string]map[string]string
	kv      map[string][]byte
	indexes map[string]db.IndexDefinition
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		hashes:  make(map[string]map[string]string),
		kv:      make(map[string][]byte),
		indexes: make(map[string]db.IndexDefinition),
	}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

// WaitForReady returns immediately.
func (s *Store) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

// HSet sets hash fields.
func (s *Store) HSet(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setHash(key, fields)
	return nil
}

// HSetMulti stores multiple hashes under one lock acquisition.
func (s *Store) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		s.setHash(item.Key, item.Fields)
	}
	return nil
}

func (s *Store) setHash(key string, fields map[string]string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
}

// HGetAll returns a copy of all fields of a hash.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.hashes[key]
	if !ok {
		return map[string]string{}, nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, nil
}

// Del deletes a key from both the hash and kv spaces.
func (s *Store) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hashes, key)
	delete(s.kv, key)
	return nil
}

// Exists checks if a key exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.hashes[key]; ok {
		return true, nil
	}
	_, ok := s.kv[key]
	return ok, nil
}

// Scan returns keys matching a pattern. Only trailing-* glob patterns are
// supported, which is all the repositories use.
func (s *Store) Scan(_ context.Context, pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for k := range s.hashes {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	for k := range s.kv {
		if matchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}

// Get retrieves a value by key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a value at the given key.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), value...)
	return nil
}

// JSONSet stores a JSON document. Paths beyond root are not needed here.
func (s *Store) JSONSet(_ context.Context, key, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = append([]byte(nil), data...)
	return nil
}

// JSONGet retrieves a JSON document by key.
func (s *Store) JSONGet(_ context.Context, key string, _ ...string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// CreateIndex registers an index definition.
func (s *Store) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[def.Name]; ok {
		return db.ErrIndexExists
	}
	s.indexes[def.Name] = *def
	return nil
}

// DropIndex removes an index definition.
func (s *Store) DropIndex(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.indexes[name]; !ok {
		return db.ErrIndexNotFound
	}
	delete(s.indexes, name)
	return nil
}

// IndexExists reports whether the index is registered.
func (s *Store) IndexExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.indexes[name]
	return ok, nil
}

// SearchKNN scans every hash under the index prefixes, applies tag filters
// before ranking, and returns the top K by cosine similarity. Ties break by
// key ascending for determinism.
func (s *Store) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[q.IndexName]
	if !ok {
		return nil, db.ErrIndexNotFound
	}

	entries := make([]db.SearchEntry, 0)
	for key, fields := range s.hashes {
		if !matchesPrefixes(key, idx.Prefixes) {
			continue
		}
		if !matchesFilters(fields, q.Filters) {
			continue
		}

		vec := bytesToVector(fields["__vector"])
		if len(vec) == 0 {
			continue
		}

		// Same score range as the redis driver: cosine similarity clamped
		// to [0,1].
		entries = append(entries, db.SearchEntry{
			Key:    key,
			Score:  max(0, cosineSimilarity(q.Vector, vec)),
			Fields: copyFields(fields, q.ReturnFields),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Key < entries[j].Key
	})

	total := len(entries)
	if len(entries) > q.K {
		entries = entries[:q.K]
	}

	return &db.SearchResult{Total: total, Entries: entries}, nil
}

// SearchCount returns the number of documents under the index prefixes.
// Only the match-all query is supported.
func (s *Store) SearchCount(_ context.Context, index, _ string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.indexes[index]
	if !ok {
		return 0, db.ErrIndexNotFound
	}

	count := 0
	for key := range s.hashes {
		if matchesPrefixes(key, idx.Prefixes) {
			count++
		}
	}
	return count, nil
}

func matchesPrefixes(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func matchesFilters(fields, filters map[string]string) bool {
	for k, want := range filters {
		if fields[k] != want {
			return false
		}
	}
	return true
}

func copyFields(fields map[string]string, returnFields []string) map[string]string {
	out := make(map[string]string, len(returnFields))
	if len(returnFields) == 0 {
		for k, v := range fields {
			out[k] = v
		}
		return out
	}
	for _, k := range returnFields {
		if v, ok := fields[k]; ok {
			out[k] = v
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 || len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
