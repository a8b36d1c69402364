package assetcache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	generationPrefix = "g:"
	entryPrefix      = "e:"
)

// MemoryStore is a CacheStore held in process memory. Items never expire;
// generations are only removed by DeleteGeneration.
type MemoryStore struct {
	mu    sync.Mutex
	store *gocache.Cache
}

var _ CacheStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: gocache.New(gocache.NoExpiration, 0)}
}

func entryKey(generation, key string) string {
	return entryPrefix + generation + "\x00" + key
}

// Put implements CacheStore.
func (s *MemoryStore) Put(_ context.Context, generation string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.store.Get(generationPrefix + generation); !ok {
		s.store.Set(generationPrefix+generation, Generation{ID: generation, CreatedAt: time.Now().UTC()}, gocache.NoExpiration)
	}
	e.Header = e.Header.Clone()
	s.store.Set(entryKey(generation, e.URL), e, gocache.NoExpiration)
	return nil
}

// Get implements CacheStore.
func (s *MemoryStore) Get(_ context.Context, generation, key string) (Entry, bool, error) {
	v, ok := s.store.Get(entryKey(generation, key))
	if !ok {
		return Entry{}, false, nil
	}
	return v.(Entry), true, nil
}

// Generations implements CacheStore.
func (s *MemoryStore) Generations(_ context.Context) ([]Generation, error) {
	var gens []Generation
	for k, item := range s.store.Items() {
		if strings.HasPrefix(k, generationPrefix) {
			gens = append(gens, item.Object.(Generation))
		}
	}
	sort.Slice(gens, func(i, j int) bool {
		if gens[i].CreatedAt.Equal(gens[j].CreatedAt) {
			return gens[i].ID < gens[j].ID
		}
		return gens[i].CreatedAt.Before(gens[j].CreatedAt)
	})
	return gens, nil
}

// Promote implements CacheStore.
func (s *MemoryStore) Promote(_ context.Context, staging, generation string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if _, ok := s.store.Get(entryKey(staging, k)); !ok {
			return missingKey(generation, k)
		}
	}
	if v, ok := s.store.Get(generationPrefix + generation); ok && v.(Generation).Complete {
		s.deleteLocked(staging)
		return nil
	}
	s.deleteLocked(generation)

	prefix := entryPrefix + staging + "\x00"
	for k, item := range s.store.Items() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		e := item.Object.(Entry)
		s.store.Set(entryKey(generation, e.URL), e, gocache.NoExpiration)
		s.store.Delete(k)
	}
	s.store.Delete(generationPrefix + staging)
	s.store.Set(generationPrefix+generation, Generation{ID: generation, Complete: true, CreatedAt: time.Now().UTC()}, gocache.NoExpiration)
	return nil
}

// DeleteGeneration implements CacheStore.
func (s *MemoryStore) DeleteGeneration(_ context.Context, generation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(generation)
	return nil
}

func (s *MemoryStore) deleteLocked(generation string) {
	prefix := entryPrefix + generation + "\x00"
	for k := range s.store.Items() {
		if strings.HasPrefix(k, prefix) {
			s.store.Delete(k)
		}
	}
	s.store.Delete(generationPrefix + generation)
}

// ItemCount returns the number of stored entries and generations.
func (s *MemoryStore) ItemCount() int {
	return s.store.ItemCount()
}
