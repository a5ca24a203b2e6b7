package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory implementation of a Store, mainly
// used for testing. Do not use MemoryStore in production.
type MemoryStore struct {
	mut sync.RWMutex
	mem map[string][]byte
}

// MemoryBatch is an in-memory batch compatible with MemoryStore.
type MemoryBatch struct {
	m map[string][]byte
	// A list of keys to be deleted.
	del map[string]bool
}

// Put implements the Batch interface.
func (b *MemoryBatch) Put(k, v []byte) {
	vcopy := make([]byte, len(v))
	copy(vcopy, v)
	delete(b.del, string(k))
	b.m[string(k)] = vcopy
}

// Delete implements the Batch interface.
func (b *MemoryBatch) Delete(k []byte) {
	delete(b.m, string(k))
	b.del[string(k)] = true
}

// Len implements the Batch interface.
func (b *MemoryBatch) Len() int {
	return len(b.m) + len(b.del)
}

// NewMemoryStore creates a new MemoryStore object.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mem: make(map[string][]byte),
	}
}

// Get implements the Store interface.
func (s *MemoryStore) Get(key []byte) ([]byte, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	if val, ok := s.mem[string(key)]; ok {
		return val, nil
	}
	return nil, ErrKeyNotFound
}

// Put implements the Store interface. Never returns an error.
func (s *MemoryStore) Put(key, value []byte) error {
	newKey := string(key)
	vcopy := make([]byte, len(value))
	copy(vcopy, value)
	s.mut.Lock()
	s.mem[newKey] = vcopy
	s.mut.Unlock()
	return nil
}

// Delete implements the Store interface. Never returns an error.
func (s *MemoryStore) Delete(key []byte) error {
	s.mut.Lock()
	delete(s.mem, string(key))
	s.mut.Unlock()
	return nil
}

// PutBatch implements the Store interface. Never returns an error.
func (s *MemoryStore) PutBatch(batch Batch) error {
	b := batch.(*MemoryBatch)
	s.mut.Lock()
	defer s.mut.Unlock()
	for k := range b.del {
		delete(s.mem, k)
	}
	for k, v := range b.m {
		s.mem[k] = v
	}
	return nil
}

// Seek implements the Store interface.
func (s *MemoryStore) Seek(key []byte, f func(k, v []byte)) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	s.seek(key, f)
}

// seek is an internal unlocked implementation of Seek. Key-value pairs are
// reported in ascending key order to match on-disk backends.
func (s *MemoryStore) seek(key []byte, f func(k, v []byte)) {
	sk := string(key)
	keys := make([]string, 0)
	for k := range s.mem {
		if strings.HasPrefix(k, sk) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		f([]byte(k), s.mem[k])
	}
}

// Batch implements the Batch interface and returns a compatible Batch.
func (s *MemoryStore) Batch() Batch {
	return newMemoryBatch()
}

// newMemoryBatch returns a new memory batch.
func newMemoryBatch() *MemoryBatch {
	return &MemoryBatch{
		m:   make(map[string][]byte),
		del: make(map[string]bool),
	}
}

// Close implements the Store interface and clears up memory. Never returns
// an error.
func (s *MemoryStore) Close() error {
	s.mut.Lock()
	s.mem = nil
	s.mut.Unlock()
	return nil
}
