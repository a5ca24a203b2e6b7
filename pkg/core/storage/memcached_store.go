package storage

import (
	"sort"
	"strings"
	"sync"
)

// MemCachedStore is a wrapper around a persistent store that caches all
// changes being made for them to be later flushed in one batch. Until
// Persist is called the underlying store is not touched at all, which
// gives commit-or-discard transaction semantics to its users.
type MemCachedStore struct {
	mut sync.RWMutex
	mem map[string][]byte
	// A list of keys marked as deleted.
	del map[string]bool

	// Persistent Store.
	ps Store
}

// NewMemCachedStore creates a new MemCachedStore object.
func NewMemCachedStore(lower Store) *MemCachedStore {
	return &MemCachedStore{
		mem: make(map[string][]byte),
		del: make(map[string]bool),
		ps:  lower,
	}
}

// Get implements the Store interface.
func (s *MemCachedStore) Get(key []byte) ([]byte, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()
	k := string(key)
	if val, ok := s.mem[k]; ok {
		return val, nil
	}
	if s.del[k] {
		return nil, ErrKeyNotFound
	}
	return s.ps.Get(key)
}

// Put implements the Store interface. Never returns an error.
func (s *MemCachedStore) Put(key, value []byte) error {
	vcopy := make([]byte, len(value))
	copy(vcopy, value)
	s.mut.Lock()
	k := string(key)
	delete(s.del, k)
	s.mem[k] = vcopy
	s.mut.Unlock()
	return nil
}

// Delete implements the Store interface. Never returns an error.
func (s *MemCachedStore) Delete(key []byte) error {
	s.mut.Lock()
	k := string(key)
	delete(s.mem, k)
	s.del[k] = true
	s.mut.Unlock()
	return nil
}

// Seek implements the Store interface. It merges buffered changes with the
// lower store contents, hiding deleted and shadowed entries.
func (s *MemCachedStore) Seek(key []byte, f func(k, v []byte)) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	sk := string(key)
	merged := make(map[string][]byte)
	s.ps.Seek(key, func(k, v []byte) {
		elem := string(k)
		if _, put := s.mem[elem]; put {
			return
		}
		if s.del[elem] {
			return
		}
		vcopy := make([]byte, len(v))
		copy(vcopy, v)
		merged[elem] = vcopy
	})
	for k, v := range s.mem {
		if strings.HasPrefix(k, sk) {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f([]byte(k), merged[k])
	}
}

// Batch implements the Batch interface.
func (s *MemCachedStore) Batch() Batch {
	return newMemoryBatch()
}

// PutBatch implements the Store interface. Never returns an error.
func (s *MemCachedStore) PutBatch(batch Batch) error {
	b := batch.(*MemoryBatch)
	s.mut.Lock()
	defer s.mut.Unlock()
	for k := range b.del {
		delete(s.mem, k)
		s.del[k] = true
	}
	for k, v := range b.m {
		delete(s.del, k)
		s.mem[k] = v
	}
	return nil
}

// Persist flushes all the MemCachedStore contents into the (supposedly)
// persistent store ps in one batch. It returns the number of keys flushed.
func (s *MemCachedStore) Persist() (int, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	keys := len(s.mem) + len(s.del)
	if keys == 0 {
		return 0, nil
	}

	batch := s.ps.Batch()
	for k, v := range s.mem {
		batch.Put([]byte(k), v)
	}
	for k := range s.del {
		batch.Delete([]byte(k))
	}

	err := s.ps.PutBatch(batch)
	if err != nil {
		return 0, err
	}
	s.mem = make(map[string][]byte)
	s.del = make(map[string]bool)
	return keys, nil
}

// Close implements the Store interface, it doesn't touch the lower store.
func (s *MemCachedStore) Close() error {
	s.mut.Lock()
	s.mem = nil
	s.del = nil
	s.mut.Unlock()
	return nil
}
