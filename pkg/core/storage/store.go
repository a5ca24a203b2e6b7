package storage

import (
	"errors"
	"fmt"
)

// KeyPrefix constants.
const (
	// STBalance is used for per-funder cumulative balance entries keyed
	// by the funder's Uint160.
	STBalance KeyPrefix = 0x70
	// STFunder is used for funder list entries keyed by a big-endian
	// 32-bit insertion index.
	STFunder KeyPrefix = 0x71
	// SYSOwner stores the ledger owner set at deployment.
	SYSOwner KeyPrefix = 0xc0
	// SYSFunderCount stores the current length of the funder list.
	SYSFunderCount KeyPrefix = 0xc1
	// SYSHeldBalance stores the total balance held by the ledger.
	SYSHeldBalance KeyPrefix = 0xc2
	// SYSVersion stores the state schema version written on first run.
	SYSVersion KeyPrefix = 0xf0
)

// ErrKeyNotFound is an error returned by Store implementations
// when a certain key is not found.
var ErrKeyNotFound = errors.New("key not found")

type (
	// Store is anything that can persist and retrieve the ledger data.
	// All batch writes are atomic: either the whole batch is applied or
	// none of it is.
	Store interface {
		Batch() Batch
		Delete(k []byte) error
		Get([]byte) ([]byte, error)
		Put(k, v []byte) error
		PutBatch(Batch) error
		// Seek calls f for every key-value pair with the given key
		// prefix, in ascending key order. Key and value slices should
		// not be modified.
		Seek(k []byte, f func(k, v []byte))
		Close() error
	}

	// Batch represents an abstraction on top of batch operations.
	// Each Store implementation is responsible for casting a Batch
	// to its appropriate type.
	Batch interface {
		Delete(k []byte)
		Put(k, v []byte)
		Len() int
	}

	// KeyPrefix is a constant byte added as a prefix for each key
	// stored.
	KeyPrefix uint8
)

// Bytes returns the bytes representation of KeyPrefix.
func (k KeyPrefix) Bytes() []byte {
	return []byte{byte(k)}
}

// AppendPrefix appends the given KeyPrefix to the given key.
func AppendPrefix(k KeyPrefix, b []byte) []byte {
	dest := make([]byte, 0, 1+len(b))
	dest = append(dest, byte(k))
	return append(dest, b...)
}

// NewStore creates storage with preselected in configuration database type.
func NewStore(cfg DBConfiguration) (Store, error) {
	var store Store
	var err error
	switch cfg.Type {
	case "leveldb":
		store, err = NewLevelDBStore(cfg.LevelDBOptions)
	case "inmemory":
		store = NewMemoryStore()
	case "boltdb":
		store, err = NewBoltDBStore(cfg.BoltDBOptions)
	default:
		return nil, fmt.Errorf("unknown storage: %s", cfg.Type)
	}
	return store, err
}
