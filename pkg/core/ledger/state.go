package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/util"
)

// balanceKey is the key of a per-funder cumulative balance entry.
func balanceKey(acc util.Uint160) []byte {
	return storage.AppendPrefix(storage.STBalance, acc.BytesBE())
}

// funderKey is the key of the i-th funder list entry.
func funderKey(i uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], i)
	return storage.AppendPrefix(storage.STFunder, b[:])
}

func heldBalanceKey() []byte {
	return storage.SYSHeldBalance.Bytes()
}

// getAmount reads a 256-bit amount from the given key, a missing key reads
// as zero.
func getAmount(s storage.Store, key []byte) (*uint256.Int, error) {
	b, err := s.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) > 32 {
		return nil, fmt.Errorf("corrupt amount at %x: %d bytes", key, len(b))
	}
	return new(uint256.Int).SetBytes(b), nil
}

func putAmount(s storage.Store, key []byte, amount *uint256.Int) error {
	b := amount.Bytes32()
	return s.Put(key, b[:])
}

func getFunderCount(s storage.Store) (uint32, error) {
	b, err := s.Get(storage.SYSFunderCount.Bytes())
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 4 {
		return 0, fmt.Errorf("corrupt funder count: %d bytes", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func putFunderCount(s storage.Store, count uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], count)
	return s.Put(storage.SYSFunderCount.Bytes(), b[:])
}

func getOwner(s storage.Store) (util.Uint160, error) {
	b, err := s.Get(storage.SYSOwner.Bytes())
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(b)
}

func putOwner(s storage.Store, owner util.Uint160) error {
	return s.Put(storage.SYSOwner.Bytes(), owner.BytesBE())
}

func getVersion(s storage.Store) (string, error) {
	v, err := s.Get(storage.SYSVersion.Bytes())
	return string(v), err
}

func putVersion(s storage.Store, v string) error {
	return s.Put(storage.SYSVersion.Bytes(), []byte(v))
}

// fundersSnapshot reads the whole funder list with a single range scan,
// preserving insertion order.
func fundersSnapshot(s storage.Store) ([]util.Uint160, error) {
	var (
		funders []util.Uint160
		readErr error
	)
	s.Seek(storage.STFunder.Bytes(), func(k, v []byte) {
		if readErr != nil {
			return
		}
		funder, err := util.Uint160DecodeBytesBE(v)
		if err != nil {
			readErr = fmt.Errorf("corrupt funder at %x: %w", k, err)
			return
		}
		funders = append(funders, funder)
	})
	if readErr != nil {
		return nil, readErr
	}
	return funders, nil
}
