// Package base58 provides base58-check encoding on top of plain base58.
package base58

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// CheckDecode implements a base58-check decoding of the given string.
func CheckDecode(s string) (b []byte, err error) {
	b, err = base58.Decode(s)
	if err != nil {
		return nil, err
	}

	if len(b) < 5 {
		return nil, fmt.Errorf("invalid base-58 check string: missing checksum")
	}

	if err = verifyChecksum(b); err != nil {
		return nil, fmt.Errorf("invalid base-58 check string: %w", err)
	}

	// Strip the 4 byte long hash.
	b = b[:len(b)-4]
	return b, nil
}

// CheckEncode encodes the given byte slice into a base58-check string.
func CheckEncode(b []byte) string {
	b = append(b, checksum(b)...)
	return base58.Encode(b)
}

func checksum(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:4]
}

func verifyChecksum(b []byte) error {
	payload := b[:len(b)-4]
	expected := b[len(b)-4:]
	for i, c := range checksum(payload) {
		if expected[i] != c {
			return errors.New("checksum mismatch")
		}
	}
	return nil
}
