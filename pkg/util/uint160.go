package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160"
)

// Uint160Size is the size of Uint160 in bytes.
const Uint160Size = 20

// Uint160 is a 20 byte long unsigned integer. It's used to represent
// account identities, both funders and the ledger owner.
type Uint160 [Uint160Size]uint8

// Uint160DecodeStringBE attempts to decode the given string into a Uint160.
func Uint160DecodeStringBE(s string) (Uint160, error) {
	var u Uint160
	if len(s) != Uint160Size*2 {
		return u, fmt.Errorf("expected string size of %d got %d", Uint160Size*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, err
	}
	return Uint160DecodeBytesBE(b)
}

// Uint160DecodeBytesBE attempts to decode the given bytes into a Uint160.
func Uint160DecodeBytesBE(b []byte) (u Uint160, err error) {
	if len(b) != Uint160Size {
		return u, fmt.Errorf("expected byte size of %d got %d", Uint160Size, len(b))
	}
	copy(u[:], b)
	return
}

// RipemdHash160 calculates RIPEMD160(SHA256(data)) of the given data and
// returns it as a Uint160. It's the way account identifiers are derived
// from arbitrary key material.
func RipemdHash160(data []byte) Uint160 {
	sha := sha256.Sum256(data)
	rmd := ripemd160.New()
	rmd.Write(sha[:])

	u, _ := Uint160DecodeBytesBE(rmd.Sum(nil))
	return u
}

// BytesBE returns a big-endian byte representation of u.
func (u Uint160) BytesBE() []byte {
	return u[:]
}

// String implements the stringer interface.
func (u Uint160) String() string {
	return hex.EncodeToString(u.BytesBE())
}

// Equals returns true if both Uint160 values are the same.
func (u Uint160) Equals(other Uint160) bool {
	return u == other
}

// Less returns true if this value is less than the given Uint160 value.
// It's used for proper sorting.
func (u Uint160) Less(other Uint160) bool {
	return bytes.Compare(u.BytesBE(), other.BytesBE()) < 0
}

// UnmarshalJSON implements the json unmarshaller interface.
func (u *Uint160) UnmarshalJSON(data []byte) (err error) {
	var js string
	if err = json.Unmarshal(data, &js); err != nil {
		return err
	}
	js = strings.TrimPrefix(js, "0x")
	*u, err = Uint160DecodeStringBE(js)
	return err
}

// MarshalJSON implements the json marshaller interface.
func (u Uint160) MarshalJSON() ([]byte, error) {
	return []byte(`"0x` + u.String() + `"`), nil
}

// UnmarshalYAML implements the yaml unmarshaller interface.
func (u *Uint160) UnmarshalYAML(unmarshal func(any) error) error {
	var s string

	err := unmarshal(&s)
	if err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "0x")
	*u, err = Uint160DecodeStringBE(s)
	return err
}

// MarshalYAML implements the yaml marshaller interface.
func (u Uint160) MarshalYAML() (any, error) {
	return "0x" + u.String(), nil
}
