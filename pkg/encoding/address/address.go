// Package address implements conversion of account identifiers to and from
// their base58-check string representation.
package address

import (
	"errors"

	"github.com/toicours/fundme-go/pkg/encoding/base58"
	"github.com/toicours/fundme-go/pkg/util"
)

// Prefix is the byte prepended to addresses when encoding them. It can be
// changed for test networks and defaults to 23 (0x17).
var Prefix = byte(0x17)

// Uint160ToString returns the string representation of the given account
// identifier.
func Uint160ToString(u util.Uint160) string {
	// Don't forget to prepend the address version.
	b := append([]byte{Prefix}, u.BytesBE()...)
	return base58.CheckEncode(b)
}

// StringToUint160 attempts to decode the given address string into a Uint160.
func StringToUint160(s string) (u util.Uint160, err error) {
	b, err := base58.CheckDecode(s)
	if err != nil {
		return u, err
	}
	if len(b) != util.Uint160Size+1 {
		return u, errors.New("wrong address length")
	}
	if b[0] != Prefix {
		return u, errors.New("wrong address prefix")
	}
	return util.Uint160DecodeBytesBE(b[1:])
}
