package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/pkg/encoding/address"
	"github.com/toicours/fundme-go/pkg/util"
)

// Param represents a param either passed to the server or to be sent to a
// server using the client.
type Param struct {
	json.RawMessage
	cache interface{}
}

var (
	jsonNullBytes       = []byte("null")
	errMissingParameter = errors.New("parameter is missing")
	errNotAString       = errors.New("not a string")
	errNotAnInt         = errors.New("not an integer")
	errNotAnAmount      = errors.New("not a valid amount")
)

func (p Param) String() string {
	str, _ := p.GetString()
	return str
}

// GetString returns a string value of the parameter.
func (p *Param) GetString() (string, error) {
	if p == nil {
		return "", errMissingParameter
	}
	if p.IsNull() {
		return "", errNotAString
	}
	if p.cache == nil {
		var s string
		err := json.Unmarshal(p.RawMessage, &s)
		if err != nil {
			return "", errNotAString
		}
		p.cache = s
	}
	if s, ok := p.cache.(string); ok {
		return s, nil
	}
	return "", errNotAString
}

// GetInt returns an int value of the parameter.
func (p *Param) GetInt() (int, error) {
	if p == nil {
		return 0, errMissingParameter
	}
	if p.IsNull() {
		return 0, errNotAnInt
	}
	if p.cache == nil {
		var i int
		err := json.Unmarshal(p.RawMessage, &i)
		if err != nil {
			return 0, errNotAnInt
		}
		p.cache = i
	}
	if i, ok := p.cache.(int); ok {
		return i, nil
	}
	return 0, errNotAnInt
}

// GetUint256 returns a Uint256 amount from a parameter given either as a
// decimal string or a JSON number.
func (p *Param) GetUint256() (*uint256.Int, error) {
	if p == nil {
		return nil, errMissingParameter
	}
	var s string
	if err := json.Unmarshal(p.RawMessage, &s); err != nil {
		var i int64
		if err := json.Unmarshal(p.RawMessage, &i); err != nil || i < 0 {
			return nil, errNotAnAmount
		}
		return uint256.NewInt(uint64(i)), nil
	}
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok || bi.Sign() < 0 {
		return nil, errNotAnAmount
	}
	val, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, errNotAnAmount
	}
	return val, nil
}

// GetUint160FromHex returns a Uint160 value of the parameter encoded in hex.
func (p *Param) GetUint160FromHex() (util.Uint160, error) {
	s, err := p.GetString()
	if err != nil {
		return util.Uint160{}, err
	}
	s = strings.TrimPrefix(s, "0x")
	return util.Uint160DecodeStringBE(s)
}

// GetUint160FromAddress returns a Uint160 value of the parameter that was
// supplied as an address.
func (p *Param) GetUint160FromAddress() (util.Uint160, error) {
	s, err := p.GetString()
	if err != nil {
		return util.Uint160{}, err
	}
	return address.StringToUint160(s)
}

// GetUint160FromAddressOrHex returns a Uint160 value of the parameter that
// was supplied either as raw hex or as an address.
func (p *Param) GetUint160FromAddressOrHex() (util.Uint160, error) {
	u, err := p.GetUint160FromHex()
	if err == nil {
		return u, err
	}
	return p.GetUint160FromAddress()
}

// GetUUID returns a uuid.UUID from the parameter.
func (p *Param) GetUUID() (uuid.UUID, error) {
	s, err := p.GetString()
	if err != nil {
		return uuid.UUID{}, err
	}
	return uuid.Parse(s)
}

// IsNull returns whether the parameter represents JSON nil value.
func (p *Param) IsNull() bool {
	return bytes.Equal(p.RawMessage, jsonNullBytes)
}
