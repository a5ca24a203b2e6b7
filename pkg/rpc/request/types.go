package request

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	// JSONRPCVersion is the only JSON-RPC protocol version supported.
	JSONRPCVersion = "2.0"
)

// In represents a standard JSON-RPC 2.0 request:
// http://www.jsonrpc.org/specification#request_object.
type In struct {
	JSONRPC   string          `json:"jsonrpc"`
	Method    string          `json:"method"`
	RawParams json.RawMessage `json:"params,omitempty"`
	RawID     json.RawMessage `json:"id,omitempty"`
}

// NewIn creates a new In struct.
func NewIn() *In {
	return &In{
		JSONRPC: JSONRPCVersion,
	}
}

// DecodeData decodes the given reader into the request struct.
func (r *In) DecodeData(data io.ReadCloser) error {
	defer data.Close()

	err := json.NewDecoder(data).Decode(r)
	if err != nil {
		return fmt.Errorf("error parsing JSON payload: %w", err)
	}

	if r.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid version, expected 2.0 got: '%s'", r.JSONRPC)
	}

	return nil
}

// Params extracts request parameters.
func (r *In) Params() (*Params, error) {
	params := Params{}

	if len(r.RawParams) != 0 {
		err := json.Unmarshal(r.RawParams, &params)
		if err != nil {
			return nil, fmt.Errorf("error parsing params field in payload: %w", err)
		}
	}

	return &params, nil
}
