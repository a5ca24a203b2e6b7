// Package oracle provides price sources for the crowdfunding ledger.
package oracle

import (
	"context"

	"github.com/holiman/uint256"
)

// PriceData is a single price observation reported by a source.
type PriceData struct {
	// Price is the native currency unit price expressed with Decimals
	// decimal places.
	Price *uint256.Int
	// Decimals is the number of decimal places of Price.
	Decimals uint8
}

// PriceSource is a read-only, externally-trusted price dependency of the
// ledger. Implementations perform no staleness or bounds validation, the
// reported values are used as is.
type PriceSource interface {
	// LatestPrice returns the most recent price observation.
	LatestPrice(ctx context.Context) (PriceData, error)
	// Version returns the source's schema version number.
	Version(ctx context.Context) (uint64, error)
}

// Static is a PriceSource with fixed contents, used for tests and
// offline deployments.
type Static struct {
	PriceData

	Ver uint64
}

// NewStatic creates a Static source with the given price, decimals and
// version.
func NewStatic(price *uint256.Int, decimals uint8, version uint64) *Static {
	return &Static{
		PriceData: PriceData{
			Price:    price,
			Decimals: decimals,
		},
		Ver: version,
	}
}

// LatestPrice implements the PriceSource interface.
func (s *Static) LatestPrice(_ context.Context) (PriceData, error) {
	return s.PriceData, nil
}

// Version implements the PriceSource interface.
func (s *Static) Version(_ context.Context) (uint64, error) {
	return s.Ver, nil
}
