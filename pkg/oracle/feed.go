package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// defaultRequestTimeout is the default Feed HTTP request timeout.
const defaultRequestTimeout = 5 * time.Second

// ErrNoPrice is returned when the feed never reported a price and the
// current request failed as well.
var ErrNoPrice = errors.New("no price data available")

// Feed polls an HTTP endpoint serving a JSON price document. The last
// successfully fetched observation is kept and served when the endpoint
// is temporarily unreachable.
type Feed struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger

	mut     sync.RWMutex
	last    *PriceData
	lastVer uint64
}

// priceDocument is the wire format of the feed endpoint.
type priceDocument struct {
	Price    string `json:"price"`
	Decimals uint8  `json:"decimals"`
	Version  uint64 `json:"version"`
}

// NewFeed creates a Feed polling the given endpoint. A non-positive timeout
// defaults to 5s.
func NewFeed(endpoint string, timeout time.Duration, log *zap.Logger) *Feed {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Feed{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}
}

// LatestPrice implements the PriceSource interface.
func (f *Feed) LatestPrice(ctx context.Context) (PriceData, error) {
	data, _, err := f.fetch(ctx)
	if err != nil {
		f.mut.RLock()
		last := f.last
		f.mut.RUnlock()
		if last != nil {
			f.log.Warn("price fetch failed, using last known value",
				zap.String("endpoint", f.endpoint),
				zap.Error(err))
			return *last, nil
		}
		return PriceData{}, err
	}
	return data, nil
}

// Version implements the PriceSource interface.
func (f *Feed) Version(ctx context.Context) (uint64, error) {
	_, ver, err := f.fetch(ctx)
	if err != nil {
		f.mut.RLock()
		last, lastVer := f.last, f.lastVer
		f.mut.RUnlock()
		if last != nil {
			return lastVer, nil
		}
		return 0, err
	}
	return ver, nil
}

func (f *Feed) fetch(ctx context.Context) (PriceData, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint, nil)
	if err != nil {
		return PriceData{}, 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return PriceData{}, 0, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return PriceData{}, 0, fmt.Errorf("%w: unexpected status %s", ErrNoPrice, resp.Status)
	}

	var doc priceDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return PriceData{}, 0, fmt.Errorf("%w: bad document: %v", ErrNoPrice, err)
	}
	price, err := parsePrice(doc.Price)
	if err != nil {
		return PriceData{}, 0, fmt.Errorf("%w: %v", ErrNoPrice, err)
	}

	data := PriceData{Price: price, Decimals: doc.Decimals}
	f.mut.Lock()
	f.last = &data
	f.lastVer = doc.Version
	f.mut.Unlock()
	return data, doc.Version, nil
}

func parsePrice(s string) (*uint256.Int, error) {
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	if b.Sign() < 0 {
		return nil, fmt.Errorf("negative price %q", s)
	}
	price, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("price %q out of range", s)
	}
	return price, nil
}
