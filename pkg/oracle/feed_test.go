package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestFeedLatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "316245000000", "decimals": 8, "version": 4}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFeed(srv.URL, time.Second, zaptest.NewLogger(t))
	data, err := f.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(316245000000), data.Price)
	assert.Equal(t, uint8(8), data.Decimals)

	ver, err := f.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ver)
}

func TestFeedLastKnownValue(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"price": "200000000000", "decimals": 8, "version": 4}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFeed(srv.URL, time.Second, zaptest.NewLogger(t))
	_, err := f.LatestPrice(context.Background())
	require.NoError(t, err)

	fail.Store(true)
	data, err := f.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(200000000000), data.Price)

	ver, err := f.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ver)
}

func TestFeedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price": "minus five", "decimals": 8, "version": 1}`))
	}))
	t.Cleanup(srv.Close)

	f := NewFeed(srv.URL, time.Second, zaptest.NewLogger(t))
	_, err := f.LatestPrice(context.Background())
	require.ErrorIs(t, err, ErrNoPrice)

	_, err = f.Version(context.Background())
	require.ErrorIs(t, err, ErrNoPrice)

	// Unreachable endpoint with no cached value.
	f = NewFeed("http://127.0.0.1:1/nowhere", time.Second, zaptest.NewLogger(t))
	_, err = f.LatestPrice(context.Background())
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	s := NewStatic(uint256.NewInt(200000000000), 8, 4)

	data, err := s.LatestPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint256.NewInt(200000000000), data.Price)
	assert.Equal(t, uint8(8), data.Decimals)

	ver, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ver)
}
