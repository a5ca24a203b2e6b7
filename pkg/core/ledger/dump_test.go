package ledger

import (
	"bytes"
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
	"github.com/toicours/fundme-go/pkg/oracle"
	"go.uber.org/zap/zaptest"
)

func TestDumpRestoreRoundTrip(t *testing.T) {
	l := testLedger(t, nil, nil)
	for i := byte(1); i <= 5; i++ {
		_, err := l.Contribute(context.Background(), testAccount(i), units(10))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, l.DumpState(&buf))

	restored := testLedger(t, storage.NewMemoryStore(), nil)
	require.NoError(t, restored.RestoreState(bytes.NewReader(buf.Bytes())))

	requireState(t, restored, 5, units(50))
	for i := byte(1); i <= 5; i++ {
		funded, err := restored.AmountFunded(testAccount(i))
		require.NoError(t, err)
		require.Equal(t, units(10), funded)

		funder, err := restored.Funder(uint32(i) - 1)
		require.NoError(t, err)
		require.Equal(t, testAccount(i), funder)
	}
}

func TestRestoreReplacesExistingState(t *testing.T) {
	l := testLedger(t, nil, nil)
	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, l.DumpState(&buf))

	// The target ledger has its own contributions, all of them have to be
	// gone after the restore.
	restored := testLedger(t, nil, nil)
	for i := byte(1); i <= 3; i++ {
		_, err := restored.Contribute(context.Background(), testAccount(i), units(7))
		require.NoError(t, err)
	}
	require.NoError(t, restored.RestoreState(bytes.NewReader(buf.Bytes())))

	requireState(t, restored, 1, units(10))
	funded, err := restored.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.Equal(t, units(10), funded)
	for i := byte(2); i <= 3; i++ {
		funded, err := restored.AmountFunded(testAccount(i))
		require.NoError(t, err)
		require.True(t, funded.IsZero())
	}
	_, err = restored.Funder(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	// Both withdrawal variants see exactly the restored state.
	bank := newTestBank()
	restored.transfer = bank.transfer
	_, err = restored.WithdrawCheaper(context.Background(), testOwner())
	require.NoError(t, err)
	require.Equal(t, units(10), bank.balanceOf(testOwner()))
	requireState(t, restored, 0, new(uint256.Int))
}

func TestRestoreRejectsGarbage(t *testing.T) {
	l := testLedger(t, nil, nil)

	for _, dump := range [][]byte{
		{},
		[]byte("definitely not a dump"),
		append([]byte("FMDS"), 0xff, 0x01, 0, 0, 0, 0), // bad version
		append([]byte("FMDS"), 0x01, 0x07, 0, 0, 0, 0), // bad flag
	} {
		require.Error(t, l.RestoreState(bytes.NewReader(dump)))
	}
}

func TestRestoreRejectsForeignOwner(t *testing.T) {
	l := testLedger(t, nil, nil)
	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, l.DumpState(&buf))

	src := oracle.NewStatic(testPrice, 8, 4)
	other, err := New(Config{Owner: testAccount(9), MinimumUSD: fixedn.Fixed8FromInt64(5)},
		storage.NewMemoryStore(), src, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.Error(t, other.RestoreState(bytes.NewReader(buf.Bytes())))
}

func TestDumpIsStable(t *testing.T) {
	l := testLedger(t, nil, nil)
	_, err := l.Contribute(context.Background(), testAccount(1), uint256.NewInt(2500000000000000))
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, l.DumpState(&first))
	require.NoError(t, l.DumpState(&second))
	require.Equal(t, first.Bytes(), second.Bytes())
}
