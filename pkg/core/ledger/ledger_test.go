package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
	"github.com/toicours/fundme-go/pkg/oracle"
	"github.com/toicours/fundme-go/pkg/util"
	"go.uber.org/zap/zaptest"
)

// testPrice is $2000 per currency unit at 8 decimals.
var testPrice = uint256.NewInt(200000000000)

func testOwner() util.Uint160 {
	return util.RipemdHash160([]byte("owner"))
}

func testAccount(i byte) util.Uint160 {
	return util.RipemdHash160([]byte{0xfa, i})
}

// units converts whole currency units to their 18-decimals representation.
func units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1000000000000000000))
}

type testBank struct {
	mut      sync.Mutex
	balances map[util.Uint160]*uint256.Int
}

func newTestBank() *testBank {
	return &testBank{balances: make(map[util.Uint160]*uint256.Int)}
}

func (b *testBank) transfer(to util.Uint160, amount *uint256.Int) error {
	b.mut.Lock()
	defer b.mut.Unlock()
	old, ok := b.balances[to]
	if !ok {
		old = new(uint256.Int)
	}
	b.balances[to] = new(uint256.Int).Add(old, amount)
	return nil
}

func (b *testBank) balanceOf(acc util.Uint160) *uint256.Int {
	b.mut.Lock()
	defer b.mut.Unlock()
	if bal, ok := b.balances[acc]; ok {
		return bal
	}
	return new(uint256.Int)
}

func testLedger(t *testing.T, st storage.Store, transfer TransferFunc) *Ledger {
	if st == nil {
		st = storage.NewMemoryStore()
	}
	src := oracle.NewStatic(testPrice, 8, 4)
	l, err := New(Config{
		Owner:      testOwner(),
		MinimumUSD: fixedn.Fixed8FromInt64(5),
	}, st, src, transfer, zaptest.NewLogger(t))
	require.NoError(t, err)
	return l
}

func requireState(t *testing.T, l *Ledger, funders int, held *uint256.Int) {
	count, err := l.FunderCount()
	require.NoError(t, err)
	require.EqualValues(t, funders, count)

	balance, err := l.HeldBalance()
	require.NoError(t, err)
	require.Equal(t, held, balance)
}

func TestNewLedgerOwner(t *testing.T) {
	st := storage.NewMemoryStore()
	l := testLedger(t, st, nil)
	require.Equal(t, testOwner(), l.Owner())

	// Reopening over the same store with the same owner works.
	src := oracle.NewStatic(testPrice, 8, 4)
	_, err := New(Config{Owner: testOwner(), MinimumUSD: fixedn.Fixed8FromInt64(5)},
		st, src, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	// The owner can't be changed after the first run.
	_, err = New(Config{Owner: testAccount(1), MinimumUSD: fixedn.Fixed8FromInt64(5)},
		st, src, nil, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestNewLedgerStorageVersion(t *testing.T) {
	st := storage.NewMemoryStore()
	testLedger(t, st, nil)

	// Reopening a store written by the same release works.
	testLedger(t, st, nil)

	// A store with a foreign state version is refused.
	require.NoError(t, st.Put(storage.SYSVersion.Bytes(), []byte("0.0.9")))
	src := oracle.NewStatic(testPrice, 8, 4)
	_, err := New(Config{Owner: testOwner(), MinimumUSD: fixedn.Fixed8FromInt64(5)},
		st, src, nil, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage version mismatch")
}

func TestContributeBelowMinimum(t *testing.T) {
	l := testLedger(t, nil, nil)

	// $5 at $2000/unit is 0.0025 units, one wei short must fail.
	belowMin := uint256.NewInt(2500000000000000 - 1)
	_, err := l.Contribute(context.Background(), testAccount(1), belowMin)
	require.ErrorIs(t, err, ErrInsufficientContribution)
	requireState(t, l, 0, new(uint256.Int))

	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.True(t, funded.IsZero())

	// Nil and zero amounts are below any positive minimum.
	_, err = l.Contribute(context.Background(), testAccount(1), nil)
	require.ErrorIs(t, err, ErrInsufficientContribution)
	requireState(t, l, 0, new(uint256.Int))
}

func TestContributeExactMinimum(t *testing.T) {
	l := testLedger(t, nil, nil)

	atMin := uint256.NewInt(2500000000000000)
	r, err := l.Contribute(context.Background(), testAccount(1), atMin)
	require.NoError(t, err)
	require.Equal(t, OpContribute, r.Op)
	require.Equal(t, atMin, r.Amount)
	requireState(t, l, 1, atMin)
}

func TestContributeRecords(t *testing.T) {
	l := testLedger(t, nil, nil)
	amount := units(10)

	_, err := l.Contribute(context.Background(), testAccount(1), amount)
	require.NoError(t, err)

	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.Equal(t, amount, funded)

	funder, err := l.Funder(0)
	require.NoError(t, err)
	require.Equal(t, testAccount(1), funder)
	requireState(t, l, 1, amount)
}

func TestContributeRepeatedKeepsDuplicates(t *testing.T) {
	l := testLedger(t, nil, nil)
	amount := units(10)

	_, err := l.Contribute(context.Background(), testAccount(1), amount)
	require.NoError(t, err)
	_, err = l.Contribute(context.Background(), testAccount(1), amount)
	require.NoError(t, err)

	// The balance mapping coalesces, the funder list does not.
	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.Equal(t, units(20), funded)

	requireState(t, l, 2, units(20))
	for i := uint32(0); i < 2; i++ {
		funder, err := l.Funder(i)
		require.NoError(t, err)
		require.Equal(t, testAccount(1), funder)
	}
}

type failingSource struct{}

func (failingSource) LatestPrice(context.Context) (oracle.PriceData, error) {
	return oracle.PriceData{}, errors.New("feed down")
}

func (failingSource) Version(context.Context) (uint64, error) {
	return 0, errors.New("feed down")
}

func TestContributePriceLookupFailure(t *testing.T) {
	st := storage.NewMemoryStore()
	l, err := New(Config{Owner: testOwner(), MinimumUSD: fixedn.Fixed8FromInt64(5)},
		st, failingSource{}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = l.Contribute(context.Background(), testAccount(1), units(10))
	require.Error(t, err)
	requireState(t, l, 0, new(uint256.Int))
}

func TestWithdrawUnauthorized(t *testing.T) {
	bank := newTestBank()
	l := testLedger(t, nil, bank.transfer)

	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	for _, withdraw := range []func(context.Context, util.Uint160) (*Receipt, error){
		l.Withdraw, l.WithdrawCheaper,
	} {
		_, err := withdraw(context.Background(), testAccount(1))
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	// Nothing changed, nothing transferred.
	requireState(t, l, 1, units(10))
	require.True(t, bank.balanceOf(testOwner()).IsZero())
	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.Equal(t, units(10), funded)
}

func TestWithdrawSingleFunder(t *testing.T) {
	bank := newTestBank()
	l := testLedger(t, nil, bank.transfer)

	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	r, err := l.Withdraw(context.Background(), testOwner())
	require.NoError(t, err)
	require.Equal(t, OpWithdraw, r.Op)
	require.Equal(t, units(10), r.Amount)

	// The owner got exactly what was held, the books are clean.
	require.Equal(t, units(10), bank.balanceOf(testOwner()))
	requireState(t, l, 0, new(uint256.Int))
	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.True(t, funded.IsZero())
	_, err = l.Funder(0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestWithdrawNineFunders(t *testing.T) {
	bank := newTestBank()
	l := testLedger(t, nil, bank.transfer)

	for i := byte(1); i <= 9; i++ {
		_, err := l.Contribute(context.Background(), testAccount(i), units(10))
		require.NoError(t, err)
	}
	requireState(t, l, 9, units(90))

	_, err := l.WithdrawCheaper(context.Background(), testOwner())
	require.NoError(t, err)

	require.Equal(t, units(90), bank.balanceOf(testOwner()))
	requireState(t, l, 0, new(uint256.Int))
	for i := byte(1); i <= 9; i++ {
		funded, err := l.AmountFunded(testAccount(i))
		require.NoError(t, err)
		require.True(t, funded.IsZero())
	}
}

func TestWithdrawVariantsEquivalent(t *testing.T) {
	run := func(t *testing.T, withdraw func(l *Ledger) (*Receipt, error)) (*testBank, *Ledger) {
		bank := newTestBank()
		l := testLedger(t, nil, bank.transfer)
		for i := byte(1); i <= 9; i++ {
			_, err := l.Contribute(context.Background(), testAccount(i), units(10))
			require.NoError(t, err)
			// A couple of repeat funders to exercise duplicate
			// list entries.
			if i%4 == 0 {
				_, err = l.Contribute(context.Background(), testAccount(i), units(10))
				require.NoError(t, err)
			}
		}
		_, err := withdraw(l)
		require.NoError(t, err)
		return bank, l
	}

	directBank, directLedger := run(t, func(l *Ledger) (*Receipt, error) {
		return l.Withdraw(context.Background(), testOwner())
	})
	snapBank, snapLedger := run(t, func(l *Ledger) (*Receipt, error) {
		return l.WithdrawCheaper(context.Background(), testOwner())
	})

	// Identical pre-state, identical post-state for both strategies.
	require.Equal(t, directBank.balanceOf(testOwner()), snapBank.balanceOf(testOwner()))
	for _, l := range []*Ledger{directLedger, snapLedger} {
		requireState(t, l, 0, new(uint256.Int))
		for i := byte(1); i <= 9; i++ {
			funded, err := l.AmountFunded(testAccount(i))
			require.NoError(t, err)
			require.True(t, funded.IsZero())
		}
	}
}

func TestWithdrawTransferFailure(t *testing.T) {
	transfer := func(util.Uint160, *uint256.Int) error {
		return errors.New("bank closed")
	}
	l := testLedger(t, nil, transfer)

	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	_, err = l.Withdraw(context.Background(), testOwner())
	require.Error(t, err)

	// A failed transfer leaves everything in place.
	requireState(t, l, 1, units(10))
	funded, err := l.AmountFunded(testAccount(1))
	require.NoError(t, err)
	require.Equal(t, units(10), funded)
}

// brokenStore fails every batch write after a number of successful ones.
type brokenStore struct {
	storage.Store
	writesLeft int
}

func (s *brokenStore) PutBatch(b storage.Batch) error {
	if s.writesLeft <= 0 {
		return errors.New("disk full")
	}
	s.writesLeft--
	return s.Store.PutBatch(b)
}

func TestWithdrawCommitFailure(t *testing.T) {
	st := &brokenStore{Store: storage.NewMemoryStore(), writesLeft: 1}
	bank := newTestBank()
	l := testLedger(t, st, bank.transfer)

	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	// The commit fails after the payout, the books keep the old state
	// and the payment stands. Operators reconcile from the log.
	_, err = l.Withdraw(context.Background(), testOwner())
	require.Error(t, err)
	require.Equal(t, units(10), bank.balanceOf(testOwner()))
	requireState(t, l, 1, units(10))
}

func TestFunderIndexOutOfRange(t *testing.T) {
	l := testLedger(t, nil, nil)

	_, err := l.Funder(0)
	require.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)

	_, err = l.Funder(0)
	require.NoError(t, err)
	_, err = l.Funder(1)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = l.Funder(100500)
	require.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestVersionPassthrough(t *testing.T) {
	l := testLedger(t, nil, nil)

	ver, err := l.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ver)
}

func TestLedgerEvents(t *testing.T) {
	bank := newTestBank()
	l := testLedger(t, nil, bank.transfer)

	ch := make(chan Event, 8)
	l.SubscribeForEvents(ch)
	t.Cleanup(func() { l.UnsubscribeFromEvents(ch) })

	_, err := l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)
	e := <-ch
	assert.Equal(t, ContributionMade, e.Type)
	assert.Equal(t, testAccount(1), e.Account)
	assert.Equal(t, units(10), e.Amount)

	_, err = l.Withdraw(context.Background(), testOwner())
	require.NoError(t, err)
	e = <-ch
	assert.Equal(t, FundsWithdrawn, e.Type)
	assert.Equal(t, testOwner(), e.Account)
	assert.Equal(t, units(10), e.Amount)
}

func TestLedgerOnBoltDB(t *testing.T) {
	st, err := storage.NewBoltDBStore(storage.BoltDBOptions{
		FilePath: t.TempDir() + "/fundme.bolt",
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bank := newTestBank()
	l := testLedger(t, st, bank.transfer)

	_, err = l.Contribute(context.Background(), testAccount(1), units(10))
	require.NoError(t, err)
	_, err = l.Withdraw(context.Background(), testOwner())
	require.NoError(t, err)
	require.Equal(t, units(10), bank.balanceOf(testOwner()))
	requireState(t, l, 0, new(uint256.Int))
}
