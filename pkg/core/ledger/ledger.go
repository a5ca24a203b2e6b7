// Package ledger implements a minimal crowdfunding ledger. Accounts
// contribute native currency units above a USD-denominated minimum (enforced
// via an external price source), contributions are recorded per funder and
// the whole held balance can be drained by the owning account only.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/pkg/core/storage"
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
	"github.com/toicours/fundme-go/pkg/oracle"
	"github.com/toicours/fundme-go/pkg/util"
	"go.uber.org/zap"
)

// usdDecimals is the number of decimal places USD values are computed with.
const usdDecimals = 18

// stateVersion guards against opening state written by an incompatible
// release.
const stateVersion = "0.1.0"

var (
	// ErrInsufficientContribution is returned when a contribution's USD
	// value is below the configured minimum.
	ErrInsufficientContribution = errors.New("contribution below minimum USD value")
	// ErrUnauthorized is returned when a non-owner tries to withdraw.
	ErrUnauthorized = errors.New("caller is not the owner")
	// ErrIndexOutOfRange is returned by Funder for invalid indexes.
	ErrIndexOutOfRange = errors.New("funder index out of range")
	// ErrInvalidAmount is returned when an amount can't be parsed.
	ErrInvalidAmount = errors.New("invalid amount")
)

// WithdrawStrategy selects the record-clearing access pattern used by a
// withdrawal. Both strategies produce exactly the same end state.
type WithdrawStrategy byte

const (
	// StrategyDirect reads every funder entry from the persistent list,
	// one store access per index.
	StrategyDirect WithdrawStrategy = iota
	// StrategySnapshot copies the funder list into memory with a single
	// range scan and then clears records from the copy.
	StrategySnapshot
)

// String implements the Stringer interface.
func (s WithdrawStrategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategySnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

// TransferFunc moves the given amount of native currency units to the given
// account. It's provided by the deployment environment; the ledger itself
// only does bookkeeping. A nil TransferFunc is a no-op. The hook runs
// before the withdrawal state is committed: a failed transfer leaves the
// ledger untouched, while a commit failure after a successful transfer is
// logged as requiring manual reconciliation (the payout is outside the
// ledger's transaction boundary and can't be rolled back).
type TransferFunc func(to util.Uint160, amount *uint256.Int) error

// Config is the set of parameters fixed at ledger construction.
type Config struct {
	// Owner is the only account allowed to withdraw. Immutable.
	Owner util.Uint160 `yaml:"Owner"`
	// MinimumUSD is the smallest allowed USD value of a contribution.
	MinimumUSD fixedn.Fixed8 `yaml:"MinimumUSD"`
}

// Ledger is the crowdfunding ledger. All operations are serialized via an
// internal lock and mutations are all-or-nothing: state reaches the
// underlying store only after every constraint check has passed.
type Ledger struct {
	lock   sync.RWMutex
	store  storage.Store
	source oracle.PriceSource

	owner      util.Uint160
	minimumUSD *uint256.Int
	transfer   TransferFunc
	log        *zap.Logger

	subMut      sync.RWMutex
	subscribers map[chan<- Event]bool
}

// New creates a Ledger on top of the given store. The owner recorded in the
// store (if any) must match cfg.Owner, the owning account can't be changed
// after the first run.
func New(cfg Config, st storage.Store, src oracle.PriceSource, transfer TransferFunc, log *zap.Logger) (*Ledger, error) {
	if log == nil {
		return nil, errors.New("ledger: nil logger")
	}
	if src == nil {
		return nil, errors.New("ledger: nil price source")
	}
	if cfg.MinimumUSD < 0 {
		return nil, errors.New("ledger: negative minimum USD value")
	}

	stored, err := getOwner(st)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if err := putOwner(st, cfg.Owner); err != nil {
			return nil, fmt.Errorf("ledger: can't record owner: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("ledger: can't read owner: %w", err)
	case !stored.Equals(cfg.Owner):
		return nil, fmt.Errorf("ledger: owner mismatch: store has %s, config has %s", stored, cfg.Owner)
	}

	ver, err := getVersion(st)
	switch {
	case errors.Is(err, storage.ErrKeyNotFound):
		if err := putVersion(st, stateVersion); err != nil {
			return nil, fmt.Errorf("ledger: can't record state version: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("ledger: can't read state version: %w", err)
	case ver != stateVersion:
		return nil, fmt.Errorf("ledger: storage version mismatch: %s vs %s", ver, stateVersion)
	}

	// MinimumUSD is kept at 8 decimals in the config, scale it up to the
	// USD computation precision.
	minimum := new(uint256.Int).Mul(
		uint256.NewInt(uint64(cfg.MinimumUSD)),
		uint256.NewInt(10000000000), // 10^(18-8)
	)

	return &Ledger{
		store:       st,
		source:      src,
		owner:       cfg.Owner,
		minimumUSD:  minimum,
		transfer:    transfer,
		log:         log,
		subscribers: make(map[chan<- Event]bool),
	}, nil
}

// Contribute credits amount to the caller's recorded balance. It fails with
// ErrInsufficientContribution when the amount's USD value is below the
// minimum; a failed call leaves the ledger state exactly as it was.
func (l *Ledger) Contribute(ctx context.Context, caller util.Uint160, amount *uint256.Int) (*Receipt, error) {
	if amount == nil {
		amount = new(uint256.Int)
	}

	l.lock.Lock()
	defer l.lock.Unlock()

	data, err := l.source.LatestPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("price lookup failed: %w", err)
	}
	usd := usdValue(amount, data)
	if usd.Lt(l.minimumUSD) {
		return nil, ErrInsufficientContribution
	}

	cache := storage.NewMemCachedStore(l.store)

	balance, err := getAmount(cache, balanceKey(caller))
	if err != nil {
		return nil, err
	}
	balance.Add(balance, amount)
	if err := putAmount(cache, balanceKey(caller), balance); err != nil {
		return nil, err
	}

	// The funder list keeps one entry per contribution, repeat funders
	// appear multiple times while the balance above coalesces.
	count, err := getFunderCount(cache)
	if err != nil {
		return nil, err
	}
	if err := cache.Put(funderKey(count), caller.BytesBE()); err != nil {
		return nil, err
	}
	if err := putFunderCount(cache, count+1); err != nil {
		return nil, err
	}

	held, err := getAmount(cache, heldBalanceKey())
	if err != nil {
		return nil, err
	}
	held.Add(held, amount)
	if err := putAmount(cache, heldBalanceKey(), held); err != nil {
		return nil, err
	}

	if _, err := cache.Persist(); err != nil {
		return nil, fmt.Errorf("can't persist contribution: %w", err)
	}

	r := newReceipt(OpContribute, caller, amount)
	l.log.Info("contribution accepted",
		zap.Stringer("funder", caller),
		zap.String("amount", amount.ToBig().String()),
		zap.String("usd", fixedn.ToString(usd.ToBig(), usdDecimals)))
	l.notify(Event{Type: ContributionMade, Account: caller, Amount: new(uint256.Int).Set(amount)})
	return r, nil
}

// Withdraw transfers the whole held balance to the owner and resets all
// contribution records, clearing them one persistent list access at a time.
// Non-owner callers get ErrUnauthorized and no state change.
func (l *Ledger) Withdraw(_ context.Context, caller util.Uint160) (*Receipt, error) {
	return l.withdraw(caller, StrategyDirect)
}

// WithdrawCheaper is the cost-optimized variant of Withdraw: it snapshots
// the funder list into memory once instead of re-reading persistent entries.
// The end state is identical to Withdraw's.
func (l *Ledger) WithdrawCheaper(_ context.Context, caller util.Uint160) (*Receipt, error) {
	return l.withdraw(caller, StrategySnapshot)
}

func (l *Ledger) withdraw(caller util.Uint160, strategy WithdrawStrategy) (*Receipt, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if !caller.Equals(l.owner) {
		return nil, ErrUnauthorized
	}

	cache := storage.NewMemCachedStore(l.store)

	held, err := getAmount(cache, heldBalanceKey())
	if err != nil {
		return nil, err
	}

	switch strategy {
	case StrategyDirect:
		count, err := getFunderCount(cache)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			b, err := cache.Get(funderKey(i))
			if err != nil {
				return nil, fmt.Errorf("missing funder %d: %w", i, err)
			}
			funder, err := util.Uint160DecodeBytesBE(b)
			if err != nil {
				return nil, fmt.Errorf("corrupt funder %d: %w", i, err)
			}
			if err := cache.Delete(balanceKey(funder)); err != nil {
				return nil, err
			}
			if err := cache.Delete(funderKey(i)); err != nil {
				return nil, err
			}
		}
	case StrategySnapshot:
		funders, err := fundersSnapshot(cache)
		if err != nil {
			return nil, err
		}
		for _, funder := range funders {
			if err := cache.Delete(balanceKey(funder)); err != nil {
				return nil, err
			}
		}
		for i := range funders {
			if err := cache.Delete(funderKey(uint32(i))); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("unknown withdraw strategy %d", strategy)
	}

	if err := putFunderCount(cache, 0); err != nil {
		return nil, err
	}
	if err := cache.Delete(heldBalanceKey()); err != nil {
		return nil, err
	}

	// The transfer hook runs before the state is persisted, so a failed
	// transfer leaves the ledger untouched.
	transferred := l.transfer != nil && !held.IsZero()
	if transferred {
		if err := l.transfer(l.owner, new(uint256.Int).Set(held)); err != nil {
			return nil, fmt.Errorf("transfer to owner failed: %w", err)
		}
	}

	if _, err := cache.Persist(); err != nil {
		if transferred {
			// The owner got paid but the books still show the old
			// balances, retrying the withdrawal would pay twice.
			l.log.Error("withdrawal transfer applied but state commit failed, manual reconciliation required",
				zap.Stringer("owner", l.owner),
				zap.String("amount", held.ToBig().String()),
				zap.Error(err))
		}
		return nil, fmt.Errorf("can't persist withdrawal: %w", err)
	}

	r := newReceipt(OpWithdraw, l.owner, held)
	l.log.Info("funds withdrawn",
		zap.Stringer("owner", l.owner),
		zap.String("amount", held.ToBig().String()),
		zap.Stringer("strategy", strategy))
	l.notify(Event{Type: FundsWithdrawn, Account: l.owner, Amount: new(uint256.Int).Set(held)})
	return r, nil
}

// AmountFunded returns the cumulative recorded contribution of the given
// account, zero for accounts that never contributed.
func (l *Ledger) AmountFunded(acc util.Uint160) (*uint256.Int, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return getAmount(l.store, balanceKey(acc))
}

// Funder returns the i-th funder list entry. Repeat contributions from the
// same account occupy separate entries.
func (l *Ledger) Funder(i uint32) (util.Uint160, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	count, err := getFunderCount(l.store)
	if err != nil {
		return util.Uint160{}, err
	}
	if i >= count {
		return util.Uint160{}, ErrIndexOutOfRange
	}
	b, err := l.store.Get(funderKey(i))
	if err != nil {
		return util.Uint160{}, err
	}
	return util.Uint160DecodeBytesBE(b)
}

// FunderCount returns the current funder list length.
func (l *Ledger) FunderCount() (uint32, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return getFunderCount(l.store)
}

// HeldBalance returns the total balance currently held by the ledger.
func (l *Ledger) HeldBalance() (*uint256.Int, error) {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return getAmount(l.store, heldBalanceKey())
}

// Owner returns the owning account.
func (l *Ledger) Owner() util.Uint160 {
	return l.owner
}

// Version returns the price source's schema version, a pure passthrough.
func (l *Ledger) Version(ctx context.Context) (uint64, error) {
	return l.source.Version(ctx)
}

// usdValue computes the 18-decimals USD value of amount given a price
// observation. Values beyond 256 bits saturate, they're above any sane
// minimum anyway.
func usdValue(amount *uint256.Int, data oracle.PriceData) *uint256.Int {
	price := data.Price
	if price == nil {
		price = new(uint256.Int)
	}
	prod := new(big.Int).Mul(amount.ToBig(), price.ToBig())
	prod.Quo(prod, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(data.Decimals)), nil))
	res, overflow := uint256.FromBig(prod)
	if overflow {
		res = new(uint256.Int).SetAllOne()
	}
	return res
}
