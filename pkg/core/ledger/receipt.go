package ledger

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/pkg/util"
)

// Op is a ledger operation kind recorded in receipts.
type Op string

// Possible receipt operations.
const (
	OpContribute Op = "contribute"
	OpWithdraw   Op = "withdraw"
)

// Receipt confirms a successfully applied ledger operation.
type Receipt struct {
	// ID is a unique receipt identifier.
	ID uuid.UUID
	// Op is the applied operation.
	Op Op
	// Account is the affected account: the funder for contributions, the
	// owner for withdrawals.
	Account util.Uint160
	// Amount is the number of native currency units moved.
	Amount *uint256.Int
	// Timestamp is the local time the operation was applied.
	Timestamp time.Time
}

// receiptAux is an auxiliary JSON form of Receipt.
type receiptAux struct {
	ID        uuid.UUID    `json:"id"`
	Op        Op           `json:"operation"`
	Account   util.Uint160 `json:"account"`
	Amount    string       `json:"amount"`
	Timestamp time.Time    `json:"timestamp"`
}

func newReceipt(op Op, acc util.Uint160, amount *uint256.Int) *Receipt {
	return &Receipt{
		ID:        uuid.New(),
		Op:        op,
		Account:   acc,
		Amount:    new(uint256.Int).Set(amount),
		Timestamp: time.Now().UTC(),
	}
}

// MarshalJSON implements the json marshaller interface.
func (r Receipt) MarshalJSON() ([]byte, error) {
	return json.Marshal(receiptAux{
		ID:        r.ID,
		Op:        r.Op,
		Account:   r.Account,
		Amount:    r.Amount.ToBig().String(),
		Timestamp: r.Timestamp,
	})
}

// UnmarshalJSON implements the json unmarshaller interface.
func (r *Receipt) UnmarshalJSON(data []byte) error {
	var aux receiptAux
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	amount, ok := new(big.Int).SetString(aux.Amount, 10)
	if !ok {
		return ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	r.ID = aux.ID
	r.Op = aux.Op
	r.Account = aux.Account
	r.Amount = value
	r.Timestamp = aux.Timestamp
	return nil
}
