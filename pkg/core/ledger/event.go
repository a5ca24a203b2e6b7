package ledger

import (
	"github.com/holiman/uint256"
	"github.com/toicours/fundme-go/pkg/util"
	"go.uber.org/zap"
)

// EventType is the type of a ledger notification.
type EventType byte

const (
	// ContributionMade is emitted for every accepted contribution.
	ContributionMade EventType = iota
	// FundsWithdrawn is emitted for every successful withdrawal.
	FundsWithdrawn
)

// String implements the Stringer interface.
func (e EventType) String() string {
	switch e {
	case ContributionMade:
		return "contribution_made"
	case FundsWithdrawn:
		return "funds_withdrawn"
	default:
		return "unknown"
	}
}

// Event is a ledger state-change notification delivered to subscribers.
type Event struct {
	Type    EventType
	Account util.Uint160
	Amount  *uint256.Int
}

// SubscribeForEvents adds the given channel to the notification list. The
// ledger never closes subscribed channels; events are dropped (with a log
// message) if ch is not ready to receive.
func (l *Ledger) SubscribeForEvents(ch chan<- Event) {
	l.subMut.Lock()
	l.subscribers[ch] = true
	l.subMut.Unlock()
}

// UnsubscribeFromEvents removes the given channel from the notification list.
func (l *Ledger) UnsubscribeFromEvents(ch chan<- Event) {
	l.subMut.Lock()
	delete(l.subscribers, ch)
	l.subMut.Unlock()
}

func (l *Ledger) notify(e Event) {
	l.subMut.RLock()
	defer l.subMut.RUnlock()
	for ch := range l.subscribers {
		select {
		case ch <- e:
		default:
			l.log.Warn("skipping event, subscriber is not ready",
				zap.Stringer("event", e.Type))
		}
	}
}
