package response

import (
	"errors"
	"fmt"
)

// EventID represents an event type happening on the ledger.
type EventID byte

const (
	// InvalidEventID is an invalid event id that is the default value of
	// EventID. It's only used as an initial value similar to nil.
	InvalidEventID EventID = iota
	// ContributionEventID is used for contribution events.
	ContributionEventID
	// WithdrawalEventID is used for withdrawal events.
	WithdrawalEventID
	// MissedEventID notifies user of missed events.
	MissedEventID EventID = 255
)

// String is a good old Stringer implementation.
func (e EventID) String() string {
	switch e {
	case ContributionEventID:
		return "contribution_made"
	case WithdrawalEventID:
		return "funds_withdrawn"
	case MissedEventID:
		return "event_missed"
	default:
		return "unknown"
	}
}

// GetEventIDFromString converts an event name into an EventID.
func GetEventIDFromString(s string) (EventID, error) {
	switch s {
	case "contribution_made":
		return ContributionEventID, nil
	case "funds_withdrawn":
		return WithdrawalEventID, nil
	case "event_missed":
		return MissedEventID, nil
	default:
		return InvalidEventID, errors.New("invalid stream name")
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (e EventID) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", e.String())), nil
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (e *EventID) UnmarshalJSON(b []byte) error {
	var errInvalid = errors.New("invalid event id data")
	if len(b) < 3 {
		return errInvalid
	}
	if b[0] != '"' || b[len(b)-1] != '"' {
		return errInvalid
	}
	id, err := GetEventIDFromString(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*e = id
	return nil
}
