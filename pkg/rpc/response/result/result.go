package result

import (
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
)

type (
	// Version model used for reporting server version and the price feed
	// it is attached to.
	Version struct {
		UserAgent    string        `json:"useragent"`
		OracleRound  uint64        `json:"oracleround"`
		MinimumUSD   fixedn.Fixed8 `json:"minimumusd"`
		MaxWSClients int           `json:"maxwebsocketclients,omitempty"`
	}

	// ValidateAddress wrapper used for the representation of the
	// validateaddress call response.
	ValidateAddress struct {
		Address interface{} `json:"address"`
		IsValid bool        `json:"isvalid"`
	}

	// Amount is a wrapper for uint256 amounts rendered as decimal strings.
	Amount struct {
		Amount string `json:"amount"`
	}

	// Funder is a single entry of the funder list.
	Funder struct {
		Index   uint32 `json:"index"`
		Address string `json:"address"`
	}
)
