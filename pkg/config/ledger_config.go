package config

import (
	"github.com/toicours/fundme-go/pkg/encoding/fixedn"
	"github.com/toicours/fundme-go/pkg/util"
)

// LedgerConfiguration is the ledger deployment part of the config. These
// parameters are fixed for the ledger's lifetime.
type LedgerConfiguration struct {
	// Owner is the only account allowed to withdraw held funds.
	Owner util.Uint160 `yaml:"Owner"`
	// MinimumUSD is the smallest allowed USD value of a contribution,
	// "5" by default.
	MinimumUSD fixedn.Fixed8 `yaml:"MinimumUSD"`
}
