package config

import (
	"time"
)

// OracleConfiguration is the price source part of the config.
type OracleConfiguration struct {
	// Type selects the price source, "feed" or "static".
	Type string `yaml:"Type"`
	// Endpoint is the feed URL, used when Type is "feed".
	Endpoint string `yaml:"Endpoint"`
	// RequestTimeout limits a single feed request, in seconds.
	RequestTimeout time.Duration `yaml:"RequestTimeout"`
	// StaticPrice, StaticDecimals and StaticVersion describe the fixed
	// observation served when Type is "static".
	StaticPrice    string `yaml:"StaticPrice"`
	StaticDecimals uint8  `yaml:"StaticDecimals"`
	StaticVersion  uint64 `yaml:"StaticVersion"`
}
