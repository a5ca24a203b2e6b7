package config

import (
	"fmt"
	"os"

	"github.com/toicours/fundme-go/pkg/core/storage"
	"gopkg.in/yaml.v3"
)

const userAgentFormat = "/FUNDME-GO:%s/"

// Version is the version of the node, set at build time.
var Version string

// Config top level struct representing the config for the node.
type Config struct {
	LedgerConfiguration      LedgerConfiguration      `yaml:"LedgerConfiguration"`
	ApplicationConfiguration ApplicationConfiguration `yaml:"ApplicationConfiguration"`
}

// GenerateUserAgent creates a user agent string based on the build time
// environment.
func (c Config) GenerateUserAgent() string {
	return fmt.Sprintf(userAgentFormat, Version)
}

// LoadFile loads config from the given file path.
func LoadFile(configPath string) (Config, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return Config{}, fmt.Errorf("unable to read config: %w", err)
	}

	config := Config{
		ApplicationConfiguration: ApplicationConfiguration{
			DBConfiguration: storage.DBConfiguration{
				Type: "inmemory",
			},
		},
	}
	err = yaml.Unmarshal(configData, &config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config yaml: %w", err)
	}

	return config, nil
}
