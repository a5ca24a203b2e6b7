package config

import (
	"github.com/toicours/fundme-go/pkg/core/storage"
)

// ApplicationConfiguration config specific to the node.
type ApplicationConfiguration struct {
	DBConfiguration storage.DBConfiguration `yaml:"DBConfiguration"`
	LogLevel        string                  `yaml:"LogLevel"`
	LogPath         string                  `yaml:"LogPath"`
	Oracle          OracleConfiguration     `yaml:"Oracle"`
	Pprof           BasicService            `yaml:"Pprof"`
	Prometheus      BasicService            `yaml:"Prometheus"`
	RPC             RPCConfig               `yaml:"RPC"`
}
