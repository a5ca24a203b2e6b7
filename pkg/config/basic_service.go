package config

import (
	"net"
	"strconv"
)

// BasicService is used as a simple base for node services like Pprof, RPC or
// Prometheus monitoring.
type BasicService struct {
	Enabled bool   `yaml:"Enabled"`
	Address string `yaml:"Address"`
	Port    uint16 `yaml:"Port"`
}

// Addr returns the host:port pair for the given basic service.
func (s BasicService) Addr() string {
	return net.JoinHostPort(s.Address, strconv.FormatUint(uint64(s.Port), 10))
}

// RPCConfig is an RPC service configuration information.
type RPCConfig struct {
	BasicService `yaml:",inline"`
	// MaxWebSocketClients limits the number of concurrent websocket
	// event subscribers, 64 by default, -1 disables websocket support.
	MaxWebSocketClients int `yaml:"MaxWebSocketClients"`
}
