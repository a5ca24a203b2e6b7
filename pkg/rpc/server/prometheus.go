package server

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics used in monitoring service.
var (
	rpcCalls = []string{
		"contribute",
		"getamountfunded",
		"getfunder",
		"getfundercount",
		"getheldbalance",
		"getowner",
		"getreceipt",
		"getversion",
		"validateaddress",
		"withdraw",
		"withdrawcheaper",
	}

	rpcCounter = map[string]prometheus.Counter{}
)

func incCounter(name string) {
	ctr, ok := rpcCounter[name]
	if ok {
		ctr.Inc()
	}
}

func init() {
	for i := range rpcCalls {
		ctr := prometheus.NewCounter(
			prometheus.CounterOpts{
				Help:      fmt.Sprintf("Number of calls to %s rpc endpoint", rpcCalls[i]),
				Name:      fmt.Sprintf("%s_called", rpcCalls[i]),
				Namespace: "fundme",
			},
		)
		prometheus.MustRegister(ctr)
		rpcCounter[rpcCalls[i]] = ctr
	}
}
