package metrics

import (
	"context"
	"net/http"

	"github.com/toicours/fundme-go/pkg/config"
	"go.uber.org/zap"
)

// Service serves metrics.
type Service struct {
	*http.Server
	config      config.BasicService
	log         *zap.Logger
	serviceType string
}

// Start runs http service with the exposed endpoint on the configured port.
func (ms *Service) Start() {
	if ms.config.Enabled {
		ms.log.Info("service is running",
			zap.String("service", ms.serviceType),
			zap.String("endpoint", ms.Addr))
		err := ms.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			ms.log.Warn("service couldn't start on configured port",
				zap.String("service", ms.serviceType),
				zap.Error(err))
		}
	} else {
		ms.log.Info("service hasn't started since it's disabled",
			zap.String("service", ms.serviceType))
	}
}

// ShutDown stops the service.
func (ms *Service) ShutDown() {
	if !ms.config.Enabled {
		return
	}
	ms.log.Info("shutting down service",
		zap.String("service", ms.serviceType),
		zap.String("endpoint", ms.Addr))
	err := ms.Shutdown(context.Background())
	if err != nil {
		ms.log.Error("can't shut service down",
			zap.String("service", ms.serviceType),
			zap.Error(err))
	}
}
