package connection

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mongoconn/internal/common"
)

var ErrHealthcheckFailed = errors.New("mongo healthcheck failed")

// Healthcheck returns a check that pings every node of the established
// topology. It never builds a topology; before the first successful
// connection it reports a *common.ConnectionError.
func Healthcheck(m *Manager) func(context.Context) error {
	return func(ctx context.Context) error {
		topo := m.established()
		if topo == nil {
			return &common.ConnectionError{Reason: common.ReasonNotConnected}
		}
		if err := topo.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}

// Watch runs the health check every interval until ctx is done.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	check := Healthcheck(m)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			err := check(checkCtx)
			cancel()

			m.metrics.ObserveHealthCheck(err)
			if err != nil {
				m.logger.Error("database health check failed", zap.Error(err))
				continue
			}
			m.logger.Debug("database health check passed")
		}
	}
}
