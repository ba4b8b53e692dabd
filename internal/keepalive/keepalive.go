// Package keepalive pings the backend on a fixed cadence so hosted backends
// that sleep when idle stay warm while the client runs.
package keepalive

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval matches the hosted backend's idle timeout with margin.
const DefaultInterval = 10 * time.Minute

// Backend is pinged on every tick.
type Backend interface {
	Ping(ctx context.Context) error
}

// Pinger runs the keep-alive loop.
type Pinger struct {
	backend  Backend
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// New builds a Pinger. A non-positive interval uses DefaultInterval.
func New(backend Backend, interval time.Duration, logger *zap.Logger) (*Pinger, error) {
	if backend == nil {
		return nil, errors.New("keepalive backend is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := 30 * time.Second
	if interval < timeout {
		timeout = interval
	}
	return &Pinger{backend: backend, interval: interval, timeout: timeout, logger: logger.Named("keepalive")}, nil
}

// Run pings immediately and then every interval until ctx ends. Ping
// failures are logged and never stop the loop.
func (p *Pinger) Run(ctx context.Context) {
	p.ping(ctx)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ping(ctx)
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.backend.Ping(pingCtx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("keepalive ping failed", zap.Error(err))
		return
	}
	p.logger.Debug("keepalive ping ok")
}
