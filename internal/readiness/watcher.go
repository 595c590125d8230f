package readiness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTimeout  = 2 * time.Second
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

type Check struct {
	Name string
	Ping PingFunc
}

// StatusSetter is satisfied by *health.Server.
type StatusSetter interface {
	SetServingStatus(service string, status grpc_health_v1.HealthCheckResponse_ServingStatus)
}

// Watcher pings the service's storage dependencies and mirrors the result
// into the gRPC health status: SERVING only while every check passes.
type Watcher struct {
	checks   []Check
	status   StatusSetter
	service  string
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func NewWatcher(status StatusSetter, service string, checks []Check, log *zap.Logger) *Watcher {
	return &Watcher{
		checks:   checks,
		status:   status,
		service:  service,
		interval: DefaultInterval,
		timeout:  DefaultTimeout,
		logger:   log,
	}
}

// Check runs every ping once and joins the failures.
func (w *Watcher) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var errs []error
	for _, c := range w.checks {
		if err := c.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Run updates the health status every interval until ctx is done, then
// marks the service NOT_SERVING.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	ready := w.update(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			w.status.SetServingStatus(w.service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
			return
		case <-ticker.C:
			ready = w.update(ctx, &ready)
		}
	}
}

func (w *Watcher) update(ctx context.Context, prev *bool) bool {
	err := w.Check(ctx)
	if ctx.Err() != nil {
		if prev != nil {
			return *prev
		}
		return false
	}
	ready := err == nil

	if ready {
		w.status.SetServingStatus(w.service, grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		w.status.SetServingStatus(w.service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	switch {
	case prev != nil && *prev == ready:
	case ready:
		w.logger.Info("dependencies reachable, serving")
	default:
		w.logger.Warn("dependency check failed, not serving", zap.Error(err))
	}
	return ready
}
