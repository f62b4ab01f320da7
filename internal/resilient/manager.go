// Package resilient spreads update operations over several release endpoints,
// falling back from one to the next until one succeeds.
package resilient

import (
	"context"
	"sort"
	"sync"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/deploy"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/update"
	"github.com/adamancini/hatch/internal/updateerr"
)

// Backend is the update pipeline bound to a single endpoint.
// *update.Manager implements it.
type Backend interface {
	CheckForUpdate(ctx context.Context, ignoreDelta bool, progress update.ProgressFunc) (*update.UpdateInfo, error)
	DownloadReleases(ctx context.Context, releases []release.Entry, progress update.ProgressFunc) error
	ApplyReleases(ctx context.Context, info *update.UpdateInfo, progress update.ProgressFunc) (*deploy.Result, error)
	UpdateApp(ctx context.Context, ignoreDelta bool, progress update.ProgressFunc) (*update.UpdateInfo, *deploy.Result, error)
}

// Factory builds the backend for one endpoint.
type Factory func(endpoint string) (Backend, error)

// Health is the last known state of an endpoint.
type Health int

const (
	// Unknown means the endpoint has not been tried yet.
	Unknown Health = iota
	// Alive means the last operation against the endpoint succeeded.
	Alive
	// Broken means the last operation against the endpoint failed.
	Broken
)

// String returns the string representation of a Health.
func (h Health) String() string {
	switch h {
	case Alive:
		return "alive"
	case Broken:
		return "broken"
	default:
		return "unknown"
	}
}

// Config holds the configuration for a Manager.
type Config struct {
	Endpoints []string
	Factory   Factory
	Metrics   *Collector
	Logger    loggo.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.NotValidf("empty endpoint list")
	}
	seen := make(map[string]bool, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep == "" {
			return errors.NotValidf("empty endpoint")
		}
		if seen[ep] {
			return errors.NotValidf("duplicate endpoint %q", ep)
		}
		seen[ep] = true
	}
	if c.Factory == nil {
		return errors.NotValidf("nil backend factory")
	}
	return nil
}

// Manager runs each operation against its endpoints in turn. Endpoints that
// failed last time are tried after the others but are never skipped.
type Manager struct {
	mu        sync.Mutex
	endpoints []string
	health    map[string]Health
	factory   Factory
	metrics   *Collector
	logger    loggo.Logger
}

// NewManager returns a Manager for cfg.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetricsCollector()
	}
	return &Manager{
		endpoints: append([]string(nil), cfg.Endpoints...),
		health:    make(map[string]Health, len(cfg.Endpoints)),
		factory:   cfg.Factory,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}, nil
}

// Metrics returns the endpoint health collector.
func (m *Manager) Metrics() *Collector {
	return m.metrics
}

// Health returns the last known state of endpoint.
func (m *Manager) Health(endpoint string) Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health[endpoint]
}

// order returns the endpoints to try: healthy and untried ones first, then
// broken ones, each group in configured order. Callers hold mu.
func (m *Manager) order() []string {
	out := append([]string(nil), m.endpoints...)
	sort.SliceStable(out, func(i, j int) bool {
		return m.health[out[i]] != Broken && m.health[out[j]] == Broken
	})
	return out
}

// call runs fn against each endpoint until one succeeds.
func call[T any](ctx context.Context, m *Manager, op string, fn func(Backend) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	failed := &updateerr.AllEndpointsFailedError{}
	for _, endpoint := range m.order() {
		if err := ctx.Err(); err != nil {
			return zero, errors.Trace(err)
		}
		result, err := try(m, endpoint, fn)
		if err == nil {
			if m.health[endpoint] != Alive {
				m.logger.Debugf("%s: endpoint %s is alive", op, endpoint)
			}
			m.health[endpoint] = Alive
			m.metrics.alive(endpoint)
			return result, nil
		}
		m.logger.Warningf("%s: endpoint %s failed: %v", op, endpoint, err)
		m.health[endpoint] = Broken
		m.metrics.broken(endpoint)
		failed.Failures = append(failed.Failures, updateerr.EndpointFailure{Endpoint: endpoint, Err: err})
	}
	return zero, failed
}

func try[T any](m *Manager, endpoint string, fn func(Backend) (T, error)) (T, error) {
	var zero T
	backend, err := m.factory(endpoint)
	if err != nil {
		return zero, errors.Annotatef(err, "creating backend for %s", endpoint)
	}
	return fn(backend)
}

// CheckForUpdate checks the first endpoint that answers.
func (m *Manager) CheckForUpdate(ctx context.Context, ignoreDelta bool, progress update.ProgressFunc) (*update.UpdateInfo, error) {
	return call(ctx, m, "check", func(b Backend) (*update.UpdateInfo, error) {
		return b.CheckForUpdate(ctx, ignoreDelta, progress)
	})
}

// DownloadReleases downloads from the first endpoint that serves every release.
func (m *Manager) DownloadReleases(ctx context.Context, releases []release.Entry, progress update.ProgressFunc) error {
	_, err := call(ctx, m, "download", func(b Backend) (struct{}, error) {
		return struct{}{}, b.DownloadReleases(ctx, releases, progress)
	})
	return err
}

// ApplyReleases applies info through the first backend that succeeds.
func (m *Manager) ApplyReleases(ctx context.Context, info *update.UpdateInfo, progress update.ProgressFunc) (*deploy.Result, error) {
	return call(ctx, m, "apply", func(b Backend) (*deploy.Result, error) {
		return b.ApplyReleases(ctx, info, progress)
	})
}

type updateResult struct {
	info   *update.UpdateInfo
	result *deploy.Result
}

// UpdateApp runs the whole pipeline against the first endpoint that succeeds.
func (m *Manager) UpdateApp(ctx context.Context, ignoreDelta bool, progress update.ProgressFunc) (*update.UpdateInfo, *deploy.Result, error) {
	r, err := call(ctx, m, "update", func(b Backend) (updateResult, error) {
		info, result, err := b.UpdateApp(ctx, ignoreDelta, progress)
		return updateResult{info: info, result: result}, err
	})
	return r.info, r.result, err
}
