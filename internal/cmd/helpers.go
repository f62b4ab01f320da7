package cmd

import (
	"io"

	"github.com/juju/errors"

	"github.com/adamancini/hatch/internal/config"
	"github.com/adamancini/hatch/internal/delta"
	"github.com/adamancini/hatch/internal/deploy"
	"github.com/adamancini/hatch/internal/lock"
	"github.com/adamancini/hatch/internal/logging"
	"github.com/adamancini/hatch/internal/output"
	"github.com/adamancini/hatch/internal/resilient"
	"github.com/adamancini/hatch/internal/update"
)

var logger = logging.Logger("cmd")

// loadHatchfile finds and loads the Hatchfile named by the global flags,
// applies --root and reconfigures logging with its log_level.
func loadHatchfile(stderr io.Writer) (*config.Hatchfile, error) {
	path, err := config.FindHatchfile(configPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	h, err := config.Load(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if rootDir != "" {
		h.RootDir = rootDir
	}
	if h.RootDir == "" {
		return nil, errors.Errorf("no install root: set root_dir in %s or pass --root", path)
	}
	if err := configureLogging(stderr, h.LogLevel); err != nil {
		return nil, errors.Trace(err)
	}
	logger.Debugf("using %s for %s", path, h.RootDir)
	return h, nil
}

// pipeline wires the update stack for one Hatchfile.
type pipeline struct {
	hatchfile *config.Hatchfile
	resilient *resilient.Manager
}

func newPipeline(h *config.Hatchfile) (*pipeline, error) {
	p := &pipeline{hatchfile: h}
	m, err := resilient.NewManager(resilient.Config{
		Endpoints: h.Endpoints,
		Factory: func(endpoint string) (resilient.Backend, error) {
			m, err := p.manager(endpoint)
			if err != nil {
				return nil, errors.Trace(err)
			}
			return m, nil
		},
		Logger: logging.Logger("resilient"),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	p.resilient = m
	return p, nil
}

// manager builds the single-endpoint manager for endpoint.
func (p *pipeline) manager(endpoint string) (*update.Manager, error) {
	lockTimeout, err := p.hatchfile.LockTimeoutDuration()
	if err != nil {
		return nil, errors.Trace(err)
	}
	hookTimeout, err := p.hatchfile.HookTimeoutDuration()
	if err != nil {
		return nil, errors.Trace(err)
	}

	deployLogger := logging.Logger("deploy")
	deployer, err := deploy.New(deploy.Config{
		Layout: deploy.Layout{Root: p.hatchfile.RootDir},
		Engine: delta.NewEngine(logging.Logger("delta"), ""),
		Integration: &deploy.ExecIntegration{
			Executables: p.hatchfile.AwareExecutables,
			Runner:      &deploy.DefaultCommandRunner{},
			Logger:      deployLogger,
		},
		Processes:   deploy.SystemProcesses{},
		HookTimeout: hookTimeout,
		Logger:      deployLogger,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	return update.NewManager(update.Config{
		Source:   update.NewSource(endpoint, update.SourceConfig{Logger: logging.Logger("source")}),
		Deployer: deployer,
		Locker:   lock.New(lockTimeout),
		Logger:   logging.Logger("update"),
	})
}

// primary returns the manager for the first endpoint, used by operations
// that never contact a source.
func (p *pipeline) primary() (*update.Manager, error) {
	return p.manager(p.hatchfile.Endpoints[0])
}

// flushMetrics writes endpoint health to metrics_file, if one is set. A
// failure is logged and otherwise ignored.
func (p *pipeline) flushMetrics() {
	path := p.hatchfile.MetricsFile
	if path == "" {
		return
	}
	if err := p.resilient.Metrics().WriteTextfile(path); err != nil {
		logger.Warningf("writing endpoint metrics: %v", err)
	}
}

// newProgress reports percentages on stderr unless quiet or the output is
// machine readable.
func newProgress(stderr io.Writer, w *output.Writer, label string) *output.Progress {
	return output.NewProgress(stderr, label, quiet || w.Structured())
}
