package deploy

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

// Integration is the platform side of an install: lifecycle notifications to
// the application's own executables and shell shortcuts.
type Integration interface {
	// AwareExecutables returns the executables under appDir that want
	// lifecycle notifications.
	AwareExecutables(appDir string) ([]string, error)
	NotifyLifecycle(ctx context.Context, exe string, event types.LifecycleEvent, version release.Version) error
	CreateShortcuts(appDir string, version release.Version) error
	RemoveShortcuts(appDir string) error
}

// CommandRunner is an interface for running external commands.
// This allows for mocking in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// DefaultWaitDelay is how long a killed hook may keep its output pipes open.
const DefaultWaitDelay = time.Second

// DefaultCommandRunner uses os/exec to run commands.
type DefaultCommandRunner struct {
	// WaitDelay bounds the wait for I/O after ctx kills the process, so a
	// child holding the hook's output open cannot outlive the timeout.
	// Zero means DefaultWaitDelay.
	WaitDelay time.Duration
}

func (r *DefaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	//nolint:gosec // G204: executables come from the install's own configuration
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = filepath.Dir(name)
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	return cmd.CombinedOutput()
}

// ExecIntegration notifies the configured executables by running
// "<exe> --hatch-<event> <version>". It does not manage shortcuts.
type ExecIntegration struct {
	// Executables are paths relative to the version directory.
	Executables []string
	Runner      CommandRunner
	Logger      loggo.Logger
}

// AwareExecutables returns the configured executables that exist in appDir.
func (i *ExecIntegration) AwareExecutables(appDir string) ([]string, error) {
	var out []string
	for _, name := range i.Executables {
		p := filepath.Join(appDir, filepath.FromSlash(name))
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// NotifyLifecycle runs exe with the flag for event and the version.
func (i *ExecIntegration) NotifyLifecycle(ctx context.Context, exe string, event types.LifecycleEvent, version release.Version) error {
	runner := i.Runner
	if runner == nil {
		runner = &DefaultCommandRunner{}
	}
	output, err := runner.Run(ctx, exe, event.Flag(), version.String())
	if err != nil {
		if ctx.Err() != nil {
			return errors.Annotatef(ctx.Err(), "%s %s", filepath.Base(exe), event.Flag())
		}
		return errors.Annotatef(err, "%s %s: %s", filepath.Base(exe), event.Flag(), strings.TrimSpace(string(output)))
	}
	return nil
}

// CreateShortcuts is a no-op; shortcut management belongs to the host shell.
func (i *ExecIntegration) CreateShortcuts(appDir string, version release.Version) error {
	i.Logger.Debugf("no shortcut integration for %s (%s)", appDir, version)
	return nil
}

// RemoveShortcuts is a no-op; shortcut management belongs to the host shell.
func (i *ExecIntegration) RemoveShortcuts(appDir string) error {
	i.Logger.Debugf("no shortcut integration for %s", appDir)
	return nil
}
