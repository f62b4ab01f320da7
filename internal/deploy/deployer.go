// Package deploy installs full release packages into versioned directories
// under an install root and retires the versions they replace.
package deploy

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/archive"
	"github.com/adamancini/hatch/internal/delta"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
	"github.com/adamancini/hatch/internal/updateerr"
)

// DefaultHookTimeout bounds a single lifecycle hook invocation.
const DefaultHookTimeout = 10 * time.Second

// Config holds the dependencies of a Deployer.
type Config struct {
	Layout      Layout
	Engine      *delta.Engine
	Integration Integration
	Processes   ProcessLister
	HookTimeout time.Duration
	Logger      loggo.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Layout.Root == "" {
		return errors.NotValidf("empty install root")
	}
	if c.Engine == nil {
		return errors.NotValidf("nil delta engine")
	}
	if c.Integration == nil {
		return errors.NotValidf("nil platform integration")
	}
	if c.Processes == nil {
		return errors.NotValidf("nil process lister")
	}
	if c.HookTimeout < 0 {
		return errors.NotValidf("negative hook timeout")
	}
	return nil
}

// Deployer applies releases to an install root.
type Deployer struct {
	layout      Layout
	engine      *delta.Engine
	integration Integration
	processes   ProcessLister
	hookTimeout time.Duration
	logger      loggo.Logger
	removeAll   func(string) error
}

// New returns a Deployer for cfg.
func New(cfg Config) (*Deployer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.HookTimeout == 0 {
		cfg.HookTimeout = DefaultHookTimeout
	}
	return &Deployer{
		layout:      cfg.Layout,
		engine:      cfg.Engine,
		integration: cfg.Integration,
		processes:   cfg.Processes,
		hookTimeout: cfg.HookTimeout,
		logger:      cfg.Logger,
		removeAll:   os.RemoveAll,
	}, nil
}

// Layout returns the install root layout.
func (d *Deployer) Layout() Layout {
	return d.layout
}

// Plan is what a deployment applies.
type Plan struct {
	// Current is the installed full release, nil on first install.
	Current *release.Entry
	// Releases are ascending and either all deltas or a single full release.
	Releases []release.Entry
	// FreshInstall runs install hooks and creates shortcuts.
	FreshInstall bool
}

// Result describes a finished deployment.
type Result struct {
	InstalledPath string          `json:"installed_path" yaml:"installed_path"`
	Version       release.Version `json:"-" yaml:"-"`
	Operations    []Operation     `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// Operation records one post-install step.
type Operation struct {
	Type    string `json:"type" yaml:"type"`
	Name    string `json:"name" yaml:"name"`
	Action  string `json:"action" yaml:"action"`
	Success bool   `json:"success" yaml:"success"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *Result) record(typ, name, action string, err error) {
	op := Operation{Type: typ, Name: name, Action: action, Success: err == nil}
	if err != nil {
		op.Error = err.Error()
	}
	r.Operations = append(r.Operations, op)
}

// Apply installs plan and returns the new version directory. Reduction and
// extraction failures abort; the manifest rewrite, hooks and cleanup that
// follow a successful extraction only log their failures.
func (d *Deployer) Apply(ctx context.Context, plan Plan, progress func(int)) (*Result, error) {
	report := func(p int) {
		if progress != nil {
			progress(p)
		}
	}
	if len(plan.Releases) == 0 {
		return d.applyNothing(ctx, plan)
	}

	target := plan.Releases[len(plan.Releases)-1]
	pkg, err := d.fullPackage(plan)
	if err != nil {
		return nil, errors.Trace(err)
	}
	report(50)

	appDir := d.layout.AppDir(target.Version)
	if err := d.extract(pkg, appDir); err != nil {
		return nil, errors.Annotatef(err, "installing %s", target.Version)
	}
	report(80)
	d.logger.Infof("installed %s into %s", target.Version, appDir)

	result := &Result{InstalledPath: appDir, Version: target.Version}

	err = d.rewriteManifest(filepath.Base(pkg))
	result.record("manifest", types.ManifestFileName, "rewrite", err)
	d.bestEffort("manifest rewrite", err)

	fresh := plan.FreshInstall || plan.Current == nil
	event := types.EventUpdated
	if fresh {
		event = types.EventInstall
		err := d.integration.CreateShortcuts(appDir, target.Version)
		result.record("shortcut", appDir, "create", err)
		d.bestEffort("shortcut creation", err)
	}
	d.runHooks(ctx, result, appDir, event, target.Version)
	report(90)

	keep := []string{appDir}
	if plan.Current != nil {
		keep = append(keep, d.layout.AppDir(plan.Current.Version))
	}
	d.cleanDeadVersions(ctx, result, keep)
	report(100)

	return result, nil
}

func (d *Deployer) applyNothing(ctx context.Context, plan Plan) (*Result, error) {
	if plan.Current == nil {
		return nil, errors.NotValidf("empty plan with nothing installed")
	}
	appDir := d.layout.AppDir(plan.Current.Version)
	result := &Result{InstalledPath: appDir, Version: plan.Current.Version}
	if plan.FreshInstall {
		d.runHooks(ctx, result, appDir, types.EventInstall, plan.Current.Version)
	}
	return result, nil
}

// fullPackage resolves the plan's releases to one full package on disk.
func (d *Deployer) fullPackage(plan Plan) (string, error) {
	packages := d.layout.PackagesDir()
	first := plan.Releases[0]
	if !first.IsDelta {
		if len(plan.Releases) != 1 {
			return "", errors.Annotatef(updateerr.ErrMixedReleaseKinds, "%d releases starting with %s", len(plan.Releases), first.Filename)
		}
		return filepath.Join(packages, first.Filename), nil
	}
	if plan.Current == nil {
		return "", errors.NotValidf("delta %s with nothing installed", first.Filename)
	}
	base := filepath.Join(packages, plan.Current.Filename)
	pkg, err := d.engine.ReduceChain(base, plan.Releases, packages)
	if err != nil {
		return "", errors.Trace(err)
	}
	return pkg, nil
}

// extract replaces appDir with the content root of pkg. Any directory left by
// an earlier aborted attempt is removed first.
func (d *Deployer) extract(pkg, appDir string) error {
	staging := filepath.Join(d.layout.Root, "."+filepath.Base(appDir)+".extract")
	if err := os.RemoveAll(staging); err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if _, err := os.Stat(appDir); err == nil {
		d.logger.Warningf("removing leftover %s from an earlier attempt", appDir)
	}
	if err := os.RemoveAll(appDir); err != nil {
		return errors.Annotatef(err, "removing %s", appDir)
	}

	if err := archive.Unpack(pkg, staging); err != nil {
		return errors.Trace(err)
	}
	content := filepath.Join(staging, types.ContentRoot)
	if _, err := os.Stat(content); os.IsNotExist(err) {
		if err := os.MkdirAll(content, 0755); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Annotatef(os.Rename(content, appDir), "moving into %s", appDir)
}

// rewriteManifest prunes the packages directory down to keepPkg and rebuilds
// the local manifest from what remains.
func (d *Deployer) rewriteManifest(keepPkg string) error {
	packages := d.layout.PackagesDir()
	if err := d.prunePackages(keepPkg); err != nil {
		d.bestEffort("package pruning", err)
	}
	entries, err := release.BuildFromDirectory(packages)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(release.WriteFile(d.layout.ManifestPath(), entries))
}

func (d *Deployer) prunePackages(keepPkg string) error {
	dirEntries, err := os.ReadDir(d.layout.PackagesDir())
	if err != nil {
		return errors.Trace(err)
	}
	for _, de := range dirEntries {
		if de.IsDir() || de.Name() == keepPkg || filepath.Ext(de.Name()) != types.PackageExt {
			continue
		}
		if _, _, _, err := release.ParseFilename(de.Name()); err != nil {
			continue
		}
		d.logger.Debugf("removing package %s", de.Name())
		if err := os.Remove(filepath.Join(d.layout.PackagesDir(), de.Name())); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// runHooks notifies every aware executable in appDir of event, each bounded
// by the hook timeout.
func (d *Deployer) runHooks(ctx context.Context, result *Result, appDir string, event types.LifecycleEvent, version release.Version) {
	exes, err := d.integration.AwareExecutables(appDir)
	if err != nil {
		d.bestEffort(event.String()+" hooks", err)
		return
	}
	for _, exe := range exes {
		err := d.notify(ctx, exe, event, version)
		result.record("hook", filepath.Base(exe), event.String(), err)
		d.bestEffort(event.String()+" hook", err)
	}
}

func (d *Deployer) notify(ctx context.Context, exe string, event types.LifecycleEvent, version release.Version) error {
	ctx, cancel := context.WithTimeout(ctx, d.hookTimeout)
	defer cancel()
	d.logger.Debugf("running %s %s %s", exe, event.Flag(), version)
	return errors.Trace(d.integration.NotifyLifecycle(ctx, exe, event, version))
}

func (d *Deployer) bestEffort(step string, err error) {
	if err := updateerr.BestEffort(step, err); err != nil {
		d.logger.Warningf("%v", err)
	}
}
