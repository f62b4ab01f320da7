package update

import (
	"context"
	"os"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/deploy"
	"github.com/adamancini/hatch/internal/lock"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/updateerr"
)

// Config holds the dependencies of a Manager.
type Config struct {
	Source     Source
	Deployer   *deploy.Deployer
	Downloader *Downloader
	Locker     *lock.Locker
	Platform   Platform
	Clock      clock.Clock
	Logger     loggo.Logger
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Source == nil {
		return errors.NotValidf("nil release source")
	}
	if c.Deployer == nil {
		return errors.NotValidf("nil deployer")
	}
	if c.Deployer.Layout().Root == "" {
		return errors.NotValidf("empty install root")
	}
	return nil
}

// Manager updates one install root from one release source.
type Manager struct {
	source     Source
	deployer   *deploy.Deployer
	downloader *Downloader
	locker     *lock.Locker
	layout     deploy.Layout
	platform   Platform
	clock      clock.Clock
	logger     loggo.Logger
}

// NewManager returns a Manager for cfg. Unset optional fields get defaults.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Downloader == nil {
		cfg.Downloader = NewDownloader(cfg.Logger)
	}
	if cfg.Locker == nil {
		cfg.Locker = lock.New(lock.DefaultTimeout)
	}
	if cfg.Platform == (Platform{}) {
		cfg.Platform = Detect()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Manager{
		source:     cfg.Source,
		deployer:   cfg.Deployer,
		downloader: cfg.Downloader,
		locker:     cfg.Locker,
		layout:     cfg.Deployer.Layout(),
		platform:   cfg.Platform,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}, nil
}

// Source returns the release source the manager reads from.
func (m *Manager) Source() Source {
	return m.source
}

// RootDir returns the install root.
func (m *Manager) RootDir() string {
	return m.layout.Root
}

func (m *Manager) acquire(ctx context.Context) (*lock.Lock, error) {
	l, err := m.locker.Acquire(ctx, m.layout.Root)
	if err != nil {
		return nil, errors.Annotatef(err, "locking %s", m.layout.Root)
	}
	return l, nil
}

// CheckForUpdate compares the local manifest with the source's manifest and
// returns what has to be applied. A missing or corrupt local manifest is
// treated as a first install.
func (m *Manager) CheckForUpdate(ctx context.Context, ignoreDelta bool, progress ProgressFunc) (*UpdateInfo, error) {
	l, err := m.acquire(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer l.Release()
	return m.checkForUpdate(ctx, ignoreDelta, Monotonic(progress))
}

func (m *Manager) checkForUpdate(ctx context.Context, ignoreDelta bool, progress ProgressFunc) (*UpdateInfo, error) {
	packages := m.layout.PackagesDir()
	if err := os.MkdirAll(packages, 0755); err != nil {
		return nil, errors.Annotatef(err, "creating %s", packages)
	}
	local, initialize := release.LoadLocal(m.layout.ManifestPath())
	if initialize {
		m.logger.Infof("no usable local manifest in %s, treating as first install", packages)
	}
	stagingID, err := release.LoadOrCreateStagingID(m.layout.StagingIDPath())
	if err != nil {
		return nil, errors.Trace(err)
	}
	progress(10)

	q := ManifestQuery{StagingID: stagingID, Arch: m.platform.ReleaseArch()}
	if current := release.CurrentFull(local); current != nil {
		q.LocalVersion = current.Version.String()
	}
	text, err := m.source.FetchManifest(ctx, q)
	if err != nil {
		return nil, errors.Annotatef(err, "checking %s", m.source)
	}
	progress(50)

	remote, err := release.Parse(text)
	if err != nil {
		return nil, errors.Annotatef(updateerr.ErrCorruptRemoteManifest, "%s: %v", m.source, err)
	}
	remote = release.ApplyStaging(remote, stagingID)
	progress(80)

	info, err := DetermineUpdateInfo(local, remote, ignoreDelta, packages, m.logger)
	if err != nil {
		return nil, errors.Trace(err)
	}
	info.FreshInstall = initialize
	info.FetchedAt = m.clock.Now()
	info.StagingID = stagingID
	progress(100)
	return info, nil
}

// DownloadReleases fetches releases into the packages directory.
func (m *Manager) DownloadReleases(ctx context.Context, releases []release.Entry, progress ProgressFunc) error {
	l, err := m.acquire(ctx)
	if err != nil {
		return errors.Trace(err)
	}
	defer l.Release()
	return m.downloadReleases(ctx, releases, Monotonic(progress))
}

func (m *Manager) downloadReleases(ctx context.Context, releases []release.Entry, progress ProgressFunc) error {
	if len(releases) == 0 {
		progress(100)
		return nil
	}
	err := m.downloader.Download(ctx, m.source, releases, m.layout.PackagesDir(), progress)
	return errors.Trace(err)
}

// ApplyReleases installs info and returns the deployment result, whose
// InstalledPath is the new version directory.
func (m *Manager) ApplyReleases(ctx context.Context, info *UpdateInfo, progress ProgressFunc) (*deploy.Result, error) {
	l, err := m.acquire(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer l.Release()
	return m.applyReleases(ctx, info, Monotonic(progress))
}

func (m *Manager) applyReleases(ctx context.Context, info *UpdateInfo, progress ProgressFunc) (*deploy.Result, error) {
	if info == nil {
		return nil, errors.NotValidf("nil update info")
	}
	if err := checkReleaseKinds(info.ReleasesToApply); err != nil {
		return nil, errors.Trace(err)
	}
	result, err := m.deployer.Apply(ctx, deploy.Plan{
		Current:      info.CurrentlyInstalledVersion,
		Releases:     info.ReleasesToApply,
		FreshInstall: info.FreshInstall,
	}, progress)
	if err != nil {
		return nil, errors.Trace(err)
	}
	progress(100)
	return result, nil
}

// UpdateApp checks, downloads and applies in one locked pass. When a delta
// chain fails to download or apply, the update is retried once with full
// packages only.
func (m *Manager) UpdateApp(ctx context.Context, ignoreDelta bool, progress ProgressFunc) (*UpdateInfo, *deploy.Result, error) {
	l, err := m.acquire(ctx)
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	defer l.Release()

	progress = Monotonic(progress)
	info, result, err := m.updateApp(ctx, ignoreDelta, progress)
	if err == nil || ignoreDelta || info == nil || !info.IsDelta {
		return info, result, errors.Trace(err)
	}
	m.logger.Warningf("delta update failed, retrying with full packages: %v", err)
	info, result, err = m.updateApp(ctx, true, progress)
	return info, result, errors.Trace(err)
}

func (m *Manager) updateApp(ctx context.Context, ignoreDelta bool, progress ProgressFunc) (*UpdateInfo, *deploy.Result, error) {
	info, err := m.checkForUpdate(ctx, ignoreDelta, Scale(progress, 0, 33))
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	if err := m.downloadReleases(ctx, info.ReleasesToApply, Scale(progress, 33, 66)); err != nil {
		return info, nil, errors.Trace(err)
	}
	result, err := m.applyReleases(ctx, info, Scale(progress, 66, 100))
	if err != nil {
		return info, nil, errors.Trace(err)
	}
	return info, result, nil
}

// Uninstall removes the install root after notifying the current version.
func (m *Manager) Uninstall(ctx context.Context) (*deploy.Result, error) {
	l, err := m.acquire(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer l.Release()

	local, _ := release.LoadLocal(m.layout.ManifestPath())
	result, err := m.deployer.Uninstall(ctx, release.CurrentFull(local))
	return result, errors.Trace(err)
}

// Status describes an install root.
type Status struct {
	RootDir   string              `json:"root_dir" yaml:"root_dir"`
	Source    string              `json:"source" yaml:"source"`
	Current   string              `json:"current,omitempty" yaml:"current,omitempty"`
	StagingID string              `json:"staging_id,omitempty" yaml:"staging_id,omitempty"`
	Packages  []string            `json:"packages,omitempty" yaml:"packages,omitempty"`
	Versions  []deploy.AppDirInfo `json:"versions,omitempty" yaml:"versions,omitempty"`
	Lock      string              `json:"lock" yaml:"lock"`
}

// Status reports the install root's state without contacting the source.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	l, err := m.acquire(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer l.Release()

	st := &Status{
		RootDir: m.layout.Root,
		Source:  m.source.String(),
		Lock:    l.Name(),
	}
	local, _ := release.LoadLocal(m.layout.ManifestPath())
	if current := release.CurrentFull(local); current != nil {
		st.Current = current.Version.String()
	}
	for _, e := range local {
		st.Packages = append(st.Packages, e.Filename)
	}
	if data, err := os.ReadFile(m.layout.StagingIDPath()); err == nil {
		st.StagingID = strings.TrimSpace(string(data))
	}
	versions, err := m.deployer.InstalledVersions()
	if err != nil {
		return nil, errors.Trace(err)
	}
	st.Versions = versions
	return st, nil
}

