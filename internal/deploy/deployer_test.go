package deploy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/adamancini/hatch/internal/archive"
	"github.com/adamancini/hatch/internal/delta"
	"github.com/adamancini/hatch/internal/release"
	"github.com/adamancini/hatch/internal/types"
)

var testLogger = loggo.GetLogger("hatch.deploy.test")

type hookCall struct {
	exe     string
	event   types.LifecycleEvent
	version string
}

type fakeIntegration struct {
	mu        sync.Mutex
	calls     []hookCall
	shortcuts []string
	block     bool
}

func (f *fakeIntegration) AwareExecutables(appDir string) ([]string, error) {
	exe := filepath.Join(appDir, "app.exe")
	if _, err := os.Stat(exe); err != nil {
		return nil, nil
	}
	return []string{exe}, nil
}

func (f *fakeIntegration) NotifyLifecycle(ctx context.Context, exe string, event types.LifecycleEvent, version release.Version) error {
	f.mu.Lock()
	f.calls = append(f.calls, hookCall{exe: exe, event: event, version: version.String()})
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeIntegration) CreateShortcuts(appDir string, _ release.Version) error {
	f.shortcuts = append(f.shortcuts, "create "+filepath.Base(appDir))
	return nil
}

func (f *fakeIntegration) RemoveShortcuts(appDir string) error {
	f.shortcuts = append(f.shortcuts, "remove "+filepath.Base(appDir))
	return nil
}

func (f *fakeIntegration) events(event types.LifecycleEvent) []hookCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hookCall
	for _, c := range f.calls {
		if c.event == event {
			out = append(out, c)
		}
	}
	return out
}

type fakeProcesses struct {
	running []string
	err     error
}

func (f *fakeProcesses) RunningExecutables(context.Context) ([]string, error) {
	return f.running, f.err
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func buildPackage(t *testing.T, dest string, files map[string]string) release.Entry {
	t.Helper()
	src := t.TempDir()
	writeTree(t, src, files)
	if err := archive.Pack(src, dest); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	e, err := release.GenerateFromFile(dest)
	if err != nil {
		t.Fatalf("GenerateFromFile() error = %v", err)
	}
	return e
}

func newTestDeployer(t *testing.T, root string, integration *fakeIntegration, procs *fakeProcesses) *Deployer {
	t.Helper()
	d, err := New(Config{
		Layout:      Layout{Root: root},
		Engine:      delta.NewEngine(testLogger, t.TempDir()),
		Integration: integration,
		Processes:   procs,
		HookTimeout: time.Second,
		Logger:      testLogger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestApplyFullRelease(t *testing.T) {
	root := t.TempDir()
	layout := Layout{Root: root}
	current := buildPackage(t, filepath.Join(layout.PackagesDir(), "myapp-1.0.0-full.zip"),
		map[string]string{"lib/app.exe": "v1", "myapp.nuspec": "1.0.0"})
	next := buildPackage(t, filepath.Join(layout.PackagesDir(), "myapp-1.1.0-full.zip"),
		map[string]string{"lib/app.exe": "v2", "lib/data/readme.txt": "hello", "myapp.nuspec": "1.1.0"})

	writeTree(t, root, map[string]string{
		"app-1.0.0/app.exe":  "v1",
		"app-0.9.0/app.exe":  "v0.9",
		"app-0.8.0/app.exe":  "v0.8",
		"app-0.7.0/app.exe":  "v0.7",
		"app-0.7.0/.dead":    "",
		"app-bogus/file.txt": "not a version",
	})

	integration := &fakeIntegration{}
	procs := &fakeProcesses{running: []string{filepath.Join(root, "app-0.8.0", "app.exe"), "/usr/bin/other"}}
	d := newTestDeployer(t, root, integration, procs)

	var progress []int
	result, err := d.Apply(context.Background(), Plan{Current: &current, Releases: []release.Entry{next}},
		func(p int) { progress = append(progress, p) })
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	wantDir := filepath.Join(root, "app-1.1.0")
	if result.InstalledPath != wantDir {
		t.Errorf("InstalledPath = %s, want %s", result.InstalledPath, wantDir)
	}
	data, err := os.ReadFile(filepath.Join(wantDir, "app.exe"))
	if err != nil || string(data) != "v2" {
		t.Errorf("app.exe = %q, %v", data, err)
	}
	if !fileExists(filepath.Join(wantDir, "data", "readme.txt")) {
		t.Error("nested content missing")
	}
	if fileExists(filepath.Join(wantDir, "myapp.nuspec")) {
		t.Error("package metadata should not be installed")
	}

	// Previous version kept, running one skipped, dead one untouched, others removed.
	if !fileExists(filepath.Join(root, "app-1.0.0")) {
		t.Error("previous version should be kept")
	}
	if fileExists(filepath.Join(root, "app-0.9.0")) {
		t.Error("app-0.9.0 should be removed")
	}
	if !fileExists(filepath.Join(root, "app-0.8.0")) {
		t.Error("app-0.8.0 hosts a running process and must not be deleted")
	}
	if !fileExists(filepath.Join(root, "app-0.7.0")) {
		t.Error("dead-marked app-0.7.0 should be left alone")
	}
	if !fileExists(filepath.Join(root, "app-bogus")) {
		t.Error("non-version directories should be ignored")
	}

	entries, init := release.LoadLocal(layout.ManifestPath())
	if init || len(entries) != 1 || entries[0].Filename != "myapp-1.1.0-full.zip" {
		t.Errorf("local manifest = %+v (init %v)", entries, init)
	}
	if fileExists(filepath.Join(layout.PackagesDir(), "myapp-1.0.0-full.zip")) {
		t.Error("superseded package should be pruned")
	}

	updated := integration.events(types.EventUpdated)
	if len(updated) != 1 || updated[0].version != "1.1.0" {
		t.Errorf("updated hooks = %+v", updated)
	}
	obsolete := integration.events(types.EventObsolete)
	if len(obsolete) != 2 {
		t.Errorf("obsolete hooks = %+v, want app-0.8.0 and app-0.9.0", obsolete)
	}
	for _, c := range obsolete {
		if strings.Contains(c.exe, "app-0.7.0") {
			t.Error("dead directory must not receive hooks")
		}
	}
	if len(integration.shortcuts) != 0 {
		t.Errorf("updates should not touch shortcuts: %v", integration.shortcuts)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Errorf("progress = %v", progress)
	}
}

func TestApplyAfterCrashReextracts(t *testing.T) {
	root := t.TempDir()
	layout := Layout{Root: root}
	next := buildPackage(t, filepath.Join(layout.PackagesDir(), "myapp-1.1.0-full.zip"),
		map[string]string{"lib/app.exe": "v2", "lib/config.json": "{}"})

	// An aborted attempt left a half-written directory behind.
	writeTree(t, root, map[string]string{
		"app-1.1.0/app.exe":      "trunc",
		"app-1.1.0/leftover.tmp": "junk",
	})

	integration := &fakeIntegration{}
	d := newTestDeployer(t, root, integration, &fakeProcesses{})
	result, err := d.Apply(context.Background(), Plan{Releases: []release.Entry{next}}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got, err := archive.Files(result.InstalledPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "app.exe,config.json" {
		t.Errorf("installed files = %v", got)
	}
	data, _ := os.ReadFile(filepath.Join(result.InstalledPath, "app.exe"))
	if string(data) != "v2" {
		t.Errorf("app.exe = %q", data)
	}

	if len(integration.events(types.EventInstall)) != 1 {
		t.Errorf("first install should run install hooks: %+v", integration.calls)
	}
	if len(integration.shortcuts) != 1 || integration.shortcuts[0] != "create app-1.1.0" {
		t.Errorf("shortcuts = %v", integration.shortcuts)
	}
}

func TestApplyDeltaChain(t *testing.T) {
	root := t.TempDir()
	layout := Layout{Root: root}
	packages := layout.PackagesDir()
	ref := t.TempDir()

	current := buildPackage(t, filepath.Join(packages, "myapp-1.0.0-full.zip"),
		map[string]string{"lib/app.exe": strings.Repeat("one ", 100), "lib/gone.txt": "x"})
	buildPackage(t, filepath.Join(ref, "myapp-1.1.0-full.zip"),
		map[string]string{"lib/app.exe": strings.Repeat("two ", 100), "lib/new.txt": "y"})

	engine := delta.NewEngine(testLogger, "")
	deltaPath := filepath.Join(packages, "myapp-1.1.0-delta.zip")
	if err := engine.CreateDelta(filepath.Join(packages, current.Filename), filepath.Join(ref, "myapp-1.1.0-full.zip"), deltaPath); err != nil {
		t.Fatal(err)
	}
	d1, err := release.GenerateFromFile(deltaPath)
	if err != nil {
		t.Fatal(err)
	}

	d := newTestDeployer(t, root, &fakeIntegration{}, &fakeProcesses{})
	result, err := d.Apply(context.Background(), Plan{Current: &current, Releases: []release.Entry{d1}}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	got, _ := archive.Files(result.InstalledPath)
	if strings.Join(got, ",") != "app.exe,new.txt" {
		t.Errorf("installed files = %v", got)
	}

	entries, _ := release.LoadLocal(layout.ManifestPath())
	if len(entries) != 1 || entries[0].Filename != "myapp-1.1.0-full.zip" || entries[0].IsDelta {
		t.Errorf("local manifest = %+v", entries)
	}
}

func TestApplyEmptyPlan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app-1.0.0/app.exe": "v1"})
	current := release.Entry{Version: release.MustParseVersion("1.0.0"), Filename: "myapp-1.0.0-full.zip"}

	integration := &fakeIntegration{}
	d := newTestDeployer(t, root, integration, &fakeProcesses{})

	result, err := d.Apply(context.Background(), Plan{Current: &current}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if result.InstalledPath != filepath.Join(root, "app-1.0.0") || len(integration.calls) != 0 {
		t.Errorf("Apply() = %+v, hooks %+v", result, integration.calls)
	}

	if _, err := d.Apply(context.Background(), Plan{Current: &current, FreshInstall: true}, nil); err != nil {
		t.Fatal(err)
	}
	if len(integration.events(types.EventInstall)) != 1 {
		t.Errorf("fresh install should run install hooks: %+v", integration.calls)
	}

	if _, err := d.Apply(context.Background(), Plan{}, nil); !errors.Is(err, errors.NotValid) {
		t.Errorf("Apply(empty, nothing installed) error = %v", err)
	}
}

func TestApplyMissingPackageIsFatal(t *testing.T) {
	root := t.TempDir()
	d := newTestDeployer(t, root, &fakeIntegration{}, &fakeProcesses{})
	missing := release.Entry{Version: release.MustParseVersion("2.0.0"), Filename: "myapp-2.0.0-full.zip"}
	if _, err := d.Apply(context.Background(), Plan{Releases: []release.Entry{missing}}, nil); err == nil {
		t.Fatal("Apply() should fail when the package is missing")
	}
	if fileExists(filepath.Join(root, "app-2.0.0")) {
		t.Error("no version directory should be created")
	}
}

func TestHookTimeoutIsNotFatal(t *testing.T) {
	root := t.TempDir()
	layout := Layout{Root: root}
	next := buildPackage(t, filepath.Join(layout.PackagesDir(), "myapp-1.1.0-full.zip"),
		map[string]string{"lib/app.exe": "v2"})

	integration := &fakeIntegration{block: true}
	d := newTestDeployer(t, root, integration, &fakeProcesses{})
	d.hookTimeout = 20 * time.Millisecond

	start := time.Now()
	result, err := d.Apply(context.Background(), Plan{Releases: []release.Entry{next}}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("hook timeout was not enforced")
	}
	var failed bool
	for _, op := range result.Operations {
		if op.Type == "hook" && !op.Success {
			failed = true
		}
	}
	if !failed {
		t.Errorf("expected a failed hook operation in %+v", result.Operations)
	}
}

func TestCleanupSkipsWhenProcessListFails(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app-0.9.0/app.exe": "old", "app-1.0.0/app.exe": "cur"})
	d := newTestDeployer(t, root, &fakeIntegration{}, &fakeProcesses{err: errors.New("access denied")})

	result, err := d.CleanDeadVersions(context.Background(), filepath.Join(root, "app-1.0.0"))
	if err == nil {
		t.Fatal("CleanDeadVersions() should report the process listing failure")
	}
	if len(result.Skipped) != 1 || !fileExists(filepath.Join(root, "app-0.9.0")) {
		t.Errorf("result = %+v", result)
	}
}

func TestCleanupMarksUndeletableVersionDead(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"app-0.9.0/app.exe": "old", "app-1.0.0/app.exe": "cur"})
	integration := &fakeIntegration{}
	d := newTestDeployer(t, root, integration, &fakeProcesses{})
	var removed []string
	d.removeAll = func(path string) error {
		removed = append(removed, path)
		return errors.New("file in use")
	}
	old := filepath.Join(root, "app-0.9.0")
	keep := filepath.Join(root, "app-1.0.0")

	result, err := d.CleanDeadVersions(context.Background(), keep)
	if err != nil {
		t.Fatalf("CleanDeadVersions() error = %v", err)
	}
	if len(result.Marked) != 1 || result.Marked[0] != old || len(result.Deleted) != 0 {
		t.Errorf("result = %+v", result)
	}
	if !IsDead(old) {
		t.Error("undeletable version should carry the dead marker")
	}
	if len(integration.events(types.EventObsolete)) != 1 {
		t.Errorf("obsolete hooks = %+v", integration.calls)
	}

	result, err = d.CleanDeadVersions(context.Background(), keep)
	if err != nil {
		t.Fatalf("second CleanDeadVersions() error = %v", err)
	}
	if len(result.Marked)+len(result.Deleted)+len(result.Skipped) != 0 {
		t.Errorf("second pass result = %+v", result)
	}
	if len(removed) != 1 {
		t.Errorf("removal attempts = %v, want one", removed)
	}
	if len(integration.events(types.EventObsolete)) != 1 {
		t.Errorf("dead version should not get hooks again: %+v", integration.calls)
	}
}

func TestUninstall(t *testing.T) {
	root := filepath.Join(t.TempDir(), "myapp")
	writeTree(t, root, map[string]string{
		"app-1.0.0/app.exe":        "v1",
		"packages/RELEASES":        "x",
		"packages/myapp-1.0.0.zip": "x",
	})
	current := release.Entry{Version: release.MustParseVersion("1.0.0")}
	integration := &fakeIntegration{}
	d := newTestDeployer(t, root, integration, &fakeProcesses{})

	if _, err := d.Uninstall(context.Background(), &current); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if fileExists(root) {
		t.Error("install root should be removed")
	}
	if len(integration.events(types.EventUninstall)) != 1 {
		t.Errorf("uninstall hooks = %+v", integration.calls)
	}
	if len(integration.shortcuts) != 1 || integration.shortcuts[0] != "remove app-1.0.0" {
		t.Errorf("shortcuts = %v", integration.shortcuts)
	}
}

func TestPathUnder(t *testing.T) {
	tests := []struct {
		path string
		dir  string
		want bool
	}{
		{"/opt/app/app-1.0.0/app.exe", "/opt/app/app-1.0.0", true},
		{"/opt/app/app-1.0.0/bin/x", "/opt/app/app-1.0.0", true},
		{"/opt/app/app-1.0.0", "/opt/app/app-1.0.0", true},
		{"/opt/app/app-1.0.01/app.exe", "/opt/app/app-1.0.0", false},
		{"/opt/app/Update.exe", "/opt/app/app-1.0.0", false},
		{"/opt/app/app-1.0.0/../x", "/opt/app/app-1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			p := filepath.FromSlash(tt.path)
			dir := filepath.FromSlash(tt.dir)
			if got := pathUnder(p, dir); got != tt.want {
				t.Errorf("pathUnder(%s, %s) = %v, want %v", p, dir, got, tt.want)
			}
		})
	}
}

func TestLayoutAppDirs(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app-1.10.0/a":    "",
		"app-1.9.0/a":     "",
		"app-1.9.0/.dead": "",
		"packages/x":      "",
	})

	dirs, err := Layout{Root: root}.AppDirs()
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 2 {
		t.Fatalf("AppDirs() = %+v", dirs)
	}
	if dirs[0].Version.String() != "1.9.0" || !dirs[0].Dead {
		t.Errorf("dirs[0] = %+v", dirs[0])
	}
	if dirs[1].Version.String() != "1.10.0" || dirs[1].Dead {
		t.Errorf("dirs[1] = %+v", dirs[1])
	}

	missing, err := Layout{Root: filepath.Join(root, "nope")}.AppDirs()
	if err != nil || missing != nil {
		t.Errorf("AppDirs(missing) = %v, %v", missing, err)
	}
}
