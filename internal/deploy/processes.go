package deploy

import (
	"context"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/juju/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// ProcessLister reports the executable paths of running processes.
type ProcessLister interface {
	RunningExecutables(ctx context.Context) ([]string, error)
}

// SystemProcesses lists processes through the operating system.
type SystemProcesses struct{}

// RunningExecutables returns the executable path of every process whose
// path can be read. Processes owned by other users are typically skipped.
func (SystemProcesses) RunningExecutables(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Annotate(err, "listing processes")
	}
	var out []string
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		out = append(out, exe)
	}
	return out, nil
}

// pathUnder reports whether p is dir or lies beneath it.
func pathUnder(p, dir string) bool {
	p, dir = filepath.Clean(p), filepath.Clean(dir)
	if runtime.GOOS == "windows" {
		p, dir = strings.ToLower(p), strings.ToLower(dir)
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// anyUnder reports whether any of paths lies beneath dir.
func anyUnder(paths []string, dir string) bool {
	for _, p := range paths {
		if pathUnder(p, dir) {
			return true
		}
	}
	return false
}
