package update

import (
	"runtime"
)

// Platform describes the system an install root runs on.
type Platform struct {
	OS   string
	Arch string
}

// Detect returns the current platform.
func Detect() Platform {
	return Platform{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}
}

// ReleaseArch returns the architecture name sent to release servers, which
// use the x86/x64 spelling.
func (p Platform) ReleaseArch() string {
	switch p.Arch {
	case "amd64":
		return "x64"
	case "386":
		return "x86"
	default:
		return p.Arch
	}
}
