package delta

import (
	"io"

	update "github.com/inconshreveable/go-update"
)

// Patcher applies a binary patch to old, writing the result to new.
type Patcher interface {
	Patch(old io.Reader, new io.Writer, patch io.Reader) error
}

// BSDiff returns the general-purpose bsdiff patcher.
func BSDiff() Patcher {
	return update.NewBSDiffPatcher()
}

// Platform returns the operating system's native delta patcher, or nil when
// the platform has none. Patches it cannot apply fall back to BSDiff.
func Platform() Patcher {
	return platformPatcher()
}
