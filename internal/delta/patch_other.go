//go:build !windows

package delta

func platformPatcher() Patcher {
	return nil
}
