//go:build !linux && !windows

package process

import "github.com/pkg/errors"

// Open attaches to the process with the given PID.
func Open(pid int32) (Process, error) {
	return nil, errors.Wrapf(ErrUnsupportedPlatform, "pid %d", pid)
}
