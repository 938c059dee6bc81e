//go:build unix

package analyzer

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive blocks until an exclusive flock is held on f. Transient
// failures are retried without timeout.
func lockExclusive(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.ENOLCK) {
			continue
		}
		return fmt.Errorf("%w: '%s': %w", ErrLockFailed, f.Name(), err)
	}
}

func unlock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("%w: unlocking '%s': %w", ErrLockFailed, f.Name(), err)
	}
	return nil
}
