//go:build windows

package dirlock

import (
	"os"

	"golang.org/x/sys/windows"
)

func tryLock(f *os.File) error {
	var overlapped windows.Overlapped
	err := windows.LockFileEx(windows.Handle(f.Fd()), windows.LOCKFILE_EXCLUSIVE_LOCK|windows.LOCKFILE_FAIL_IMMEDIATELY, 0, 1, 0, &overlapped)
	if err != nil {
		if err == windows.ERROR_LOCK_VIOLATION {
			return ErrLocked
		}
		return &lockError{"acquire", err}
	}
	return nil
}

func unlock(f *os.File) error {
	var overlapped windows.Overlapped
	if err := windows.UnlockFileEx(windows.Handle(f.Fd()), 0, 1, 0, &overlapped); err != nil {
		return &lockError{"release", err}
	}
	return nil
}
