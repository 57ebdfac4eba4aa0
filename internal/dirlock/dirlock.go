// Package dirlock holds an exclusive advisory lock on an environment
// directory so two processes never run the pooling layer over the same data.
package dirlock

import (
	"os"
	"path/filepath"
)

// FileName is the lock file created inside the locked directory.
const FileName = "trash.lck"

// Lock is an acquired directory lock.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the exclusive lock on dir without blocking. It fails with
// ErrLocked if another holder has it.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &lockError{"open " + path, err}
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}
	return &Lock{file: f, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release drops the lock and closes the file. Calling it twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlock(l.file)
	if cerr := l.file.Close(); err == nil && cerr != nil {
		err = &lockError{"close", cerr}
	}
	l.file = nil
	return err
}

// ErrLocked is returned by Acquire when the directory is held elsewhere.
var ErrLocked = &lockError{"directory is locked by another process", nil}

type lockError struct {
	op  string
	err error
}

func (e *lockError) Error() string {
	if e.err != nil {
		return "dirlock: " + e.op + ": " + e.err.Error()
	}
	return "dirlock: " + e.op
}

func (e *lockError) Unwrap() error {
	return e.err
}
