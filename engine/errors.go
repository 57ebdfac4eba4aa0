package engine

import (
	"github.com/pkg/errors"
)

// Engine errors. Backends translate their native errors into these so the
// pooling layer can tell "not found" apart from real failures.
var (
	ErrNotFound     = errors.New("engine: key/data pair not found")
	ErrKeyExist     = errors.New("engine: key/data pair already exists")
	ErrReadersFull  = errors.New("engine: maxreaders limit reached")
	ErrDBsFull      = errors.New("engine: maxdbs limit reached")
	ErrBadTxn       = errors.New("engine: transaction is not usable")
	ErrIncompatible = errors.New("engine: incompatible operation or flags")
	ErrUnknownKind  = errors.New("engine: unknown engine kind")
)

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
