package trashdb

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/trashdb/engine"
)

func TestErrorIs(t *testing.T) {
	err := errorf(ErrTxnFull, "%d databases", 3)
	require.ErrorIs(t, err, ErrTxnFullError)
	require.NotErrorIs(t, err, ErrFatalError)
	require.Equal(t, "trashdb: transaction database capacity reached: 3 databases", err.Error())

	wrapped := errors.Wrap(err, "attach")
	require.ErrorIs(t, wrapped, ErrTxnFullError)
	require.Equal(t, ErrTxnFull, Code(wrapped))
}

func TestWrapEngine(t *testing.T) {
	require.NoError(t, wrapEngine(nil))
	require.True(t, IsNotFound(wrapEngine(engine.ErrNotFound)))
	require.ErrorIs(t, wrapEngine(engine.ErrKeyExist), ErrKeyExistError)

	err := wrapEngine(engine.ErrDBsFull)
	require.Equal(t, ErrEngine, Code(err))
	require.ErrorIs(t, err, engine.ErrDBsFull)
}

func TestCode(t *testing.T) {
	require.Equal(t, Success, Code(nil))
	require.Equal(t, ErrEngine, Code(errors.New("disk on fire")))
	require.Equal(t, ErrFatal, Code(WrapError(ErrFatal, engine.ErrBadTxn)))
	require.True(t, IsFatal(WrapError(ErrFatal, engine.ErrBadTxn)))
	require.Contains(t, NewError(ErrorCode(99)).Error(), "unknown error code 99")
}
