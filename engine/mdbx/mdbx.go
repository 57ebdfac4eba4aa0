// Package mdbx implements the engine interfaces on top of libmdbx through
// github.com/erigontech/mdbx-go.
package mdbx

import (
	"os"
	"runtime"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	"github.com/ledgerwatch/log/v3"
	"github.com/pkg/errors"

	"github.com/Giulio2002/trashdb/engine"
)

// Label identifies trashdb environments in libmdbx diagnostics.
const Label = mdbxgo.Label("trashdb")

type env struct {
	env    *mdbxgo.Env
	logger log.Logger
}

// Open creates an MDBX environment in cfg.Path with the configured limits.
//
// Environments are opened with NoTLS so read transactions and their reader
// slots are not tied to OS threads; pooled read transactions migrate between
// goroutines freely. Write transactions still lock the calling goroutine to
// its thread until Commit or Abort.
func Open(cfg engine.Config, logger log.Logger) (engine.Env, error) {
	e, err := mdbxgo.NewEnv(Label)
	if err != nil {
		return nil, errors.Wrap(err, "mdbx: create env")
	}
	if err := e.SetOption(mdbxgo.OptMaxDB, cfg.MaxDBs); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "mdbx: set maxdbs")
	}
	if err := e.SetOption(mdbxgo.OptMaxReaders, cfg.MaxReaders); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "mdbx: set maxreaders")
	}
	if err := e.SetGeometry(-1, -1, int(cfg.MapSize.Bytes()), -1, -1, -1); err != nil {
		e.Close()
		return nil, errors.Wrap(err, "mdbx: set geometry")
	}

	flags := uint(mdbxgo.NoTLS | mdbxgo.NoMetaSync)
	if cfg.NoSync {
		flags |= uint(mdbxgo.SafeNoSync)
	}
	mode := os.FileMode(cfg.Mode)
	if mode == 0 {
		mode = 0664
	}
	if err := e.Open(cfg.Path, flags, mode); err != nil {
		e.Close()
		return nil, errors.Wrapf(err, "mdbx: open %s", cfg.Path)
	}

	logger.Debug("mdbx environment opened", "path", cfg.Path, "mapsize", cfg.MapSize, "maxdbs", cfg.MaxDBs, "maxreaders", cfg.MaxReaders)
	return &env{env: e, logger: logger}, nil
}

func (e *env) BeginTxn(readOnly bool) (engine.Txn, error) {
	if readOnly {
		txn, err := e.env.BeginTxn(nil, mdbxgo.Readonly)
		if err != nil {
			return nil, translate(err)
		}
		return &txnHandle{txn: txn, readOnly: true}, nil
	}

	// libmdbx write transactions belong to the thread that started them.
	runtime.LockOSThread()
	txn, err := e.env.BeginTxn(nil, 0)
	if err != nil {
		runtime.UnlockOSThread()
		return nil, translate(err)
	}
	return &txnHandle{txn: txn}, nil
}

func (e *env) CloseDBI(dbi engine.DBI) {
	e.env.CloseDBI(mdbxgo.DBI(dbi))
}

func (e *env) Close() error {
	e.env.Close()
	return nil
}

type txnHandle struct {
	txn      *mdbxgo.Txn
	readOnly bool
	done     bool // write txn committed or aborted
	reset    bool // read txn reset, waiting for Renew
}

func (t *txnHandle) usable() bool {
	return !t.done && !t.reset
}

func (t *txnHandle) OpenDBI(name string, flags uint) (engine.DBI, error) {
	if !t.usable() {
		return 0, engine.ErrBadTxn
	}
	dbi, err := t.txn.OpenDBISimple(name, flags)
	if err != nil {
		return 0, translate(err)
	}
	return engine.DBI(dbi), nil
}

func (t *txnHandle) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	if !t.usable() {
		return nil, engine.ErrBadTxn
	}
	v, err := t.txn.Get(mdbxgo.DBI(dbi), key)
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (t *txnHandle) Put(dbi engine.DBI, key, val []byte, flags uint) error {
	if !t.usable() {
		return engine.ErrBadTxn
	}
	return translate(t.txn.Put(mdbxgo.DBI(dbi), key, val, flags))
}

func (t *txnHandle) Del(dbi engine.DBI, key []byte) error {
	if !t.usable() {
		return engine.ErrBadTxn
	}
	return translate(t.txn.Del(mdbxgo.DBI(dbi), key, nil))
}

func (t *txnHandle) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	if !t.usable() {
		return nil, engine.ErrBadTxn
	}
	c, err := t.txn.OpenCursor(mdbxgo.DBI(dbi))
	if err != nil {
		return nil, translate(err)
	}
	return &cursor{cur: c}, nil
}

func (t *txnHandle) Commit() error {
	if t.done {
		return engine.ErrBadTxn
	}
	t.done = true
	_, err := t.txn.Commit()
	if !t.readOnly {
		runtime.UnlockOSThread()
	}
	return translate(err)
}

func (t *txnHandle) Abort() {
	if t.done {
		return
	}
	t.done = true
	t.txn.Abort()
	if !t.readOnly {
		runtime.UnlockOSThread()
	}
}

func (t *txnHandle) Reset() {
	if !t.readOnly || t.done || t.reset {
		return
	}
	t.txn.Reset()
	t.reset = true
}

func (t *txnHandle) Renew() error {
	if !t.readOnly || t.done {
		return engine.ErrIncompatible
	}
	if !t.reset {
		return nil
	}
	if err := t.txn.Renew(); err != nil {
		return translate(err)
	}
	t.reset = false
	return nil
}

func (t *txnHandle) ReadOnly() bool {
	return t.readOnly
}

type cursor struct {
	cur *mdbxgo.Cursor
}

var ops = [...]uint{
	engine.First:      mdbxgo.First,
	engine.Last:       mdbxgo.Last,
	engine.Next:       mdbxgo.Next,
	engine.Prev:       mdbxgo.Prev,
	engine.Set:        mdbxgo.Set,
	engine.SetKey:     mdbxgo.SetKey,
	engine.SetRange:   mdbxgo.SetRange,
	engine.GetCurrent: mdbxgo.GetCurrent,
}

func (c *cursor) Get(key, val []byte, op uint) ([]byte, []byte, error) {
	if op >= uint(len(ops)) {
		return nil, nil, engine.ErrIncompatible
	}
	k, v, err := c.cur.Get(key, val, ops[op])
	if err != nil {
		return nil, nil, translate(err)
	}
	return k, v, nil
}

func (c *cursor) Put(key, val []byte, flags uint) error {
	return translate(c.cur.Put(key, val, flags))
}

func (c *cursor) Renew(txn engine.Txn) error {
	t, ok := txn.(*txnHandle)
	if !ok || !t.readOnly {
		return engine.ErrIncompatible
	}
	if !t.usable() {
		return engine.ErrBadTxn
	}
	return translate(c.cur.Renew(t.txn))
}

func (c *cursor) Close() {
	c.cur.Close()
}

// translate maps libmdbx errors onto the engine sentinels, keeping the
// original error as context.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case mdbxgo.IsNotFound(err):
		return engine.ErrNotFound
	case mdbxgo.IsKeyExists(err):
		return engine.ErrKeyExist
	case mdbxgo.IsErrno(err, mdbxgo.ReadersFull):
		return errors.Wrap(engine.ErrReadersFull, err.Error())
	case mdbxgo.IsErrno(err, mdbxgo.DBsFull):
		return errors.Wrap(engine.ErrDBsFull, err.Error())
	}
	return errors.WithStack(err)
}
