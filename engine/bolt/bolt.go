// Package bolt implements the engine interfaces on top of go.etcd.io/bbolt.
//
// Each named sub-database is a top-level bucket. bbolt has no reader table,
// so the reader limit is enforced with a weighted semaphore: a read
// transaction holds its slot from BeginTxn until Abort, including while it
// is Reset, the way an MDBX reader slot is kept across reset/renew.
package bolt

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ledgerwatch/log/v3"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/semaphore"

	"github.com/Giulio2002/trashdb/engine"
)

// FileName is the data file created inside the environment directory.
const FileName = "trash.db"

type env struct {
	db      *bolt.DB
	readers *semaphore.Weighted
	maxDBs  int
	logger  log.Logger

	mu     sync.RWMutex
	names  []string // indexed by DBI, "" once closed
	byName map[string]engine.DBI
	open   int
}

// Open opens (creating if needed) the bbolt file in cfg.Path.
func Open(cfg engine.Config, logger log.Logger) (engine.Env, error) {
	mode := os.FileMode(cfg.Mode)
	if mode == 0 {
		mode = 0664
	}
	db, err := bolt.Open(filepath.Join(cfg.Path, FileName), mode, &bolt.Options{
		Timeout:         time.Second,
		NoSync:          cfg.NoSync,
		InitialMmapSize: int(cfg.MapSize.Bytes()),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt: open %s", cfg.Path)
	}

	maxReaders := int64(cfg.MaxReaders)
	if maxReaders <= 0 {
		maxReaders = 1
	}
	logger.Debug("bolt environment opened", "path", cfg.Path, "mapsize", cfg.MapSize, "maxdbs", cfg.MaxDBs, "maxreaders", maxReaders)
	return &env{
		db:      db,
		readers: semaphore.NewWeighted(maxReaders),
		maxDBs:  int(cfg.MaxDBs),
		logger:  logger,
		byName:  make(map[string]engine.DBI),
	}, nil
}

func (e *env) BeginTxn(readOnly bool) (engine.Txn, error) {
	if readOnly {
		if !e.readers.TryAcquire(1) {
			return nil, engine.ErrReadersFull
		}
		tx, err := e.db.Begin(false)
		if err != nil {
			e.readers.Release(1)
			return nil, errors.WithStack(err)
		}
		return &txn{env: e, tx: tx, readOnly: true}, nil
	}

	tx, err := e.db.Begin(true)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &txn{env: e, tx: tx}, nil
}

func (e *env) CloseDBI(dbi engine.DBI) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if int(dbi) >= len(e.names) || e.names[dbi] == "" {
		return
	}
	delete(e.byName, e.names[dbi])
	e.names[dbi] = ""
	e.open--
}

func (e *env) Close() error {
	return errors.WithStack(e.db.Close())
}

func (e *env) register(name string) (engine.DBI, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if dbi, ok := e.byName[name]; ok {
		return dbi, nil
	}
	if e.maxDBs > 0 && e.open >= e.maxDBs {
		return 0, engine.ErrDBsFull
	}
	dbi := engine.DBI(len(e.names))
	e.names = append(e.names, name)
	e.byName[name] = dbi
	e.open++
	return dbi, nil
}

func (e *env) name(dbi engine.DBI) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if int(dbi) >= len(e.names) || e.names[dbi] == "" {
		return "", false
	}
	return e.names[dbi], true
}

type txn struct {
	env      *env
	tx       *bolt.Tx // nil while reset or after commit/abort
	readOnly bool
	done     bool
}

func (t *txn) bucket(dbi engine.DBI) (*bolt.Bucket, error) {
	if t.tx == nil {
		return nil, engine.ErrBadTxn
	}
	name, ok := t.env.name(dbi)
	if !ok {
		return nil, engine.ErrIncompatible
	}
	b := t.tx.Bucket([]byte(name))
	if b == nil {
		return nil, engine.ErrNotFound
	}
	return b, nil
}

func (t *txn) OpenDBI(name string, flags uint) (engine.DBI, error) {
	if t.tx == nil {
		return 0, engine.ErrBadTxn
	}
	if flags&(engine.DupSort|engine.ReverseKey) != 0 {
		return 0, errors.Wrapf(engine.ErrIncompatible, "bolt: flags %#x on %q", flags, name)
	}
	if t.tx.Bucket([]byte(name)) == nil {
		if flags&engine.Create == 0 {
			return 0, engine.ErrNotFound
		}
		if t.readOnly {
			return 0, errors.Wrapf(engine.ErrIncompatible, "bolt: create %q in read transaction", name)
		}
		if _, err := t.tx.CreateBucketIfNotExists([]byte(name)); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	return t.env.register(name)
}

func (t *txn) Get(dbi engine.DBI, key []byte) ([]byte, error) {
	b, err := t.bucket(dbi)
	if err != nil {
		return nil, err
	}
	v := b.Get(key)
	if v == nil {
		return nil, engine.ErrNotFound
	}
	return v, nil
}

func (t *txn) Put(dbi engine.DBI, key, val []byte, flags uint) error {
	if t.readOnly {
		return engine.ErrIncompatible
	}
	b, err := t.bucket(dbi)
	if err != nil {
		return err
	}
	if flags&engine.NoOverwrite != 0 && b.Get(key) != nil {
		return engine.ErrKeyExist
	}
	return errors.WithStack(b.Put(key, val))
}

func (t *txn) Del(dbi engine.DBI, key []byte) error {
	if t.readOnly {
		return engine.ErrIncompatible
	}
	b, err := t.bucket(dbi)
	if err != nil {
		return err
	}
	if b.Get(key) == nil {
		return engine.ErrNotFound
	}
	return errors.WithStack(b.Delete(key))
}

func (t *txn) OpenCursor(dbi engine.DBI) (engine.Cursor, error) {
	c := &cursor{dbi: dbi}
	if err := c.bind(t); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *txn) Commit() error {
	if t.done {
		return engine.ErrBadTxn
	}
	if t.readOnly {
		t.Abort()
		return nil
	}
	t.done = true
	tx := t.tx
	t.tx = nil
	return errors.WithStack(tx.Commit())
}

func (t *txn) Abort() {
	if t.done {
		return
	}
	t.done = true
	if t.tx != nil {
		_ = t.tx.Rollback()
		t.tx = nil
	}
	if t.readOnly {
		t.env.readers.Release(1)
	}
}

func (t *txn) Reset() {
	if !t.readOnly || t.done || t.tx == nil {
		return
	}
	_ = t.tx.Rollback()
	t.tx = nil
}

func (t *txn) Renew() error {
	if !t.readOnly || t.done {
		return engine.ErrIncompatible
	}
	if t.tx != nil {
		return nil
	}
	tx, err := t.env.db.Begin(false)
	if err != nil {
		return errors.WithStack(err)
	}
	t.tx = tx
	return nil
}

func (t *txn) ReadOnly() bool {
	return t.readOnly
}

// cursor wraps a bbolt cursor. bbolt cursors are tied to one transaction,
// so the wrapper remembers its sub-database and rebinds on Renew.
type cursor struct {
	dbi    engine.DBI
	txn    *txn
	cur    *bolt.Cursor
	key    []byte
	val    []byte
	placed bool
}

func (c *cursor) bind(t *txn) error {
	b, err := t.bucket(c.dbi)
	if err != nil {
		return err
	}
	c.txn = t
	c.cur = b.Cursor()
	c.key, c.val, c.placed = nil, nil, false
	return nil
}

func (c *cursor) Get(key, val []byte, op uint) ([]byte, []byte, error) {
	if c.cur == nil || c.txn.tx == nil {
		return nil, nil, engine.ErrBadTxn
	}

	var k, v []byte
	switch op {
	case engine.First:
		k, v = c.cur.First()
	case engine.Last:
		k, v = c.cur.Last()
	case engine.Next:
		if c.placed {
			k, v = c.cur.Next()
		} else {
			k, v = c.cur.First()
		}
	case engine.Prev:
		if c.placed {
			k, v = c.cur.Prev()
		} else {
			k, v = c.cur.Last()
		}
	case engine.Set, engine.SetKey:
		k, v = c.cur.Seek(key)
		if k != nil && string(k) != string(key) {
			k, v = nil, nil
		}
	case engine.SetRange:
		k, v = c.cur.Seek(key)
	case engine.GetCurrent:
		if !c.placed {
			return nil, nil, engine.ErrNotFound
		}
		return c.key, c.val, nil
	default:
		return nil, nil, engine.ErrIncompatible
	}

	if k == nil {
		return nil, nil, engine.ErrNotFound
	}
	c.key, c.val, c.placed = k, v, true
	return k, v, nil
}

func (c *cursor) Put(key, val []byte, flags uint) error {
	if c.cur == nil || c.txn.tx == nil {
		return engine.ErrBadTxn
	}
	if err := c.txn.Put(c.dbi, key, val, flags); err != nil {
		return err
	}
	// bbolt invalidates cursors on write; reposition on the written key.
	b, err := c.txn.bucket(c.dbi)
	if err != nil {
		return err
	}
	c.cur = b.Cursor()
	c.key, c.val = c.cur.Seek(key)
	c.placed = c.key != nil
	return nil
}

func (c *cursor) Renew(t engine.Txn) error {
	bt, ok := t.(*txn)
	if !ok || !bt.readOnly {
		return engine.ErrIncompatible
	}
	return c.bind(bt)
}

func (c *cursor) Close() {
	c.txn, c.cur = nil, nil
	c.key, c.val, c.placed = nil, nil, false
}
