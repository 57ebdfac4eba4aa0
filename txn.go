package trashdb

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Giulio2002/trashdb/engine"
)

// Txn wraps one engine transaction together with the stack of databases it
// has attached. The most recently attached database is the target of Get,
// Put, Del and Cursor.
//
// A Txn belongs to the goroutine that began it and must be released
// exactly once with Release or Abort. With the mdbx engine a write Txn
// pins its goroutine to an OS thread until then.
type Txn struct {
	env  *Env
	txn  engine.Txn
	mode TxnMode
	rd   *Readers

	dirty    bool
	attached []*Database // attach order, each holding one reference
	cursors  []*Cursor
	released bool
}

// BeginTxn starts a transaction on the named database.
//
// Write transactions always begin a fresh engine write transaction and
// wait for the engine's single writer slot. Read transactions are renewed
// from rd and fail fast with ErrOutOfReaderSlots when rd is empty; a nil
// rd begins an unpooled engine read transaction instead.
func (e *Env) BeginTxn(rd *Readers, name string, mode TxnMode) (*Txn, error) {
	if rd != nil && rd.env != e {
		return nil, errorf(ErrInvalidOperation, "readers belong to another environment")
	}
	db, err := e.resolve(name)
	if err != nil {
		return nil, err
	}

	var etx engine.Txn
	switch {
	case mode == TxnWrite:
		etx, err = e.engine.BeginTxn(false)
		err = wrapEngine(err)
	case rd != nil:
		etx, err = rd.get()
		if IsOutOfReaderSlots(err) {
			e.metrics.readersExhausted.Inc()
			e.logger.Warn("reader pool exhausted", "db", name, "cap", rd.Cap())
		}
	default:
		etx, err = e.engine.BeginTxn(true)
		if errors.Is(err, engine.ErrReadersFull) {
			e.metrics.readersExhausted.Inc()
			err = WrapError(ErrOutOfReaderSlots, err)
		} else {
			err = wrapEngine(err)
		}
	}
	if err != nil {
		e.detach(db)
		return nil, err
	}

	t := &Txn{
		env:      e,
		txn:      etx,
		mode:     mode,
		attached: make([]*Database, 1, e.opts.TxnDatabases),
	}
	if mode == TxnRead {
		t.rd = rd
	}
	t.attached[0] = db
	e.metrics.begin(mode)
	return t, nil
}

// Mode returns the transaction mode
func (t *Txn) Mode() TxnMode {
	return t.mode
}

// Attach resolves the named database, takes a reference on it and makes
// it the current database. Attaching a database twice takes two
// references.
func (t *Txn) Attach(name string) error {
	if t.released {
		return errorf(ErrInvalidOperation, "transaction released")
	}
	if len(t.attached) >= cap(t.attached) {
		return errorf(ErrTxnFull, "%d databases", len(t.attached))
	}
	db, err := t.env.resolve(name)
	if err != nil {
		return err
	}
	t.attached = append(t.attached, db)
	return nil
}

// Switch makes the named database current, attaching it unless it is
// already current.
func (t *Txn) Switch(name string) error {
	if db, err := t.current(); err == nil && db.name == name {
		return nil
	}
	return t.Attach(name)
}

// Database returns the current database, or nil.
func (t *Txn) Database() *Database {
	db, _ := t.current()
	return db
}

func (t *Txn) current() (*Database, error) {
	if t.released {
		return nil, errorf(ErrInvalidOperation, "transaction released")
	}
	if len(t.attached) == 0 {
		return nil, NewError(ErrNoAttachedDatabase)
	}
	// the reference held by this transaction keeps db from being finalized
	return t.attached[len(t.attached)-1], nil
}

// Get returns the value stored under key in the current database. A
// missing key returns ErrNotFound. The value is only valid until the
// transaction is released.
func (t *Txn) Get(key []byte) ([]byte, error) {
	db, err := t.current()
	if err != nil {
		return nil, err
	}
	v, err := t.txn.Get(db.dbi, key)
	if err != nil {
		return nil, wrapEngine(err)
	}
	return v, nil
}

// Put stores key/val in the current database. The write is committed when
// the transaction is released.
func (t *Txn) Put(key, val []byte, flags uint) error {
	if t.mode != TxnWrite {
		return errorf(ErrInvalidOperation, "put in read transaction")
	}
	db, err := t.current()
	if err != nil {
		return err
	}
	if err := t.txn.Put(db.dbi, key, val, flags); err != nil {
		return wrapEngine(err)
	}
	t.dirty = true
	return nil
}

// Del removes key from the current database.
func (t *Txn) Del(key []byte) error {
	if t.mode != TxnWrite {
		return errorf(ErrInvalidOperation, "delete in read transaction")
	}
	db, err := t.current()
	if err != nil {
		return err
	}
	if err := t.txn.Del(db.dbi, key); err != nil {
		return wrapEngine(err)
	}
	t.dirty = true
	return nil
}

// Cursor returns a cursor on the current database.
//
// A read transaction takes an idle cursor from the database pool, waiting
// while all of them are checked out; it returns ctx.Err() if ctx is done
// first. A write transaction opens a fresh cursor and never waits.
func (t *Txn) Cursor(ctx context.Context) (*Cursor, error) {
	db, err := t.current()
	if err != nil {
		return nil, err
	}

	var cur engine.Cursor
	if t.mode == TxnWrite {
		cur, err = t.txn.OpenCursor(db.dbi)
		err = wrapEngine(err)
	} else {
		cur, err = db.acquireCursor(ctx, t.txn)
	}
	if err != nil {
		return nil, err
	}

	c := &Cursor{cur: cur, txn: t, db: db}
	t.cursors = append(t.cursors, c)
	return c, nil
}

func (t *Txn) forget(c *Cursor) {
	for i, x := range t.cursors {
		if x == c {
			last := len(t.cursors) - 1
			t.cursors[i] = t.cursors[last]
			t.cursors[last] = nil
			t.cursors = t.cursors[:last]
			return
		}
	}
}

// Release ends the transaction. Cursors still checked out go back to their
// pools. A write transaction with pending writes is committed, otherwise
// aborted; a commit failure is returned as ErrFatal. A read transaction
// is reset and returned to its Readers when there is room. Finally every
// attached database is detached in attach order, which may finalize
// databases whose close was deferred. Releasing twice does nothing.
func (t *Txn) Release() error {
	if t.released {
		return nil
	}
	t.released = true

	for len(t.cursors) > 0 {
		t.cursors[len(t.cursors)-1].Release()
	}

	var err error
	switch {
	case t.mode == TxnWrite && t.dirty:
		if cerr := t.txn.Commit(); cerr != nil {
			t.env.metrics.commitFailures.Inc()
			t.env.logger.Error("commit failed", "err", cerr)
			err = WrapError(ErrFatal, cerr)
		}
	case t.rd != nil:
		t.rd.put(t.txn)
	default:
		t.txn.Abort()
	}
	t.txn = nil

	for _, db := range t.attached {
		t.env.detach(db)
	}
	t.attached = nil
	return err
}

// Abort drops pending writes and releases the transaction.
func (t *Txn) Abort() error {
	t.dirty = false
	return t.Release()
}
