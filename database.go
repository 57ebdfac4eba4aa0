package trashdb

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerwatch/log/v3"

	"github.com/Giulio2002/trashdb/engine"
)

// DbState is the lifecycle state of a Database. It only moves forward.
type DbState int

const (
	// DbOpen accepts new transactions and close requests
	DbOpen DbState = iota

	// DbClosing has a pending close request and is waiting for its last
	// transaction to detach. It still accepts new transactions.
	DbClosing

	// DbFinalized has released its engine handle and left the registry
	DbFinalized
)

func (s DbState) String() string {
	switch s {
	case DbOpen:
		return "open"
	case DbClosing:
		return "closing"
	default:
		return "finalized"
	}
}

// Database is one named engine sub-database with its lifecycle state,
// outstanding transaction count and pool of reusable read cursors.
//
// A Database is finalized only once a close was requested and no
// transaction holds it, so a close request never invalidates a handle that
// is still in use.
type Database struct {
	id     uint32
	name   string
	dbi    engine.DBI
	flags  uint
	slots  int
	env    *Env
	logger log.Logger

	// idle read cursors; capacity == slots
	pool chan engine.Cursor

	mu    sync.Mutex // guards refs, state and cursor hand-back
	refs  int
	state DbState
}

func newDatabase(env *Env, meta DbMeta, dbi engine.DBI) *Database {
	return &Database{
		name:   meta.Name,
		dbi:    dbi,
		flags:  meta.Flags,
		slots:  meta.Slots,
		env:    env,
		logger: env.logger.New("db", meta.Name),
		pool:   make(chan engine.Cursor, meta.Slots),
	}
}

// Name returns the database name
func (db *Database) Name() string { return db.name }

// Slots returns the read cursor pool capacity
func (db *Database) Slots() int { return db.slots }

// Flags returns the engine flags the database was declared with
func (db *Database) Flags() uint { return db.flags }

// Meta returns the persisted description of the database
func (db *Database) Meta() DbMeta {
	return DbMeta{Name: db.name, Flags: db.flags, Slots: db.slots}
}

// Refs returns the number of transactions currently attached
func (db *Database) Refs() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.refs
}

// State returns the lifecycle state
func (db *Database) State() DbState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state
}

// IdleCursors returns the number of read cursors waiting in the pool
func (db *Database) IdleCursors() int {
	return len(db.pool)
}

// fillPool opens slots read cursors from a short-lived engine read
// transaction and parks them in the pool.
func (db *Database) fillPool() error {
	txn, err := db.env.engine.BeginTxn(true)
	if err != nil {
		return err
	}
	defer txn.Abort()

	for i := len(db.pool); i < db.slots; i++ {
		c, err := txn.OpenCursor(db.dbi)
		if err != nil {
			return err
		}
		db.pool <- c
	}
	return nil
}

// attach counts one more transaction holding the database. It fails only
// when the database was finalized after the caller resolved it.
func (db *Database) attach() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state == DbFinalized {
		return errorf(ErrDatabaseNotFound, "%s", db.name)
	}
	db.refs++
	return nil
}

// detach drops one transaction reference and reports whether the caller
// must finalize the database.
func (db *Database) detach() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.refs > 0 {
		db.refs--
	}
	if db.state == DbClosing && db.refs == 0 {
		db.state = DbFinalized
		return true
	}
	return false
}

// requestClose marks the database for closing and reports whether the
// caller must finalize it now.
func (db *Database) requestClose() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	switch {
	case db.state == DbFinalized:
		return false
	case db.refs == 0:
		db.state = DbFinalized
		return true
	}
	if db.state == DbOpen {
		db.logger.Debug("close deferred", "refs", db.refs)
	}
	db.state = DbClosing
	return false
}

// finalize drains the cursor pool and closes the engine handle. The state
// must already be DbFinalized; the caller holds the env write lock.
func (db *Database) finalize() {
	db.mu.Lock()
	for len(db.pool) > 0 {
		c := <-db.pool
		c.Close()
	}
	db.mu.Unlock()
	db.env.engine.CloseDBI(db.dbi)
	db.logger.Debug("database finalized")
}

// acquireCursor waits for an idle read cursor and renews it against txn.
func (db *Database) acquireCursor(ctx context.Context, txn engine.Txn) (engine.Cursor, error) {
	var c engine.Cursor
	select {
	case c = <-db.pool:
	default:
		db.env.metrics.cursorWaits.Inc()
		start := time.Now()
		select {
		case c = <-db.pool:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		db.env.metrics.cursorWait.UpdateDuration(start)
	}

	if err := c.Renew(txn); err != nil {
		db.releaseCursor(c)
		return nil, wrapEngine(err)
	}
	return c, nil
}

// releaseCursor hands a read cursor back to the pool, waking one waiter,
// or closes it if the database is gone.
func (db *Database) releaseCursor(c engine.Cursor) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.state == DbFinalized {
		c.Close()
		return
	}
	select {
	case db.pool <- c:
	default:
		// more cursors than slots; only reachable through a double release
		c.Close()
	}
}
