package trashdb

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ledgerwatch/log/v3"

	"github.com/Giulio2002/trashdb/engine"
	"github.com/Giulio2002/trashdb/internal/dirlock"
	"github.com/Giulio2002/trashdb/internal/slotmap"
)

// Environment states
const (
	envOpen int32 = iota
	envClosing
	envClosed
)

// process holds the one environment a process may have open.
var process struct {
	mu  sync.Mutex
	env *Env
}

// Env owns the engine handle and the registry of open databases.
//
// At most one Env is open per process. Close requests are deferred: a
// database with attached transactions is finalized when the last one
// releases, and the engine is closed once the registry is empty.
type Env struct {
	path    string
	opts    Options
	engine  engine.Env
	lock    *dirlock.Lock
	logger  log.Logger
	metrics *envMetrics

	state atomic.Int32

	// serializes DeclareDatabase; taken before the engine writer slot,
	// which is never awaited while mu is held
	declareMu sync.Mutex

	// Lock order: mu, then Database.mu.
	mu       sync.RWMutex
	registry slotmap.Map[*Database]
	meta     *Database

	readersMu sync.Mutex
	readers   map[*Readers]struct{}

	closeErr error
	done     chan struct{}
}

// Open opens the environment in opts.Path, creating the directory if
// needed, and rebuilds the registry from the metadata database.
//
// Opening the directory of the environment that is already open returns
// that environment. Any other directory fails with ErrEnvironmentExists
// until the open one is closed.
func Open(opts Options) (*Env, error) {
	opts = opts.withDefaults()
	if opts.Path == "" {
		return nil, errorf(ErrInvalidOperation, "empty path")
	}
	path, err := filepath.Abs(opts.Path)
	if err != nil {
		return nil, WrapError(ErrFatal, err)
	}
	opts.Path = path

	process.mu.Lock()
	defer process.mu.Unlock()

	if e := process.env; e != nil {
		if e.path != path {
			return nil, errorf(ErrEnvironmentExists, "%s", e.path)
		}
		if e.state.Load() != envOpen {
			return nil, NewError(ErrEnvironmentClosed)
		}
		return e, nil
	}

	logger := opts.Logger
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, WrapError(ErrFatal, err)
	}
	lock, err := dirlock.Acquire(path)
	if err != nil {
		return nil, WrapError(ErrFatal, err)
	}
	eng, err := openEngine(opts, logger)
	if err != nil {
		lock.Release()
		logger.Error("cannot open engine", "path", path, "engine", opts.Engine, "err", err)
		return nil, WrapError(ErrFatal, err)
	}

	e := &Env{
		path:    path,
		opts:    opts,
		engine:  eng,
		lock:    lock,
		logger:  logger,
		readers: make(map[*Readers]struct{}),
		done:    make(chan struct{}),
	}
	e.metrics = newEnvMetrics(e)

	if err := e.recoverDatabases(); err != nil {
		e.abandon()
		return nil, err
	}

	process.env = e
	logger.Info("environment opened", "path", path, "engine", opts.Engine, "mapsize", opts.MapSize,
		"maxdbs", opts.MaxDBs, "maxreaders", opts.MaxReaders, "databases", e.registry.Len()-1)
	return e, nil
}

// abandon tears down an environment that never finished opening.
func (e *Env) abandon() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, db := range e.registry.Values() {
		db.mu.Lock()
		db.state = DbFinalized
		db.mu.Unlock()
		db.finalize()
	}
	e.registry.Clear()
	e.engine.Close()
	e.lock.Release()
	e.state.Store(envClosed)
	close(e.done)
}

// Path returns the absolute data directory
func (e *Env) Path() string {
	return e.path
}

// Options returns the options the environment was opened with, defaults
// filled in
func (e *Env) Options() Options {
	return e.opts
}

// Done returns a channel closed once the engine handle is closed.
func (e *Env) Done() <-chan struct{} {
	return e.done
}

// Lookup returns the registered database named name, or nil.
func (e *Env) Lookup(name string) *Database {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lookupLocked(name)
}

func (e *Env) lookupLocked(name string) *Database {
	var found *Database
	e.registry.ForEach(func(_ uint32, db *Database) bool {
		if db.name == name {
			found = db
			return false
		}
		return true
	})
	return found
}

// resolve looks name up and attaches one transaction reference to it.
// The metadata database is not reachable through transactions.
func (e *Env) resolve(name string) (*Database, error) {
	if name == MetadataName {
		return nil, errorf(ErrInvalidOperation, "%s is reserved", name)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	db := e.lookupLocked(name)
	if db == nil {
		return nil, errorf(ErrDatabaseNotFound, "%s", name)
	}
	if err := db.attach(); err != nil {
		return nil, err
	}
	return db, nil
}

// detach drops one transaction reference, finalizing the database if it
// was the last one on a closing database.
func (e *Env) detach(db *Database) {
	if !db.detach() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeLocked(db)
}

// removeLocked finalizes db and drops it from the registry. Emptying the
// registry of a closing environment closes the environment.
func (e *Env) removeLocked(db *Database) {
	db.finalize()
	e.registry.Delete(db.id)
	if db == e.meta {
		e.meta = nil
	}
	e.metrics.finalized.Inc()
	if e.state.Load() == envClosing && e.registry.Len() == 0 {
		e.closeLocked()
	}
}

// CloseDatabase requests that the named database be closed. It is
// finalized immediately when no transaction holds it, otherwise when the
// last one releases. Unknown names are ignored.
func (e *Env) CloseDatabase(name string) error {
	if name == MetadataName {
		return errorf(ErrInvalidOperation, "%s is reserved", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	db := e.lookupLocked(name)
	if db == nil {
		return nil
	}
	if db.requestClose() {
		e.removeLocked(db)
	}
	return nil
}

// EmergencyCleanup requests close of every registered database in one
// exclusive section and marks the environment closing. The engine is
// closed as soon as the last database is finalized.
func (e *Env) EmergencyCleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Load() == envClosed {
		return
	}
	e.logger.Warn("emergency cleanup", "databases", e.registry.Len())
	e.sweepLocked()
}

// Close shuts the environment down. Databases still held by transactions
// are finalized when those transactions release; the engine closes after
// the last one. Use Done to wait for that.
func (e *Env) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state.Load() {
	case envClosed:
		return e.closeErr
	case envOpen:
		e.logger.Info("closing environment", "path", e.path, "databases", e.registry.Len())
	}
	e.sweepLocked()
	return e.closeErr
}

func (e *Env) sweepLocked() {
	e.state.Store(envClosing)
	if e.registry.Len() == 0 {
		e.closeLocked()
		return
	}
	for _, db := range e.registry.Values() {
		if db.requestClose() {
			e.removeLocked(db)
		}
	}
}

// closeLocked closes the engine. Every database has been finalized, so no
// transaction is live; idle reader transactions are aborted first.
func (e *Env) closeLocked() {
	if e.state.Swap(envClosed) == envClosed {
		return
	}

	e.readersMu.Lock()
	for rd := range e.readers {
		rd.drain()
	}
	clear(e.readers)
	e.readersMu.Unlock()

	if err := e.engine.Close(); err != nil {
		e.closeErr = wrapEngine(err)
		e.logger.Error("engine close failed", "err", err)
	}
	if err := e.lock.Release(); err != nil && e.closeErr == nil {
		e.closeErr = WrapError(ErrEngine, err)
	}

	process.mu.Lock()
	if process.env == e {
		process.env = nil
	}
	process.mu.Unlock()

	close(e.done)
	e.logger.Info("environment closed", "path", e.path)
}

// Databases returns the description of every registered user database,
// sorted by name.
func (e *Env) Databases() []DbMeta {
	e.mu.RLock()
	out := make([]DbMeta, 0, e.registry.Len())
	e.registry.ForEach(func(_ uint32, db *Database) bool {
		if db != e.meta {
			out = append(out, db.Meta())
		}
		return true
	})
	e.mu.RUnlock()

	slices.SortFunc(out, func(a, b DbMeta) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// TxnOp is a function that operates on a transaction.
// This is the callback type for View and Update.
type TxnOp func(txn *Txn) error

// View runs fn in a read transaction on the named database, drawn from rd
// (or unpooled when rd is nil), and releases it when fn returns.
func (e *Env) View(rd *Readers, name string, fn TxnOp) error {
	txn, err := e.BeginTxn(rd, name, TxnRead)
	if err != nil {
		return err
	}
	err = fn(txn)
	if rerr := txn.Release(); err == nil {
		err = rerr
	}
	return err
}

// Update runs fn in a write transaction on the named database.
// The transaction is committed when fn returns nil,
// or aborted when fn returns an error.
func (e *Env) Update(name string, fn TxnOp) error {
	txn, err := e.BeginTxn(nil, name, TxnWrite)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	return txn.Release()
}
