package trashdb

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/Giulio2002/trashdb/engine"
)

// Readers is a bounded stack of idle, reset engine read transactions owned
// by one worker goroutine. Read transactions begun with it are renewed
// from the stack instead of being created, and go back on Release.
//
// A Readers must not be shared between goroutines. Its mutex only
// serializes the owner against the environment aborting idle
// transactions when it closes.
type Readers struct {
	env *Env
	cap int

	mu     sync.Mutex
	idle   []engine.Txn
	closed bool
}

// NewReaders begins n engine read transactions, resets them and returns
// them as the calling worker's pool. Every Readers must be closed.
func (e *Env) NewReaders(n int) (*Readers, error) {
	if n <= 0 {
		return nil, errorf(ErrInvalidOperation, "reader pool size %d", n)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state.Load() != envOpen {
		return nil, NewError(ErrEnvironmentClosed)
	}

	rd := &Readers{env: e, cap: n, idle: make([]engine.Txn, 0, n)}
	for i := 0; i < n; i++ {
		txn, err := e.engine.BeginTxn(true)
		if err != nil {
			for _, t := range rd.idle {
				t.Abort()
			}
			if errors.Is(err, engine.ErrReadersFull) {
				e.logger.Warn("engine reader slots exhausted", "requested", n, "got", i)
				return nil, WrapError(ErrOutOfReaderSlots, err)
			}
			return nil, wrapEngine(err)
		}
		txn.Reset()
		rd.idle = append(rd.idle, txn)
	}

	e.readersMu.Lock()
	e.readers[rd] = struct{}{}
	e.readersMu.Unlock()
	return rd, nil
}

// Len returns the number of idle transactions
func (rd *Readers) Len() int {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	return len(rd.idle)
}

// Cap returns the pool capacity
func (rd *Readers) Cap() int {
	return rd.cap
}

// get pops an idle transaction and renews its snapshot.
func (rd *Readers) get() (engine.Txn, error) {
	rd.mu.Lock()
	if rd.closed {
		rd.mu.Unlock()
		return nil, errorf(ErrInvalidOperation, "readers closed")
	}
	n := len(rd.idle)
	if n == 0 {
		rd.mu.Unlock()
		return nil, NewError(ErrOutOfReaderSlots)
	}
	txn := rd.idle[n-1]
	rd.idle[n-1] = nil
	rd.idle = rd.idle[:n-1]
	rd.mu.Unlock()

	if err := txn.Renew(); err != nil {
		txn.Abort()
		rd.env.metrics.readersDropped.Inc()
		rd.env.logger.Warn("reader renew failed, pool shrinks", "cap", rd.cap, "idle", n-1, "err", err)
		return nil, wrapEngine(err)
	}
	return txn, nil
}

// put resets txn and keeps it if there is room, otherwise aborts it.
func (rd *Readers) put(txn engine.Txn) {
	txn.Reset()
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if rd.closed || len(rd.idle) >= rd.cap {
		txn.Abort()
		return
	}
	rd.idle = append(rd.idle, txn)
}

// drain aborts every idle transaction and closes the pool.
func (rd *Readers) drain() {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	for _, txn := range rd.idle {
		txn.Abort()
	}
	rd.idle = nil
	rd.closed = true
}

// Close aborts the idle transactions. Transactions still checked out are
// aborted when released.
func (rd *Readers) Close() {
	rd.drain()
	rd.env.readersMu.Lock()
	delete(rd.env.readers, rd)
	rd.env.readersMu.Unlock()
}
