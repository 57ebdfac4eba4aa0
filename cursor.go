package trashdb

import (
	"github.com/Giulio2002/trashdb/engine"
)

// Cursor is a positioned view over the current database of a transaction.
//
// Read cursors come from the database's pool and return to it on Release.
// Write cursors belong to their transaction and are closed on Release.
// Either way the transaction releases cursors still checked out.
type Cursor struct {
	cur      engine.Cursor
	txn      *Txn
	db       *Database
	released bool
}

// Get positions the cursor with op and returns the entry there. key is
// used by Set, SetKey and SetRange. Running off either end returns
// ErrNotFound.
func (c *Cursor) Get(key, val []byte, op uint) ([]byte, []byte, error) {
	if c.released {
		return nil, nil, errorf(ErrInvalidOperation, "cursor released")
	}
	k, v, err := c.cur.Get(key, val, op)
	if err != nil {
		return nil, nil, wrapEngine(err)
	}
	return k, v, nil
}

// Put stores key/val through the cursor. Only write transactions can put.
func (c *Cursor) Put(key, val []byte, flags uint) error {
	if c.released {
		return errorf(ErrInvalidOperation, "cursor released")
	}
	if c.txn.mode != TxnWrite {
		return errorf(ErrInvalidOperation, "put in read transaction")
	}
	if err := c.cur.Put(key, val, flags); err != nil {
		return wrapEngine(err)
	}
	c.txn.dirty = true
	return nil
}

// Release returns a read cursor to its pool, waking one waiter, or closes
// a write cursor. Releasing twice does nothing.
func (c *Cursor) Release() {
	if c.released {
		return
	}
	c.released = true
	c.txn.forget(c)

	if c.txn.mode == TxnWrite {
		c.cur.Close()
		return
	}
	c.db.releaseCursor(c.cur)
}
