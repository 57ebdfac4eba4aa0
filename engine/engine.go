// Package engine defines the storage engine surface that trashdb manages.
//
// An engine supplies environments, named sub-databases, read and write
// transactions and cursors with snapshot-isolated reads and a single active
// writer. trashdb never looks behind these interfaces; it only pools and
// tracks the handles they return.
package engine

import (
	"github.com/c2h5oh/datasize"
)

// DBI is an engine-level handle to a named sub-database.
type DBI uint32

// Env is an open engine environment.
type Env interface {
	// BeginTxn starts a transaction. Write transactions block until the
	// engine's single writer slot is free.
	BeginTxn(readOnly bool) (Txn, error)

	// CloseDBI releases a sub-database handle opened by a committed
	// transaction.
	CloseDBI(dbi DBI)

	// Close closes the environment. All transactions must be finished.
	Close() error
}

// Txn is an engine transaction.
//
// A read transaction can be Reset, which releases its snapshot but keeps its
// reader slot, and later Renew-ed to take a fresh snapshot.
type Txn interface {
	OpenDBI(name string, flags uint) (DBI, error)
	Get(dbi DBI, key []byte) ([]byte, error)
	Put(dbi DBI, key, val []byte, flags uint) error
	Del(dbi DBI, key []byte) error
	OpenCursor(dbi DBI) (Cursor, error)

	Commit() error
	Abort()
	Reset()
	Renew() error

	ReadOnly() bool
}

// Cursor is an engine cursor bound to one transaction and sub-database.
type Cursor interface {
	// Get positions the cursor according to op and returns the entry there.
	Get(key, val []byte, op uint) ([]byte, []byte, error)
	Put(key, val []byte, flags uint) error

	// Renew rebinds a read cursor to another read transaction.
	Renew(txn Txn) error
	Close()
}

// Config holds the limits applied before an environment is opened.
type Config struct {
	Path       string
	MapSize    datasize.ByteSize
	MaxDBs     uint64
	MaxReaders uint64
	NoSync     bool
	Mode       uint32
}

// Sub-database flags
const (
	// Create creates the sub-database if it does not exist
	Create uint = 0x40000

	// DupSort allows sorted duplicate values per key
	DupSort uint = 0x04

	// ReverseKey compares keys back to front
	ReverseKey uint = 0x02
)

// Put flags
const (
	// Upsert inserts or replaces
	Upsert uint = 0

	// NoOverwrite fails with ErrKeyExist if the key is present
	NoOverwrite uint = 0x10

	// Append appends to the end of the sub-database, keys must be sorted
	Append uint = 0x20000
)

// Cursor positioning operators
const (
	First uint = iota
	Last
	Next
	Prev
	Set
	SetKey
	SetRange
	GetCurrent
)
