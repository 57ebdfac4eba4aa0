package trashdb

import (
	"github.com/c2h5oh/datasize"

	"github.com/Giulio2002/trashdb/engine"
)

// Environment defaults
const (
	// DefaultMapSize is the default engine map size
	DefaultMapSize = 10 * datasize.MB

	// DefaultMaxDBs is the default number of named sub-databases
	DefaultMaxDBs = 50

	// DefaultMaxReaders is the default number of engine reader slots
	DefaultMaxReaders = 126

	// DefaultTxnDatabases is how many databases one transaction can attach
	DefaultTxnDatabases = 10

	// DefaultFileMode is the permission of files the engine creates
	DefaultFileMode = 0664

	// DefaultEngine is the backend used when Options.Engine is empty
	DefaultEngine = EngineMDBX
)

// Engine kinds
const (
	EngineMDBX = "mdbx"
	EngineBolt = "bolt"
)

// Naming
const (
	// MaxNameLen is the longest allowed database name in bytes
	MaxNameLen = 255

	// MetadataName is the reserved database holding DbMeta records
	MetadataName = "metadata"

	// metaPrefix prefixes every DbMeta key in the metadata database
	metaPrefix = "dbs:"

	// metadataSlots is the cursor pool size of the metadata database
	metadataSlots = 1
)

// TxnMode selects a read or write transaction
type TxnMode int

const (
	// TxnRead is a snapshot read transaction drawn from a Readers pool
	TxnRead TxnMode = iota

	// TxnWrite is the single engine write transaction
	TxnWrite
)

func (m TxnMode) String() string {
	if m == TxnWrite {
		return "write"
	}
	return "read"
}

// Database flags
const (
	// Create creates the sub-database if it does not exist
	Create = engine.Create

	// DupSort allows duplicate keys (mdbx engine only)
	DupSort = engine.DupSort

	// ReverseKey compares keys from the end (mdbx engine only)
	ReverseKey = engine.ReverseKey
)

// Put flags
const (
	// Upsert replaces any existing value
	Upsert = engine.Upsert

	// NoOverwrite fails with ErrKeyExist if the key exists
	NoOverwrite = engine.NoOverwrite

	// Append appends to the end of the database
	Append = engine.Append
)

// Cursor operations
const (
	First      = engine.First
	Last       = engine.Last
	Next       = engine.Next
	Prev       = engine.Prev
	Set        = engine.Set
	SetKey     = engine.SetKey
	SetRange   = engine.SetRange
	GetCurrent = engine.GetCurrent
)
