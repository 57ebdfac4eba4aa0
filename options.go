package trashdb

import (
	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"

	"github.com/Giulio2002/trashdb/engine"
	"github.com/Giulio2002/trashdb/engine/bolt"
	"github.com/Giulio2002/trashdb/engine/mdbx"
)

// Options configures Open. Zero fields take the package defaults.
type Options struct {
	// Path is the environment data directory. It is created if missing.
	Path string `toml:"path"`

	// Engine selects the backend: "mdbx" (default) or "bolt".
	Engine string `toml:"engine"`

	// MapSize is the engine map size.
	MapSize datasize.ByteSize `toml:"map_size"`

	// MaxDBs bounds the number of named sub-databases, metadata included.
	MaxDBs uint64 `toml:"max_dbs"`

	// MaxReaders bounds concurrent engine read transactions across all
	// Readers pools.
	MaxReaders uint64 `toml:"max_readers"`

	// TxnDatabases bounds how many databases one transaction can attach.
	TxnDatabases int `toml:"txn_databases"`

	// NoSync skips fsync on commit. Committed data survives a process
	// crash but not a system crash.
	NoSync bool `toml:"no_sync"`

	// Logger receives lifecycle logs. Defaults to log.New().
	Logger log.Logger `toml:"-"`
}

// DefaultOptions returns Options for path with every default filled in.
func DefaultOptions(path string) Options {
	return Options{Path: path}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Engine == "" {
		o.Engine = DefaultEngine
	}
	if o.MapSize == 0 {
		o.MapSize = DefaultMapSize
	}
	if o.MaxDBs == 0 {
		o.MaxDBs = DefaultMaxDBs
	}
	if o.MaxReaders == 0 {
		o.MaxReaders = DefaultMaxReaders
	}
	if o.TxnDatabases <= 0 {
		o.TxnDatabases = DefaultTxnDatabases
	}
	if o.Logger == nil {
		o.Logger = log.New()
	}
	return o
}

func (o Options) engineConfig() engine.Config {
	return engine.Config{
		Path:       o.Path,
		MapSize:    o.MapSize,
		MaxDBs:     o.MaxDBs,
		MaxReaders: o.MaxReaders,
		NoSync:     o.NoSync,
		Mode:       DefaultFileMode,
	}
}

// openEngine opens the backend named by o.Engine.
func openEngine(o Options, logger log.Logger) (engine.Env, error) {
	switch o.Engine {
	case EngineMDBX:
		return mdbx.Open(o.engineConfig(), logger)
	case EngineBolt:
		return bolt.Open(o.engineConfig(), logger)
	}
	return nil, engine.ErrUnknownKind
}
