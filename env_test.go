package trashdb

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/trashdb/internal/dirlock"
)

var engines = []string{EngineBolt, EngineMDBX}

// forEachEngine runs fn as a subtest per engine backend.
func forEachEngine(t *testing.T, fn func(t *testing.T, kind string)) {
	for _, kind := range engines {
		t.Run(kind, func(t *testing.T) { fn(t, kind) })
	}
}

func testOptions(t *testing.T, kind string) Options {
	t.Helper()
	return Options{
		Path:       t.TempDir(),
		Engine:     kind,
		MapSize:    64 * datasize.MB,
		MaxDBs:     16,
		MaxReaders: 32,
		NoSync:     true,
		Logger:     log.New(),
	}
}

// openEnv opens an environment and closes it when the test ends.
func openEnv(t *testing.T, opts Options) *Env {
	t.Helper()
	env, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		env.EmergencyCleanup()
		waitClosed(t, env)
	})
	return env
}

func waitClosed(t *testing.T, env *Env) {
	t.Helper()
	select {
	case <-env.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("environment did not close")
	}
}

func declare(t *testing.T, env *Env, name string, slots int) *Database {
	t.Helper()
	require.NoError(t, env.DeclareDatabase(DbMeta{Name: name, Slots: slots}))
	db := env.Lookup(name)
	require.NotNil(t, db)
	return db
}

func TestOpenIdempotent(t *testing.T) {
	opts := testOptions(t, EngineBolt)
	env := openEnv(t, opts)

	again, err := Open(Options{Path: opts.Path, Engine: EngineBolt})
	require.NoError(t, err)
	require.Same(t, env, again)

	_, err = Open(Options{Path: t.TempDir(), Engine: EngineBolt})
	require.ErrorIs(t, err, ErrEnvironmentExistsError)
}

func TestOpenLockedDirectory(t *testing.T) {
	dir := t.TempDir()
	l, err := dirlock.Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	_, err = Open(Options{Path: dir, Engine: EngineBolt})
	require.True(t, IsFatal(err), "got %v", err)
	require.ErrorIs(t, err, dirlock.ErrLocked)
}

func TestOpenUnknownEngine(t *testing.T) {
	_, err := Open(Options{Path: t.TempDir(), Engine: "rocks"})
	require.True(t, IsFatal(err), "got %v", err)

	// the failed open left nothing behind
	env := openEnv(t, testOptions(t, EngineBolt))
	require.NotNil(t, env.Lookup(MetadataName))
}

func TestCloseCascade(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind string) {
		env := openEnv(t, testOptions(t, kind))
		declare(t, env, "a", 1)
		declare(t, env, "b", 1)

		txn, err := env.BeginTxn(nil, "a", TxnWrite)
		require.NoError(t, err)
		require.NoError(t, txn.Put([]byte("k"), []byte("v"), Upsert))

		require.NoError(t, env.Close())
		select {
		case <-env.Done():
			t.Fatal("environment closed with a live transaction")
		default:
		}

		// unreferenced databases are gone, the held one is closing
		require.Nil(t, env.Lookup("b"))
		require.Nil(t, env.Lookup(MetadataName))
		a := env.Lookup("a")
		require.NotNil(t, a)
		require.Equal(t, DbClosing, a.State())

		require.ErrorIs(t, env.DeclareDatabase(DbMeta{Name: "c"}), ErrEnvironmentClosedError)
		_, err = env.NewReaders(1)
		require.ErrorIs(t, err, ErrEnvironmentClosedError)

		require.NoError(t, txn.Release())
		waitClosed(t, env)
		require.Equal(t, DbFinalized, a.State())
		require.NoError(t, env.Close())
	})
}

func TestEmergencyCleanup(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	declare(t, env, "a", 2)
	rd, err := env.NewReaders(1)
	require.NoError(t, err)

	txn, err := env.BeginTxn(rd, "a", TxnRead)
	require.NoError(t, err)

	env.EmergencyCleanup()
	require.NotNil(t, env.Lookup("a"))
	require.Nil(t, env.Lookup(MetadataName))

	// a closing database still serves the transactions attached to it
	_, err = txn.Get([]byte("missing"))
	require.True(t, IsNotFound(err))

	require.NoError(t, txn.Release())
	waitClosed(t, env)
	require.Zero(t, rd.Len())
	rd.Close()
}

func TestReopenAfterClose(t *testing.T) {
	opts := testOptions(t, EngineBolt)
	env, err := Open(opts)
	require.NoError(t, err)
	declare(t, env, "a", 1)
	require.NoError(t, env.Close())
	waitClosed(t, env)

	_, err = env.BeginTxn(nil, "a", TxnRead)
	require.ErrorIs(t, err, ErrDatabaseNotFoundError)

	env2 := openEnv(t, opts)
	require.NotSame(t, env, env2)
}

func TestDatabases(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	declare(t, env, "zeta", 3)
	declare(t, env, "alpha", 0)

	require.Equal(t, []DbMeta{
		{Name: "alpha", Slots: 1},
		{Name: "zeta", Slots: 3},
	}, env.Databases())
}

func TestWriteMetrics(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	declare(t, env, "a", 1)

	require.NoError(t, env.Update("a", func(txn *Txn) error {
		return txn.Put([]byte("k"), []byte("v"), Upsert)
	}))
	rd, err := env.NewReaders(1)
	require.NoError(t, err)
	defer rd.Close()
	require.NoError(t, env.View(rd, "a", func(*Txn) error { return nil }))
	held, err := env.BeginTxn(rd, "a", TxnRead)
	require.NoError(t, err)
	_, err = env.BeginTxn(rd, "a", TxnRead)
	require.True(t, IsOutOfReaderSlots(err))

	var buf bytes.Buffer
	env.WriteMetrics(&buf)
	out := buf.String()
	require.Contains(t, out, `trashdb_txn_begin_total{mode="write"} 1`)
	require.Contains(t, out, `trashdb_txn_begin_total{mode="read"} 2`)
	require.Contains(t, out, `trashdb_readers_exhausted_total 1`)
	require.Contains(t, out, `trashdb_databases_registered 2`)
	require.True(t, strings.Contains(out, "trashdb_cursor_waits_total 0"))

	require.NoError(t, env.CloseDatabase("a"))
	require.NotNil(t, env.Lookup("a"))
	require.NoError(t, held.Release())
	require.Nil(t, env.Lookup("a"))

	buf.Reset()
	env.WriteMetrics(&buf)
	require.Contains(t, buf.String(), `trashdb_databases_finalized_total 1`)
}

func TestPathIsAbsolute(t *testing.T) {
	dir := t.TempDir()
	env := openEnv(t, Options{Path: dir, Engine: EngineBolt})
	require.True(t, filepath.IsAbs(env.Path()))
	require.Equal(t, DefaultTxnDatabases, env.Options().TxnDatabases)
	require.Equal(t, DefaultMapSize, env.Options().MapSize)
}
