// Package enginetest holds the behaviour every engine backend must share.
// Backends run it from their own tests.
package enginetest

import (
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/trashdb/engine"
)

// Opener opens a backend with the given config.
type Opener func(cfg engine.Config, logger log.Logger) (engine.Env, error)

// Config returns a small config rooted in a fresh temp dir.
func Config(t *testing.T) engine.Config {
	t.Helper()
	return engine.Config{
		Path:       t.TempDir(),
		MapSize:    64 * datasize.MB,
		MaxDBs:     8,
		MaxReaders: 8,
		NoSync:     true,
	}
}

// Run executes the shared backend suite.
func Run(t *testing.T, open Opener) {
	t.Run("PutGetCommit", func(t *testing.T) { testPutGetCommit(t, open) })
	t.Run("ResetRenew", func(t *testing.T) { testResetRenew(t, open) })
	t.Run("CursorSeek", func(t *testing.T) { testCursorSeek(t, open) })
	t.Run("CursorRenew", func(t *testing.T) { testCursorRenew(t, open) })
	t.Run("ReadersFull", func(t *testing.T) { testReadersFull(t, open) })
	t.Run("MissingDBI", func(t *testing.T) { testMissingDBI(t, open) })
}

func mustOpen(t *testing.T, open Opener, cfg engine.Config) engine.Env {
	t.Helper()
	env, err := open(cfg, log.New())
	require.NoError(t, err)
	t.Cleanup(func() { env.Close() })
	return env
}

// seed creates sub-database name holding kv and returns its handle.
func seed(t *testing.T, env engine.Env, name string, kv ...string) engine.DBI {
	t.Helper()
	txn, err := env.BeginTxn(false)
	require.NoError(t, err)
	dbi, err := txn.OpenDBI(name, engine.Create)
	require.NoError(t, err)
	for i := 0; i+1 < len(kv); i += 2 {
		require.NoError(t, txn.Put(dbi, []byte(kv[i]), []byte(kv[i+1]), engine.Upsert))
	}
	require.NoError(t, txn.Commit())
	return dbi
}

func testPutGetCommit(t *testing.T, open Opener) {
	env := mustOpen(t, open, Config(t))
	dbi := seed(t, env, "a", "k1", "v1", "k2", "v2")

	txn, err := env.BeginTxn(true)
	require.NoError(t, err)
	defer txn.Abort()

	v, err := txn.Get(dbi, []byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))

	_, err = txn.Get(dbi, []byte("nope"))
	require.True(t, engine.IsNotFound(err), "got %v", err)

	require.Error(t, txn.Put(dbi, []byte("k3"), []byte("v3"), engine.Upsert))

	wtx, err := env.BeginTxn(false)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(dbi, []byte("k1"), []byte("x"), engine.Upsert))
	require.ErrorIs(t, wtx.Put(dbi, []byte("k2"), []byte("x"), engine.NoOverwrite), engine.ErrKeyExist)
	require.NoError(t, wtx.Del(dbi, []byte("k2")))
	wtx.Abort()
}

func testResetRenew(t *testing.T, open Opener) {
	env := mustOpen(t, open, Config(t))
	dbi := seed(t, env, "a", "k", "old")

	rtx, err := env.BeginTxn(true)
	require.NoError(t, err)
	defer rtx.Abort()

	v, err := rtx.Get(dbi, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "old", string(v))
	rtx.Reset()

	wtx, err := env.BeginTxn(false)
	require.NoError(t, err)
	require.NoError(t, wtx.Put(dbi, []byte("k"), []byte("new"), engine.Upsert))
	require.NoError(t, wtx.Commit())

	require.NoError(t, rtx.Renew())
	v, err = rtx.Get(dbi, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, "new", string(v))
}

func testCursorSeek(t *testing.T, open Opener) {
	env := mustOpen(t, open, Config(t))
	dbi := seed(t, env, "a", "a:1", "1", "b:1", "2", "b:2", "3", "c:1", "4")

	rtx, err := env.BeginTxn(true)
	require.NoError(t, err)
	defer rtx.Abort()

	c, err := rtx.OpenCursor(dbi)
	require.NoError(t, err)
	defer c.Close()

	var keys []string
	k, _, err := c.Get([]byte("b:"), nil, engine.SetRange)
	for ; err == nil && len(k) >= 2 && string(k[:2]) == "b:"; k, _, err = c.Get(nil, nil, engine.Next) {
		keys = append(keys, string(k))
	}
	require.Equal(t, []string{"b:1", "b:2"}, keys)

	_, _, err = c.Get([]byte("b:3"), nil, engine.Set)
	require.True(t, engine.IsNotFound(err))

	k, v, err := c.Get([]byte("c:1"), nil, engine.Set)
	require.NoError(t, err)
	require.Equal(t, "c:1", string(k))
	require.Equal(t, "4", string(v))

	k, _, err = c.Get(nil, nil, engine.GetCurrent)
	require.NoError(t, err)
	require.Equal(t, "c:1", string(k))

	_, _, err = c.Get(nil, nil, engine.Next)
	require.True(t, engine.IsNotFound(err))

	k, _, err = c.Get(nil, nil, engine.First)
	require.NoError(t, err)
	require.Equal(t, "a:1", string(k))
}

func testCursorRenew(t *testing.T, open Opener) {
	env := mustOpen(t, open, Config(t))
	dbi := seed(t, env, "a", "k", "v")

	setup, err := env.BeginTxn(true)
	require.NoError(t, err)
	c, err := setup.OpenCursor(dbi)
	require.NoError(t, err)
	defer c.Close()
	setup.Abort()

	rtx, err := env.BeginTxn(true)
	require.NoError(t, err)
	defer rtx.Abort()

	require.NoError(t, c.Renew(rtx))
	k, v, err := c.Get(nil, nil, engine.First)
	require.NoError(t, err)
	require.Equal(t, "k", string(k))
	require.Equal(t, "v", string(v))
}

func testReadersFull(t *testing.T, open Opener) {
	cfg := Config(t)
	cfg.MaxReaders = 2
	env := mustOpen(t, open, cfg)
	seed(t, env, "a")

	var txns []engine.Txn
	defer func() {
		for _, txn := range txns {
			txn.Abort()
		}
	}()

	// A reset reader keeps its slot. MDBX may round the limit up to fill
	// its lock file page, so only the existence of a limit is checked.
	for {
		txn, err := env.BeginTxn(true)
		if err != nil {
			require.ErrorIs(t, err, engine.ErrReadersFull)
			break
		}
		txn.Reset()
		txns = append(txns, txn)
		require.LessOrEqual(t, len(txns), 4096, "reader limit not enforced")
	}
	require.NotEmpty(t, txns)

	txns[0].Abort()
	txn, err := env.BeginTxn(true)
	require.NoError(t, err)
	txns[0] = txn
}

func testMissingDBI(t *testing.T, open Opener) {
	env := mustOpen(t, open, Config(t))
	seed(t, env, "a")

	rtx, err := env.BeginTxn(true)
	require.NoError(t, err)
	defer rtx.Abort()

	_, err = rtx.OpenDBI("missing", 0)
	require.True(t, engine.IsNotFound(err), "got %v", err)
}
