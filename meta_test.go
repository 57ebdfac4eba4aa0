package trashdb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/trashdb/engine"
)

func TestRecovery(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind string) {
		opts := testOptions(t, kind)

		env, err := Open(opts)
		require.NoError(t, err)
		declare(t, env, "x", 3)
		declare(t, env, "y", 1)
		fill(t, env, "x", "k", "v")
		require.NoError(t, env.Close())
		waitClosed(t, env)

		env = openEnv(t, opts)
		x := env.Lookup("x")
		require.NotNil(t, x)
		require.Equal(t, 3, x.Slots())
		require.Equal(t, 3, x.IdleCursors())
		require.NotNil(t, env.Lookup("y"))
		require.Len(t, env.Databases(), 2)

		require.NoError(t, env.View(nil, "x", func(txn *Txn) error {
			v, err := txn.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "v", string(v))
			return nil
		}))
	})
}

func TestRecoveryAfterDatabaseClose(t *testing.T) {
	opts := testOptions(t, EngineBolt)
	env, err := Open(opts)
	require.NoError(t, err)
	declare(t, env, "x", 2)
	require.NoError(t, env.CloseDatabase("x"))
	require.Nil(t, env.Lookup("x"))
	require.NoError(t, env.Close())
	waitClosed(t, env)

	// closing a database does not forget its declaration
	env = openEnv(t, opts)
	require.NotNil(t, env.Lookup("x"))
}

func TestDeclareIsNoopWhenRegistered(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	x := declare(t, env, "x", 2)

	require.NoError(t, env.DeclareDatabase(DbMeta{Name: "x", Slots: 5}))
	require.Same(t, x, env.Lookup("x"))
	require.Equal(t, 2, x.Slots())
	require.Equal(t, 2, x.IdleCursors())
}

func TestRedeclareAfterClose(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind string) {
		env := openEnv(t, testOptions(t, kind))
		declare(t, env, "x", 1)
		fill(t, env, "x", "k", "v")
		require.NoError(t, env.CloseDatabase("x"))
		require.Nil(t, env.Lookup("x"))

		x := declare(t, env, "x", 4)
		require.Equal(t, 4, x.Slots())
		require.NoError(t, env.View(nil, "x", func(txn *Txn) error {
			v, err := txn.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, "v", string(v))
			return nil
		}))
	})
}

func TestDeclareValidation(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))

	require.ErrorIs(t, env.DeclareDatabase(DbMeta{Name: MetadataName}), ErrInvalidOperationError)
	require.ErrorIs(t, env.DeclareDatabase(DbMeta{}), ErrInvalidNameError)
	require.ErrorIs(t, env.DeclareDatabase(DbMeta{Name: strings.Repeat("n", MaxNameLen+1)}), ErrInvalidNameError)
	require.NoError(t, env.DeclareDatabase(DbMeta{Name: strings.Repeat("n", MaxNameLen)}))
}

func TestDeclareUnsupportedFlags(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	err := env.DeclareDatabase(DbMeta{Name: "dups", Flags: DupSort})
	require.True(t, IsFatal(err), "got %v", err)
	require.Nil(t, env.Lookup("dups"))
}

func TestMetaRecord(t *testing.T) {
	forEachEngine(t, func(t *testing.T, kind string) {
		env := openEnv(t, testOptions(t, kind))
		declare(t, env, "x", 0)

		txn, err := env.engine.BeginTxn(true)
		require.NoError(t, err)
		defer txn.Abort()

		raw, err := txn.Get(env.meta.dbi, []byte("dbs:x"))
		require.NoError(t, err)
		meta, err := decodeMeta(raw)
		require.NoError(t, err)
		require.Equal(t, DbMeta{Name: "x", Slots: 1}, meta)

		_, err = txn.Get(env.meta.dbi, []byte("dbs:y"))
		require.True(t, engine.IsNotFound(err))
	})
}

func TestMetadataNotAttachable(t *testing.T) {
	env := openEnv(t, testOptions(t, EngineBolt))
	declare(t, env, "x", 1)

	_, err := env.BeginTxn(nil, MetadataName, TxnWrite)
	require.ErrorIs(t, err, ErrInvalidOperationError)
	_, err = env.BeginTxn(nil, MetadataName, TxnRead)
	require.ErrorIs(t, err, ErrInvalidOperationError)

	txn, err := env.BeginTxn(nil, "x", TxnWrite)
	require.NoError(t, err)
	require.ErrorIs(t, txn.Attach(MetadataName), ErrInvalidOperationError)
	require.ErrorIs(t, txn.Switch(MetadataName), ErrInvalidOperationError)
	require.Equal(t, "x", txn.Database().Name())
	require.NoError(t, txn.Release())
	require.Zero(t, env.Lookup(MetadataName).Refs())
}

func TestMetaCodec(t *testing.T) {
	in := DbMeta{Name: "accounts", Flags: DupSort, Slots: 7}
	raw, err := in.encode()
	require.NoError(t, err)

	out, err := decodeMeta(raw)
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = decodeMeta(raw[:len(raw)/2])
	require.Error(t, err)
}
