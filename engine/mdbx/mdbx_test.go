package mdbx

import (
	"testing"

	"github.com/ledgerwatch/log/v3"
	"github.com/stretchr/testify/require"

	"github.com/Giulio2002/trashdb/engine"
	"github.com/Giulio2002/trashdb/engine/enginetest"
)

func TestBackend(t *testing.T) {
	enginetest.Run(t, Open)
}

func TestDupSort(t *testing.T) {
	env, err := Open(enginetest.Config(t), log.New())
	require.NoError(t, err)
	defer env.Close()

	txn, err := env.BeginTxn(false)
	require.NoError(t, err)
	dbi, err := txn.OpenDBI("dups", engine.Create|engine.DupSort)
	require.NoError(t, err)
	require.NoError(t, txn.Put(dbi, []byte("k"), []byte("v2"), engine.Upsert))
	require.NoError(t, txn.Put(dbi, []byte("k"), []byte("v1"), engine.Upsert))

	c, err := txn.OpenCursor(dbi)
	require.NoError(t, err)
	defer c.Close()

	_, v, err := c.Get([]byte("k"), nil, engine.Set)
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))
	_, v, err = c.Get(nil, nil, engine.Next)
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))

	require.NoError(t, txn.Commit())
}
