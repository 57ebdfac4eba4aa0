package trashdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trashdb.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOptions(t *testing.T) {
	path := writeConfig(t, `
path = "/var/lib/trashdb"
engine = "bolt"
map_size = "64MB"
max_readers = 256
txn_databases = 4
no_sync = true
`)
	opts, err := LoadOptions(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/trashdb", opts.Path)
	require.Equal(t, EngineBolt, opts.Engine)
	require.Equal(t, 64*datasize.MB, opts.MapSize)
	require.Equal(t, uint64(256), opts.MaxReaders)
	require.Equal(t, 4, opts.TxnDatabases)
	require.True(t, opts.NoSync)
	require.Zero(t, opts.MaxDBs)

	opts = opts.withDefaults()
	require.Equal(t, uint64(DefaultMaxDBs), opts.MaxDBs)
	require.Equal(t, 4, opts.TxnDatabases)
	require.NotNil(t, opts.Logger)
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.toml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadOptions(writeConfig(t, `engine = "rocks"`))
	require.ErrorContains(t, err, "unknown engine")

	_, err = LoadOptions(writeConfig(t, `map_size = [1, 2]`))
	require.Error(t, err)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions("/tmp/x")
	require.Equal(t, DefaultEngine, opts.Engine)
	require.Equal(t, DefaultMapSize, opts.MapSize)
	require.Equal(t, uint64(DefaultMaxReaders), opts.MaxReaders)
	require.Equal(t, DefaultTxnDatabases, opts.TxnDatabases)
}
