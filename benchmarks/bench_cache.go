package benchmarks

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/ledgerwatch/log/v3"

	"github.com/Giulio2002/trashdb"
)

// Cached benchmark environment directory
const benchCacheDir = "testdata/benchdb"

const benchDB = "bench"

// A process holds one environment at a time, so only the most recently
// requested one stays open.
var (
	cacheMu  sync.Mutex
	cacheKey string
	cacheEnv *trashdb.Env
	samples  [][]byte
)

var engines = []string{trashdb.EngineMDBX, trashdb.EngineBolt}

// getCachedEnv returns an environment with numKeys sequential keys in the
// "bench" database, reusing the on-disk copy from an earlier run.
func getCachedEnv(b *testing.B, kind string, numKeys, slots int) (*trashdb.Env, [][]byte) {
	cacheMu.Lock()
	defer cacheMu.Unlock()

	key := fmt.Sprintf("%s_%d_%d", kind, numKeys, slots)
	if key == cacheKey {
		return cacheEnv, samples
	}
	closeCached()

	path := filepath.Join(benchCacheDir, fmt.Sprintf("plain_%d_%s", numKeys, kind))
	exists := fileExists(path)
	env, err := trashdb.Open(trashdb.Options{
		Path:       path,
		Engine:     kind,
		MapSize:    4 * datasize.GB,
		MaxReaders: 512,
		NoSync:     true,
		Logger:     log.New(),
	})
	if err != nil {
		b.Fatal(err)
	}
	if err := env.DeclareDatabase(trashdb.DbMeta{Name: benchDB, Slots: slots}); err != nil {
		b.Fatal(err)
	}
	if db := env.Lookup(benchDB); db.Slots() != slots {
		// declared by an earlier run with another slot count
		if err := env.CloseDatabase(benchDB); err != nil {
			b.Fatal(err)
		}
		if err := env.DeclareDatabase(trashdb.DbMeta{Name: benchDB, Slots: slots}); err != nil {
			b.Fatal(err)
		}
	}

	if !exists {
		b.Logf("Creating cached %s DB with %d keys...", kind, numKeys)
		populate(b, env, numKeys)
	} else {
		b.Logf("Using cached %s DB with %d keys", kind, numKeys)
	}

	cacheKey, cacheEnv = key, env
	samples = sampleKeys(numKeys, 10_000)
	return env, samples
}

func closeCached() {
	if cacheEnv == nil {
		return
	}
	cacheEnv.Close()
	<-cacheEnv.Done()
	cacheKey, cacheEnv, samples = "", nil, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func benchKey(i int) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(i))
	return k
}

func benchValue(i int) []byte {
	v := make([]byte, 32)
	binary.LittleEndian.PutUint64(v, uint64(i))
	return v
}

func populate(b *testing.B, env *trashdb.Env, numKeys int) {
	const batch = 10_000
	for start := 0; start < numKeys; start += batch {
		err := env.Update(benchDB, func(txn *trashdb.Txn) error {
			for i := start; i < start+batch && i < numKeys; i++ {
				if err := txn.Put(benchKey(i), benchValue(i), trashdb.Append); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func sampleKeys(numKeys, n int) [][]byte {
	rng := rand.New(rand.NewSource(42))
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = benchKey(rng.Intn(numKeys))
	}
	return keys
}

// CleanupBenchCache closes the cached environment.
func CleanupBenchCache() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	closeCached()
}

// DeleteBenchCache removes the cached environments from disk.
func DeleteBenchCache() error {
	CleanupBenchCache()
	return os.RemoveAll(benchCacheDir)
}
