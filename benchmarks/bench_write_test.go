package benchmarks

import (
	"fmt"
	"testing"

	"github.com/Giulio2002/trashdb"
)

// BenchmarkWriteBatch measures write transactions of batch puts each,
// committed on release.
func BenchmarkWriteBatch(b *testing.B) {
	for _, kind := range engines {
		for _, batch := range []int{1, 100, 1000} {
			b.Run(fmt.Sprintf("batch_%d/%s", batch, kind), func(b *testing.B) {
				env, _ := getCachedEnv(b, kind, benchSize, 1)
				next := benchSize

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					err := env.Update(benchDB, func(txn *trashdb.Txn) error {
						for j := 0; j < batch; j++ {
							if err := txn.Put(benchKey(next+j), benchValue(next+j), trashdb.Upsert); err != nil {
								return err
							}
						}
						return nil
					})
					if err != nil {
						b.Fatal(err)
					}
					next += batch
				}
			})
		}
	}
}

// BenchmarkDeclare measures declaring a new database, which writes its
// metadata record and fills its cursor pool.
func BenchmarkDeclare(b *testing.B) {
	for _, kind := range engines {
		b.Run(kind, func(b *testing.B) {
			CleanupBenchCache()
			env, err := trashdb.Open(trashdb.Options{Path: b.TempDir(), Engine: kind, NoSync: true})
			if err != nil {
				b.Fatal(err)
			}
			defer func() {
				env.Close()
				<-env.Done()
			}()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				name := fmt.Sprintf("db%d", i)
				if err := env.DeclareDatabase(trashdb.DbMeta{Name: name, Slots: 4}); err != nil {
					b.Fatal(err)
				}
				if err := env.CloseDatabase(name); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
