// Package trashdb is a handle-pooling and lifecycle layer over an embedded,
// transactional, single-writer/multi-reader key-value engine (libmdbx or
// bbolt, see the engine package).
//
// It keeps a process-wide registry of named databases with deferred,
// reference-counted close; pools reset read transactions per worker; pools
// read cursors per database with blocking acquisition; and records every
// declared database in a reserved "metadata" database so the registry is
// rebuilt when the environment is reopened.
//
// Basic usage:
//
//	env, err := trashdb.Open(trashdb.Options{Path: "/path/to/db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	// Declare a database once; it survives restarts
//	err = env.DeclareDatabase(trashdb.DbMeta{Name: "users", Slots: 4})
//
//	// Write
//	err = env.Update("users", func(txn *trashdb.Txn) error {
//	    return txn.Put([]byte("key"), []byte("value"), trashdb.Upsert)
//	})
//
//	// Each worker goroutine owns a reader pool
//	rd, err := env.NewReaders(2)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rd.Close()
//
//	err = env.View(rd, "users", func(txn *trashdb.Txn) error {
//	    v, err := txn.Get([]byte("key"))
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(string(v))
//	    return nil
//	})
package trashdb
