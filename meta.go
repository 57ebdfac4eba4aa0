package trashdb

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/Giulio2002/trashdb/engine"
)

// DbMeta is the durable description of a user database, one record per
// database in the metadata database under the key "dbs:" + Name.
type DbMeta struct {
	Name  string `codec:"name"`
	Flags uint   `codec:"flags"`
	Slots int    `codec:"slots"`
}

var cbor codec.CborHandle

func (m DbMeta) key() []byte {
	return []byte(metaPrefix + m.Name)
}

func (m DbMeta) encode() ([]byte, error) {
	var buf []byte
	if err := codec.NewEncoderBytes(&buf, &cbor).Encode(m); err != nil {
		return nil, errors.Wrapf(err, "encode meta %s", m.Name)
	}
	return buf, nil
}

func decodeMeta(data []byte) (DbMeta, error) {
	var m DbMeta
	if err := codec.NewDecoderBytes(data, &cbor).Decode(&m); err != nil {
		return DbMeta{}, errors.Wrap(err, "decode meta")
	}
	return m, nil
}

func validName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return errorf(ErrInvalidName, "length %d", len(name))
	}
	return nil
}

// normalize fills defaults and checks the record can be declared.
func (m DbMeta) normalize() (DbMeta, error) {
	if err := validName(m.Name); err != nil {
		return m, err
	}
	if m.Name == MetadataName {
		return m, errorf(ErrInvalidOperation, "%s is reserved", m.Name)
	}
	if m.Slots <= 0 {
		m.Slots = 1
	}
	m.Flags &^= engine.Create
	return m, nil
}

// DeclareDatabase durably records meta in the metadata database, opens the
// engine sub-database and registers it with a filled cursor pool.
// Declaring a name that is already registered does nothing.
//
// The record is written without holding the registry lock, so
// transactions keep running while the declaration waits for the engine
// writer. DeclareDatabase must not be called by a goroutine that holds a
// write Txn itself.
func (e *Env) DeclareDatabase(meta DbMeta) error {
	meta, err := meta.normalize()
	if err != nil {
		return err
	}

	e.declareMu.Lock()
	defer e.declareMu.Unlock()

	e.mu.RLock()
	if e.state.Load() != envOpen || e.meta == nil {
		e.mu.RUnlock()
		return NewError(ErrEnvironmentClosed)
	}
	if e.lookupLocked(meta.Name) != nil {
		e.mu.RUnlock()
		return nil
	}
	// pins the engine open until the record is written
	md := e.meta
	err = md.attach()
	e.mu.RUnlock()
	if err != nil {
		return NewError(ErrEnvironmentClosed)
	}
	defer e.detach(md)

	dbi, err := e.writeMeta(md.dbi, meta)
	if err != nil {
		e.logger.Error("declare failed", "db", meta.Name, "err", err)
		return WrapError(ErrFatal, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Load() != envOpen {
		// recorded, so the next Open recovers it
		e.engine.CloseDBI(dbi)
		return NewError(ErrEnvironmentClosed)
	}
	db, err := e.registerLocked(meta, dbi)
	if err != nil {
		return err
	}
	db.logger.Info("database declared", "slots", meta.Slots, "flags", meta.Flags)
	return nil
}

// writeMeta opens the sub-database and stores its record in one write
// transaction.
func (e *Env) writeMeta(metaDBI engine.DBI, meta DbMeta) (engine.DBI, error) {
	val, err := meta.encode()
	if err != nil {
		return 0, err
	}
	txn, err := e.engine.BeginTxn(false)
	if err != nil {
		return 0, err
	}
	dbi, err := txn.OpenDBI(meta.Name, meta.Flags|engine.Create)
	if err != nil {
		txn.Abort()
		return 0, errors.WithMessagef(err, "open %s", meta.Name)
	}
	if err := txn.Put(metaDBI, meta.key(), val, engine.Upsert); err != nil {
		txn.Abort()
		return 0, errors.WithMessagef(err, "put %s", meta.key())
	}
	if err := txn.Commit(); err != nil {
		return 0, errors.WithMessage(err, "commit")
	}
	return dbi, nil
}

// registerLocked adds a database to the registry and fills its cursor
// pool. On failure the database is finalized again.
func (e *Env) registerLocked(meta DbMeta, dbi engine.DBI) (*Database, error) {
	db := newDatabase(e, meta, dbi)
	db.id = e.registry.Insert(db)
	if err := db.fillPool(); err != nil {
		db.logger.Warn("cannot fill cursor pool", "slots", meta.Slots, "err", err)
		db.mu.Lock()
		db.state = DbFinalized
		db.mu.Unlock()
		db.finalize()
		e.registry.Delete(db.id)
		return nil, wrapEngine(err)
	}
	return db, nil
}

// recoverDatabases opens the metadata database and registers every
// database recorded in it.
func (e *Env) recoverDatabases() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	metaDBI, metas, dbis, err := e.readMetas()
	if err != nil {
		e.logger.Error("recovery failed", "path", e.path, "err", err)
		return WrapError(ErrFatal, err)
	}

	db, err := e.registerLocked(DbMeta{Name: MetadataName, Slots: metadataSlots}, metaDBI)
	if err != nil {
		return WrapError(ErrFatal, err)
	}
	e.meta = db

	for i, meta := range metas {
		if _, err := e.registerLocked(meta, dbis[i]); err != nil {
			return WrapError(ErrFatal, err)
		}
	}
	if len(metas) > 0 {
		e.logger.Info("databases recovered", "count", len(metas))
	}
	return nil
}

// readMetas scans the "dbs:" records and opens each recorded sub-database
// in a single write transaction.
func (e *Env) readMetas() (engine.DBI, []DbMeta, []engine.DBI, error) {
	txn, err := e.engine.BeginTxn(false)
	if err != nil {
		return 0, nil, nil, err
	}
	metaDBI, err := txn.OpenDBI(MetadataName, engine.Create)
	if err != nil {
		txn.Abort()
		return 0, nil, nil, errors.WithMessage(err, "open metadata")
	}

	var (
		metas []DbMeta
		dbis  []engine.DBI
	)
	err = func() error {
		c, err := txn.OpenCursor(metaDBI)
		if err != nil {
			return err
		}
		defer c.Close()

		prefix := []byte(metaPrefix)
		k, v, err := c.Get(prefix, nil, engine.SetRange)
		for ; err == nil && bytes.HasPrefix(k, prefix); k, v, err = c.Get(nil, nil, engine.Next) {
			meta, derr := decodeMeta(v)
			if derr != nil {
				return errors.WithMessagef(derr, "record %s", k)
			}
			dbi, oerr := txn.OpenDBI(meta.Name, meta.Flags|engine.Create)
			if oerr != nil {
				return errors.WithMessagef(oerr, "open %s", meta.Name)
			}
			if meta.Slots <= 0 {
				meta.Slots = 1
			}
			metas = append(metas, meta)
			dbis = append(dbis, dbi)
		}
		if err != nil && !engine.IsNotFound(err) {
			return err
		}
		return nil
	}()
	if err != nil {
		txn.Abort()
		return 0, nil, nil, err
	}
	if err := txn.Commit(); err != nil {
		return 0, nil, nil, errors.WithMessage(err, "commit")
	}
	return metaDBI, metas, dbis, nil
}
