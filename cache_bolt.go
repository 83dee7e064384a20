package foxytools

import (
	"context"
	"errors"

	"github.com/boltdb/bolt"
)

// BoltBackend keeps cache entries in a bolt database, one bucket per
// collection.
type BoltBackend struct {
	DB *bolt.DB
}

// NewBoltBackend opens (or creates) the database at path.
func NewBoltBackend(path string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &StoreIOError{Op: "open", Path: path, Err: err}
	}
	return &BoltBackend{DB: db}, nil
}

// Close releases the database file lock.
func (b *BoltBackend) Close() error {
	return b.DB.Close()
}

func (b *BoltBackend) Get(_ context.Context, collection, key string) ([]byte, bool, error) {
	var value []byte
	err := b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key)); v != nil {
			// v is only valid inside the transaction
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, b.ioError("get", err)
	}
	return value, value != nil, nil
}

func (b *BoltBackend) Put(_ context.Context, collection, key string, value []byte) error {
	err := b.DB.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key), value)
	})
	if err != nil {
		return b.ioError("put", err)
	}
	return nil
}

func (b *BoltBackend) Delete(_ context.Context, collection, key string) error {
	err := b.DB.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
	if err != nil {
		return b.ioError("delete", err)
	}
	return nil
}

func (b *BoltBackend) DeleteAll(_ context.Context, collection string) error {
	err := b.DB.Update(func(tx *bolt.Tx) error {
		err := tx.DeleteBucket([]byte(collection))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return b.ioError("delete_all", err)
	}
	return nil
}

func (b *BoltBackend) ioError(op string, err error) error {
	return &StoreIOError{Op: op, Path: b.DB.Path(), Err: err}
}
