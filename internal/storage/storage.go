// Package storage provides persistent data storage for the spoilage risk services.
// It uses BoltDB as the underlying storage engine to keep a registry of training
// runs and an audit log of served predictions.
//
// Keys are "<scope>_<zero-padded unix nanos>" so a cursor walks each scope in
// time order and range queries are plain byte comparisons.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	runsBucket        = "runs"        // Bucket name for training run records
	predictionsBucket = "predictions" // Bucket name for served prediction records

	dbFileName = "coldchain-risk.db"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures its buckets exist.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(predictionsBucket)); err != nil {
			return fmt.Errorf("create predictions bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) put(bucket, scope string, ts time.Time, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).Put(recordKey(scope, ts), data)
	})
}

// scanRange calls fn for every record of scope with start <= ts <= end, oldest first.
func (s *Store) scanRange(bucket, scope string, start, end time.Time, fn func(v []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		endKey := recordKey(scope, end)
		for k, v := c.Seek(recordKey(scope, start)); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			if !ownsKey(k, scope) {
				continue
			}
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// last returns the newest record of scope.
func (s *Store) last(bucket, scope string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		prefix := scopePrefix(scope)

		// Seek past the scope, then step back onto its newest key.
		k, v := c.Seek(append(append([]byte(nil), prefix[:len(prefix)-1]...), '_'+1))
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.HasPrefix(k, prefix); k, v = c.Prev() {
			if ownsKey(k, scope) {
				out = append([]byte(nil), v...)
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

func scopePrefix(scope string) []byte {
	return []byte(scope + "_")
}

// ownsKey rejects keys of a longer scope that shares this scope's prefix.
func ownsKey(k []byte, scope string) bool {
	return len(k) == len(scope)+1+tsDigits && bytes.HasPrefix(k, scopePrefix(scope))
}

const tsDigits = 20

func recordKey(scope string, ts time.Time) []byte {
	return []byte(fmt.Sprintf("%s_%020d", scope, ts.UnixNano()))
}
