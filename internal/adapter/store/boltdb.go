package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"kwscan/internal/domain"
)

var (
	bucketOutcomes = []byte("outcomes")
	bucketMeta     = []byte("meta")
)

// BoltStore persists per-file outcomes keyed by content digest so unchanged
// files are not re-analyzed on the next run.
type BoltStore struct {
	db *bbolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketOutcomes, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// Get returns the cached outcome for key.
func (s *BoltStore) Get(key string) (domain.FileOutcome, bool, error) {
	var (
		outcome domain.FileOutcome
		found   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketOutcomes).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &outcome); err != nil {
			return fmt.Errorf("corrupt cache entry %s: %w", key, err)
		}
		found = true
		return nil
	})
	return outcome, found, err
}

// Put stores outcome under key. Concurrent calls are coalesced into shared
// write transactions.
func (s *BoltStore) Put(key string, outcome domain.FileOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return err
	}
	return s.db.Batch(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOutcomes).Put([]byte(key), data)
	})
}

// Count returns the number of cached outcomes.
func (s *BoltStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketOutcomes).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
