package storage

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mesosphere/svc-scheduler/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// kvBucket is the single bucket every blob lives in; paths are the keys.
var kvBucket = []byte("kv")

// BoltStore implements PersistentStore using BoltDB, grounded on the same
// "one *bolt.DB handle, json-free raw blobs, one bucket per concern" shape
// the rest of this codebase's storage layer uses — here collapsed to a
// single bucket because the store is a flat path namespace, not a typed
// table per entity kind.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB-backed PersistentStore
// rooted at dataDir/scheduler.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "scheduler.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(kvBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func normalize(path string) string {
	return strings.TrimSuffix(path, "/")
}

// Get returns the blob at path, or types.ErrNotFound if absent.
func (s *BoltStore) Get(path string) ([]byte, error) {
	path = normalize(path)
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		v := b.Get([]byte(path))
		if v == nil {
			return types.ErrNotFound
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set durably writes data at path.
func (s *BoltStore) Set(path string, data []byte) error {
	path = normalize(path)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		return b.Put([]byte(path), data)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// Delete removes the single key at path. Missing keys are a no-op.
func (s *BoltStore) Delete(path string) error {
	path = normalize(path)
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		return b.Delete([]byte(path))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// RecursiveDelete removes path and every key nested under it, in a single
// transaction so a crash leaves either all or none of the subtree deleted.
func (s *BoltStore) RecursiveDelete(path string) error {
	path = normalize(path)
	prefix := path + "/"
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		c := b.Cursor()
		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			ks := string(k)
			if ks == path || strings.HasPrefix(ks, prefix) {
				key := make([]byte, len(k))
				copy(key, k)
				toDelete = append(toDelete, key)
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	return nil
}

// List returns the immediate child path segments under path.
func (s *BoltStore) List(path string) ([]string, error) {
	path = normalize(path)
	prefix := path + "/"
	seen := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(kvBucket)
		c := b.Cursor()
		for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			child := rest
			if idx := strings.Index(rest, "/"); idx >= 0 {
				child = rest[:idx]
			}
			seen[child] = true
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorage, err)
	}
	children := make([]string, 0, len(seen))
	for c := range seen {
		children = append(children, c)
	}
	sort.Strings(children)
	return children, nil
}
