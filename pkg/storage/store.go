// Package storage implements the PersistentStore contract: a flat namespace
// of byte blobs keyed by slash-separated path, with recursive delete. It is
// the sole durability substrate for the scheduler — FrameworkStore,
// StateStore, and ConfigStore (pkg/store) are all thin typed wrappers over
// this interface.
package storage

// PersistentStore is a key/value blob store with recursive delete. Set
// overwrites in place; no earlier versions of a key are kept. Writes are
// durable before Set/Delete return; reads observe the latest durable write.
// There are no multi-key transactions: pkg/recorder writes one TaskInfo per
// Set, so a crash mid-batch leaves at most one record inconsistent.
type PersistentStore interface {
	// Get returns the blob at path, or types.ErrNotFound if absent.
	Get(path string) ([]byte, error)

	// Set durably writes data at path, creating or overwriting it.
	Set(path string, data []byte) error

	// Delete removes the single key at path. Deleting a missing key is a
	// no-op, not an error.
	Delete(path string) error

	// RecursiveDelete removes path and every key nested under it
	// (path + "/..."). Deleting a missing subtree is a no-op.
	RecursiveDelete(path string) error

	// List returns the immediate child path segments under path.
	List(path string) ([]string, error)

	// Close releases the backing resources.
	Close() error
}
