/*
Package storage implements PersistentStore: the flat, path-keyed blob store
every other layer persists through. BoltStore backs it with a single bbolt
bucket keyed by the full slash-separated path; MemStore backs it with a
mutex-guarded map for tests that don't need real durability.

RecursiveDelete and List both operate by prefix-scanning the key space,
since bbolt has no native hierarchy — this is the one place path structure
is interpreted; every caller above this package treats paths as opaque
strings.
*/
package storage
