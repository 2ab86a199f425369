package storage

import (
	"testing"

	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]PersistentStore {
	t.Helper()
	bolt, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]PersistentStore{
		"bolt": bolt,
		"mem":  NewMemStore(),
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("/FrameworkID", []byte("fw-1")))
			v, err := s.Get("/FrameworkID")
			require.NoError(t, err)
			assert.Equal(t, []byte("fw-1"), v)
		})
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("/nope")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestRecursiveDelete(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("/Tasks/p0-0/TaskInfo", []byte("a")))
			require.NoError(t, s.Set("/Tasks/p0-0/TaskStatus", []byte("b")))
			require.NoError(t, s.Set("/Tasks/p1-0/TaskInfo", []byte("c")))

			require.NoError(t, s.RecursiveDelete("/Tasks/p0-0"))

			_, err := s.Get("/Tasks/p0-0/TaskInfo")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = s.Get("/Tasks/p0-0/TaskStatus")
			assert.ErrorIs(t, err, types.ErrNotFound)

			v, err := s.Get("/Tasks/p1-0/TaskInfo")
			require.NoError(t, err)
			assert.Equal(t, []byte("c"), v)
		})
	}
}

func TestRecursiveDeleteRoot(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("/FrameworkID", []byte("fw")))
			require.NoError(t, s.Set("/Tasks/p0-0/TaskInfo", []byte("a")))

			require.NoError(t, s.RecursiveDelete("/"))

			_, err := s.Get("/FrameworkID")
			assert.ErrorIs(t, err, types.ErrNotFound)
			_, err = s.Get("/Tasks/p0-0/TaskInfo")
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("/Tasks/p0-0/TaskInfo", []byte("a")))
			require.NoError(t, s.Set("/Tasks/p1-0/TaskInfo", []byte("b")))

			children, err := s.List("/Tasks")
			require.NoError(t, err)
			assert.Equal(t, []string{"p0-0", "p1-0"}, children)
		})
	}
}
