// Package store layers FrameworkStore, StateStore, and ConfigStore over a
// pkg/storage.PersistentStore, using the persistent layout /FrameworkID,
// /ConfigTarget, /Configurations/<id>,
// /Tasks/<name>/{TaskInfo,TaskStatus,GoalOverrideStatus,Properties/<key>}.
// There is no separate /SchedulerState/Uninstall key: the uninstall bit is
// the "Uninstall" property of the name "/SchedulerState", stored at
// /Tasks//SchedulerState/Properties/Uninstall.
package store

import (
	"github.com/mesosphere/svc-scheduler/pkg/storage"
)

const pathFrameworkID = "/FrameworkID"

// FrameworkStore persists the framework identity assigned by the master on
// first registration, so it can be recovered across restarts.
type FrameworkStore struct {
	backing storage.PersistentStore
}

// NewFrameworkStore wraps a PersistentStore as a FrameworkStore.
func NewFrameworkStore(backing storage.PersistentStore) *FrameworkStore {
	return &FrameworkStore{backing: backing}
}

// StoreFrameworkID persists the id assigned by the master.
func (f *FrameworkStore) StoreFrameworkID(id string) error {
	return f.backing.Set(pathFrameworkID, []byte(id))
}

// FetchFrameworkID returns the persisted framework id, and whether one was
// found (false on a fresh install, before the first registration).
func (f *FrameworkStore) FetchFrameworkID() (string, bool, error) {
	data, err := f.backing.Get(pathFrameworkID)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}
