package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/storage"
	"github.com/mesosphere/svc-scheduler/pkg/types"
)

func taskInfoPath(name string) string   { return "/Tasks/" + name + "/TaskInfo" }
func taskStatusPath(name string) string { return "/Tasks/" + name + "/TaskStatus" }
func goalOverridePath(name string) string {
	return "/Tasks/" + name + "/GoalOverrideStatus"
}
func propertyPath(name, key string) string { return "/Tasks/" + name + "/Properties/" + key }

// StateStore persists TaskInfos, TaskStatuses, GoalOverrides, and free-form
// per-task properties. It maintains an in-memory task-id -> name index so
// that status updates (keyed by task-id, since names can be rebound across
// replace-on-permanent-failure) can be routed to the right TaskInfo without
// scanning every task on every update.
type StateStore struct {
	backing storage.PersistentStore

	mu        sync.RWMutex
	idToName  map[string]string // task-id -> task name
	lastState map[string]types.TaskState // name -> last known TaskState
}

// NewStateStore wraps a PersistentStore as a StateStore and rebuilds its
// in-memory task-id index from whatever TaskInfos are already durable.
func NewStateStore(backing storage.PersistentStore) (*StateStore, error) {
	s := &StateStore{
		backing:   backing,
		idToName:  make(map[string]string),
		lastState: make(map[string]types.TaskState),
	}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *StateStore) rebuildIndex() error {
	tasks, err := s.FetchTasks()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tasks {
		if t.TaskID != types.EmptyTaskID {
			s.idToName[t.TaskID] = t.Name
		}
		if status, err := s.fetchStatusLocked(t.Name); err == nil {
			s.lastState[t.Name] = status.State
		}
	}
	return nil
}

// StoreTasks upserts each TaskInfo, one write at a time so a crash mid-batch
// leaves at most one inconsistent task rather than all (see pkg/recorder).
// A TaskInfo carrying a new task-id (a relaunch under the same name) also
// clears the stale status recorded for the previous task-id.
func (s *StateStore) StoreTasks(tasks []*types.TaskInfo) error {
	for _, t := range tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("%w: marshal TaskInfo %s: %v", types.ErrStorage, t.Name, err)
		}
		if err := s.backing.Set(taskInfoPath(t.Name), data); err != nil {
			return err
		}
		if t.TaskID != types.EmptyTaskID {
			if st, err := s.fetchStatusLocked(t.Name); err == nil && st.TaskID != t.TaskID {
				if err := s.backing.Delete(taskStatusPath(t.Name)); err != nil {
					return err
				}
				s.mu.Lock()
				delete(s.lastState, t.Name)
				s.mu.Unlock()
			}
		}
		s.mu.Lock()
		if t.TaskID != types.EmptyTaskID {
			s.idToName[t.TaskID] = t.Name
		}
		s.mu.Unlock()
	}
	return nil
}

// FetchTasks returns every persisted TaskInfo.
func (s *StateStore) FetchTasks() ([]*types.TaskInfo, error) {
	names, err := s.backing.List("/Tasks")
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*types.TaskInfo
	for _, name := range names {
		data, err := s.backing.Get(taskInfoPath(name))
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		var t types.TaskInfo
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("%w: unmarshal TaskInfo %s: %v", types.ErrStorage, name, err)
		}
		out = append(out, &t)
	}
	return out, nil
}

// FetchTask returns one TaskInfo by name.
func (s *StateStore) FetchTask(name string) (*types.TaskInfo, error) {
	data, err := s.backing.Get(taskInfoPath(name))
	if err != nil {
		return nil, err
	}
	var t types.TaskInfo
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: unmarshal TaskInfo %s: %v", types.ErrStorage, name, err)
	}
	return &t, nil
}

// ClearTask removes every record (TaskInfo, TaskStatus, overrides,
// properties) for a task name.
func (s *StateStore) ClearTask(name string) error {
	s.mu.Lock()
	for id, n := range s.idToName {
		if n == name {
			delete(s.idToName, id)
		}
	}
	delete(s.lastState, name)
	s.mu.Unlock()
	return s.backing.RecursiveDelete("/Tasks/" + name)
}

// StoreStatus persists a TaskStatus. Per the data-model rule, the status
// arrives keyed by task-id (not name, since names can be rebound across a
// permanent-failure replace); StateStore resolves task-id to name via its
// index and rejects unknown task-ids. The write is idempotent and rejects a
// terminal-state task-id transitioning back to a non-terminal state.
func (s *StateStore) StoreStatus(status types.TaskStatus) error {
	s.mu.RLock()
	name, ok := s.idToName[status.TaskID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: unknown task-id %s", types.ErrInvalidTransition, status.TaskID)
	}

	s.mu.RLock()
	prev, hadPrev := s.lastState[name]
	s.mu.RUnlock()
	if hadPrev && prev.IsTerminal() && !status.State.IsTerminal() && prev != status.State {
		if last, err := s.fetchStatusLocked(name); err != nil || last.TaskID == status.TaskID {
			return fmt.Errorf("%w: task %s is terminal (%s), cannot move to %s",
				types.ErrInvalidTransition, name, prev, status.State)
		}
	}

	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("%w: marshal TaskStatus %s: %v", types.ErrStorage, name, err)
	}
	if err := s.backing.Set(taskStatusPath(name), data); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastState[name] = status.State
	s.mu.Unlock()
	return nil
}

func (s *StateStore) fetchStatusLocked(name string) (*types.TaskStatus, error) {
	data, err := s.backing.Get(taskStatusPath(name))
	if err != nil {
		return nil, err
	}
	var st types.TaskStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: unmarshal TaskStatus %s: %v", types.ErrStorage, name, err)
	}
	return &st, nil
}

// FetchStatus returns the last-known TaskStatus for a task name.
func (s *StateStore) FetchStatus(name string) (*types.TaskStatus, error) {
	return s.fetchStatusLocked(name)
}

// StoreGoalOverride persists a task's (override, progress) pair.
func (s *StateStore) StoreGoalOverride(name string, override types.GoalOverride) error {
	data, err := json.Marshal(override)
	if err != nil {
		return fmt.Errorf("%w: marshal GoalOverride %s: %v", types.ErrStorage, name, err)
	}
	return s.backing.Set(goalOverridePath(name), data)
}

// FetchGoalOverride returns a task's override, defaulting to (NONE,
// COMPLETE) when none has been recorded.
func (s *StateStore) FetchGoalOverride(name string) (types.GoalOverride, error) {
	data, err := s.backing.Get(goalOverridePath(name))
	if err != nil {
		if isNotFound(err) {
			return types.GoalOverride{Override: types.OverrideNone, Progress: types.ProgressComplete}, nil
		}
		return types.GoalOverride{}, err
	}
	var o types.GoalOverride
	if err := json.Unmarshal(data, &o); err != nil {
		return types.GoalOverride{}, fmt.Errorf("%w: unmarshal GoalOverride %s: %v", types.ErrStorage, name, err)
	}
	return o, nil
}

// StoreProperty persists a free-form per-task property.
func (s *StateStore) StoreProperty(name, key string, value []byte) error {
	return s.backing.Set(propertyPath(name, key), value)
}

// FetchProperty returns a free-form per-task property.
func (s *StateStore) FetchProperty(name, key string) ([]byte, error) {
	return s.backing.Get(propertyPath(name, key))
}
