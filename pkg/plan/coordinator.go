package plan

import "sync"

// Coordinator owns every active PlanManager and arbitrates dirty assets
// across them within one worker tick: once a pod name has been claimed by
// one manager's requirement for this tick, every other manager's
// CandidateRequirements call excludes it. This is the capability described
// in the design notes as an explicit read-only view passed to managers,
// not a back-pointer from manager to coordinator.
type Coordinator struct {
	mu       sync.Mutex
	managers map[string]PlanManager
	dirty    map[string]struct{}
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		managers: make(map[string]PlanManager),
		dirty:    make(map[string]struct{}),
	}
}

// Register adds or replaces the manager under its name.
func (c *Coordinator) Register(m PlanManager) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managers[m.Name()] = m
}

// Unregister removes a manager, e.g. once its plan completes.
func (c *Coordinator) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.managers, name)
}

// Manager returns the named manager, or nil if none is registered.
func (c *Coordinator) Manager(name string) PlanManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.managers[name]
}

// Managers returns every registered manager, in no particular order.
func (c *Coordinator) Managers() []PlanManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PlanManager, 0, len(c.managers))
	for _, m := range c.managers {
		out = append(out, m)
	}
	return out
}

// BeginTick clears the dirty set; call once per worker iteration before
// collecting candidate requirements from any manager.
func (c *Coordinator) BeginTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = make(map[string]struct{})
}

// MarkDirty records that podName has been claimed by some manager this
// tick; subsequent IsDirty / CandidateRequirements calls will exclude it.
func (c *Coordinator) MarkDirty(podName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[podName] = struct{}{}
}

// IsDirty implements DirtyAssets.
func (c *Coordinator) IsDirty(podName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.dirty[podName]
	return ok
}

// CollectRequirements walks every registered manager in a stable order
// (uninstall and decommission first, so teardown always wins a contested
// pod name over a fresh deploy) and returns the requirements still open
// this tick, marking each claimed pod dirty as it goes.
func (c *Coordinator) CollectRequirements() []StepRequirement {
	c.mu.Lock()
	managers := make([]PlanManager, 0, len(c.managers))
	for _, m := range c.managers {
		managers = append(managers, m)
	}
	c.mu.Unlock()

	ordered := orderByPriority(managers)

	var out []StepRequirement
	for _, m := range ordered {
		for _, sr := range m.CandidateRequirements(c) {
			c.MarkDirty(sr.Step.PodName)
			out = append(out, sr)
		}
	}
	return out
}

// StepForPod returns the step driving podName in whichever manager
// currently owns it, or nil if no registered manager has a step for that
// pod. Priority ordering and dirty-asset exclusion keep at most one manager
// actively driving a given pod per tick, so the first match found is
// returned.
func (c *Coordinator) StepForPod(podName string) *Step {
	c.mu.Lock()
	managers := make([]PlanManager, 0, len(c.managers))
	for _, m := range c.managers {
		managers = append(managers, m)
	}
	c.mu.Unlock()

	for _, m := range orderByPriority(managers) {
		for _, ph := range m.Plan().Phases {
			for _, st := range ph.Steps {
				if st.PodName == podName {
					return st
				}
			}
		}
	}
	return nil
}

// PodsOfKind returns the set of pod names referenced by any step of a
// manager whose Kind is one of kinds. Used to exclude pods already being
// torn down from reservation-reuse and unexpected-resource bookkeeping.
func (c *Coordinator) PodsOfKind(kinds ...Kind) map[string]bool {
	want := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	c.mu.Lock()
	managers := make([]PlanManager, 0, len(c.managers))
	for _, m := range c.managers {
		managers = append(managers, m)
	}
	c.mu.Unlock()

	out := make(map[string]bool)
	for _, m := range managers {
		if !want[m.Kind()] {
			continue
		}
		for _, ph := range m.Plan().Phases {
			for _, st := range ph.Steps {
				out[st.PodName] = true
			}
		}
	}
	return out
}

// orderByPriority gives uninstall and decommission managers first pick of
// any contested pod name, since tearing down must never lose a race to a
// deploy or recovery plan trying to (re)launch the same pod.
func orderByPriority(managers []PlanManager) []PlanManager {
	priority := map[Kind]int{
		KindUninstall:    0,
		KindDecommission: 1,
		KindRecovery:     2,
		KindDeploy:       3,
	}
	out := make([]PlanManager, len(managers))
	copy(out, managers)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && priority[out[j].Kind()] < priority[out[j-1].Kind()]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
