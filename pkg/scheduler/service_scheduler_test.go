package scheduler

import (
	"testing"

	"github.com/mesosphere/svc-scheduler/pkg/evaluator"
	"github.com/mesosphere/svc-scheduler/pkg/mesosapi"
	"github.com/mesosphere/svc-scheduler/pkg/plan"
	"github.com/mesosphere/svc-scheduler/pkg/storage"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServiceScheduler(t *testing.T) (*ServiceScheduler, *store.ConfigStore, *store.StateStore) {
	t.Helper()
	config := store.NewConfigStore(storage.NewMemStore())
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	svc := &types.ServiceSpec{
		Name: "svc",
		Pods: []types.Pod{
			{Name: "p0", Tasks: []types.TaskSpec{{Name: "0"}}},
			{Name: "p1", Tasks: []types.TaskSpec{{Name: "0"}}},
		},
	}
	return NewServiceScheduler(config, state, svc), config, state
}

func TestDeployRegistersDecommissionForRemovedPods(t *testing.T) {
	s, _, _ := newTestServiceScheduler(t)
	previous := &types.ServiceSpec{Pods: []types.Pod{{Name: "p0"}, {Name: "p1"}}}
	next := &types.ServiceSpec{Pods: []types.Pod{{Name: "p0"}}}

	s.Deploy(previous, next)

	mgr := s.Coordinator().Manager("decommission")
	require.NotNil(t, mgr)
	assert.Len(t, mgr.Plan().Phases[0].Steps, 1)
	assert.Equal(t, "p1", mgr.Plan().Phases[0].Steps[0].PodName)
}

// Once uninstalling, Deploy must be an absorbed no-op: no new deploy
// manager appears and the single uninstall manager survives.
func TestToUninstallSchedulerIsAbsorbing(t *testing.T) {
	s, _, state := newTestServiceScheduler(t)
	svc := &types.ServiceSpec{Pods: []types.Pod{{Name: "p0"}, {Name: "p1"}}}

	require.NoError(t, s.ToUninstallScheduler(svc))
	assert.True(t, s.IsUninstalling())
	assert.NotNil(t, s.Coordinator().Manager("uninstall"))
	assert.Nil(t, s.Coordinator().Manager("deploy"))

	data, err := state.FetchProperty("/SchedulerState", "Uninstall")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), data)

	s.Deploy(svc, &types.ServiceSpec{Pods: []types.Pod{{Name: "p0"}, {Name: "p1"}, {Name: "p2"}}})
	assert.Nil(t, s.Coordinator().Manager("deploy"))
	assert.NotNil(t, s.Coordinator().Manager("uninstall"))

	require.NoError(t, s.ToUninstallScheduler(svc))
}

func TestCompleteReportsFalseUntilEveryManagerDone(t *testing.T) {
	s, _, _ := newTestServiceScheduler(t)
	assert.False(t, s.Complete())

	for _, m := range s.Coordinator().Managers() {
		for _, ph := range m.Plan().Phases {
			for _, st := range ph.Steps {
				st.Advance(plan.StepPrepared)
				st.Advance(plan.StepStarting)
				st.Advance(plan.StepStarted)
				st.Advance(plan.StepComplete)
			}
		}
	}
	assert.True(t, s.Complete())
}

func TestRegisteredReconcilesKnownTasks(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, state.StoreTasks([]*types.TaskInfo{{Name: "p0-0", TaskID: "t1", PodName: "p0"}}))

	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t)
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)

	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)
	f.Registered("fw-1", mesosapi.MasterInfo{Hostname: "master"})

	require.Len(t, driver.Reconciled, 1)
	assert.Equal(t, "t1", driver.Reconciled[0][0].TaskID)

	id, ok, err := framework.FetchFrameworkID()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "fw-1", id)
}

func TestStatusUpdateMarksPermanentlyFailedOnGCError(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, state.StoreTasks([]*types.TaskInfo{{Name: "p0-0", TaskID: "t1", PodName: "p0"}}))

	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t)
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)
	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)

	f.StatusUpdate(types.TaskStatus{TaskID: "t1", State: types.TaskFailed, Reason: "REASON_GC_ERROR"})

	task, err := state.FetchTask("p0-0")
	require.NoError(t, err)
	assert.True(t, task.PermanentlyFailed)
}

func TestDisconnectedExitsWithMasterDisconnectCode(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t)
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)
	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)

	var gotCode int
	origExit := osExit
	osExit = func(code int) { gotCode = code }
	defer func() { osExit = origExit }()

	f.Disconnected()
	assert.Equal(t, mesosapi.ExitMasterDisconnect, gotCode)

	f.Error("boom")
	assert.Equal(t, mesosapi.ExitDriverError, gotCode)
}

// A task's step reaches STARTING once its launch is accepted; once its
// status goes RUNNING, StatusUpdate must carry the step the rest of the way
// to COMPLETE, or it would be re-evaluated and re-launched every tick.
func TestStatusUpdateAdvancesStepToCompleteOnRunning(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, state.StoreTasks([]*types.TaskInfo{{Name: "p0-0", TaskID: "t1", PodName: "p0"}}))

	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t)
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)
	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)

	step := svcSched.Coordinator().Manager("deploy").Plan().Phases[0].Steps[0]
	require.Equal(t, "p0", step.PodName)
	require.True(t, step.Advance(plan.StepPrepared))
	require.True(t, step.Advance(plan.StepStarting))

	f.StatusUpdate(types.TaskStatus{TaskID: "t1", State: types.TaskRunning})

	assert.Equal(t, plan.StepComplete, step.State())
}

// A non-permanent terminal failure (no GC-error reason) must hand the pod to
// the recovery manager instead of silently dropping it.
func TestStatusUpdateRecoversPodOnTransientFailure(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, state.StoreTasks([]*types.TaskInfo{{Name: "p0-0", TaskID: "t1", PodName: "p0"}}))

	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t)
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)
	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)

	f.StatusUpdate(types.TaskStatus{TaskID: "t1", State: types.TaskFailed, Reason: "REASON_COMMAND_EXECUTOR_FAILED"})

	mgr := svcSched.Coordinator().Manager("recovery")
	require.NotNil(t, mgr)
	require.Len(t, mgr.Plan().Phases[0].Steps, 1)
	assert.Equal(t, "p0", mgr.Plan().Phases[0].Steps[0].PodName)

	task, err := state.FetchTask("p0-0")
	require.NoError(t, err)
	assert.False(t, task.PermanentlyFailed)
}

// Registered must prune stale tasks exactly once, on first registration:
// a task whose pod is no longer named by any active manager gets its
// TaskID nulled and the master told to kill the old task-id.
func TestRegisteredPrunesStaleTasks(t *testing.T) {
	state, err := store.NewStateStore(storage.NewMemStore())
	require.NoError(t, err)
	require.NoError(t, state.StoreTasks([]*types.TaskInfo{
		{Name: "gone-0", TaskID: "stale-1", PodName: "gone"},
	}))

	framework := store.NewFrameworkStore(storage.NewMemStore())
	driver := mesosapi.NewFakeDriver()
	svcSched, _, _ := newTestServiceScheduler(t) // deploy manager covers p0, p1 only
	processor := NewOfferProcessor(4, func([]types.Offer) {})
	tracker := evaluator.NewOfferOutcomeTracker(4)
	f := NewFrameworkScheduler(framework, state, svcSched, processor, driver, tracker)

	f.Registered("fw-1", mesosapi.MasterInfo{Hostname: "master"})

	assert.Contains(t, driver.Killed, "stale-1")
	task, err := state.FetchTask("gone-0")
	require.NoError(t, err)
	assert.Equal(t, types.EmptyTaskID, task.TaskID)
}
