package scheduler

import (
	"os"
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/evaluator"
	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/mesosapi"
	"github.com/mesosphere/svc-scheduler/pkg/plan"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// osExit is a var so tests can stub process exit on the fatal driver paths.
var osExit = os.Exit

// ServiceScheduler owns the PlanCoordinator for one service across its
// lifetime: it starts in deploy mode, can transition to decommission mode
// as pods are removed from the target spec, and is handed off to uninstall
// mode exactly once via toUninstallScheduler. Once in uninstall mode, no
// deploy-mode transition ever occurs again for the life of the process —
// the absorbing property the universal properties require.
type ServiceScheduler struct {
	mu          sync.Mutex
	coordinator *plan.Coordinator
	config      *store.ConfigStore
	state       *store.StateStore
	logger      zerolog.Logger

	current      *types.ServiceSpec
	uninstalling bool
	secrets      mesosapi.SecretsClient
}

// NewServiceScheduler builds a ServiceScheduler around a fresh target
// ServiceSpec, registering its deployment manager.
func NewServiceScheduler(config *store.ConfigStore, state *store.StateStore, svc *types.ServiceSpec) *ServiceScheduler {
	coord := plan.NewCoordinator()
	coord.Register(plan.NewDeploymentManager(svc))
	return &ServiceScheduler{
		coordinator: coord,
		config:      config,
		state:       state,
		current:     svc,
		logger:      log.WithComponent("service_scheduler"),
	}
}

// SetSecretsClient installs the client FinalizeUninstall uses to delete a
// service's TLS secrets. Leaving it unset (nil, the default) skips that
// step.
func (s *ServiceScheduler) SetSecretsClient(c mesosapi.SecretsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets = c
}

// Coordinator returns the underlying PlanCoordinator, for PlanScheduler to
// drive.
func (s *ServiceScheduler) Coordinator() *plan.Coordinator {
	return s.coordinator
}

// IsUninstalling reports whether this scheduler has been handed off to
// uninstall mode.
func (s *ServiceScheduler) IsUninstalling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uninstalling
}

// Deploy applies a new target ServiceSpec: pods removed from the previous
// spec get a decommission manager, and the deploy manager is rebuilt
// against the new spec. A no-op once uninstalling, since deploy-mode
// transitions are absorbed by uninstall.
func (s *ServiceScheduler) Deploy(previous, next *types.ServiceSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uninstalling {
		s.logger.Warn().Msg("ignoring deploy: scheduler is in uninstall mode")
		return
	}

	removed := removedPodNames(previous, next)
	if len(removed) > 0 {
		s.coordinator.Register(plan.NewDecommissionManager(removed))
	}
	s.coordinator.Register(plan.NewDeploymentManager(next))
	s.current = next
}

// ActivePodNames returns every pod name any registered manager still has a
// step for, regardless of kind: a pod mid-decommission is still active
// (still owns a TaskInfo worth reconciling) until its teardown step
// completes and the TaskInfo record is cleared.
func (s *ServiceScheduler) ActivePodNames() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, m := range s.coordinator.Managers() {
		for _, ph := range m.Plan().Phases {
			for _, st := range ph.Steps {
				out[st.PodName] = true
			}
		}
	}
	return out
}

// RecoverPod registers (or extends) a recovery plan for podName, relaunching
// it in place rather than replacing it outright. A no-op once uninstalling,
// or if podName is already owned by an active decommission/uninstall
// manager: tearing down always wins over recovering the same pod.
func (s *ServiceScheduler) RecoverPod(podName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uninstalling {
		return
	}
	for _, m := range s.coordinator.Managers() {
		if m.Kind() != plan.KindDecommission && m.Kind() != plan.KindUninstall {
			continue
		}
		for _, ph := range m.Plan().Phases {
			for _, st := range ph.Steps {
				if st.PodName == podName {
					return
				}
			}
		}
	}

	pods := map[string]bool{podName: true}
	if existing := s.coordinator.Manager("recovery"); existing != nil {
		for _, ph := range existing.Plan().Phases {
			for _, st := range ph.Steps {
				if st.State() != plan.StepComplete {
					pods[st.PodName] = true
				}
			}
		}
	}

	names := make([]string, 0, len(pods))
	for name := range pods {
		names = append(names, name)
	}
	s.coordinator.Register(plan.NewRecoveryManager(s.current, names))
}

func removedPodNames(previous, next *types.ServiceSpec) []string {
	if previous == nil {
		return nil
	}
	inNext := make(map[string]bool, len(next.Pods))
	for _, p := range next.Pods {
		inNext[p.Name] = true
	}
	var removed []string
	for _, p := range previous.Pods {
		if !inNext[p.Name] {
			removed = append(removed, p.Name)
		}
	}
	return removed
}

// ToUninstallScheduler hands this ServiceScheduler off to uninstall mode:
// every existing manager is replaced by a single uninstall manager
// covering every pod the spec ever named, and the uninstall bit is
// recorded durably so a restart resumes in uninstall mode too. Intended to
// be called at most once; idempotent if called again.
func (s *ServiceScheduler) ToUninstallScheduler(svc *types.ServiceSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uninstalling {
		return nil
	}

	if err := s.state.StoreProperty("/SchedulerState", "Uninstall", []byte("1")); err != nil {
		return err
	}

	for _, m := range s.coordinator.Managers() {
		s.coordinator.Unregister(m.Name())
	}
	var pods []string
	for _, p := range svc.Pods {
		pods = append(pods, p.Name)
	}
	s.coordinator.Register(plan.NewUninstallManager(pods))
	s.uninstalling = true
	return nil
}

// Complete reports whether every registered manager's plan has finished —
// for uninstall mode, this is the signal to recursively delete the
// persistent namespace and stop the driver.
func (s *ServiceScheduler) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.coordinator.Managers() {
		if !m.Plan().Complete() {
			return false
		}
	}
	return true
}

// FinalizeUninstall wipes the persistent namespace and stops the driver
// with failover disabled, then exits the process — the terminal step of
// S6 once every pod has been killed and every reservation unreserved.
// Safe to call only after Complete() reports true in uninstall mode; a
// caller that calls it otherwise risks deleting state mid-deploy, so
// pkg/scheduler never calls it itself — cmd/schedulerd's main loop does,
// after checking both conditions.
func (s *ServiceScheduler) FinalizeUninstall(serviceName string, backing interface{ RecursiveDelete(string) error }, driver mesosapi.SchedulerDriver) error {
	s.mu.Lock()
	secrets := s.secrets
	s.mu.Unlock()
	if secrets != nil {
		if err := secrets.DeleteSecrets(serviceName); err != nil {
			return err
		}
	}
	if err := backing.RecursiveDelete("/"); err != nil {
		return err
	}
	if err := driver.Stop(false); err != nil {
		return err
	}
	s.logger.Info().Msg("uninstall complete, exiting")
	osExit(0)
	return nil
}

// FrameworkScheduler adapts the raw master-driver callbacks into calls
// against a ServiceScheduler, FrameworkStore, and OfferProcessor. It is the
// sole implementer of mesosapi.EventHandler in this module, and the only
// component the driver's callback thread ever touches directly.
type FrameworkScheduler struct {
	framework *store.FrameworkStore
	state     *store.StateStore
	service   *ServiceScheduler
	processor *OfferProcessor
	driver    mesosapi.SchedulerDriver
	tracker   *evaluator.OfferOutcomeTracker
	logger    zerolog.Logger

	registerOnce sync.Once
}

// NewFrameworkScheduler wires every dependency the callback adapter needs.
func NewFrameworkScheduler(
	framework *store.FrameworkStore,
	state *store.StateStore,
	service *ServiceScheduler,
	processor *OfferProcessor,
	driver mesosapi.SchedulerDriver,
	tracker *evaluator.OfferOutcomeTracker,
) *FrameworkScheduler {
	return &FrameworkScheduler{
		framework: framework,
		state:     state,
		service:   service,
		processor: processor,
		driver:    driver,
		tracker:   tracker,
		logger:    log.WithComponent("framework_scheduler"),
	}
}

func (f *FrameworkScheduler) Registered(frameworkID string, master mesosapi.MasterInfo) {
	if err := f.framework.StoreFrameworkID(frameworkID); err != nil {
		f.logger.Error().Err(err).Msg("failed to persist framework id")
	}
	f.logger.Info().Str("framework_id", frameworkID).Str("master", master.Hostname).Msg("registered")
	f.registerOnce.Do(f.pruneStaleTasks)
	f.reconcileKnownTasks()
}

// pruneStaleTasks runs once, on first registration: every persisted task no
// longer named by any active manager is stale — its TaskInfo is nulled out
// (TaskID cleared) so reconciliation no longer asks the master about it,
// and the master is told to kill whatever it was still running. A task that
// is still active but carries a PENDING GoalOverride (an override recorded
// before the scheduler last exited, never carried out) is killed too, so the
// override's progress can actually advance past PENDING on this run.
func (f *FrameworkScheduler) pruneStaleTasks() {
	tasks, err := f.state.FetchTasks()
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to list tasks for registration prune")
		return
	}
	active := f.service.ActivePodNames()

	for _, t := range tasks {
		if !active[t.PodName] {
			taskID := t.TaskID
			t.TaskID = types.EmptyTaskID
			if err := f.state.StoreTasks([]*types.TaskInfo{t}); err != nil {
				f.logger.Error().Err(err).Str("task_name", t.Name).Msg("failed to null out stale task")
				continue
			}
			if taskID != types.EmptyTaskID {
				if err := f.driver.KillTask(taskID); err != nil {
					f.logger.Error().Err(err).Str("task_id", taskID).Msg("failed to kill stale task")
				}
			}
			continue
		}

		override, err := f.state.FetchGoalOverride(t.Name)
		if err != nil {
			f.logger.Error().Err(err).Str("task_name", t.Name).Msg("failed to fetch goal override")
			continue
		}
		if override.Progress == types.ProgressPending && t.TaskID != types.EmptyTaskID {
			if err := f.driver.KillTask(t.TaskID); err != nil {
				f.logger.Error().Err(err).Str("task_id", t.TaskID).Msg("failed to kill task for pending override")
			}
		}
	}
}

func (f *FrameworkScheduler) Reregistered(master mesosapi.MasterInfo) {
	f.logger.Info().Str("master", master.Hostname).Msg("reregistered")
	f.reconcileKnownTasks()
}

// reconcileKnownTasks issues one reconcileTasks call covering every task
// StateStore remembers, so the master resends each task's current status.
// Offers are not held back while those statuses are outstanding.
func (f *FrameworkScheduler) reconcileKnownTasks() {
	tasks, err := f.state.FetchTasks()
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to list tasks for registration reconcile")
		return
	}
	var statuses []types.TaskStatus
	for _, t := range tasks {
		if t.TaskID == types.EmptyTaskID {
			continue
		}
		statuses = append(statuses, types.TaskStatus{TaskID: t.TaskID})
	}
	if len(statuses) == 0 {
		return
	}
	if err := f.driver.ReconcileTasks(statuses); err != nil {
		f.logger.Error().Err(err).Msg("failed to reconcile tasks on registration")
	}
}

func (f *FrameworkScheduler) ResourceOffers(offers []types.Offer) {
	f.processor.Submit(offers)
}

func (f *FrameworkScheduler) OfferRescinded(offerID string) {
	f.logger.Debug().Str("offer_id", offerID).Msg("offer rescinded")
}

// StatusUpdate persists the status (idempotently; invalid transitions are
// logged and dropped, never propagated), advances the owning step's state
// machine on RUNNING, and on a terminal status either marks the task
// permanently failed (replace path) or hands it to the recovery manager
// (relaunch-in-place path).
func (f *FrameworkScheduler) StatusUpdate(status types.TaskStatus) {
	if err := f.state.StoreStatus(status); err != nil {
		f.logger.Warn().Err(err).Str("task_id", status.TaskID).Msg("dropping status update")
		return
	}

	task := f.findTaskByID(status.TaskID)
	if task == nil {
		return
	}

	if status.State == types.TaskRunning {
		f.advanceStepToStarted(task.PodName)
		return
	}
	if !status.State.IsTerminal() {
		return
	}

	if status.State == types.TaskFailed && status.Reason == "REASON_GC_ERROR" {
		f.markPermanentlyFailed(task)
		return
	}
	if !task.PermanentlyFailed {
		f.service.RecoverPod(task.PodName)
	}
}

func (f *FrameworkScheduler) findTaskByID(taskID string) *types.TaskInfo {
	tasks, err := f.state.FetchTasks()
	if err != nil {
		f.logger.Error().Err(err).Msg("failed to list tasks for status update")
		return nil
	}
	for _, t := range tasks {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

// advanceStepToStarted moves podName's step from STARTING to STARTED and,
// since a long-running service's goal is simply "running", straight on to
// COMPLETE: there is no further state for a launch step to wait on once its
// task is up.
func (f *FrameworkScheduler) advanceStepToStarted(podName string) {
	step := f.service.Coordinator().StepForPod(podName)
	if step == nil {
		return
	}
	step.Advance(plan.StepStarted)
	step.Advance(plan.StepComplete)
}

func (f *FrameworkScheduler) markPermanentlyFailed(task *types.TaskInfo) {
	task.PermanentlyFailed = true
	if err := f.state.StoreTasks([]*types.TaskInfo{task}); err != nil {
		f.logger.Error().Err(err).Str("task_id", task.TaskID).Msg("failed to mark task permanently failed")
	}
}

func (f *FrameworkScheduler) FrameworkMessage(executorID, agentID string, data []byte) {
	f.logger.Debug().Str("executor_id", executorID).Str("agent_id", agentID).Msg("framework message")
}

func (f *FrameworkScheduler) Disconnected() {
	f.logger.Error().Msg("master disconnected, exiting for supervisor restart")
	osExit(mesosapi.ExitMasterDisconnect)
}

func (f *FrameworkScheduler) SlaveLost(agentID string) {
	f.logger.Warn().Str("agent_id", agentID).Msg("agent lost")
}

func (f *FrameworkScheduler) ExecutorLost(executorID, agentID string, status int) {
	f.logger.Warn().Str("executor_id", executorID).Str("agent_id", agentID).Int("status", status).Msg("executor lost")
}

func (f *FrameworkScheduler) Error(message string) {
	f.logger.Error().Str("message", message).Msg("driver error, exiting for supervisor restart")
	osExit(mesosapi.ExitDriverError)
}
