// Package reconcile implements ImplicitReconciler: the periodic
// reconcileTasks sweep that keeps the master's view of this framework's
// tasks aligned with StateStore, backing off exponentially while no task
// is left to ask about and resetting to the floor interval after any cycle
// that finds a task whose last status is non-terminal.
package reconcile

import (
	"sync"
	"time"

	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/mesosapi"
	"github.com/mesosphere/svc-scheduler/pkg/metrics"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// Backoff bounds the implicit reconciler's ticker interval: it starts at
// Floor, doubles after every clean cycle (no task with a non-terminal last
// status), and saturates at Ceiling.
type Backoff struct {
	Floor   time.Duration
	Ceiling time.Duration
}

// DefaultBackoff matches the teacher's reconciler cadence at the floor,
// widening toward an hour once the cluster has been quiet for a while.
var DefaultBackoff = Backoff{Floor: 10 * time.Second, Ceiling: time.Hour}

// ImplicitReconciler periodically asks the master to resend status for
// every task StateStore still considers non-terminal, so that a missed
// status update (dropped message, scheduler restart) is eventually
// corrected without ever polling more than necessary during steady state.
type ImplicitReconciler struct {
	state   *store.StateStore
	driver  mesosapi.SchedulerDriver
	backoff Backoff
	logger  zerolog.Logger

	mu       sync.Mutex
	interval time.Duration
	stopCh   chan struct{}
	started  bool
}

// NewImplicitReconciler wires a StateStore and driver into a reconciler
// starting at backoff.Floor.
func NewImplicitReconciler(state *store.StateStore, driver mesosapi.SchedulerDriver, backoff Backoff) *ImplicitReconciler {
	return &ImplicitReconciler{
		state:    state,
		driver:   driver,
		backoff:  backoff,
		logger:   log.WithComponent("implicit_reconciler"),
		interval: backoff.Floor,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop in a background goroutine.
func (r *ImplicitReconciler) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.run()
}

// Stop signals the loop to exit; safe to call once.
func (r *ImplicitReconciler) Stop() {
	close(r.stopCh)
}

func (r *ImplicitReconciler) run() {
	r.logger.Info().Dur("interval", r.currentInterval()).Msg("implicit reconciler started")

	timer := time.NewTimer(r.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			clean, err := r.reconcileOnce()
			if err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			} else {
				r.adjustInterval(clean)
			}
			timer.Reset(r.currentInterval())
		case <-r.stopCh:
			r.logger.Info().Msg("implicit reconciler stopped")
			return
		}
	}
}

// reconcileOnce sends reconcileTasks for every non-terminal task StateStore
// knows about and reports whether the set was empty (a "clean" cycle, the
// signal to widen the backoff).
func (r *ImplicitReconciler) reconcileOnce() (clean bool, err error) {
	defer metrics.ReconciliationCyclesTotal.Inc()

	tasks, err := r.state.FetchTasks()
	if err != nil {
		return false, err
	}

	var pending []types.TaskStatus
	for _, t := range tasks {
		if t.TaskID == types.EmptyTaskID {
			continue
		}
		status, err := r.state.FetchStatus(t.Name)
		if err != nil {
			pending = append(pending, types.TaskStatus{TaskID: t.TaskID})
			continue
		}
		if !status.State.IsTerminal() {
			pending = append(pending, types.TaskStatus{TaskID: t.TaskID, State: status.State})
		}
	}

	if len(pending) == 0 {
		return true, nil
	}

	if err := r.driver.ReconcileTasks(pending); err != nil {
		return false, err
	}
	return false, nil
}

func (r *ImplicitReconciler) currentInterval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interval
}

func (r *ImplicitReconciler) adjustInterval(clean bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if clean {
		next := r.interval * 2
		if next > r.backoff.Ceiling {
			next = r.backoff.Ceiling
		}
		r.interval = next
	} else {
		r.interval = r.backoff.Floor
	}
	metrics.ReconciliationBackoffSeconds.Set(r.interval.Seconds())
}
