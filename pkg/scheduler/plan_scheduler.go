package scheduler

import (
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/evaluator"
	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/mesosapi"
	"github.com/mesosphere/svc-scheduler/pkg/metrics"
	"github.com/mesosphere/svc-scheduler/pkg/plan"
	"github.com/mesosphere/svc-scheduler/pkg/recorder"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// declineLongSeconds is the refuse-duration for an offer the scheduler has
// no use for this tick (didn't fit, or nothing asked for it): there's no
// reason for the master to bother re-offering it again soon.
const declineLongSeconds = 14 * 24 * 3600 // ~2 weeks

// declineShortSeconds is the refuse-duration for an offer the scheduler
// wants to see again soon: an unreserve/destroy still in flight, or a
// short-circuited batch.
const declineShortSeconds = 5

// DeclineLong and DeclineShort are exported so cmd/schedulerd can reuse the
// same filters for the Finished/Uninstalled short-circuit outside of Tick.
var (
	DeclineLong  = mesosapi.Filters{RefuseSeconds: declineLongSeconds}
	DeclineShort = mesosapi.Filters{RefuseSeconds: declineShortSeconds}
)

// PlanScheduler runs one worker iteration: collect candidate steps from
// every registered PlanManager, evaluate each against the current offer
// batch, persist what fits before telling the driver about it, and decline
// whatever is left over. It never touches a store or the driver except
// through the dependencies given to it at construction, which keeps it
// testable against mesosapi.FakeDriver and an in-memory StateStore.
type PlanScheduler struct {
	coordinator   *plan.Coordinator
	state         *store.StateStore
	launch        *recorder.LaunchRecorder
	cleanup       *recorder.CleanupRecorder
	driver        mesosapi.SchedulerDriver
	tracker       *evaluator.OfferOutcomeTracker
	roleWhitelist []string
	principal     string
	role          string
	logger        zerolog.Logger

	mu               sync.Mutex
	pendingUnreserve map[string]string // resource-id -> task name, awaiting a matching offer
}

// NewPlanScheduler wires every dependency a tick needs.
func NewPlanScheduler(
	coordinator *plan.Coordinator,
	state *store.StateStore,
	driver mesosapi.SchedulerDriver,
	tracker *evaluator.OfferOutcomeTracker,
	roleWhitelist []string,
	principal, role string,
) *PlanScheduler {
	return &PlanScheduler{
		coordinator:      coordinator,
		state:            state,
		launch:           recorder.NewLaunchRecorder(state),
		cleanup:          recorder.NewCleanupRecorder(state),
		driver:           driver,
		tracker:          tracker,
		roleWhitelist:    roleWhitelist,
		principal:        principal,
		role:             role,
		logger:           log.WithComponent("plan_scheduler"),
		pendingUnreserve: make(map[string]string),
	}
}

// MarkPendingUnreserve records that a task's resources should be unreserved
// the next time an offer carries a matching resource-id. Called once a
// teardown step's underlying task status has gone terminal.
func (s *PlanScheduler) MarkPendingUnreserve(taskName string, resourceIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range resourceIDs {
		s.pendingUnreserve[id] = taskName
	}
}

// Tick runs one worker iteration against one offer batch.
func (s *PlanScheduler) Tick(offers []types.Offer) {
	metrics.OffersReceivedTotal.Add(float64(len(offers)))

	s.coordinator.BeginTick()
	reqs := s.coordinator.CollectRequirements()

	launchReqs, teardownReqs := splitRequirements(reqs)

	decommissioning := s.coordinator.PodsOfKind(plan.KindDecommission, plan.KindUninstall)
	remaining, usedOfferIDs := s.handleUnreserves(offers, decommissioning)
	s.handleTeardowns(teardownReqs)

	used := make(map[string]bool, len(usedOfferIDs))
	for _, id := range usedOfferIDs {
		used[id] = true
	}

	placed := s.activeTaskInfos()

	for _, sr := range launchReqs {
		// A step already past PENDING/WAITING (PREPARED onward) has an
		// in-flight or completed launch; re-evaluating it here would mint
		// a second reservation and task-id for the same pod instance.
		if st := sr.Step.State(); st != plan.StepPending && st != plan.StepWaiting {
			continue
		}
		matched := false
		for _, offer := range remaining {
			if used[offer.ID] {
				continue
			}
			result, reason := evaluator.Evaluate(
				[]types.Offer{offer}, sr.Requirement, placed, s.roleWhitelist, s.principal, s.role,
			)
			if reason != evaluator.ReasonNone {
				s.tracker.Record(evaluator.Outcome{OfferID: offer.ID, StepName: sr.Step.Name, Reason: reason})
				metrics.EvaluatorMismatchesTotal.WithLabelValues(string(reason)).Inc()
				continue
			}
			s.acceptResult(sr, result)
			used[offer.ID] = true
			matched = true
			break
		}
		if !matched {
			sr.Step.Advance(plan.StepWaiting)
		}
	}

	for _, offer := range remaining {
		if used[offer.ID] {
			continue
		}
		if err := s.driver.DeclineOffer(offer.ID, DeclineLong); err != nil {
			s.logger.Error().Err(err).Str("offer_id", offer.ID).Msg("failed to decline offer")
		}
		metrics.OffersDeclinedTotal.WithLabelValues("long").Inc()
	}
}

func splitRequirements(reqs []plan.StepRequirement) (launch, teardown []plan.StepRequirement) {
	for _, r := range reqs {
		if len(r.Requirement.Tasks) == 0 {
			teardown = append(teardown, r)
		} else {
			launch = append(launch, r)
		}
	}
	return launch, teardown
}

// activeTaskInfos returns every TaskInfo eligible as a reservation-reuse
// source. A permanently-failed task is deliberately excluded: its
// replacement must mint a fresh reservation, discarding the old one, which
// then falls out of referencedResourceIDs and gets swept by
// handleUnreserves the next time an offer carries it.
func (s *PlanScheduler) activeTaskInfos() []*types.TaskInfo {
	tasks, err := s.state.FetchTasks()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list tasks for reservation reuse")
		return nil
	}
	out := make([]*types.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		if !t.PermanentlyFailed {
			out = append(out, t)
		}
	}
	return out
}

// referencedResourceIDs is the complement of getUnexpectedResources: every
// reservation-id still claimed by a non-permanently-failed,
// non-decommissioning TaskInfo. Any reserved resource an offer carries that
// is absent from this set is unexpected and gets unreserved/destroyed by
// handleUnreserves, whether or not it was ever explicitly marked pending.
func (s *PlanScheduler) referencedResourceIDs(decommissioning map[string]bool) (map[string]struct{}, error) {
	tasks, err := s.state.FetchTasks()
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, t := range tasks {
		if t.PermanentlyFailed || decommissioning[t.PodName] {
			continue
		}
		for _, r := range t.Resources {
			if r.Reservation != nil {
				out[r.Reservation.ResourceID] = struct{}{}
			}
		}
	}
	return out, nil
}

// handleUnreserves scans the offer batch for resource-ids that are either
// explicitly marked pending (a terminal teardown task) or unexpected (not
// referenced by any currently active, non-decommissioning task — including
// a permanently-failed task's stale reservation), and accepts an
// Unreserve/Destroy recommendation against the offer carrying the matching
// reservation. Returns the offer batch (unmodified; an offer used for an
// accept is still valid for the decline loop to skip, mirroring the
// teacher's one-decision-per-offer-per-tick scheduling granularity) and the
// set of offer ids it already sent an accept for.
func (s *PlanScheduler) handleUnreserves(offers []types.Offer, decommissioning map[string]bool) ([]types.Offer, []string) {
	referenced, err := s.referencedResourceIDs(decommissioning)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list tasks for unexpected-resource sweep")
		referenced = map[string]struct{}{}
	}

	var usedOfferIDs []string
	for _, offer := range offers {
		var recs []types.OfferRecommendation
		var taskName string
		for _, res := range offer.Resources {
			if res.Reservation == nil {
				continue
			}
			id := res.Reservation.ResourceID
			s.mu.Lock()
			name, markedPending := s.pendingUnreserve[id]
			s.mu.Unlock()
			if _, stillWanted := referenced[id]; !markedPending && stillWanted {
				continue
			}
			if markedPending {
				taskName = name
			}
			kind := types.RecommendUnreserve
			if res.Volume != nil {
				kind = types.RecommendDestroyVolume
			}
			recs = append(recs, types.OfferRecommendation{Kind: kind, OfferID: offer.ID, Resource: res})
		}
		if len(recs) == 0 {
			continue
		}

		ops := make([]mesosapi.Operation, 0, len(recs))
		for _, rec := range recs {
			kind := mesosapi.OpUnreserve
			if rec.Kind == types.RecommendDestroyVolume {
				kind = mesosapi.OpDestroy
			}
			ops = append(ops, mesosapi.Operation{Kind: kind, OfferID: offer.ID, Resource: rec.Resource})
		}
		if err := s.driver.AcceptOffers([]string{offer.ID}, ops, DeclineShort); err != nil {
			s.logger.Error().Err(err).Msg("failed to send unreserve accept")
			continue
		}
		usedOfferIDs = append(usedOfferIDs, offer.ID)

		var ids []string
		for _, rec := range recs {
			if rec.Resource.Reservation != nil {
				ids = append(ids, rec.Resource.Reservation.ResourceID)
			}
		}
		s.mu.Lock()
		for _, id := range ids {
			delete(s.pendingUnreserve, id)
		}
		s.mu.Unlock()

		if taskName != "" {
			if err := s.cleanup.Record(taskName, recs); err != nil {
				s.logger.Error().Err(err).Str("task_name", taskName).Msg("cleanup record failed")
			}
		}
		for _, rec := range recs {
			metrics.RecommendationsTotal.WithLabelValues(string(rec.Kind)).Inc()
		}
	}
	return offers, usedOfferIDs
}

// markTaskResourcesPendingUnreserve queues every reservation a terminal
// task held for release the next time an offer carries its resource-id.
func (s *PlanScheduler) markTaskResourcesPendingUnreserve(t *types.TaskInfo) {
	var ids []string
	for _, res := range t.Resources {
		if res.Reservation != nil {
			ids = append(ids, res.Reservation.ResourceID)
		}
	}
	if len(ids) > 0 {
		s.MarkPendingUnreserve(t.Name, ids)
	}
}

// handleTeardowns issues KillTask for every running task belonging to a pod
// under decommission or uninstall. A step only reaches COMPLETE once
// StateStore no longer has any TaskInfo for its pod, which happens once the
// terminal status arrives and the cleanup recorder clears the record.
func (s *PlanScheduler) handleTeardowns(reqs []plan.StepRequirement) {
	for _, sr := range reqs {
		tasks, err := s.state.FetchTasks()
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to list tasks for teardown")
			continue
		}
		anyForPod := false
		for _, t := range tasks {
			if t.PodName != sr.Requirement.PodName {
				continue
			}
			anyForPod = true
			status, err := s.state.FetchStatus(t.Name)
			if err == nil && status.State.IsTerminal() {
				s.markTaskResourcesPendingUnreserve(t)
				continue
			}
			if t.TaskID == types.EmptyTaskID {
				continue
			}
			if err := s.driver.KillTask(t.TaskID); err != nil {
				s.logger.Error().Err(err).Str("task_id", t.TaskID).Msg("failed to kill task")
				continue
			}
			sr.Step.Advance(plan.StepStarting)
		}
		if !anyForPod {
			sr.Step.Advance(plan.StepPrepared)
			sr.Step.Advance(plan.StepStarting)
			sr.Step.Advance(plan.StepStarted)
			sr.Step.Advance(plan.StepComplete)
		}
	}
}

// acceptResult persists every Launch recommendation before telling the
// driver about any of them, then sends a single Accept for the offer
// carrying every Reserve/CreateVolume/Launch operation the evaluator
// produced. A Launch recommendation with ShouldLaunch false is dropped
// before recording: the evaluator's bookkeeping wanted the reservation
// resolved, but no task should actually be started for it.
func (s *PlanScheduler) acceptResult(sr plan.StepRequirement, result *evaluator.Result) {
	filtered := make([]types.OfferRecommendation, 0, len(result.Recommendations))
	for _, rec := range result.Recommendations {
		if rec.Kind == types.RecommendLaunch && !rec.ShouldLaunch {
			continue
		}
		filtered = append(filtered, rec)
	}

	recorded, err := s.launch.Record(filtered)
	if err != nil {
		s.logger.Error().Err(err).Str("step_name", sr.Step.Name).Msg("failed to record launch, dropping tick for this step")
		return
	}

	ops := make([]mesosapi.Operation, 0, len(recorded))
	for _, rec := range recorded {
		ops = append(ops, recommendationToOperation(rec))
	}

	if err := s.driver.AcceptOffers([]string{result.OfferID}, ops, DeclineShort); err != nil {
		s.logger.Error().Err(err).Str("offer_id", result.OfferID).Msg("failed to accept offer")
		return
	}

	for _, rec := range recorded {
		metrics.RecommendationsTotal.WithLabelValues(string(rec.Kind)).Inc()
	}
	sr.Step.Advance(plan.StepPrepared)
	sr.Step.Advance(plan.StepStarting)
}

func recommendationToOperation(rec types.OfferRecommendation) mesosapi.Operation {
	var kind mesosapi.OperationKind
	switch rec.Kind {
	case types.RecommendReserve:
		kind = mesosapi.OpReserve
	case types.RecommendUnreserve:
		kind = mesosapi.OpUnreserve
	case types.RecommendCreateVolume:
		kind = mesosapi.OpCreate
	case types.RecommendDestroyVolume:
		kind = mesosapi.OpDestroy
	case types.RecommendLaunch:
		kind = mesosapi.OpLaunch
	}
	return mesosapi.Operation{
		Kind:     kind,
		OfferID:  rec.OfferID,
		Resource: rec.Resource,
		TaskInfo: rec.TaskInfo,
	}
}
