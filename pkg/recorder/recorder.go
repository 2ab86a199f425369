// Package recorder implements LaunchRecorder and CleanupRecorder: the
// persist-before-publish boundary between the evaluator's recommendations
// and the driver. Every TaskInfo mutation is written one record at a time
// so a crash mid-batch leaves at most one task's state ambiguous, never the
// whole batch.
package recorder

import (
	"fmt"

	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/metrics"
	"github.com/mesosphere/svc-scheduler/pkg/store"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// LaunchRecorder durably records the effects of Reserve/CreateVolume/Launch
// recommendations before they are allowed to reach the driver.
type LaunchRecorder struct {
	state  *store.StateStore
	logger zerolog.Logger
}

// NewLaunchRecorder wraps a StateStore as a LaunchRecorder.
func NewLaunchRecorder(state *store.StateStore) *LaunchRecorder {
	return &LaunchRecorder{state: state, logger: log.WithComponent("launch_recorder")}
}

// Record persists the TaskInfo carried by every Launch recommendation in
// recs, one write at a time, and returns the subset of recs that were
// durably recorded. If a write fails partway through, the already-recorded
// prefix stays in StateStore — reconciliation catches up with it on the
// next cycle — and Record returns what it managed along with the error.
func (r *LaunchRecorder) Record(recs []types.OfferRecommendation) ([]types.OfferRecommendation, error) {
	var recorded []types.OfferRecommendation
	for _, rec := range recs {
		if rec.Kind != types.RecommendLaunch || rec.TaskInfo == nil {
			recorded = append(recorded, rec)
			continue
		}

		timer := metrics.NewTimer()
		err := r.state.StoreTasks([]*types.TaskInfo{rec.TaskInfo})
		timer.ObserveDuration(metrics.LaunchRecordDuration)
		if err != nil {
			metrics.LaunchRecordFailuresTotal.Inc()
			r.logger.Error().Err(err).Str("task_name", rec.TaskInfo.Name).Msg("failed to record launch")
			return recorded, fmt.Errorf("record launch for %s: %w", rec.TaskInfo.Name, err)
		}
		recorded = append(recorded, rec)
		metrics.RecommendationsAcceptedTotal.WithLabelValues(string(rec.Kind)).Inc()
	}
	return recorded, nil
}

// CleanupRecorder durably advances cleanup state for Unreserve/DestroyVolume
// recommendations: once a resource-id has actually been released at the
// master, the corresponding TaskInfo record is cleared so the reservation
// is not tracked as outstanding forever.
type CleanupRecorder struct {
	state  *store.StateStore
	logger zerolog.Logger
}

// NewCleanupRecorder wraps a StateStore as a CleanupRecorder.
func NewCleanupRecorder(state *store.StateStore) *CleanupRecorder {
	return &CleanupRecorder{state: state, logger: log.WithComponent("cleanup_recorder")}
}

// Record clears the named task's StateStore record once every one of its
// resources has been torn down (an Unreserve/DestroyVolume recommendation
// seen for each resource-id it held).
func (r *CleanupRecorder) Record(taskName string, recs []types.OfferRecommendation) error {
	task, err := r.state.FetchTask(taskName)
	if err != nil {
		return err
	}
	if !allResourcesReleased(task.Resources, recs) {
		return nil
	}
	if err := r.state.ClearTask(taskName); err != nil {
		return err
	}
	metrics.RecommendationsAcceptedTotal.WithLabelValues("cleanup").Inc()
	return nil
}

func allResourcesReleased(resources []types.Resource, recs []types.OfferRecommendation) bool {
	released := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.Kind != types.RecommendUnreserve && rec.Kind != types.RecommendDestroyVolume {
			continue
		}
		if rec.Resource.Reservation != nil {
			released[rec.Resource.Reservation.ResourceID] = struct{}{}
		}
	}
	for _, res := range resources {
		if res.Reservation == nil {
			continue
		}
		if _, ok := released[res.Reservation.ResourceID]; !ok {
			return false
		}
	}
	return true
}
