// Package evaluator implements OfferEvaluator: a pure function mapping an
// offer batch and a pending requirement to a list of OfferRecommendations,
// with no side effects on StateStore or the driver. Everything it decides
// is derived from its arguments, which keeps it trivially unit-testable and
// keeps the single worker (pkg/scheduler.OfferProcessor) the only place
// recommendations are ever acted on.
package evaluator

import (
	"github.com/google/uuid"
	"github.com/mesosphere/svc-scheduler/pkg/types"
)

// MismatchReason explains why an offer batch failed to satisfy a
// requirement. Recorded by OfferOutcomeTracker, never acted on further.
type MismatchReason string

const (
	ReasonNone               MismatchReason = ""
	ReasonInsufficientCPU    MismatchReason = "insufficient cpu"
	ReasonInsufficientMem    MismatchReason = "insufficient mem"
	ReasonInsufficientDisk   MismatchReason = "insufficient disk"
	ReasonInsufficientPorts  MismatchReason = "insufficient ports"
	ReasonRoleNotWhitelisted MismatchReason = "role not whitelisted"
	ReasonPlacementRejected  MismatchReason = "placement rule rejected"
)

// Result is everything the evaluator produced for one requirement against
// one offer in the batch.
type Result struct {
	OfferID         string
	Recommendations []types.OfferRecommendation
	TaskInfos       []*types.TaskInfo
}

// Evaluate walks the offer batch in order and returns the first offer that
// satisfies every placement rule and every task's resource requirement.
// `placed` is every TaskInfo already known to the plan, used by
// hostname-unique and colocate-with rules. `roleWhitelist` empty means any
// role is acceptable, per configuration.
func Evaluate(
	offers []types.Offer,
	req types.PodInstanceRequirement,
	placed []*types.TaskInfo,
	roleWhitelist []string,
	principal, role string,
) (*Result, MismatchReason) {
	reason := ReasonNone
	for _, offer := range offers {
		if !roleAllowed(offer, roleWhitelist) {
			if reason == ReasonNone {
				reason = ReasonRoleNotWhitelisted
			}
			continue
		}
		if !placementSatisfied(offer, req, placed) {
			if reason == ReasonNone {
				reason = ReasonPlacementRejected
			}
			continue
		}
		result, r := matchResources(offer, req, placed, principal, role)
		if r == ReasonNone {
			return result, ReasonNone
		}
		reason = r
	}
	return nil, reason
}

// roleAllowed reports whether the offer carries at least one resource whose
// role is in the whitelist (or the whitelist is empty).
func roleAllowed(offer types.Offer, roleWhitelist []string) bool {
	if len(roleWhitelist) == 0 {
		return true
	}
	for _, res := range offer.Resources {
		for _, allowed := range roleWhitelist {
			if res.Role == allowed {
				return true
			}
		}
	}
	return false
}

// pool is the mutable view of an offer's resources the matcher consumes
// from as it satisfies each task in the pod, scalar unit by scalar unit.
type pool struct {
	cpus  float64
	mem   int64
	disk  int64
	ports []portRange
}

type portRange struct{ begin, end uint32 }

func newPool(offer types.Offer, role string) pool {
	var p pool
	for _, res := range offer.Resources {
		if res.Role != "" && res.Role != "*" && res.Role != role {
			continue
		}
		switch res.Kind {
		case types.ResourceCPUs:
			p.cpus += res.Scalar
		case types.ResourceMem:
			p.mem += int64(res.Scalar)
		case types.ResourceDisk:
			p.disk += int64(res.Scalar)
		case types.ResourcePort:
			p.ports = append(p.ports, portRange{res.PortBegin, res.PortEnd})
		}
	}
	return p
}

func (p *pool) takePorts(n int) ([]uint32, bool) {
	if n == 0 {
		return nil, true
	}
	for i := range p.ports {
		avail := int(p.ports[i].end) - int(p.ports[i].begin) + 1
		if avail < n {
			continue
		}
		taken := make([]uint32, n)
		for j := 0; j < n; j++ {
			taken[j] = p.ports[i].begin + uint32(j)
		}
		p.ports[i].begin += uint32(n)
		if p.ports[i].begin > p.ports[i].end {
			p.ports = append(p.ports[:i], p.ports[i+1:]...)
		}
		return taken, true
	}
	return nil, false
}

// findPlaced returns the TaskInfo already known under taskName, or nil.
// Its resources are the reservation-reuse source: a task that already held
// a reservation under this name gets that same resource-id back instead of
// a freshly minted one.
func findPlaced(placed []*types.TaskInfo, taskName string) *types.TaskInfo {
	for _, t := range placed {
		if t.Name == taskName {
			return t
		}
	}
	return nil
}

// matchResources attempts to satisfy every task in req against offer's
// resource pool, one task at a time. A task that fits yields one Reserve per
// newly reserved cpus/mem/disk/ports resource (none for a reused
// reservation), a CreateVolume for a new volume, and one Launch.
func matchResources(offer types.Offer, req types.PodInstanceRequirement, placed []*types.TaskInfo, principal, role string) (*Result, MismatchReason) {
	p := newPool(offer, role)
	result := &Result{OfferID: offer.ID}

	for _, task := range req.Tasks {
		spec := task.Resources
		if p.cpus < spec.CPUs {
			return nil, ReasonInsufficientCPU
		}
		if p.mem < spec.MemMB {
			return nil, ReasonInsufficientMem
		}
		if p.disk < spec.DiskMB {
			return nil, ReasonInsufficientDisk
		}
		ports, ok := p.takePorts(spec.Ports)
		if !ok {
			return nil, ReasonInsufficientPorts
		}
		p.cpus -= spec.CPUs
		p.mem -= spec.MemMB
		p.disk -= spec.DiskMB

		taskID := uuid.NewString()
		taskName := req.PodName + "-" + task.Name
		existing := findPlaced(placed, taskName)
		resources, recs := buildResourceSet(offer.ID, taskName, spec, ports, principal, role, existing)

		var volume *types.PersistentVolumeInfo
		for _, r := range resources {
			if r.Volume != nil {
				volume = r.Volume
			}
		}

		taskInfo := &types.TaskInfo{
			Name:      taskName,
			TaskID:    taskID,
			PodName:   req.PodName,
			AgentID:   offer.AgentID,
			Command:   task.Command,
			Resources: resources,
			ConfigID:  "",
		}
		recs = append(recs, types.OfferRecommendation{
			Kind:         types.RecommendLaunch,
			OfferID:      offer.ID,
			StepName:     taskName,
			TaskInfo:     taskInfo,
			Volume:       volume,
			ShouldLaunch: true,
		})

		result.Recommendations = append(result.Recommendations, recs...)
		result.TaskInfos = append(result.TaskInfos, taskInfo)
	}

	return result, ReasonNone
}

// reusableReservation looks among existing's resources for one of the given
// kind (matching on presence of a Volume too, since a plain disk resource
// and a volume's backing disk share ResourceDisk) and returns its
// Reservation, so a task relaunched in place keeps its resource-id instead
// of acquiring a new one. Per the reservation-reuse tie-break, a pre-existing
// reservation is always preferred over minting a fresh one.
func reusableReservation(existing *types.TaskInfo, kind types.ResourceKind, wantVolume bool) *types.Reservation {
	if existing == nil {
		return nil
	}
	for _, r := range existing.Resources {
		if r.Kind != kind || (r.Volume != nil) != wantVolume || r.Reservation == nil {
			continue
		}
		return r.Reservation
	}
	return nil
}

func reusableVolume(existing *types.TaskInfo) *types.PersistentVolumeInfo {
	if existing == nil {
		return nil
	}
	for _, r := range existing.Resources {
		if r.Volume != nil {
			return r.Volume
		}
	}
	return nil
}

// buildResourceSet resolves a reservation for each of one task's scalar and
// port resources — reusing existing's, if it holds one, or else minting a
// fresh one — and returns both the Resource slice that belongs on the
// TaskInfo and the Reserve (and, for a newly requested volume, CreateVolume)
// recommendations that must precede the Launch. A reused reservation emits
// no Reserve recommendation at all: it is already held at the master.
func buildResourceSet(offerID, taskName string, spec types.ResourceSpec, ports []uint32, principal, role string, existing *types.TaskInfo) ([]types.Resource, []types.OfferRecommendation) {
	var resources []types.Resource
	var recs []types.OfferRecommendation

	scalarResource := func(kind types.ResourceKind, amount float64) {
		if amount <= 0 {
			return
		}
		reservation := reusableReservation(existing, kind, false)
		reused := reservation != nil
		if !reused {
			reservation = &types.Reservation{Role: role, Principal: principal, ResourceID: uuid.NewString()}
		}
		res := types.Resource{
			Kind:        kind,
			Role:        role,
			Scalar:      amount,
			Reservation: reservation,
		}
		resources = append(resources, res)
		if !reused {
			recs = append(recs, types.OfferRecommendation{
				Kind:     types.RecommendReserve,
				OfferID:  offerID,
				StepName: taskName,
				Resource: res,
			})
		}
	}

	scalarResource(types.ResourceCPUs, spec.CPUs)
	scalarResource(types.ResourceMem, float64(spec.MemMB))
	scalarResource(types.ResourceDisk, float64(spec.DiskMB))

	if len(ports) > 0 {
		reservation := reusableReservation(existing, types.ResourcePort, false)
		reused := reservation != nil
		if !reused {
			reservation = &types.Reservation{Role: role, Principal: principal, ResourceID: uuid.NewString()}
		}
		res := types.Resource{
			Kind:        types.ResourcePort,
			Role:        role,
			PortBegin:   ports[0],
			PortEnd:     ports[len(ports)-1],
			Reservation: reservation,
		}
		resources = append(resources, res)
		if !reused {
			recs = append(recs, types.OfferRecommendation{
				Kind:     types.RecommendReserve,
				OfferID:  offerID,
				StepName: taskName,
				Resource: res,
			})
		}
	}

	if spec.VolumeName != "" {
		reservation := reusableReservation(existing, types.ResourceDisk, true)
		reused := reservation != nil
		if !reused {
			reservation = &types.Reservation{Role: role, Principal: principal, ResourceID: uuid.NewString()}
		}
		vol := reusableVolume(existing)
		if vol == nil {
			vol = &types.PersistentVolumeInfo{
				VolumeID:  uuid.NewString(),
				MountPath: spec.VolumeName,
				SizeMB:    spec.VolumeMB,
			}
		}
		res := types.Resource{
			Kind:        types.ResourceDisk,
			Role:        role,
			Scalar:      float64(spec.VolumeMB),
			Volume:      vol,
			Reservation: reservation,
		}
		resources = append(resources, res)
		if !reused {
			recs = append(recs, types.OfferRecommendation{
				Kind:     types.RecommendCreateVolume,
				OfferID:  offerID,
				StepName: taskName,
				Resource: res,
				Volume:   vol,
			})
		}
	}

	return resources, recs
}
