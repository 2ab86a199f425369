package evaluator

import (
	"testing"

	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneTaskReq(podName string, cpus float64) types.PodInstanceRequirement {
	return types.PodInstanceRequirement{
		PodName: podName,
		Tasks: []types.TaskSpec{
			{Name: "server", Command: "run.sh", Resources: types.ResourceSpec{CPUs: cpus, MemMB: 128}},
		},
	}
}

func TestEvaluateOfferFits(t *testing.T) {
	offers := []types.Offer{
		{
			ID: "O1", AgentID: "A1", Hostname: "agent1",
			Resources: []types.Resource{
				{Kind: types.ResourceCPUs, Scalar: 3},
				{Kind: types.ResourceMem, Scalar: 512},
			},
		},
	}
	result, reason := Evaluate(offers, oneTaskReq("p0", 1), nil, nil, "principal1", "role1")
	require.Equal(t, ReasonNone, reason)
	require.NotNil(t, result)
	require.Len(t, result.TaskInfos, 1)
	assert.Equal(t, "p0-server", result.TaskInfos[0].Name)
	assert.Equal(t, "A1", result.TaskInfos[0].AgentID)

	var sawReserve, sawLaunch bool
	for _, rec := range result.Recommendations {
		switch rec.Kind {
		case types.RecommendReserve:
			sawReserve = true
		case types.RecommendLaunch:
			sawLaunch = true
			assert.True(t, rec.ShouldLaunch)
		}
	}
	assert.True(t, sawReserve, "expected a reserve recommendation")
	assert.True(t, sawLaunch, "expected a launch recommendation")
}

func TestEvaluateOfferDoesNotFit(t *testing.T) {
	offers := []types.Offer{
		{
			ID: "O2", AgentID: "A1",
			Resources: []types.Resource{
				{Kind: types.ResourceCPUs, Scalar: 0.5},
				{Kind: types.ResourceMem, Scalar: 512},
			},
		},
	}
	result, reason := Evaluate(offers, oneTaskReq("p0", 1), nil, nil, "principal1", "role1")
	assert.Nil(t, result)
	assert.Equal(t, ReasonInsufficientCPU, reason)
}

func TestEvaluateRoleFiltering(t *testing.T) {
	offers := []types.Offer{
		{
			ID: "O3", AgentID: "A1",
			Resources: []types.Resource{
				{Kind: types.ResourceCPUs, Scalar: 4, Role: "other-role"},
			},
		},
	}
	result, reason := Evaluate(offers, oneTaskReq("p0", 1), nil, []string{"my-role"}, "principal1", "my-role")
	assert.Nil(t, result)
	assert.Equal(t, ReasonRoleNotWhitelisted, reason)
}

func TestEvaluateHostnameUniqueRejectsSameAgent(t *testing.T) {
	placed := []*types.TaskInfo{{Name: "p0-server", PodName: "p0", AgentID: "A1"}}
	req := oneTaskReq("p0", 1)
	req.PlacementRules = []types.PlacementRule{{Kind: types.PlacementHostUnique}}

	offers := []types.Offer{
		{ID: "O4", AgentID: "A1", Resources: []types.Resource{{Kind: types.ResourceCPUs, Scalar: 4}, {Kind: types.ResourceMem, Scalar: 512}}},
	}
	result, reason := Evaluate(offers, req, placed, nil, "principal1", "role1")
	assert.Nil(t, result)
	assert.Equal(t, ReasonPlacementRejected, reason)
}

func TestEvaluatePicksFirstFittingOfferInBatch(t *testing.T) {
	offers := []types.Offer{
		{ID: "O5", AgentID: "A1", Resources: []types.Resource{{Kind: types.ResourceCPUs, Scalar: 0.1}}},
		{ID: "O6", AgentID: "A2", Resources: []types.Resource{
			{Kind: types.ResourceCPUs, Scalar: 4},
			{Kind: types.ResourceMem, Scalar: 512},
		}},
	}
	result, reason := Evaluate(offers, oneTaskReq("p0", 1), nil, nil, "principal1", "role1")
	require.Equal(t, ReasonNone, reason)
	assert.Equal(t, "O6", result.OfferID)
}

// A task relaunched against an offer carrying its old reservation's
// resource-id must reuse that reservation rather than mint a new one, and
// must emit no Reserve recommendation at all for it.
func TestEvaluateReusesExistingReservation(t *testing.T) {
	placed := []*types.TaskInfo{
		{
			Name: "p0-server", PodName: "p0", AgentID: "A1",
			Resources: []types.Resource{
				{Kind: types.ResourceCPUs, Scalar: 1, Reservation: &types.Reservation{Role: "role1", Principal: "principal1", ResourceID: "existing-r1"}},
				{Kind: types.ResourceMem, Scalar: 128, Reservation: &types.Reservation{Role: "role1", Principal: "principal1", ResourceID: "existing-r2"}},
			},
		},
	}
	offers := []types.Offer{
		{ID: "O7", AgentID: "A2", Resources: []types.Resource{
			{Kind: types.ResourceCPUs, Scalar: 3, Reservation: &types.Reservation{ResourceID: "existing-r1"}},
			{Kind: types.ResourceMem, Scalar: 512, Reservation: &types.Reservation{ResourceID: "existing-r2"}},
		}},
	}

	result, reason := Evaluate(offers, oneTaskReq("p0", 1), placed, nil, "principal1", "role1")
	require.Equal(t, ReasonNone, reason)
	require.NotNil(t, result)

	for _, rec := range result.Recommendations {
		assert.NotEqual(t, types.RecommendReserve, rec.Kind, "reused reservation must not emit a Reserve recommendation")
	}

	require.Len(t, result.TaskInfos, 1)
	ids := make(map[string]bool)
	for _, res := range result.TaskInfos[0].Resources {
		if res.Reservation != nil {
			ids[res.Reservation.ResourceID] = true
		}
	}
	assert.True(t, ids["existing-r1"])
	assert.True(t, ids["existing-r2"])
}

// A pod with no placed TaskInfo under its name (a fresh launch) still mints
// a new reservation, same as before reservation reuse existed.
func TestEvaluateMintsFreshReservationWhenNoneExists(t *testing.T) {
	offers := []types.Offer{
		{ID: "O8", AgentID: "A1", Resources: []types.Resource{
			{Kind: types.ResourceCPUs, Scalar: 3},
			{Kind: types.ResourceMem, Scalar: 512},
		}},
	}
	result, reason := Evaluate(offers, oneTaskReq("p0", 1), nil, nil, "principal1", "role1")
	require.Equal(t, ReasonNone, reason)

	var sawReserve bool
	for _, rec := range result.Recommendations {
		if rec.Kind == types.RecommendReserve {
			sawReserve = true
		}
	}
	assert.True(t, sawReserve)
}

func TestOfferOutcomeTrackerEvictsOldest(t *testing.T) {
	tr := NewOfferOutcomeTracker(2)
	tr.Record(Outcome{OfferID: "O1"})
	tr.Record(Outcome{OfferID: "O2"})
	tr.Record(Outcome{OfferID: "O3"})

	recent := tr.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "O2", recent[0].OfferID)
	assert.Equal(t, "O3", recent[1].OfferID)
}
