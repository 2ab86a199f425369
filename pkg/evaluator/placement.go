package evaluator

import "github.com/mesosphere/svc-scheduler/pkg/types"

// placementSatisfied evaluates every placement rule in req as a predicate
// over the candidate offer and the tasks already placed elsewhere. A
// colocate-with rule whose target pod has no placed task is not yet
// satisfiable, so the requirement waits for a later offer; a hostname-unique
// rule with no placed tasks is satisfied.
func placementSatisfied(offer types.Offer, req types.PodInstanceRequirement, placed []*types.TaskInfo) bool {
	for _, rule := range req.PlacementRules {
		if !ruleSatisfied(offer, rule, req.PodName, placed) {
			return false
		}
	}
	return true
}

func ruleSatisfied(offer types.Offer, rule types.PlacementRule, podName string, placed []*types.TaskInfo) bool {
	switch rule.Kind {
	case types.PlacementZone:
		return offer.Attributes["zone"] == rule.Zone
	case types.PlacementRegion:
		return offer.Attributes["region"] == rule.Region
	case types.PlacementAttribute:
		return offer.Attributes[rule.AttributeKey] == rule.AttributeValue
	case types.PlacementHostUnique:
		for _, t := range placed {
			if t.PodName == podName && t.AgentID == offer.AgentID {
				return false
			}
		}
		return true
	case types.PlacementColocate:
		for _, t := range placed {
			if t.PodName == rule.ColocatePodName && t.AgentID == offer.AgentID {
				return true
			}
		}
		return false
	default:
		return true
	}
}
