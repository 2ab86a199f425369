package plan

import "github.com/mesosphere/svc-scheduler/pkg/types"

// Kind tags which flavor of lifecycle a PlanManager drives.
type Kind string

const (
	KindDeploy       Kind = "deploy"
	KindRecovery     Kind = "recovery"
	KindDecommission Kind = "decommission"
	KindUninstall    Kind = "uninstall"
)

// DirtyAssets is a read-only capability a PlanManager consults before
// offering a step as a candidate: a pod name already touched by another
// manager this tick is excluded, so two managers never race to place or
// tear down the same pod in one worker iteration. Passed as an argument to
// each CandidateRequirements call (the manager does not hold it), so a
// manager can be unit tested against a fake without pulling in the
// coordinator.
type DirtyAssets interface {
	IsDirty(podName string) bool
}

// PlanManager owns one Plan and knows how to turn PodInstanceRequirements
// for its candidate steps into pending work for the scheduler, respecting
// whatever assets other managers have already claimed this tick.
type PlanManager interface {
	Name() string
	Kind() Kind
	Plan() *Plan
	// CandidateRequirements returns one PodInstanceRequirement per
	// not-yet-dirty candidate step in the active phase.
	CandidateRequirements(dirty DirtyAssets) []StepRequirement
}

// StepRequirement pairs a step with the pod-instance requirement the
// evaluator needs to try to satisfy it.
type StepRequirement struct {
	Step        *Step
	Requirement types.PodInstanceRequirement
}

// baseManager is embedded by every concrete manager to share the
// plan-walking and dirty-asset-filtering logic; only requirement
// construction differs per kind.
type baseManager struct {
	name string
	kind Kind
	plan *Plan
	reqs map[string]types.PodInstanceRequirement // step name -> requirement
}

func (b *baseManager) Name() string  { return b.name }
func (b *baseManager) Kind() Kind    { return b.kind }
func (b *baseManager) Plan() *Plan   { return b.plan }

func (b *baseManager) CandidateRequirements(dirty DirtyAssets) []StepRequirement {
	var out []StepRequirement
	for _, step := range b.plan.CandidateSteps() {
		if dirty.IsDirty(step.PodName) {
			continue
		}
		req, ok := b.reqs[step.Name]
		if !ok {
			continue
		}
		out = append(out, StepRequirement{Step: step, Requirement: req})
	}
	return out
}

// buildPlan expands a PlanSpec into a Plan of Steps seeded PENDING, and
// returns the per-step-name requirement map a concrete manager needs to
// satisfy each.
func buildPlan(spec types.PlanSpec, svc *types.ServiceSpec) (*Plan, map[string]types.PodInstanceRequirement) {
	podByName := make(map[string]types.Pod, len(svc.Pods))
	for _, p := range svc.Pods {
		podByName[p.Name] = p
	}

	reqs := make(map[string]types.PodInstanceRequirement)
	pl := &Plan{Name: spec.Name}
	for _, phaseSpec := range spec.Phases {
		phase := &Phase{Name: phaseSpec.Name}
		for _, stepSpec := range phaseSpec.Steps {
			step := NewStep(stepSpec.Name, stepSpec.PodName)
			phase.Steps = append(phase.Steps, step)
			if pod, ok := podByName[stepSpec.PodName]; ok {
				reqs[stepSpec.Name] = types.PodInstanceRequirement{
					PodName: pod.Name,
					Tasks:   pod.Tasks,
				}
			}
		}
		pl.Phases = append(pl.Phases, phase)
	}
	return pl, reqs
}

// NewDeploymentManager builds a PlanManager for spec's "deploy" PlanSpec
// (or a single default phase over every pod, if the spec declares none),
// launching every pod instance the target ServiceSpec names.
func NewDeploymentManager(svc *types.ServiceSpec) PlanManager {
	spec, ok := svc.Plans["deploy"]
	if !ok {
		spec = defaultDeploySpec(svc)
	}
	pl, reqs := buildPlan(spec, svc)
	return &baseManager{name: "deploy", kind: KindDeploy, plan: pl, reqs: reqs}
}

func defaultDeploySpec(svc *types.ServiceSpec) types.PlanSpec {
	var steps []types.StepSpec
	for _, pod := range svc.Pods {
		steps = append(steps, types.StepSpec{Name: pod.Name, PodName: pod.Name})
	}
	return types.PlanSpec{Name: "deploy", Phases: []types.PhaseSpec{{Name: "deploy", Steps: steps}}}
}

// NewRecoveryManager builds a PlanManager that relaunches exactly the pods
// named in failedPodNames, one step per pod, sharing the deploy plan's
// ServiceSpec-derived resource requirements.
func NewRecoveryManager(svc *types.ServiceSpec, failedPodNames []string) PlanManager {
	var steps []types.StepSpec
	for _, name := range failedPodNames {
		steps = append(steps, types.StepSpec{Name: name, PodName: name})
	}
	spec := types.PlanSpec{Name: "recovery", Phases: []types.PhaseSpec{{Name: "recover", Steps: steps}}}
	pl, reqs := buildPlan(spec, svc)
	return &baseManager{name: "recovery", kind: KindRecovery, plan: pl, reqs: reqs}
}

// NewDecommissionManager builds a PlanManager that tears down the pods
// named in removedPodNames: the step's requirement carries zero tasks,
// which pkg/scheduler reads as "kill and unreserve", not "launch".
func NewDecommissionManager(removedPodNames []string) PlanManager {
	var steps []types.StepSpec
	reqs := make(map[string]types.PodInstanceRequirement)
	for _, name := range removedPodNames {
		steps = append(steps, types.StepSpec{Name: name, PodName: name})
		reqs[name] = types.PodInstanceRequirement{PodName: name}
	}
	pl := &Plan{Name: "decommission", Phases: []*Phase{{Name: "decommission"}}}
	for _, s := range steps {
		pl.Phases[0].Steps = append(pl.Phases[0].Steps, NewStep(s.Name, s.PodName))
	}
	return &baseManager{name: "decommission", kind: KindDecommission, plan: pl, reqs: reqs}
}

// NewUninstallManager builds a PlanManager with one step per pod currently
// known to the service, all to be killed and unreserved, followed
// implicitly (by pkg/scheduler, once this plan completes) by the
// recursive delete of the whole persistent namespace.
func NewUninstallManager(allPodNames []string) PlanManager {
	mgr := NewDecommissionManager(allPodNames).(*baseManager)
	mgr.name = "uninstall"
	mgr.kind = KindUninstall
	mgr.plan.Name = "uninstall"
	return mgr
}
