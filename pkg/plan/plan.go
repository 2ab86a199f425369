// Package plan implements the Plan/Phase/Step hierarchy that tracks
// deployment progress, the PlanManager variants that drive each plan kind
// (deploy, recovery, decommission, uninstall) toward completion, and the
// PlanCoordinator that arbitrates which steps across all active managers
// are safe to work on in a given tick.
package plan

import "sync"

// Step is one unit of deployment work: bring up (or tear down) a single
// pod instance. Its state only ever moves forward along the state machine
// named in the data model; nothing in this package moves it backward.
type Step struct {
	mu      sync.Mutex
	Name    string
	PodName string
	state   StepState
}

// NewStep returns a Step in PENDING.
func NewStep(name, podName string) *Step {
	return &Step{Name: name, PodName: podName, state: StepPending}
}

// State returns the step's current state.
func (s *Step) State() StepState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Advance moves the step to the given state if the transition is legal,
// reporting whether it took effect.
func (s *Step) Advance(to StepState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canAdvance(s.state, to) {
		return false
	}
	s.state = to
	return true
}

// StepState is this package's step state type. It carries the same values as
// types.StepState but is declared here separately, not as an alias of it.
type StepState = stepState

type stepState string

const (
	StepPending  stepState = "PENDING"
	StepPrepared stepState = "PREPARED"
	StepStarting stepState = "STARTING"
	StepStarted  stepState = "STARTED"
	StepComplete stepState = "COMPLETE"
	StepWaiting  stepState = "WAITING"
	StepError    stepState = "ERROR"
)

// legalStepTransitions is the forward-only step state machine: PENDING ->
// PREPARED -> STARTING -> STARTED -> COMPLETE, with WAITING and ERROR
// reachable from any in-flight state and ERROR/WAITING able to resume back
// into PREPARED once the underlying condition clears.
var legalStepTransitions = map[stepState][]stepState{
	StepPending:  {StepPrepared, StepWaiting, StepError},
	StepPrepared: {StepStarting, StepWaiting, StepError},
	StepStarting: {StepStarted, StepWaiting, StepError},
	StepStarted:  {StepComplete, StepWaiting, StepError},
	StepComplete: {},
	StepWaiting:  {StepPrepared, StepError},
	StepError:    {StepPrepared},
}

func canAdvance(from, to stepState) bool {
	if from == to {
		return true
	}
	for _, t := range legalStepTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Phase is an ordered sequence of steps; a phase is complete once every
// step in it is COMPLETE.
type Phase struct {
	Name  string
	Steps []*Step
}

// Complete reports whether every step in the phase is COMPLETE.
func (p *Phase) Complete() bool {
	for _, s := range p.Steps {
		if s.State() != StepComplete {
			return false
		}
	}
	return true
}

// Plan is a named, ordered sequence of phases. Phases execute strictly in
// order: a phase is not eligible for work until every prior phase is
// complete.
type Plan struct {
	Name   string
	Phases []*Phase
}

// Complete reports whether every phase in the plan is complete.
func (pl *Plan) Complete() bool {
	for _, ph := range pl.Phases {
		if !ph.Complete() {
			return false
		}
	}
	return true
}

// ActivePhase returns the first phase that is not yet complete, or nil if
// the whole plan is done.
func (pl *Plan) ActivePhase() *Phase {
	for _, ph := range pl.Phases {
		if !ph.Complete() {
			return ph
		}
	}
	return nil
}

// CandidateSteps returns every step in the active phase not yet COMPLETE,
// in phase order. Steps in later phases are never candidates until the
// active phase finishes, per strict phase ordering.
func (pl *Plan) CandidateSteps() []*Step {
	phase := pl.ActivePhase()
	if phase == nil {
		return nil
	}
	var out []*Step
	for _, s := range phase.Steps {
		if s.State() != StepComplete {
			out = append(out, s)
		}
	}
	return out
}
