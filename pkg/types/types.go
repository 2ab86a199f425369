// Package types defines the core data structures used throughout the scheduler.
package types

import (
	"errors"
	"time"
)

// Sentinel errors shared across the storage and plan-execution layers so
// callers can use errors.Is instead of string matching.
var (
	ErrNotFound          = errors.New("not found")
	ErrStorage           = errors.New("storage error")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// EmptyTaskID is the sentinel task-id used by reservation-only TaskInfo
// records: resources are held but no task is currently running.
const EmptyTaskID = ""

// Offer is a time-limited bundle of resources on one agent, presented by
// the master for acceptance or decline.
type Offer struct {
	ID         string
	AgentID    string
	Hostname   string
	Resources  []Resource
	Attributes map[string]string // agent attributes: zone, region, rack, etc.
}

// ResourceKind enumerates the resource types the evaluator understands.
type ResourceKind string

const (
	ResourceCPUs ResourceKind = "cpus"
	ResourceMem  ResourceKind = "mem"
	ResourceDisk ResourceKind = "disk"
	ResourcePort ResourceKind = "ports"
)

// Reservation is role + principal + a generated resource-id label, the
// durable handle tying a resource to a task across reboots.
type Reservation struct {
	Role       string
	Principal  string
	ResourceID string
}

// PersistentVolumeInfo describes a persistent-disk record attached to a
// resource, when the offer carries a CREATE-able or already-created volume.
type PersistentVolumeInfo struct {
	VolumeID  string
	MountPath string
	SizeMB    int64
}

// Resource is one typed, optionally-reserved slice of an Offer.
type Resource struct {
	Kind        ResourceKind
	Role        string
	Reservation *Reservation
	Volume      *PersistentVolumeInfo

	Scalar    float64 // cpus/mem/disk, in the resource's natural unit
	PortBegin uint32  // inclusive, only meaningful for ResourcePort
	PortEnd   uint32  // inclusive
}

// ResourceSpec is what a task declares it needs, before any offer is
// matched against it.
type ResourceSpec struct {
	CPUs       float64
	MemMB      int64
	DiskMB     int64
	Ports      int
	VolumeName string // non-empty requests a named persistent volume
	VolumeMB   int64
}

// ExecutorInfo identifies the executor a TaskInfo runs under.
type ExecutorInfo struct {
	ExecutorID string
	Command    string
	Args       []string
}

// TaskInfo is the canonical description of a launched or launchable task.
type TaskInfo struct {
	Name      string
	TaskID    string // EmptyTaskID marks a reservation-only record
	PodName   string
	AgentID   string
	Executor  ExecutorInfo
	Command   string
	Resources []Resource
	Labels    map[string]string
	ConfigID  string // ServiceSpec version this TaskInfo was launched under

	PermanentlyFailed bool
}

// TaskState mirrors the Mesos TASK_* status vocabulary the master reports.
type TaskState string

const (
	TaskStaging     TaskState = "STAGING"
	TaskStarting    TaskState = "STARTING"
	TaskRunning     TaskState = "RUNNING"
	TaskFinished    TaskState = "FINISHED"
	TaskFailed      TaskState = "FAILED"
	TaskKilled      TaskState = "KILLED"
	TaskLost        TaskState = "LOST"
	TaskDropped     TaskState = "DROPPED"
	TaskUnreachable TaskState = "UNREACHABLE"
	TaskGone        TaskState = "GONE"
)

// IsTerminal reports whether a task in this state will never transition to
// a non-terminal state again for the same task-id.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskDropped, TaskGone:
		return true
	default:
		return false
	}
}

// NetworkInfo is the subset of container-status network data the scheduler
// cares about (host ports actually bound, container IP if reported).
type NetworkInfo struct {
	IPAddress string
	Ports     []uint32
}

// TaskStatus is a status report for one task-id, as delivered by the
// master driver.
type TaskStatus struct {
	TaskID    string
	State     TaskState
	Reason    string
	Message   string
	Network   *NetworkInfo
	Timestamp time.Time
}

// GoalOverrideKind is the operator-directed override layered over a task's
// default spec-derived goal.
type GoalOverrideKind string

const (
	OverrideNone            GoalOverrideKind = "NONE"
	OverridePaused          GoalOverrideKind = "PAUSED"
	OverrideStopped         GoalOverrideKind = "STOPPED"
	OverrideDecommissioning GoalOverrideKind = "DECOMMISSIONING"
)

// OverrideProgress tracks how far an override has been carried out.
type OverrideProgress string

const (
	ProgressPending    OverrideProgress = "PENDING"
	ProgressInProgress OverrideProgress = "IN_PROGRESS"
	ProgressComplete   OverrideProgress = "COMPLETE"
)

// GoalOverride is a per-task (override, progress) pair.
type GoalOverride struct {
	Override GoalOverrideKind
	Progress OverrideProgress
}

// legalOverrideTransitions is the static 4x3 table of legal (override,
// progress) -> progress transitions, per the design note that goal-state
// overrides are a finite product, not scattered boolean logic.
var legalOverrideTransitions = map[GoalOverrideKind]map[OverrideProgress][]OverrideProgress{
	OverrideNone: {
		ProgressComplete: {ProgressComplete},
	},
	OverridePaused: {
		ProgressPending:    {ProgressInProgress},
		ProgressInProgress: {ProgressComplete},
		ProgressComplete:   {ProgressComplete},
	},
	OverrideStopped: {
		ProgressPending:    {ProgressInProgress},
		ProgressInProgress: {ProgressComplete},
		ProgressComplete:   {ProgressComplete},
	},
	OverrideDecommissioning: {
		ProgressPending:    {ProgressInProgress},
		ProgressInProgress: {ProgressComplete},
		ProgressComplete:   {ProgressComplete},
	},
}

// CanTransition reports whether moving from `from` to `to` (same override
// kind) is a legal progress transition.
func CanTransition(kind GoalOverrideKind, from, to OverrideProgress) bool {
	if from == to {
		return true
	}
	targets, ok := legalOverrideTransitions[kind][from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

// Pod is a colocated group of tasks sharing an executor.
type Pod struct {
	Name  string
	Tasks []TaskSpec
}

// TaskSpec is one task's declared requirements within a pod.
type TaskSpec struct {
	Name      string
	Command   string
	Resources ResourceSpec
}

// PlacementRuleKind tags the variant of a PlacementRule.
type PlacementRuleKind string

const (
	PlacementZone       PlacementRuleKind = "zone"
	PlacementRegion     PlacementRuleKind = "region"
	PlacementHostUnique PlacementRuleKind = "hostname-unique"
	PlacementAttribute  PlacementRuleKind = "attribute-match"
	PlacementColocate   PlacementRuleKind = "colocate-with"
)

// PlacementRule is a tagged-variant predicate evaluated over a candidate
// offer and the set of already-placed TaskInfos, before resource matching.
type PlacementRule struct {
	Kind PlacementRuleKind

	// Zone / Region / AttributeKey+AttributeValue are compared against
	// offer labels supplied out of band by the master (agent attributes).
	Zone           string
	Region         string
	AttributeKey   string
	AttributeValue string

	// ColocatePodName names another pod this pod's tasks must share an
	// agent with (PlacementColocate).
	ColocatePodName string
}

// PodInstanceRequirement is the evaluator's sole input alongside an offer
// batch: which pod, which task indices to launch, and with what resources.
type PodInstanceRequirement struct {
	PodName        string
	Tasks          []TaskSpec
	PlacementRules []PlacementRule
}

// ServiceSpec is the declarative description of pods, tasks, placement
// rules, and plans that the scheduler drives the cluster toward.
type ServiceSpec struct {
	ID        string // UUID assigned by ConfigStore.store
	Name      string
	Principal string
	Role      string
	Pods      []Pod
	Plans     map[string]PlanSpec

	// IdentityHash is a stable hash of the fields above; a change here
	// triggers a new target version and a deployment plan to converge.
	IdentityHash string
}

// PlanSpec declares a named, ordered sequence of phases. Steps reference
// pod names by convention; concrete pod-instance requirements are derived
// at plan-build time from the owning ServiceSpec.
type PlanSpec struct {
	Name   string
	Phases []PhaseSpec
}

// PhaseSpec declares an ordered sequence of steps within a phase.
type PhaseSpec struct {
	Name  string
	Steps []StepSpec
}

// StepSpec names one unit of deployment work: which pod instance to bring
// up (or tear down, for decommission/uninstall plans).
type StepSpec struct {
	Name    string
	PodName string
}

// StepState is the step state machine from the spec's data model.
type StepState string

const (
	StepPending  StepState = "PENDING"
	StepPrepared StepState = "PREPARED"
	StepStarting StepState = "STARTING"
	StepStarted  StepState = "STARTED"
	StepComplete StepState = "COMPLETE"
	StepWaiting  StepState = "WAITING"
	StepError    StepState = "ERROR"
)

// Event is an internal notification fanned out between the scheduler's
// components (status updates, step transitions, offer outcomes).
type Event struct {
	Type      string
	Timestamp time.Time
	TaskID    string
	StepName  string
	Message   string
}
