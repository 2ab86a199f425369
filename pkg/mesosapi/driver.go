// Package mesosapi defines the contract between the scheduler core and the
// master driver library: inbound callbacks the master invokes, outbound
// calls the scheduler issues, and the operation/DTO types that cross that
// boundary. It deliberately imports no concrete driver implementation —
// the upstream library satisfies SchedulerDriver and delivers callbacks
// through EventHandler; this package only names the shape of that exchange.
package mesosapi

import "github.com/mesosphere/svc-scheduler/pkg/types"

// OperationKind tags one operation sent to the master inside an Accept call.
type OperationKind string

const (
	OpLaunch      OperationKind = "LAUNCH"
	OpLaunchGroup OperationKind = "LAUNCH_GROUP"
	OpReserve     OperationKind = "RESERVE"
	OpUnreserve   OperationKind = "UNRESERVE"
	OpCreate      OperationKind = "CREATE"
	OpDestroy     OperationKind = "DESTROY"
)

// Operation is one unit of work inside an Accept call, built from an
// OfferRecommendation by the scheduler's operation builder.
type Operation struct {
	Kind     OperationKind
	OfferID  string
	Resource types.Resource
	TaskInfo *types.TaskInfo // set for OpLaunch / OpLaunchGroup
}

// Filters controls how long the master should wait before re-offering
// resources it declined or didn't fully consume.
type Filters struct {
	RefuseSeconds float64
}

// MasterInfo is the subset of master identity the scheduler cares about for
// logging on (re)registration.
type MasterInfo struct {
	ID       string
	Hostname string
	Port     int32
}

// SchedulerDriver is the outbound half of the protocol: calls the scheduler
// core issues against the master, implemented by the upstream driver
// library and never by this package.
type SchedulerDriver interface {
	AcceptOffers(offerIDs []string, ops []Operation, filters Filters) error
	DeclineOffer(offerID string, filters Filters) error
	KillTask(taskID string) error
	ReconcileTasks(statuses []types.TaskStatus) error
	Stop(failover bool) error
}

// EventHandler is the inbound half of the protocol: callbacks the master
// driver invokes on the scheduler core. Exactly one goroutine — the driver's
// callback thread — ever calls these methods; FrameworkScheduler is the sole
// implementer in this module.
type EventHandler interface {
	Registered(frameworkID string, master MasterInfo)
	Reregistered(master MasterInfo)
	ResourceOffers(offers []types.Offer)
	OfferRescinded(offerID string)
	StatusUpdate(status types.TaskStatus)
	FrameworkMessage(executorID, agentID string, data []byte)
	Disconnected()
	SlaveLost(agentID string)
	ExecutorLost(executorID, agentID string, status int)
	Error(message string)
}

// Exit codes for the conditions the spec calls fatal or distinguishable at
// process-supervisor level.
const (
	ExitGeneral             = 1
	ExitRegistrationFailure = 2
	ExitMasterDisconnect    = 3
	ExitDriverError         = 4
	ExitSchedulerInitFailed = 5
)
