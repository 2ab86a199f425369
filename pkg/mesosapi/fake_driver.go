package mesosapi

import (
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/types"
)

// AcceptCall records one AcceptOffers invocation for assertions in tests.
type AcceptCall struct {
	OfferIDs []string
	Ops      []Operation
	Filters  Filters
}

// DeclineCall records one DeclineOffer invocation, filters included, so
// tests can assert on the refuse-duration used (long vs. short).
type DeclineCall struct {
	OfferID string
	Filters Filters
}

// FakeDriver is an in-memory SchedulerDriver double for evaluator and
// scheduler unit tests, standing in for the upstream driver library the
// same way a hand-rolled in-memory manager stands in for a real backend in
// other component tests in this module.
type FakeDriver struct {
	mu sync.Mutex

	Accepts     []AcceptCall
	Declines    []string
	DeclineCalls []DeclineCall
	Killed      []string
	Reconciled [][]types.TaskStatus
	Stopped    bool
	StoppedFailover bool
}

// NewFakeDriver returns an empty FakeDriver.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{}
}

func (f *FakeDriver) AcceptOffers(offerIDs []string, ops []Operation, filters Filters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Accepts = append(f.Accepts, AcceptCall{OfferIDs: offerIDs, Ops: ops, Filters: filters})
	return nil
}

func (f *FakeDriver) DeclineOffer(offerID string, filters Filters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Declines = append(f.Declines, offerID)
	f.DeclineCalls = append(f.DeclineCalls, DeclineCall{OfferID: offerID, Filters: filters})
	return nil
}

func (f *FakeDriver) KillTask(taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Killed = append(f.Killed, taskID)
	return nil
}

func (f *FakeDriver) ReconcileTasks(statuses []types.TaskStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reconciled = append(f.Reconciled, statuses)
	return nil
}

func (f *FakeDriver) Stop(failover bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stopped = true
	f.StoppedFailover = failover
	return nil
}

// LastAccept returns the most recent AcceptOffers call, or the zero value
// if none happened yet.
func (f *FakeDriver) LastAccept() AcceptCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Accepts) == 0 {
		return AcceptCall{}
	}
	return f.Accepts[len(f.Accepts)-1]
}
