package scheduler

import (
	"sync"

	"github.com/mesosphere/svc-scheduler/pkg/log"
	"github.com/mesosphere/svc-scheduler/pkg/metrics"
	"github.com/mesosphere/svc-scheduler/pkg/types"
	"github.com/rs/zerolog"
)

// batch is one resourceOffers callback's worth of offers, queued for the
// single worker to process in order.
type batch struct {
	offers []types.Offer
}

// OfferProcessor is a bounded FIFO queue plus a single worker goroutine:
// every offer batch delivered by the driver callback thread is enqueued
// here and drained by exactly one goroutine, so no two ticks ever mutate
// PlanCoordinator/StateStore concurrently. With threading disabled (tests,
// deterministic scenarios) Submit runs the tick synchronously on the
// caller's own goroutine instead of enqueuing.
type OfferProcessor struct {
	tick   func(offers []types.Offer)
	logger zerolog.Logger

	threadingDisabled bool

	queueMu sync.Mutex
	queue   chan batch
	stopCh  chan struct{}
	started bool
}

// NewOfferProcessor returns a processor bounded to capacity pending
// batches; Submit blocks once the queue is full, exerting back-pressure on
// the driver callback thread rather than dropping offers silently.
func NewOfferProcessor(capacity int, tick func(offers []types.Offer)) *OfferProcessor {
	if capacity <= 0 {
		capacity = 1
	}
	return &OfferProcessor{
		tick:   tick,
		logger: log.WithComponent("offer_processor"),
		queue:  make(chan batch, capacity),
		stopCh: make(chan struct{}),
	}
}

// DisableThreading switches Submit to run synchronously on the calling
// goroutine, for deterministic single-threaded test scenarios. Must be
// called before Start.
func (p *OfferProcessor) DisableThreading() {
	p.threadingDisabled = true
}

// Start spins up the single worker goroutine. A no-op in disabled-
// threading mode, since Submit does the work itself.
func (p *OfferProcessor) Start() {
	if p.threadingDisabled {
		return
	}
	p.queueMu.Lock()
	if p.started {
		p.queueMu.Unlock()
		return
	}
	p.started = true
	p.queueMu.Unlock()

	go p.run()
}

// Stop signals the worker to exit once its current batch (if any) is done;
// batches still queued are not processed.
func (p *OfferProcessor) Stop() {
	if p.threadingDisabled {
		return
	}
	close(p.stopCh)
}

// Submit enqueues one offer batch (or runs it synchronously, in
// disabled-threading mode).
func (p *OfferProcessor) Submit(offers []types.Offer) {
	if p.threadingDisabled {
		p.tick(offers)
		return
	}
	metrics.OffersQueueDepth.Set(float64(len(p.queue)))
	p.queue <- batch{offers: offers}
	metrics.OffersQueueDepth.Set(float64(len(p.queue)))
}

func (p *OfferProcessor) run() {
	p.logger.Info().Msg("offer processor worker started")
	for {
		select {
		case b := <-p.queue:
			metrics.OffersQueueDepth.Set(float64(len(p.queue)))
			p.safeTick(b.offers)
		case <-p.stopCh:
			p.logger.Info().Msg("offer processor worker stopped")
			return
		}
	}
}

// safeTick recovers from a panic at the batch boundary: the worker never
// propagates a failure back to the driver callback thread, matching the
// propagation policy that only the fatal error classes ever terminate the
// process.
func (p *OfferProcessor) safeTick(offers []types.Offer) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("offer tick panicked, batch dropped")
		}
	}()
	p.tick(offers)
}
