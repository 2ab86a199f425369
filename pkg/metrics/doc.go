/*
Package metrics exposes Prometheus counters/gauges/histograms for offer
processing, recommendation acceptance, evaluator outcomes, launch-record
latency, step states, and reconciliation cycles, plus /health, /ready, and
/live HTTP handlers: health aggregates named-component checks, ready
additionally requires the scheduler's critical components (storage, driver,
offer_processor) to be registered healthy, and live always returns 200 while
the process is up.
*/
package metrics
