/*
Package events provides an in-memory pub/sub bus that fans each published
event out to every subscriber. cmd/schedulerd starts and stops a Broker; no
component in this module publishes to it or subscribes to it.

Publish waits for room in the broker's 100-event queue (or for Stop). The
distribution loop never waits on a subscriber: it drops the event for any
subscriber whose 50-event buffer is full.
*/
package events
