// Package endpoint defines the lock-free per-backend telemetry cell shared
// by the endpoint store and the forwarding handler.
package endpoint

import "sync/atomic"

// Endpoint tracks one backend's URI and its running counters. All counters
// are plain atomics so readers (selection, health scan, stats) never block
// behind a writer (the forwarding handler updating them mid-request).
type Endpoint struct {
	uri string

	countSuccess   atomic.Int64
	countFailure   atomic.Int64
	countConcurent atomic.Int64
	active         atomic.Bool
}

// New returns an Endpoint for uri, active by default.
func New(uri string) *Endpoint {
	e := &Endpoint{uri: uri}
	e.active.Store(true)
	return e
}

// URI returns the endpoint's backend URI.
func (e *Endpoint) URI() string { return e.uri }

// IncrSuccess records one successful dispatch.
func (e *Endpoint) IncrSuccess() { e.countSuccess.Add(1) }

// IncrFailure records one failed dispatch.
func (e *Endpoint) IncrFailure() { e.countFailure.Add(1) }

// SuccessCount returns the current success counter.
func (e *Endpoint) SuccessCount() int64 { return e.countSuccess.Load() }

// FailureCount returns the current failure counter.
func (e *Endpoint) FailureCount() int64 { return e.countFailure.Load() }

// IncConcurrent increments the in-flight counter and returns the new value.
func (e *Endpoint) IncConcurrent() int64 { return e.countConcurent.Add(1) }

// DecConcurrent decrements the in-flight counter.
func (e *Endpoint) DecConcurrent() { e.countConcurent.Add(-1) }

// ConcurrentCount returns the current in-flight counter.
func (e *Endpoint) ConcurrentCount() int64 { return e.countConcurent.Load() }

// Active reports whether the endpoint is currently eligible for selection.
func (e *Endpoint) Active() bool { return e.active.Load() }

// Deactivate excludes the endpoint from future selection.
func (e *Endpoint) Deactivate() { e.active.Store(false) }

// Activate makes the endpoint eligible for selection again. No caller in
// this repository reaches this from a reachable operation (there is no
// admin surface); it exists because the store's data model allows it.
func (e *Endpoint) Activate() { e.active.Store(true) }
