package store

import (
	"sync/atomic"

	"rrproxy/internal/endpoint"
)

// Cursor is the shared round-robin position, advanced with compare-and-swap
// so concurrent selections never hand out the same slot twice.
type Cursor struct {
	next atomic.Uint64
}

// Policy picks one endpoint from the currently active set. Implementations
// must not mutate endpoints; the caller accounts for in-flight load itself
// (the forwarding handler's IncConcurrent/DecConcurrent pair).
type Policy func(active []*endpoint.Endpoint, cursor *Cursor) *endpoint.Endpoint

// RoundRobin cycles through the active set using a CAS loop, so it stays
// fair under concurrent callers without taking a lock. The cursor resets to
// 0 whenever it has met or exceeded the active-set size, then increments,
// so it never grows without bound; the pre-increment lands the first
// selection out of two endpoints on the second one, matching the reference
// fetch-and-increment semantics.
func RoundRobin(active []*endpoint.Endpoint, cursor *Cursor) *endpoint.Endpoint {
	n := uint64(len(active))
	for {
		cur := cursor.next.Load()
		next := cur + 1
		if cur >= n {
			next = 1
		}
		if cursor.next.CompareAndSwap(cur, next) {
			return active[next%n]
		}
	}
}

// LeastInFlight scans the active set and returns the endpoint with the
// smallest current in-flight count, breaking ties by order. The in-flight
// counter IS the Endpoint's own telemetry cell, so the forwarding handler's
// IncConcurrent call is itself the reservation — no separate
// pending-selection bookkeeping is needed.
func LeastInFlight(active []*endpoint.Endpoint, _ *Cursor) *endpoint.Endpoint {
	best := active[0]
	bestLoad := best.ConcurrentCount()
	for _, ep := range active[1:] {
		if load := ep.ConcurrentCount(); load < bestLoad {
			best = ep
			bestLoad = load
		}
	}
	return best
}

// ByName resolves a configured strategy name to a Policy, defaulting to
// RoundRobin for an empty or unrecognized value.
func ByName(name string) Policy {
	switch name {
	case "least_conn":
		return LeastInFlight
	default:
		return RoundRobin
	}
}
