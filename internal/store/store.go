// Package store holds the endpoint pool: a URI-keyed map guarded by an
// RWMutex for structural changes, with per-endpoint telemetry mutated
// lock-free through atomics (see internal/endpoint).
package store

import (
	"errors"
	"sync"

	"rrproxy/internal/endpoint"
	"rrproxy/internal/metrics"
)

// ErrEndpointAlreadyExists is returned by Add when the URI is already in the pool.
var ErrEndpointAlreadyExists = errors.New("store: endpoint already exists")

// ErrNoEndpoints is returned by SelectNext when no active endpoint is available.
var ErrNoEndpoints = errors.New("store: no endpoints available")

// EndpointStore is the pool of backend endpoints fronted by the proxy.
type EndpointStore struct {
	mu        sync.RWMutex
	endpoints map[string]*endpoint.Endpoint
	order     []string // stable iteration/selection order, append-only
	cursor    Cursor
}

// New returns an empty store.
func New() *EndpointStore {
	return &EndpointStore{
		endpoints: make(map[string]*endpoint.Endpoint),
	}
}

// Add registers a new endpoint for uri. Structural mutation takes the
// writer lock; it never touches another goroutine's in-flight atomics.
func (s *EndpointStore) Add(uri string) (*endpoint.Endpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.endpoints[uri]; exists {
		return nil, ErrEndpointAlreadyExists
	}
	ep := endpoint.New(uri)
	s.endpoints[uri] = ep
	s.order = append(s.order, uri)
	metrics.EndpointActiveSet(uri, true)
	return ep, nil
}

// List returns every endpoint in stable insertion order, active or not.
// Safe to call concurrently with Add, SelectNext, and ScanHealth.
func (s *EndpointStore) List() []*endpoint.Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*endpoint.Endpoint, 0, len(s.order))
	for _, uri := range s.order {
		out = append(out, s.endpoints[uri])
	}
	return out
}

// active returns the subset of endpoints currently eligible for selection,
// in stable order. Must be called while holding at least the reader lock.
func (s *EndpointStore) active() []*endpoint.Endpoint {
	out := make([]*endpoint.Endpoint, 0, len(s.order))
	for _, uri := range s.order {
		ep := s.endpoints[uri]
		if ep.Active() {
			out = append(out, ep)
		}
	}
	return out
}

// ActiveCount reports how many endpoints are currently eligible for
// selection. Used by the admission queue to reject fast instead of
// queueing requests the pool cannot possibly serve.
func (s *EndpointStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active())
}

// SelectNext picks the next endpoint to dispatch to according to policy.
// Returns ErrNoEndpoints if no endpoint is currently active.
func (s *EndpointStore) SelectNext(policy Policy) (*endpoint.Endpoint, error) {
	s.mu.RLock()
	candidates := s.active()
	s.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, ErrNoEndpoints
	}
	return policy(candidates, &s.cursor), nil
}

// ScanHealth deactivates any endpoint whose failure ratio has grown past
// the threshold: failure_count > success_count/10, with success_count > 0.
// There is no reachable trigger that reactivates an endpoint once marked
// dead; the original system this was modeled on has none either.
func (s *EndpointStore) ScanHealth() {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, uri := range s.order {
		ep := s.endpoints[uri]
		success := ep.SuccessCount()
		failure := ep.FailureCount()
		if success > 0 && failure > success/10 {
			ep.Deactivate()
			metrics.EndpointActiveSet(uri, false)
		}
	}
}
