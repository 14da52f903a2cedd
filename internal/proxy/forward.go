// Package proxy holds the HTTP-facing handlers: the forwarding fallback
// that dispatches to one selected endpoint per request, and the stats
// handler that reports the pool's telemetry.
package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	applog "rrproxy/internal/log"
	imetrics "rrproxy/internal/metrics"
	"rrproxy/internal/store"
)

// Forwarder dispatches inbound requests to one endpoint from the store,
// selected per Policy, and keeps its success/failure/inflight telemetry
// up to date.
type Forwarder struct {
	store  *store.EndpointStore
	policy store.Policy
	client *http.Client
	logApp string
}

// NewForwarder builds a Forwarder over s, selecting with policy and
// dispatching outbound GETs through client. A nil client gets a sane
// default timeout, since the outbound HTTP client is itself a configured
// collaborator rather than something every caller should have to supply.
func NewForwarder(s *store.EndpointStore, policy store.Policy, client *http.Client) *Forwarder {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Forwarder{store: s, policy: policy, client: client, logApp: "proxy"}
}

// ServeHTTP implements the per-request forwarding algorithm: health-scan,
// select, inflight++ (guaranteed release), outbound GET, success/failure
// telemetry update, fixed response content type.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := r.Header.Get("X-Request-ID")

	f.store.ScanHealth()

	ep, err := f.store.SelectNext(f.policy)
	if err != nil {
		applog.Emit("error", f.logApp, map[string]string{"request_id": reqID, "status": "401"},
			"no active endpoints available, rejecting with 401")
		http.Error(w, "no active endpoints available", http.StatusUnauthorized)
		return
	}

	ep.IncConcurrent()
	imetrics.EndpointInflightSet(ep.URI(), ep.ConcurrentCount())
	defer func() {
		ep.DecConcurrent()
		imetrics.EndpointInflightSet(ep.URI(), ep.ConcurrentCount())
	}()

	outboundURL := ep.URI() + r.URL.RequestURI()

	outReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, outboundURL, nil)
	if err != nil {
		ep.IncrFailure()
		imetrics.EndpointFailureInc(ep.URI())
		applog.Emit("error", f.logApp, map[string]string{"request_id": reqID, "uri": ep.URI()},
			"failed to build outbound request: "+err.Error())
		http.Error(w, "unexpected error", http.StatusInternalServerError)
		return
	}

	start := time.Now()
	resp, err := f.client.Do(outReq)
	dur := time.Since(start)

	if isCancellation(r.Context(), err) {
		// Neither success nor failure is recorded when the inbound request
		// was cancelled before the outbound call resolved.
		return
	}

	if err != nil {
		ep.IncrFailure()
		imetrics.EndpointFailureInc(ep.URI())
		imetrics.ObserveProxyUpstreamResponse(ep.URI(), http.MethodGet, http.StatusInternalServerError, dur)
		applog.Emit("error", f.logApp, map[string]string{"request_id": reqID, "uri": ep.URI()},
			"upstream dispatch failed: "+err.Error())
		http.Error(w, "upstream request failed", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		ep.IncrFailure()
		imetrics.EndpointFailureInc(ep.URI())
		applog.Emit("error", f.logApp, map[string]string{"request_id": reqID, "uri": ep.URI()},
			"failed to read upstream response body: "+err.Error())
		http.Error(w, "upstream request failed", http.StatusInternalServerError)
		return
	}

	ep.IncrSuccess()
	imetrics.EndpointSuccessInc(ep.URI())
	imetrics.ObserveProxyUpstreamResponse(ep.URI(), http.MethodGet, resp.StatusCode, dur)
	applog.Emit("info", f.logApp, map[string]string{"request_id": reqID, "uri": ep.URI(), "status": "200"},
		"dispatched request")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// isCancellation reports whether err represents the inbound request's own
// context being cancelled (as opposed to an upstream network failure).
func isCancellation(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(ctx.Err(), context.Canceled) && errors.Is(err, context.Canceled)
}
