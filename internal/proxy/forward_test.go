package proxy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"rrproxy/internal/store"
)

var (
	forwardTestBannerMu       sync.Mutex
	forwardTestPrintedBanners = map[string]struct{}{}
)

func init() {
	forwardBanner("forward_test.go")
}

func forwardBanner(file string) {
	forwardTestBannerMu.Lock()
	if _, ok := forwardTestPrintedBanners[file]; ok {
		forwardTestBannerMu.Unlock()
		return
	}
	forwardTestPrintedBanners[file] = struct{}{}
	forwardTestBannerMu.Unlock()
	fmt.Printf("\n===== BEGIN TEST FILE: internal/proxy/%s =====\n", file)
}

// TestForwardingUpdatesSuccessAndClearsInflight is S5: stub HTTP client to
// return 200 for a chosen endpoint; one GET to the proxy increments that
// endpoint's success by 1 and leaves inflight at 0.
func TestForwardingUpdatesSuccessAndClearsInflight(t *testing.T) {
	forwardBanner("forward_test.go")

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "hello")
	}))
	t.Cleanup(backend.Close)

	s := store.New()
	ep, err := s.Add(backend.URL)
	if err != nil {
		t.Fatalf("add endpoint: %v", err)
	}

	fwd := NewForwarder(s, store.RoundRobin, backend.Client())

	req := httptest.NewRequest(http.MethodGet, "/path?x=1", nil)
	w := httptest.NewRecorder()
	fwd.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Fatalf("expected fixed content type, got %q", ct)
	}
	if got := ep.SuccessCount(); got != 1 {
		t.Fatalf("expected success count 1, got %d", got)
	}
	if got := ep.FailureCount(); got != 0 {
		t.Fatalf("expected failure count 0, got %d", got)
	}
	if got := ep.ConcurrentCount(); got != 0 {
		t.Fatalf("expected inflight to return to 0, got %d", got)
	}
}

// TestForwardingFailureIncrementsFailureAndReturns500 is S6: stub HTTP
// client to error; one GET to the proxy increments failure by 1, leaves
// inflight at 0, and responds with HTTP 500.
func TestForwardingFailureIncrementsFailureAndReturns500(t *testing.T) {
	forwardBanner("forward_test.go")

	s := store.New()
	// No listener on this port; the client's Do will fail with a connection error.
	ep, err := s.Add("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("add endpoint: %v", err)
	}

	fwd := NewForwarder(s, store.RoundRobin, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	fwd.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if got := ep.FailureCount(); got != 1 {
		t.Fatalf("expected failure count 1, got %d", got)
	}
	if got := ep.SuccessCount(); got != 0 {
		t.Fatalf("expected success count 0, got %d", got)
	}
	if got := ep.ConcurrentCount(); got != 0 {
		t.Fatalf("expected inflight to return to 0, got %d", got)
	}
}

func TestForwardingNoEndpointsReturns401(t *testing.T) {
	forwardBanner("forward_test.go")

	s := store.New()
	fwd := NewForwarder(s, store.RoundRobin, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	fwd.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no endpoints are available, got %d", w.Code)
	}
}

func TestForwardingComposesPathAndQueryVerbatim(t *testing.T) {
	forwardBanner("forward_test.go")

	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	s := store.New()
	s.Add(backend.URL)
	fwd := NewForwarder(s, store.RoundRobin, backend.Client())

	req := httptest.NewRequest(http.MethodGet, "/items/7?filter=active", nil)
	w := httptest.NewRecorder()
	fwd.ServeHTTP(w, req)

	if gotPath != "/items/7?filter=active" {
		t.Fatalf("expected verbatim path-and-query forwarded, got %q", gotPath)
	}
}

func TestForwardingHealthScanRunsBeforeSelection(t *testing.T) {
	forwardBanner("forward_test.go")

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(backend.Close)

	s := store.New()
	dead, _ := s.Add(backend.URL)
	for i := 0; i < 100; i++ {
		dead.IncrSuccess()
	}
	for i := 0; i < 20; i++ {
		dead.IncrFailure()
	}
	// Not yet scanned: still active until the forwarding handler's own scan runs.
	if !dead.Active() {
		t.Fatalf("test setup assumption broken: endpoint should start active before scan")
	}

	fwd := NewForwarder(s, store.RoundRobin, backend.Client())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	fwd.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected scan_health to deactivate the endpoint before selection, got status %d", w.Code)
	}
	if dead.Active() {
		t.Fatalf("expected endpoint to be deactivated by the forwarding handler's health scan")
	}
}
