package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var (
	queueTestBannerMu       sync.Mutex
	queueTestPrintedBanners = map[string]struct{}{}
)

func init() {
	queueBanner("queue_test.go")
}

// queueBanner prints a one-time banner per file to help visually separate test logs.
func queueBanner(file string) {
	queueTestBannerMu.Lock()
	if _, ok := queueTestPrintedBanners[file]; ok {
		queueTestBannerMu.Unlock()
		return
	}
	queueTestPrintedBanners[file] = struct{}{}
	queueTestBannerMu.Unlock()
	fmt.Printf("\n===== BEGIN TEST FILE: internal/proxy/%s =====\n", file)
}

// alwaysOneActiveEndpoint stands in for a pool with one active endpoint, for
// tests exercising queue admission rather than pool emptiness.
func alwaysOneActiveEndpoint() int { return 1 }

func TestQueueConcurrencyLimitAndQueueing(t *testing.T) {
	queueBanner("queue_test.go")

	var concurrent int64
	var peak int64
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := atomic.AddInt64(&concurrent, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
		atomic.AddInt64(&concurrent, -1)
		fmt.Fprint(w, "ok")
	})

	h := WithQueue(slow, QueueConfig{
		MaxQueue:        2,
		MaxConcurrent:   1,
		EnqueueTimeout:  time.Second,
		QueueWaitHeader: true,
	}, alwaysOneActiveEndpoint)

	var wg sync.WaitGroup
	count := 5 // 1 active + 2 queued + 2 rejected
	codes := make([]int, count)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusTooManyRequests:
			rejected++
		default:
			t.Fatalf("unexpected status %d", c)
		}
	}
	if ok != 3 {
		t.Fatalf("expected 3 OK responses, got %d (codes=%v)", ok, codes)
	}
	if rejected != 2 {
		t.Fatalf("expected 2 rejections with 429, got %d (codes=%v)", rejected, codes)
	}
	if peak > 1 {
		t.Fatalf("concurrency exceeded limit: peak=%d", peak)
	}
}

func TestQueueTimeoutWhileWaiting(t *testing.T) {
	queueBanner("queue_test.go")

	started := make(chan struct{})
	block := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-block
		w.WriteHeader(http.StatusOK)
	})

	h := WithQueue(slow, QueueConfig{
		MaxQueue:       2,
		MaxConcurrent:  1,
		EnqueueTimeout: 100 * time.Millisecond,
	}, alwaysOneActiveEndpoint)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}()
	<-started

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on enqueue timeout, got %d", w.Code)
	}

	close(block)
	wg.Wait()
}

func TestQueueRejectsWhenFull(t *testing.T) {
	queueBanner("queue_test.go")

	block := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	})

	h := WithQueue(slow, QueueConfig{
		MaxQueue:       1,
		MaxConcurrent:  1,
		EnqueueTimeout: time.Second,
	}, alwaysOneActiveEndpoint)

	// The first request takes the only concurrency slot and the second the
	// only queue slot, so the third finds the queue full.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest("GET", "/", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
		}()
		time.Sleep(50 * time.Millisecond)
	}

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 when queue is full, got %d", w.Code)
	}

	close(block)
	wg.Wait()
}

func TestQueueCancelledClientAbortsWait(t *testing.T) {
	queueBanner("queue_test.go")

	block := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.WriteHeader(http.StatusOK)
	})
	h := WithQueue(slow, QueueConfig{MaxQueue: 1, MaxConcurrent: 1, EnqueueTimeout: 2 * time.Second}, alwaysOneActiveEndpoint)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req := httptest.NewRequest("GET", "/", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
	}()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on client cancellation while queued, got %d", w.Code)
	}

	close(block)
	wg.Wait()
}

func TestQueueRejectsImmediatelyWhenPoolHasNoActiveEndpoints(t *testing.T) {
	queueBanner("queue_test.go")

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	h := WithQueue(next, QueueConfig{MaxQueue: 4, MaxConcurrent: 4, EnqueueTimeout: time.Second},
		func() int { return 0 })

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when the pool has no active endpoints, got %d", w.Code)
	}
	if called {
		t.Fatalf("expected the request to be rejected before reaching the wrapped handler")
	}
}

func TestQueueReportsActiveEndpointCountHeader(t *testing.T) {
	queueBanner("queue_test.go")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := WithQueue(next, QueueConfig{MaxQueue: 4, MaxConcurrent: 4, EnqueueTimeout: time.Second, QueueWaitHeader: true},
		func() int { return 3 })

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if got := w.Header().Get("X-Active-Endpoints"); got != "3" {
		t.Fatalf("expected X-Active-Endpoints header to reflect the pool, got %q", got)
	}
}
