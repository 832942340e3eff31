package workerpool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteSuccessNoRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(1, time.Second, 3)
	defer p.Close()

	outcome := p.Execute(context.Background(), http.MethodGet, srv.URL)
	if !outcome.Success() {
		t.Fatalf("expected success, got %+v", outcome)
	}
	if hits != 1 {
		t.Fatalf("expected 1 request, got %d", hits)
	}
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := New(1, time.Second, 2)
	defer p.Close()
	// Make the backoff fast enough for a test by using small attempt counts;
	// real backoff is exponential in seconds, so this test bounds retries by
	// count, not wall-clock, and only exercises attempt=0 (1s) and attempt=1 (2s).
	outcome := p.Execute(context.Background(), http.MethodGet, srv.URL)
	if !outcome.Success() {
		t.Fatalf("expected eventual success, got %+v", outcome)
	}
	if hits != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", hits)
	}
}

func TestExecuteDoesNotRetry4xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := New(1, time.Second, 3)
	defer p.Close()

	outcome := p.Execute(context.Background(), http.MethodGet, srv.URL)
	if outcome.Success() {
		t.Fatalf("4xx must not be reported as success")
	}
	if hits != 1 {
		t.Fatalf("4xx must not retry, got %d attempts", hits)
	}
}

func TestAcquireReleaseBoundsConcurrency(t *testing.T) {
	p := New(1, time.Second, 0)
	defer p.Close()

	if !p.TryAcquire() {
		t.Fatalf("expected first acquire to succeed")
	}
	if p.TryAcquire() {
		t.Fatalf("expected second acquire to fail while pool is full")
	}
	p.Release()
	if !p.TryAcquire() {
		t.Fatalf("expected acquire to succeed after release")
	}
	p.Release()
}

func TestAcquireBlocksUntilReleased(t *testing.T) {
	p := New(1, time.Second, 0)
	defer p.Close()

	if !p.Acquire(context.Background()) {
		t.Fatalf("expected first acquire to succeed")
	}

	acquired := make(chan bool, 1)
	go func() {
		acquired <- p.Acquire(context.Background())
	}()

	select {
	case <-acquired:
		t.Fatalf("second acquire must block while pool is full")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release()
	select {
	case ok := <-acquired:
		if !ok {
			t.Fatalf("expected blocked acquire to eventually succeed")
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked acquire did not unblock after release")
	}
	p.Release()
}
