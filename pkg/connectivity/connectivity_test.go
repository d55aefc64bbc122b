package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Expected HEAD, got %s", r.Method)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if !NewProbe(server.URL).IsOnline(context.Background()) {
		t.Error("any HTTP answer should count as online")
	}

	server.Close()
	if NewProbe(server.URL).IsOnline(context.Background()) {
		t.Error("closed server should count as offline")
	}
}

func TestWaitForOnlinePolls(t *testing.T) {
	var calls int32
	c := CheckerFunc(func(context.Context) bool {
		return atomic.AddInt32(&calls, 1) >= 3
	})

	if err := WaitForOnline(context.Background(), c, time.Millisecond); err != nil {
		t.Fatalf("WaitForOnline failed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Expected 3 probes, got %d", got)
	}
}

func TestWaitForOnlineCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	offline := CheckerFunc(func(context.Context) bool { return false })
	err := WaitForOnline(ctx, offline, time.Millisecond)
	if !errors.Is(err, ErrNetworkUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected network unavailable + deadline, got %v", err)
	}
}
