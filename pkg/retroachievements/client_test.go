package retroachievements

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// recordingBackoff captures the computed waits and returns immediately.
type recordingBackoff struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (b *recordingBackoff) backoff(min, max time.Duration, attempt int, resp *http.Response) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waits = append(b.waits, ExponentialBackoff(min, max, attempt, resp))
	return 0
}

func (b *recordingBackoff) total() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sum time.Duration
	for _, w := range b.waits {
		sum += w
	}
	return sum
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingBackoff) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	rb := &recordingBackoff{}
	var backoff retryablehttp.Backoff = rb.backoff
	return NewClient(Config{BaseURL: server.URL, Backoff: backoff}), rb
}

var testCreds = Credentials{Username: "alice", APIKey: "secret"}

func TestFetchGameRetriesThrottledRequests(t *testing.T) {
	var calls int32
	client, rb := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ID":"1234","Title":"Chrono Trigger","NumDistinctPlayersCasual":"200","Achievements":[]}`)
	})

	game, err := client.FetchGameWithUserProgress(context.Background(), 1234, testCreds)
	if err != nil {
		t.Fatalf("FetchGameWithUserProgress failed: %v", err)
	}
	if game.ID != 1234 || game.Title != "Chrono Trigger" || game.NumDistinctPlayersCasual != 200 {
		t.Errorf("unexpected game: %+v", game)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("Expected 4 requests, got %d", got)
	}
	if total := rb.total(); total < 14000*time.Millisecond {
		t.Errorf("Expected at least 14s of backoff, got %v", total)
	}
}

func TestFetchGameStatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server error exhausts retries", http.StatusInternalServerError, MaxAttempts},
		{"gateway timeout exhausts retries", http.StatusGatewayTimeout, MaxAttempts},
		{"not found fails immediately", http.StatusNotFound, 1},
		{"bad request fails immediately", http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
			})

			_, err := client.FetchGameWithUserProgress(context.Background(), 1, testCreds)
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("Expected HTTPError, got %v", err)
			}
			if httpErr.Status != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, httpErr.Status)
			}
			if got := atomic.LoadInt32(&calls); got != tt.wantCalls {
				t.Errorf("Expected %d requests, got %d", tt.wantCalls, got)
			}
		})
	}
}

func TestFetchGameRejectedCredentials(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.FetchGameWithUserProgress(context.Background(), 1, testCreds)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
}

func TestFetchGameMissingCredentials(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})

	_, err := client.FetchGameWithUserProgress(context.Background(), 1, Credentials{Username: "alice"})
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if calls != 0 {
		t.Errorf("Expected no requests without credentials, got %d", calls)
	}
}

func TestFetchGameProtocolError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>maintenance</html>`)
	})

	_, err := client.FetchGameWithUserProgress(context.Background(), 1, testCreds)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Expected ProtocolError, got %v", err)
	}
}

func TestFetchGameSendsQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/API/API_GetGameInfoAndUserProgress.php" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("z") != "alice" || q.Get("u") != "alice" || q.Get("y") != "secret" || q.Get("g") != "42" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if ua := r.Header.Get("User-Agent"); ua != DefaultUserAgent {
			t.Errorf("unexpected User-Agent %q", ua)
		}
		fmt.Fprint(w, `{"ID":42,"Achievements":{}}`)
	})

	if _, err := client.FetchGameWithUserProgress(context.Background(), 42, testCreds); err != nil {
		t.Fatalf("FetchGameWithUserProgress failed: %v", err)
	}
}

func TestFetchHashDirectory(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("r") != "hashlibrary" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"Success":true,"MD5List":{"ABC123":1234,"def456":"77","000000":0}}`)
	})

	hashes, err := client.FetchHashDirectory(context.Background())
	if err != nil {
		t.Fatalf("FetchHashDirectory failed: %v", err)
	}
	want := map[string]int{"abc123": 1234, "def456": 77}
	if len(hashes) != len(want) {
		t.Fatalf("Expected %v, got %v", want, hashes)
	}
	for k, v := range want {
		if hashes[k] != v {
			t.Errorf("hash %s: expected %d, got %d", k, v, hashes[k])
		}
	}
}

func TestFetchHashDirectoryMissingList(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Success":false}`)
	})

	_, err := client.FetchHashDirectory(context.Background())
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Expected ProtocolError, got %v", err)
	}
}

func TestLookupGameIDByHash(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("m") {
		case "abc123":
			fmt.Fprint(w, `{"Success":true,"GameID":1234}`)
		default:
			fmt.Fprint(w, `{"Success":true,"GameID":0}`)
		}
	})

	id, ok, err := client.LookupGameIDByHash(context.Background(), "ABC123")
	if err != nil || !ok || id != 1234 {
		t.Errorf("Expected (1234, true, nil), got (%d, %v, %v)", id, ok, err)
	}

	id, ok, err = client.LookupGameIDByHash(context.Background(), "ffffff")
	if err != nil || ok || id != 0 {
		t.Errorf("Expected (0, false, nil), got (%d, %v, %v)", id, ok, err)
	}
}

func TestExponentialBackoff(t *testing.T) {
	max := InitialBackoff << (MaxAttempts - 1)
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for attempt, w := range want {
		if got := ExponentialBackoff(InitialBackoff, max, attempt, nil); got != w {
			t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	ctx := context.Background()
	for status, want := range map[int]bool{429: true, 500: true, 504: true, 502: false, 404: false, 200: false} {
		got, err := RetryPolicy(ctx, &http.Response{StatusCode: status}, nil)
		if err != nil {
			t.Fatalf("status %d: unexpected error %v", status, err)
		}
		if got != want {
			t.Errorf("status %d: expected retry=%v, got %v", status, want, got)
		}
	}
}
