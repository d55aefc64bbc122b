// Package connectivity answers "can we reach the achievement service right now"
// and lets callers park until the answer becomes yes.
package connectivity

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	DefaultProbeURL     = "https://retroachievements.org"
	DefaultPollInterval = time.Second
	defaultProbeTimeout = 5 * time.Second
)

// ErrNetworkUnavailable is reported when a probe fails. Callers normally never
// see it: WaitForOnline keeps polling instead of surfacing it.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Checker reports whether the remote service is reachable.
type Checker interface {
	IsOnline(ctx context.Context) bool
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) IsOnline(ctx context.Context) bool { return f(ctx) }

// Always is a Checker that never blocks. Useful for tests and offline tooling.
var Always Checker = CheckerFunc(func(context.Context) bool { return true })

// Probe checks reachability with a lightweight HEAD request.
type Probe struct {
	URL    string
	client *http.Client
}

// NewProbe builds a Probe against url. An empty url probes the public service.
func NewProbe(url string) *Probe {
	if url == "" {
		url = DefaultProbeURL
	}
	client := cleanhttp.DefaultClient()
	client.Timeout = defaultProbeTimeout
	return &Probe{URL: url, client: client}
}

// IsOnline returns true when the probe URL answers with any HTTP status.
func (p *Probe) IsOnline(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// WaitForOnline blocks until c reports online, polling every interval.
// It only gives up when ctx is cancelled, which happens at process shutdown.
func WaitForOnline(ctx context.Context, c Checker, interval time.Duration) error {
	if c == nil {
		return nil
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if c.IsOnline(ctx) {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.Join(ErrNetworkUnavailable, ctx.Err())
		case <-ticker.C:
			if c.IsOnline(ctx) {
				return nil
			}
		}
	}
}
