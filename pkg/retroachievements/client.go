// Package retroachievements is a thin client for the RetroAchievements web API.
package retroachievements

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sw33tLie/emuchievements/pkg/connectivity"
	"github.com/sw33tLie/emuchievements/pkg/logging"
)

const (
	DefaultBaseURL   = "https://retroachievements.org"
	DefaultUserAgent = "Emuchievements/dev (+https://github.com/EmuDeck/Emuchievements)"

	// MaxAttempts counts the first request plus its retries.
	MaxAttempts    = 5
	InitialBackoff = 2000 * time.Millisecond

	requestTimeout = 30 * time.Second
	maxErrorBody   = 512
)

const (
	endpointGameID       = "gameid lookup"
	endpointHashLibrary  = "hash library"
	endpointGameProgress = "game info and user progress"
)

// Config controls how a Client talks to the service.
type Config struct {
	BaseURL   string
	UserAgent string

	// Online is consulted before every request; nil means always online.
	Online       connectivity.Checker
	PollInterval time.Duration

	// Backoff overrides the wait between attempts. Nil uses ExponentialBackoff.
	Backoff    retryablehttp.Backoff
	HTTPClient *http.Client
	Log        logging.Logger
}

// Client handles communication with the RetroAchievements API.
type Client struct {
	baseURL      string
	userAgent    string
	online       connectivity.Checker
	pollInterval time.Duration
	http         *retryablehttp.Client
	log          logging.Logger
}

// NewClient creates a new RetroAchievements API client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	log := logging.OrNop(cfg.Log)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = cfg.HTTPClient
	if retryClient.HTTPClient == nil {
		retryClient.HTTPClient = cleanhttp.DefaultPooledClient()
		retryClient.HTTPClient.Timeout = requestTimeout
	}
	retryClient.Logger = retryLogger{log}
	retryClient.RetryMax = MaxAttempts - 1
	retryClient.RetryWaitMin = InitialBackoff
	retryClient.RetryWaitMax = InitialBackoff << (MaxAttempts - 1)
	retryClient.CheckRetry = RetryPolicy
	retryClient.Backoff = ExponentialBackoff
	if cfg.Backoff != nil {
		retryClient.Backoff = cfg.Backoff
	}
	// Keep the last response so a final 5xx surfaces as an HTTPError with its status.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:      baseURL,
		userAgent:    userAgent,
		online:       cfg.Online,
		pollInterval: cfg.PollInterval,
		http:         retryClient,
		log:          log,
	}
}

// IsRetryableStatus reports whether a status is worth another attempt.
func IsRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// RetryPolicy retries transport failures and 429/500/504. Every other status
// is handed back to the caller on the first attempt.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return IsRetryableStatus(resp.StatusCode), nil
}

// ExponentialBackoff waits min, 2*min, 4*min... ignoring Retry-After.
func ExponentialBackoff(min, max time.Duration, attemptNum int, _ *http.Response) time.Duration {
	wait := min << uint(attemptNum)
	if wait <= 0 || wait > max {
		return max
	}
	return wait
}

// LookupGameIDByHash resolves a single content hash. ok is false when the
// service does not know the hash.
func (c *Client) LookupGameIDByHash(ctx context.Context, hash string) (gameID int, ok bool, err error) {
	q := url.Values{}
	q.Set("r", "gameid")
	q.Set("m", strings.ToLower(hash))

	body, err := c.get(ctx, endpointGameID, "/dorequest.php", q)
	if err != nil {
		return 0, false, err
	}
	if !gjson.ValidBytes(body) {
		return 0, false, &ProtocolError{Endpoint: endpointGameID, Err: errInvalidJSON}
	}
	id := gjson.GetBytes(body, "GameID")
	if !id.Exists() {
		return 0, false, &ProtocolError{Endpoint: endpointGameID, Err: fmt.Errorf("missing GameID")}
	}
	if id.Int() <= 0 {
		return 0, false, nil
	}
	return int(id.Int()), true, nil
}

// FetchGameWithUserProgress fetches a game together with the user's unlocks.
func (c *Client) FetchGameWithUserProgress(ctx context.Context, gameID int, creds Credentials) (*Game, error) {
	if !creds.Valid() {
		return nil, ErrNotAuthenticated
	}
	q := url.Values{}
	q.Set("z", creds.Username)
	q.Set("y", creds.APIKey)
	q.Set("u", creds.Username)
	q.Set("g", strconv.Itoa(gameID))

	body, err := c.get(ctx, endpointGameProgress, "/API/API_GetGameInfoAndUserProgress.php", q)
	if err != nil {
		return nil, err
	}
	return ParseGame(body)
}

// FetchHashDirectory downloads the whole hash -> game id library. Keys are
// lowercase hex digests.
func (c *Client) FetchHashDirectory(ctx context.Context) (map[string]int, error) {
	q := url.Values{}
	q.Set("r", "hashlibrary")

	body, err := c.get(ctx, endpointHashLibrary, "/dorequest.php", q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, &ProtocolError{Endpoint: endpointHashLibrary, Err: errInvalidJSON}
	}
	// Older servers answer "MD5List", newer ones "md5list".
	list := gjson.GetBytes([]byte(strings.ToLower(string(body))), "md5list")
	if !list.IsObject() {
		return nil, &ProtocolError{Endpoint: endpointHashLibrary, Err: fmt.Errorf("missing md5list")}
	}

	hashes := make(map[string]int)
	list.ForEach(func(k, v gjson.Result) bool {
		if id := v.Int(); id > 0 {
			hashes[k.String()] = int(id)
		}
		return true
	})
	c.log.Debugf("Loaded %d hashes from the hash library", len(hashes))
	return hashes, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	if err := connectivity.WaitForOnline(ctx, c.online, c.pollInterval); err != nil {
		return nil, err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform %s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &HTTPError{Endpoint: endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	return body, nil
}

// retryLogger forwards retryablehttp's leveled messages at debug level.
type retryLogger struct {
	log logging.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Debugf("%s %v", msg, keysAndValues)
}
