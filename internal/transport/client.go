// internal/transport/client.go

// Package transport drives one remote browser session over the automation
// server's HTTP+JSON protocol.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/brandontrabucco/insta-dev-sub000/api/schemas"
	"github.com/brandontrabucco/insta-dev-sub000/internal/config"
	"github.com/brandontrabucco/insta-dev-sub000/internal/network"
	"github.com/brandontrabucco/insta-dev-sub000/internal/retry"
)

// Session is the lifecycle of one remote browser session:
// UNSTARTED --Start--> ACTIVE --Close--> UNSTARTED.
type Session interface {
	Start(ctx context.Context, opts StartOptions) error
	Close(ctx context.Context) (schemas.Status, error)
	Goto(ctx context.Context, url string) error
	Observation(ctx context.Context) (*schemas.BrowserObservation, error)
	Action(ctx context.Context, calls []schemas.FunctionCall) error
	SessionID() string
}

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Width   int
	Height  int
	// SettleDelay is waited before every Goto.
	SettleDelay time.Duration
	// RateLimit is the maximum requests per second; zero means unlimited.
	RateLimit  float64
	RateBurst  int
	Retry      retry.Policy
	HTTPClient HTTPDoer
}

// OptionsFromConfig maps the server and retry config sections onto Options.
func OptionsFromConfig(server config.ServerConfig, retryCfg config.RetryConfig) Options {
	return Options{
		BaseURL:     server.URL,
		Width:       server.Width,
		Height:      server.Height,
		SettleDelay: server.SettleDelay,
		RateLimit:   server.RateLimit,
		RateBurst:   server.RateBurst,
		Retry:       retry.FromConfig(retryCfg, nil),
	}
}

// Client implements Session. It is meant to be driven by a single goroutine;
// the mutex only keeps misuse from corrupting the session state.
type Client struct {
	baseURL     *url.URL
	width       int
	height      int
	settleDelay time.Duration
	httpClient  HTTPDoer
	limiter     *rate.Limiter
	policy      retry.Policy
	logger      *zap.Logger

	mu        sync.Mutex
	sessionID string
}

var _ Session = (*Client)(nil)

// NewClient validates the options and returns an unstarted client.
func NewClient(opts Options, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("transport")

	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid automation server URL %q", opts.BaseURL)
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst < 1 {
		burst = 1
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		clientCfg := network.NewDefaultClientConfig()
		clientCfg.Logger = logger
		httpClient = network.NewClient(clientCfg)
	}

	policy := opts.Retry
	policy.Logger = logger
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}

	return &Client{
		baseURL:     base,
		width:       opts.Width,
		height:      opts.Height,
		settleDelay: opts.SettleDelay,
		httpClient:  httpClient,
		limiter:     rate.NewLimiter(limit, burst),
		policy:      policy,
		logger:      logger,
	}, nil
}

// SessionID returns the active session id, or "" when unstarted.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Start opens a new session, closing any session this client still holds so
// remote browsers are never leaked.
func (c *Client) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionID != "" {
		if _, err := c.closeLocked(ctx); err != nil {
			c.logger.Warn("Failed to close previous session before start.", zap.Error(err))
		}
	}

	var payload []byte
	if !opts.empty() {
		var err error
		if payload, err = json.Marshal(opts); err != nil {
			return schemas.NewEnvError(schemas.KindProtocol, "start", err)
		}
	}
	query := url.Values{
		"width":  {strconv.Itoa(c.width)},
		"height": {strconv.Itoa(c.height)},
	}

	body, err := c.post(ctx, "start", query, payload)
	if err != nil {
		return err
	}
	id, err := decodeSessionID(body)
	if err != nil {
		return schemas.NewEnvError(schemas.KindProtocol, "start", err)
	}
	c.sessionID = id
	c.logger.Info("Session started.", zap.String("session_id", id))
	return nil
}

// Close ends the active session. Without one it succeeds without any network
// call. Local state is cleared whatever the server answers.
func (c *Client) Close(ctx context.Context) (schemas.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == "" {
		return schemas.StatusSuccess, nil
	}
	return c.closeLocked(ctx)
}

func (c *Client) closeLocked(ctx context.Context) (schemas.Status, error) {
	id := c.sessionID
	c.sessionID = ""
	if _, err := c.post(ctx, "close", url.Values{"session_id": {id}}, nil); err != nil {
		return schemas.StatusError, err
	}
	c.logger.Info("Session closed.", zap.String("session_id", id))
	return schemas.StatusSuccess, nil
}

// Goto waits for the settle delay and then navigates the session's page.
func (c *Client) Goto(ctx context.Context, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.activeSession("goto")
	if err != nil {
		return err
	}

	if c.settleDelay > 0 {
		timer := time.NewTimer(c.settleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	_, err = c.post(ctx, "goto", url.Values{"url": {target}, "session_id": {id}}, nil)
	return err
}

// Observation fetches the raw page state. A response missing any required key
// is a protocol error and is not retried.
func (c *Client) Observation(ctx context.Context) (*schemas.BrowserObservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.activeSession("observation")
	if err != nil {
		return nil, err
	}

	query := url.Values{"session_id": {id}}
	return retry.Do(ctx, c.policy, "observation", func(ctx context.Context) (*schemas.BrowserObservation, error) {
		body, err := c.postOnce(ctx, "observation", query, nil)
		if err != nil {
			return nil, err
		}
		obs, err := decodeObservation(body)
		if err != nil {
			return nil, schemas.NewEnvError(schemas.KindProtocol, "observation", err)
		}
		return obs, nil
	})
}

// Action sends the calls for in-order execution. The server reports success or
// failure for the list as a whole.
func (c *Client) Action(ctx context.Context, calls []schemas.FunctionCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.activeSession("action")
	if err != nil {
		return err
	}
	if calls == nil {
		calls = []schemas.FunctionCall{}
	}
	payload, err := json.Marshal(calls)
	if err != nil {
		return schemas.NewEnvError(schemas.KindProtocol, "action", err)
	}
	_, err = c.post(ctx, "action", url.Values{"session_id": {id}}, payload)
	return err
}

func (c *Client) activeSession(op string) (string, error) {
	if c.sessionID == "" {
		return "", schemas.NewEnvError(schemas.KindNotStarted, op, errors.New("no active session, call Start first"))
	}
	return c.sessionID, nil
}

// post sends one request under the retry policy and returns the response body.
func (c *Client) post(ctx context.Context, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	return retry.Do(ctx, c.policy, endpoint, func(ctx context.Context) ([]byte, error) {
		return c.postOnce(ctx, endpoint, query, payload)
	})
}

func (c *Client) postOnce(ctx context.Context, endpoint string, query url.Values, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := *c.baseURL
	u.Path = u.Path + "/" + endpoint
	u.RawQuery = query.Encode()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), reqBody)
	if err != nil {
		return nil, schemas.NewEnvError(schemas.KindTransport, endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, schemas.NewEnvError(schemas.KindTransport, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, schemas.NewEnvError(schemas.KindTransport, endpoint, fmt.Errorf("reading response: %w", err))
	}
	c.logger.Debug("Request completed.",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		serverErr := &schemas.ServerError{StatusCode: resp.StatusCode, Message: decodeServerMessage(body)}
		kind := schemas.KindServer
		if isSessionNotFound(serverErr) {
			kind = schemas.KindSessionNotFound
		}
		return nil, schemas.NewEnvError(kind, endpoint, serverErr)
	}
	return body, nil
}

func isSessionNotFound(err *schemas.ServerError) bool {
	return err.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(err.Message), "session")
}

// IsRetryable is the default retry predicate for remote calls: transport
// failures, 5xx, 408 and 429 are retried; everything else is final.
func IsRetryable(err error) bool {
	switch schemas.KindOf(err) {
	case schemas.KindTransport:
		return true
	case schemas.KindServer:
		var serverErr *schemas.ServerError
		if !errors.As(err, &serverErr) {
			return true
		}
		code := serverErr.StatusCode
		return code >= 500 || code == http.StatusRequestTimeout || code == http.StatusTooManyRequests
	case "":
		return true
	}
	return false
}
