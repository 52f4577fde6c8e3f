package gate

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/gatewerk/mcpgate/gate/stream"
)

// Client talks to a gate over HTTP.
type Client struct {
	Logger     *zap.SugaredLogger
	HTTPClient *http.Client

	baseURL                  string
	token                    string
	tlsClientConfig          *tls.Config
	customizeRetryableClient func(*retryablehttp.Client)
	waitInterval             time.Duration
	streamClient             *stream.Client
}

type ClientOption func(c *Client)

func WithClientLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		c.Logger = l.Named("gate_client").Sugar()
	}
}

// WithClientToken sends token as a bearer token on every request.
func WithClientToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

func WithClientTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *Client) {
		c.tlsClientConfig = cfg
	}
}

func WithClientWaitInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.waitInterval = d
	}
}

func WithCustomizeRetryableClient(f func(r *retryablehttp.Client)) ClientOption {
	return func(c *Client) {
		c.customizeRetryableClient = f
	}
}

type logAdapter struct {
	*zap.SugaredLogger
}

func (a *logAdapter) Printf(msg string, args ...interface{}) { a.Debugf(msg, args...) }

// NewClient builds a client for the gate at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	c := &Client{
		Logger:       logger.Named("gate_client").Sugar(),
		baseURL:      strings.TrimRight(baseURL, "/"),
		waitInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: c.tlsClientConfig,
		},
	}
	retryClient.Backoff = func(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		return 10 * time.Millisecond
	}
	retryClient.RetryMax = 10
	// A query is not idempotent. Only connection-level failures retry,
	// never a request the gate already answered.
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return err != nil, nil
	}
	retryClient.Logger = &logAdapter{SugaredLogger: c.Logger}

	if c.customizeRetryableClient != nil {
		c.customizeRetryableClient(retryClient)
	}

	c.HTTPClient = retryClient.StandardClient()
	c.streamClient = &stream.Client{
		HTTPClient: c.HTTPClient,
		URL:        c.baseURL + "/api/v1",
		Logger:     c.Logger.Named("stream_client"),
		Token:      c.token,
	}

	return c, nil
}

func (c *Client) prepReq(r *http.Request) {
	r.Header.Add("Content-Type", "application/json")
	if c.token != "" {
		r.Header.Add("Authorization", "Bearer "+c.token)
	}
	r.Close = true
}

// Query sends one command line and returns the reply line.
func (c *Client) Query(ctx context.Context, command string) (string, error) {
	b, err := json.Marshal(QueryRequest{Command: command})
	if err != nil {
		return "", fmt.Errorf("marshaling query request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}

	c.prepReq(httpReq)

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP error: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", responseError("query", httpResp)
	}

	var resp QueryResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decoding query response: %w", err)
	}
	return resp.Result, nil
}

// Health fetches the health document.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	c.prepReq(httpReq)

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP error: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, responseError("health", httpResp)
	}

	var resp HealthResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &resp, nil
}

// WaitHealthy polls health until the gate answers or the context expires.
func (c *Client) WaitHealthy(ctx context.Context) error {
	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, err := c.Health(ctx)
			if err == nil {
				c.Logger.Debug("health check succeeded, done waiting for gate")
				return nil
			}
			c.Logger.Debugf("got health error: %s", err)
		}
	}
}

// OpenStream opens the streaming query channel.
func (c *Client) OpenStream(ctx context.Context) (*stream.Stream, error) {
	return c.streamClient.Open(ctx)
}

// responseError turns a non-200 answer into an error, preferring the gate's
// own error body when it parses.
func responseError(op string, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s failed with status code %d", op, resp.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("%s failed with status code %d: %s", op, resp.StatusCode, errResp.Message)
	}
	return fmt.Errorf("%s failed with status code %d: %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
}
