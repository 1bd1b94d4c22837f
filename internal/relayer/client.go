// Package relayer is a JSON-RPC 2.0 client for transaction relayers, which
// submit signed smart-account batches on chain and quote their fees.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mrz1836/quorum/internal/metrics"
	qerr "github.com/mrz1836/quorum/pkg/errors"
)

// maxResponseBytes caps how much of a relayer response is read.
const maxResponseBytes = 4 << 20

var (
	// ErrRPCRequest indicates a relayer request failed.
	ErrRPCRequest = &qerr.QuorumError{
		Code:     "RELAYER_REQUEST_FAILED",
		Message:  "relayer request failed",
		ExitCode: qerr.ExitGeneral,
	}

	// ErrRPCResponse indicates an invalid relayer response.
	ErrRPCResponse = &qerr.QuorumError{
		Code:     "RELAYER_INVALID_RESPONSE",
		Message:  "invalid relayer response",
		ExitCode: qerr.ExitGeneral,
	}
)

// LogWriter receives request diagnostics.
type LogWriter interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	HTTPClient  *http.Client
	RateLimiter *RateLimiter
	Retry       *RetryConfig
	Logger      LogWriter
	Metrics     *metrics.Metrics

	// UserAgent is sent with every request when set.
	UserAgent string
}

// Client talks to one relayer endpoint.
type Client struct {
	url        string
	httpClient *http.Client
	limiter    *RateLimiter
	retry      RetryConfig
	logger     LogWriter
	metrics    *metrics.Metrics
	userAgent  string
	idCounter  atomic.Uint64
}

// NewClient creates a relayer client for url.
func NewClient(url string, opts Options) (*Client, error) {
	if url == "" {
		return nil, qerr.WithDetails(qerr.ErrConfiguration, map[string]string{
			"reason": "relayer url is required",
		})
	}

	c := &Client{
		url:        url,
		httpClient: opts.HTTPClient,
		limiter:    opts.RateLimiter,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		userAgent:  opts.UserAgent,
		retry:      DefaultRetryConfig(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.limiter == nil {
		c.limiter = DefaultRateLimiter()
	}
	if opts.Retry != nil {
		c.retry = *opts.Retry
	}
	if c.logger == nil {
		c.logger = nopLogger{}
	}
	if c.metrics == nil {
		c.metrics = metrics.Global
	}
	return c, nil
}

// URL returns the endpoint the client talks to.
func (c *Client) URL() string {
	return c.url
}

// request represents a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// response represents a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the relayer.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// Call performs a JSON-RPC call, waiting for the endpoint's rate limit and
// retrying transport failures, 429 and 5xx responses.
func (c *Client) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	if params == nil {
		params = []any{}
	}

	start := time.Now()
	result, err := RetryWithConfig(ctx, c.retry, func() (json.RawMessage, error) {
		if err := c.limiter.Wait(ctx, c.url); err != nil {
			return nil, err
		}
		return c.do(ctx, method, params)
	})
	c.metrics.RecordRelayerCall(time.Since(start), err)

	if err != nil {
		c.logger.Error("relayer %s %s failed: %v", c.url, method, err)
		return nil, err
	}
	c.logger.Debug("relayer %s %s ok in %s", c.url, method, time.Since(start))
	return result, nil
}

func (c *Client) do(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	req := request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.idCounter.Add(1),
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, qerr.Wrap(ErrRPCRequest, "marshaling request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, qerr.Wrap(ErrRPCRequest, "creating HTTP request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapRetryable(qerr.Wrap(qerr.ErrNetworkError, "sending HTTP request: %v", err))
	}
	defer func() { _ = httpResp.Body.Close() }()

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, &rateLimitedError{after: ParseRetryAfter(httpResp.Header.Get("Retry-After"))}
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return nil, WrapRetryable(qerr.WithDetails(ErrRPCRequest, map[string]string{
			"status": httpResp.Status,
		}))
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, WrapRetryable(qerr.Wrap(qerr.ErrNetworkError, "reading response body: %v", err))
	}

	var resp response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, qerr.WithDetails(ErrRPCResponse, map[string]string{
			"status": httpResp.Status,
			"reason": err.Error(),
		})
	}

	if resp.Error != nil {
		return nil, resp.Error
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, qerr.WithDetails(ErrRPCResponse, map[string]string{
			"method": method,
			"reason": "empty result",
		})
	}

	return resp.Result, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
