package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"

	"github.com/Klingon-tech/embarcadero/internal/swap"
	"github.com/Klingon-tech/embarcadero/pkg/logging"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4096

// Config holds configuration for the Client.
type Config struct {
	// URL is the service base URL, e.g. http://localhost:8080.
	URL string

	// Timeout bounds every request. Default 30s.
	Timeout time.Duration

	// RateLimit is the maximum requests per second; 0 disables limiting.
	RateLimit int

	// MinRequests and FailureRatio decide when the breaker opens.
	MinRequests  uint32
	FailureRatio float64

	// OpenTimeout is how long the breaker stays open. Default 30s.
	OpenTimeout time.Duration

	Recorder Recorder // optional
	Logger   *logging.Logger
}

// Client talks to the swap service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    ratelimit.Limiter
	recorder   Recorder
	log        *logging.Logger
}

// NewClient creates a new swap service client.
func NewClient(cfg *Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = logging.GetDefault().Component("backend")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	limiter := ratelimit.NewUnlimited()
	if cfg.RateLimit > 0 {
		limiter = ratelimit.New(cfg.RateLimit)
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:  limiter,
		recorder: cfg.Recorder,
		log:      log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "swap-service",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		IsSuccessful: isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				log.Warn("Swap service seems down, pausing requests")
			}
			if from == gobreaker.StateOpen && to == gobreaker.StateHalfOpen {
				log.Info("Checking swap service")
			}
			if from == gobreaker.StateHalfOpen && to == gobreaker.StateClosed {
				log.Info("Swap service is back")
			}
		},
	})
	return c
}

// Summarize returns the ID and summary of txn.
func (c *Client) Summarize(ctx context.Context, txn *swap.Transaction) (*swap.SummarizeResult, error) {
	var resp summarizeResponse
	if err := c.do(ctx, OpSummarize, http.MethodPost, "/api/summarize", &summarizeRequest{Swap: txn}, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrEmptyResponse)
	}
	return &swap.SummarizeResult{ID: resp.ID, Summary: resp.Summary}, nil
}

// Sign adds the service wallet's signatures for step.
func (c *Client) Sign(ctx context.Context, step swap.Step, txn *swap.Transaction) (*swap.Transaction, error) {
	if !step.Valid() {
		return nil, fmt.Errorf("%w: %q", swap.ErrInvalidStep, step)
	}
	var resp signResponse
	if err := c.do(ctx, string(step), http.MethodPost, "/api/"+string(step), &signRequest{Swap: txn}, &resp); err != nil {
		return nil, err
	}
	if resp.Swap == nil {
		return nil, fmt.Errorf("%w: missing swap", ErrEmptyResponse)
	}
	return resp.Swap, nil
}

// Create builds a new swap offering offer for receive, e.g. "100SC", "1SF".
func (c *Client) Create(ctx context.Context, offer, receive string) (*swap.Transaction, error) {
	var resp createResponse
	if err := c.do(ctx, OpCreate, http.MethodPost, "/api/create", &createRequest{Offer: offer, Receive: receive}, &resp); err != nil {
		return nil, err
	}
	txn := resp.Swap
	if txn == nil {
		txn = resp.Transaction
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: missing transaction", ErrEmptyResponse)
	}
	return txn, nil
}

// Consensus returns the sync state of the service's node.
func (c *Client) Consensus(ctx context.Context) (*Consensus, error) {
	var resp Consensus
	if err := c.do(ctx, OpConsensus, http.MethodGet, "/api/consensus", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BreakerState returns the circuit breaker state, e.g. "closed".
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

func (c *Client) do(ctx context.Context, op, method, path string, body, result interface{}) error {
	start := time.Now()
	c.limiter.Take()

	// Take ignores ctx. A caller cancelled while queued never reaches the
	// remote or the breaker.
	err := ctx.Err()
	if err == nil {
		_, err = c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, method, path, body, result)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if c.recorder != nil {
		c.recorder.ObserveRemoteCall(op, time.Since(start), err)
	}
	if err != nil {
		c.log.Debug("Request failed", "op", op, "error", err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body, result interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// isSuccessful keeps rejected requests and caller cancellation from
// counting against the service's health.
func isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code < 500
	}
	return false
}

// Ensure Client implements swap.Remote
var _ swap.Remote = (*Client)(nil)
