// Package scheduling is the client for the external scheduling service that
// owns appointment lifecycle. Once an order is created there, that service is
// authoritative for its status; we only hear back through the status webhook.
package scheduling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bookline-ai/bookline/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// ErrUnavailable is returned when the service cannot be reached or answers
// with a server error. Callers treat this as retryable.
var ErrUnavailable = errors.New("scheduling: service unavailable")

// OrderCreator creates scheduling orders. The draft manager depends on this
// interface so tests can fake the downstream.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
}

// CreateOrderRequest carries the submitted draft's fields.
type CreateOrderRequest struct {
	DraftID        string    `json:"draft_id"`
	UserID         string    `json:"user_id"`
	ProfessionalID string    `json:"professional_id"`
	ServiceType    string    `json:"service_type,omitempty"`
	ScheduledFor   time.Time `json:"scheduled_for"`
	Notes          string    `json:"notes,omitempty"`
}

// Order is the scheduling service's record of a created appointment order.
type Order struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// Client calls the scheduling service over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetries sets the retry budget for transient failures.
func WithRetries(max int, delay time.Duration) Option {
	return func(c *Client) {
		if max >= 0 {
			c.maxRetries = max
		}
		if delay > 0 {
			c.retryDelay = delay
		}
	}
}

// NewClient creates a scheduling service client.
func NewClient(baseURL, apiKey string, logger *logging.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrder posts the order. The idempotency key pins retries (ours and
// the service's) to a single order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("scheduling: marshal order: %w", err)
	}

	idempotencyKey := req.DraftID
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
		}

		order, retryable, err := c.createOnce(ctx, body, idempotencyKey)
		if err == nil {
			return order, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("scheduling order attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (c *Client) createOnce(ctx context.Context, body []byte, idempotencyKey string) (*Order, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("scheduling: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, false, fmt.Errorf("scheduling: order rejected: status %d: %s", resp.StatusCode, payload)
	}

	var order Order
	if err := json.Unmarshal(payload, &order); err != nil {
		return nil, false, fmt.Errorf("scheduling: decode order: %w", err)
	}
	if order.ID == "" {
		return nil, false, errors.New("scheduling: order response missing id")
	}
	return &order, false, nil
}
