// Package directory reads reference data from the booking domain: the
// professionals available for booking and the service configurations they
// offer. Both collections ground the NLU engine's suggestions.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bookline-ai/bookline/pkg/logging"
)

// Professional is a bookable provider.
type Professional struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Specialty   string   `json:"specialty"`
	Email       string   `json:"email,omitempty"`
	ServiceIDs  []string `json:"service_ids,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ServiceConfig describes one bookable service/domain configuration.
type ServiceConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
}

// Reader provides the two read-only reference collections. The orchestrator
// tolerates empty results; it never fails a turn over missing reference data.
type Reader interface {
	Professionals(ctx context.Context) ([]Professional, error)
	Services(ctx context.Context) ([]ServiceConfig, error)
}

// Client fetches reference data over HTTP with a short-lived cache so a
// burst of turns does not hammer the directory API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	cacheTTL   time.Duration

	mu              sync.Mutex
	professionals   []Professional
	professionalsAt time.Time
	services        []ServiceConfig
	servicesAt      time.Time
}

// NewClient creates a directory client. cacheTTL <= 0 disables caching.
func NewClient(baseURL, apiKey string, timeout, cacheTTL time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		cacheTTL:   cacheTTL,
	}
}

// Professionals returns the available professionals.
func (c *Client) Professionals(ctx context.Context) ([]Professional, error) {
	c.mu.Lock()
	if c.cacheTTL > 0 && time.Since(c.professionalsAt) < c.cacheTTL && c.professionals != nil {
		cached := c.professionals
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var out []Professional
	if err := c.getJSON(ctx, "/v1/professionals", &out); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.professionals = out
	c.professionalsAt = time.Now()
	c.mu.Unlock()
	return out, nil
}

// Services returns the available service configurations.
func (c *Client) Services(ctx context.Context) ([]ServiceConfig, error) {
	c.mu.Lock()
	if c.cacheTTL > 0 && time.Since(c.servicesAt) < c.cacheTTL && c.services != nil {
		cached := c.services
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var out []ServiceConfig
	if err := c.getJSON(ctx, "/v1/services", &out); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.services = out
	c.servicesAt = time.Now()
	c.mu.Unlock()
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("directory: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("directory: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory: %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("directory: %s: decode: %w", path, err)
	}
	return nil
}
