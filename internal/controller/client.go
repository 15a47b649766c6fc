// Package controller is the HTTP client for the remote search controller.
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sweetwork/svc-scheduler/internal/scheduler"
)

// Config controls the controller connection.
type Config struct {
	Host       string // scheme://host:port
	Passphrase string
	Timeout    time.Duration
}

// Client implements scheduler.Searcher. The bearer token obtained by Auth is
// cached; when a search call comes back unauthorized the client
// re-authenticates and retries exactly once, and a second failure
// propagates to the caller.
type Client struct {
	host       string
	passphrase string
	httpClient *http.Client

	mu          sync.Mutex
	token       string
	serviceName string
}

// New constructs a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("controller host is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		host:       cfg.Host,
		passphrase: cfg.Passphrase,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type authRequest struct {
	ServiceName string `json:"service_name"`
	Passphrase  string `json:"passphrase"`
}

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Error   string `json:"error"`
}

// Auth exchanges the shared passphrase for a bearer token and caches it.
func (c *Client) Auth(ctx context.Context, serviceName string) error {
	if serviceName == "" {
		return fmt.Errorf("service name is required")
	}
	body, err := json.Marshal(authRequest{ServiceName: serviceName, Passphrase: c.passphrase})
	if err != nil {
		return fmt.Errorf("marshal auth request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/auth", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !out.Success {
		return fmt.Errorf("auth rejected for %s: %s", serviceName, out.Error)
	}

	c.mu.Lock()
	c.token = out.Token
	c.serviceName = serviceName
	c.mu.Unlock()
	return nil
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Search posts the feed query to the controller. An unauthorized response
// triggers one transparent re-auth and retry.
func (c *Client) Search(ctx context.Context, query scheduler.SearchQuery) error {
	unauthorized, err := c.search(ctx, query)
	if err == nil {
		return nil
	}
	if !unauthorized {
		return err
	}
	c.mu.Lock()
	service := c.serviceName
	c.mu.Unlock()
	if service == "" {
		return err
	}
	if authErr := c.Auth(ctx, service); authErr != nil {
		return fmt.Errorf("re-auth after rejected search: %w", authErr)
	}
	if _, err := c.search(ctx, query); err != nil {
		return err
	}
	return nil
}

func (c *Client) search(ctx context.Context, query scheduler.SearchQuery) (unauthorized bool, err error) {
	body, err := json.Marshal(query)
	if err != nil {
		return false, fmt.Errorf("marshal search query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true, fmt.Errorf("search unauthorized: status %d", resp.StatusCode)
	}
	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("decode search response: %w", err)
	}
	if !out.Success {
		return false, fmt.Errorf("search failed: %s", out.Error)
	}
	return false, nil
}
