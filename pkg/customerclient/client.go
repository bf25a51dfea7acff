/**
 * @description
 * Client for communicating with the customer-service. The transfer and account
 * services only need a narrow slice of it: existence checks and display names.
 */
package customerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the customer service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new customer service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Customer is the subset of the customer record the callers need.
type Customer struct {
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
}

// Exists reports whether the given customer id is registered.
func (c *Client) Exists(ctx context.Context, customerID string) (bool, error) {
	if c.baseURL == "" {
		return false, fmt.Errorf("customer service base url is empty")
	}

	url := fmt.Sprintf("%s/customers/%s/exists", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to execute request to customer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return false, fmt.Errorf("customer service returned error status %d", resp.StatusCode)
	}

	var exists bool
	if err := json.NewDecoder(resp.Body).Decode(&exists); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return exists, nil
}

// GetCustomer retrieves a customer's public profile.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("customer service base url is empty")
	}

	url := fmt.Sprintf("%s/customers/%s", c.baseURL, customerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to customer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("customer service returned error status %d", resp.StatusCode)
	}

	var customer Customer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &customer, nil
}
