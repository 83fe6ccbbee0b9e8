// Package payment is a thin client for a hosted-checkout payment gateway.
// The service creates a checkout preference for an order and redirects the
// buyer to the returned init point; the gateway later reports the outcome
// through the return URL and webhooks handled elsewhere.
package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds gateway connection details. Credentials come from the
// application configuration, never from env lookups inside this package.
type Config struct {
	BaseURL     string
	AccessToken string
	// Sandbox selects the sandbox init point returned by the gateway.
	Sandbox bool
	Timeout time.Duration
}

// Client talks to the gateway's REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new gateway client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PreferenceItem is one purchasable line sent to the gateway. UnitPrice is a
// major-unit decimal number, as the gateway API requires.
type PreferenceItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// BackURLs are where the gateway sends the buyer after the payment attempt.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceRequest is the payload for creating a checkout preference.
// ExternalReference carries the internal order ID through the gateway
// round-trip so the return callback can be matched back to the order.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference"`
	BackURLs          BackURLs         `json:"back_urls"`
	NotificationURL   string           `json:"notification_url,omitempty"`
}

// Preference is the gateway's response: a session identifier plus the
// redirect targets for production and sandbox.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// RedirectURL picks the init point matching the configured environment.
func (c *Client) RedirectURL(p *Preference) string {
	if c.cfg.Sandbox && p.SandboxInitPoint != "" {
		return p.SandboxInitPoint
	}
	return p.InitPoint
}

// CreatePreference registers a checkout preference with the gateway and
// returns its identifier and redirect targets.
func (c *Client) CreatePreference(req PreferenceRequest) (*Preference, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal preference request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/checkout/preferences", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build preference request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway rejected preference (status %d): %s", resp.StatusCode, respBody)
	}

	var pref Preference
	if err := json.Unmarshal(respBody, &pref); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if pref.ID == "" {
		return nil, fmt.Errorf("gateway returned a preference without an ID")
	}
	return &pref, nil
}
