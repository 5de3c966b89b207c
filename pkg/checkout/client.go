// Package checkout requests hosted checkout sessions from the checkout
// endpoint.
package checkout

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
)

const (
	ModePayment      = "payment"
	ModeSubscription = "subscription"
)

var ErrMissingToken = errors.New("checkout requires an authenticated session")

// Params is the request body of the checkout endpoint.
type Params struct {
	PriceID    string `json:"price_id"`
	Mode       string `json:"mode"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// Session is the endpoint's answer. URL is the hosted payment page.
type Session struct {
	URL string `json:"url"`
}

// Error is returned for any non-2xx answer. Its message is the response
// body text.
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return e.Body
}

// Client posts to the checkout endpoint with the caller's bearer token.
type Client struct {
	client      *http.Client
	endpointURL string
}

// NewClient creates a client for endpointURL. A zero timeout means 15s.
func NewClient(endpointURL string, timeout time.Duration) (*Client, error) {
	if endpointURL == "" {
		return nil, fmt.Errorf("checkout endpoint URL is required")
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:      &http.Client{Timeout: timeout},
		endpointURL: endpointURL,
	}, nil
}

// CreateSession asks the endpoint for a hosted checkout session.
func (c *Client) CreateSession(ctx context.Context, bearer string, params Params) (*Session, error) {
	if bearer == "" {
		return nil, ErrMissingToken
	}

	jsonData, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send checkout request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return nil, fmt.Errorf("checkout endpoint returned no url")
	}

	return &session, nil
}
