// internal/webhook/webhook.go
package webhook

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"xpstore/internal/logger"
)

// maxResponseBytes caps how much of a webhook response is read.
const maxResponseBytes = 1 << 20

// PurchaseIntent is the body posted to the purchase webhook.
type PurchaseIntent struct {
	UserID      int64  `json:"tgid"`
	OfferingID  int64  `json:"product_id"`
	DisplayName string `json:"first_name"`
	Handle      string `json:"username"`
}

// Response is the body the webhook answers with.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RejectedError means the webhook answered but reported failure.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "purchase rejected by webhook"
	}
	return "purchase rejected by webhook: " + e.Message
}

// TransportError covers network failures, timeouts and non-2xx statuses.
// Message holds the "error" field of the response body, when there was one.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	default:
		return fmt.Sprintf("webhook request failed: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the request gave up waiting for the webhook.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Client posts purchase intents to a single endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for endpoint whose requests give up after timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
	}
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Submit sends intent and returns nil when the webhook accepted it,
// *RejectedError when it answered with success=false, and *TransportError
// for everything else.
func (c *Client) Submit(ctx context.Context, intent PurchaseIntent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encoding purchase intent: %w", err)
	}

	logger.LogInfo("Submitting purchase intent %s to %s", body, c.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("reading webhook response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.LogError("Webhook error (HTTP %d): %s", resp.StatusCode, string(raw))
		var payload Response
		// The error body is optional and may not be JSON at all.
		_ = json.Unmarshal(raw, &payload)
		return &TransportError{StatusCode: resp.StatusCode, Message: payload.Error}
	}

	logger.LogInfo("Webhook response: %s", string(raw))

	var result Response
	if err := json.Unmarshal(raw, &result); err != nil {
		// A 2xx answer without a readable success flag is not a success.
		logger.LogWarn("Unreadable webhook response: %v", err)
		return &RejectedError{}
	}
	if !result.Success {
		return &RejectedError{Message: result.Error}
	}
	return nil
}
