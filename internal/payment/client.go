package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orchardshop/storefront/internal/config"
)

// Client talks to the payment processor's REST API. Calls cross a network
// boundary; the caller must treat a timeout as "outcome unknown" and defer to
// the next webhook delivery.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new payment processor client
func NewClient(cfg config.PaymentConfig, logger *zap.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// CreateIntent creates a processor-side payment intent tagged with the order
// and user ids so webhook events can be reconciled against the order.
func (c *Client) CreateIntent(ctx context.Context, params CreateIntentParams) (*Intent, error) {
	form := url.Values{}
	form.Set("amount", fmt.Sprintf("%d", params.AmountMinor))
	form.Set("currency", params.Currency)
	form.Set("metadata[order_id]", params.OrderID)
	form.Set("metadata[user_id]", params.UserID)

	var intent Intent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, err
	}

	return &intent, nil
}

// GetIntent retrieves a payment intent by id
func (c *Client) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	var intent Intent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &intent); err != nil {
		return nil, err
	}

	return &intent, nil
}

// Refund issues a full refund against a payment intent. The idempotency key
// makes concurrent duplicates of the same instruction collapse to one
// processor-side refund.
func (c *Client) Refund(ctx context.Context, intentID, idempotencyKey string) (*Refund, error) {
	form := url.Values{}
	form.Set("payment_intent", intentID)

	var refund Refund
	if err := c.doIdempotent(ctx, http.MethodPost, "/v1/refunds", form, idempotencyKey, &refund); err != nil {
		return nil, err
	}

	return &refund, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	return c.doIdempotent(ctx, method, path, form, "", out)
}

func (c *Client) doIdempotent(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Err.Message != "" {
			return fmt.Errorf("payment API error: status %d: %s", resp.StatusCode, apiErr.Err.Message)
		}
		return fmt.Errorf("payment API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

type apiError struct {
	Err struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}
