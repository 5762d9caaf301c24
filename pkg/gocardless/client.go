package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	liveBaseURL          = "https://api.gocardless.com"
	sandboxBaseURL       = "https://api-sandbox.gocardless.com"
	apiVersion           = "2015-07-06"
	errorBodyReadLimit   = 4096
	defaultClientTimeout = 15 * time.Second
)

var errAccessTokenRequired = errors.New("gocardless access token is required")

// APIError is a non-2xx response from the GoCardless API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gocardless: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a GoCardless 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsValidationFailed reports whether err is a GoCardless 422 response.
func IsValidationFailed(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity
}

// Client is a thin wrapper over the GoCardless REST API covering the
// customer, mandate, subscription, payment and redirect-flow resources.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithSandbox points the client at the sandbox environment.
func WithSandbox(sandbox bool) Option {
	return func(c *Client) {
		if sandbox {
			c.baseURL = sandboxBaseURL
		}
	}
}

// NewClient builds a GoCardless client for the given access token.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(accessToken)
	if trimmed == "" {
		return nil, errAccessTokenRequired
	}

	client := &Client{
		accessToken: trimmed,
		baseURL:     liveBaseURL,
		httpClient:  &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// GetCustomer fetches a customer by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var envelope struct {
		Customers Customer `json:"customers"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Customers, nil
}

// DeleteCustomer removes a customer and all of its attached resources.
func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/customers/"+url.PathEscape(id), nil, nil)
}

// GetMandate fetches a mandate by id.
func (c *Client) GetMandate(ctx context.Context, id string) (*Mandate, error) {
	var envelope struct {
		Mandates Mandate `json:"mandates"`
	}
	if err := c.do(ctx, http.MethodGet, "/mandates/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Mandates, nil
}

// CancelMandate cancels a mandate, stopping all future charges against it.
func (c *Client) CancelMandate(ctx context.Context, id string) error {
	path := "/mandates/" + url.PathEscape(id) + "/actions/cancel"
	return c.do(ctx, http.MethodPost, path, map[string]any{"data": struct{}{}}, nil)
}

// GetSubscription fetches a subscription, including its upcoming payments.
func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var envelope struct {
		Subscriptions Subscription `json:"subscriptions"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Subscriptions, nil
}

// CreateSubscription starts a recurring billing plan against a mandate.
func (c *Client) CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error) {
	var envelope struct {
		Subscriptions Subscription `json:"subscriptions"`
	}
	body := map[string]any{"subscriptions": params}
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Subscriptions, nil
}

// UpdateSubscription amends an existing subscription in place.
func (c *Client) UpdateSubscription(ctx context.Context, id string, params SubscriptionUpdateParams) (*Subscription, error) {
	var envelope struct {
		Subscriptions Subscription `json:"subscriptions"`
	}
	body := map[string]any{"subscriptions": params}
	if err := c.do(ctx, http.MethodPut, "/subscriptions/"+url.PathEscape(id), body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Subscriptions, nil
}

// CancelSubscription stops a subscription; already-submitted charges still complete.
func (c *Client) CancelSubscription(ctx context.Context, id string) error {
	path := "/subscriptions/" + url.PathEscape(id) + "/actions/cancel"
	return c.do(ctx, http.MethodPost, path, map[string]any{"data": struct{}{}}, nil)
}

// GetPayment fetches a payment by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	var envelope struct {
		Payments Payment `json:"payments"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Payments, nil
}

// CreatePayment collects a one-off charge against a mandate.
func (c *Client) CreatePayment(ctx context.Context, params PaymentParams) (*Payment, error) {
	var envelope struct {
		Payments Payment `json:"payments"`
	}
	body := map[string]any{"payments": params}
	if err := c.do(ctx, http.MethodPost, "/payments", body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Payments, nil
}

// GetRefund fetches a refund by id.
func (c *Client) GetRefund(ctx context.Context, id string) (*Refund, error) {
	var envelope struct {
		Refunds Refund `json:"refunds"`
	}
	if err := c.do(ctx, http.MethodGet, "/refunds/"+url.PathEscape(id), nil, &envelope); err != nil {
		return nil, err
	}
	return &envelope.Refunds, nil
}

// CreateRedirectFlow starts the hosted mandate-authorization handshake.
func (c *Client) CreateRedirectFlow(ctx context.Context, params RedirectFlowParams) (*RedirectFlow, error) {
	var envelope struct {
		RedirectFlows RedirectFlow `json:"redirect_flows"`
	}
	body := map[string]any{"redirect_flows": params}
	if err := c.do(ctx, http.MethodPost, "/redirect_flows", body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.RedirectFlows, nil
}

// CompleteRedirectFlow finishes the handshake and yields customer + mandate ids.
func (c *Client) CompleteRedirectFlow(ctx context.Context, id, sessionToken string) (*RedirectFlow, error) {
	var envelope struct {
		RedirectFlows RedirectFlow `json:"redirect_flows"`
	}
	path := "/redirect_flows/" + url.PathEscape(id) + "/actions/complete"
	body := map[string]any{"data": map[string]string{"session_token": sessionToken}}
	if err := c.do(ctx, http.MethodPost, path, body, &envelope); err != nil {
		return nil, err
	}
	return &envelope.RedirectFlows, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil {
		return errors.New("gocardless client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("GoCardless-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
