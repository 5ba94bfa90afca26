// Package yookassa is a minimal YooKassa REST client covering payment creation and lookup.
package yookassa

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

	"github.com/imrishuroy/go-funnel-bot/internal/payments"
)

const (
	DefaultBaseURL = "https://api.yookassa.ru/v3"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4096
)

// Client implements payments.Processor against the YooKassa API.
type Client struct {
	shopID    string
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewClient creates a client. Empty credentials are allowed; every call then fails with
// payments.ErrNotConfigured.
func NewClient(shopID, secretKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		shopID:    shopID,
		secretKey: secretKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
	}
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createRequest struct {
	Amount       amount            `json:"amount"`
	Capture      bool              `json:"capture"`
	Confirmation confirmation      `json:"confirmation"`
	Description  string            `json:"description,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Confirmation *confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type apiError struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

// Create submits a new payment.
func (c *Client) Create(ctx context.Context, req payments.CreateRequest) (*payments.Intent, error) {
	if !c.configured() {
		return nil, payments.ErrNotConfigured
	}
	body, err := json.Marshal(createRequest{
		Amount:  amount{Value: req.Amount, Currency: req.Currency},
		Capture: req.Capture,
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: req.ReturnURL,
		},
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build create request: %w", err)
	}
	if req.IdempotenceKey != "" {
		httpReq.Header.Set("Idempotence-Key", req.IdempotenceKey)
	}

	var resp paymentResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	return resp.intent(), nil
}

// Find fetches a payment by id.
func (c *Client) Find(ctx context.Context, reference string) (*payments.Intent, error) {
	if !c.configured() {
		return nil, payments.ErrNotConfigured
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+url.PathEscape(reference), nil)
	if err != nil {
		return nil, fmt.Errorf("build find request: %w", err)
	}

	var resp paymentResponse
	if err := c.do(httpReq, &resp); err != nil {
		return nil, fmt.Errorf("find payment %s: %w", reference, err)
	}
	return resp.intent(), nil
}

func (c *Client) configured() bool {
	return c.shopID != "" && c.secretKey != ""
}

func (c *Client) do(req *http.Request, out any) error {
	req.SetBasicAuth(c.shopID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var apiErr apiError
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Description != "" {
			return fmt.Errorf("status %d: %s (%s)", resp.StatusCode, apiErr.Description, apiErr.Code)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (r paymentResponse) intent() *payments.Intent {
	intent := &payments.Intent{
		Reference: r.ID,
		Status:    payments.Status(r.Status),
		Metadata:  r.Metadata,
	}
	if r.Confirmation != nil {
		intent.ConfirmationURL = r.Confirmation.ConfirmationURL
	}
	// Unknown statuses are treated as still pending.
	switch intent.Status {
	case payments.StatusPending, payments.StatusWaitingForCapture, payments.StatusSucceeded, payments.StatusCanceled:
	default:
		intent.Status = payments.StatusPending
	}
	return intent
}
