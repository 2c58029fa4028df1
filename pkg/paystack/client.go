package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

const (
	defaultBaseURL             = "https://api.paystack.co"
	defaultTimeout             = 10 * time.Second
	responseBodyReadLimit int64 = 1024

	// StatusSuccess is the transaction status Paystack reports for a settled charge.
	StatusSuccess = "success"
)

var errSecretKeyRequired = errors.New("paystack secret key is required")

// Client calls the Paystack transaction API with a secret key.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretKey  string
	timeout    time.Duration
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

// WithBaseURL overrides the Paystack API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every verification call. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds the Paystack client given a secret key.
func NewClient(secretKey string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(secretKey)
	if trimmed == "" {
		return nil, errSecretKeyRequired
	}

	client := &Client{
		secretKey:  trimmed,
		baseURL:    defaultBaseURL,
		timeout:    defaultTimeout,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.timeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	return client, nil
}

// Verification is the normalized result of GET /transaction/verify/{reference}.
type Verification struct {
	Status          bool
	Message         string
	TransactionID   int64
	TxStatus        string
	Reference       string
	AmountMinor     int64
	Currency        string
	Channel         string
	GatewayResponse string
	CustomerEmail   string
	PaidAt          *time.Time
}

// Successful reports whether Paystack accepted the request and the
// transaction itself settled.
func (v *Verification) Successful() bool {
	return v != nil && v.Status && v.TxStatus == StatusSuccess
}

type verifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    *struct {
		ID              int64   `json:"id"`
		Status          string  `json:"status"`
		Reference       string  `json:"reference"`
		Amount          int64   `json:"amount"`
		Currency        string  `json:"currency"`
		Channel         string  `json:"channel"`
		GatewayResponse string  `json:"gateway_response"`
		PaidAt          *string `json:"paid_at"`
		Customer        *struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// VerifyTransaction asks Paystack for the authoritative state of a transaction.
// Transport failures, timeouts and non-200 answers are dependency errors; the
// caller decides what a non-successful Verification means.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (*Verification, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "paystack client not configured")
	}
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction reference is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/transaction/verify/%s", strings.TrimRight(c.baseURL, "/"), url.PathEscape(trimmed))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build verify request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute verify request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		if unknown := unknownReference(resp.StatusCode, msg); unknown != nil {
			return unknown, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "verify request failed")
	}

	var apiResp verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode verify response")
	}

	out := &Verification{Status: apiResp.Status, Message: apiResp.Message}
	if apiResp.Data == nil {
		return out, nil
	}
	out.TransactionID = apiResp.Data.ID
	out.TxStatus = apiResp.Data.Status
	out.Reference = apiResp.Data.Reference
	out.AmountMinor = apiResp.Data.Amount
	out.Currency = apiResp.Data.Currency
	out.Channel = apiResp.Data.Channel
	out.GatewayResponse = apiResp.Data.GatewayResponse
	if apiResp.Data.Customer != nil {
		out.CustomerEmail = apiResp.Data.Customer.Email
	}
	if apiResp.Data.PaidAt != nil {
		if paidAt, err := time.Parse(time.RFC3339, *apiResp.Data.PaidAt); err == nil {
			out.PaidAt = &paidAt
		}
	}
	return out, nil
}

// unknownReference maps Paystack's "reference not found" answer to an
// unsuccessful Verification. A checkout whose popup never opened has no transaction.
func unknownReference(status int, body []byte) *Verification {
	if status != http.StatusBadRequest && status != http.StatusNotFound {
		return nil
	}
	var apiResp verifyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil || apiResp.Status {
		return nil
	}
	if !strings.Contains(strings.ToLower(apiResp.Message), "not found") {
		return nil
	}
	return &Verification{Status: false, Message: apiResp.Message}
}
