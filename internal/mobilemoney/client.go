// Package mobilemoney talks to a mobile-money collection API: it asks the
// provider to prompt a subscriber for payment and parses the callbacks the
// provider sends back.
package mobilemoney

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Go-ku/landlord-app-sub001/pkg/config"
	"github.com/Go-ku/landlord-app-sub001/prometheus"
	"go.uber.org/zap"
)

// Transaction states reported by the provider.
const (
	StatusPending    = "PENDING"
	StatusSuccessful = "SUCCESSFUL"
	StatusFailed     = "FAILED"
)

// SecretHeader carries the shared secret on provider callbacks.
const SecretHeader = "X-Callback-Secret"

var (
	// ErrUnavailable means the provider could not be reached or failed
	// on its side; the request may be retried.
	ErrUnavailable = errors.New("mobile money provider unavailable")
	// ErrRejected means the provider refused the request as sent.
	ErrRejected = errors.New("mobile money request rejected")
)

// Client represents a client for the provider's collection API
type Client struct {
	BaseURL     string
	APIKey      string
	CallbackURL string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// PaymentRequest asks the provider to collect Amount from Phone.
type PaymentRequest struct {
	Reference   string  `json:"reference"`
	Phone       string  `json:"phone"`
	Amount      float64 `json:"-"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
}

// PaymentResponse is the provider's acknowledgement of a collection request.
type PaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// StatusResponse is the provider's view of a transaction.
type StatusResponse struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// Callback is the body the provider posts when a transaction settles.
type Callback struct {
	Reference         string `json:"reference" validate:"required"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status" validate:"required,oneof=SUCCESSFUL FAILED PENDING"`
	Reason            string `json:"reason"`
}

// Successful reports whether the callback confirms the payment.
func (cb Callback) Successful() bool {
	return strings.EqualFold(cb.Status, StatusSuccessful)
}

// Failed reports whether the callback reports a failed payment.
func (cb Callback) Failed() bool {
	return strings.EqualFold(cb.Status, StatusFailed)
}

// ErrorResponse represents a provider error body
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type wirePaymentRequest struct {
	PaymentRequest
	Amount      string `json:"amount"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// NewClient creates a provider client from the payment configuration
func NewClient(cfg *config.PaymentConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(cfg.ProviderURL, "/"),
		APIKey:      cfg.ProviderAPIKey,
		CallbackURL: cfg.CallbackURL,
		HTTPClient:  &http.Client{Timeout: timeout},
		Logger:      logger,
	}
}

// RequestToPay asks the provider to prompt the subscriber for payment.
// The result is asynchronous: the provider later posts a Callback.
func (c *Client) RequestToPay(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	c.Logger.Info("Requesting mobile money collection",
		zap.String("reference", req.Reference),
		zap.String("currency", req.Currency),
		zap.Float64("amount", req.Amount))

	body, err := json.Marshal(wirePaymentRequest{
		PaymentRequest: req,
		Amount:         strconv.FormatFloat(req.Amount, 'f', 2, 64),
		CallbackURL:    c.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	respBody, err := c.do(ctx, http.MethodPost, "/collections/requesttopay", bytes.NewReader(body))
	if err != nil {
		prometheus.RecordMobileMoneyRequest("request_to_pay", outcome(err))
		return nil, err
	}

	var resp PaymentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.Logger.Error("Failed to parse collection response", zap.Error(err))
		prometheus.RecordMobileMoneyRequest("request_to_pay", "invalid_response")
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}
	if resp.Status == "" {
		resp.Status = StatusPending
	}

	prometheus.RecordMobileMoneyRequest("request_to_pay", "ok")
	c.Logger.Info("Mobile money collection accepted",
		zap.String("reference", req.Reference),
		zap.String("transaction_id", resp.TransactionID))
	return &resp, nil
}

// Status fetches the provider's state for a reference.
func (c *Client) Status(ctx context.Context, reference string) (*StatusResponse, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/collections/requesttopay/"+url.PathEscape(reference), nil)
	if err != nil {
		prometheus.RecordMobileMoneyRequest("status", outcome(err))
		return nil, err
	}

	var resp StatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		prometheus.RecordMobileMoneyRequest("status", "invalid_response")
		return nil, fmt.Errorf("%w: invalid response: %v", ErrUnavailable, err)
	}
	prometheus.RecordMobileMoneyRequest("status", "ok")
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		c.Logger.Error("Failed to create provider request", zap.Error(err))
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Logger.Error("Provider request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.Logger.Error("Failed to read provider response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		c.Logger.Error("Provider returned server error",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Message == "" {
			return nil, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
		}
		c.Logger.Warn("Provider rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("code", errorResp.Code),
			zap.String("message", errorResp.Message))
		return nil, fmt.Errorf("%w: %s", ErrRejected, errorResp.Message)
	}

	return respBody, nil
}

func outcome(err error) string {
	if errors.Is(err, ErrRejected) {
		return "rejected"
	}
	return "unavailable"
}

// ValidSecret compares a callback secret in constant time. An empty
// expected secret rejects every callback.
func ValidSecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
