package external

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"coachbook/internal/apperr"
)

// PaymentClient talks to the escrow-style payment provider. The provider is
// treated as an idempotent remote ledger: a local success never implies
// provider-side finality until the corresponding webhook is reconciled.
type PaymentClient struct {
	baseURL    string
	merchantID string
	secret     string
	httpClient *http.Client
}

type PaymentConfig struct {
	BaseURL    string
	MerchantID string
	Secret     string
	Timeout    time.Duration
}

// Intent statuses reported by the provider.
const (
	IntentRequiresPaymentMethod = "requires_payment_method"
	IntentRequiresCapture       = "requires_capture"
	IntentSucceeded             = "succeeded"
	IntentCanceled              = "canceled"
)

type IntentStatus struct {
	Ref         string `json:"intentRef"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
}

type TransferRequest struct {
	AmountCents    int64             `json:"amount"`
	Destination    string            `json:"destination"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type transferResponse struct {
	Success     bool   `json:"success"`
	TransferRef string `json:"transferRef"`
	Retryable   bool   `json:"retryable"`
	Message     string `json:"message"`
}

type intentActionRequest struct {
	MerchantID string `json:"merchantId"`
	Token      string `json:"token"`
	IntentRef  string `json:"intentRef"`
	Amount     int64  `json:"amount,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

type intentActionResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Retryable bool   `json:"retryable"`
	Message   string `json:"message"`
}

func NewPaymentClient(cfg PaymentConfig) *PaymentClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &PaymentClient{
		baseURL:    cfg.BaseURL,
		merchantID: cfg.MerchantID,
		secret:     cfg.Secret,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// generateToken signs a request by concatenating the sorted parameter values
// plus the merchant credentials and hashing with SHA-256.
func (pc *PaymentClient) generateToken(params map[string]string) string {
	params["MerchantId"] = pc.merchantID
	params["Secret"] = pc.secret

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var tokenString string
	for _, key := range keys {
		tokenString += params[key]
	}

	hash := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(hash[:])
}

func (pc *PaymentClient) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pc.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return apperr.Provider(path, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return apperr.Provider(path, true, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return apperr.Provider(path, false, fmt.Errorf("status %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// CheckIntent fetches the current state of a payment intent.
func (pc *PaymentClient) CheckIntent(ctx context.Context, intentRef string) (*IntentStatus, error) {
	token := pc.generateToken(map[string]string{"IntentRef": intentRef})

	req := intentActionRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		IntentRef:  intentRef,
	}

	var result struct {
		Success bool         `json:"success"`
		Intent  IntentStatus `json:"intent"`
	}
	if err := pc.post(ctx, "/intents/check", req, &result); err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, apperr.Provider("intents/check", false, fmt.Errorf("provider rejected check"))
	}

	return &result.Intent, nil
}

// Capture settles a held authorization for the given amount.
func (pc *PaymentClient) Capture(ctx context.Context, intentRef string, amountCents int64) error {
	token := pc.generateToken(map[string]string{
		"Amount":    strconv.FormatInt(amountCents, 10),
		"IntentRef": intentRef,
	})

	req := intentActionRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		IntentRef:  intentRef,
		Amount:     amountCents,
	}

	var result intentActionResponse
	if err := pc.post(ctx, "/intents/capture", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return apperr.Provider("intents/capture", result.Retryable, fmt.Errorf("%s", result.Message))
	}
	return nil
}

// Refund returns captured funds to the payer in full.
func (pc *PaymentClient) Refund(ctx context.Context, intentRef string) error {
	token := pc.generateToken(map[string]string{"IntentRef": intentRef})

	req := intentActionRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		IntentRef:  intentRef,
	}

	var result intentActionResponse
	if err := pc.post(ctx, "/intents/refund", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return apperr.Provider("intents/refund", result.Retryable, fmt.Errorf("%s", result.Message))
	}
	return nil
}

// Void cancels a held authorization before any funds moved.
func (pc *PaymentClient) Void(ctx context.Context, intentRef string, reason string) error {
	token := pc.generateToken(map[string]string{"IntentRef": intentRef})

	req := intentActionRequest{
		MerchantID: pc.merchantID,
		Token:      token,
		IntentRef:  intentRef,
		Reason:     reason,
	}

	var result intentActionResponse
	if err := pc.post(ctx, "/intents/void", req, &result); err != nil {
		return err
	}
	if !result.Success {
		return apperr.Provider("intents/void", result.Retryable, fmt.Errorf("%s", result.Message))
	}
	return nil
}

// CreateTransfer moves funds from the platform balance to a coach payout
// destination. The idempotency key makes provider-side retries safe.
func (pc *PaymentClient) CreateTransfer(ctx context.Context, treq TransferRequest) (string, error) {
	token := pc.generateToken(map[string]string{
		"Amount":         strconv.FormatInt(treq.AmountCents, 10),
		"Destination":    treq.Destination,
		"IdempotencyKey": treq.IdempotencyKey,
	})

	body := struct {
		MerchantID string `json:"merchantId"`
		Token      string `json:"token"`
		TransferRequest
	}{
		MerchantID:      pc.merchantID,
		Token:           token,
		TransferRequest: treq,
	}

	var result transferResponse
	if err := pc.post(ctx, "/transfers", body, &result); err != nil {
		return "", err
	}
	if !result.Success {
		return "", apperr.Provider("transfers", result.Retryable, fmt.Errorf("%s", result.Message))
	}

	return result.TransferRef, nil
}
