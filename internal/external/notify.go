package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NotifyClient delivers transactional email through the notification service.
// It is a fire-and-forget sink: callers log failures and move on, a committed
// state transition is never rolled back because an email did not go out.
type NotifyClient struct {
	baseURL    string
	from       string
	httpClient *http.Client
}

type NotifyConfig struct {
	BaseURL string
	From    string
	Timeout time.Duration
}

type sendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

func NewNotifyClient(cfg NotifyConfig) *NotifyClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &NotifyClient{
		baseURL: cfg.BaseURL,
		from:    cfg.From,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (nc *NotifyClient) Send(ctx context.Context, to, subject, html, text string) error {
	reqBody := sendRequest{
		From:    nc.from,
		To:      to,
		Subject: subject,
		HTML:    html,
		Text:    text,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nc.baseURL+"/api/v1/send", bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := nc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}
