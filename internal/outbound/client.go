package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CalendarClient is the outbound calendar integration. CreateEvent returns
// the provider-assigned event id.
type CalendarClient interface {
	CreateEvent(ctx context.Context, ev CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, ev CalendarEvent) error
}

// MailClient is the outbound mail integration.
type MailClient interface {
	SaveDraft(ctx context.Context, msg MailMessage) error
	Send(ctx context.Context, msg MailMessage) error
}

// HTTPClient posts JSON commands to the configured provider endpoints. It is
// constructed once at startup and handed to the outbox worker.
type HTTPClient struct {
	calendarURL string
	mailURL     string
	httpClient  *http.Client
}

func NewHTTPClient(calendarURL, mailURL string) *HTTPClient {
	return &HTTPClient{
		calendarURL: calendarURL,
		mailURL:     mailURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *HTTPClient) CreateEvent(ctx context.Context, ev CalendarEvent) (string, error) {
	body, err := c.post(ctx, c.calendarURL+"/events", ev)
	if err != nil {
		return "", err
	}

	var resp struct {
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode create event response: %w", err)
	}
	if resp.EventID == "" {
		return "", fmt.Errorf("calendar returned no event id")
	}
	return resp.EventID, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, ev CalendarEvent) error {
	_, err := c.post(ctx, c.calendarURL+"/events/"+ev.EventID, ev)
	return err
}

func (c *HTTPClient) SaveDraft(ctx context.Context, msg MailMessage) error {
	_, err := c.post(ctx, c.mailURL+"/drafts", msg)
	return err
}

func (c *HTTPClient) Send(ctx context.Context, msg MailMessage) error {
	_, err := c.post(ctx, c.mailURL+"/messages", msg)
	return err
}

func (c *HTTPClient) post(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("post %s: status %d: %s", url, resp.StatusCode, string(body))
	}

	return body, nil
}
