package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clubcheckin/internal/notify"
)

// Client sends mail through the provider's HTTPS API.
type Client struct {
	BaseURL string
	APIKey  string
	From    string
	HTTP    *http.Client
	Skip    bool
	Log     *slog.Logger
}

// New creates a client with a bounded request timeout. With skip set,
// messages are logged and never leave the process.
func New(baseURL, apiKey, from string, skip bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		From:    from,
		Skip:    skip,
		Log:     logger,
		HTTP: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mailer: provider returned %d: %s", e.Code, e.Body)
}

type attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

type sendRequest struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// Send implements notify.Transport.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	if msg.To == "" {
		return fmt.Errorf("mailer: recipient address required")
	}
	if c.Skip {
		c.Log.Info("mail skipped", "to", msg.To, "subject", msg.Subject, "attachment", msg.Attachment != nil)
		return nil
	}

	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}
	payload := sendRequest{From: c.From, To: []string{to}, Subject: msg.Subject, Text: msg.Body}
	if a := msg.Attachment; a != nil {
		payload.Attachments = []attachment{{
			Filename:    a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Data),
			ContentType: a.ContentType,
		}}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailer: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mailer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("mailer: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
