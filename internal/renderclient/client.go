package renderclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clubcheckin/internal/notify"
)

// maxDocument caps rendered certificate size.
const maxDocument = 10 << 20

// Client calls the certificate rendering microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // PDF rendering can take time
		},
	}
}

// RenderCertificate implements notify.Renderer. In skip mode it returns a
// tiny placeholder document so the pipeline can run without the service.
func (c *Client) RenderCertificate(ctx context.Context, data notify.CertificateData) ([]byte, error) {
	if c.Skip {
		return placeholder(data), nil
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("render: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/certificates", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("render service error %s: %s", resp.Status, string(bodyBytes))
	}
	doc, err := io.ReadAll(io.LimitReader(resp.Body, maxDocument+1))
	if err != nil {
		return nil, fmt.Errorf("render: read document: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("render service returned an empty document")
	}
	if len(doc) > maxDocument {
		return nil, fmt.Errorf("render service document exceeds %d bytes", maxDocument)
	}
	return doc, nil
}

// Health checks if the render service is reachable.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("render service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render service unhealthy: %s", resp.Status)
	}
	return nil
}

func placeholder(d notify.CertificateData) []byte {
	return []byte(fmt.Sprintf("%%PDF-1.4\n%% placeholder certificate\n%% %s (%s) - %s - %s\n%%%%EOF\n",
		d.StudentName, d.RollNumber, d.EventTitle, d.Title))
}
