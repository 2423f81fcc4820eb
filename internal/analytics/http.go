// ABOUTME: HTTP sender posting analytics events to a capture endpoint
// ABOUTME: One POST per event with the project api key in the body

package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPSender posts events to {host}/capture/.
type HTTPSender struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewHTTPSender creates a sender. A nil client uses http.DefaultClient.
func NewHTTPSender(host, apiKey string, client *http.Client) *HTTPSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSender{
		endpoint: strings.TrimRight(host, "/") + "/capture/",
		apiKey:   apiKey,
		http:     client,
	}
}

type capturePayload struct {
	APIKey string `json:"api_key"`
	Event
}

// Send posts ev.
func (s *HTTPSender) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(capturePayload{APIKey: s.apiKey, Event: ev})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("building capture request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting %s: %w", ev.Name, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 300 {
		return fmt.Errorf("posting %s: capture returned %d", ev.Name, resp.StatusCode)
	}
	return nil
}
