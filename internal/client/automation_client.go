package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// AutomationClient forwards lifecycle events to an external automation
// webhook (CRM flows, marketing sequences). The destination is outside
// the provisioning path, so calls are fire-and-forget: failures are
// logged at warning level and never returned to the caller.
type AutomationClient struct {
	webhookURL string
	apiKey     string
	httpClient *http.Client
}

func NewAutomationClient(webhookURL, apiKey string) *AutomationClient {
	return &AutomationClient{
		webhookURL: webhookURL,
		apiKey:     apiKey,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Emit posts {"event": ..., fields...} to the webhook. A disabled
// client (empty URL) is a no-op so callers never need to branch.
func (c *AutomationClient) Emit(ctx context.Context, event string, fields map[string]any) {
	if c.webhookURL == "" {
		return
	}

	payload := map[string]any{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[automation] Marshal %s event failed: %v", event, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("[automation] Build %s request failed: %v", event, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[automation] Send %s event failed: %v", event, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Printf("[automation] Webhook rejected %s event with status %d", event, resp.StatusCode)
	}
}
