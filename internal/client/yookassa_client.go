package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PaymentState is the provider-independent view of a payment session.
type PaymentState string

const (
	PaymentStatePending PaymentState = "pending"
	PaymentStatePaid    PaymentState = "paid"
	PaymentStateFailed  PaymentState = "failed"
	PaymentStateUnknown PaymentState = "unknown"
)

// PaymentSession is what a gateway returns when a payment is started.
type PaymentSession struct {
	ExternalID string
	PayURL     string
}

// YooKassaClient implements card payments through the YooKassa v3 API.
type YooKassaClient struct {
	baseURL    string
	shopID     string
	secretKey  string
	httpClient *http.Client
}

func NewYooKassaClient(shopID, secretKey string) *YooKassaClient {
	return &YooKassaClient{
		baseURL:   "https://api.yookassa.ru/v3",
		shopID:    shopID,
		secretKey: secretKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *YooKassaClient) auth() string {
	creds := c.shopID + ":" + c.secretKey
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

// CreateSession opens a redirect payment for the given RUB amount.
// Each call carries a fresh Idempotence-Key, as the API requires.
func (c *YooKassaClient) CreateSession(ctx context.Context, amountRUB float64, description string, metadata map[string]string) (*PaymentSession, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    fmt.Sprintf("%.2f", amountRUB),
			"currency": "RUB",
		},
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": "https://t.me",
		},
		"description": description,
		"metadata":    metadata,
		"capture":     true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth())
	req.Header.Set("Idempotence-Key", uuid.New().String())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Description  string `json:"description"`
		Confirmation struct {
			ConfirmationURL string `json:"confirmation_url"`
		} `json:"confirmation"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}
	if result.ID == "" {
		return nil, fmt.Errorf("yookassa returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return &PaymentSession{
		ExternalID: result.ID,
		PayURL:     result.Confirmation.ConfirmationURL,
	}, nil
}

// GetStatus polls a payment and normalizes the provider status.
func (c *YooKassaClient) GetStatus(ctx context.Context, externalID string) (PaymentState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+externalID, nil)
	if err != nil {
		return PaymentStateUnknown, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PaymentStateUnknown, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return PaymentStateUnknown, fmt.Errorf("yookassa returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return PaymentStateUnknown, fmt.Errorf("decode response: %w", err)
	}

	return NormalizeYooKassaStatus(result.Status), nil
}

// NormalizeYooKassaStatus maps YooKassa payment states onto ours.
// waiting_for_capture counts as paid because capture=true is set at
// session creation.
func NormalizeYooKassaStatus(status string) PaymentState {
	switch status {
	case "succeeded", "waiting_for_capture":
		return PaymentStatePaid
	case "pending":
		return PaymentStatePending
	case "canceled":
		return PaymentStateFailed
	default:
		return PaymentStateUnknown
	}
}
