package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// CryptoBotClient implements USDT payments through the Crypto Pay API.
type CryptoBotClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewCryptoBotClient(token string) *CryptoBotClient {
	return &CryptoBotClient{
		baseURL: "https://pay.crypt.bot/api",
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type cryptoBotEnvelope struct {
	OK     bool            `json:"ok"`
	Error  json.RawMessage `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// CreateSession opens a one-hour USDT invoice.
func (c *CryptoBotClient) CreateSession(ctx context.Context, amountUSDT float64, description string) (*PaymentSession, error) {
	payload := map[string]any{
		"asset":       "USDT",
		"amount":      strconv.FormatFloat(amountUSDT, 'f', -1, 64),
		"description": description,
		"expires_in":  3600,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/createInvoice", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var envelope cryptoBotEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.OK {
		return nil, fmt.Errorf("cryptobot error: %s", string(envelope.Error))
	}

	var invoice struct {
		InvoiceID int64  `json:"invoice_id"`
		PayURL    string `json:"pay_url"`
	}
	if err := json.Unmarshal(envelope.Result, &invoice); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}

	return &PaymentSession{
		ExternalID: strconv.FormatInt(invoice.InvoiceID, 10),
		PayURL:     invoice.PayURL,
	}, nil
}

// GetStatus polls an invoice and normalizes the provider status.
func (c *CryptoBotClient) GetStatus(ctx context.Context, externalID string) (PaymentState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/getInvoices?invoice_ids="+externalID, nil)
	if err != nil {
		return PaymentStateUnknown, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Crypto-Pay-API-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return PaymentStateUnknown, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var envelope cryptoBotEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return PaymentStateUnknown, fmt.Errorf("decode response: %w", err)
	}
	if !envelope.OK {
		return PaymentStateUnknown, fmt.Errorf("cryptobot error: %s", string(envelope.Error))
	}

	var result struct {
		Items []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return PaymentStateUnknown, fmt.Errorf("decode invoices: %w", err)
	}
	if len(result.Items) == 0 {
		return PaymentStateUnknown, fmt.Errorf("invoice %s not found", externalID)
	}

	return NormalizeCryptoBotStatus(result.Items[0].Status), nil
}

// NormalizeCryptoBotStatus maps Crypto Pay invoice states onto ours.
func NormalizeCryptoBotStatus(status string) PaymentState {
	switch status {
	case "paid":
		return PaymentStatePaid
	case "active":
		return PaymentStatePending
	case "expired", "cancelled":
		return PaymentStateFailed
	default:
		return PaymentStateUnknown
	}
}

// VerifyCryptoBotSignature checks the webhook signature: HMAC-SHA256
// over the raw body, keyed with SHA-256 of the API token.
func VerifyCryptoBotSignature(token string, body []byte, signature string) bool {
	if token == "" || signature == "" {
		return false
	}
	secret := sha256.Sum256([]byte(token))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
