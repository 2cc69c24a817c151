package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestYooKassaCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments" || r.Method != http.MethodPost {
			t.Errorf("request = %s %s, want POST /payments", r.Method, r.URL.Path)
		}
		if r.Header.Get("Idempotence-Key") == "" {
			t.Error("missing Idempotence-Key header")
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "shop-1" || pass != "sk-test" {
			t.Errorf("basic auth = %s:%s, want shop-1:sk-test", user, pass)
		}

		var payload map[string]any
		json.NewDecoder(r.Body).Decode(&payload)
		amount := payload["amount"].(map[string]any)
		if amount["value"] != "450.00" || amount["currency"] != "RUB" {
			t.Errorf("amount = %v, want 450.00 RUB", amount)
		}
		if payload["capture"] != true {
			t.Error("capture should be true")
		}

		w.Write([]byte(`{
			"id": "2d7f-payment-id",
			"status": "pending",
			"confirmation": {"type": "redirect", "confirmation_url": "https://yookassa.ru/checkout/x"}
		}`))
	}))
	defer srv.Close()

	c := NewYooKassaClient("shop-1", "sk-test")
	c.baseURL = srv.URL

	session, err := c.CreateSession(context.Background(), 450, "VPS Standard", map[string]string{"owner_id": "100"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.ExternalID != "2d7f-payment-id" {
		t.Errorf("ExternalID = %s", session.ExternalID)
	}
	if session.PayURL != "https://yookassa.ru/checkout/x" {
		t.Errorf("PayURL = %s", session.PayURL)
	}
}

func TestYooKassaCreateSessionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type": "error", "code": "invalid_credentials"}`))
	}))
	defer srv.Close()

	c := NewYooKassaClient("shop-1", "bad")
	c.baseURL = srv.URL

	if _, err := c.CreateSession(context.Background(), 450, "VPS", nil); err == nil {
		t.Fatal("expected error for rejected session, got nil")
	}
}

func TestYooKassaGetStatus(t *testing.T) {
	status := "pending"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payments/pay-1" {
			t.Errorf("path = %s, want /payments/pay-1", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer srv.Close()

	c := NewYooKassaClient("shop-1", "sk-test")
	c.baseURL = srv.URL

	cases := []struct {
		provider string
		want     PaymentState
	}{
		{"succeeded", PaymentStatePaid},
		{"waiting_for_capture", PaymentStatePaid},
		{"pending", PaymentStatePending},
		{"canceled", PaymentStateFailed},
		{"weird_future_state", PaymentStateUnknown},
	}
	for _, tc := range cases {
		status = tc.provider
		got, err := c.GetStatus(context.Background(), "pay-1")
		if err != nil {
			t.Fatalf("GetStatus(%s) error = %v", tc.provider, err)
		}
		if got != tc.want {
			t.Errorf("GetStatus(%s) = %s, want %s", tc.provider, got, tc.want)
		}
	}
}
