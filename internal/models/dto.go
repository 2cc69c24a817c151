package models

import "time"

// CreatePaymentRequest starts a new payment session with a provider.
type CreatePaymentRequest struct {
	Provider   string `json:"provider" binding:"required"`
	TariffID   string `json:"tariff_id" binding:"required"`
	RenewVpsID *int64 `json:"renew_vps_id,omitempty"`
	PromoCode  string `json:"promo_code,omitempty"`
}

// CreatePaymentResponse returns the session the user must complete.
type CreatePaymentResponse struct {
	ExternalID string  `json:"external_id"`
	PayURL     string  `json:"pay_url"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	Discount   float64 `json:"discount,omitempty"`
}

// CreatePromoRequest defines a new promo code, issued by operators
// through the internal API.
type CreatePromoRequest struct {
	Code        string     `json:"code" binding:"required"`
	Type        string     `json:"type" binding:"required"`
	Value       float64    `json:"value" binding:"required"`
	MaxUses     int        `json:"max_uses,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	OnlyTariffs []string   `json:"only_tariffs,omitempty"`
	OnePerUser  *bool      `json:"one_per_user,omitempty"`
	CreatedBy   int64      `json:"created_by,omitempty"`
}

// CheckPaymentResponse reports the provider-normalized status of an
// intent after a user-initiated check.
type CheckPaymentResponse struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// FulfillRequest is the internal replay endpoint payload, used for
// manual reconciliation of a confirmed payment.
type FulfillRequest struct {
	ExternalID string `json:"external_id" binding:"required"`
}

// SyncUserRequest is sent by the bot backend on every /start.
type SyncUserRequest struct {
	OwnerID    int64   `json:"owner_id" binding:"required"`
	Username   *string `json:"username,omitempty"`
	FullName   *string `json:"full_name,omitempty"`
	ReferrerID int64   `json:"referrer_id,omitempty"`
}

// ServerInfo is one row of the owner's server list.
type ServerInfo struct {
	ID        int64   `json:"id"`
	Hostname  string  `json:"hostname"`
	IP        string  `json:"ip"`
	TariffID  string  `json:"tariff_id"`
	Status    string  `json:"status"`
	ExpiresAt string  `json:"expires_at"`
	Running   *bool   `json:"running,omitempty"`
	CPUPct    float64 `json:"cpu_pct,omitempty"`
}

// ServerListResponse wraps the owner's servers.
type ServerListResponse struct {
	Servers []ServerInfo `json:"servers"`
}

// YooKassaEvent is the webhook body YooKassa delivers.
type YooKassaEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

// CryptoBotUpdate is the webhook body CryptoBot delivers.
type CryptoBotUpdate struct {
	UpdateType string `json:"update_type"`
	Payload    struct {
		InvoiceID int64  `json:"invoice_id"`
		Status    string `json:"status"`
	} `json:"payload"`
}
