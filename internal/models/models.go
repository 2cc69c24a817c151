package models

import "time"

// VpsStatus is the lifecycle state of a server instance.
type VpsStatus string

const (
	VpsStatusPending   VpsStatus = "pending"
	VpsStatusActive    VpsStatus = "active"
	VpsStatusSuspended VpsStatus = "suspended"
	VpsStatusDeleted   VpsStatus = "deleted"
)

// PaymentStatus is the terminal-state machine of a payment intent.
// Transitions happen only in PaymentRepository: pending -> paid | failed.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentProvider identifies which gateway issued the external payment id.
type PaymentProvider string

const (
	ProviderYooKassa  PaymentProvider = "yookassa"
	ProviderCryptoBot PaymentProvider = "cryptobot"
)

const (
	CurrencyRUB  = "RUB"
	CurrencyUSDT = "USDT"
)

// PromoType selects how a promo code discounts the price.
type PromoType string

const (
	PromoPercent   PromoType = "percent"
	PromoFixedRUB  PromoType = "fixed_rub"
	PromoFixedUSDT PromoType = "fixed_usdt"
)

// PromoCode is a discount coupon. MaxUses of zero means unlimited;
// an empty OnlyTariffs list means the code works for every tariff.
type PromoCode struct {
	ID          int64
	Code        string
	Type        PromoType
	Value       float64
	MaxUses     int
	UsesCount   int
	IsActive    bool
	ExpiresAt   *time.Time
	OnlyTariffs []string
	OnePerUser  bool
	CreatedBy   int64
	CreatedAt   time.Time
}

// User is a Telegram account known to the storefront.
type User struct {
	ID        int64
	OwnerID   int64 // telegram id
	Username  *string
	FullName  *string
	IsBanned  bool
	CreatedAt time.Time
}

// Vps is one provisioned container. IP is meaningful only while the
// status is not deleted; it then maps to exactly one in-use pool entry.
type Vps struct {
	ID         int64
	OwnerID    int64
	VMID       int
	Hostname   string
	IP         string
	Credential string
	TariffID   string
	Status     VpsStatus
	AutoRenew  bool
	ExpiresAt  time.Time
	Reminded3d bool
	Reminded1d bool
	CreatedAt  time.Time
}

// Payment is a payment intent created against an external provider.
// ExternalID is unique and serves as the idempotency key for fulfillment.
type Payment struct {
	ID         int64
	OwnerID    int64
	ExternalID string
	Provider   PaymentProvider
	TariffID   string
	Amount     float64
	Currency   string
	Status     PaymentStatus
	RenewVpsID *int64
	PromoCode  *string
	Discount   float64
	CreatedAt  time.Time
}

// IpPoolEntry is one address of the fixed pool.
type IpPoolEntry struct {
	ID    int64
	IP    string
	InUse bool
}

// Referral links a referred user to their referrer. At most one bonus
// payout per referred id, gated by BonusPaid.
type Referral struct {
	ID            int64
	ReferrerID    int64
	ReferredID    int64
	BonusPaid     bool
	BonusAmount   float64
	BonusCurrency *string
	PaidAt        *time.Time
	CreatedAt     time.Time
}

// BonusBalance is the referral-funded credit ledger, one row per owner.
type BonusBalance struct {
	OwnerID     int64
	BalanceRUB  float64
	BalanceUSDT float64
	UpdatedAt   time.Time
}

// ContainerSpec is the shape handed to the hypervisor for creation.
type ContainerSpec struct {
	VMID     int
	Hostname string
	IP       string
	Password string
	Cores    int
	MemoryMB int
	DiskGB   int
}

// ContainerStatus is the live state reported by the hypervisor.
type ContainerStatus struct {
	Running    bool
	CPUPct     float64
	MemUsedMB  int64
	MemTotalMB int64
	UptimeSec  int64
}

// NodeStatus is the hypervisor host's own utilization.
type NodeStatus struct {
	CPUPct     float64
	MemUsedGB  int64
	MemTotalGB int64
}
