package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
	"github.com/skyden/vps-platform/provisioning-service/internal/repository"
)

// billingPeriod is what one payment buys.
const billingPeriod = 30 * 24 * time.Hour

// ipPoolLowWater triggers an operator warning after allocation.
const ipPoolLowWater = 3

// IPPool hands out and reclaims addresses from the fixed pool.
type IPPool interface {
	Allocate(ctx context.Context) (string, error)
	Release(ctx context.Context, ip string) error
	FreeCount(ctx context.Context) (int, error)
}

// Guard is the duplicate-fulfillment lock keyed by external payment id.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// Hypervisor creates and destroys containers.
type Hypervisor interface {
	NextID(ctx context.Context) (int, error)
	CreateContainer(ctx context.Context, spec *models.ContainerSpec) error
	DeleteContainer(ctx context.Context, vmid int) error
}

// PaymentStore is the payment-intent ledger.
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
	MarkPaid(ctx context.Context, externalID string) (bool, error)
	MarkFailed(ctx context.Context, externalID string) (bool, error)
	CountRecentByOwner(ctx context.Context, ownerID int64, windowSec int) (int, error)
	CountPaidByOwner(ctx context.Context, ownerID int64) (int, error)
}

// VpsStore persists provisioned servers.
type VpsStore interface {
	Create(ctx context.Context, v *models.Vps) error
	GetByID(ctx context.Context, id int64) (*models.Vps, error)
	GetByOwner(ctx context.Context, ownerID int64) ([]*models.Vps, error)
	CountActiveByOwner(ctx context.Context, ownerID int64) (int, error)
	Extend(ctx context.Context, id int64, newExpiry time.Time) error
	GetExpiring(ctx context.Context, days int) ([]*models.Vps, error)
	GetExpired(ctx context.Context) ([]*models.Vps, error)
	GetAutorenewCandidates(ctx context.Context) ([]*models.Vps, error)
	MarkReminded(ctx context.Context, id int64, days int) error
	MarkDeleted(ctx context.Context, id int64) error
	SetAutoRenew(ctx context.Context, id int64, enabled bool) error
}

// Notifier delivers customer and operator messages. All methods are
// best-effort.
type Notifier interface {
	ServerReady(ownerID int64, vps *models.Vps)
	ServerRenewed(ownerID int64, vps *models.Vps)
	ProvisionFailed(ownerID int64, errorCode string)
	ExpiryReminder(ownerID int64, vps *models.Vps, daysLeft int)
	ServerExpired(ownerID int64, vps *models.Vps)
	ReferralBonus(referrerID int64, amount float64, currency string)
	AutoRenewed(ownerID int64, vps *models.Vps, amount float64)
	OperatorSale(p *models.Payment, vps *models.Vps)
	OperatorProvisionFailure(p *models.Payment, cause error)
	OperatorPoolLow(free int)
	NotifyOperator(text string)
}

// Automation forwards lifecycle events to the external automation hook.
type Automation interface {
	Emit(ctx context.Context, event string, fields map[string]any)
}

// AuditLog records workflow steps per external payment id.
type AuditLog interface {
	LogAction(ctx context.Context, externalID, action, status, message string) error
}

// ProvisionService owns the money-to-server workflow. Fulfill is the
// single entry point shared by provider webhooks, user-initiated "I
// paid" checks, and the internal replay endpoint; the guard makes a
// second concurrent arrival of the same payment a no-op.
type ProvisionService struct {
	payments   PaymentStore
	servers    VpsStore
	ippool     IPPool
	guard      Guard
	hypervisor Hypervisor
	referrals  *ReferralService
	notifier   Notifier
	automation Automation
	audit      AuditLog
}

func NewProvisionService(
	payments PaymentStore,
	servers VpsStore,
	ippool IPPool,
	guard Guard,
	hypervisor Hypervisor,
	referrals *ReferralService,
	notifier Notifier,
	automation Automation,
	audit AuditLog,
) *ProvisionService {
	return &ProvisionService{
		payments:   payments,
		servers:    servers,
		ippool:     ippool,
		guard:      guard,
		hypervisor: hypervisor,
		referrals:  referrals,
		notifier:   notifier,
		automation: automation,
		audit:      audit,
	}
}

// Fulfill turns a provider-confirmed payment into a running server (or
// a renewed one). Callers must have verified the payment at the
// boundary; Fulfill trusts them and handles everything after.
//
// The payment row is the state machine: it leaves pending exactly once,
// to paid after all side effects succeed, or to failed after rollback.
// A payment that is no longer pending is abandoned immediately.
func (s *ProvisionService) Fulfill(ctx context.Context, externalID string) error {
	acquired, err := s.guard.Acquire(ctx, externalID)
	if err != nil {
		return fmt.Errorf("acquire guard: %w", err)
	}
	if !acquired {
		log.Printf("[provision] Payment %s already being fulfilled, skipping", externalID)
		return nil
	}

	p, err := s.payments.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			log.Printf("[provision] Unknown payment %s, ignoring", externalID)
			return nil
		}
		return fmt.Errorf("load payment: %w", err)
	}
	if p.Status != models.PaymentStatusPending {
		log.Printf("[provision] Payment %s already %s, skipping", externalID, p.Status)
		return nil
	}

	if p.RenewVpsID != nil {
		return s.renew(ctx, p)
	}
	return s.provision(ctx, p)
}

func (s *ProvisionService) provision(ctx context.Context, p *models.Payment) error {
	tariff, ok := config.TariffByID(p.TariffID)
	if !ok {
		s.fail(ctx, p, "resolve_tariff", ErrUnknownTariff)
		return fmt.Errorf("payment %s: %w: %s", p.ExternalID, ErrUnknownTariff, p.TariffID)
	}

	ip, err := s.ippool.Allocate(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrPoolExhausted) {
			s.fail(ctx, p, "allocate_ip", err)
			s.notifier.NotifyOperator(fmt.Sprintf(
				"🚨 <b>IP пул исчерпан</b>\nПлатёж <code>%s</code> не выполнен, требуется возврат.", p.ExternalID))
			return fmt.Errorf("payment %s: %w", p.ExternalID, err)
		}
		return fmt.Errorf("allocate ip: %w", err)
	}
	s.logStep(ctx, p.ExternalID, "allocate_ip", "ok", ip)

	vmid, err := s.hypervisor.NextID(ctx)
	if err != nil {
		s.rollback(ctx, p, ip, 0, "next_id", err)
		return fmt.Errorf("payment %s: next id: %w", p.ExternalID, err)
	}

	credential, err := generateCredential()
	if err != nil {
		s.rollback(ctx, p, ip, 0, "generate_credential", err)
		return fmt.Errorf("payment %s: %w", p.ExternalID, err)
	}

	spec := &models.ContainerSpec{
		VMID:     vmid,
		Hostname: fmt.Sprintf("vps-%d-%d", p.OwnerID, vmid),
		IP:       ip,
		Password: credential,
		Cores:    tariff.Cores,
		MemoryMB: tariff.MemoryMB,
		DiskGB:   tariff.DiskGB,
	}
	if err := s.hypervisor.CreateContainer(ctx, spec); err != nil {
		s.rollback(ctx, p, ip, 0, "create_container", err)
		return fmt.Errorf("payment %s: create container: %w", p.ExternalID, err)
	}
	s.logStep(ctx, p.ExternalID, "create_container", "ok", fmt.Sprintf("vmid=%d", vmid))

	v := &models.Vps{
		OwnerID:    p.OwnerID,
		VMID:       vmid,
		Hostname:   spec.Hostname,
		IP:         ip,
		Credential: credential,
		TariffID:   tariff.ID,
		Status:     models.VpsStatusActive,
		ExpiresAt:  time.Now().Add(billingPeriod),
	}
	if err := s.servers.Create(ctx, v); err != nil {
		s.rollback(ctx, p, ip, vmid, "persist_vps", err)
		return fmt.Errorf("payment %s: persist vps: %w", p.ExternalID, err)
	}

	transitioned, err := s.payments.MarkPaid(ctx, p.ExternalID)
	if err != nil {
		return fmt.Errorf("payment %s: mark paid: %w", p.ExternalID, err)
	}
	if !transitioned {
		log.Printf("[provision] Payment %s left pending state mid-fulfillment", p.ExternalID)
	}
	s.logStep(ctx, p.ExternalID, "fulfill", "ok", fmt.Sprintf("vps=%d ip=%s", v.ID, ip))
	log.Printf("[provision] Payment %s fulfilled: vps %d (vmid %d, %s) for owner %d",
		p.ExternalID, v.ID, vmid, ip, p.OwnerID)

	s.notifier.ServerReady(p.OwnerID, v)
	s.notifier.OperatorSale(p, v)
	s.automation.Emit(ctx, "vps.created", map[string]any{
		"owner_id": p.OwnerID,
		"vps_id":   v.ID,
		"tariff":   tariff.ID,
		"ip":       ip,
	})
	s.referrals.Award(ctx, p.OwnerID, p.Currency)
	s.warnIfPoolLow(ctx)
	return nil
}

func (s *ProvisionService) renew(ctx context.Context, p *models.Payment) error {
	v, err := s.servers.GetByID(ctx, *p.RenewVpsID)
	if err != nil {
		s.fail(ctx, p, "load_vps", err)
		return fmt.Errorf("payment %s: load vps %d: %w", p.ExternalID, *p.RenewVpsID, err)
	}
	if v.OwnerID != p.OwnerID {
		s.fail(ctx, p, "check_owner", ErrNotOwned)
		return fmt.Errorf("payment %s: vps %d: %w", p.ExternalID, v.ID, ErrNotOwned)
	}

	newExpiry := renewedExpiry(v.ExpiresAt, time.Now())
	if err := s.servers.Extend(ctx, v.ID, newExpiry); err != nil {
		s.fail(ctx, p, "extend", err)
		return fmt.Errorf("payment %s: extend vps %d: %w", p.ExternalID, v.ID, err)
	}
	v.ExpiresAt = newExpiry

	transitioned, err := s.payments.MarkPaid(ctx, p.ExternalID)
	if err != nil {
		return fmt.Errorf("payment %s: mark paid: %w", p.ExternalID, err)
	}
	if !transitioned {
		log.Printf("[provision] Payment %s left pending state mid-renewal", p.ExternalID)
	}
	s.logStep(ctx, p.ExternalID, "renew", "ok", fmt.Sprintf("vps=%d until=%s", v.ID, newExpiry.Format(time.RFC3339)))
	log.Printf("[provision] Payment %s renewed vps %d until %s", p.ExternalID, v.ID, newExpiry.Format("2006-01-02"))

	s.notifier.ServerRenewed(p.OwnerID, v)
	s.notifier.OperatorSale(p, v)
	s.automation.Emit(ctx, "vps.renewed", map[string]any{
		"owner_id":   p.OwnerID,
		"vps_id":     v.ID,
		"expires_at": newExpiry.Format(time.RFC3339),
	})
	s.referrals.Award(ctx, p.OwnerID, p.Currency)
	return nil
}

// renewedExpiry extends from the current expiry when the server is
// still paid up, and from now when it already lapsed. An early renewal
// must never shorten the remaining time.
func renewedExpiry(current, now time.Time) time.Time {
	base := current
	if now.After(base) {
		base = now
	}
	return base.Add(billingPeriod)
}

// rollback undoes partial provisioning: destroys the container if one
// was created, returns the address, fails the payment, and tells both
// the customer and the operators.
func (s *ProvisionService) rollback(ctx context.Context, p *models.Payment, ip string, vmid int, step string, cause error) {
	log.Printf("[provision] Payment %s failed at %s: %v", p.ExternalID, step, cause)

	if vmid != 0 {
		if err := s.hypervisor.DeleteContainer(ctx, vmid); err != nil {
			log.Printf("[provision] Rollback could not delete container %d: %v", vmid, err)
		}
	}
	if err := s.ippool.Release(ctx, ip); err != nil {
		log.Printf("[provision] Rollback could not release ip %s: %v", ip, err)
	}
	s.fail(ctx, p, step, cause)
}

// fail transitions the payment to failed and notifies. The external
// payment id doubles as the support code shown to the customer.
func (s *ProvisionService) fail(ctx context.Context, p *models.Payment, step string, cause error) {
	if _, err := s.payments.MarkFailed(ctx, p.ExternalID); err != nil {
		log.Printf("[provision] Could not mark payment %s failed: %v", p.ExternalID, err)
	}
	s.logStep(ctx, p.ExternalID, step, "error", cause.Error())
	s.notifier.ProvisionFailed(p.OwnerID, p.ExternalID)
	s.notifier.OperatorProvisionFailure(p, cause)
}

func (s *ProvisionService) logStep(ctx context.Context, externalID, action, status, message string) {
	if err := s.audit.LogAction(ctx, externalID, action, status, message); err != nil {
		log.Printf("[provision] Audit write failed for %s/%s: %v", externalID, action, err)
	}
}

func (s *ProvisionService) warnIfPoolLow(ctx context.Context) {
	free, err := s.ippool.FreeCount(ctx)
	if err != nil {
		log.Printf("[provision] Pool count failed: %v", err)
		return
	}
	if free <= ipPoolLowWater {
		s.notifier.OperatorPoolLow(free)
	}
}
