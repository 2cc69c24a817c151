package service

import (
	"context"
	"log"
	"time"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

// ExpiryService runs the scheduled sweeps: expiry reminders, automatic
// balance-funded renewals, and removal of lapsed servers. One sweep
// failing never blocks the others; every item is handled independently
// so a single bad row cannot poison a run.
type ExpiryService struct {
	servers    VpsStore
	ippool     IPPool
	hypervisor Hypervisor
	referrals  ReferralStore
	notifier   Notifier
	automation Automation
	interval   time.Duration
}

func NewExpiryService(
	servers VpsStore,
	ippool IPPool,
	hypervisor Hypervisor,
	referrals ReferralStore,
	notifier Notifier,
	automation Automation,
) *ExpiryService {
	return &ExpiryService{
		servers:    servers,
		ippool:     ippool,
		hypervisor: hypervisor,
		referrals:  referrals,
		notifier:   notifier,
		automation: automation,
		interval:   time.Hour,
	}
}

// Start runs the sweeps on a fixed interval until ctx is cancelled.
// The first run happens immediately so a restart does not postpone
// overdue cleanup by a full interval.
func (s *ExpiryService) Start(ctx context.Context) {
	log.Printf("[expiry] Sweeps started, interval %s", s.interval)
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[expiry] Sweeps stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one pass of all three sweeps. Autorenew runs before
// cleanup so a server with a funded balance is renewed rather than
// removed.
func (s *ExpiryService) RunOnce(ctx context.Context) {
	s.RunReminders(ctx)
	s.RunAutorenew(ctx)
	s.RunCleanup(ctx)
}

// RunReminders sends the 3-day and 1-day expiry warnings, at most once
// each per billing period.
func (s *ExpiryService) RunReminders(ctx context.Context) {
	for _, days := range []int{3, 1} {
		expiring, err := s.servers.GetExpiring(ctx, days)
		if err != nil {
			log.Printf("[expiry] Reminder query (%dd) failed: %v", days, err)
			continue
		}
		for _, v := range expiring {
			s.notifier.ExpiryReminder(v.OwnerID, v, days)
			if err := s.servers.MarkReminded(ctx, v.ID, days); err != nil {
				log.Printf("[expiry] Mark reminded vps %d failed: %v", v.ID, err)
			}
		}
		if len(expiring) > 0 {
			log.Printf("[expiry] Sent %d reminders (%dd window)", len(expiring), days)
		}
	}
}

// RunAutorenew renews servers expiring within 24 hours whose owners
// opted in, funded from the RUB bonus balance. An uncovered balance is
// not an error; the server simply falls through to reminders and, if
// never paid, to cleanup.
func (s *ExpiryService) RunAutorenew(ctx context.Context) {
	candidates, err := s.servers.GetAutorenewCandidates(ctx)
	if err != nil {
		log.Printf("[expiry] Autorenew query failed: %v", err)
		return
	}
	for _, v := range candidates {
		tariff, ok := config.TariffByID(v.TariffID)
		if !ok {
			log.Printf("[expiry] Vps %d has unknown tariff %s, skipping autorenew", v.ID, v.TariffID)
			continue
		}

		debited, err := s.referrals.DebitRUB(ctx, v.OwnerID, tariff.PriceRUB)
		if err != nil {
			log.Printf("[expiry] Autorenew debit for vps %d failed: %v", v.ID, err)
			continue
		}
		if !debited {
			continue
		}

		newExpiry := renewedExpiry(v.ExpiresAt, time.Now())
		if err := s.servers.Extend(ctx, v.ID, newExpiry); err != nil {
			log.Printf("[expiry] Autorenew extend for vps %d failed: %v", v.ID, err)
			// Money left the balance but the expiry did not move.
			s.notifier.OperatorProvisionFailure(&models.Payment{
				OwnerID:    v.OwnerID,
				ExternalID: "autorenew",
				Amount:     tariff.PriceRUB,
				Currency:   models.CurrencyRUB,
			}, err)
			continue
		}
		v.ExpiresAt = newExpiry

		log.Printf("[expiry] Autorenewed vps %d for %.2f RUB until %s", v.ID, tariff.PriceRUB, newExpiry.Format("2006-01-02"))
		s.notifier.AutoRenewed(v.OwnerID, v, tariff.PriceRUB)
		s.automation.Emit(ctx, "vps.renewed", map[string]any{
			"owner_id":   v.OwnerID,
			"vps_id":     v.ID,
			"expires_at": newExpiry.Format(time.RFC3339),
			"auto":       true,
		})
	}
}

// RunCleanup removes servers past their expiry. The container is
// destroyed first; if the hypervisor refuses, the row and the address
// are left untouched so the next sweep retries instead of leaking a
// running container onto a reusable IP.
func (s *ExpiryService) RunCleanup(ctx context.Context) {
	expired, err := s.servers.GetExpired(ctx)
	if err != nil {
		log.Printf("[expiry] Expired query failed: %v", err)
		return
	}
	for _, v := range expired {
		if err := s.hypervisor.DeleteContainer(ctx, v.VMID); err != nil {
			log.Printf("[expiry] Delete container %d (vps %d) failed, will retry: %v", v.VMID, v.ID, err)
			s.notifier.NotifyOperator(
				"⚠️ Не удалось удалить просроченный контейнер " +
					v.IP + ", попробуем в следующий проход.")
			continue
		}
		if err := s.servers.MarkDeleted(ctx, v.ID); err != nil {
			log.Printf("[expiry] Mark deleted vps %d failed: %v", v.ID, err)
			continue
		}
		if err := s.ippool.Release(ctx, v.IP); err != nil {
			log.Printf("[expiry] Release ip %s failed: %v", v.IP, err)
		}

		log.Printf("[expiry] Removed expired vps %d (vmid %d, %s)", v.ID, v.VMID, v.IP)
		s.notifier.ServerExpired(v.OwnerID, v)
		s.automation.Emit(ctx, "vps.expired", map[string]any{
			"owner_id": v.OwnerID,
			"vps_id":   v.ID,
		})
	}
}
