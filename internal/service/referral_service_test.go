package service

import (
	"context"
	"testing"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
)

func enabledReferralCfg() config.ReferralConfig {
	return config.ReferralConfig{Enabled: true, BonusRUB: 50, BonusUSDT: 0.5}
}

func TestReferralAward(t *testing.T) {
	t.Run("first purchase pays the referrer once", func(t *testing.T) {
		store := newFakeReferralStore()
		notifier := &fakeNotifier{}
		svc := NewReferralService(store, notifier, enabledReferralCfg())

		svc.Register(context.Background(), 1, 2)

		svc.Award(context.Background(), 2, models.CurrencyRUB)
		svc.Award(context.Background(), 2, models.CurrencyRUB)

		rub, _, err := store.GetBalance(context.Background(), 1)
		if err != nil {
			t.Fatalf("GetBalance() error = %v", err)
		}
		if rub != 50 {
			t.Errorf("referrer RUB balance = %.2f, want 50.00 (single payout)", rub)
		}
		if len(notifier.bonuses) != 1 {
			t.Errorf("bonus notifications = %d, want 1", len(notifier.bonuses))
		}
	})

	t.Run("notification carries the paid currency's amount", func(t *testing.T) {
		store := newFakeReferralStore()
		notifier := &fakeNotifier{}
		svc := NewReferralService(store, notifier, enabledReferralCfg())

		svc.Register(context.Background(), 1, 2)
		svc.Award(context.Background(), 2, models.CurrencyUSDT)

		if len(notifier.bonuses) != 1 || notifier.bonuses[0] != "1:0.50:USDT" {
			t.Errorf("bonus notifications = %v, want [1:0.50:USDT]", notifier.bonuses)
		}
	})

	t.Run("non-referred user is a no-op", func(t *testing.T) {
		store := newFakeReferralStore()
		notifier := &fakeNotifier{}
		svc := NewReferralService(store, notifier, enabledReferralCfg())

		svc.Award(context.Background(), 42, models.CurrencyRUB)
		if len(notifier.bonuses) != 0 {
			t.Errorf("bonus notifications = %d, want 0", len(notifier.bonuses))
		}
	})

	t.Run("disabled program pays nothing", func(t *testing.T) {
		store := newFakeReferralStore()
		notifier := &fakeNotifier{}
		svc := NewReferralService(store, notifier, disabledReferralCfg())

		store.Register(context.Background(), 1, 2)
		svc.Award(context.Background(), 2, models.CurrencyRUB)

		rub, _, _ := store.GetBalance(context.Background(), 1)
		if rub != 0 {
			t.Errorf("referrer balance = %.2f, want 0 when disabled", rub)
		}
	})
}

func TestReferralRegister(t *testing.T) {
	t.Run("self referral ignored", func(t *testing.T) {
		store := newFakeReferralStore()
		svc := NewReferralService(store, &fakeNotifier{}, enabledReferralCfg())

		svc.Register(context.Background(), 5, 5)
		if _, err := store.GetReferrer(context.Background(), 5); err == nil {
			t.Error("self referral should not create a link")
		}
	})

	t.Run("first referrer wins", func(t *testing.T) {
		store := newFakeReferralStore()
		svc := NewReferralService(store, &fakeNotifier{}, enabledReferralCfg())

		svc.Register(context.Background(), 1, 3)
		svc.Register(context.Background(), 2, 3)

		referrer, err := store.GetReferrer(context.Background(), 3)
		if err != nil {
			t.Fatalf("GetReferrer() error = %v", err)
		}
		if referrer != 1 {
			t.Errorf("referrer = %d, want 1", referrer)
		}
	})
}
