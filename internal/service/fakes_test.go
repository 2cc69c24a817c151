package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
	"github.com/skyden/vps-platform/provisioning-service/internal/repository"
)

func disabledReferralCfg() config.ReferralConfig {
	return config.ReferralConfig{Enabled: false}
}

// ========================================
// In-memory fakes for the workflow deps
// ========================================

type fakeIPPool struct {
	mu       sync.Mutex
	free     []string
	released []string
	allocErr error
}

func (f *fakeIPPool) Allocate(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocErr != nil {
		return "", f.allocErr
	}
	if len(f.free) == 0 {
		return "", repository.ErrPoolExhausted
	}
	ip := f.free[0]
	f.free = f.free[1:]
	return ip, nil
}

func (f *fakeIPPool) Release(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, ip)
	return nil
}

func (f *fakeIPPool) FreeCount(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.free), nil
}

type fakeGuard struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{held: make(map[string]bool)}
}

func (f *fakeGuard) Acquire(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

type fakeHypervisor struct {
	nextID    int
	createErr error
	deleteErr error
	created   []*models.ContainerSpec
	deleted   []int
}

func (f *fakeHypervisor) NextID(ctx context.Context) (int, error) {
	f.nextID++
	return f.nextID, nil
}

func (f *fakeHypervisor) CreateContainer(ctx context.Context, spec *models.ContainerSpec) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, spec)
	return nil
}

func (f *fakeHypervisor) DeleteContainer(ctx context.Context, vmid int) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, vmid)
	return nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore(payments ...*models.Payment) *fakePaymentStore {
	s := &fakePaymentStore{payments: make(map[string]*models.Payment)}
	for _, p := range payments {
		s.payments[p.ExternalID] = p
	}
	return s
}

func (f *fakePaymentStore) Create(ctx context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.payments) + 1)
	p.CreatedAt = time.Now()
	f.payments[p.ExternalID] = p
	return nil
}

func (f *fakePaymentStore) GetByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentStore) MarkPaid(ctx context.Context, externalID string) (bool, error) {
	return f.mark(externalID, models.PaymentStatusPaid)
}

func (f *fakePaymentStore) MarkFailed(ctx context.Context, externalID string) (bool, error) {
	return f.mark(externalID, models.PaymentStatusFailed)
}

func (f *fakePaymentStore) mark(externalID string, status models.PaymentStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[externalID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	return true, nil
}

func (f *fakePaymentStore) CountRecentByOwner(ctx context.Context, ownerID int64, windowSec int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	cutoff := time.Now().Add(-time.Duration(windowSec) * time.Second)
	for _, p := range f.payments {
		if p.OwnerID == ownerID && p.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (f *fakePaymentStore) CountPaidByOwner(ctx context.Context, ownerID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.payments {
		if p.OwnerID == ownerID && p.Status == models.PaymentStatusPaid {
			n++
		}
	}
	return n, nil
}

func (f *fakePaymentStore) status(externalID string) models.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.payments[externalID]; ok {
		return p.Status
	}
	return ""
}

type fakeVpsStore struct {
	mu      sync.Mutex
	nextID  int64
	servers map[int64]*models.Vps
}

func newFakeVpsStore(servers ...*models.Vps) *fakeVpsStore {
	s := &fakeVpsStore{servers: make(map[int64]*models.Vps)}
	for _, v := range servers {
		s.servers[v.ID] = v
		if v.ID > s.nextID {
			s.nextID = v.ID
		}
	}
	return s
}

func (f *fakeVpsStore) Create(ctx context.Context, v *models.Vps) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	v.ID = f.nextID
	v.CreatedAt = time.Now()
	f.servers[v.ID] = v
	return nil
}

func (f *fakeVpsStore) GetByID(ctx context.Context, id int64) (*models.Vps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.servers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVpsStore) GetByOwner(ctx context.Context, ownerID int64) ([]*models.Vps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Vps
	for _, v := range f.servers {
		if v.OwnerID == ownerID && v.Status != models.VpsStatusDeleted {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVpsStore) CountActiveByOwner(ctx context.Context, ownerID int64) (int, error) {
	list, _ := f.GetByOwner(ctx, ownerID)
	return len(list), nil
}

func (f *fakeVpsStore) Extend(ctx context.Context, id int64, newExpiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.servers[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.ExpiresAt = newExpiry
	v.Reminded3d = false
	v.Reminded1d = false
	return nil
}

func (f *fakeVpsStore) GetExpiring(ctx context.Context, days int) ([]*models.Vps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := time.Now().Add(time.Duration(days) * 24 * time.Hour)
	var out []*models.Vps
	for _, v := range f.servers {
		if v.Status != models.VpsStatusActive {
			continue
		}
		if days == 3 && v.Reminded3d || days == 1 && v.Reminded1d {
			continue
		}
		diff := v.ExpiresAt.Sub(target)
		if diff > -12*time.Hour && diff < 12*time.Hour {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVpsStore) GetExpired(ctx context.Context) ([]*models.Vps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Vps
	for _, v := range f.servers {
		if v.Status == models.VpsStatusActive && v.ExpiresAt.Before(time.Now()) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVpsStore) GetAutorenewCandidates(ctx context.Context) ([]*models.Vps, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Vps
	for _, v := range f.servers {
		if v.Status == models.VpsStatusActive && v.AutoRenew &&
			v.ExpiresAt.After(time.Now()) && v.ExpiresAt.Before(time.Now().Add(24*time.Hour)) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeVpsStore) MarkReminded(ctx context.Context, id int64, days int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.servers[id]
	if !ok {
		return repository.ErrNotFound
	}
	if days == 3 {
		v.Reminded3d = true
	} else {
		v.Reminded1d = true
	}
	return nil
}

func (f *fakeVpsStore) MarkDeleted(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.servers[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.Status = models.VpsStatusDeleted
	return nil
}

func (f *fakeVpsStore) SetAutoRenew(ctx context.Context, id int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.servers[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.AutoRenew = enabled
	return nil
}

func (f *fakeVpsStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.servers {
		if v.Status != models.VpsStatusDeleted {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu               sync.Mutex
	ready            []int64
	renewed          []int64
	failed           []string
	reminders        []string
	expired          []int64
	bonuses          []string
	autoRenewed      []int64
	operatorMessages []string
}

func (f *fakeNotifier) record(list *[]int64, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*list = append(*list, v)
}

func (f *fakeNotifier) ServerReady(ownerID int64, vps *models.Vps)   { f.record(&f.ready, ownerID) }
func (f *fakeNotifier) ServerRenewed(ownerID int64, vps *models.Vps) { f.record(&f.renewed, ownerID) }
func (f *fakeNotifier) ServerExpired(ownerID int64, vps *models.Vps) { f.record(&f.expired, ownerID) }

func (f *fakeNotifier) ProvisionFailed(ownerID int64, errorCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, errorCode)
}

func (f *fakeNotifier) ExpiryReminder(ownerID int64, vps *models.Vps, daysLeft int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminders = append(f.reminders, fmt.Sprintf("%d:%d", ownerID, daysLeft))
}

func (f *fakeNotifier) ReferralBonus(referrerID int64, amount float64, currency string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bonuses = append(f.bonuses, fmt.Sprintf("%d:%.2f:%s", referrerID, amount, currency))
}

func (f *fakeNotifier) AutoRenewed(ownerID int64, vps *models.Vps, amount float64) {
	f.record(&f.autoRenewed, ownerID)
}

func (f *fakeNotifier) OperatorSale(p *models.Payment, vps *models.Vps) {
	f.NotifyOperator("sale " + p.ExternalID)
}

func (f *fakeNotifier) OperatorProvisionFailure(p *models.Payment, cause error) {
	f.NotifyOperator("failure " + p.ExternalID)
}

func (f *fakeNotifier) OperatorPoolLow(free int) {
	f.NotifyOperator(fmt.Sprintf("pool low %d", free))
}

func (f *fakeNotifier) NotifyOperator(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.operatorMessages = append(f.operatorMessages, text)
}

type fakeAutomation struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeAutomation) Emit(ctx context.Context, event string, fields map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeAudit) LogAction(ctx context.Context, externalID, action, status, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, externalID+"/"+action+"/"+status)
	return nil
}

type fakeReferralStore struct {
	mu        sync.Mutex
	referrers map[int64]int64 // referred -> referrer
	paid      map[int64]bool  // referred -> bonus paid
	rub       map[int64]float64
	usdt      map[int64]float64
}

func newFakeReferralStore() *fakeReferralStore {
	return &fakeReferralStore{
		referrers: make(map[int64]int64),
		paid:      make(map[int64]bool),
		rub:       make(map[int64]float64),
		usdt:      make(map[int64]float64),
	}
}

func (f *fakeReferralStore) Register(ctx context.Context, referrerID, referredID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if referrerID == referredID {
		return false, nil
	}
	if _, ok := f.referrers[referredID]; ok {
		return false, nil
	}
	f.referrers[referredID] = referrerID
	return true, nil
}

func (f *fakeReferralStore) GetReferrer(ctx context.Context, referredID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.referrers[referredID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeReferralStore) AwardBonus(ctx context.Context, referredID int64, bonusRUB, bonusUSDT float64, currency string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	referrerID, ok := f.referrers[referredID]
	if !ok {
		return 0, false, nil
	}
	if f.paid[referredID] {
		return referrerID, false, nil
	}
	f.paid[referredID] = true
	f.rub[referrerID] += bonusRUB
	f.usdt[referrerID] += bonusUSDT
	return referrerID, true, nil
}

func (f *fakeReferralStore) DebitRUB(ctx context.Context, ownerID int64, amount float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rub[ownerID] < amount {
		return false, nil
	}
	f.rub[ownerID] -= amount
	return true, nil
}

func (f *fakeReferralStore) GetBalance(ctx context.Context, ownerID int64) (float64, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rub[ownerID], f.usdt[ownerID], nil
}

// newTestProvisionService wires a ProvisionService onto fakes.
func newTestProvisionService(
	payments *fakePaymentStore,
	servers *fakeVpsStore,
	ippool *fakeIPPool,
	hyp *fakeHypervisor,
) (*ProvisionService, *fakeNotifier, *fakeAutomation) {
	notifier := &fakeNotifier{}
	automation := &fakeAutomation{}
	referrals := NewReferralService(newFakeReferralStore(), notifier, disabledReferralCfg())
	svc := NewProvisionService(
		payments, servers, ippool, newFakeGuard(), hyp,
		referrals, notifier, automation, &fakeAudit{},
	)
	return svc, notifier, automation
}

type fakePromoStore struct {
	mu          sync.Mutex
	promos      map[string]*models.PromoCode
	used        map[string]bool
	redemptions []string
}

func newFakePromoStore(promos ...*models.PromoCode) *fakePromoStore {
	f := &fakePromoStore{promos: make(map[string]*models.PromoCode), used: make(map[string]bool)}
	for i, p := range promos {
		p.ID = int64(i + 1)
		f.promos[strings.ToUpper(p.Code)] = p
	}
	return f
}

func (f *fakePromoStore) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[strings.ToUpper(code)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePromoStore) HasUsed(ctx context.Context, promoID, ownerID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.used[fmt.Sprintf("%d:%d", promoID, ownerID)], nil
}

func (f *fakePromoStore) Redeem(ctx context.Context, promoID, ownerID int64, tariffID string, discount float64, currency string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.promos {
		if p.ID != promoID {
			continue
		}
		if !p.IsActive || (p.MaxUses > 0 && p.UsesCount >= p.MaxUses) {
			return false, nil
		}
		p.UsesCount++
		f.used[fmt.Sprintf("%d:%d", promoID, ownerID)] = true
		f.redemptions = append(f.redemptions, fmt.Sprintf("%d:%s:%.2f:%s", ownerID, tariffID, discount, currency))
		return true, nil
	}
	return false, nil
}

func (f *fakePromoStore) Create(ctx context.Context, p *models.PromoCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.promos) + 1)
	f.promos[strings.ToUpper(p.Code)] = p
	return nil
}

func (f *fakePromoStore) Deactivate(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[strings.ToUpper(code)]
	if !ok {
		return false, nil
	}
	p.IsActive = false
	return true, nil
}

func (f *fakePromoStore) List(ctx context.Context, limit int) ([]*models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.PromoCode, 0, len(f.promos))
	for _, p := range f.promos {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}
