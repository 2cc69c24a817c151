package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/skyden/vps-platform/provisioning-service/internal/client"
	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/models"
	"github.com/skyden/vps-platform/provisioning-service/internal/repository"
	"github.com/skyden/vps-platform/provisioning-service/internal/service"
)

// StatusClient reads live state from the hypervisor and drives the
// user-triggered container actions.
type StatusClient interface {
	ContainerStatus(ctx context.Context, vmid int) (*models.ContainerStatus, error)
	NodeStatus(ctx context.Context) (*models.NodeStatus, error)
	RebootContainer(ctx context.Context, vmid int) error
}

// AuditReader serves the per-payment audit trail to operators.
type AuditReader interface {
	GetByExternalID(ctx context.Context, externalID string, limit int) ([]repository.LogEntry, error)
}

type Handler struct {
	paymentService   *service.PaymentService
	provisionService *service.ProvisionService
	referralService  *service.ReferralService
	userService      *service.UserService
	servers          service.VpsStore
	ippool           service.IPPool
	promos           service.PromoStore
	status           StatusClient
	audit            AuditReader
	queue            service.Enqueuer
	cryptoBotToken   string
}

func NewHandler(
	paymentService *service.PaymentService,
	provisionService *service.ProvisionService,
	referralService *service.ReferralService,
	userService *service.UserService,
	servers service.VpsStore,
	ippool service.IPPool,
	promos service.PromoStore,
	status StatusClient,
	audit AuditReader,
	queue service.Enqueuer,
	cryptoBotToken string,
) *Handler {
	return &Handler{
		paymentService:   paymentService,
		provisionService: provisionService,
		referralService:  referralService,
		userService:      userService,
		servers:          servers,
		ippool:           ippool,
		promos:           promos,
		status:           status,
		audit:            audit,
		queue:            queue,
		cryptoBotToken:   cryptoBotToken,
	}
}

// ==================== Webhook Handlers ====================

// YooKassaWebhook receives card-payment notifications. The source was
// verified by the IP allowlist middleware. Fulfillment runs in the
// worker pool; the provider always gets a prompt 200 so it does not
// retry into a slow hypervisor call.
func (h *Handler) YooKassaWebhook(c *gin.Context) {
	var event models.YooKassaEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	switch event.Event {
	case "payment.succeeded":
		h.queue.Enqueue(event.Object.ID)
	case "payment.canceled":
		if err := h.paymentService.MarkCanceled(c.Request.Context(), event.Object.ID); err != nil {
			log.Printf("[http] Cancel for %s failed: %v", event.Object.ID, err)
		}
	default:
		log.Printf("[http] Ignoring yookassa event %q", event.Event)
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CryptoBotWebhook receives invoice notifications, authenticated by the
// HMAC signature over the raw body.
func (h *Handler) CryptoBotWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	signature := c.GetHeader("Crypto-Pay-API-Signature")
	if !client.VerifyCryptoBotSignature(h.cryptoBotToken, body, signature) {
		c.JSON(http.StatusForbidden, gin.H{"error": "bad signature"})
		return
	}

	var update models.CryptoBotUpdate
	if err := json.Unmarshal(body, &update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad payload"})
		return
	}

	if update.UpdateType == "invoice_paid" {
		h.queue.Enqueue(strconv.FormatInt(update.Payload.InvoiceID, 10))
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ==================== Internal API Handlers ====================

// Fulfill replays fulfillment for a confirmed payment, used for manual
// reconciliation when a webhook was lost or a run crashed. Runs
// synchronously so the operator sees the outcome.
func (h *Handler) Fulfill(c *gin.Context) {
	var req models.FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.provisionService.Fulfill(c.Request.Context(), req.ExternalID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SyncUser upserts a Telegram account, called by the bot backend on
// every /start. Carries the referral deep-link payload when present.
func (h *Handler) SyncUser(c *gin.Context) {
	var req models.SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.userService.Sync(c.Request.Context(), req.OwnerID, req.Username, req.FullName, req.ReferrerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "is_banned": u.IsBanned})
}

// GetFulfillmentLog returns the audit trail for one payment.
func (h *Handler) GetFulfillmentLog(c *gin.Context) {
	externalID := c.Param("external_id")
	entries, err := h.audit.GetByExternalID(c.Request.Context(), externalID, 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// GetPoolStatus reports how many addresses remain free.
func (h *Handler) GetPoolStatus(c *gin.Context) {
	free, err := h.ippool.FreeCount(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"free": free})
}

// CreatePromo registers a new discount code.
func (h *Handler) CreatePromo(c *gin.Context) {
	var req models.CreatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	promoType := models.PromoType(req.Type)
	switch promoType {
	case models.PromoPercent, models.PromoFixedRUB, models.PromoFixedUSDT:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown promo type"})
		return
	}
	if req.Value <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be positive"})
		return
	}

	onePerUser := true
	if req.OnePerUser != nil {
		onePerUser = *req.OnePerUser
	}
	p := &models.PromoCode{
		Code:        req.Code,
		Type:        promoType,
		Value:       req.Value,
		MaxUses:     req.MaxUses,
		IsActive:    true,
		ExpiresAt:   req.ExpiresAt,
		OnlyTariffs: req.OnlyTariffs,
		OnePerUser:  onePerUser,
		CreatedBy:   req.CreatedBy,
	}
	if err := h.promos.Create(c.Request.Context(), p); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": p.ID, "code": p.Code})
}

// ListPromos returns the most recent codes with their usage counters.
func (h *Handler) ListPromos(c *gin.Context) {
	promos, err := h.promos.List(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"promos": promos})
}

// DeactivatePromo turns a code off; existing usages are kept.
func (h *Handler) DeactivatePromo(c *gin.Context) {
	found, err := h.promos.Deactivate(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "promo not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deactivated"})
}

// GetNodeStatus reports the hypervisor host's utilization.
func (h *Handler) GetNodeStatus(c *gin.Context) {
	status, err := h.status.NodeStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ==================== User API Handlers ====================

// CreatePayment opens a payment session for a new server or a renewal.
func (h *Handler) CreatePayment(c *gin.Context) {
	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := c.GetInt64("ownerID")
	p, payURL, err := h.paymentService.CreateIntent(
		c.Request.Context(), ownerID, req.TariffID, models.PaymentProvider(req.Provider), req.RenewVpsID, req.PromoCode)
	if err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.CreatePaymentResponse{
		ExternalID: p.ExternalID,
		PayURL:     payURL,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Discount:   p.Discount,
	})
}

func paymentErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrUnknownTariff),
		errors.Is(err, service.ErrProviderDisabled),
		errors.Is(err, service.ErrPromoInvalid),
		errors.Is(err, service.ErrPromoNotApplicable):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPromoExhausted),
		errors.Is(err, service.ErrPromoAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden
	case errors.Is(err, service.ErrLimitReached):
		return http.StatusConflict
	case errors.Is(err, service.ErrCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// CheckPayment is the user's "I paid" button: it polls the provider and
// triggers fulfillment when the money is confirmed.
func (h *Handler) CheckPayment(c *gin.Context) {
	ownerID := c.GetInt64("ownerID")
	externalID := c.Param("external_id")

	status, err := h.paymentService.CheckAndFulfill(c.Request.Context(), ownerID, externalID)
	if err != nil {
		c.JSON(paymentErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	message := "Оплата ещё не поступила."
	switch status {
	case models.PaymentStatusPaid:
		message = "Оплата получена, сервер выдаётся."
	case models.PaymentStatusFailed:
		message = "Платёж отменён."
	}

	c.JSON(http.StatusOK, models.CheckPaymentResponse{
		ExternalID: externalID,
		Status:     string(status),
		Message:    message,
	})
}

// GetMyServers lists the owner's servers with best-effort live state.
func (h *Handler) GetMyServers(c *gin.Context) {
	ownerID := c.GetInt64("ownerID")

	servers, err := h.servers.GetByOwner(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := models.ServerListResponse{Servers: make([]models.ServerInfo, 0, len(servers))}
	for _, v := range servers {
		info := models.ServerInfo{
			ID:        v.ID,
			Hostname:  v.Hostname,
			IP:        v.IP,
			TariffID:  v.TariffID,
			Status:    string(v.Status),
			ExpiresAt: v.ExpiresAt.Format("2006-01-02"),
		}
		if v.Status == models.VpsStatusActive {
			if live, err := h.status.ContainerStatus(c.Request.Context(), v.VMID); err == nil {
				info.Running = &live.Running
				info.CPUPct = live.CPUPct
			}
		}
		resp.Servers = append(resp.Servers, info)
	}

	c.JSON(http.StatusOK, resp)
}

// SetAutoRenew toggles balance-funded automatic renewal for one server.
func (h *Handler) SetAutoRenew(c *gin.Context) {
	ownerID := c.GetInt64("ownerID")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad server id"})
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := h.servers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if v.OwnerID != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your server"})
		return
	}

	if err := h.servers.SetAutoRenew(c.Request.Context(), id, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"auto_renew": req.Enabled})
}

// RebootServer restarts the caller's container.
func (h *Handler) RebootServer(c *gin.Context) {
	ownerID := c.GetInt64("ownerID")
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad server id"})
		return
	}

	v, err := h.servers.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if v.OwnerID != ownerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your server"})
		return
	}
	if v.Status != models.VpsStatusActive {
		c.JSON(http.StatusConflict, gin.H{"error": "server is not active"})
		return
	}

	if err := h.status.RebootContainer(c.Request.Context(), v.VMID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rebooting"})
}

// GetMyBalance reports the owner's referral bonus balances.
func (h *Handler) GetMyBalance(c *gin.Context) {
	ownerID := c.GetInt64("ownerID")
	rub, usdt, err := h.referralService.Balance(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance_rub": rub, "balance_usdt": usdt})
}

// GetTariffs serves the public tariff catalog.
func (h *Handler) GetTariffs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tariffs": config.Tariffs()})
}
