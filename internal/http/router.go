package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skyden/vps-platform/provisioning-service/internal/config"
)

type Server struct {
	router  *gin.Engine
	handler *Handler
	cfg     *config.Config
}

// Per-user request ceiling across the authenticated API.
var userRateLimiter = NewRateLimiter(30, time.Minute)

func NewServer(cfg *config.Config, handler *Handler) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		handler: handler,
		cfg:     cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "provisioning-service",
		})
	})

	// Payment provider callbacks. Each is authenticated its provider's
	// way: source-IP allowlist for YooKassa, HMAC for CryptoBot.
	webhooks := s.router.Group("/webhooks")
	{
		webhooks.POST("/yookassa", YooKassaIPMiddleware(), s.handler.YooKassaWebhook)
		webhooks.POST("/cryptobot", s.handler.CryptoBotWebhook)
	}

	// Internal API - operator tooling and service-to-service calls
	internal := s.router.Group("/api/internal")
	internal.Use(InternalAuthMiddleware(s.cfg.InternalSecret))
	{
		internal.POST("/fulfill", s.handler.Fulfill)
		internal.POST("/users/sync", s.handler.SyncUser)
		internal.GET("/payments/:external_id/log", s.handler.GetFulfillmentLog)
		internal.POST("/promos", s.handler.CreatePromo)
		internal.GET("/promos", s.handler.ListPromos)
		internal.DELETE("/promos/:code", s.handler.DeactivatePromo)
		internal.GET("/pool", s.handler.GetPoolStatus)
		internal.GET("/node/status", s.handler.GetNodeStatus)
	}

	// User API - requires JWT issued by the bot backend
	user := s.router.Group("/api/v1")
	user.Use(JWTAuthMiddleware(s.cfg.JWT.SecretKey))
	user.Use(RateLimitMiddleware(userRateLimiter))
	{
		user.POST("/payments", s.handler.CreatePayment)
		user.GET("/payments/:external_id", s.handler.CheckPayment)

		user.GET("/my/servers", s.handler.GetMyServers)
		user.POST("/my/servers/:id/reboot", s.handler.RebootServer)
		user.POST("/my/servers/:id/autorenew", s.handler.SetAutoRenew)
		user.GET("/my/balance", s.handler.GetMyBalance)
	}

	// Public API - no authentication required
	public := s.router.Group("/api/v1/public")
	{
		public.GET("/tariffs", s.handler.GetTariffs)
	}
}

func (s *Server) Run(addr string) error {
	return s.router.Run(addr)
}
