package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyden/vps-platform/provisioning-service/internal/client"
	"github.com/skyden/vps-platform/provisioning-service/internal/config"
	"github.com/skyden/vps-platform/provisioning-service/internal/db"
	"github.com/skyden/vps-platform/provisioning-service/internal/http"
	"github.com/skyden/vps-platform/provisioning-service/internal/notify"
	"github.com/skyden/vps-platform/provisioning-service/internal/repository"
	"github.com/skyden/vps-platform/provisioning-service/internal/service"
	"github.com/skyden/vps-platform/provisioning-service/internal/worker"
)

func main() {
	log.Println("Starting Provisioning Service...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	pool, err := db.NewPool(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Repositories
	ipPoolRepo := repository.NewIpPoolRepository(pool)
	lockRepo := repository.NewPaymentLockRepository(pool, cfg.GuardTTL)
	paymentRepo := repository.NewPaymentRepository(pool)
	vpsRepo := repository.NewVpsRepository(pool)
	referralRepo := repository.NewReferralRepository(pool)
	promoRepo := repository.NewPromoRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	logRepo := repository.NewLogRepository(pool)

	if err := ipPoolRepo.Seed(context.Background(), cfg.Proxmox.IPPool); err != nil {
		log.Fatalf("Failed to seed ip pool: %v", err)
	}

	// Clients
	proxmoxClient := client.NewProxmoxClient(cfg.Proxmox)
	yooKassaClient := client.NewYooKassaClient(cfg.YooKassa.ShopID, cfg.YooKassa.SecretKey)
	cryptoBotClient := client.NewCryptoBotClient(cfg.CryptoBot.Token)
	automationClient := client.NewAutomationClient(cfg.Automation.WebhookURL, cfg.Automation.APIKey)

	notifier, err := notify.New(cfg.Telegram)
	if err != nil {
		log.Fatalf("Failed to initialize telegram notifier: %v", err)
	}

	// Services
	referralService := service.NewReferralService(referralRepo, notifier, cfg.Referral)

	provisionService := service.NewProvisionService(
		paymentRepo,
		vpsRepo,
		ipPoolRepo,
		lockRepo,
		proxmoxClient,
		referralService,
		notifier,
		automationClient,
		logRepo,
	)

	queue := worker.NewQueue(provisionService, 64)
	queue.Start(2)
	defer queue.Stop()

	paymentService := service.NewPaymentService(
		paymentRepo,
		vpsRepo,
		promoRepo,
		yooKassaClient,
		cryptoBotClient,
		queue,
		cfg.YooKassa,
		cfg.CryptoBot,
		cfg.Limits,
	)

	userService := service.NewUserService(userRepo, referralService, automationClient)

	expiryService := service.NewExpiryService(
		vpsRepo,
		ipPoolRepo,
		proxmoxClient,
		referralRepo,
		notifier,
		automationClient,
	)

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go expiryService.Start(sweepCtx)

	// HTTP server
	handler := http.NewHandler(
		paymentService,
		provisionService,
		referralService,
		userService,
		vpsRepo,
		ipPoolRepo,
		promoRepo,
		proxmoxClient,
		logRepo,
		queue,
		cfg.CryptoBot.Token,
	)
	server := http.NewServer(cfg, handler)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := server.Run(addr); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	stopSweeps()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		queue.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Println("Shutdown timed out waiting for in-flight fulfillments")
	}

	log.Println("Server exited")
}
