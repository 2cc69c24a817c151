package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Insecure defaults that must never reach production.
var insecureDefaults = map[string]bool{
	"your-secret-key-change-in-production": true,
	"internal-secret":                      true,
	"":                                     true,
}

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Proxmox        ProxmoxConfig
	YooKassa       YooKassaConfig
	CryptoBot      CryptoBotConfig
	Automation     AutomationConfig
	Telegram       TelegramConfig
	Referral       ReferralConfig
	Limits         LimitsConfig
	GuardTTL       time.Duration
	InternalSecret string
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type JWTConfig struct {
	SecretKey string
}

type ProxmoxConfig struct {
	BaseURL     string
	TokenID     string // user@realm!tokenname
	TokenSecret string
	Node        string
	Storage     string
	Bridge      string
	Gateway     string
	Template    string
	IPPool      []string
	Timeout     time.Duration
}

type YooKassaConfig struct {
	Enabled   bool
	ShopID    string
	SecretKey string
}

type CryptoBotConfig struct {
	Enabled bool
	Token   string
}

type AutomationConfig struct {
	WebhookURL string
	APIKey     string
}

type TelegramConfig struct {
	BotToken       string
	OperatorChatID int64
	OperatorTopic  int
	SupportContact string
}

type ReferralConfig struct {
	Enabled   bool
	BonusRUB  float64
	BonusUSDT float64
}

type LimitsConfig struct {
	MaxVpsPerUser     int
	PaymentsPerMinute int
}

func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Mode: getEnv("GIN_MODE", "release"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "vpsbot"),
			Password: getEnv("DB_PASSWORD", "vpsbot"),
			DBName:   getEnv("DB_NAME", "vpsbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET_KEY", ""),
		},
		Proxmox: ProxmoxConfig{
			BaseURL:     getEnv("PROXMOX_URL", ""),
			TokenID:     getEnv("PROXMOX_TOKEN_ID", "root@pam!bot"),
			TokenSecret: getEnv("PROXMOX_TOKEN_SECRET", ""),
			Node:        getEnv("PROXMOX_NODE", "pve"),
			Storage:     getEnv("PROXMOX_STORAGE", "local-lvm"),
			Bridge:      getEnv("PROXMOX_BRIDGE", "vmbr0"),
			Gateway:     getEnv("PROXMOX_GATEWAY", ""),
			Template:    getEnv("PROXMOX_TEMPLATE", "local:vztmpl/ubuntu-22.04-standard_22.04-1_amd64.tar.zst"),
			IPPool:      getEnvList("PROXMOX_IP_POOL"),
			Timeout:     getEnvDuration("PROXMOX_TIMEOUT", 60*time.Second),
		},
		YooKassa: YooKassaConfig{
			Enabled:   getEnvBool("YOOKASSA_ENABLED", false),
			ShopID:    getEnv("YOOKASSA_SHOP_ID", ""),
			SecretKey: getEnv("YOOKASSA_SECRET_KEY", ""),
		},
		CryptoBot: CryptoBotConfig{
			Enabled: getEnvBool("CRYPTOBOT_ENABLED", false),
			Token:   getEnv("CRYPTOBOT_TOKEN", ""),
		},
		Automation: AutomationConfig{
			WebhookURL: getEnv("AUTOMATION_WEBHOOK_URL", ""),
			APIKey:     getEnv("AUTOMATION_API_KEY", ""),
		},
		Telegram: TelegramConfig{
			BotToken:       getEnv("BOT_TOKEN", ""),
			OperatorChatID: getEnvInt64("OPERATOR_CHAT_ID", 0),
			OperatorTopic:  getEnvInt("OPERATOR_TOPIC_ID", 0),
			SupportContact: getEnv("SUPPORT_CONTACT", "@support"),
		},
		Referral: ReferralConfig{
			Enabled:   getEnvBool("REFERRAL_ENABLED", true),
			BonusRUB:  getEnvFloat("REFERRAL_BONUS_RUB", 50.0),
			BonusUSDT: getEnvFloat("REFERRAL_BONUS_USDT", 0.5),
		},
		Limits: LimitsConfig{
			MaxVpsPerUser:     getEnvInt("MAX_VPS_PER_USER", 5),
			PaymentsPerMinute: getEnvInt("RATE_LIMIT_PAYMENTS", 5),
		},
		// Must stay above worst-case fulfillment latency, which is
		// dominated by container creation on the hypervisor.
		GuardTTL:       getEnvDuration("PAYMENT_GUARD_TTL", 5*time.Minute),
		InternalSecret: getEnv("INTERNAL_SECRET", ""),
	}

	log.Printf("[config] Provisioning service loaded: port=%s db=%s/%s proxmox=%s pool=%d",
		cfg.Server.Port, cfg.Database.Host, cfg.Database.DBName, cfg.Proxmox.BaseURL, len(cfg.Proxmox.IPPool))

	return cfg
}

// Validate rejects insecure secrets before the service comes up.
func (c *Config) Validate() error {
	if insecureDefaults[c.JWT.SecretKey] {
		return fmt.Errorf("JWT_SECRET_KEY must be set to a secure value")
	}
	if len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 characters long")
	}
	if insecureDefaults[c.InternalSecret] {
		return fmt.Errorf("INTERNAL_SECRET must be set to a secure value")
	}
	if len(c.InternalSecret) < 32 {
		return fmt.Errorf("INTERNAL_SECRET must be at least 32 characters long")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN must be set")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList parses a comma-separated env var (e.g. the IP pool).
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
