package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvList(t *testing.T) {
	t.Run("comma separated with spaces", func(t *testing.T) {
		os.Setenv("TEST_LIST", "10.0.0.2, 10.0.0.3 ,10.0.0.4")
		defer os.Unsetenv("TEST_LIST")

		got := getEnvList("TEST_LIST")
		if len(got) != 3 || got[0] != "10.0.0.2" || got[2] != "10.0.0.4" {
			t.Errorf("getEnvList() = %v", got)
		}
	})

	t.Run("missing var", func(t *testing.T) {
		if got := getEnvList("TEST_LIST_MISSING"); got != nil {
			t.Errorf("getEnvList() = %v, want nil", got)
		}
	})

	t.Run("empty segments dropped", func(t *testing.T) {
		os.Setenv("TEST_LIST", "10.0.0.2,,")
		defer os.Unsetenv("TEST_LIST")

		if got := getEnvList("TEST_LIST"); len(got) != 1 {
			t.Errorf("getEnvList() = %v, want single entry", got)
		}
	})
}

func TestGetEnvDuration(t *testing.T) {
	os.Setenv("TEST_DUR", "90s")
	defer os.Unsetenv("TEST_DUR")

	if got := getEnvDuration("TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("getEnvDuration() = %v, want 90s", got)
	}
	if got := getEnvDuration("TEST_DUR_MISSING", time.Minute); got != time.Minute {
		t.Errorf("getEnvDuration() = %v, want default 1m", got)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			JWT:            JWTConfig{SecretKey: "0123456789abcdef0123456789abcdef"},
			InternalSecret: "fedcba9876543210fedcba9876543210",
			Telegram:       TelegramConfig{BotToken: "123:abc"},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("short jwt secret rejected", func(t *testing.T) {
		cfg := valid()
		cfg.JWT.SecretKey = "short"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted short JWT secret")
		}
	})

	t.Run("placeholder internal secret rejected", func(t *testing.T) {
		cfg := valid()
		cfg.InternalSecret = "internal-secret"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted placeholder internal secret")
		}
	})

	t.Run("missing bot token rejected", func(t *testing.T) {
		cfg := valid()
		cfg.Telegram.BotToken = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() accepted empty bot token")
		}
	})
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: "5432", User: "u", Password: "p", DBName: "vps", SSLMode: "disable",
	}
	want := "postgres://u:p@db:5432/vps?sslmode=disable"
	if got := c.DSN(); got != want {
		t.Errorf("DSN() = %s, want %s", got, want)
	}
}

func TestTariffCatalog(t *testing.T) {
	t.Run("known tariff", func(t *testing.T) {
		tr, ok := TariffByID("standard")
		if !ok {
			t.Fatal("TariffByID(standard) not found")
		}
		if tr.Cores != 2 || tr.MemoryMB != 2048 || tr.DiskGB != 40 {
			t.Errorf("standard sizing = %d/%d/%d", tr.Cores, tr.MemoryMB, tr.DiskGB)
		}
		if tr.PriceRUB != 450 || tr.PriceUSDT != 5 {
			t.Errorf("standard pricing = %.2f RUB / %.2f USDT", tr.PriceRUB, tr.PriceUSDT)
		}
	})

	t.Run("unknown tariff", func(t *testing.T) {
		if _, ok := TariffByID("mega"); ok {
			t.Error("TariffByID(mega) should not exist")
		}
	})

	t.Run("catalog sorted by price", func(t *testing.T) {
		list := Tariffs()
		if len(list) != 3 {
			t.Fatalf("catalog size = %d, want 3", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].PriceRUB < list[i-1].PriceRUB {
				t.Errorf("catalog not sorted: %s before %s", list[i-1].ID, list[i].ID)
			}
		}
	})
}
