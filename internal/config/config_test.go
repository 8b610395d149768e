package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

func isolate(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("CONFIG_DIR", t.TempDir())
	wd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(wd) })
	os.Chdir(t.TempDir())
}

func TestNewConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := NewConfig(Options{Env: EnvStg, AppName: "midnight"})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.MistTrackPollInterval != 2*time.Second {
		t.Fatalf("expected 2s poll interval, got %v", cfg.MistTrackPollInterval)
	}
	if cfg.RetryMax != 3 {
		t.Fatalf("expected 3 retries, got %d", cfg.RetryMax)
	}
	if cfg.Process("daily") != "midnight.daily" {
		t.Fatalf("unexpected process tag %q", cfg.Process("daily"))
	}
	if cfg.IsDev() {
		t.Fatal("stg must not be dev")
	}
}

func TestNewConfig_EnvOverridesFile(t *testing.T) {
	isolate(t)
	dir := os.Getenv("CONFIG_DIR")
	yaml := "log_level: DEBUG\nmain_wallet: TFileWallet\n"
	if err := os.WriteFile(filepath.Join(dir, "prd.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("MAIN_WALLET", "TEnvWallet")

	cfg, err := NewConfig(Options{Env: EnvPrd})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Fatalf("expected file log level, got %q", cfg.LogLevel)
	}
	if cfg.MainWallet != "TEnvWallet" {
		t.Fatalf("expected env to win over file, got %q", cfg.MainWallet)
	}
}

func TestNewConfig_RejectsBadSelectors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{"unknown env", Options{Env: "qa"}, "invalid environment"},
		{"test date outside dev", Options{Env: EnvPrd, TestDate: "2024/03/01"}, "only allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := NewConfig(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNewConfig_DevLoadsDotEnv(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(".env", []byte("SLACK_WEBHOOK_URL=https://hooks.example/dev\n"), 0o600); err != nil {
		t.Fatalf("failed to write .env: %v", err)
	}
	// registers the restore, then clears so godotenv does not skip the key
	t.Setenv("SLACK_WEBHOOK_URL", "")
	os.Unsetenv("SLACK_WEBHOOK_URL")

	cfg, err := NewConfig(Options{Env: EnvDev, TestDate: "2024/03/01"})
	if err != nil {
		t.Fatalf("NewConfig returned error: %v", err)
	}
	if cfg.SlackWebhookURL != "https://hooks.example/dev" {
		t.Fatalf("expected .env value, got %q", cfg.SlackWebhookURL)
	}
}

func TestTierTable(t *testing.T) {
	cfg := &Config{RiskTierRules: "high:0:high, low:500:moderate"}
	table, err := cfg.TierTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table) != 2 || table[1].MinLevel != risk.Low || !table[1].MinUSDT.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected table %+v", table)
	}

	for _, bad := range []string{"high:0", "extreme:0:high", "low:x:low", "low:0:severe"} {
		if _, err := (&Config{RiskTierRules: bad}).TierTable(); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestAlertRecipients(t *testing.T) {
	cfg := &Config{AlertEmails: " ops@example.com, ,risk@example.com"}
	got := cfg.AlertRecipients()
	if len(got) != 2 || got[0] != "ops@example.com" || got[1] != "risk@example.com" {
		t.Fatalf("unexpected recipients %v", got)
	}
}
