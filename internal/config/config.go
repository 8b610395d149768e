package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Environments accepted by the -m selector.
const (
	EnvDev    = "dev"
	EnvStg    = "stg"
	EnvStgAWS = "stg-aws"
	EnvPrd    = "prd"
	EnvPrdAWS = "prd-aws"
)

var validEnvs = map[string]bool{EnvDev: true, EnvStg: true, EnvStgAWS: true, EnvPrd: true, EnvPrdAWS: true}

// Options are the command-line selectors shared by every entry point.
type Options struct {
	Env      string
	AppName  string
	TestDate string
}

// Config holds application configuration
type Config struct {
	Env      string `mapstructure:"-"`
	AppName  string `mapstructure:"-"`
	TestDate string `mapstructure:"-"`

	DBConn   string `mapstructure:"DB_CONN"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Timezone string `mapstructure:"TIMEZONE"`
	ActorID  int64  `mapstructure:"BATCH_ACTOR_ID"`

	TronGridURL    string `mapstructure:"TRONGRID_URL"`
	TronGridAPIKey string `mapstructure:"TRONGRID_API_KEY"`
	USDTContract   string `mapstructure:"USDT_CONTRACT"`

	MistTrackURL          string        `mapstructure:"MISTTRACK_URL"`
	MistTrackAPIKeyLow    string        `mapstructure:"MISTTRACK_API_KEY_LOW"`
	MistTrackAPIKeyMod    string        `mapstructure:"MISTTRACK_API_KEY_MODERATE"`
	MistTrackAPIKeyHigh   string        `mapstructure:"MISTTRACK_API_KEY_HIGH"`
	MistTrackCoin         string        `mapstructure:"MISTTRACK_COIN"`
	MistTrackPollAttempts int           `mapstructure:"MISTTRACK_POLL_ATTEMPTS"`
	MistTrackPollInterval time.Duration `mapstructure:"MISTTRACK_POLL_INTERVAL"`
	RiskTierRules         string        `mapstructure:"RISK_TIER_RULES"`

	RetryMax          int           `mapstructure:"RETRY_MAX"`
	RetryInitialDelay time.Duration `mapstructure:"RETRY_INITIAL_DELAY"`

	RedisURL          string        `mapstructure:"REDIS_URL"`
	VendorCallsPerMin int64         `mapstructure:"VENDOR_CALLS_PER_MINUTE"`
	VendorMinInterval time.Duration `mapstructure:"VENDOR_MIN_INTERVAL"`

	SlackWebhookURL                string `mapstructure:"SLACK_WEBHOOK_URL"`
	SlackRiskWebhookURL            string `mapstructure:"SLACK_RISK_WEBHOOK_URL"`
	SlackLargeWithdrawalWebhookURL string `mapstructure:"SLACK_LARGE_WITHDRAWAL_WEBHOOK_URL"`
	SlackWalletAlertWebhookURL     string `mapstructure:"SLACK_WALLET_ALERT_WEBHOOK_URL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SenderEmail  string `mapstructure:"SENDER_EMAIL"`
	AlertEmails  string `mapstructure:"ALERT_EMAILS"`

	TelegramToken  string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `mapstructure:"TELEGRAM_CHAT_ID"`

	MainWallet          string `mapstructure:"MAIN_WALLET"`
	WalletDropThreshold string `mapstructure:"WALLET_DROP_THRESHOLD"`
	AlertTimezone       string `mapstructure:"ALERT_TIMEZONE"`

	DailySchedule    string `mapstructure:"DAILY_SCHEDULE"`
	AuditSchedule    string `mapstructure:"AUDIT_SCHEDULE"`
	HourlySchedule   string `mapstructure:"HOURLY_SCHEDULE"`
	MinutelySchedule string `mapstructure:"MINUTELY_SCHEDULE"`
}

func setDefaults() {
	viper.SetDefault("DB_CONN", "host=localhost port=5432 user=batch password=batch dbname=brothers sslmode=disable")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("TIMEZONE", "Asia/Shanghai")
	viper.SetDefault("BATCH_ACTOR_ID", 0)
	viper.SetDefault("TRONGRID_URL", "https://api.trongrid.io")
	viper.SetDefault("USDT_CONTRACT", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	viper.SetDefault("MISTTRACK_URL", "https://openapi.misttrack.io")
	viper.SetDefault("MISTTRACK_COIN", "USDT-TRC20")
	viper.SetDefault("MISTTRACK_POLL_ATTEMPTS", 3)
	viper.SetDefault("MISTTRACK_POLL_INTERVAL", "2s")
	viper.SetDefault("RISK_TIER_RULES", "high:0:high,moderate:0:moderate,unknown:10000000000:moderate")
	viper.SetDefault("RETRY_MAX", 3)
	viper.SetDefault("RETRY_INITIAL_DELAY", "1s")
	viper.SetDefault("VENDOR_CALLS_PER_MINUTE", 30)
	viper.SetDefault("VENDOR_MIN_INTERVAL", "1s")
	viper.SetDefault("SMTP_PORT", "587")
	viper.SetDefault("WALLET_DROP_THRESHOLD", "10000000000") // 10,000 USDT
	viper.SetDefault("ALERT_TIMEZONE", "Asia/Tokyo")
	viper.SetDefault("DAILY_SCHEDULE", "0 0 * * *")
	viper.SetDefault("AUDIT_SCHEDULE", "30 0 * * *")
	viper.SetDefault("HOURLY_SCHEDULE", "@hourly")
	viper.SetDefault("MINUTELY_SCHEDULE", "@every 1m")
}

// envKeys are bound explicitly so they appear in Unmarshal without a default.
var envKeys = []string{
	"DB_CONN", "LOG_LEVEL", "TIMEZONE", "BATCH_ACTOR_ID",
	"TRONGRID_URL", "TRONGRID_API_KEY", "USDT_CONTRACT",
	"MISTTRACK_URL", "MISTTRACK_API_KEY_LOW", "MISTTRACK_API_KEY_MODERATE", "MISTTRACK_API_KEY_HIGH",
	"MISTTRACK_COIN", "MISTTRACK_POLL_ATTEMPTS", "MISTTRACK_POLL_INTERVAL", "RISK_TIER_RULES",
	"RETRY_MAX", "RETRY_INITIAL_DELAY", "REDIS_URL", "VENDOR_CALLS_PER_MINUTE", "VENDOR_MIN_INTERVAL",
	"SLACK_WEBHOOK_URL", "SLACK_RISK_WEBHOOK_URL", "SLACK_LARGE_WITHDRAWAL_WEBHOOK_URL", "SLACK_WALLET_ALERT_WEBHOOK_URL",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SENDER_EMAIL", "ALERT_EMAILS",
	"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID",
	"MAIN_WALLET", "WALLET_DROP_THRESHOLD", "ALERT_TIMEZONE",
	"DAILY_SCHEDULE", "AUDIT_SCHEDULE", "HOURLY_SCHEDULE", "MINUTELY_SCHEDULE",
}

// NewConfig loads configuration for the selected environment. Values come
// from, in increasing priority: defaults, configs/<env>.yaml, .env (dev only),
// and the process environment.
func NewConfig(opts Options) (*Config, error) {
	if opts.Env == "" {
		opts.Env = EnvDev
	}
	if !validEnvs[opts.Env] {
		return nil, fmt.Errorf("invalid environment %q", opts.Env)
	}
	if opts.TestDate != "" && opts.Env != EnvDev {
		return nil, fmt.Errorf("test date override is only allowed in %s", EnvDev)
	}

	if opts.Env == EnvDev {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	setDefaults()
	viper.SetConfigFile(filepath.Join(configDir(), opts.Env+".yaml"))
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	viper.AutomaticEnv()
	for _, k := range envKeys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Env, cfg.AppName, cfg.TestDate = opts.Env, opts.AppName, opts.TestDate

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if _, err := cfg.TierTable(); err != nil {
		return nil, err
	}
	if _, err := cfg.DropThreshold(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "configs"
}

// IsDev reports whether the batch runs once instead of on a schedule.
func (c *Config) IsDev() bool {
	return c.Env == EnvDev
}

// Process is the audit tag stamped on every write.
func (c *Config) Process(job string) string {
	name := c.AppName
	if name == "" {
		name = "batch"
	}
	return name + "." + job
}

// TierTable parses RISK_TIER_RULES ("level:min_usdt:tier,...").
func (c *Config) TierTable() (risk.TierTable, error) {
	if strings.TrimSpace(c.RiskTierRules) == "" {
		return risk.DefaultTierTable(), nil
	}
	var table risk.TierTable
	for _, raw := range strings.Split(c.RiskTierRules, ",") {
		parts := strings.Split(strings.TrimSpace(raw), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid RISK_TIER_RULES entry %q", raw)
		}
		level := risk.ParseLevel(parts[0])
		if string(level) != strings.ToLower(strings.TrimSpace(parts[0])) {
			return nil, fmt.Errorf("invalid risk level in RISK_TIER_RULES entry %q", raw)
		}
		min, err := decimal.NewFromString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid USDT minimum in RISK_TIER_RULES entry %q: %w", raw, err)
		}
		tier, err := risk.ParseTier(parts[2])
		if err != nil {
			return nil, fmt.Errorf("invalid RISK_TIER_RULES entry %q: %w", raw, err)
		}
		table = append(table, risk.TierRule{MinLevel: level, MinUSDT: min, Tier: tier})
	}
	return table, nil
}

// DropThreshold is the main-wallet USDT decrease, in smallest units, that triggers an alert.
func (c *Config) DropThreshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.WalletDropThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid WALLET_DROP_THRESHOLD %q: %w", c.WalletDropThreshold, err)
	}
	return d, nil
}

// AlertRecipients splits ALERT_EMAILS.
func (c *Config) AlertRecipients() []string {
	var out []string
	for _, addr := range strings.Split(c.AlertEmails, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// MistTrackKeys maps each tier to its API key, falling back to the low-tier key.
func (c *Config) MistTrackKeys() map[risk.Tier]string {
	keys := map[risk.Tier]string{
		risk.TierLow:      c.MistTrackAPIKeyLow,
		risk.TierModerate: c.MistTrackAPIKeyMod,
		risk.TierHigh:     c.MistTrackAPIKeyHigh,
	}
	for tier, key := range keys {
		if key == "" {
			keys[tier] = c.MistTrackAPIKeyLow
		}
	}
	return keys
}
