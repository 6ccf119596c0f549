package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64  `mapstructure:"ADMIN_CHAT_ID"`
	AdminEmail       string `mapstructure:"ADMIN_EMAIL"`
	MasterKeySeed    string `mapstructure:"MASTER_KEY_SEED"`
	DB_URL           string `mapstructure:"DB_URL"`
	LogLevel         string `mapstructure:"LOG_LEVEL"`
	MetricsAddr      string `mapstructure:"METRICS_ADDR"`

	Network              string        `mapstructure:"NETWORK"`
	BTCRPCHost           string        `mapstructure:"BTC_RPC_HOST"`
	BTCRPCUser           string        `mapstructure:"BTC_RPC_USER"`
	BTCRPCPass           string        `mapstructure:"BTC_RPC_PASS"`
	BTCRPCTLS            bool          `mapstructure:"BTC_RPC_TLS"`
	StableConfirmations  int64         `mapstructure:"STABLE_CONFIRMATIONS"`
	FeeRate              int64         `mapstructure:"FEE_RATE"`
	PollInterval         time.Duration `mapstructure:"POLL_INTERVAL"`
	MaxSweepAddresses    int           `mapstructure:"MAX_SWEEP_ADDRESSES"`
	ExplorerURL          string        `mapstructure:"EXPLORER_URL"`
	PriceSatoshi         int64         `mapstructure:"PRICE_SATOSHI"`
	RewardUSD            float64       `mapstructure:"REWARD_USD"`
	ReferralRewardUSD    float64       `mapstructure:"REFERRAL_REWARD_USD"`
	RewardWhitelistRaw   string        `mapstructure:"REWARD_WHITELIST"`
	MaxReferralDepth     int           `mapstructure:"MAX_REFERRAL_DEPTH"`
	MaxAttempts          int           `mapstructure:"MAX_ATTEMPTS"`
	CodeLength           int           `mapstructure:"CODE_LENGTH"`
	RetryInterval        time.Duration `mapstructure:"RETRY_INTERVAL"`
	RatesRefreshInterval time.Duration `mapstructure:"RATES_REFRESH_INTERVAL"`
	Salt                 string        `mapstructure:"SALT"`
	DeviceName           string        `mapstructure:"DEVICE_NAME"`
	LanguagesRaw         string        `mapstructure:"LANGUAGES"`
	SendRate             float64       `mapstructure:"SEND_RATE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	FromEmail    string `mapstructure:"FROM_EMAIL"`
	FromName     string `mapstructure:"FROM_NAME"`
}

// WhitelistEntry qualifies emails of one domain for the attestation reward.
type WhitelistEntry struct {
	Domain  string
	Pattern *regexp.Regexp
}

const defaultWhitelist = `@harvard.edu=^[a-z\d_.-]+@harvard\.edu$ ` +
	`@eesti.ee=^(\.?[a-z-]+)+(\.[a-z-]+)+[_.]?\d*@eesti\.ee$`

func setDefaults(v *viper.Viper) {
	v.SetDefault("NETWORK", "testnet3")
	v.SetDefault("LOG_LEVEL", "debug")
	v.SetDefault("STABLE_CONFIRMATIONS", 3)
	v.SetDefault("FEE_RATE", 5)
	v.SetDefault("POLL_INTERVAL", "30s")
	v.SetDefault("MAX_SWEEP_ADDRESSES", 16)
	v.SetDefault("EXPLORER_URL", "https://mempool.space/testnet/tx/")
	v.SetDefault("PRICE_SATOSHI", 50000)
	v.SetDefault("REWARD_USD", 10)
	v.SetDefault("REFERRAL_REWARD_USD", 10)
	v.SetDefault("REWARD_WHITELIST", defaultWhitelist)
	v.SetDefault("MAX_REFERRAL_DEPTH", 5)
	v.SetDefault("MAX_ATTEMPTS", 5)
	v.SetDefault("CODE_LENGTH", 10)
	v.SetDefault("RETRY_INTERVAL", "60s")
	v.SetDefault("RATES_REFRESH_INTERVAL", "5m")
	v.SetDefault("DEVICE_NAME", "Email attestation bot")
	v.SetDefault("LANGUAGES", "en")
	v.SetDefault("SEND_RATE", 25)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("FROM_NAME", "Email attestation bot")
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	configType := strings.TrimPrefix(filepath.Ext(absPath), ".")
	if configType == "" || configType == "env" || strings.HasPrefix(filepath.Base(absPath), ".env") {
		configType = "env"
	}

	v.SetConfigFile(absPath)
	v.SetConfigType(configType)
	v.AutomaticEnv()
	for _, key := range envKeys() {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return config, fmt.Errorf("failed to read config: %w", err)
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, nil
}

// envKeys lists every mapstructure key so AutomaticEnv also fills keys
// missing from the file.
func envKeys() []string {
	return []string{
		"TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID", "ADMIN_EMAIL", "MASTER_KEY_SEED", "DB_URL",
		"LOG_LEVEL", "METRICS_ADDR", "NETWORK", "BTC_RPC_HOST", "BTC_RPC_USER", "BTC_RPC_PASS",
		"BTC_RPC_TLS", "STABLE_CONFIRMATIONS", "FEE_RATE", "POLL_INTERVAL", "MAX_SWEEP_ADDRESSES",
		"EXPLORER_URL", "PRICE_SATOSHI", "REWARD_USD", "REFERRAL_REWARD_USD", "REWARD_WHITELIST",
		"MAX_REFERRAL_DEPTH", "MAX_ATTEMPTS", "CODE_LENGTH", "RETRY_INTERVAL",
		"RATES_REFRESH_INTERVAL", "SALT", "DEVICE_NAME", "LANGUAGES", "SEND_RATE",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "FROM_EMAIL", "FROM_NAME",
	}
}

// Validate reports every missing setting the bot cannot start without.
func (c Config) Validate() error {
	var problems []string
	if c.TelegramBotToken == "" {
		problems = append(problems, "TELEGRAM_BOT_TOKEN is required")
	}
	if c.DB_URL == "" {
		problems = append(problems, "DB_URL is required")
	}
	if c.MasterKeySeed == "" {
		problems = append(problems, "MASTER_KEY_SEED is required")
	}
	if c.SMTPHost == "" {
		problems = append(problems, "please specify SMTP_HOST, SMTP_USER and SMTP_PASSWORD")
	}
	if c.AdminEmail == "" || c.FromEmail == "" {
		problems = append(problems, "please specify ADMIN_EMAIL and FROM_EMAIL")
	}
	if c.Salt == "" {
		problems = append(problems, "please specify SALT")
	}
	if c.PriceSatoshi <= 0 {
		problems = append(problems, "PRICE_SATOSHI must be positive")
	}
	if c.MaxAttempts <= 0 {
		problems = append(problems, "MAX_ATTEMPTS must be positive")
	}
	if c.CodeLength <= 0 {
		problems = append(problems, "CODE_LENGTH must be positive")
	}
	if _, err := c.RewardWhitelist(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// RewardWhitelist parses REWARD_WHITELIST: space separated domain=regex pairs.
// Patterns are always case-insensitive.
func (c Config) RewardWhitelist() ([]WhitelistEntry, error) {
	var entries []WhitelistEntry
	for _, field := range strings.Fields(c.RewardWhitelistRaw) {
		domain, pattern, ok := strings.Cut(field, "=")
		if !ok || domain == "" || pattern == "" {
			return nil, fmt.Errorf("invalid REWARD_WHITELIST entry %q", field)
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid REWARD_WHITELIST pattern for %s: %w", domain, err)
		}
		entries = append(entries, WhitelistEntry{Domain: domain, Pattern: re})
	}
	return entries, nil
}

// Languages returns the configured language codes, English first when absent.
func (c Config) Languages() []string {
	var langs []string
	for _, l := range strings.Split(c.LanguagesRaw, ",") {
		if l = strings.TrimSpace(strings.ToLower(l)); l != "" {
			langs = append(langs, l)
		}
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return langs
}
