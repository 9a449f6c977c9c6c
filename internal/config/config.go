// Package config loads the bot configuration from the environment and
// manages the JWT secret and VAPID keys on disk.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tariel-x/affiliates/internal/monthkey"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	DiscordToken         string `env:"DISCORD_TOKEN"`
	GuildID              string `env:"AFFILIATE_GUILD_ID"`
	AffiliateChannelID   string `env:"AFFILIATE_CHANNEL_ID"`
	LeaderboardChannelID string `env:"LEADERBOARD_CHANNEL_ID"`
	WinnersChannelID     string `env:"WINNERS_CHANNEL_ID"`
	InfoChannelID        string `env:"INFO_CHANNEL_ID"`

	DatabasePath string `env:"DB_PATH" envDefault:"data/affiliates.db"`
	HTTPPort     string `env:"HTTP_PORT" envDefault:"8080"`
	HTTPSPort    string `env:"HTTPS_PORT" envDefault:"443"`
	Domain       string `env:"DOMAIN"`
	KeysDir      string `env:"KEYS_DIR"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	Timezone       string  `env:"AFFILIATE_TIMEZONE" envDefault:"Europe/Amsterdam"`
	LaunchAt       string  `env:"AFFILIATE_LAUNCH_AT"`
	CarryoverMonth string  `env:"AFFILIATE_CARRYOVER_TO_MONTH"`
	TopN           int     `env:"LEADERBOARD_TOP_N" envDefault:"10"`
	ReferralFeeEUR float64 `env:"REFERRAL_FEE_EUR" envDefault:"5"`

	TickInterval          time.Duration `env:"LEADERBOARD_TICK_INTERVAL" envDefault:"10m"`
	TickTimeout           time.Duration `env:"LEADERBOARD_TICK_TIMEOUT" envDefault:"1m"`
	DispatchTimeout       time.Duration `env:"PAYOUT_DISPATCH_TIMEOUT" envDefault:"15m"`
	InviteRefreshInterval time.Duration `env:"INVITE_REFRESH_INTERVAL" envDefault:"60s"`
	PlatformTimeout       time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"10s"`
	RolloverDurable       bool          `env:"ROLLOVER_DURABLE" envDefault:"true"`
	BackfillBatchSize     int           `env:"BACKFILL_BATCH_SIZE" envDefault:"50"`

	JWTSecret       string `env:"JWT_SECRET"`
	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubject    string `env:"VAPID_SUBJECT" envDefault:"mailto:admin@example.com"`

	location *time.Location
	launchAt time.Time
	feeCents int64
}

// Load parses the environment and validates the program settings. It does
// not touch the keys directory; call EnsureKeys for that.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("AFFILIATE_TIMEZONE: %w", err)
	}
	c.location = loc

	switch {
	case c.LaunchAt == "" && c.CarryoverMonth == "":
	case c.LaunchAt == "" || c.CarryoverMonth == "":
		return errors.New("AFFILIATE_LAUNCH_AT and AFFILIATE_CARRYOVER_TO_MONTH must be set together")
	default:
		launch, err := time.Parse(time.RFC3339, c.LaunchAt)
		if err != nil {
			return fmt.Errorf("AFFILIATE_LAUNCH_AT: %w", err)
		}
		if _, err := monthkey.Parse(c.CarryoverMonth); err != nil {
			return fmt.Errorf("AFFILIATE_CARRYOVER_TO_MONTH: %w", err)
		}
		c.launchAt = launch
	}

	if c.ReferralFeeEUR < 0 || math.IsNaN(c.ReferralFeeEUR) || math.IsInf(c.ReferralFeeEUR, 0) {
		return fmt.Errorf("REFERRAL_FEE_EUR: invalid amount %v", c.ReferralFeeEUR)
	}
	c.feeCents = int64(math.Round(c.ReferralFeeEUR * 100))

	if c.TickInterval <= 0 || c.TickTimeout <= 0 || c.DispatchTimeout <= 0 ||
		c.InviteRefreshInterval <= 0 || c.PlatformTimeout <= 0 {
		return errors.New("intervals and timeouts must be positive")
	}
	return nil
}

func (c *Config) Location() *time.Location { return c.location }

func (c *Config) FeeCents() int64 { return c.feeCents }

// MonthKeys builds the month calculator, with the carryover rule when
// configured.
func (c *Config) MonthKeys() (*monthkey.Calculator, error) {
	var opts []monthkey.Option
	if !c.launchAt.IsZero() {
		opts = append(opts, monthkey.WithCarryover(c.launchAt, c.CarryoverMonth))
	}
	return monthkey.New(c.location, opts...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnsureKeys fills JWTSecret and the VAPID keys. Values from the
// environment win, then files in the keys directory; missing keys are
// generated and saved.
func (c *Config) EnsureKeys(logger *slog.Logger) error {
	dir := c.keysDir()

	if c.JWTSecret == "" {
		secret, err := loadOrGenerateJWTSecret(dir, logger)
		if err != nil {
			return err
		}
		c.JWTSecret = secret
	}

	if c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
		public, private, err := loadOrGenerateVAPIDKeys(dir, logger)
		if err != nil {
			return err
		}
		c.VAPIDPublicKey = public
		c.VAPIDPrivateKey = private
	}
	return nil
}

func (c *Config) keysDir() string {
	if c.KeysDir != "" {
		return c.KeysDir
	}
	execPath, err := os.Executable()
	if err != nil {
		return "keys"
	}
	return filepath.Join(filepath.Dir(execPath), "keys")
}

func loadOrGenerateJWTSecret(dir string, logger *slog.Logger) (string, error) {
	path := filepath.Join(dir, "jwt-secret.key")
	if data, err := os.ReadFile(path); err == nil {
		if secret := strings.TrimSpace(string(data)); secret != "" {
			logger.Info("jwt secret loaded", "path", path)
			return secret, nil
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	secret := base64.URLEncoding.EncodeToString(buf)

	if err := writeKey(dir, "jwt-secret.key", secret); err != nil {
		logger.Warn("jwt secret not saved, it will change on restart", "error", err)
	} else {
		logger.Info("jwt secret generated", "path", path)
	}
	return secret, nil
}

func loadOrGenerateVAPIDKeys(dir string, logger *slog.Logger) (public, private string, err error) {
	publicPath := filepath.Join(dir, "vapid-public.key")
	privatePath := filepath.Join(dir, "vapid-private.key")

	pub, pubErr := os.ReadFile(publicPath)
	priv, privErr := os.ReadFile(privatePath)
	if pubErr == nil && privErr == nil {
		public = strings.TrimSpace(string(pub))
		private = strings.TrimSpace(string(priv))
		// webpush expects the raw 32-byte private scalar.
		if raw, err := base64.RawURLEncoding.DecodeString(private); err == nil && len(raw) == 32 {
			logger.Info("vapid keys loaded", "dir", dir)
			return public, private, nil
		}
		logger.Warn("vapid private key has an unexpected format, regenerating", "dir", dir)
	}

	private, public, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	if err := writeKey(dir, "vapid-public.key", public); err != nil {
		logger.Warn("vapid keys not saved", "error", err)
		return public, private, nil
	}
	if err := writeKey(dir, "vapid-private.key", private); err != nil {
		logger.Warn("vapid keys not saved", "error", err)
		return public, private, nil
	}
	logger.Info("vapid keys generated", "dir", dir)
	return public, private, nil
}

func writeKey(dir, name, value string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(value), 0o600)
}
