package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dispatch modes.
const (
	DispatchInProcess = "inprocess"
	DispatchAMQP      = "amqp"
)

type Config struct {
	Port         string
	DBDSN        string
	RedisURL     string
	AMQPURL      string
	Queue        string
	DispatchMode string
	LogLevel     string
	Microsoft    MicrosoftConfig
	Sender       SenderConfig
}

// MicrosoftConfig holds the OAuth app and Graph endpoints used for sending.
type MicrosoftConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
	GraphBaseURL string
	HTTPTimeout  time.Duration
}

// SenderConfig tunes the campaign send loop.
type SenderConfig struct {
	BatchSize          int
	BatchPause         time.Duration
	HeartbeatInterval  time.Duration
	TokenExpiryBuffer  time.Duration
	RunLockTTL         time.Duration
	PartialFailureMark bool
}

const (
	defaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"
	defaultGraphURL = "https://graph.microsoft.com/v1.0"
	defaultScopes   = "openid profile offline_access User.Read Mail.Read Mail.Send"
)

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		DBDSN:        databaseDSN(),
		RedisURL:     os.Getenv("REDIS_URL"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		Queue:        getenv("CAMPAIGN_QUEUE", "campaign_sends"),
		DispatchMode: strings.ToLower(getenv("DISPATCH_MODE", DispatchInProcess)),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		Microsoft: MicrosoftConfig{
			ClientID:     os.Getenv("MICROSOFT_CLIENT_ID"),
			ClientSecret: os.Getenv("MICROSOFT_CLIENT_SECRET"),
			TokenURL:     getenv("MICROSOFT_TOKEN_URL", defaultTokenURL),
			Scopes:       strings.Fields(getenv("MICROSOFT_SCOPES", defaultScopes)),
			GraphBaseURL: strings.TrimRight(getenv("GRAPH_BASE_URL", defaultGraphURL), "/"),
		},
	}

	var err error
	if cfg.Microsoft.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Sender.BatchSize, err = intEnv("SEND_BATCH_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.Sender.BatchPause, err = durationEnv("SEND_BATCH_PAUSE", time.Second); err != nil {
		return nil, err
	}
	if cfg.Sender.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.Sender.TokenExpiryBuffer, err = durationEnv("TOKEN_EXPIRY_BUFFER", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Sender.RunLockTTL, err = durationEnv("RUN_LOCK_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Sender.PartialFailureMark, err = boolEnv("PARTIAL_FAILURE_STATUS", false); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if c.DBDSN == "" {
		return fmt.Errorf("database is not configured: set DB_DSN or DB_USER/DB_HOST/DB_NAME")
	}
	switch c.DispatchMode {
	case DispatchInProcess:
	case DispatchAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when DISPATCH_MODE=%s", DispatchAMQP)
		}
	default:
		return fmt.Errorf("unknown DISPATCH_MODE %q", c.DispatchMode)
	}
	if c.Sender.BatchSize < 1 {
		return fmt.Errorf("SEND_BATCH_SIZE must be positive, got %d", c.Sender.BatchSize)
	}
	return nil
}

func databaseDSN() string {
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		return dsn
	}
	user := os.Getenv("DB_USER")
	host := os.Getenv("DB_HOST")
	name := os.Getenv("DB_NAME")
	if user == "" || host == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, os.Getenv("DB_PASSWORD"), host, getenv("DB_PORT", "5432"), name, getenv("DB_SSLMODE", "disable"),
	)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}

func boolEnv(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", k, err)
	}
	return b, nil
}
