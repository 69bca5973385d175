package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

const (
	DefaultMaxResponseSizeKB = 10
	DefaultLogStreamTimeout  = 60 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultRefreshPath       = "/api/token/refresh/"
)

// Config holds the runtime configuration of the MCP server.
// It is finalized by Load and treated as immutable afterwards.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	Debug       bool

	BaseURL          string
	AccessToken      string
	RefreshToken     string
	VerifyTLS        bool
	RefreshPath      string
	RequestTimeout   time.Duration
	MaxResponseBytes int
	LogStreamTimeout time.Duration

	RetryMax  int
	RateRPS   int
	RateBurst int

	// Optional token source. When SecretName is set the token pair is read
	// from AWS Secrets Manager instead of the environment.
	SecretName string
	AWSRegion  string

	// Optional integrations; empty values disable them.
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	NATSURL     string
	NATSSubject string
	AdminPort   int
}

// Load reads an optional .env file, then the environment, then command line
// flags. Flags override environment values.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "gims-mcp-server"),
		Env:              GetEnv("ENV", "prod"),
		LogLevel:         GetEnv("LOG_LEVEL", "warn"),
		BaseURL:          GetEnv("GIMS_URL", ""),
		AccessToken:      GetEnv("GIMS_ACCESS_TOKEN", ""),
		RefreshToken:     GetEnv("GIMS_REFRESH_TOKEN", ""),
		VerifyTLS:        GetEnvBool("GIMS_VERIFY_SSL", true),
		RefreshPath:      GetEnv("GIMS_REFRESH_PATH", DefaultRefreshPath),
		RequestTimeout:   GetEnvDuration("GIMS_REQUEST_TIMEOUT", DefaultRequestTimeout),
		MaxResponseBytes: GetEnvInt("GIMS_MAX_RESPONSE_SIZE_KB", DefaultMaxResponseSizeKB) * 1024,
		LogStreamTimeout: GetEnvSeconds("GIMS_LOG_STREAM_TIMEOUT", DefaultLogStreamTimeout),
		RetryMax:         GetEnvInt("GIMS_RETRY_MAX", 2),
		RateRPS:          GetEnvInt("GIMS_RATE_RPS", 10),
		RateBurst:        GetEnvInt("GIMS_RATE_BURST", 20),
		SecretName:       GetEnv("GIMS_SECRET_NAME", ""),
		AWSRegion:        GetEnv("AWS_REGION", "us-east-2"),
		RedisAddr:        GetEnv("REDIS_ADDR", ""),
		RedisDB:          GetEnvInt("REDIS_DB", 0),
		RedisPass:        GetEnv("REDIS_PASS", ""),
		NATSURL:          GetEnv("NATS_URL", ""),
		NATSSubject:      GetEnv("NATS_SUBJECT", "evt.gims.mcp"),
		AdminPort:        GetEnvInt("ADMIN_PORT", 0),
	}

	if err := cfg.applyFlags(args); err != nil {
		return nil, err
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (c *Config) applyFlags(args []string) error {
	fs := pflag.NewFlagSet(c.ServiceName, pflag.ContinueOnError)

	baseURL := fs.String("url", "", "GIMS server URL (or GIMS_URL)")
	access := fs.String("access-token", "", "JWT access token (or GIMS_ACCESS_TOKEN)")
	refresh := fs.String("refresh-token", "", "JWT refresh token for automatic renewal (or GIMS_REFRESH_TOKEN)")
	verify := fs.String("verify-ssl", "", "verify TLS certificates: true/false (or GIMS_VERIFY_SSL)")
	maxKB := fs.Int("max-response-size", 0, "maximum response size in KB (or GIMS_MAX_RESPONSE_SIZE_KB)")
	streamTimeout := fs.Int("log-stream-timeout", 0, "log stream timeout in seconds (or GIMS_LOG_STREAM_TIMEOUT)")
	adminPort := fs.Int("admin-port", 0, "port for /health and /metrics, 0 disables (or ADMIN_PORT)")
	debug := fs.Bool("debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.Changed("url") {
		c.BaseURL = *baseURL
	}
	if fs.Changed("access-token") {
		c.AccessToken = *access
	}
	if fs.Changed("refresh-token") {
		c.RefreshToken = *refresh
	}
	if fs.Changed("verify-ssl") {
		v, err := parseStrictBool(*verify)
		if err != nil {
			return err
		}
		c.VerifyTLS = v
	}
	if fs.Changed("max-response-size") {
		c.MaxResponseBytes = *maxKB * 1024
	}
	if fs.Changed("log-stream-timeout") {
		c.LogStreamTimeout = time.Duration(*streamTimeout) * time.Second
	}
	if fs.Changed("admin-port") {
		c.AdminPort = *adminPort
	}
	c.Debug = *debug
	return nil
}

func parseStrictBool(val string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "false", "0", "no", "off":
		return false, nil
	case "true", "1", "yes", "on":
		return true, nil
	}
	return false, fmt.Errorf("invalid value %q for --verify-ssl: use true, false, 1, 0, yes, no, on or off", val)
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("GIMS URL is required (--url or GIMS_URL env)")
	}
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("GIMS URL %q is not an absolute URL", c.BaseURL)
	}
	if c.SecretName == "" {
		if c.AccessToken == "" {
			return errors.New("GIMS access token is required (--access-token or GIMS_ACCESS_TOKEN env)")
		}
		if c.RefreshToken == "" {
			return errors.New("GIMS refresh token is required (--refresh-token or GIMS_REFRESH_TOKEN env)")
		}
	}
	if c.MaxResponseBytes <= 0 {
		return errors.New("max response size must be positive")
	}
	if c.LogStreamTimeout <= 0 {
		return errors.New("log stream timeout must be positive")
	}
	return nil
}

// APIBaseURL is the root of the automation REST API.
func (c *Config) APIBaseURL() string {
	return c.BaseURL + "/automation"
}
