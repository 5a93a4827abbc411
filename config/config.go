// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Verification unavailable policies.
const (
	UnavailableSkip      = "skip"
	UnavailableEliminate = "eliminate"
)

type Config struct {
	Port           int      `toml:"port"`
	DatabaseURL    string   `toml:"database_url"`
	AdminToken     string   `toml:"admin_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
	LogLevel       string   `toml:"log_level"`
	LogFormat      string   `toml:"log_format"`

	Ledger  LedgerConfig  `toml:"ledger"`
	Retry   RetryConfig   `toml:"retry"`
	Relay   RelayConfig   `toml:"relay"`
	Indexer IndexerConfig `toml:"indexer"`
	Oracle  OracleConfig  `toml:"oracle"`
	GitHub  GitHubConfig  `toml:"github"`
	Archive ArchiveConfig `toml:"archive"`
}

type LedgerConfig struct {
	RPCURL    string `toml:"rpc_url"`
	ProgramID string `toml:"program_id"`
	// SponsorKey is the base58 secret key of the fee sponsor / app vault.
	// Only read from the environment.
	SponsorKey          string        `toml:"-"`
	Commitment          string        `toml:"commitment"`
	ConfirmTimeout      time.Duration `toml:"confirm_timeout"`
	ConfirmPollInterval time.Duration `toml:"confirm_poll_interval"`
}

// RetryConfig governs retries of ledger reads. Submissions are never retried.
type RetryConfig struct {
	Enabled      bool          `toml:"enabled"`
	MaxRetries   int           `toml:"max_retries"`
	InitialDelay time.Duration `toml:"initial_delay"`
	MaxDelay     time.Duration `toml:"max_delay"`
}

type RelayConfig struct {
	RateLimitMax             int           `toml:"rate_limit_max"`
	RateLimitWindow          time.Duration `toml:"rate_limit_window"`
	IdempotencyTTL           time.Duration `toml:"idempotency_ttl"`
	IdempotencySize          int           `toml:"idempotency_size"`
	// Upper bound on one shared submit and confirm, detached from the caller.
	SubmitTimeout            time.Duration `toml:"submit_timeout"`
	AllowClientOracleMethods bool          `toml:"allow_client_oracle_methods"`
}

type IndexerConfig struct {
	RefreshInterval time.Duration `toml:"refresh_interval"`
	// Optional single-kind passes between full refreshes; zero disables.
	PactsInterval        time.Duration `toml:"pacts_interval"`
	ProfilesInterval     time.Duration `toml:"profiles_interval"`
	ParticipantsInterval time.Duration `toml:"participants_interval"`
	FetchTimeout         time.Duration `toml:"fetch_timeout"`
}

type OracleConfig struct {
	VerificationInterval time.Duration `toml:"verification_interval"`
	SettlementInterval   time.Duration `toml:"settlement_interval"`
	// SettlementAt, when set ("HH:MM", UTC), runs settlement daily at that
	// time instead of on SettlementInterval.
	SettlementAt      string        `toml:"settlement_at"`
	VerifyTimeout     time.Duration `toml:"verify_timeout"`
	VerifyRate        float64       `toml:"verify_rate"` // calls per second
	UnavailablePolicy string        `toml:"unavailable_policy"`
}

type GitHubConfig struct {
	Token    string `toml:"-"`
	Endpoint string `toml:"endpoint"`
}

// ArchiveConfig points at an S3-compatible bucket (Cloudflare R2 by default).
// Archiving is off while Bucket is empty.
type ArchiveConfig struct {
	AccountID       string `toml:"account_id"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"-"`
	AccessKeySecret string `toml:"-"`
	Bucket          string `toml:"bucket"`
	Prefix          string `toml:"prefix"`
}

func DefaultConfig() *Config {
	return &Config{
		Port:           3000,
		AllowedOrigins: []string{"http://localhost:3000"},
		LogLevel:       "info",
		LogFormat:      "json",
		Ledger: LedgerConfig{
			RPCURL:              "https://api.devnet.solana.com",
			ProgramID:           "HBSRo9sKjWmqTteMRPjVF2xcqratjhF5Hu5GozqctNA4",
			Commitment:          "confirmed",
			ConfirmTimeout:      60 * time.Second,
			ConfirmPollInterval: time.Second,
		},
		Retry: RetryConfig{
			Enabled:      true,
			MaxRetries:   3,
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
		},
		Relay: RelayConfig{
			RateLimitMax:    10,
			RateLimitWindow: time.Minute,
			IdempotencyTTL:  10 * time.Minute,
			IdempotencySize: 4096,
			SubmitTimeout:   90 * time.Second,
		},
		Indexer: IndexerConfig{
			RefreshInterval: 5 * time.Minute,
			FetchTimeout:    30 * time.Second,
		},
		Oracle: OracleConfig{
			VerificationInterval: time.Hour,
			SettlementInterval:   24 * time.Hour,
			VerifyTimeout:        10 * time.Second,
			VerifyRate:           5,
			UnavailablePolicy:    UnavailableSkip,
		},
		GitHub: GitHubConfig{
			Endpoint: "https://api.github.com/graphql",
		},
		Archive: ArchiveConfig{
			Prefix: "snapshots",
		},
	}
}

// Load layers defaults, the optional TOML file at path, then the process
// environment. Call godotenv before Load to pick up a .env file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.AdminToken, "ADMIN_TOKEN")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	setString(&c.Ledger.RPCURL, "SOLANA_CLUSTER_URL")
	setString(&c.Ledger.ProgramID, "PROGRAM_ID")
	setString(&c.Ledger.SponsorKey, "APP_VAULT_PRIVATE_KEY")
	setString(&c.Ledger.Commitment, "LEDGER_COMMITMENT")
	setString(&c.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.GitHub.Endpoint, "GITHUB_GRAPHQL_URL")
	setString(&c.Oracle.UnavailablePolicy, "VERIFICATION_UNAVAILABLE_POLICY")
	setString(&c.Oracle.SettlementAt, "SETTLEMENT_AT")

	setString(&c.Archive.AccountID, "CLOUDFLARE_ACCOUNT_ID")
	setString(&c.Archive.Endpoint, "R2_ENDPOINT")
	setString(&c.Archive.AccessKeyID, "R2_ACCESS_KEY_ID")
	setString(&c.Archive.AccessKeySecret, "R2_ACCESS_KEY_SECRET")
	setString(&c.Archive.Bucket, "R2_BUCKET_NAME")

	ints := []struct {
		dst *int
		key string
	}{
		{&c.Port, "PORT"},
		{&c.Retry.MaxRetries, "RETRY_MAX_RETRIES"},
		{&c.Relay.RateLimitMax, "RELAY_RATE_LIMIT_MAX"},
	}
	for _, e := range ints {
		if err = setInt(e.dst, e.key); err != nil {
			return err
		}
	}

	durations := []struct {
		dst *time.Duration
		key string
	}{
		{&c.Ledger.ConfirmTimeout, "CONFIRM_TIMEOUT"},
		{&c.Retry.InitialDelay, "RETRY_INITIAL_DELAY"},
		{&c.Retry.MaxDelay, "RETRY_MAX_DELAY"},
		{&c.Relay.RateLimitWindow, "RELAY_RATE_LIMIT_WINDOW"},
		{&c.Relay.SubmitTimeout, "RELAY_SUBMIT_TIMEOUT"},
		{&c.Indexer.RefreshInterval, "REFRESH_INTERVAL"},
		{&c.Oracle.VerificationInterval, "VERIFICATION_INTERVAL"},
		{&c.Oracle.SettlementInterval, "SETTLEMENT_INTERVAL"},
		{&c.Oracle.VerifyTimeout, "VERIFY_TIMEOUT"},
	}
	for _, e := range durations {
		if err = setDuration(e.dst, e.key); err != nil {
			return err
		}
	}

	if v := os.Getenv("RETRY_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RETRY_ENABLED: %w", err)
		}
		c.Retry.Enabled = b
	}
	return nil
}

// Validate reports the first setting that would stop the service from running.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Ledger.RPCURL == "" {
		return fmt.Errorf("SOLANA_CLUSTER_URL is required")
	}
	if c.Ledger.ProgramID == "" {
		return fmt.Errorf("PROGRAM_ID is required")
	}
	if c.Ledger.SponsorKey == "" {
		return fmt.Errorf("APP_VAULT_PRIVATE_KEY is required")
	}
	switch c.Ledger.Commitment {
	case "confirmed", "finalized":
	default:
		return fmt.Errorf("ledger commitment must be confirmed or finalized, got %q", c.Ledger.Commitment)
	}
	switch c.Oracle.UnavailablePolicy {
	case UnavailableSkip, UnavailableEliminate:
	default:
		return fmt.Errorf("unavailable policy must be %q or %q, got %q", UnavailableSkip, UnavailableEliminate, c.Oracle.UnavailablePolicy)
	}
	if c.Relay.RateLimitMax <= 0 || c.Relay.RateLimitWindow <= 0 {
		return fmt.Errorf("relay rate limit must be positive")
	}
	if c.Indexer.RefreshInterval <= 0 || c.Oracle.VerificationInterval <= 0 {
		return fmt.Errorf("refresh and verification intervals must be positive")
	}
	if c.Oracle.SettlementAt != "" {
		if _, _, err := c.Oracle.SettlementClock(); err != nil {
			return err
		}
	} else if c.Oracle.SettlementInterval <= 0 {
		return fmt.Errorf("settlement interval must be positive")
	}
	return nil
}

// SettlementClock parses SettlementAt into hour and minute.
func (o OracleConfig) SettlementClock() (uint, uint, error) {
	t, err := time.Parse("15:04", o.SettlementAt)
	if err != nil {
		return 0, 0, fmt.Errorf("settlement_at must be HH:MM, got %q", o.SettlementAt)
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}

// ArchiveEnabled reports whether snapshot uploads are configured.
func (a ArchiveConfig) ArchiveEnabled() bool {
	return a.Bucket != "" && (a.Endpoint != "" || a.AccountID != "")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
