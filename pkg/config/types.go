package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sharing  SharingConfig  `yaml:"sharing"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Limits   LimitsConfig   `yaml:"limits"`
}

// ServerConfig holds http and storage settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend     []string `yaml:"backend"`
		Frontend    []string `yaml:"frontend"`
		Admin       []string `yaml:"admin"`
		AllowUnauth bool     `yaml:"allow_unauth"`
	} `yaml:"api_keys"`
	Encryption struct {
		Use           bool   `yaml:"use"`
		MasterKeyHex  string `yaml:"master_key_hex"`
		MasterKeyFile string `yaml:"master_key_file"`
	} `yaml:"encryption"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	AuditDir string `yaml:"audit_dir"`
}

// SharingConfig holds the cross-capsule invite transport settings.
type SharingConfig struct {
	// Peers maps remote capsule ids to base endpoint URLs. Discovery is a
	// deployment concern; the protocol itself only needs an address per
	// already-known capsule id.
	Peers  map[string]string `yaml:"peers"`
	Outbox OutboxConfig      `yaml:"outbox"`
	HTTP   struct {
		Timeout Duration `yaml:"timeout"`
	} `yaml:"http"`
}

// OutboxConfig tunes the async notice delivery queue.
type OutboxConfig struct {
	Capacity     int      `yaml:"capacity"`
	MaxAttempts  int      `yaml:"max_attempts"`
	RetryBackoff Duration `yaml:"retry_backoff"`
}

// CleanupConfig holds configuration for the external-blob cleanup sweeper.
type CleanupConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	BatchSize int    `yaml:"batch_size"`
	DryRun    bool   `yaml:"dry_run"`
}

// LimitsConfig holds storage quotas.
type LimitsConfig struct {
	MaxMemoriesPerCapsule int       `yaml:"max_memories_per_capsule"`
	MaxBlobBytes          SizeBytes `yaml:"max_blob_bytes"`
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Server.Address
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// Duration is a yaml-friendly wrapper over time.Duration accepting Go
// duration strings ("250ms", "2s") or bare milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" {
		*d = 0
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// SizeBytes is a yaml-friendly byte size accepting humanized values
// ("32 KiB", "1MB") or bare byte counts.
type SizeBytes uint64

func (s *SizeBytes) UnmarshalYAML(value *yaml.Node) error {
	v := strings.TrimSpace(value.Value)
	if v == "" {
		*s = 0
		return nil
	}
	if n, err := strconv.ParseUint(v, 10, 64); err == nil {
		*s = SizeBytes(n)
		return nil
	}
	n, err := humanize.ParseBytes(v)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", v, err)
	}
	*s = SizeBytes(n)
	return nil
}
