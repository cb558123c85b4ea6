package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/dsrplatform/fleetcore/infrastructure/runtime"
)

// DSRConfig holds environment-driven configuration for the fleet resilience
// core: load balancer, cache coordinator, and disaster recovery settings.
type DSRConfig struct {
	LoadBalancer LoadBalancerConfig
	Cache        CacheClusterConfig
	DR           DisasterRecoveryConfig
	Backup       BackupConfig
	Admin        AdminConfig
	Persistence  PersistenceConfig
}

type LoadBalancerConfig struct {
	HealthCheckInterval time.Duration `env:"DSR_LB_HEALTHCHECK_INTERVAL"`
	FailureThreshold    int           `env:"DSR_LB_FAILURE_THRESHOLD"`
	BreakerCooldown     time.Duration `env:"DSR_LB_BREAKER_COOLDOWN"`
}

type CacheClusterConfig struct {
	Nodes             string        `env:"DSR_CACHE_NODES"`
	DefaultTTLSeconds int           `env:"DSR_CACHE_DEFAULT_TTL_SECONDS"`
	Compression       bool          `env:"DSR_CACHE_COMPRESSION"`
	DefaultTTL        time.Duration `env:"-"`
}

type DisasterRecoveryConfig struct {
	Enabled            bool          `env:"DSR_DR_ENABLED"`
	AutoFailover       bool          `env:"DSR_DR_AUTO_FAILOVER"`
	RTOMinutes         int           `env:"DSR_DR_RTO_MINUTES"`
	RPOMinutes         int           `env:"DSR_DR_RPO_MINUTES"`
	RetentionDays      int           `env:"DSR_DR_RETENTION_DAYS"`
	FailureThreshold   int           `env:"DSR_DR_FAILURE_THRESHOLD"`
	PrimarySite        string        `env:"DSR_DR_PRIMARY_SITE"`
	SecondarySites     string        `env:"DSR_DR_SECONDARY_SITES"`
	MonitoringInterval time.Duration `env:"DSR_DR_MONITORING_INTERVAL"`
	NightlyCronSpec    string        `env:"DSR_DR_NIGHTLY_CRON"`
}

// SecondarySiteList splits the comma-separated DSR_DR_SECONDARY_SITES value.
func (c DisasterRecoveryConfig) SecondarySiteList() []string {
	if strings.TrimSpace(c.SecondarySites) == "" {
		return nil
	}
	parts := strings.Split(c.SecondarySites, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PersistenceConfig selects between the in-memory backend (default, for
// development and tests) and the Postgres-backed backend: production
// deployments set DSR_DB_DSN to opt in.
type PersistenceConfig struct {
	DatabaseDSN    string `env:"DSR_DB_DSN"`
	MigrationsPath string `env:"DSR_DB_MIGRATIONS_PATH"`
}

type BackupConfig struct {
	BasePath       string `env:"DSR_BACKUP_BASE_PATH"`
	Compression    bool   `env:"DSR_BACKUP_COMPRESSION"`
	Encryption     bool   `env:"DSR_BACKUP_ENCRYPTION"`
	EncryptionKey  string `env:"DSR_BACKUP_ENCRYPTION_KEY"`
	Verification   bool   `env:"DSR_BACKUP_VERIFICATION"`
	RemoteEndpoint string `env:"DSR_BACKUP_REMOTE"`
}

type AdminConfig struct {
	Token    string `env:"DSR_ADMIN_TOKEN"`
	HTTPPort int    `env:"DSR_HTTP_PORT"`
}

// DefaultDSRConfig returns the configuration's zero-state defaults, applied
// before environment overrides are decoded.
func DefaultDSRConfig() *DSRConfig {
	return &DSRConfig{
		LoadBalancer: LoadBalancerConfig{
			HealthCheckInterval: 30 * time.Second,
			FailureThreshold:    5,
			BreakerCooldown:     30 * time.Second,
		},
		Cache: CacheClusterConfig{
			DefaultTTLSeconds: 300,
		},
		DR: DisasterRecoveryConfig{
			Enabled:            true,
			AutoFailover:       false,
			RTOMinutes:         240,
			RPOMinutes:         60,
			RetentionDays:      30,
			FailureThreshold:   3,
			MonitoringInterval: time.Minute,
			NightlyCronSpec:    "0 2 * * *",
		},
		Backup: BackupConfig{
			BasePath:     "./data/backups",
			Compression:  true,
			Encryption:   false,
			Verification: true,
		},
		Admin: AdminConfig{
			HTTPPort: 8080,
		},
	}
}

// LoadDSRConfig loads .env (best effort, non-production only), starts from
// defaults, and overlays DSR_* environment variables via envdecode.
func LoadDSRConfig() (*DSRConfig, error) {
	if !runtime.IsProduction() {
		_ = godotenv.Load()
	}

	cfg := DefaultDSRConfig()
	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode DSR config: %w", err)
		}
	}
	cfg.Cache.DefaultTTL = time.Duration(cfg.Cache.DefaultTTLSeconds) * time.Second
	return cfg, nil
}

// CacheNodeList splits the comma-separated DSR_CACHE_NODES value.
func (c CacheClusterConfig) CacheNodeList() []string {
	if strings.TrimSpace(c.Nodes) == "" {
		return nil
	}
	parts := strings.Split(c.Nodes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
