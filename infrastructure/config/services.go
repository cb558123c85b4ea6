package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadServicesConfig loads the subsystem configuration from config/services.yaml
func LoadServicesConfig() (*ServicesConfig, error) {
	return LoadServicesConfigFromPath(filepath.Join("config", "services.yaml"))
}

// LoadServicesConfigFromPath loads the subsystem configuration from a specific path
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse services config: %w", err)
	}

	for id, settings := range cfg.Services {
		if settings.Port == 0 {
			return nil, fmt.Errorf("subsystem %s: port is required", id)
		}
	}

	return &cfg, nil
}

// LoadServicesConfigOrDefault loads subsystem config or returns default if file not found.
func LoadServicesConfigOrDefault() *ServicesConfig {
	cfg, err := LoadServicesConfig()
	if err != nil {
		return DefaultServicesConfig()
	}
	return cfg
}

// DefaultServicesConfig returns the default enablement for the core's own
// background subsystems. Each entry's Port is the port its standalone debug
// listener would bind when the subsystem is run outside the combined admin
// server; LoadServicesConfig rejects an entry whose Port is 0.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"health-prober": {
				Enabled:     true,
				Port:        8081,
				Description: "periodic liveness probing of registered instances",
			},
			"pool-monitor": {
				Enabled:     true,
				Port:        8082,
				Description: "connection pool sampling and tuning recommendations",
			},
			"cache-coordinator": {
				Enabled:     true,
				Port:        8083,
				Description: "namespaced distributed cache coordination",
			},
			"backup-engine": {
				Enabled:     true,
				Port:        8084,
				Description: "scheduled backup execution and manifest verification",
			},
			"failover-engine": {
				Enabled:     true,
				Port:        8085,
				Description: "failover sequence execution and rollback",
			},
			"dr-orchestrator": {
				Enabled:     true,
				Port:        8086,
				Description: "continuous monitoring and automatic failover triggers",
			},
		},
	}
}
