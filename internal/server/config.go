package server

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/roadmap/internal/diag"
)

// Config holds all service configuration.
type Config struct {
	mu sync.RWMutex

	// Built-in map database
	Database DatabaseConfig `yaml:"database" json:"database"`

	// External providers, registered in list order
	Providers []ProviderConfig `yaml:"providers" json:"providers"`

	// Provider-missing diagnostics
	Diagnostics diag.Config `yaml:"diagnostics" json:"diagnostics"`

	// Server
	Server ServerConfig `yaml:"server" json:"server"`

	path string // file path for save/load
}

type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"` // e.g. /etc/roadmap/map.yaml
}

// ProviderConfig names an overlay provider and where to read it from.
// Source uses the rmio forms: file:, tcp:, serial:, pipe:.
type ProviderConfig struct {
	Name    string `yaml:"name" json:"name"`
	Source  string `yaml:"source" json:"source"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listenAddr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "/etc/roadmap/map.yaml",
		},
		Diagnostics: diag.Config{
			Enabled: false,
			Path:    "/var/log/roadmap",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// LoadConfig reads config from a YAML file, then applies .env and environment
// variable overrides. Falls back to defaults if YAML not found.
func LoadConfig(path string) *Config {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] no config at %s, using defaults", path)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("[config] error parsing %s: %v, using defaults", path, err)
		cfg = DefaultConfig()
		cfg.path = path
	} else {
		log.Printf("[config] loaded from %s", path)
	}

	// Load .env file from the same directory as the config, or from CWD
	envPaths := []string{
		filepath.Join(filepath.Dir(path), ".env"),
		".env",
	}
	for _, ep := range envPaths {
		loadEnvFile(ep)
	}

	cfg.applyEnvOverrides()
	return cfg
}

// loadEnvFile reads a simple KEY=VALUE .env file and sets os env vars.
func loadEnvFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	log.Printf("[config] loading .env from %s", path)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		// Real env takes precedence
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// applyEnvOverrides reads environment variables and overrides config values.
// Supported: MAP_DB_PATH, LISTEN_ADDR, DIAG_ENABLED, DIAG_PATH, PROVIDERS.
// PROVIDERS replaces the provider list with comma-separated name=source
// pairs, all enabled.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAP_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("DIAG_ENABLED"); v != "" {
		c.Diagnostics.Enabled = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("DIAG_PATH"); v != "" {
		c.Diagnostics.Path = v
	}
	if v := os.Getenv("PROVIDERS"); v != "" {
		c.Providers = parseProviders(v)
	}
}

func parseProviders(v string) []ProviderConfig {
	var out []ProviderConfig
	for _, item := range strings.Split(v, ",") {
		name, source, ok := strings.Cut(strings.TrimSpace(item), "=")
		if !ok || name == "" || source == "" {
			log.Printf("[config] ignoring provider entry %q", item)
			continue
		}
		out = append(out, ProviderConfig{Name: name, Source: source, Enabled: true})
	}
	return out
}

// EnabledProviders returns the providers to load, in order.
func (c *Config) EnabledProviders() []ProviderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ProviderConfig
	for _, p := range c.Providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Save writes the config to its YAML file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		c.path = "/etc/roadmap/config.yaml"
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// ToJSON serializes config for the API.
func (c *Config) ToJSON() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c)
}

// UpdateFromJSON applies a partial JSON config update by deep-merging
// incoming fields into the existing config. Fields not present in the
// incoming JSON are preserved.
func (c *Config) UpdateFromJSON(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	currentBytes, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal current config: %w", err)
	}
	var base map[string]interface{}
	if err := json.Unmarshal(currentBytes, &base); err != nil {
		return fmt.Errorf("unmarshal current config: %w", err)
	}

	var patch map[string]interface{}
	if err := json.Unmarshal(data, &patch); err != nil {
		return fmt.Errorf("unmarshal patch: %w", err)
	}

	deepMerge(base, patch)

	merged, err := json.Marshal(base)
	if err != nil {
		return fmt.Errorf("marshal merged config: %w", err)
	}
	return json.Unmarshal(merged, c)
}

// deepMerge recursively merges src into dst. For nested maps, values are
// merged rather than replaced. For all other types, src overwrites dst.
func deepMerge(dst, src map[string]interface{}) {
	for key, srcVal := range src {
		if srcMap, ok := srcVal.(map[string]interface{}); ok {
			if dstMap, ok := dst[key].(map[string]interface{}); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
		}
		dst[key] = srcVal
	}
}
