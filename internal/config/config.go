// Package config loads runtime configuration from defaults, an optional YAML
// file, and environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all runtime configuration.
type Config struct {
	// HTTP
	ListenAddr  string `koanf:"listen_addr"`
	MetricsAddr string `koanf:"metrics_addr"` // "" = disabled
	TrustProxy  bool   `koanf:"trust_proxy"`  // honour X-Forwarded-For

	// Record store
	StorageBackend  string        `koanf:"storage_backend"` // memory | bolt
	DataDir         string        `koanf:"data_dir"`
	RecordTTL       time.Duration `koanf:"record_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// Store-front links and install-assist flow
	PlayStoreURL    string `koanf:"play_store_url"`
	AppStoreURL     string `koanf:"app_store_url"`
	AppServiceURL   string `koanf:"app_service_url"`
	ClipboardPrefix string `koanf:"clipboard_prefix"`

	// App-link verification files
	AndroidPackage          string   `koanf:"android_package"`
	AndroidCertFingerprints []string `koanf:"android_cert_fingerprints"`
	IOSAppID                string   `koanf:"ios_app_id"`

	// Operational
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`
}

// defaults is the lowest-priority layer.
var defaults = map[string]any{
	"listen_addr":               ":3000",
	"metrics_addr":              ":9090",
	"trust_proxy":               true,
	"storage_backend":           "memory",
	"data_dir":                  "/data",
	"record_ttl":                24 * time.Hour,
	"cleanup_interval":          time.Hour,
	"play_store_url":            "https://play.google.com/store/apps/details?id=se.brpsystems.mobility",
	"app_store_url":             "https://apps.apple.com/app/id1490809094",
	"app_service_url":           "https://appservice.brpsystems.net/apps",
	"clipboard_prefix":          "brplink::",
	"android_package":           "se.brpsystems.mobility",
	"android_cert_fingerprints": []string{},
	"ios_app_id":                "46TM43B7XL.se.brpsystems.mobility",
	"log_level":                 "info",
	"log_format":                "json",
}

// Load reads configuration from (lowest → highest priority):
//  1. Built-in defaults
//  2. YAML file at CONFIG_FILE env var path (if set)
//  3. Environment variables (always highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	// Layer 2: optional YAML file.
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", cfgFile, err)
		}
	}

	// Layer 3: environment variables.
	// Transform: "PLAY_STORE_URL" → "play_store_url".
	// ANDROID_CERT_FINGERPRINTS is skipped here and split manually below so
	// a comma-separated value maps onto the string slice.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		if s == "ANDROID_CERT_FINGERPRINTS" {
			return ""
		}
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Normalise string fields.
	cfg.LogLevel = strings.TrimSpace(strings.ToLower(cfg.LogLevel))
	cfg.LogFormat = strings.TrimSpace(strings.ToLower(cfg.LogFormat))
	cfg.StorageBackend = strings.TrimSpace(strings.ToLower(cfg.StorageBackend))

	if raw := strings.TrimSpace(os.Getenv("ANDROID_CERT_FINGERPRINTS")); raw != "" {
		var prints []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prints = append(prints, p)
			}
		}
		cfg.AndroidCertFingerprints = prints
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []string

	if c.ListenAddr == "" {
		errs = append(errs, "LISTEN_ADDR must not be empty")
	}
	if c.StorageBackend != "memory" && c.StorageBackend != "bolt" {
		errs = append(errs, `STORAGE_BACKEND must be "memory" or "bolt"`)
	}
	if c.RecordTTL < time.Minute {
		errs = append(errs, "RECORD_TTL must be at least 1m")
	}
	if c.CleanupInterval < time.Minute {
		errs = append(errs, "CLEANUP_INTERVAL must be at least 1m")
	}
	for name, raw := range map[string]string{
		"PLAY_STORE_URL":  c.PlayStoreURL,
		"APP_STORE_URL":   c.AppStoreURL,
		"APP_SERVICE_URL": c.AppServiceURL,
	} {
		if raw == "" {
			errs = append(errs, name+" is required")
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, name+" must be an absolute URL")
		}
	}

	// DataDir path sanitisation: reject traversal sequences and null bytes.
	if c.StorageBackend == "bolt" {
		if strings.Contains(c.DataDir, "..") {
			errs = append(errs, `DATA_DIR must not contain ".." (directory traversal)`)
		}
		if strings.ContainsRune(c.DataDir, 0) {
			errs = append(errs, "DATA_DIR must not contain null bytes")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}
