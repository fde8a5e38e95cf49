package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Proxy is one upstream egress proxy, parsed from PROXY_LIST
type Proxy struct {
	Host     string
	Port     string
	Username string
	Password string
}

// URL returns the proxy as an http:// URL with credentials
func (p Proxy) URL() string {
	return fmt.Sprintf("http://%s:%s@%s:%s", p.Username, p.Password, p.Host, p.Port)
}

// Config holds all application configuration
type Config struct {
	// Target site
	SiteURL string
	Referer string

	// Fetch layer
	Proxies      []Proxy
	MaxRetries   int
	FetchTimeout time.Duration

	// Reconciliation
	PollInterval     time.Duration
	BackfillCooldown time.Duration

	// Server
	ServerPort string

	// Paths
	DatabaseFile string // $CONFIG_DIR/toonarr.db

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("SITE_URL", "https://toonstream.love/")
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("FETCH_TIMEOUT_SECONDS", 30)
	viper.SetDefault("POLL_INTERVAL_SECONDS", 3)
	viper.SetDefault("BACKFILL_COOLDOWN_MINUTES", 60)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DATABASE_FILE", "toonarr.db")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "toonarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	proxies, err := ParseProxyList(viper.GetString("PROXY_LIST"))
	if err != nil {
		return nil, err
	}

	siteURL := viper.GetString("SITE_URL")
	if !strings.HasSuffix(siteURL, "/") {
		siteURL += "/"
	}

	config := &Config{
		SiteURL: siteURL,
		Referer: siteURL,

		Proxies:      proxies,
		MaxRetries:   viper.GetInt("MAX_RETRIES"),
		FetchTimeout: time.Duration(viper.GetInt("FETCH_TIMEOUT_SECONDS")) * time.Second,

		PollInterval:     time.Duration(viper.GetInt("POLL_INTERVAL_SECONDS")) * time.Second,
		BackfillCooldown: time.Duration(viper.GetInt("BACKFILL_COOLDOWN_MINUTES")) * time.Minute,

		ServerPort: viper.GetString("SERVER_PORT"),

		DatabaseFile: filepath.Join(configDir, viper.GetString("DATABASE_FILE")),

		LogLevel: viper.GetString("LOG_LEVEL"),
	}

	if config.MaxRetries < 1 {
		return nil, fmt.Errorf("MAX_RETRIES must be at least 1")
	}

	return config, nil
}

// ParseProxyList parses a comma-separated list of host:port:user:pass entries
func ParseProxyList(raw string) ([]Proxy, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var proxies []Proxy
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid proxy entry %q: expected host:port:user:pass", entry)
		}

		proxies = append(proxies, Proxy{
			Host:     parts[0],
			Port:     parts[1],
			Username: parts[2],
			Password: parts[3],
		})
	}

	return proxies, nil
}
