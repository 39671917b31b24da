// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oddsgate/platform/catalog"
)

// Config is the gateway configuration. Defaults are applied first, then the
// optional YAML file named by GATEWAY_CONFIG_FILE, then the environment.
type Config struct {
	Port          string `yaml:"port"`
	MongoURI      string `yaml:"mongodb_uri"`
	MongoDatabase string `yaml:"mongodb_database"`
	RedisURL      string `yaml:"redis_url"`
	JWTSecret     string `yaml:"-"`
	// Workers > 1 turns the process into a supervisor of that many workers.
	Workers int `yaml:"workers"`

	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// GenericUpstream serves every unmatched route when set.
	GenericUpstream string `yaml:"upstream_api_url"`

	SyncEnabled      bool          `yaml:"sync_enabled"`
	SyncInterval     time.Duration `yaml:"sync_interval"`
	RoyalSyncEnabled bool          `yaml:"royal_sync_enabled"`

	AuditQueueSize    int    `yaml:"audit_queue_size"`
	AuditWorkers      int    `yaml:"audit_workers"`
	AuditFallbackPath string `yaml:"audit_fallback_path"`

	LogLevel        string        `yaml:"log_level"`
	Support         string        `yaml:"support"`
	SupportURL      string        `yaml:"support_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Providers Providers `yaml:"providers"`
}

// Providers holds upstream locations and static credentials.
type Providers struct {
	Catalog    catalog.Endpoints   `yaml:"catalog"`
	SportRadar catalog.Credentials `yaml:"sportradar"`
	Royal      RoyalConfig         `yaml:"royal"`
	Aura       AuraConfig          `yaml:"aura"`
	King       KingConfig          `yaml:"king"`
	Virtual    VirtualConfig       `yaml:"virtual"`
}

// RoyalConfig locates Royal Gaming.
type RoyalConfig struct {
	SocketURL string              `yaml:"socket_url"`
	Sync      catalog.Credentials `yaml:"sync"`
	Player    PlayerConfig        `yaml:"player"`
}

// PlayerConfig carries the live video session parameters of the Royal player.
type PlayerConfig struct {
	CID     string `yaml:"cid"`
	PID     string `yaml:"pid"`
	Token   string `yaml:"token"`
	Expires string `yaml:"expires"`
	Flags   string `yaml:"flags"`
	Options string `yaml:"options"`
	URL     string `yaml:"url"`
}

// AuraConfig locates Aura Casino.
type AuraConfig struct {
	LobbyURL    string `yaml:"lobby_url"`
	OddsURL     string `yaml:"odds_url"`
	ExchangeURL string `yaml:"exchange_url"`
	ResultsURL  string `yaml:"results_url"`
	PlayerURL   string `yaml:"player_url"`
	StreamURL   string `yaml:"stream_url"`
	OperatorID  string `yaml:"operator_id"`
	// The stream fields identify the player session embedded by the
	// streaming page.
	StreamOperatorID string `yaml:"stream_operator_id"`
	UserID           string `yaml:"user_id"`
	PlayerToken      string `yaml:"player_token"`
	SessionToken     string `yaml:"session_token"`
}

// KingConfig locates King Exchange.
type KingConfig struct {
	BaseURL string `yaml:"base_url"`
}

// VirtualConfig locates the virtual sports player.
type VirtualConfig struct {
	BaseURL  string `yaml:"base_url"`
	ClientID string `yaml:"client_id"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Port:            "3000",
		MongoURI:        "mongodb://localhost:27017",
		MongoDatabase:   "oddsgate",
		UpstreamTimeout: 5 * time.Second,
		SyncEnabled:     true,
		SyncInterval:    60 * time.Second,
		AuditQueueSize:  10000,
		AuditWorkers:    4,
		LogLevel:        "INFO",
		ShutdownTimeout: 10 * time.Second,
		Providers: Providers{
			Royal: RoyalConfig{
				SocketURL: "wss://ws.rgcbe2025.co/cgp-ws2",
				Player: PlayerConfig{
					Flags:   "faststart",
					Options: "17",
					URL:     "rtmp://localhost/splay",
				},
			},
			SportRadar: catalog.Credentials{ProviderID: "SportRadar"},
			Aura: AuraConfig{
				LobbyURL:    "https://fawk.app/api/data/getGameData",
				OddsURL:     "https://fawk.app/api/exchange/odds/",
				ExchangeURL: "https://api.f1ojm.com/api/public/exchange/odds/",
				ResultsURL:  "https://fawk.app/result/past_result",
				PlayerURL:   "https://player.fawk.app/",
				StreamURL:   "https://d.fawk.app/#/auth/",
				OperatorID:  "8882",
			},
			King:    KingConfig{BaseURL: "https://playsport09.com/api/exchange/"},
			Virtual: VirtualConfig{BaseURL: "https://vgpclive-vs001.akamaized.net", ClientID: "4418"},
		},
	}
}

// LoadConfig builds the configuration from defaults, file and environment.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars substitutes $VAR, ${VAR} and ${VAR:-default}.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		def := ""
		if idx := strings.Index(name, ":-"); idx != -1 {
			def = name[idx+2:]
			name = name[:idx]
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return def
	})
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.MongoURI = getEnv("MONGODB_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.MongoDatabase)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.GenericUpstream = getEnv("UPSTREAM_API_URL", cfg.GenericUpstream)
	cfg.AuditFallbackPath = getEnv("AUDIT_FALLBACK_PATH", cfg.AuditFallbackPath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Support = getEnv("CONTACT_WHATSAPP", cfg.Support)

	sr := &cfg.Providers.SportRadar
	sr.OperatorID = getEnv("SPORTRADAR_OPERATOR_ID", sr.OperatorID)
	sr.PartnerID = getEnv("SPORTRADAR_PARTNER_ID", sr.PartnerID)
	sr.ProviderID = getEnv("SPORTRADAR_PROVIDER_ID", sr.ProviderID)
	sr.Token = getEnv("SPORTRADAR_TOKEN", sr.Token)
	cfg.Providers.Royal.Sync.Token = getEnv("ROYAL_TOKEN", cfg.Providers.Royal.Sync.Token)

	var errs []error
	var err error
	if cfg.Workers, err = getEnvInt("WORKERS", cfg.Workers); err != nil {
		errs = append(errs, err)
	}
	if cfg.AuditQueueSize, err = getEnvInt("AUDIT_QUEUE_SIZE", cfg.AuditQueueSize); err != nil {
		errs = append(errs, err)
	}
	if cfg.AuditWorkers, err = getEnvInt("AUDIT_WORKERS", cfg.AuditWorkers); err != nil {
		errs = append(errs, err)
	}
	if cfg.UpstreamTimeout, err = getEnvDuration("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncInterval, err = getEnvDuration("SYNC_INTERVAL", cfg.SyncInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	if cfg.SyncEnabled, err = getEnvBool("SYNC_ENABLED", cfg.SyncEnabled); err != nil {
		errs = append(errs, err)
	}
	if cfg.RoyalSyncEnabled, err = getEnvBool("ROYAL_SYNC_ENABLED", cfg.RoyalSyncEnabled); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the gateway cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if c.MongoDatabase == "" {
		errs = append(errs, errors.New("MONGODB_DATABASE is required"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %s", c.UpstreamTimeout))
	}
	if c.SyncInterval <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_INTERVAL must be positive, got %s", c.SyncInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("WORKERS must not be negative, got %d", c.Workers))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// getEnvDuration accepts Go durations ("5s") or plain milliseconds ("5000").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
