// Package config handles loading and validation of service configuration.
// Supports both development (env vars or CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/spf13/viper"

	"shopbot/internal/moltin"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// OpsPort serves health, metrics and MCP. Empty disables the ops server.
	OpsPort string

	// OpsHost is the ops listen address, loopback unless set otherwise.
	OpsHost string

	// OpsToken is the bearer token /mcp requires. Empty keeps /mcp closed.
	OpsToken string

	// GCP settings (required in production)
	GCPProject string
	SecretName string

	Telegram TelegramConfig
	Moltin   MoltinConfig
	Redis    RedisConfig

	// ImageDir caches downloaded product images.
	ImageDir string

	// TLSFingerprint makes backend calls present a Chrome TLS fingerprint.
	TLSFingerprint bool
}

// TelegramConfig configures the bot API client.
type TelegramConfig struct {
	Token          string
	PollTimeout    time.Duration
	HandlerTimeout time.Duration
}

// MoltinConfig configures the commerce backend client.
type MoltinConfig struct {
	BaseURL    string
	APIVersion string
	ClientID   string
}

// RedisConfig locates the key-value store holding tokens and sessions.
type RedisConfig struct {
	Host     string
	Port     int
	DB       int
	Password string
}

// secrets is the JSON document stored in Secret Manager.
type secrets struct {
	TelegramToken  string `json:"tg_api"`
	MoltinClientID string `json:"moltin_client_id"`
	RedisPassword  string `json:"redis_password,omitempty"`
	OpsToken       string `json:"ops_token,omitempty"`
}

// Keys double as CONFIG_FILE keys; env var names are the upper-case form.
const (
	keyTelegramToken   = "tg_api"
	keyPollTimeout     = "tg_poll_timeout"
	keyHandlerTimeout  = "handler_timeout"
	keyMoltinClientID  = "moltin_client_id"
	keyMoltinBaseURL   = "moltin_base_url"
	keyMoltinVersion   = "moltin_api_version"
	keyRedisHost       = "redis_host"
	keyRedisPort       = "redis_port"
	keyRedisDB         = "redis_db_num"
	keyRedisPassword   = "redis_password"
	keyImageDir        = "image_dir"
	keyOpsPort         = "ops_port"
	keyOpsHost         = "ops_host"
	keyOpsToken        = "ops_token"
	keyTLSFingerprint  = "tls_fingerprint"
	keyEnvironment     = "environment"
	keyLogLevel        = "log_level"
	keyGCPProject      = "gcp_project"
	keySecretName      = "secret_name"
	envConfigFile      = "CONFIG_FILE"
	defaultSecretName  = "shopbot"
	productionEnv      = "production"
	defaultEnvironment = "development"
)

var defaults = map[string]string{
	keyPollTimeout:    "10s",
	keyHandlerTimeout: "30s",
	keyMoltinBaseURL:  moltin.DefaultBaseURL,
	keyMoltinVersion:  moltin.DefaultAPIVersion,
	keyRedisHost:      "localhost",
	keyRedisPort:      "6379",
	keyRedisDB:        "0",
	keyImageDir:       "Images",
	keyOpsPort:        "8080",
	keyOpsHost:        "127.0.0.1",
	keyTLSFingerprint: "false",
	keyEnvironment:    defaultEnvironment,
	keyLogLevel:       "info",
	keySecretName:     defaultSecretName,
}

var allKeys = []string{
	keyTelegramToken, keyPollTimeout, keyHandlerTimeout,
	keyMoltinClientID, keyMoltinBaseURL, keyMoltinVersion,
	keyRedisHost, keyRedisPort, keyRedisDB, keyRedisPassword,
	keyImageDir, keyOpsPort, keyOpsHost, keyOpsToken, keyTLSFingerprint,
	keyEnvironment, keyLogLevel, keyGCPProject, keySecretName,
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: ENV vars → CONFIG_FILE (if set) → defaults. In production the
// bot token and client ID are then replaced by the Secret Manager secret.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, viper.New(), fetchSecret)
}

type secretFetcher func(ctx context.Context, name string) ([]byte, error)

func load(ctx context.Context, v *viper.Viper, fetch secretFetcher) (*Config, error) {
	// An explicitly empty OPS_PORT disables the ops server.
	v.AllowEmptyEnv(true)
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	for _, key := range allKeys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}
	if err := v.BindEnv(envConfigFile); err != nil {
		return nil, fmt.Errorf("binding %s: %w", envConfigFile, err)
	}

	if path := v.GetString(envConfigFile); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, err
	}

	if cfg.Environment == productionEnv {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", cfg.GCPProject, cfg.SecretName)
		data, err := fetch(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("loading secrets: %w", err)
		}
		if err := cfg.applySecrets(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	port, err := intSetting(v, keyRedisPort)
	if err != nil {
		return nil, err
	}
	db, err := intSetting(v, keyRedisDB)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := durationSetting(v, keyPollTimeout)
	if err != nil {
		return nil, err
	}
	handlerTimeout, err := durationSetting(v, keyHandlerTimeout)
	if err != nil {
		return nil, err
	}
	fingerprint, err := strconv.ParseBool(v.GetString(keyTLSFingerprint))
	if err != nil {
		return nil, fmt.Errorf("%s must be a boolean: %w", strings.ToUpper(keyTLSFingerprint), err)
	}

	return &Config{
		Environment: v.GetString(keyEnvironment),
		LogLevel:    v.GetString(keyLogLevel),
		OpsPort:     v.GetString(keyOpsPort),
		OpsHost:     v.GetString(keyOpsHost),
		OpsToken:    v.GetString(keyOpsToken),
		GCPProject:  v.GetString(keyGCPProject),
		SecretName:  v.GetString(keySecretName),
		Telegram: TelegramConfig{
			Token:          v.GetString(keyTelegramToken),
			PollTimeout:    pollTimeout,
			HandlerTimeout: handlerTimeout,
		},
		Moltin: MoltinConfig{
			BaseURL:    v.GetString(keyMoltinBaseURL),
			APIVersion: v.GetString(keyMoltinVersion),
			ClientID:   v.GetString(keyMoltinClientID),
		},
		Redis: RedisConfig{
			Host:     v.GetString(keyRedisHost),
			Port:     port,
			DB:       db,
			Password: v.GetString(keyRedisPassword),
		},
		ImageDir:       v.GetString(keyImageDir),
		TLSFingerprint: fingerprint,
	}, nil
}

// intSetting parses a numeric setting strictly; viper's GetInt turns garbage into 0.
func intSetting(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", strings.ToUpper(key), err)
	}
	return n, nil
}

func durationSetting(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", strings.ToUpper(key), err)
	}
	return d, nil
}

// applySecrets overrides credentials with the Secret Manager payload.
func (c *Config) applySecrets(data []byte) error {
	var s secrets
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	if s.TelegramToken != "" {
		c.Telegram.Token = s.TelegramToken
	}
	if s.MoltinClientID != "" {
		c.Moltin.ClientID = s.MoltinClientID
	}
	if s.RedisPassword != "" {
		c.Redis.Password = s.RedisPassword
	}
	if s.OpsToken != "" {
		c.OpsToken = s.OpsToken
	}
	return nil
}

// fetchSecret reads a secret version from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{name}/versions/latest
func fetchSecret(ctx context.Context, name string) ([]byte, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: name,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", name, err)
	}
	return result.Payload.Data, nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TG_API is required")
	}
	if c.Moltin.ClientID == "" {
		return fmt.Errorf("MOLTIN_CLIENT_ID is required")
	}
	if _, err := moltin.APIPrefix(c.Moltin.APIVersion); err != nil {
		return fmt.Errorf("MOLTIN_API_VERSION: %w", err)
	}
	u, err := url.Parse(c.Moltin.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid MOLTIN_BASE_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid MOLTIN_BASE_URL %q: scheme must be http or https", c.Moltin.BaseURL)
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("REDIS_PORT %d out of range", c.Redis.Port)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("REDIS_DB_NUM must not be negative")
	}
	if c.OpsPort != "" {
		if _, err := strconv.Atoi(c.OpsPort); err != nil {
			return fmt.Errorf("OPS_PORT must be a number: %w", err)
		}
	}
	if c.Telegram.PollTimeout <= 0 || c.Telegram.HandlerTimeout <= 0 {
		return fmt.Errorf("TG_POLL_TIMEOUT and HANDLER_TIMEOUT must be positive")
	}
	return nil
}

// OpsAddr is the listen address of the ops server.
func (c *Config) OpsAddr() string {
	return net.JoinHostPort(c.OpsHost, c.OpsPort)
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == productionEnv
}
