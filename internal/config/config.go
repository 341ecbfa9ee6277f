// Package config provides configuration for the tutor service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tutor configuration.
type Config struct {
	// Server settings
	HTTPPort     int `yaml:"http_port"`
	InternalPort int `yaml:"internal_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// Auth
	JWTSecret string `yaml:"jwt_secret"`

	// Completion provider
	LLMProvider    string  `yaml:"llm_provider"` // openai, ark or mock
	OpenAIAPIKey   string  `yaml:"openai_api_key"`
	OpenAIBaseURL  string  `yaml:"openai_base_url"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`

	// Ark (Volcengine) settings, used when LLMProvider is "ark"
	ArkAPIKey    string `yaml:"ark_api_key"`
	ArkAccessKey string `yaml:"ark_access_key"`
	ArkSecretKey string `yaml:"ark_secret_key"`
	ArkModel     string `yaml:"ark_model"`
	ArkBaseURL   string `yaml:"ark_base_url"`
	ArkRegion    string `yaml:"ark_region"`

	// Conversation engine
	HistoryLimit     int    `yaml:"history_limit"`
	StreamBuffer     int    `yaml:"stream_buffer"`
	PartialPolicy    string `yaml:"partial_policy"` // persist or drop
	MaxMessageLength int    `yaml:"max_message_length"`

	// Timeouts
	ProviderTimeout time.Duration `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`

	// WebSocket settings
	WSPingInterval   time.Duration `yaml:"-"`
	WSWriteTimeout   time.Duration `yaml:"-"`
	WSReadTimeout    time.Duration `yaml:"-"`
	WSMaxMessageSize int64         `yaml:"ws_max_message_size"`

	// Policy
	PolicyFile string `yaml:"policy_file"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Millisecond mirrors of the durations above, as written in a config file.
	ProviderTimeoutMs int `yaml:"provider_timeout_ms"`
	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`
	WSPingIntervalMs  int `yaml:"ws_ping_interval_ms"`
	WSWriteTimeoutMs  int `yaml:"ws_write_timeout_ms"`
	WSReadTimeoutMs   int `yaml:"ws_read_timeout_ms"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{
		HTTPPort:          3000,
		InternalPort:      3001,
		DatabaseURL:       "file:tutor.db?cache=shared&mode=rwc",
		JWTSecret:         "dev-secret-change-me",
		LLMProvider:       "openai",
		ChatModel:         "gpt-4o-mini-2024-07-18",
		EmbeddingModel:    "text-embedding-3-small",
		MaxTokens:         1000,
		Temperature:       0.7,
		ArkBaseURL:        "https://ark.cn-beijing.volces.com/api/v3",
		ArkRegion:         "cn-beijing",
		HistoryLimit:      20,
		StreamBuffer:      16,
		PartialPolicy:     "persist",
		MaxMessageLength:  4000,
		WSMaxMessageSize:  65536,
		LogLevel:          "info",
		ProviderTimeoutMs: 60000,
		ShutdownTimeoutMs: 10000,
		WSPingIntervalMs:  30000,
		WSWriteTimeoutMs:  10000,
		WSReadTimeoutMs:   60000,
	}
	cfg.resolveDurations()
	return cfg
}

// Load loads configuration from an optional YAML file (CONFIG_FILE) and then
// from environment variables, which take precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.HTTPPort = getEnvInt("HTTP_PORT", getEnvInt("PORT", cfg.HTTPPort))
	cfg.InternalPort = getEnvInt("INTERNAL_PORT", cfg.InternalPort)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.LLMProvider = strings.ToLower(getEnv("LLM_PROVIDER", cfg.LLMProvider))
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.MaxTokens = getEnvInt("LLM_MAX_TOKENS", cfg.MaxTokens)
	cfg.Temperature = getEnvFloat("LLM_TEMPERATURE", cfg.Temperature)
	cfg.ArkAPIKey = getEnv("ARK_API_KEY", cfg.ArkAPIKey)
	cfg.ArkAccessKey = getEnv("ARK_ACCESS_KEY", cfg.ArkAccessKey)
	cfg.ArkSecretKey = getEnv("ARK_SECRET_KEY", cfg.ArkSecretKey)
	cfg.ArkModel = getEnv("ARK_MODEL", cfg.ArkModel)
	cfg.ArkBaseURL = getEnv("ARK_BASE_URL", cfg.ArkBaseURL)
	cfg.ArkRegion = getEnv("ARK_REGION", cfg.ArkRegion)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.StreamBuffer = getEnvInt("STREAM_BUFFER", cfg.StreamBuffer)
	cfg.PartialPolicy = strings.ToLower(getEnv("PARTIAL_POLICY", cfg.PartialPolicy))
	cfg.MaxMessageLength = getEnvInt("MAX_MESSAGE_LENGTH", cfg.MaxMessageLength)
	cfg.WSMaxMessageSize = int64(getEnvInt("WS_MAX_MESSAGE_SIZE", int(cfg.WSMaxMessageSize)))
	cfg.PolicyFile = getEnv("POLICY_FILE", cfg.PolicyFile)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	cfg.ProviderTimeoutMs = getEnvInt("PROVIDER_TIMEOUT_MS", cfg.ProviderTimeoutMs)
	cfg.ShutdownTimeoutMs = getEnvInt("SHUTDOWN_TIMEOUT_MS", cfg.ShutdownTimeoutMs)
	cfg.WSPingIntervalMs = getEnvInt("WS_PING_INTERVAL_MS", cfg.WSPingIntervalMs)
	cfg.WSWriteTimeoutMs = getEnvInt("WS_WRITE_TIMEOUT_MS", cfg.WSWriteTimeoutMs)
	cfg.WSReadTimeoutMs = getEnvInt("WS_READ_TIMEOUT_MS", cfg.WSReadTimeoutMs)
	cfg.resolveDurations()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) resolveDurations() {
	c.ProviderTimeout = time.Duration(c.ProviderTimeoutMs) * time.Millisecond
	c.ShutdownTimeout = time.Duration(c.ShutdownTimeoutMs) * time.Millisecond
	c.WSPingInterval = time.Duration(c.WSPingIntervalMs) * time.Millisecond
	c.WSWriteTimeout = time.Duration(c.WSWriteTimeoutMs) * time.Millisecond
	c.WSReadTimeout = time.Duration(c.WSReadTimeoutMs) * time.Millisecond
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	if c.HistoryLimit < 1 {
		return fmt.Errorf("HISTORY_LIMIT must be at least 1, got %d", c.HistoryLimit)
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("STREAM_BUFFER must be at least 1, got %d", c.StreamBuffer)
	}
	if c.MaxMessageLength < 1 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be at least 1, got %d", c.MaxMessageLength)
	}
	switch c.PartialPolicy {
	case "persist", "drop":
	default:
		return fmt.Errorf("PARTIAL_POLICY must be persist or drop, got %q", c.PartialPolicy)
	}
	switch c.LLMProvider {
	case "openai", "ark", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER must be openai, ark or mock, got %q", c.LLMProvider)
	}
	if c.ProviderTimeout < 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT_MS must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_MS must be positive, got %d", c.ShutdownTimeoutMs)
	}
	if c.WSPingInterval <= 0 || c.WSReadTimeout <= 0 || c.WSWriteTimeout <= 0 {
		return fmt.Errorf("WS_PING_INTERVAL_MS, WS_READ_TIMEOUT_MS and WS_WRITE_TIMEOUT_MS must be positive")
	}
	// pongs must arrive before the read deadline expires
	if c.WSPingInterval >= c.WSReadTimeout {
		return fmt.Errorf("WS_PING_INTERVAL_MS (%d) must be less than WS_READ_TIMEOUT_MS (%d)", c.WSPingIntervalMs, c.WSReadTimeoutMs)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
