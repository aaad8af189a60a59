package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_ROUTER_MODEL: Cheaper model for intent classification (default: LLM_MODEL)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 4000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.7)
// - LLM_TIMEOUT: Request timeout in seconds (default: 60)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
// - LLM_PRICES_PATH: JSON price table merged over the built-in defaults (optional)
//
// Agent Configuration:
// - AGENT_MAX_TURNS: Max reasoning/tool-calling turns per request (default: 8)
// - AGENT_TOOL_TIMEOUT: Per-tool execution timeout in seconds (default: 30)
// - AGENT_STREAM_BUFFER: Chunk channel buffer size (default: 64)
//
// Storage Configuration:
// - DB_PATH: SQLite database path (default: /app/data/draftmind.db)
// - RETENTION_DAYS: Session retention window in days (default: 90)
// - RETENTION_CRON: Sweep schedule (default: "0 3 * * *")
//
// HTTP Configuration:
// - HTTP_ADDR: Listen address (default: :8080)

type Config struct {
	// LLM Configuration
	LLM LLMConfig `json:"llm"`

	// Agent Configuration
	Agent AgentConfig `json:"agent"`

	// Storage Configuration
	Storage StorageConfig `json:"storage"`

	// HTTP Configuration
	HTTP HTTPConfig `json:"http"`
}

// LLMConfig holds the configuration for the LLM client
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, etc.)
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	RouterModel string  `json:"router_model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
	PricesPath  string  `json:"prices_path"`
}

// AgentConfig holds the configuration for the turn engine
type AgentConfig struct {
	MaxTurns     int `json:"max_turns"`     // Max reasoning/tool-calling turns per request
	ToolTimeout  int `json:"tool_timeout"`  // Per-tool execution timeout in seconds
	StreamBuffer int `json:"stream_buffer"` // Chunk channel buffer size
}

// StorageConfig holds the database and retention configuration
type StorageConfig struct {
	DBPath        string `json:"db_path"`
	RetentionDays int    `json:"retention_days"`
	RetentionCron string `json:"retention_cron"`
}

// HTTPConfig holds the HTTP server configuration
type HTTPConfig struct {
	Addr string `json:"addr"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			RouterModel: getEnvString("LLM_ROUTER_MODEL", ""),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 60),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
			PricesPath:  getEnvString("LLM_PRICES_PATH", ""),
		},
		Agent: AgentConfig{
			MaxTurns:     getEnvInt("AGENT_MAX_TURNS", 8),
			ToolTimeout:  getEnvInt("AGENT_TOOL_TIMEOUT", 30),
			StreamBuffer: getEnvInt("AGENT_STREAM_BUFFER", 64),
		},
		Storage: StorageConfig{
			DBPath:        getEnvString("DB_PATH", "/app/data/draftmind.db"),
			RetentionDays: getEnvInt("RETENTION_DAYS", 90),
			RetentionCron: getEnvString("RETENTION_CRON", "0 3 * * *"),
		},
		HTTP: HTTPConfig{
			Addr: getEnvString("HTTP_ADDR", ":8080"),
		},
	}

	if config.LLM.RouterModel == "" {
		config.LLM.RouterModel = config.LLM.Model
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Agent.MaxTurns < 1 {
		return fmt.Errorf("AGENT_MAX_TURNS must be at least 1")
	}
	if c.Storage.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
