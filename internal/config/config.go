package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Query    QueryConfig    `mapstructure:"query"`
	Session  SessionConfig  `mapstructure:"session"`
	Index    IndexConfig    `mapstructure:"index"`
	Redis    RedisConfig    `mapstructure:"redis"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AgentConfig struct {
	DefaultProvider string        `mapstructure:"default_provider"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"`
	RetryJitter     float64       `mapstructure:"retry_jitter"`
	Gemini          GeminiConfig  `mapstructure:"gemini"`
	OpenAI          OpenAIConfig  `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type QueryConfig struct {
	MaxLength            int      `mapstructure:"max_length"`
	InsufficiencyPhrases []string `mapstructure:"insufficiency_phrases"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend"` // memory | redis | sqlite
	IdleExpiry    time.Duration `mapstructure:"idle_expiry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
}

type IndexConfig struct {
	StatusURL    string        `mapstructure:"status_url"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

type SecurityConfig struct {
	// Headers is the hardening header set added to every response.
	Headers   map[string]string `mapstructure:"headers"`
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file path
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/config.yaml"
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if _, statErr := os.Stat(configPath); statErr == nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
		// Config file not found, use defaults and env vars
	}

	// Override with environment variables
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Agent
	v.SetDefault("agent.default_provider", "gemini")
	v.SetDefault("agent.timeout", "30s")
	v.SetDefault("agent.max_attempts", 3)
	v.SetDefault("agent.retry_base_delay", "500ms")
	v.SetDefault("agent.retry_jitter", 0.5)
	v.SetDefault("agent.gemini.model", "gemini-2.5-flash")
	v.SetDefault("agent.openai.model", "gpt-4o-mini")

	// Query
	v.SetDefault("query.max_length", 10000)

	// Session
	v.SetDefault("session.backend", "memory")
	v.SetDefault("session.idle_expiry", "24h")
	v.SetDefault("session.sweep_interval", "10m")
	v.SetDefault("session.sqlite_path", "./maintchat.db")

	// Index
	v.SetDefault("index.probe_timeout", "5s")
	v.SetDefault("index.stale_after", "48h")

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// CORS
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:8501"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Accept", "Authorization", "Content-Type"})
	v.SetDefault("cors.max_age", 300)

	// Security
	v.SetDefault("security.headers", map[string]string{
		"X-Content-Type-Options":    "nosniff",
		"X-Frame-Options":           "DENY",
		"X-XSS-Protection":          "1; mode=block",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	})
	v.SetDefault("security.token_ttl", "15m")
	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests_per_minute", 60)
	v.SetDefault("security.rate_limit.burst", 10)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func bindEnvVars(v *viper.Viper) {
	// Agent credentials
	v.BindEnv("agent.gemini.api_key", "GEMINI_API_KEY")
	v.BindEnv("agent.openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("agent.default_provider", "AGENT_PROVIDER")

	// Index
	v.BindEnv("index.status_url", "INDEX_STATUS_URL")

	// Redis
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Security
	v.BindEnv("security.jwt_secret", "JWT_SECRET")
}
