// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (BYTE_ prefix, runtime override)
//  2. Config file (~/.byte/config.yaml)
//  3. Default values
//
// Security: secrets (API keys, JWT secret, database password) are masked in
// MarshalJSON and never logged.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the Gemini API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxIterations indicates the agent iteration budget is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidThinkingBudget indicates the thinking budget is out of range.
	ErrInvalidThinkingBudget = errors.New("invalid thinking budget")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")
)

const (
	// DefaultModelName is the Gemini model used for the dialogue loop.
	DefaultModelName = "gemini-2.5-pro"

	// DefaultEmbedderModel is the Gemini embedder for knowledge-base vectors.
	// gemini-embedding-001 supports truncation to 768 dimensions, matching
	// the pgvector schema (see knowledge.VectorDimension).
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultMaxIterations bounds the agent loop's model invocations per request.
	DefaultMaxIterations = 10

	// DefaultThinkingBudget is the token budget for model reasoning.
	// -1 requests dynamic thinking.
	DefaultThinkingBudget = 1024

	// minJWTSecretLen is the minimum accepted JWT secret length.
	minJWTSecretLen = 32
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
type Config struct {
	// Model configuration
	GeminiAPIKey   string `mapstructure:"gemini_api_key" json:"gemini_api_key"`
	ModelName      string `mapstructure:"model_name" json:"model_name"`
	EmbedderModel  string `mapstructure:"embedder_model" json:"embedder_model"`
	MaxIterations  int    `mapstructure:"max_iterations" json:"max_iterations"`
	ThinkingBudget int32  `mapstructure:"thinking_budget" json:"thinking_budget"`

	// Knowledge base
	KnowledgeTopK int `mapstructure:"knowledge_top_k" json:"knowledge_top_k"`

	// PostgreSQL
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname" json:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode" json:"postgres_sslmode"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
	JWTSecret  string `mapstructure:"jwt_secret" json:"jwt_secret"`

	// Threat-intelligence API keys. All optional: a missing key degrades the
	// corresponding capability to an explanatory error result, it does not
	// prevent startup.
	VirusTotalAPIKey string `mapstructure:"virustotal_api_key" json:"virustotal_api_key"`
	GreyNoiseAPIKey  string `mapstructure:"greynoise_api_key" json:"greynoise_api_key"`
	WhoisXMLAPIKey   string `mapstructure:"whoisxml_api_key" json:"whoisxml_api_key"`
	PhishTankAPIKey  string `mapstructure:"phishtank_api_key" json:"phishtank_api_key"`
	ShodanAPIKey     string `mapstructure:"shodan_api_key" json:"shodan_api_key"`
}

// MarshalJSON masks sensitive fields when the config is serialized,
// e.g. for debug logging.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config // Avoid infinite recursion
	masked := alias(c)
	masked.GeminiAPIKey = mask(c.GeminiAPIKey)
	masked.PostgresPassword = mask(c.PostgresPassword)
	masked.JWTSecret = mask(c.JWTSecret)
	masked.VirusTotalAPIKey = mask(c.VirusTotalAPIKey)
	masked.GreyNoiseAPIKey = mask(c.GreyNoiseAPIKey)
	masked.WhoisXMLAPIKey = mask(c.WhoisXMLAPIKey)
	masked.PhishTankAPIKey = mask(c.PhishTankAPIKey)
	masked.ShodanAPIKey = mask(c.ShodanAPIKey)
	return json.Marshal(masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

// Load reads configuration from defaults, the config file and environment
// variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Config file: ~/.byte/config.yaml (optional)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".byte"))
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BYTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// Missing config file is fine: env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("max_iterations", DefaultMaxIterations)
	v.SetDefault("thinking_budget", DefaultThinkingBudget)
	v.SetDefault("knowledge_top_k", 4)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "byte")
	v.SetDefault("postgres_dbname", "byte")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("server_addr", ":8000")
}

// Validate checks the configuration for out-of-range or missing values.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: BYTE_GEMINI_API_KEY is required", ErrMissingAPIKey)
	}
	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name must not be empty", ErrInvalidModelName)
	}
	if c.MaxIterations < 1 || c.MaxIterations > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidMaxIterations, c.MaxIterations)
	}
	if c.ThinkingBudget < -1 || c.ThinkingBudget > 32768 {
		return fmt.Errorf("%w: must be -1 (dynamic) or between 0 and 32768, got %d", ErrInvalidThinkingBudget, c.ThinkingBudget)
	}
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: BYTE_JWT_SECRET is required", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: must be at least %d bytes", ErrInvalidJWTSecret, minJWTSecretLen)
	}
	return nil
}

// DatabaseURL builds the PostgreSQL connection URL from the config parts.
// The password is URL-escaped to tolerate special characters.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	if c.PostgresUser != "" {
		if c.PostgresPassword != "" {
			u.User = url.UserPassword(c.PostgresUser, c.PostgresPassword)
		} else {
			u.User = url.User(c.PostgresUser)
		}
	}
	q := url.Values{}
	if c.PostgresSSLMode != "" {
		q.Set("sslmode", c.PostgresSSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
