// Package config loads queryloom configuration from config.yaml with
// environment variable overrides. Secrets (passwords, API keys, the auth
// signing secret) must only come from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/queryloom/queryloom/pkg/models"
)

// Config holds all configuration for queryloom.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8420"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Engine store (PostgreSQL) configuration
	Database DatabaseConfig `yaml:"database"`

	// MigrationsPath is the directory holding engine store migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// Pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Model strategies. Enhanced serves first; Base is the fallback.
	Enhanced ModelConfig `yaml:"enhanced"`
	Base     ModelConfig `yaml:"base"`

	// SampleDatabasePath is where the bootstrap sqlite database lives.
	// Empty selects an in-memory database.
	SampleDatabasePath string `yaml:"sample_database_path" env:"SAMPLE_DATABASE_PATH" env-default:""`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether bearer tokens are validated.
	// Defaults to true in Load; a cleanenv env-default would clobber an
	// explicit YAML false whenever the env var is unset.
	// Set to false for local development.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION"`

	// Secret is the HMAC signing secret for bearer tokens.
	Secret string `yaml:"-" env:"AUTH_SECRET"` // Secret - not in YAML
}

// DatabaseConfig holds the engine's own PostgreSQL store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"queryloom"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"queryloom"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// Enabled turns the postgres turn store on. When false, turns are kept
	// in memory and lost on restart.
	Enabled bool `yaml:"enabled" env:"PGENABLED" env-default:"false"`
}

// PipelineConfig holds orchestrator and stage tuning.
type PipelineConfig struct {
	// ConfidenceFloor is the minimum intent confidence before the turn
	// terminates with clarification questions.
	ConfidenceFloor float64 `yaml:"confidence_floor" env:"PIPELINE_CONFIDENCE_FLOOR" env-default:"0.5"`
	// RequestTimeoutSeconds bounds one turn end to end.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"PIPELINE_REQUEST_TIMEOUT_SECONDS" env-default:"60"`
	// FuzzyThreshold is the minimum normalized similarity the entity
	// resolver accepts for an approximate match.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" env:"PIPELINE_FUZZY_THRESHOLD" env-default:"0.75"`
	// SynonymsStr is a comma-separated list of term=table or
	// term=table.column pairs extending the resolver's dictionary.
	SynonymsStr string `yaml:"synonyms" env:"PIPELINE_SYNONYMS" env-default:""`
	// Synonyms is the parsed map from SynonymsStr (not from config file).
	Synonyms map[string]string `yaml:"-"`

	// MaxJoins and MaxSubqueryDepth form the complexity budget.
	MaxJoins         int `yaml:"max_joins" env:"PIPELINE_MAX_JOINS" env-default:"8"`
	MaxSubqueryDepth int `yaml:"max_subquery_depth" env:"PIPELINE_MAX_SUBQUERY_DEPTH" env-default:"3"`

	// Execution bounds.
	ExecTimeoutSeconds int `yaml:"exec_timeout_seconds" env:"PIPELINE_EXEC_TIMEOUT_SECONDS" env-default:"30"`
	MaxRows            int `yaml:"max_rows" env:"PIPELINE_MAX_ROWS" env-default:"1000"`
}

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Provider is "anthropic" or "openai" (any OpenAI-compatible endpoint).
	Provider string `yaml:"provider" env-default:""`
	Endpoint string `yaml:"endpoint" env-default:""`
	Model    string `yaml:"model" env-default:""`
	APIKey   string `yaml:"-"` // Secret - from env via UpdateEnv below
}

// Configured reports whether this strategy has a usable endpoint.
func (m *ModelConfig) Configured() bool {
	return m.Provider != "" && m.Model != ""
}

// Load reads configuration from the given YAML path with environment
// variable overrides. A missing file is not an error; env defaults apply.
func Load(path, version string) (*Config, error) {
	cfg := &Config{Version: version}
	cfg.Auth.EnableVerification = true

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()

	if cfg.Auth.EnableVerification && cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("AUTH_SECRET must be set when auth verification is enabled")
	}
	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Pipeline.Synonyms = parseSynonyms(c.Pipeline.SynonymsStr)

	// Model API keys are secrets and come only from the environment.
	if v := os.Getenv("ENHANCED_API_KEY"); v != "" {
		c.Enhanced.APIKey = v
	}
	if v := os.Getenv("BASE_API_KEY"); v != "" {
		c.Base.APIKey = v
	}
	if c.Enhanced.Provider == "" {
		c.Enhanced.Provider = os.Getenv("ENHANCED_PROVIDER")
	}
	if c.Enhanced.Model == "" {
		c.Enhanced.Model = os.Getenv("ENHANCED_MODEL")
	}
	if c.Enhanced.Endpoint == "" {
		c.Enhanced.Endpoint = os.Getenv("ENHANCED_ENDPOINT")
	}
	if c.Base.Provider == "" {
		c.Base.Provider = os.Getenv("BASE_PROVIDER")
	}
	if c.Base.Model == "" {
		c.Base.Model = os.Getenv("BASE_MODEL")
	}
	if c.Base.Endpoint == "" {
		c.Base.Endpoint = os.Getenv("BASE_ENDPOINT")
	}
}

// parseSynonyms parses "term=table.column,term2=table" into a map.
func parseSynonyms(value string) map[string]string {
	synonyms := make(map[string]string)
	if value == "" {
		return synonyms
	}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			synonyms[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
		}
	}
	return synonyms
}

// ConnectionString returns a PostgreSQL connection URL for the engine store.
func (d *DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     d.Database,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// Dialects lists the data-source dialects the connect endpoint accepts.
func Dialects() []string {
	return []string{models.DialectPostgres, models.DialectMSSQL, models.DialectSQLite}
}
