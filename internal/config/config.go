// Package config loads the connector configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"time"
)

// Default service configuration values.
const (
	defaultServiceName    = "darc-connector"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8091
	defaultLogLevel       = "info"
)

// Default database configuration values.
const (
	defaultDBHost          = "localhost"
	defaultDBPort          = 5432
	defaultDBUser          = "postgres"
	defaultDBName          = "darc"
	defaultDBSSLMode       = "disable"
	defaultDBMaxConns      = 25
	defaultDBMaxIdleConns  = 5
	defaultDBConnLifetimeH = 1
)

// Default pipeline behaviour.
const (
	defaultInterval          = "PT5M"
	defaultGateThreshold     = 0.9
	defaultPollAttempts      = 4
	defaultPollBaseDelay     = time.Second
	defaultConverterTimeout  = 10 * time.Minute
	defaultOpenCTITimeout    = 30 * time.Second
	defaultDedupTTL          = 7 * 24 * time.Hour
	defaultInputTokenLimit   = 30000
	defaultModelTemperature  = 0.0
	defaultConverterTLP      = "clear"
	defaultConverterConf     = 90
	defaultRelationshipMode  = "ai"
	defaultConverterModel    = "deepseek:deepseek-chat"
	defaultMigrationsPath    = "file://migrations"
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Gate       GateConfig       `yaml:"gate"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	OpenCTI    OpenCTIConfig    `yaml:"opencti"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"CONNECTOR_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"      yaml:"debug"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `env:"LOG_LEVEL" yaml:"level"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string        `env:"CONNECTOR_DB_HOST"     yaml:"host"`
	Port                  int           `env:"CONNECTOR_DB_PORT"     yaml:"port"`
	User                  string        `env:"CONNECTOR_DB_USER"     yaml:"user"`
	Password              string        `env:"CONNECTOR_DB_PASSWORD" yaml:"password"`
	Database              string        `env:"CONNECTOR_DB_NAME"     yaml:"database"`
	SSLMode               string        `yaml:"sslmode"`
	MaxConnections        int           `yaml:"max_connections"`
	MaxIdleConns          int           `yaml:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
	MigrationsPath        string        `yaml:"migrations_path"`
}

// DSN builds the lib/pq connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds settings for the published-entity dedup cache.
// Disabled by default; publication falls back to knowledge-base lookups only.
type RedisConfig struct {
	Enabled  bool          `env:"CONNECTOR_REDIS_ENABLED"  yaml:"enabled"`
	Addr     string        `env:"CONNECTOR_REDIS_ADDR"     yaml:"addr"`
	Password string        `env:"CONNECTOR_REDIS_PASSWORD" yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// SchedulerConfig holds the run scheduling settings.
type SchedulerConfig struct {
	// Interval is the ISO-8601 duration between pipeline runs.
	Interval string `env:"CONNECTOR_DURATION_PERIOD" yaml:"interval"`
}

// IntervalDuration parses the ISO-8601 run interval.
func (s *SchedulerConfig) IntervalDuration() (time.Duration, error) {
	return ParseISODuration(s.Interval)
}

// ClassifierConfig configures one classifier model version.
type ClassifierConfig struct {
	// Version identifies the model (e.g. "v2", "v3_2"); verdicts are keyed by it.
	Version string `yaml:"version"`
	// Endpoint is the base URL of the model's scoring service.
	Endpoint string `yaml:"endpoint"`
}

// GateConfig holds the classification gate settings.
type GateConfig struct {
	// ConfidenceThreshold is the admission threshold; every verdict's
	// confidence must strictly exceed it.
	ConfidenceThreshold float64            `env:"CONNECTOR_GATE_THRESHOLD" yaml:"confidence_threshold"`
	Classifiers         []ClassifierConfig `yaml:"classifiers"`
	// Keywords feed the keyword-count feature extractor.
	Keywords []string `yaml:"keywords"`
}

// EnrichmentConfig holds the external converter settings.
type EnrichmentConfig struct {
	// Command and Script locate the converter process.
	Command    string `yaml:"command"`
	Script     string `yaml:"script"`
	WorkingDir string `yaml:"working_dir"`
	OutputDir  string `yaml:"output_dir"`

	RelationshipMode  string   `yaml:"relationship_mode"`
	RelationshipModel string   `yaml:"relationship_model"`
	ExtractionModel   string   `yaml:"extraction_model"`
	ContentCheckModel string   `yaml:"content_check_model"`
	Extractions       []string `yaml:"extractions"`
	TLPLevel          string   `yaml:"tlp_level"`
	Confidence        int      `yaml:"confidence"`

	// Credentials and tunables passed to the converter environment.
	APIKey          string  `env:"DEEPSEEK_API_KEY"     yaml:"api_key"`
	InputTokenLimit int     `env:"INPUT_TOKEN_LIMIT"    yaml:"input_token_limit"`
	Temperature     float64 `env:"TEMPERATURE"          yaml:"temperature"`
	CTIButlerURL    string  `env:"CTIBUTLER_BASE_URL"   yaml:"ctibutler_base_url"`
	CTIButlerAPIKey string  `env:"CTIBUTLER_API_KEY"    yaml:"ctibutler_api_key"`
	VulmatchURL     string  `env:"VULMATCH_BASE_URL"    yaml:"vulmatch_base_url"`
	VulmatchAPIKey  string  `env:"VULMATCH_API_KEY"     yaml:"vulmatch_api_key"`

	// Artifact polling budget.
	PollAttempts  int           `yaml:"poll_attempts"`
	PollBaseDelay time.Duration `yaml:"poll_base_delay"`

	ConverterTimeout time.Duration `yaml:"converter_timeout"`
}

// OpenCTIConfig holds knowledge-base client settings.
type OpenCTIConfig struct {
	URL         string        `env:"OPENCTI_URL"   yaml:"url"`
	Token       string        `env:"OPENCTI_TOKEN" yaml:"token"`
	ConnectorID string        `env:"CONNECTOR_ID"  yaml:"connector_id"`
	Scope       string        `yaml:"scope"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Load loads configuration from a YAML file, applies defaults, then validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if loadErr := loadYAML(path, cfg); loadErr != nil {
		return nil, fmt.Errorf("load config: %w", loadErr)
	}

	cfg.setDefaults()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port %d out of range", c.Service.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if len(c.Gate.Classifiers) == 0 {
		return fmt.Errorf("gate.classifiers must configure at least one model version")
	}
	for i, cl := range c.Gate.Classifiers {
		if cl.Version == "" {
			return fmt.Errorf("gate.classifiers[%d].version is required", i)
		}
		if cl.Endpoint == "" {
			return fmt.Errorf("gate.classifiers[%d].endpoint is required", i)
		}
	}
	if c.Gate.ConfidenceThreshold < 0 || c.Gate.ConfidenceThreshold >= 1 {
		return fmt.Errorf("gate.confidence_threshold %v out of range [0,1)", c.Gate.ConfidenceThreshold)
	}
	if c.Enrichment.Script == "" {
		return fmt.Errorf("enrichment.script is required")
	}
	if _, err := c.Scheduler.IntervalDuration(); err != nil {
		return fmt.Errorf("scheduler.interval: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	s := &c.Service
	if s.Name == "" {
		s.Name = defaultServiceName
	}
	if s.Version == "" {
		s.Version = defaultServiceVersion
	}
	if s.Port == 0 {
		s.Port = defaultServicePort
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	setDatabaseDefaults(&c.Database)
	setPipelineDefaults(c)
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}
	if d.Port == 0 {
		d.Port = defaultDBPort
	}
	if d.User == "" {
		d.User = defaultDBUser
	}
	if d.Database == "" {
		d.Database = defaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}
	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}
	if d.ConnectionMaxLifetime == 0 {
		d.ConnectionMaxLifetime = defaultDBConnLifetimeH * time.Hour
	}
	if d.MigrationsPath == "" {
		d.MigrationsPath = defaultMigrationsPath
	}
}

func setPipelineDefaults(c *Config) {
	if c.Scheduler.Interval == "" {
		c.Scheduler.Interval = defaultInterval
	}
	if c.Gate.ConfidenceThreshold == 0 {
		c.Gate.ConfidenceThreshold = defaultGateThreshold
	}

	e := &c.Enrichment
	if e.Command == "" {
		e.Command = "python3"
	}
	if e.OutputDir == "" {
		e.OutputDir = "output"
	}
	if e.RelationshipMode == "" {
		e.RelationshipMode = defaultRelationshipMode
	}
	if e.RelationshipModel == "" {
		e.RelationshipModel = defaultConverterModel
	}
	if e.ExtractionModel == "" {
		e.ExtractionModel = defaultConverterModel
	}
	if e.ContentCheckModel == "" {
		e.ContentCheckModel = defaultConverterModel
	}
	if e.TLPLevel == "" {
		e.TLPLevel = defaultConverterTLP
	}
	if e.Confidence == 0 {
		e.Confidence = defaultConverterConf
	}
	if e.InputTokenLimit == 0 {
		e.InputTokenLimit = defaultInputTokenLimit
	}
	if e.PollAttempts == 0 {
		e.PollAttempts = defaultPollAttempts
	}
	if e.PollBaseDelay == 0 {
		e.PollBaseDelay = defaultPollBaseDelay
	}
	if e.ConverterTimeout == 0 {
		e.ConverterTimeout = defaultConverterTimeout
	}

	if c.OpenCTI.Timeout == 0 {
		c.OpenCTI.Timeout = defaultOpenCTITimeout
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = defaultDedupTTL
	}
}
