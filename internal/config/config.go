// Package config loads flowviz configuration from YAML with FLOWVIZ_ environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms" validate:"min=0"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms" validate:"min=0"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAgeSeconds  int      `yaml:"max_age_seconds"`
}

// PipelineConfig sizes the pipeline topology and seeds the runtime tuning knobs.
type PipelineConfig struct {
	Producers           int  `yaml:"producers" validate:"min=1"`
	Combiners           int  `yaml:"combiners" validate:"min=1"`
	Processors          int  `yaml:"processors" validate:"min=1"`
	ChannelCapacity     int  `yaml:"channel_capacity" validate:"min=1"`
	BatchSize           int  `yaml:"batch_size" validate:"min=1,max=1000000"`
	ProcessingDelayMS   int  `yaml:"processing_delay_ms" validate:"min=0,max=3600000"`
	ProducerWindowMS    int  `yaml:"producer_window_ms" validate:"min=1"`
	CombinerWindowMS    int  `yaml:"combiner_window_ms" validate:"min=1"`
	ProcessorWindowMS   int  `yaml:"processor_window_ms" validate:"min=1"`
	MonitorIntervalMS   int  `yaml:"monitor_interval_ms" validate:"min=1"`
	FlushPartialBatches bool `yaml:"flush_partial_batches"`
}

type TelemetryConfig struct {
	HistoryLength     int  `yaml:"history_length" validate:"min=1"`
	HistoryIntervalMS int  `yaml:"history_interval_ms" validate:"min=1"`
	MetricsEnabled    bool `yaml:"metrics_enabled"`
}

// PoolConfig defines connection pool settings
type PoolConfig struct {
	MaxConns                 int `yaml:"max_conns"`
	MinConns                 int `yaml:"min_conns"`
	MaxConnLifetimeMinutes   int `yaml:"max_conn_lifetime_minutes"`
	MaxConnIdleTimeMinutes   int `yaml:"max_conn_idle_time_minutes"`
	HealthCheckPeriodSeconds int `yaml:"health_check_period_seconds"`
}

type DatabaseConfig struct {
	Enabled          bool       `yaml:"enabled"`
	Host             string     `yaml:"host"`
	Port             int        `yaml:"port"`
	User             string     `yaml:"user"`
	Password         string     `yaml:"password"`
	DBName           string     `yaml:"dbname"`
	SSLMode          string     `yaml:"ssl_mode"`
	SampleIntervalMS int        `yaml:"sample_interval_ms" validate:"min=0"`
	Pool             PoolConfig `yaml:"pool"`
}

type AuthConfig struct {
	Enabled        bool   `yaml:"enabled"`
	AdminUsername  string `yaml:"admin_username"`
	AdminPassword  string `yaml:"admin_password"`
	JWTSecret      string `yaml:"jwt_secret"`
	JWTExpiryHours int    `yaml:"jwt_expiry_hours" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

var validate = validator.New()

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads configuration from file and applies environment variable overrides.
// An empty path skips the file and starts from defaults.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero values. Tuning knobs that are legitimately zero
// (processing delay) are left untouched.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = 15000
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = 15000
	}

	c.Pipeline.ApplyDefaults()

	if c.Telemetry.HistoryLength == 0 {
		c.Telemetry.HistoryLength = 300
	}
	if c.Telemetry.HistoryIntervalMS == 0 {
		c.Telemetry.HistoryIntervalMS = 250
	}

	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.SampleIntervalMS == 0 {
		c.Database.SampleIntervalMS = 5000
	}
	c.Database.Pool.ApplyDefaults()

	if c.Auth.AdminUsername == "" {
		c.Auth.AdminUsername = "admin"
	}
	if c.Auth.JWTExpiryHours == 0 {
		c.Auth.JWTExpiryHours = 24
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// ApplyDefaults sets the default topology: five
// producers, four combiners and a single layer-2 processor.
func (p *PipelineConfig) ApplyDefaults() {
	if p.Producers == 0 {
		p.Producers = 5
	}
	if p.Combiners == 0 {
		p.Combiners = 4
	}
	if p.Processors == 0 {
		p.Processors = 1
	}
	if p.ChannelCapacity == 0 {
		p.ChannelCapacity = 500_000
	}
	if p.BatchSize == 0 {
		p.BatchSize = 32
	}
	if p.ProducerWindowMS == 0 {
		p.ProducerWindowMS = 100
	}
	if p.CombinerWindowMS == 0 {
		p.CombinerWindowMS = 250
	}
	if p.ProcessorWindowMS == 0 {
		p.ProcessorWindowMS = 250
	}
	if p.MonitorIntervalMS == 0 {
		p.MonitorIntervalMS = 250
	}
}

// ApplyDefaults sets default values for pool configuration
func (p *PoolConfig) ApplyDefaults() {
	if p.MaxConns == 0 {
		p.MaxConns = 4
	}
	if p.MinConns == 0 {
		p.MinConns = 1
	}
	if p.MaxConnLifetimeMinutes == 0 {
		p.MaxConnLifetimeMinutes = 90
	}
	if p.MaxConnIdleTimeMinutes == 0 {
		p.MaxConnIdleTimeMinutes = 20
	}
	if p.HealthCheckPeriodSeconds == 0 {
		p.HealthCheckPeriodSeconds = 45
	}
}

// Validate checks struct tags first, then the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Auth.Enabled {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("auth.jwt_secret must be at least 32 characters when auth is enabled")
		}
		if c.Auth.AdminPassword == "" || c.Auth.AdminPassword == "changeme" {
			return fmt.Errorf("FLOWVIZ_AUTH_ADMIN_PASSWORD must be set to a strong password")
		}
	}

	if c.Database.Enabled && (c.Database.Host == "" || c.Database.DBName == "") {
		return fmt.Errorf("database host and dbname are required when the database is enabled")
	}

	return nil
}

// applyEnvOverrides checks for environment variables with FLOWVIZ_ prefix
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWVIZ_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FLOWVIZ_SERVER_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Server.Port)
	}

	// Pipeline overrides
	if v := os.Getenv("FLOWVIZ_PIPELINE_PRODUCERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.Producers)
	}
	if v := os.Getenv("FLOWVIZ_PIPELINE_COMBINERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.Combiners)
	}
	if v := os.Getenv("FLOWVIZ_PIPELINE_PROCESSORS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.Processors)
	}
	if v := os.Getenv("FLOWVIZ_PIPELINE_CHANNEL_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.ChannelCapacity)
	}
	if v := os.Getenv("FLOWVIZ_PIPELINE_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.BatchSize)
	}
	if v := os.Getenv("FLOWVIZ_PIPELINE_PROCESSING_DELAY_MS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Pipeline.ProcessingDelayMS)
	}

	// Database overrides
	if v := os.Getenv("FLOWVIZ_DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FLOWVIZ_DATABASE_PORT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Database.Port)
	}
	if v := os.Getenv("FLOWVIZ_DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	// Auth overrides
	if v := os.Getenv("FLOWVIZ_AUTH_ADMIN_PASSWORD"); v != "" {
		cfg.Auth.AdminPassword = v
	}
	if v := os.Getenv("FLOWVIZ_AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("FLOWVIZ_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ReadTimeout returns the read timeout as a duration
func (s *ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

// WriteTimeout returns the write timeout as a duration
func (s *ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

// Addr returns the listen address in host:port form
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (p *PipelineConfig) ProcessingDelay() time.Duration {
	return time.Duration(p.ProcessingDelayMS) * time.Millisecond
}

func (p *PipelineConfig) ProducerWindow() time.Duration {
	return time.Duration(p.ProducerWindowMS) * time.Millisecond
}

func (p *PipelineConfig) CombinerWindow() time.Duration {
	return time.Duration(p.CombinerWindowMS) * time.Millisecond
}

func (p *PipelineConfig) ProcessorWindow() time.Duration {
	return time.Duration(p.ProcessorWindowMS) * time.Millisecond
}

func (p *PipelineConfig) MonitorInterval() time.Duration {
	return time.Duration(p.MonitorIntervalMS) * time.Millisecond
}

// HistoryInterval returns the history sampling period as a duration
func (t *TelemetryConfig) HistoryInterval() time.Duration {
	return time.Duration(t.HistoryIntervalMS) * time.Millisecond
}

// SampleInterval returns the database sampling period as a duration
func (d *DatabaseConfig) SampleInterval() time.Duration {
	return time.Duration(d.SampleIntervalMS) * time.Millisecond
}

// ConnString returns the PostgreSQL connection string in postgres:// URL format
func (d *DatabaseConfig) ConnString() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}

	query := url.Values{}
	if d.SSLMode != "" {
		query.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = query.Encode()

	return u.String()
}

// MaxConnLifetime returns the max connection lifetime as a duration
func (p *PoolConfig) MaxConnLifetime() time.Duration {
	return time.Duration(p.MaxConnLifetimeMinutes) * time.Minute
}

// MaxConnIdleTime returns the max connection idle time as a duration
func (p *PoolConfig) MaxConnIdleTime() time.Duration {
	return time.Duration(p.MaxConnIdleTimeMinutes) * time.Minute
}

// HealthCheckPeriod returns the health check period as a duration
func (p *PoolConfig) HealthCheckPeriod() time.Duration {
	return time.Duration(p.HealthCheckPeriodSeconds) * time.Second
}

// JWTExpiry returns JWT expiry as duration
func (a *AuthConfig) JWTExpiry() time.Duration {
	return time.Duration(a.JWTExpiryHours) * time.Hour
}

// DumpExampleConfig writes an example configuration to the provided writer
func DumpExampleConfig(w io.Writer) error {
	example := Default()
	example.Server.Host = "0.0.0.0"
	example.CORS = CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAgeSeconds:  3600,
	}
	example.Telemetry.MetricsEnabled = true
	example.Database.Host = "localhost"
	example.Database.User = "flowviz"
	example.Database.Password = "changeme"
	example.Database.DBName = "flowviz"
	example.Auth.AdminPassword = "changeme"
	example.Auth.JWTSecret = "your-secret-key-minimum-32-chars-required"

	var node yaml.Node
	if err := node.Encode(example); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	header := `# =============================================================================
# flowviz example configuration
# =============================================================================
# Copy this file to config.yaml and adjust it.
#
# Environment variable overrides follow the pattern: FLOWVIZ_<SECTION>_<KEY>
# Example: FLOWVIZ_PIPELINE_PRODUCERS, FLOWVIZ_AUTH_JWT_SECRET
# =============================================================================

`
	if _, err := fmt.Fprint(w, header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}

	footer := `
# =============================================================================
# Notes:
#   - batch_size and processing_delay_ms are only initial values; both can be
#     changed at runtime through PUT /api/v1/tuning.
#   - channel_capacity bounds both the intake and the batch channel.
#   - flush_partial_batches forwards a combiner's unfinished batch on shutdown
#     instead of discarding it.
# =============================================================================
`
	if _, err := fmt.Fprint(w, footer); err != nil {
		return fmt.Errorf("failed to write footer: %w", err)
	}

	return nil
}
