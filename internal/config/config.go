// Package config provides configuration structures and loading for casepipe.
package config

// Config represents the complete application configuration. It is built
// once at startup and never mutated mid-run; the orchestrator receives it
// by value through its constructor.
type Config struct {
	Source       SourceConfig       `yaml:"source" mapstructure:"source"`
	Sink         SinkConfig         `yaml:"sink" mapstructure:"sink"`
	Processing   ProcessingConfig   `yaml:"processing" mapstructure:"processing"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// SourceConfig describes the upstream paginated JSON API.
type SourceConfig struct {
	URL                  string  `yaml:"url" mapstructure:"url"`
	TimeoutSeconds       float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RateLimitBackoffSecs float64 `yaml:"rate_limit_backoff_seconds" mapstructure:"rate_limit_backoff_seconds"`
}

// SinkConfig describes the relational sink holding the raw landing and
// clean analytic tables. DSN wins when set (typically via ${PG_URL});
// otherwise the DSN is composed from the discrete fields.
type SinkConfig struct {
	DSN                string `yaml:"dsn" mapstructure:"dsn"`
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	SSLMode            string `yaml:"sslmode" mapstructure:"sslmode"` // disable, prefer, require
	RawTable           string `yaml:"raw_table" mapstructure:"raw_table"`
	CleanTable         string `yaml:"clean_table" mapstructure:"clean_table"`
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// ProcessingConfig represents the bounding and pacing settings of a run.
type ProcessingConfig struct {
	PageSize     int     `yaml:"page_size" mapstructure:"page_size"`
	MaxRecords   int     `yaml:"max_records" mapstructure:"max_records"`
	SleepSeconds float64 `yaml:"sleep_seconds" mapstructure:"sleep_seconds"`
	StartOffset  int     `yaml:"start_offset" mapstructure:"start_offset"`
	// ReadBack makes the cleaner consume rows read back from the raw
	// landing table instead of the in-memory batch just landed.
	ReadBack bool `yaml:"read_back" mapstructure:"read_back"`
}

// VerificationConfig represents raw-landing verification settings.
type VerificationConfig struct {
	Method           string `yaml:"method" mapstructure:"method"` // "count" or "skip"
	SkipVerification bool   `yaml:"skip_verification" mapstructure:"skip_verification"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values. The
// processing defaults mirror the production surveillance job: 50k-row
// pages up to a 150k-record ceiling, 0.7s courtesy pacing.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:                  "https://data.cdc.gov/resource/n8mc-b4w4.json",
			TimeoutSeconds:       60,
			RateLimitBackoffSecs: 2,
		},
		Sink: SinkConfig{
			Port:               5432,
			SSLMode:            "prefer",
			RawTable:           "covid_case_surveillance_raw",
			CleanTable:         "covid_case_surveillance",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Processing: ProcessingConfig{
			PageSize:     50000,
			MaxRecords:   150000,
			SleepSeconds: 0.7,
		},
		Verification: VerificationConfig{
			Method:           "count",
			SkipVerification: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied. Called before the
// orchestrator is constructed; the config is immutable afterwards.
func (c *Config) ApplyOverrides(logLevel, logFormat string, pageSize, maxRecords int, sleepSeconds float64, startOffset int, skipVerify bool) {
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat != "" {
		c.Logging.Format = logFormat
	}
	if pageSize > 0 {
		c.Processing.PageSize = pageSize
	}
	if maxRecords > 0 {
		c.Processing.MaxRecords = maxRecords
	}
	if sleepSeconds > 0 {
		c.Processing.SleepSeconds = sleepSeconds
	}
	if startOffset > 0 {
		c.Processing.StartOffset = startOffset
	}
	if skipVerify {
		c.Verification.SkipVerification = true
	}
}
