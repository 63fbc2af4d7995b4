package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Sink.DSN = "postgres://user:pw@localhost:5432/db"
	return cfg
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_ComposedSinkOK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink.Host = "localhost"
	cfg.Sink.User = "ingest"
	cfg.Sink.Database = "surveillance"

	assert.NoError(t, cfg.Validate())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing sink target",
			mutate:  func(c *Config) { c.Sink.DSN = ""; c.Sink.Host = "" },
			wantMsg: "sink.dsn",
		},
		{
			name:    "unresolved dsn env var",
			mutate:  func(c *Config) { c.Sink.DSN = "${PG_URL}" },
			wantMsg: "environment variable",
		},
		{
			name:    "missing source url",
			mutate:  func(c *Config) { c.Source.URL = "" },
			wantMsg: "source.url",
		},
		{
			name:    "non-http source url",
			mutate:  func(c *Config) { c.Source.URL = "ftp://example.test/data" },
			wantMsg: "http",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Source.TimeoutSeconds = 0 },
			wantMsg: "timeout_seconds",
		},
		{
			name:    "negative backoff",
			mutate:  func(c *Config) { c.Source.RateLimitBackoffSecs = -1 },
			wantMsg: "rate_limit_backoff_seconds",
		},
		{
			name:    "zero page size",
			mutate:  func(c *Config) { c.Processing.PageSize = 0 },
			wantMsg: "page_size",
		},
		{
			name:    "zero record ceiling",
			mutate:  func(c *Config) { c.Processing.MaxRecords = 0 },
			wantMsg: "max_records",
		},
		{
			name:    "negative sleep",
			mutate:  func(c *Config) { c.Processing.SleepSeconds = -0.5 },
			wantMsg: "sleep_seconds",
		},
		{
			name:    "negative start offset",
			mutate:  func(c *Config) { c.Processing.StartOffset = -1 },
			wantMsg: "start_offset",
		},
		{
			name:    "same raw and clean table",
			mutate:  func(c *Config) { c.Sink.CleanTable = c.Sink.RawTable },
			wantMsg: "clean_table",
		},
		{
			name:    "bad verification method",
			mutate:  func(c *Config) { c.Verification.Method = "sha256" },
			wantMsg: "verification.method",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantMsg: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantMsg: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Source.URL = ""
	cfg.Processing.PageSize = 0

	err := cfg.Validate()
	require.Error(t, err)

	verrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(verrs), 2)
	assert.True(t, strings.HasPrefix(err.Error(), "validation failed:"))
}
