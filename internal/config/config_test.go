package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 50000, cfg.Processing.PageSize)
	assert.Equal(t, 150000, cfg.Processing.MaxRecords)
	assert.InDelta(t, 0.7, cfg.Processing.SleepSeconds, 0.001)
	assert.Equal(t, 0, cfg.Processing.StartOffset)
	assert.False(t, cfg.Processing.ReadBack)

	assert.Equal(t, float64(60), cfg.Source.TimeoutSeconds)
	assert.Equal(t, float64(2), cfg.Source.RateLimitBackoffSecs)

	assert.Equal(t, "covid_case_surveillance_raw", cfg.Sink.RawTable)
	assert.Equal(t, "covid_case_surveillance", cfg.Sink.CleanTable)
	assert.Equal(t, 5432, cfg.Sink.Port)

	assert.Equal(t, "count", cfg.Verification.Method)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ApplyOverrides("debug", "text", 100, 250, 1.5, 500, true)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, 100, cfg.Processing.PageSize)
	assert.Equal(t, 250, cfg.Processing.MaxRecords)
	assert.InDelta(t, 1.5, cfg.Processing.SleepSeconds, 0.001)
	assert.Equal(t, 500, cfg.Processing.StartOffset)
	assert.True(t, cfg.Verification.SkipVerification)
}

func TestApplyOverrides_ZeroValuesIgnored(t *testing.T) {
	cfg := DefaultConfig()

	cfg.ApplyOverrides("", "", 0, 0, 0, 0, false)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 50000, cfg.Processing.PageSize)
	assert.Equal(t, 150000, cfg.Processing.MaxRecords)
	assert.False(t, cfg.Verification.SkipVerification)
}
