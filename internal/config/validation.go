package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
// A missing sink connection target fails here, before anything connects.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if err := c.validateSource(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateSink(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateProcessing(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateVerification(); err != nil {
		errors = append(errors, err...)
	}

	if err := c.validateLogging(); err != nil {
		errors = append(errors, err...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateSource() ValidationErrors {
	var errors ValidationErrors

	if c.Source.URL == "" {
		errors = append(errors, ValidationError{
			Field:   "source.url",
			Message: "url is required",
		})
	} else if !strings.HasPrefix(c.Source.URL, "http://") && !strings.HasPrefix(c.Source.URL, "https://") {
		errors = append(errors, ValidationError{
			Field:   "source.url",
			Message: "url must start with http:// or https://",
		})
	}

	if c.Source.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "source.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.Source.RateLimitBackoffSecs < 0 {
		errors = append(errors, ValidationError{
			Field:   "source.rate_limit_backoff_seconds",
			Message: "rate_limit_backoff_seconds cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateSink() ValidationErrors {
	var errors ValidationErrors

	// Either a full DSN or enough discrete fields to compose one.
	if c.Sink.DSN == "" {
		if c.Sink.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "sink.dsn",
				Message: "either dsn or host must be set (e.g. dsn: ${PG_URL})",
			})
		}
		if c.Sink.Host != "" && c.Sink.User == "" {
			errors = append(errors, ValidationError{
				Field:   "sink.user",
				Message: "user is required when composing the DSN from parts",
			})
		}
		if c.Sink.Host != "" && c.Sink.Database == "" {
			errors = append(errors, ValidationError{
				Field:   "sink.database",
				Message: "database name is required when composing the DSN from parts",
			})
		}
		if c.Sink.Port <= 0 || c.Sink.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "sink.port",
				Message: "port must be between 1 and 65535",
			})
		}
	} else if strings.Contains(c.Sink.DSN, "${") {
		errors = append(errors, ValidationError{
			Field:   "sink.dsn",
			Message: "dsn references an environment variable that is not set",
		})
	}

	validSSL := map[string]bool{"disable": true, "prefer": true, "require": true, "": true}
	if !validSSL[c.Sink.SSLMode] {
		errors = append(errors, ValidationError{
			Field:   "sink.sslmode",
			Message: "sslmode must be 'disable', 'prefer', or 'require'",
		})
	}

	if c.Sink.RawTable == "" {
		errors = append(errors, ValidationError{
			Field:   "sink.raw_table",
			Message: "raw_table is required",
		})
	}

	if c.Sink.CleanTable == "" {
		errors = append(errors, ValidationError{
			Field:   "sink.clean_table",
			Message: "clean_table is required",
		})
	}

	if c.Sink.RawTable != "" && c.Sink.RawTable == c.Sink.CleanTable {
		errors = append(errors, ValidationError{
			Field:   "sink.clean_table",
			Message: "clean_table must differ from raw_table",
		})
	}

	if c.Sink.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "sink.max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if c.Sink.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   "sink.max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateProcessing() ValidationErrors {
	var errors ValidationErrors

	if c.Processing.PageSize <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.page_size",
			Message: "page_size must be positive",
		})
	}

	if c.Processing.MaxRecords <= 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.max_records",
			Message: "max_records must be positive",
		})
	}

	if c.Processing.SleepSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.sleep_seconds",
			Message: "sleep_seconds cannot be negative",
		})
	}

	if c.Processing.StartOffset < 0 {
		errors = append(errors, ValidationError{
			Field:   "processing.start_offset",
			Message: "start_offset cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateVerification() ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"count": true, "skip": true, "": true}
	if !validMethods[c.Verification.Method] {
		errors = append(errors, ValidationError{
			Field:   "verification.method",
			Message: "method must be 'count' or 'skip'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
