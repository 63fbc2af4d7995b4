package types

import "fmt"

// The pipeline error taxonomy. Every stage failure is one of these kinds;
// none is swallowed. The orchestrator wraps the failing kind in a
// StageError carrying the offset reached, so an operator can re-invoke the
// run with an adjusted starting offset.

// ConfigError reports a missing or invalid configuration value detected
// before the run starts.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// FetchError reports a transport failure or an unexpected HTTP status from
// the source API. Not retried by the client.
type FetchError struct {
	Status int
	Cause  error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch failed with status %d", e.Status)
	}
	return fmt.Sprintf("fetch failed: %v", e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// RateLimitError reports that the source returned 429 and the single
// backoff-and-retry was also rejected. Distinguishable from FetchError so
// a caller can choose to resume later.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by source after %d attempts", e.Attempts)
}

// SchemaError reports a malformed page shape: the response was not a
// sequence of mapping-like records.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("malformed page: %s", e.Message)
}

// ValidationError reports a cleaned batch that fails the cleaner's
// post-conditions.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("cleaned batch invalid: %s", e.Message)
}

// LoadError reports a sink write or connection failure, or a batch whose
// column set differs from the destination table's schema.
type LoadError struct {
	Sink  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s sink failed: %v", e.Sink, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// ReadBackError reports a failure reading just-landed raw rows back from
// the sink for lineage-accurate cleaning.
type ReadBackError struct {
	Cause error
}

func (e *ReadBackError) Error() string {
	return fmt.Sprintf("raw read-back failed: %v", e.Cause)
}

func (e *ReadBackError) Unwrap() error { return e.Cause }

// StageError wraps a stage failure with the pipeline stage name and the
// offset at which the run stopped.
type StageError struct {
	Stage  string
	Offset int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed at offset %d: %v", e.Stage, e.Offset, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
