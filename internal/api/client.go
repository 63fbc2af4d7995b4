// Package api fetches paginated JSON case records from the source API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/types"
)

// RetryPolicy controls how the client responds to rate limiting. A 429
// response is retried after Backoff until MaxAttempts is exhausted.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Client fetches pages of records from a paginated JSON endpoint using
// limit/offset query parameters.
type Client struct {
	http  *resty.Client
	url   string
	retry RetryPolicy
	log   *logger.Logger
}

// NewClient creates a source API client from configuration.
func NewClient(cfg *config.SourceConfig, log *logger.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(time.Duration(cfg.TimeoutSeconds*float64(time.Second))).
		SetHeader("Accept", "application/json")

	return &Client{
		http: httpClient,
		url:  cfg.URL,
		retry: RetryPolicy{
			MaxAttempts: 2,
			Backoff:     time.Duration(cfg.RateLimitBackoffSecs * float64(time.Second)),
		},
		log: log,
	}
}

// FetchPage requests one page of records at the given offset. Rate-limited
// requests are retried per the retry policy; a page shorter than limit
// means the source is exhausted.
func (c *Client) FetchPage(ctx context.Context, limit, offset int) (types.Page, error) {
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("limit", strconv.Itoa(limit)).
			SetQueryParam("offset", strconv.Itoa(offset)).
			Get(c.url)
		if err != nil {
			return nil, &types.FetchError{Cause: fmt.Errorf("request at offset %d: %w", offset, err)}
		}

		status := resp.StatusCode()
		if status == 429 {
			if attempt < c.retry.MaxAttempts {
				c.log.Warnw("rate limited by source, backing off",
					"offset", offset,
					"attempt", attempt,
					"backoff", c.retry.Backoff.String(),
				)
				select {
				case <-ctx.Done():
					return nil, &types.FetchError{
						Cause: fmt.Errorf("backoff at offset %d interrupted: %w", offset, ctx.Err()),
					}
				case <-time.After(c.retry.Backoff):
				}
			}
			continue
		}

		if status < 200 || status >= 300 {
			return nil, &types.FetchError{
				Status: status,
				Cause:  fmt.Errorf("unexpected status at offset %d", offset),
			}
		}

		return decodePage(resp.Body(), offset)
	}

	return nil, &types.RateLimitError{Attempts: c.retry.MaxAttempts}
}

// decodePage parses the response body as a JSON array of objects.
func decodePage(body []byte, offset int) (types.Page, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, &types.FetchError{
			Cause: fmt.Errorf("response at offset %d is not a JSON array: %w", offset, err),
		}
	}

	page := make(types.Page, 0, len(elements))
	for i, raw := range elements {
		var record types.Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, &types.SchemaError{
				Message: fmt.Sprintf("element %d at offset %d is not a JSON object", i, offset),
			}
		}
		page = append(page, record)
	}

	return page, nil
}
