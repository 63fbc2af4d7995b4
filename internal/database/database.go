// Package database manages the PostgreSQL sink connection for casepipe.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/types"
)

const (
	maxConnectRetries = 3
	retryBaseDelay    = 2 * time.Second
)

// Manager handles the sink database connection lifecycle.
type Manager struct {
	db  *sql.DB
	cfg *config.SinkConfig
	log *logger.Logger
}

// NewManager creates a database manager for the configured sink.
func NewManager(cfg *config.SinkConfig, log *logger.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		log: log,
	}
}

// Connect opens the sink connection and verifies it with a ping,
// retrying with exponential backoff on failure.
func (m *Manager) Connect(ctx context.Context) error {
	if m.cfg.DSN == "" && m.cfg.Host == "" {
		return &types.ConfigError{
			Field:   "sink.dsn",
			Message: "no sink connection target configured",
		}
	}
	dsn := BuildDSN(m.cfg)

	db, err := m.connectWithRetry(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to sink database: %w", err)
	}

	if m.cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(m.cfg.MaxConnections)
	}
	if m.cfg.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(m.cfg.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	m.db = db
	m.log.Infow("connected to sink database",
		"host", m.cfg.Host,
		"database", m.cfg.Database,
	)
	return nil
}

// connectWithRetry attempts connection with exponential backoff.
func (m *Manager) connectWithRetry(ctx context.Context, dsn string) (*sql.DB, error) {
	var lastErr error

	for attempt := 1; attempt <= maxConnectRetries; attempt++ {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			lastErr = err
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				return db, nil
			}
			db.Close()
			lastErr = err
		}

		if attempt < maxConnectRetries {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			m.log.Warnw("sink connection failed, retrying",
				"attempt", attempt,
				"delay", delay.String(),
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("exhausted %d connection attempts: %w", maxConnectRetries, lastErr)
}

// DB returns the underlying sql.DB handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Close closes the sink connection.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

// BuildDSN returns the PostgreSQL connection string for the sink. A
// configured DSN wins; otherwise one is composed from the discrete
// host/port/user fields.
func BuildDSN(cfg *config.SinkConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	} else {
		u.User = url.User(cfg.User)
	}

	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
