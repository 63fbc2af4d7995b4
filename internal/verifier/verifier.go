// Package verifier checks that landed raw batches match what was fetched.
package verifier

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/logger"
	"github.com/epidata/casepipe/internal/sqlutil"
	"github.com/epidata/casepipe/internal/types"
)

// Verifier confirms a raw batch landed completely by counting the rows
// carrying its ingestion stamp.
type Verifier struct {
	db       *sql.DB
	rawTable string
	method   string
	skip     bool
	log      *logger.Logger
}

// New creates a Verifier from configuration.
func New(db *sql.DB, sinkCfg *config.SinkConfig, verCfg *config.VerificationConfig, log *logger.Logger) *Verifier {
	return &Verifier{
		db:       db,
		rawTable: sinkCfg.RawTable,
		method:   verCfg.Method,
		skip:     verCfg.SkipVerification || verCfg.Method == "skip",
		log:      log,
	}
}

// VerifyBatch checks that exactly expected rows landed under the given
// ingestion stamp. Returns nil when verification is skipped.
func (v *Verifier) VerifyBatch(ctx context.Context, stamp time.Time, expected int) error {
	if v.skip {
		v.log.Debugw("batch verification skipped")
		return nil
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = $1",
		sqlutil.QuoteIdentifier(v.rawTable),
		sqlutil.QuoteIdentifier(types.IngestedAtColumn),
	)

	var landed int
	if err := v.db.QueryRowContext(ctx, query, stamp).Scan(&landed); err != nil {
		return fmt.Errorf("failed to count landed rows: %w", err)
	}

	if landed != expected {
		return fmt.Errorf("batch verification failed: %d rows landed, expected %d", landed, expected)
	}

	v.log.Debugw("batch verified", "rows", landed)
	return nil
}
