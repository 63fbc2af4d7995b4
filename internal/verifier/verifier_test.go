package verifier

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epidata/casepipe/internal/config"
	"github.com/epidata/casepipe/internal/logger"
)

func newTestVerifier(t *testing.T, verCfg *config.VerificationConfig) (*Verifier, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sinkCfg := &config.SinkConfig{RawTable: "covid_case_surveillance_raw"}
	return New(db, sinkCfg, verCfg, logger.NewDefault()), mock, func() { db.Close() }
}

func TestVerifyBatch_CountMatches(t *testing.T) {
	v, mock, done := newTestVerifier(t, &config.VerificationConfig{Method: "count"})
	defer done()

	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "covid_case_surveillance_raw" WHERE`).
		WithArgs(stamp).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(50))

	assert.NoError(t, v.VerifyBatch(context.Background(), stamp, 50))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyBatch_CountMismatch(t *testing.T) {
	v, mock, done := newTestVerifier(t, &config.VerificationConfig{Method: "count"})
	defer done()

	stamp := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM "covid_case_surveillance_raw" WHERE`).
		WithArgs(stamp).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(49))

	err := v.VerifyBatch(context.Background(), stamp, 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "49 rows landed, expected 50")
}

func TestVerifyBatch_SkipMethod(t *testing.T) {
	v, mock, done := newTestVerifier(t, &config.VerificationConfig{Method: "skip"})
	defer done()

	assert.NoError(t, v.VerifyBatch(context.Background(), time.Now(), 50))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyBatch_SkipFlag(t *testing.T) {
	v, mock, done := newTestVerifier(t, &config.VerificationConfig{Method: "count", SkipVerification: true})
	defer done()

	assert.NoError(t, v.VerifyBatch(context.Background(), time.Now(), 50))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyBatch_QueryError(t *testing.T) {
	v, mock, done := newTestVerifier(t, &config.VerificationConfig{Method: "count"})
	defer done()

	mock.ExpectQuery(`SELECT COUNT\(\*\)`).
		WillReturnError(assert.AnError)

	err := v.VerifyBatch(context.Background(), time.Now(), 50)
	assert.Error(t, err)
}
