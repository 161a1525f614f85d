package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackdb/crawler/internal/store"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithPool(mock)
	require.NoError(t, err)
	return s, mock
}

func TestEnsureWebDriverReturnsExistingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM webdriver").
		WithArgs("chrome").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	id, err := s.EnsureWebDriver(context.Background(), "chrome")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureWebDriverInsertsMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM webdriver").
		WithArgs("firefox").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO webdriver").
		WithArgs("firefox").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(4)))

	id, err := s.EnsureWebDriver(context.Background(), "firefox")
	require.NoError(t, err)
	assert.Equal(t, int64(4), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateHashRetriesLookupOnInsertRace(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM content_hash").
		WithArgs("abc123").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("INSERT INTO content_hash").
		WithArgs("abc123").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery("SELECT id FROM content_hash").
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(88)))

	id, err := s.GetOrCreateHash(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(88), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateJobReturnsID(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	taskID := uuid.New()
	started := time.Unix(1700000000, 0).UTC()
	job := store.JobRecord{
		TaskID:    taskID,
		CrawlerID: 1,
		DriverID:  2,
		DeviceID:  3,
		Keyword:   "katy perry",
		StartedAt: started,
	}

	mock.ExpectQuery("INSERT INTO crawl_job").
		WithArgs(taskID, int64(1), int64(2), int64(3), "katy perry", started).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))

	id, err := s.CreateJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCrackWithNullableFields(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	archive := "roar.zip"
	hashID := int64(88)
	rec := store.CrackRecord{
		JobID:       12,
		Title:       "Roar",
		Extension:   ".MP3",
		Size:        "15 MB",
		ArchiveName: &archive,
		HashID:      &hashID,
	}

	mock.ExpectQuery("INSERT INTO crack").
		WithArgs(int64(12), "Roar", ".MP3", "15 MB", &archive, &hashID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(55)))

	id, err := s.InsertCrack(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(55), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCrackError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO crack_error").
		WithArgs(int64(55), "timeout", "resolve file link: wait timed out").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertCrackError(context.Background(), 55, "timeout", "resolve file link: wait timed out")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanSidePersistsVerdict(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO sample").
		WithArgs("suspect.zip", "vt-analysis-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	sampleID, err := s.InsertSample(context.Background(), "suspect.zip", "vt-analysis-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), sampleID)

	mock.ExpectQuery("INSERT INTO analysis").
		WithArgs(int64(7), "completed", 10, 0, 5, "deadbeef").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(21)))

	analysisID, err := s.InsertAnalysis(context.Background(), store.AnalysisRecord{
		SampleID:   7,
		Status:     "completed",
		Harmless:   10,
		Malicious:  0,
		Undetected: 5,
		SHA256:     "deadbeef",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), analysisID)

	verdict := "clean"
	mock.ExpectExec("INSERT INTO antivirus").
		WithArgs(int64(21), "EngineA", "harmless", &verdict).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = s.InsertAntivirus(context.Background(), 21, []store.EngineResult{
		{Engine: "EngineA", Category: "harmless", Result: &verdict},
	})
	require.NoError(t, err)

	mock.ExpectExec("UPDATE sample SET analyzed").
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkSampleAnalyzed(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSampleAnalyzedMissingRow(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE sample SET analyzed").
		WithArgs(int64(404)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.MarkSampleAnalyzed(context.Background(), 404)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
