// Package postgres provides Postgres-backed persistence for crawl results
// and malware-scan verdicts.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crackdb/crawler/internal/store"
)

// uniqueViolation is the Postgres error code raised when a concurrent insert
// wins a get-or-create race.
const uniqueViolation = "23505"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements store.CrawlStore and store.ScanStore on Postgres.
type Store struct {
	pool pgxPool
}

// New connects a pooled store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// getOrCreate resolves a dimension row's id, inserting it when absent. A
// unique-violation on insert means a concurrent writer created the row first,
// so the lookup is retried.
func (s *Store) getOrCreate(ctx context.Context, selectSQL, insertSQL, value string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, selectSQL, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup %q: %w", value, err)
	}

	err = s.pool.QueryRow(ctx, insertSQL, value).Scan(&id)
	if err == nil {
		return id, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if err := s.pool.QueryRow(ctx, selectSQL, value).Scan(&id); err != nil {
			return 0, fmt.Errorf("re-lookup %q after insert race: %w", value, err)
		}
		return id, nil
	}
	return 0, fmt.Errorf("insert %q: %w", value, err)
}

// EnsureWebDriver resolves the webdriver dimension row.
func (s *Store) EnsureWebDriver(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx,
		`SELECT id FROM webdriver WHERE name = $1`,
		`INSERT INTO webdriver (name) VALUES ($1) RETURNING id`,
		name)
}

// EnsureDevice resolves the device dimension row.
func (s *Store) EnsureDevice(ctx context.Context, name string) (int64, error) {
	return s.getOrCreate(ctx,
		`SELECT id FROM device WHERE name = $1`,
		`INSERT INTO device (name) VALUES ($1) RETURNING id`,
		name)
}

// EnsureCrawler resolves the crawler dimension row keyed by site.
func (s *Store) EnsureCrawler(ctx context.Context, site string) (int64, error) {
	return s.getOrCreate(ctx,
		`SELECT id FROM crawler WHERE site = $1`,
		`INSERT INTO crawler (site) VALUES ($1) RETURNING id`,
		site)
}

// GetOrCreateHash resolves the content_hash row for a digest.
func (s *Store) GetOrCreateHash(ctx context.Context, digest string) (int64, error) {
	return s.getOrCreate(ctx,
		`SELECT id FROM content_hash WHERE digest = $1`,
		`INSERT INTO content_hash (digest) VALUES ($1) RETURNING id`,
		digest)
}

// CreateJob inserts a crawl_job row and returns its id.
func (s *Store) CreateJob(ctx context.Context, job store.JobRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO crawl_job (task_id, crawler_id, webdriver_id, device_id, keyword, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		job.TaskID, job.CrawlerID, job.DriverID, job.DeviceID, job.Keyword, job.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert crawl job: %w", err)
	}
	return id, nil
}

// InsertCrack inserts one item-attempt row and returns its id.
func (s *Store) InsertCrack(ctx context.Context, rec store.CrackRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO crack (job_id, title, extension, declared_size, archive_name, hash_id)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.JobID, rec.Title, rec.Extension, rec.Size, rec.ArchiveName, rec.HashID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert crack: %w", err)
	}
	return id, nil
}

// InsertCrackError attaches a categorized error row to a crack.
func (s *Store) InsertCrackError(ctx context.Context, crackID int64, category, message string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO crack_error (crack_id, category, message) VALUES ($1, $2, $3)`,
		crackID, category, message)
	if err != nil {
		return fmt.Errorf("insert crack error: %w", err)
	}
	return nil
}

// InsertSample registers a submitted artifact and returns its id.
func (s *Store) InsertSample(ctx context.Context, fileName, remoteID string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sample (file_name, remote_id, analyzed) VALUES ($1, $2, FALSE) RETURNING id`,
		fileName, remoteID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sample: %w", err)
	}
	return id, nil
}

// InsertAnalysis inserts a completed verdict row and returns its id.
func (s *Store) InsertAnalysis(ctx context.Context, rec store.AnalysisRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO analysis (sample_id, status, harmless, malicious, undetected, sha256)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		rec.SampleID, rec.Status, rec.Harmless, rec.Malicious, rec.Undetected, rec.SHA256,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	return id, nil
}

// InsertAntivirus stores per-engine verdict rows for an analysis.
func (s *Store) InsertAntivirus(ctx context.Context, analysisID int64, engines []store.EngineResult) error {
	for _, e := range engines {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO antivirus (analysis_id, engine, category, result) VALUES ($1, $2, $3, $4)`,
			analysisID, e.Engine, e.Category, e.Result)
		if err != nil {
			return fmt.Errorf("insert antivirus row for %s: %w", e.Engine, err)
		}
	}
	return nil
}

// MarkSampleAnalyzed flips the sample's analyzed flag.
func (s *Store) MarkSampleAnalyzed(ctx context.Context, sampleID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sample SET analyzed = TRUE WHERE id = $1`, sampleID)
	if err != nil {
		return fmt.Errorf("mark sample analyzed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark sample analyzed: %w", store.ErrNotFound)
	}
	return nil
}
