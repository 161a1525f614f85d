// Package store defines the persistence contracts for crawl results and
// malware-scan verdicts, plus the recorder that maps per-item outcomes onto
// them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// CrackRecord is one persisted item attempt. ArchiveName and HashID are nil
// for failed attempts.
type CrackRecord struct {
	ID          int64
	JobID       int64
	Title       string
	Extension   string
	Size        string
	ArchiveName *string
	HashID      *int64
	CreatedAt   time.Time
}

// JobRecord is one crawl invocation row.
type JobRecord struct {
	ID        int64
	TaskID    uuid.UUID
	CrawlerID int64
	DriverID  int64
	DeviceID  int64
	Keyword   string
	StartedAt time.Time
}

// AnalysisRecord is one completed scan verdict.
type AnalysisRecord struct {
	ID         int64
	SampleID   int64
	Status     string
	Harmless   int
	Malicious  int
	Undetected int
	SHA256     string
	CreatedAt  time.Time
}

// EngineResult is one antivirus engine's verdict within an analysis.
type EngineResult struct {
	Engine   string
	Category string
	Result   *string
}

// CrawlStore persists the crawl side of the schema. The Ensure methods are
// get-or-create lookups on dimension tables and are safe to race.
type CrawlStore interface {
	EnsureWebDriver(ctx context.Context, name string) (int64, error)
	EnsureDevice(ctx context.Context, name string) (int64, error)
	EnsureCrawler(ctx context.Context, site string) (int64, error)
	CreateJob(ctx context.Context, job JobRecord) (int64, error)
	GetOrCreateHash(ctx context.Context, digest string) (int64, error)
	InsertCrack(ctx context.Context, rec CrackRecord) (int64, error)
	InsertCrackError(ctx context.Context, crackID int64, category, message string) error
}

// ScanStore persists the malware-scan side of the schema.
type ScanStore interface {
	InsertSample(ctx context.Context, fileName, remoteID string) (int64, error)
	InsertAnalysis(ctx context.Context, rec AnalysisRecord) (int64, error)
	InsertAntivirus(ctx context.Context, analysisID int64, engines []EngineResult) error
	MarkSampleAnalyzed(ctx context.Context, sampleID int64) error
}
