// Package crawler defines the core types and interfaces for the crack-archive
// crawling engine: jobs, item descriptors, per-item outcomes, and the
// capability contracts consumed by site crawlers.
package crawler

import (
	"time"

	"github.com/google/uuid"
)

// UnknownField is the sentinel stored when item metadata cannot be parsed.
const UnknownField = "Unknown"

// Job is one crawl invocation against a keyword/target. It is created once
// per invocation and immutable afterwards; every crack row produced during
// the run references it.
type Job struct {
	ID        int64
	TaskID    uuid.UUID
	BaseURL   string
	Keyword   string
	Driver    string
	Device    string
	StartedAt time.Time
}

// ItemDescriptor is the transient metadata parsed from one search-result
// entry. All fields degrade to UnknownField when the raw text is malformed.
type ItemDescriptor struct {
	Title     string
	Extension string
	Size      string
	DetailURL string
}

// OutcomeKind tags the result of one item attempt. Exactly one kind is
// assigned per attempt; the page loop pattern-matches on it instead of
// relying on error propagation for expected per-item failures.
type OutcomeKind int

// Outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSizeRejected
	OutcomeTimeout
	OutcomeDownloadError
)

// String returns the persistence label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSizeRejected:
		return "size_rejected"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeDownloadError:
		return "download_error"
	default:
		return "unknown"
	}
}

// Outcome is the per-item result flowing from the pipeline into the
// recorder. Archive fields are populated only on success. Errors carries the
// categorized failure messages persisted alongside the crack row; the schema
// allows several per attempt even though the pipeline currently produces at
// most one.
type Outcome struct {
	Kind        OutcomeKind
	ArchiveName string
	ArchivePath string
	Bytes       int64
	Digest      string
	Errors      []string
}

// Failed reports whether the attempt produced no artifact.
func (o Outcome) Failed() bool {
	return o.Kind != OutcomeSuccess
}

// TaskKind selects which pipeline a queued task runs.
type TaskKind string

// Queue task kinds.
const (
	TaskCrawl    TaskKind = "crawl"
	TaskAnalysis TaskKind = "analysis"
)

// CrawlRequest carries the client-supplied parameters for a crawl task.
type CrawlRequest struct {
	TargetURL string
	Keyword   string
	Driver    string
	Device    string
}

// AnalysisRequest carries an artifact submitted for external scanning.
type AnalysisRequest struct {
	FileName string
	Data     []byte
}

// QueueItem wraps a task ready to run.
type QueueItem struct {
	TaskID    uuid.UUID
	Kind      TaskKind
	Crawl     CrawlRequest
	Analysis  AnalysisRequest
	Submitted int64
}
