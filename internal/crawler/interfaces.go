package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrWaitTimeout is returned by Browser implementations when a bounded wait
// expires before its condition is met. Site crawlers use it to tell a slow
// page apart from a broken one.
var ErrWaitTimeout = errors.New("wait timed out")

// Element is the text and link of one located page element.
type Element struct {
	Text string
	Href string
}

// Browser is the abstract driver capability consumed by site crawlers. One
// Browser owns one session with exactly two browsing contexts: the primary
// results page and an optional secondary detail tab. All waits are bounded
// and report expiry as ErrWaitTimeout.
type Browser interface {
	// Navigate loads a URL in the primary context.
	Navigate(ctx context.Context, url string) error
	// Elements waits for the selector and returns every match with its text
	// and href.
	Elements(ctx context.Context, selector string, timeout time.Duration) ([]Element, error)
	// ClickWhenReady waits for the selector to become clickable and clicks it
	// in the current context.
	ClickWhenReady(ctx context.Context, selector string, timeout time.Duration) error
	// HrefWhenReady waits for the selector and returns its href attribute.
	HrefWhenReady(ctx context.Context, selector string, timeout time.Duration) (string, error)
	// WaitPresent waits for the selector to appear in the current context.
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	// OpenTab opens the secondary context at the given URL and switches to it.
	OpenTab(ctx context.Context, url string) error
	// CloseTab closes the secondary context and switches back to the primary
	// one. Closing an already-closed tab is a no-op.
	CloseTab(ctx context.Context) error
	// Close releases the whole session.
	Close(ctx context.Context) error
}

// BrowserFactory opens a fresh browser session for one crawl invocation.
type BrowserFactory interface {
	NewSession(ctx context.Context, driver, device string) (Browser, error)
}

// Archive is the artifact produced by a completed download.
type Archive struct {
	Name  string
	Path  string
	Bytes int64
}

// Archiver streams a resolved download URL into the local archive. A non-nil
// error means no artifact exists on disk; the error text is what gets
// recorded against the attempt.
type Archiver interface {
	Fetch(ctx context.Context, url string) (Archive, error)
}

// FileHasher digests an artifact on disk. An empty digest means the hash is
// unavailable; callers must not treat that as fatal.
type FileHasher interface {
	HashFile(path string) string
}

// HashSink persists a name→digest mapping outside the relational store.
type HashSink interface {
	Save(name, digest string) error
}

// Recorder durably records one item attempt. It is invoked exactly once per
// item regardless of outcome.
type Recorder interface {
	Record(ctx context.Context, jobID int64, item ItemDescriptor, outcome Outcome) error
}

// Update is the progress shape surfaced verbatim by the task API.
type Update struct {
	TaskID   uuid.UUID
	TS       time.Time
	State    string
	FileName string
	FileSize string
	Count    int
	Status   string
}

// ProgressReporter receives best-effort progress updates. Implementations
// must never block and never fail the caller.
type ProgressReporter interface {
	Report(update Update)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for pending tasks.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// SiteCrawler runs the full pagination/item pipeline for one job against one
// target site.
type SiteCrawler interface {
	Crawl(ctx context.Context, job Job) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
