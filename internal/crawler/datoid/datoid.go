// Package datoid implements the site crawler for datoid.cz search pages.
package datoid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

// Pattern is the URL substring this crawler registers under.
const Pattern = "datoid"

// Selectors are a contract with the site's markup.
const (
	itemSelector            = "a:has(span.filename)"
	nextPageSelector        = "a.next.ajax"
	beginDownloadSelector   = "a.btn-download.detail-download"
	confirmDownloadSelector = "a.download"
	finalLinkSelector       = "a.link-to-file"
)

// Config tunes the crawl waits and pagination arithmetic.
type Config struct {
	// ItemWait bounds the wait for search results to render.
	ItemWait time.Duration
	// ControlWait bounds waits for navigation controls.
	ControlWait time.Duration
	// FinalLinkWait bounds the wait for server-side file preparation.
	FinalLinkWait time.Duration
	// PageSize is the number of results per search page.
	PageSize int
}

// DefaultConfig mirrors the site's observed behavior: results render within
// seconds, but file preparation can take tens of seconds.
func DefaultConfig() Config {
	return Config{
		ItemWait:      10 * time.Second,
		ControlWait:   5 * time.Second,
		FinalLinkWait: 40 * time.Second,
		PageSize:      25,
	}
}

// Deps are the collaborators a Crawler needs besides the browser session.
type Deps struct {
	Gate      *crawler.SizeGate
	Extractor *crawler.ItemExtractor
	Archiver  crawler.Archiver
	Hasher    crawler.FileHasher
	Hashes    crawler.HashSink
	Recorder  crawler.Recorder
	Progress  crawler.ProgressReporter
	Logger    *zap.Logger
}

// Crawler walks datoid.cz search pages for one job: paginate, gate each item
// by declared size, resolve the real download link through the detail tab,
// archive, hash, and record.
type Crawler struct {
	browser crawler.Browser
	cfg     Config
	deps    Deps
}

// NewFactory returns a registry factory binding cfg and deps; the browser
// session is supplied per crawl.
func NewFactory(cfg Config, deps Deps) crawler.Factory {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return func(b crawler.Browser) crawler.SiteCrawler {
		return &Crawler{browser: b, cfg: cfg, deps: deps}
	}
}

// Crawl runs the paginated pipeline until the next-page affordance disappears.
// Per-item failures are recorded and crawling continues; only a broken
// session ends the run early, and even that is reported through logs rather
// than an error so partial results stay persisted.
func (c *Crawler) Crawl(ctx context.Context, job crawler.Job) error {
	logger := c.deps.Logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("keyword", job.Keyword))

	for page := 1; ; page++ {
		url := pageURL(job.BaseURL, job.Keyword, page)
		if err := c.browser.Navigate(ctx, url); err != nil {
			logger.Error("page navigation failed, ending crawl",
				zap.Int("page", page), zap.Error(err))
			return nil
		}

		items, err := c.browser.Elements(ctx, itemSelector, c.cfg.ItemWait)
		if err != nil {
			if errors.Is(err, crawler.ErrWaitTimeout) {
				logger.Info("no results rendered, ending crawl", zap.Int("page", page))
			} else {
				logger.Error("result listing failed, ending crawl",
					zap.Int("page", page), zap.Error(err))
			}
			return nil
		}

		for idx, el := range items {
			item := c.deps.Extractor.Parse(el.Text, el.Href)
			outcome := c.processItem(ctx, job, item)

			count := idx + 1 + c.cfg.PageSize*(page-1)
			c.report(job, item, count, outcome.Kind.String())

			if err := c.deps.Recorder.Record(ctx, job.ID, item, outcome); err != nil {
				logger.Error("recording item attempt failed",
					zap.String("title", item.Title), zap.Error(err))
			}
		}

		if err := c.browser.WaitPresent(ctx, nextPageSelector, c.cfg.ControlWait); err != nil {
			if !errors.Is(err, crawler.ErrWaitTimeout) {
				logger.Error("pagination check failed, ending crawl", zap.Error(err))
			}
			return nil
		}
	}
}

// processItem takes one item through gate, link resolution, download, and
// hashing. It always returns a tagged outcome; it never returns an error.
func (c *Crawler) processItem(ctx context.Context, job crawler.Job, item crawler.ItemDescriptor) crawler.Outcome {
	if err := c.deps.Gate.Check(item.Size); err != nil {
		return crawler.Outcome{Kind: crawler.OutcomeSizeRejected, Errors: []string{err.Error()}}
	}

	finalURL, err := c.resolveDownloadURL(ctx, job, item)
	if err != nil {
		kind := crawler.OutcomeDownloadError
		if errors.Is(err, crawler.ErrWaitTimeout) {
			kind = crawler.OutcomeTimeout
		}
		return crawler.Outcome{Kind: kind, Errors: []string{err.Error()}}
	}

	archive, err := c.deps.Archiver.Fetch(ctx, finalURL)
	if err != nil {
		return crawler.Outcome{Kind: crawler.OutcomeDownloadError, Errors: []string{err.Error()}}
	}

	// An empty digest means hashing failed; the artifact is still kept.
	digest := c.deps.Hasher.HashFile(archive.Path)
	if digest != "" {
		if err := c.deps.Hashes.Save(archive.Name, digest); err != nil {
			c.deps.Logger.Error("saving hash entry failed",
				zap.String("archive", archive.Name), zap.Error(err))
		}
	}

	return crawler.Outcome{
		Kind:        crawler.OutcomeSuccess,
		ArchiveName: archive.Name,
		ArchivePath: archive.Path,
		Bytes:       archive.Bytes,
		Digest:      digest,
	}
}

// resolveDownloadURL follows the multi-hop download flow in a detail tab:
// begin download, confirm, then wait for the prepared file link. The tab is
// always closed before returning.
func (c *Crawler) resolveDownloadURL(ctx context.Context, job crawler.Job, item crawler.ItemDescriptor) (string, error) {
	if err := c.browser.OpenTab(ctx, item.DetailURL); err != nil {
		return "", fmt.Errorf("open detail tab: %w", err)
	}
	defer c.browser.CloseTab(ctx) //nolint:errcheck

	if err := c.browser.ClickWhenReady(ctx, beginDownloadSelector, c.cfg.ControlWait); err != nil {
		return "", fmt.Errorf("begin download: %w", err)
	}

	c.report(job, item, 0, "waiting for file preparation")

	if err := c.browser.ClickWhenReady(ctx, confirmDownloadSelector, c.cfg.ControlWait); err != nil {
		return "", fmt.Errorf("confirm download: %w", err)
	}

	href, err := c.browser.HrefWhenReady(ctx, finalLinkSelector, c.cfg.FinalLinkWait)
	if err != nil {
		return "", fmt.Errorf("resolve file link: %w", err)
	}
	return href, nil
}

func (c *Crawler) report(job crawler.Job, item crawler.ItemDescriptor, count int, status string) {
	c.deps.Progress.Report(crawler.Update{
		TaskID:   job.TaskID,
		TS:       time.Now(),
		State:    "CRAWLING",
		FileName: item.Title,
		FileSize: item.Size,
		Count:    count,
		Status:   status,
	})
}

// pageURL builds the 1-based search page URL; spaces in the keyword become
// hyphens.
func pageURL(base, keyword string, page int) string {
	slug := strings.ReplaceAll(keyword, " ", "-")
	return strings.TrimSuffix(base, "/") + "/s/" + slug + "/" + strconv.Itoa(page)
}
