// Package worker consumes queued tasks and drives them through the crawl or
// analysis pipeline.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/store"
	"github.com/crackdb/crawler/internal/tasks"
	"github.com/crackdb/crawler/internal/vtscan"
)

// AnalysisRunner drives one artifact through submit, poll, and persistence.
type AnalysisRunner interface {
	Run(ctx context.Context, taskID uuid.UUID, fileName string, data []byte) (vtscan.Report, error)
}

// ByteHasher digests in-memory payloads.
type ByteHasher interface {
	Hash(data []byte) string
}

// Deps are the collaborators one worker needs.
type Deps struct {
	Queue    crawler.Queue
	Sites    *crawler.Registry
	Browsers crawler.BrowserFactory
	Crawls   store.CrawlStore
	Tasks    *tasks.Registry
	Analyses AnalysisRunner
	Hasher   ByteHasher
	Progress crawler.ProgressReporter
	Events   crawler.Publisher
	Topic    string
	Clock    crawler.Clock
	Logger   *zap.Logger
}

// Worker runs queued tasks one at a time.
type Worker struct {
	id   int
	deps Deps
}

// New creates a worker with the given id.
func New(id int, deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	deps.Logger = deps.Logger.With(zap.Int("worker", id))
	return &Worker{id: id, deps: deps}
}

// Run dequeues tasks until the context ends or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.deps.Logger.Info("queue drained, worker exiting", zap.Error(err))
			}
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item crawler.QueueItem) {
	logger := w.deps.Logger.With(
		zap.String("task_id", item.TaskID.String()),
		zap.String("kind", string(item.Kind)))
	logger.Info("task started")

	var err error
	switch item.Kind {
	case crawler.TaskCrawl:
		err = w.processCrawl(ctx, item)
	case crawler.TaskAnalysis:
		err = w.processAnalysis(ctx, item)
	default:
		err = fmt.Errorf("unknown task kind %q", item.Kind)
	}

	if err != nil {
		logger.Error("task failed", zap.Error(err))
		w.deps.Tasks.SetFailure(item.TaskID, err.Error())
		w.publish(ctx, item, tasks.StateFailure)
		return
	}
	logger.Info("task completed")
	w.publish(ctx, item, tasks.StateSuccess)
}

// processCrawl resolves the site crawler, persists the job row, opens a
// browser session, and runs the full pagination pipeline.
func (w *Worker) processCrawl(ctx context.Context, item crawler.QueueItem) error {
	req := item.Crawl
	w.deps.Tasks.SetState(item.TaskID, tasks.StateCrawling)

	factory, ok := w.deps.Sites.Lookup(req.TargetURL)
	if !ok {
		return fmt.Errorf("no crawler registered for %s", req.TargetURL)
	}

	crawlerID, err := w.deps.Crawls.EnsureCrawler(ctx, req.TargetURL)
	if err != nil {
		return fmt.Errorf("resolve crawler row: %w", err)
	}
	driverID, err := w.deps.Crawls.EnsureWebDriver(ctx, req.Driver)
	if err != nil {
		return fmt.Errorf("resolve webdriver row: %w", err)
	}
	deviceID, err := w.deps.Crawls.EnsureDevice(ctx, req.Device)
	if err != nil {
		return fmt.Errorf("resolve device row: %w", err)
	}

	startedAt := w.now()
	jobID, err := w.deps.Crawls.CreateJob(ctx, store.JobRecord{
		TaskID:    item.TaskID,
		CrawlerID: crawlerID,
		DriverID:  driverID,
		DeviceID:  deviceID,
		Keyword:   req.Keyword,
		StartedAt: startedAt,
	})
	if err != nil {
		return fmt.Errorf("create crawl job: %w", err)
	}

	browser, err := w.deps.Browsers.NewSession(ctx, req.Driver, req.Device)
	if err != nil {
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		if err := browser.Close(ctx); err != nil {
			w.deps.Logger.Warn("closing browser session failed", zap.Error(err))
		}
	}()

	job := crawler.Job{
		ID:        jobID,
		TaskID:    item.TaskID,
		BaseURL:   req.TargetURL,
		Keyword:   req.Keyword,
		Driver:    req.Driver,
		Device:    req.Device,
		StartedAt: startedAt,
	}
	if err := factory(browser).Crawl(ctx, job); err != nil {
		return fmt.Errorf("crawl job %d: %w", jobID, err)
	}

	w.deps.Tasks.SetCompleted(item.TaskID, map[string]any{"job_id": jobID})
	return nil
}

// processAnalysis submits the artifact for scanning and waits for a verdict
// within the poller's budget.
func (w *Worker) processAnalysis(ctx context.Context, item crawler.QueueItem) error {
	req := item.Analysis
	w.deps.Tasks.SetState(item.TaskID, tasks.StateAnalysing)
	w.report(item.TaskID, req.FileName, "uploading sample")

	if w.deps.Hasher != nil {
		w.deps.Logger.Info("submitting sample",
			zap.String("file_name", req.FileName),
			zap.Int("bytes", len(req.Data)),
			zap.String("sha256", w.deps.Hasher.Hash(req.Data)))
	}

	report, err := w.deps.Analyses.Run(ctx, item.TaskID, req.FileName, req.Data)
	if err != nil {
		return fmt.Errorf("analysis of %s: %w", req.FileName, err)
	}

	w.deps.Tasks.SetCompleted(item.TaskID, map[string]any{
		"status":     report.Status,
		"harmless":   report.Stats.Harmless,
		"malicious":  report.Stats.Malicious,
		"undetected": report.Stats.Undetected,
		"sha256":     report.SHA256,
	})
	return nil
}

// publish pushes a best-effort completion event; delivery failures only log.
func (w *Worker) publish(ctx context.Context, item crawler.QueueItem, state string) {
	if w.deps.Events == nil {
		return
	}
	payload := map[string]any{
		"task_id":      item.TaskID.String(),
		"kind":         string(item.Kind),
		"state":        state,
		"completed_at": w.now().UTC().Format(time.RFC3339),
	}
	if _, err := w.deps.Events.Publish(ctx, w.deps.Topic, payload); err != nil {
		w.deps.Logger.Warn("publishing completion event failed", zap.Error(err))
	}
}

func (w *Worker) report(taskID uuid.UUID, fileName, status string) {
	if w.deps.Progress == nil {
		return
	}
	w.deps.Progress.Report(crawler.Update{
		TaskID:   taskID,
		TS:       w.now(),
		State:    tasks.StateAnalysing,
		FileName: fileName,
		Status:   status,
	})
}

func (w *Worker) now() time.Time {
	if w.deps.Clock != nil {
		return w.deps.Clock.Now()
	}
	return time.Now()
}
