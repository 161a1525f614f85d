package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/queue/memory"
	"github.com/crackdb/crawler/internal/store"
	"github.com/crackdb/crawler/internal/tasks"
	"github.com/crackdb/crawler/internal/vtscan"
)

type fakeBrowser struct{ closed bool }

func (f *fakeBrowser) Navigate(context.Context, string) error { return nil }
func (f *fakeBrowser) Elements(context.Context, string, time.Duration) ([]crawler.Element, error) {
	return nil, crawler.ErrWaitTimeout
}
func (f *fakeBrowser) ClickWhenReady(context.Context, string, time.Duration) error { return nil }
func (f *fakeBrowser) HrefWhenReady(context.Context, string, time.Duration) (string, error) {
	return "", nil
}
func (f *fakeBrowser) WaitPresent(context.Context, string, time.Duration) error { return nil }
func (f *fakeBrowser) OpenTab(context.Context, string) error                    { return nil }
func (f *fakeBrowser) CloseTab(context.Context) error                           { return nil }
func (f *fakeBrowser) Close(context.Context) error                              { f.closed = true; return nil }

type fakeBrowserFactory struct {
	browser *fakeBrowser
	err     error
}

func (f *fakeBrowserFactory) NewSession(context.Context, string, string) (crawler.Browser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.browser, nil
}

type fakeSiteCrawler struct {
	jobs []crawler.Job
	err  error
}

func (f *fakeSiteCrawler) Crawl(_ context.Context, job crawler.Job) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

type fakeCrawlStore struct{ jobs []store.JobRecord }

func (f *fakeCrawlStore) EnsureWebDriver(context.Context, string) (int64, error) { return 2, nil }
func (f *fakeCrawlStore) EnsureDevice(context.Context, string) (int64, error)    { return 3, nil }
func (f *fakeCrawlStore) EnsureCrawler(context.Context, string) (int64, error)   { return 1, nil }
func (f *fakeCrawlStore) CreateJob(_ context.Context, job store.JobRecord) (int64, error) {
	f.jobs = append(f.jobs, job)
	return 42, nil
}
func (f *fakeCrawlStore) GetOrCreateHash(context.Context, string) (int64, error) { return 0, nil }
func (f *fakeCrawlStore) InsertCrack(context.Context, store.CrackRecord) (int64, error) {
	return 0, nil
}
func (f *fakeCrawlStore) InsertCrackError(context.Context, int64, string, string) error { return nil }

type fakeRunner struct {
	report vtscan.Report
	err    error
	calls  []string
}

func (f *fakeRunner) Run(_ context.Context, _ uuid.UUID, fileName string, _ []byte) (vtscan.Report, error) {
	f.calls = append(f.calls, fileName)
	return f.report, f.err
}

type publishedEvent struct {
	topic   string
	payload any
}

type fakePublisher struct{ events []publishedEvent }

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	f.events = append(f.events, publishedEvent{topic: topic, payload: payload})
	return fmt.Sprintf("msg-%d", len(f.events)), nil
}

type fixture struct {
	queue     *memory.Queue
	sites     *crawler.Registry
	browser   *fakeBrowser
	site      *fakeSiteCrawler
	crawls    *fakeCrawlStore
	tasks     *tasks.Registry
	runner    *fakeRunner
	publisher *fakePublisher
	worker    *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		queue:     memory.New(4),
		sites:     crawler.NewRegistry(),
		browser:   &fakeBrowser{},
		site:      &fakeSiteCrawler{},
		crawls:    &fakeCrawlStore{},
		tasks:     tasks.NewRegistry(nil),
		runner:    &fakeRunner{},
		publisher: &fakePublisher{},
	}
	f.sites.Register("datoid", func(crawler.Browser) crawler.SiteCrawler { return f.site })
	f.worker = New(1, Deps{
		Queue:    f.queue,
		Sites:    f.sites,
		Browsers: &fakeBrowserFactory{browser: f.browser},
		Crawls:   f.crawls,
		Tasks:    f.tasks,
		Analyses: f.runner,
		Events:   f.publisher,
		Topic:    "crawler-events",
	})
	return f
}

// runOne enqueues the item, closes the queue, and runs the worker until the
// queue drains.
func (f *fixture) runOne(t *testing.T, item crawler.QueueItem) {
	t.Helper()
	require.NoError(t, f.queue.TryEnqueue(item))
	f.queue.Close()
	f.worker.Run(context.Background())
}

func TestWorker_CrawlTaskSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	taskID := uuid.New()
	f.tasks.Create(taskID, crawler.TaskCrawl)

	f.runOne(t, crawler.QueueItem{
		TaskID: taskID,
		Kind:   crawler.TaskCrawl,
		Crawl: crawler.CrawlRequest{
			TargetURL: "https://datoid.cz",
			Keyword:   "katy perry",
			Driver:    "chrome",
			Device:    "desktop",
		},
	})

	require.Len(t, f.site.jobs, 1)
	job := f.site.jobs[0]
	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, taskID, job.TaskID)
	assert.Equal(t, "katy perry", job.Keyword)

	require.Len(t, f.crawls.jobs, 1)
	assert.Equal(t, int64(1), f.crawls.jobs[0].CrawlerID)
	assert.Equal(t, int64(2), f.crawls.jobs[0].DriverID)
	assert.Equal(t, int64(3), f.crawls.jobs[0].DeviceID)

	assert.True(t, f.browser.closed, "browser session must be released")

	task, ok := f.tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, tasks.StateSuccess, task.State)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "crawler-events", f.publisher.events[0].topic)
}

func TestWorker_UnknownSiteFailsTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	taskID := uuid.New()
	f.tasks.Create(taskID, crawler.TaskCrawl)

	f.runOne(t, crawler.QueueItem{
		TaskID: taskID,
		Kind:   crawler.TaskCrawl,
		Crawl:  crawler.CrawlRequest{TargetURL: "https://unknown.example"},
	})

	task, ok := f.tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, tasks.StateFailure, task.State)
	assert.Contains(t, task.Error, "no crawler registered")
	assert.Empty(t, f.crawls.jobs, "no job row without a matching crawler")
}

func TestWorker_AnalysisTaskCompletesWithVerdict(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.runner.report = vtscan.Report{
		Status: "completed",
		Stats:  vtscan.Stats{Harmless: 10, Undetected: 5},
		SHA256: "deadbeef",
	}
	taskID := uuid.New()
	f.tasks.Create(taskID, crawler.TaskAnalysis)

	f.runOne(t, crawler.QueueItem{
		TaskID:   taskID,
		Kind:     crawler.TaskAnalysis,
		Analysis: crawler.AnalysisRequest{FileName: "suspect.zip", Data: []byte("payload")},
	})

	assert.Equal(t, []string{"suspect.zip"}, f.runner.calls)

	task, ok := f.tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, tasks.StateSuccess, task.State)
	result, isMap := task.Result.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, "deadbeef", result["sha256"])
	assert.Equal(t, 10, result["harmless"])
}

func TestWorker_AnalysisTimeoutFailsTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.runner.err = vtscan.ErrAnalysisTimeout
	taskID := uuid.New()
	f.tasks.Create(taskID, crawler.TaskAnalysis)

	f.runOne(t, crawler.QueueItem{
		TaskID:   taskID,
		Kind:     crawler.TaskAnalysis,
		Analysis: crawler.AnalysisRequest{FileName: "suspect.zip"},
	})

	task, ok := f.tasks.Get(taskID)
	require.True(t, ok)
	assert.Equal(t, tasks.StateFailure, task.State)
	assert.Contains(t, task.Error, "polling budget")
}
