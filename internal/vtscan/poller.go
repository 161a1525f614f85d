package vtscan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
	"github.com/crackdb/crawler/internal/store"
)

// ErrAnalysisTimeout is returned when the polling budget is exhausted before
// the remote analysis completes.
var ErrAnalysisTimeout = errors.New("analysis did not complete within the polling budget")

// Scanner is the client capability the poller consumes.
type Scanner interface {
	Submit(ctx context.Context, fileName string, data []byte) (string, error)
	Analysis(ctx context.Context, analysisID string) (Report, error)
}

// PollerConfig bounds the polling loop.
type PollerConfig struct {
	// Interval is the delay between verdict checks.
	Interval time.Duration
	// Budget caps the total time spent waiting for one verdict.
	Budget time.Duration
}

// Poller drives one sample through submit, bounded polling, and verdict
// persistence.
type Poller struct {
	client   Scanner
	scans    store.ScanStore
	cfg      PollerConfig
	progress crawler.ProgressReporter
	logger   *zap.Logger
}

// NewPoller builds a poller. Zero config fields fall back to a 10 second
// interval and a 10 minute budget.
func NewPoller(client Scanner, scans store.ScanStore, cfg PollerConfig, progress crawler.ProgressReporter, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		scans:    scans,
		cfg:      cfg,
		progress: progress,
		logger:   logger,
	}
}

// Run submits the artifact and polls until the verdict completes, the budget
// runs out, or the context is canceled. Persistence failures after a
// completed verdict are logged, not fatal: the verdict is still returned to
// the caller.
func (p *Poller) Run(ctx context.Context, taskID uuid.UUID, fileName string, data []byte) (Report, error) {
	remoteID, err := p.client.Submit(ctx, fileName, data)
	if err != nil {
		return Report{}, fmt.Errorf("submit %s: %w", fileName, err)
	}
	p.logger.Info("sample submitted",
		zap.String("file_name", fileName), zap.String("remote_id", remoteID))

	sampleID, err := p.scans.InsertSample(ctx, fileName, remoteID)
	if err != nil {
		return Report{}, fmt.Errorf("register sample %s: %w", fileName, err)
	}

	maxAttempts := int(p.cfg.Budget / p.cfg.Interval)
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report, err := p.client.Analysis(ctx, remoteID)
		switch {
		case errors.Is(err, ErrNotReady):
			p.report(taskID, fileName, fmt.Sprintf("throttled, attempt %d/%d", attempt, maxAttempts))
		case err != nil:
			return Report{}, fmt.Errorf("poll analysis for %s: %w", fileName, err)
		case report.Completed():
			p.persist(ctx, sampleID, report)
			return report, nil
		default:
			p.report(taskID, fileName, fmt.Sprintf("status %s, attempt %d/%d", report.Status, attempt, maxAttempts))
		}

		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, p.cfg.Interval); err != nil {
			return Report{}, err
		}
	}
	return Report{}, fmt.Errorf("%s: %w", fileName, ErrAnalysisTimeout)
}

func (p *Poller) persist(ctx context.Context, sampleID int64, report Report) {
	analysisID, err := p.scans.InsertAnalysis(ctx, store.AnalysisRecord{
		SampleID:   sampleID,
		Status:     report.Status,
		Harmless:   report.Stats.Harmless,
		Malicious:  report.Stats.Malicious,
		Undetected: report.Stats.Undetected,
		SHA256:     report.SHA256,
	})
	if err != nil {
		p.logger.Error("persisting analysis failed", zap.Int64("sample_id", sampleID), zap.Error(err))
		return
	}

	engines := make([]store.EngineResult, 0, len(report.Results))
	for name, v := range report.Results {
		engines = append(engines, store.EngineResult{Engine: name, Category: v.Category, Result: v.Result})
	}
	if err := p.scans.InsertAntivirus(ctx, analysisID, engines); err != nil {
		p.logger.Error("persisting engine verdicts failed", zap.Int64("analysis_id", analysisID), zap.Error(err))
	}
	if err := p.scans.MarkSampleAnalyzed(ctx, sampleID); err != nil {
		p.logger.Error("marking sample analyzed failed", zap.Int64("sample_id", sampleID), zap.Error(err))
	}
}

func (p *Poller) report(taskID uuid.UUID, fileName, status string) {
	if p.progress == nil {
		return
	}
	p.progress.Report(crawler.Update{
		TaskID:   taskID,
		TS:       time.Now(),
		State:    "ANALYSING",
		FileName: fileName,
		Status:   status,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
