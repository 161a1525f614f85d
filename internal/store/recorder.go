package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crackdb/crawler/internal/crawler"
)

// Recorder maps per-item crawl outcomes onto the relational schema. Every
// attempt produces exactly one crack row; failed attempts additionally get
// one error row per categorized message.
type Recorder struct {
	crawls CrawlStore
	logger *zap.Logger
}

// NewRecorder builds a Recorder on top of a CrawlStore.
func NewRecorder(crawls CrawlStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{crawls: crawls, logger: logger}
}

// Record persists one item attempt. The hash row is resolved before the
// crack row so the crack can reference it; a failed hash resolution degrades
// to a crack without a hash link rather than losing the attempt.
func (r *Recorder) Record(ctx context.Context, jobID int64, item crawler.ItemDescriptor, outcome crawler.Outcome) error {
	rec := CrackRecord{
		JobID:     jobID,
		Title:     item.Title,
		Extension: item.Extension,
		Size:      item.Size,
	}

	if !outcome.Failed() {
		rec.ArchiveName = &outcome.ArchiveName
		if outcome.Digest != "" {
			hashID, err := r.crawls.GetOrCreateHash(ctx, outcome.Digest)
			if err != nil {
				r.logger.Error("hash row resolution failed, storing crack without hash",
					zap.String("title", item.Title), zap.Error(err))
			} else {
				rec.HashID = &hashID
			}
		}
	}

	crackID, err := r.crawls.InsertCrack(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert crack for %q: %w", item.Title, err)
	}

	for _, msg := range outcome.Errors {
		if err := r.crawls.InsertCrackError(ctx, crackID, outcome.Kind.String(), msg); err != nil {
			return fmt.Errorf("insert crack error for %q: %w", item.Title, err)
		}
	}
	return nil
}
