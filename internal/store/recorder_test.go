package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crackdb/crawler/internal/crawler"
)

type crackErrorRow struct {
	crackID  int64
	category string
	message  string
}

type fakeCrawlStore struct {
	hashIDs    map[string]int64
	hashErr    error
	cracks     []CrackRecord
	crackErrs  []crackErrorRow
	nextCrack  int64
	insertFail error
}

func (f *fakeCrawlStore) EnsureWebDriver(context.Context, string) (int64, error) { return 1, nil }
func (f *fakeCrawlStore) EnsureDevice(context.Context, string) (int64, error)    { return 1, nil }
func (f *fakeCrawlStore) EnsureCrawler(context.Context, string) (int64, error)   { return 1, nil }
func (f *fakeCrawlStore) CreateJob(context.Context, JobRecord) (int64, error)    { return 1, nil }

func (f *fakeCrawlStore) GetOrCreateHash(_ context.Context, digest string) (int64, error) {
	if f.hashErr != nil {
		return 0, f.hashErr
	}
	id, ok := f.hashIDs[digest]
	if !ok {
		return 0, fmt.Errorf("unexpected digest %q", digest)
	}
	return id, nil
}

func (f *fakeCrawlStore) InsertCrack(_ context.Context, rec CrackRecord) (int64, error) {
	if f.insertFail != nil {
		return 0, f.insertFail
	}
	f.nextCrack++
	rec.ID = f.nextCrack
	f.cracks = append(f.cracks, rec)
	return rec.ID, nil
}

func (f *fakeCrawlStore) InsertCrackError(_ context.Context, crackID int64, category, message string) error {
	f.crackErrs = append(f.crackErrs, crackErrorRow{crackID: crackID, category: category, message: message})
	return nil
}

func item() crawler.ItemDescriptor {
	return crawler.ItemDescriptor{Title: "Roar", Extension: ".MP3", Size: "15 MB"}
}

func TestRecorder_SuccessLinksHashAndArchive(t *testing.T) {
	t.Parallel()

	fs := &fakeCrawlStore{hashIDs: map[string]int64{"abc123": 77}}
	r := NewRecorder(fs, nil)

	outcome := crawler.Outcome{
		Kind:        crawler.OutcomeSuccess,
		ArchiveName: "roar.zip",
		Digest:      "abc123",
	}
	require.NoError(t, r.Record(context.Background(), 9, item(), outcome))

	require.Len(t, fs.cracks, 1)
	rec := fs.cracks[0]
	assert.Equal(t, int64(9), rec.JobID)
	require.NotNil(t, rec.ArchiveName)
	assert.Equal(t, "roar.zip", *rec.ArchiveName)
	require.NotNil(t, rec.HashID)
	assert.Equal(t, int64(77), *rec.HashID)
	assert.Empty(t, fs.crackErrs)
}

func TestRecorder_FailureProducesOneCrackAndOneError(t *testing.T) {
	t.Parallel()

	fs := &fakeCrawlStore{}
	r := NewRecorder(fs, nil)

	outcome := crawler.Outcome{
		Kind:   crawler.OutcomeTimeout,
		Errors: []string{"resolve file link: wait timed out"},
	}
	require.NoError(t, r.Record(context.Background(), 9, item(), outcome))

	require.Len(t, fs.cracks, 1)
	assert.Nil(t, fs.cracks[0].ArchiveName)
	assert.Nil(t, fs.cracks[0].HashID)

	require.Len(t, fs.crackErrs, 1)
	assert.Equal(t, "timeout", fs.crackErrs[0].category)
	assert.Equal(t, "resolve file link: wait timed out", fs.crackErrs[0].message)
	assert.Equal(t, fs.cracks[0].ID, fs.crackErrs[0].crackID)
}

func TestRecorder_HashResolutionFailureDegrades(t *testing.T) {
	t.Parallel()

	fs := &fakeCrawlStore{hashErr: fmt.Errorf("connection refused")}
	r := NewRecorder(fs, nil)

	outcome := crawler.Outcome{
		Kind:        crawler.OutcomeSuccess,
		ArchiveName: "roar.zip",
		Digest:      "abc123",
	}
	require.NoError(t, r.Record(context.Background(), 9, item(), outcome))

	require.Len(t, fs.cracks, 1)
	assert.Nil(t, fs.cracks[0].HashID, "crack survives even when the hash row cannot be resolved")
	require.NotNil(t, fs.cracks[0].ArchiveName)
}

func TestRecorder_InsertFailurePropagates(t *testing.T) {
	t.Parallel()

	fs := &fakeCrawlStore{insertFail: fmt.Errorf("deadlock detected")}
	r := NewRecorder(fs, nil)

	err := r.Record(context.Background(), 9, item(), crawler.Outcome{Kind: crawler.OutcomeSuccess})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
}
