package ledger

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "fansync/pkg/errors"
	"fansync/pkg/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := Open(filepath.Join(t.TempDir(), "alice", FileName), nil)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func postEntry(sourceID, mediaID, ts int64) Entry {
	return Entry{
		SourceType: string(models.SourcePosts),
		Collection: models.CollectionPosts,
		Timestamp:  ts,
		SourceID:   sourceID,
		MediaID:    mediaID,
	}
}

func TestHighWaterMarkMissingFile(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	ts, err := l.HighWaterMark(ctx, models.CollectionPosts)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	has, err := l.Has(ctx, models.Key{SourceType: models.SourcePosts, SourceRecordID: 1, MediaID: 1})
	require.NoError(t, err)
	assert.False(t, has)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := l.Latest(ctx, models.CollectionAvatar)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = os.Stat(l.Path())
	assert.True(t, os.IsNotExist(err), "reads must not create the ledger")
	_, err = os.Stat(filepath.Dir(l.Path()))
	assert.True(t, os.IsNotExist(err))
}

func TestRecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	inserted, err := l.Record(ctx, postEntry(10, 5, 1000))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = l.Record(ctx, postEntry(10, 5, 1000))
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	has, err := l.Has(ctx, models.Key{SourceType: models.SourcePosts, SourceRecordID: 10, MediaID: 5})
	require.NoError(t, err)
	assert.True(t, has)
}

func TestHighWaterMarkPerCollection(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	for _, e := range []Entry{
		postEntry(1, 1, 300),
		postEntry(2, 2, 100),
		{SourceType: string(models.SourceStories), Collection: models.CollectionStories, Timestamp: 900, SourceID: 3, MediaID: 3},
		{SourceType: string(models.SourceStories), Collection: models.CollectionHighlights, Timestamp: 50, SourceID: 4, MediaID: 4},
	} {
		_, err := l.Record(ctx, e)
		require.NoError(t, err)
	}

	ts, err := l.HighWaterMark(ctx, models.CollectionPosts)
	require.NoError(t, err)
	assert.Equal(t, int64(300), ts)

	ts, err = l.HighWaterMark(ctx, models.CollectionHighlights)
	require.NoError(t, err)
	assert.Equal(t, int64(50), ts)

	ts, err = l.HighWaterMark(ctx, models.CollectionArchived)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	// an older row never lowers the mark
	_, err = l.Record(ctx, postEntry(5, 5, 10))
	require.NoError(t, err)
	ts, err = l.HighWaterMark(ctx, models.CollectionPosts)
	require.NoError(t, err)
	assert.Equal(t, int64(300), ts)
}

func TestLatestAsset(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	_, err := l.Record(ctx, AssetEntry(models.CollectionAvatar, 100))
	require.NoError(t, err)
	_, err = l.Record(ctx, AssetEntry(models.CollectionAvatar, 200))
	require.NoError(t, err)
	_, err = l.Record(ctx, AssetEntry(models.CollectionHeader, 300))
	require.NoError(t, err)

	e, ok, err := l.Latest(ctx, models.CollectionAvatar)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(200), e.Timestamp)

	has, err := l.Has(ctx, models.Key{SourceType: "avatar", SourceRecordID: 100, MediaID: 100})
	require.NoError(t, err)
	assert.True(t, has)
}

func TestLedgerSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bob", FileName)

	l := Open(path, nil)
	_, err := l.Record(ctx, postEntry(1, 1, 42))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reopened := Open(path, nil)
	defer reopened.Close()
	ts, err := reopened.HighWaterMark(ctx, models.CollectionPosts)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ts)
}

func TestUnreadableLedgerDegradesToZero(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 256)), 0644))

	l := Open(path, &Options{MaxRetries: 1})
	defer l.Close()

	ts, err := l.HighWaterMark(ctx, models.CollectionPosts)
	assert.Equal(t, int64(0), ts)
	require.Error(t, err)
	assert.True(t, errs.IsLedger(err))
}

func TestConcurrentRecordsForSameUser(t *testing.T) {
	ctx := context.Background()
	registry := NewRegistry(nil)
	defer registry.Close()

	dir := filepath.Join(t.TempDir(), "carol")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			l := registry.For(dir)
			for i := 0; i < 25; i++ {
				_, err := l.Record(ctx, postEntry(int64(worker), int64(i), int64(worker*100+i)))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	n, err := registry.For(dir).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestRegistrySharesLedgerPerDirectory(t *testing.T) {
	registry := NewRegistry(nil)
	dir := t.TempDir()

	a := registry.For(filepath.Join(dir, "alice"))
	assert.Same(t, a, registry.For(filepath.Join(dir, "alice")+"/"))
	assert.NotSame(t, a, registry.For(filepath.Join(dir, "bob")))
	assert.Equal(t, filepath.Join(dir, "alice", FileName), a.Path())
	assert.NoError(t, registry.Close())
}

func TestEntryFor(t *testing.T) {
	item := models.MediaItem{
		SourceType:     models.SourceStories,
		Collection:     models.CollectionHighlights,
		SourceRecordID: 7,
		MediaID:        8,
	}
	e := EntryFor(item)
	assert.Equal(t, "stories", e.SourceType)
	assert.Equal(t, models.CollectionHighlights, e.Collection)
	assert.Equal(t, int64(7), e.SourceID)
	assert.Equal(t, int64(8), e.MediaID)
}
