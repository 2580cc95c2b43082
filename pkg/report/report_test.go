package report

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "fansync/pkg/errors"
)

func TestAddErrorExtractsContext(t *testing.T) {
	r := New("main")
	err := errs.Wrap(errs.NewTransport(503, "GET /posts", nil), "main", "posts", 42, 20)

	r.AddError(ScopeUser, "alice", fmt.Errorf("walk: %w", err))

	require.Len(t, r.Failures, 1)
	f := r.Failures[0]
	assert.Equal(t, ScopeUser, f.Scope)
	assert.Equal(t, "alice", f.Username)
	assert.Equal(t, "posts", f.Collection)
	assert.Equal(t, int64(42), f.UserID)
	assert.Equal(t, 20, f.Cursor)
	assert.Equal(t, "transport", f.Kind)
	assert.Equal(t, 503, f.Status)
	assert.False(t, f.Time.IsZero())
	assert.False(t, r.Aborted)
}

func TestAccountFailureMarksAborted(t *testing.T) {
	r := New("main")
	r.Add(Failure{Scope: ScopeAccount, Collection: "subscriptions", Error: "boom"})
	assert.True(t, r.Aborted)
	assert.Equal(t, 1, r.FailureCount())
}

func TestCountersAreConcurrencySafe(t *testing.T) {
	r := New("main")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddDownloaded(10)
			r.AddSkipped()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, r.Downloaded)
	assert.Equal(t, 50, r.Skipped)
	assert.Equal(t, int64(500), r.Bytes)
}

func TestStoreSaveAndLatest(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	older := New("main")
	older.StartedAt = time.Unix(1000, 0)
	older.Add(Failure{Scope: ScopeItem, MediaID: 5, Error: "reset"})
	older.Finish()
	_, err = store.Save(older)
	require.NoError(t, err)

	newer := New("main")
	newer.StartedAt = time.Unix(2000, 0)
	newer.AddDownloaded(3)
	path, err := store.Save(newer)
	require.NoError(t, err)
	assert.Equal(t, store.Dir(), filepath.Dir(path))

	other := New("second")
	_, err = store.Save(other)
	require.NoError(t, err)

	paths, err := store.List("main")
	require.NoError(t, err)
	assert.Len(t, paths, 2)

	latest, err := store.Latest("main")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)
	assert.Equal(t, 1, latest.Downloaded)

	tmp, _ := filepath.Glob(filepath.Join(store.Dir(), "*.tmp"))
	assert.Empty(t, tmp)
}

func TestStoreLatestWithoutReports(t *testing.T) {
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)

	r, err := store.Latest("nobody")
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestNewStoreDefaultsToDataDirectory(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only")
	}
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	store, err := NewStore("", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dataHome, "fansync", "reports"), store.Dir())
}
