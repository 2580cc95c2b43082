package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"fansync/pkg/config"
)

const testXBC = "0123456789abcdefghijklmnopqrstuvwxyz0123"

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()

	session := &Session{
		Name:      "main",
		Cookie:    "sess=abcdef123456; auth_id=42",
		UserAgent: "TestAgent/1.0",
		XBC:       testXBC,
	}
	require.NoError(t, manager.Store(session))
	assert.False(t, session.LastModified.IsZero())

	retrieved, err := manager.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, session.Cookie, retrieved.Cookie)
	assert.Equal(t, session.XBC, retrieved.XBC)

	sessions, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	require.NoError(t, manager.Delete("main"))
	_, err = manager.Retrieve("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, mockStore.Count())

	err = manager.Delete("main")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestManagerStoreValidates(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Session{Cookie: "c"}))
	assert.Error(t, manager.Store(&Session{Name: "main"}))
	assert.Error(t, manager.Store(&Session{Name: "main", Cookie: "c", XBC: "short"}))
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("locked")
	fallback := NewMockStore()

	manager := NewManagerWithStores(broken, fallback)
	require.NoError(t, manager.Store(&Session{Name: "main", Cookie: "c"}))
	assert.True(t, fallback.Exists("main"))
	assert.False(t, broken.Exists("main"))
}

func TestManagerListKeepsNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()
	now := time.Now()
	require.NoError(t, older.Store(&Session{Name: "main", Cookie: "old", LastModified: now.Add(-time.Hour)}))
	require.NoError(t, newer.Store(&Session{Name: "main", Cookie: "new", LastModified: now}))
	require.NoError(t, newer.Store(&Session{Name: "alt", Cookie: "x", LastModified: now}))

	sessions, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alt", sessions[0].Name)
	assert.Equal(t, "new", sessions[1].Cookie)
}

func TestManagerFill(t *testing.T) {
	manager, store := NewMockManager()
	require.NoError(t, store.Store(&Session{Name: "main", Cookie: "stored", UserAgent: "UA", XBC: testXBC}))

	cfg := config.DefaultConfig()
	cfg.Accounts = []config.Account{
		{Name: "main", UserAgent: "configured"},
		{Name: "other", Cookie: "own"},
	}
	manager.Fill(cfg)

	assert.Equal(t, "stored", cfg.Accounts[0].Cookie)
	assert.Equal(t, "configured", cfg.Accounts[0].UserAgent)
	assert.Equal(t, testXBC, cfg.Accounts[0].XBCNonce)
	assert.Equal(t, "own", cfg.Accounts[1].Cookie)
	assert.Empty(t, cfg.Accounts[1].XBCNonce)
}

func TestSanitize(t *testing.T) {
	s := Sanitize(&Session{Name: "main", Cookie: "sess=abcdef123456", XBC: testXBC})
	assert.Equal(t, "main", s.Name)
	assert.Equal(t, "sess...3456", s.Cookie)
	assert.Equal(t, "0123...0123", s.XBC)
	assert.Nil(t, Sanitize(nil))
	assert.Equal(t, "********", maskString("short"))
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("FANSYNC_PASSPHRASE", "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	session := &Session{Name: "encrypted", Cookie: "sess=plaintext_cookie", XBC: testXBC}
	require.NoError(t, store.Store(session))

	retrieved, err := store.Retrieve("encrypted")
	require.NoError(t, err)
	assert.Equal(t, session.Cookie, retrieved.Cookie)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Contains(content, []byte("plaintext_cookie")))

	// a different passphrase cannot read the file
	t.Setenv("FANSYNC_PASSPHRASE", "wrong")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("encrypted")
	assert.Error(t, err)

	t.Setenv("FANSYNC_PASSPHRASE", "test_passphrase_123")
	require.NoError(t, store.Delete("encrypted"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	t.Setenv("FANSYNC_PASSPHRASE", "")
	dir := t.TempDir()

	store, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	require.NoError(t, store.Store(&Session{Name: "main", Cookie: "c"}))
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))

	reopened, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"))
	require.NoError(t, err)
	assert.True(t, reopened.Exists("main"))
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("FANSYNC_COOKIE", "env_cookie")
	t.Setenv("FANSYNC_X_BC", testXBC)
	t.Setenv("FANSYNC_ACCOUNT", "")

	store := NewEnvironmentStore()
	session, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", session.Name)
	assert.Equal(t, "env_cookie", session.Cookie)
	assert.Equal(t, testXBC, session.XBC)

	_, err = store.Retrieve("someone-else")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	assert.ErrorIs(t, store.Store(&Session{}), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Session{Name: "b", Cookie: "cookie-b"}))
	require.NoError(t, store.Store(&Session{Name: "a", Cookie: "cookie-a"}))

	sessions, err := store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].Name)

	require.NoError(t, store.Delete("a"))
	assert.False(t, store.Exists("a"))
	assert.ErrorIs(t, store.Delete("a"), ErrCredentialsNotFound)

	sessions, err = store.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "cookie-b", sessions[0].Cookie)
}

func TestSessionGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowSessionExtractionGuide(&buf)
	assert.Contains(t, buf.String(), "x-bc")
}
