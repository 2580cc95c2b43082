package onlyfans

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "fansync/pkg/errors"
	"fansync/pkg/retry"
	"fansync/pkg/signer"
)

const testNonce = "0123456789abcdefghijklmnopqrstuvwxyz0123"

func testSigner() *signer.Signer {
	return signer.New(&signer.HeaderRules{
		StaticParam:      "Gf5Tc7kXZbq2hNr8",
		Format:           "53760:{}:{:x}:66a67f6a",
		ChecksumIndexes:  []int{0, 5, 9, 17, 33, 39},
		ChecksumConstant: -1000,
		AppToken:         "33d57ade8c02dbc5a333db99ff9ae26a",
	})
}

// mockAPI routes requests by path and records every request URI it saw
type mockAPI struct {
	mu       sync.Mutex
	requests []string
	handlers map[string]http.HandlerFunc
}

func newMockAPI(t *testing.T) (*mockAPI, *httptest.Server) {
	m := &mockAPI{handlers: make(map[string]http.HandlerFunc)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests = append(m.requests, r.URL.RequestURI())
		h, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return m, srv
}

func (m *mockAPI) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

func (m *mockAPI) count(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func newTestClient(t *testing.T, baseURL string, mutate ...func(*Options)) *Client {
	opts := Options{
		Account:   "main",
		BaseURL:   baseURL,
		Cookie:    "sess=abc",
		UserAgent: "test-agent",
		XBC:       testNonce,
		PageSize:  5,
		Retry: &retry.Config{
			MaxAttempts: 3,
			Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	c, err := NewClient(testSigner(), opts)
	require.NoError(t, err)
	return c
}

func TestClientSendsSignedHeaders(t *testing.T) {
	api, srv := newMockAPI(t)
	var got http.Header
	var gotURI string
	api.handle("/api2/v2/users/me", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotURI = r.URL.RequestURI()
		fmt.Fprint(w, `{"id":1,"username":"me","name":"Me"}`)
	})

	c := newTestClient(t, srv.URL, func(o *Options) {
		o.Now = func() time.Time { return time.Unix(1700000000, 0) }
	})

	u, err := c.User(context.Background(), "me")
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "me", u.Username)

	assert.Equal(t, "/api2/v2/users/me", gotURI)
	assert.Equal(t, "53760:06506acf72209c7599a4e398301c40e28b278961:259:66a67f6a", got.Get("sign"))
	assert.Equal(t, "1700000000", got.Get("time"))
	assert.Equal(t, "33d57ade8c02dbc5a333db99ff9ae26a", got.Get("app-token"))
	assert.Equal(t, testNonce, got.Get("x-bc"))
	assert.Equal(t, "sess=abc", got.Get("Cookie"))
	assert.Equal(t, "test-agent", got.Get("User-Agent"))
}

func TestClientSigningUnavailable(t *testing.T) {
	api, srv := newMockAPI(t)
	c, err := NewClient(signer.New(nil), Options{BaseURL: srv.URL, Account: "main"})
	require.NoError(t, err)

	_, err = c.User(context.Background(), "me")
	require.Error(t, err)
	assert.True(t, errs.IsSigningUnavailable(err))
	assert.Equal(t, 0, api.count("/"))
}

func TestClientRetriesTransientStatus(t *testing.T) {
	api, srv := newMockAPI(t)
	var calls atomic.Int32
	api.handle("/api2/v2/users/7", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"id":7,"username":"seven"}`)
	})

	c := newTestClient(t, srv.URL)
	u, err := c.User(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "seven", u.Username)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientDoesNotRetryNotFound(t *testing.T) {
	api, srv := newMockAPI(t)
	c := newTestClient(t, srv.URL)

	_, err := c.User(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
	assert.Equal(t, http.StatusNotFound, errs.StatusCode(err))
	assert.Equal(t, 1, api.count("/api2/v2/users/ghost"))
}

func TestClientDumpsUndecodableBody(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/9/posts", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"not a list"`)
	})
	dumpDir := t.TempDir()
	c := newTestClient(t, srv.URL, func(o *Options) { o.DumpDir = dumpDir })

	_, err := c.Posts(context.Background(), 9, 0)
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))

	var se *errs.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "main", se.Account)
	assert.Equal(t, "posts", se.Collection)
	assert.Equal(t, int64(9), se.UserID)
	assert.Equal(t, 0, se.Cursor)

	matches, err := filepath.Glob(filepath.Join(dumpDir, "decoding_error-posts-*.json"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	body, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, `{"error":"not a list"`, string(body))
}

func TestDownloadIsUnsigned(t *testing.T) {
	api, srv := newMockAPI(t)
	var got http.Header
	api.handle("/files/a.jpg", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, "jpegbytes")
	})
	c := newTestClient(t, srv.URL)

	resp, err := c.Download(context.Background(), srv.URL+"/files/a.jpg")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, "jpegbytes", string(body))
	assert.Empty(t, got.Get("sign"))
	assert.Equal(t, "test-agent", got.Get("User-Agent"))
}

func TestDownloadEmptyURL(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.Download(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errs.IsTransport(err))
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	_, err := NewClient(testSigner(), Options{Proxy: "://bad"})
	assert.Error(t, err)
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, retryAfter("3"))
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, time.Duration(0), retryAfter("soon"))
}
