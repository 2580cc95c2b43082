package onlyfans

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"

	errs "fansync/pkg/errors"
	"fansync/pkg/logger"
	"fansync/pkg/metrics"
	"fansync/pkg/ratelimit"
	"fansync/pkg/retry"
	"fansync/pkg/signer"
)

const (
	// BaseURL is the production API host
	BaseURL = "https://onlyfans.com"

	acceptHeader = "application/json, text/plain, */*"

	// maxBodySize caps a single API response
	maxBodySize = 32 << 20
)

// Options configures a Client for one account
type Options struct {
	Account   string
	BaseURL   string
	Cookie    string
	UserAgent string
	XBC       string
	Proxy     string
	Timeout   time.Duration
	PageSize  int

	// DumpDir receives raw bodies that failed to decode
	DumpDir string

	Retry   *retry.Config
	Limiter ratelimit.Limiter
	Logger  logger.Logger
	Metrics *metrics.Metrics

	// HTTPClient overrides the transport built from Proxy and Timeout
	HTTPClient *http.Client
	// Now overrides the signing clock
	Now func() time.Time
}

// Client is a signed, rate-limited, retrying API client for one account
type Client struct {
	opts   Options
	signer *signer.Signer
	// api carries the request timeout; media has none so long transfers
	// are bounded by the caller's context instead.
	api    *http.Client
	media  *http.Client
	logger logger.Logger
}

// NewClient creates a client that signs every API call with s
func NewClient(s *signer.Signer, opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = BaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	api, media := opts.HTTPClient, opts.HTTPClient
	if api == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("invalid proxy %q: %w", opts.Proxy, err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		api = &http.Client{Transport: transport, Timeout: opts.Timeout}
		media = &http.Client{Transport: transport}
	}

	return &Client{
		opts:   opts,
		signer: s,
		api:    api,
		media:  media,
		logger: opts.Logger.WithField("account", opts.Account),
	}, nil
}

// Account returns the account name the client acts for
func (c *Client) Account() string {
	return c.opts.Account
}

// PageSize returns the configured page size
func (c *Client) PageSize() int {
	return c.opts.PageSize
}

// getJSON issues a signed GET for pathAndQuery and decodes the body into
// target. Transient failures are retried; a body that fails to decode is
// written to the dump directory.
func (c *Client) getJSON(ctx context.Context, collection, pathAndQuery string, target interface{}) error {
	body, err := c.getSigned(ctx, collection, pathAndQuery)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, target); err != nil {
		dumpPath := c.dumpBody(collection, body)
		c.logger.WithError(err).ErrorWithFields("failed to decode response", map[string]interface{}{
			"collection": collection,
			"path":       pathAndQuery,
			"dump":       dumpPath,
		})
		msg := fmt.Sprintf("GET %s", pathAndQuery)
		if dumpPath != "" {
			msg += " (body saved to " + dumpPath + ")"
		}
		return errs.NewDecode(msg, err)
	}
	return nil
}

func (c *Client) getSigned(ctx context.Context, collection, pathAndQuery string) ([]byte, error) {
	cfg := *c.opts.Retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.opts.Metrics.IncRetry(collection)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = c.logger.WithField("collection", collection)
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) ([]byte, error) {
		if err := c.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		headers, err := c.signer.Sign(pathAndQuery, c.opts.XBC, c.opts.Now())
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.BaseURL+pathAndQuery, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range headers {
			req.Header[k] = v
		}
		req.Header.Set("Accept", acceptHeader)
		if c.opts.Cookie != "" {
			req.Header.Set("Cookie", c.opts.Cookie)
		}
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}

		resp, err := c.do(c.api, req, collection)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, errs.NewTransport(0, "GET "+pathAndQuery, err)
		}
		return body, nil
	}, &cfg)
}

// do sends req and converts network failures and non-2xx statuses into
// transport errors. The caller owns the returned body.
func (c *Client) do(hc *http.Client, req *http.Request, collection string) (*http.Response, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.opts.Metrics.ObserveRequest(collection, 0)
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.NewTransport(0, req.Method+" "+req.URL.Path, err)
	}

	c.opts.Metrics.ObserveRequest(collection, resp.StatusCode)
	logger.LogRequest(c.logger, req.Method, req.URL.RequestURI(), resp.StatusCode, time.Since(start))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		c.opts.Limiter.Backoff(retryAfter(resp.Header.Get("Retry-After")))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return nil, errs.NewTransport(resp.StatusCode, req.Method+" "+req.URL.Path, nil)
}

// retryAfter parses a Retry-After header given in seconds
func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// dumpBody preserves a body that failed to decode and returns its path, or
// "" when it could not be written.
func (c *Client) dumpBody(collection string, body []byte) string {
	if c.opts.DumpDir == "" {
		return ""
	}
	if err := os.MkdirAll(c.opts.DumpDir, 0755); err != nil {
		c.logger.WithError(err).Warn("failed to create decode error directory")
		return ""
	}

	name := fmt.Sprintf("decoding_error-%s-%d-%s.json", collection, time.Now().Unix(), uuid.NewString()[:8])
	path := filepath.Join(c.opts.DumpDir, name)
	if err := os.WriteFile(path, body, 0644); err != nil {
		c.logger.WithError(err).Warn("failed to save undecodable body")
		return ""
	}
	return path
}

// Download starts an unsigned GET for a media or asset URL. Transient
// statuses are retried; the caller must close the returned body.
func (c *Client) Download(ctx context.Context, rawURL string) (*http.Response, error) {
	if rawURL == "" {
		return nil, errs.NewTransport(0, "GET", errors.New("media has no source url"))
	}

	return retry.DoWithResult(ctx, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, errs.NewTransport(0, "GET", err)
		}
		if c.opts.UserAgent != "" {
			req.Header.Set("User-Agent", c.opts.UserAgent)
		}
		return c.do(c.media, req, "media")
	}, c.opts.Retry)
}
