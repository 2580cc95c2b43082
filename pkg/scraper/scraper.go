package scraper

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"fansync/pkg/config"
	"fansync/pkg/ledger"
	"fansync/pkg/logger"
	"fansync/pkg/metrics"
	"fansync/pkg/models"
	"fansync/pkg/onlyfans"
	"fansync/pkg/ratelimit"
	"fansync/pkg/report"
	"fansync/pkg/retry"
	"fansync/pkg/signer"
	"fansync/pkg/storage"
)

// Deps are shared by every account
type Deps struct {
	Signer  *signer.Signer
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// Reports receives one report per pass when set
	Reports *report.Store
	// HTTPClient replaces the per-account transport
	HTTPClient *http.Client
}

// Scraper mirrors everything one account can see. A Scraper runs one pass
// at a time.
type Scraper struct {
	account config.Account
	cfg     *config.Config

	api     API
	storage *storage.Manager
	ledgers *ledger.Registry
	users   *userCache
	reports *report.Store
	metrics *metrics.Metrics
	logger  logger.Logger
}

// New builds the scraper for acct
func New(cfg *config.Config, acct config.Account, deps Deps) (*Scraper, error) {
	log := deps.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithField("account", acct.Name)

	store, err := storage.NewManager(acct.DownloadRoot)
	if err != nil {
		return nil, err
	}

	dumpDir := cfg.Download.DecodeErrorDir
	if dumpDir == "" {
		dumpDir = filepath.Join(acct.DownloadRoot, ".errors")
	}
	userAgent := acct.UserAgent
	if userAgent == "" {
		userAgent = config.DefaultUserAgent
	}
	xbc := acct.XBCNonce
	if xbc == "" {
		xbc = randomNonce()
	}

	client, err := onlyfans.NewClient(deps.Signer, onlyfans.Options{
		Account:    acct.Name,
		BaseURL:    cfg.API.BaseURL,
		Cookie:     acct.Cookie,
		UserAgent:  userAgent,
		XBC:        xbc,
		Proxy:      acct.Proxy,
		Timeout:    cfg.API.RequestTimeout,
		PageSize:   cfg.API.PageSize,
		DumpDir:    dumpDir,
		Retry:      retryConfig(cfg.Retry, log),
		Limiter:    ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		Logger:     log,
		Metrics:    deps.Metrics,
		HTTPClient: deps.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", acct.Name, err)
	}

	return &Scraper{
		account: acct,
		cfg:     cfg,
		api:     client,
		storage: store,
		ledgers: ledger.NewRegistry(&ledger.Options{Logger: log}),
		users:   newUserCache(cfg.Download.UserCacheSize),
		reports: deps.Reports,
		metrics: deps.Metrics,
		logger:  log,
	}, nil
}

// Name returns the account name
func (s *Scraper) Name() string {
	return s.account.Name
}

// Close releases the ledgers opened by past passes
func (s *Scraper) Close() error {
	return s.ledgers.Close()
}

// User resolves a remote user by id or username, consulting the per-pass
// cache first for numeric ids.
func (s *Scraper) User(ctx context.Context, idOrName string) (models.RemoteUser, error) {
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		if u, ok := s.users.get(id); ok {
			return u, nil
		}
	}
	raw, err := s.api.User(ctx, idOrName)
	if err != nil {
		return models.RemoteUser{}, err
	}
	u := toRemoteUser(*raw)
	s.users.put(u)
	return u, nil
}

// resolve fills in the details of a user known only by id
func (s *Scraper) resolve(ctx context.Context, u onlyfans.User) (models.RemoteUser, error) {
	if cached, ok := s.users.get(u.ID); ok {
		return cached, nil
	}
	if u.Username != "" {
		ru := toRemoteUser(u)
		s.users.put(ru)
		return ru, nil
	}
	return s.User(ctx, strconv.FormatInt(u.ID, 10))
}

// Run executes one full pass: list users, fetch new media, download it.
// The returned error is non-nil only when the whole account was aborted;
// everything else is in the report.
func (s *Scraper) Run(ctx context.Context) (*report.Report, error) {
	rep := report.New(s.account.Name)
	start := time.Now()
	s.users.reset()

	defer func() {
		rep.Finish()
		s.metrics.ObservePass(s.account.Name, start)
		logger.LogPassSummary(s.logger, s.account.Name, rep.Downloaded, rep.Skipped, rep.FailureCount(), rep.Duration())
		if s.reports != nil {
			if _, err := s.reports.Save(rep); err != nil {
				s.logger.WithError(err).Warn("Failed to save pass report")
			}
		}
	}()

	subscriptions, chats, err := s.listUsers(ctx, rep)
	if err != nil {
		rep.AddError(report.ScopeAccount, "", err)
		s.metrics.IncFailure(s.account.Name, string(report.ScopeAccount))
		s.logger.WithError(err).Error("Failed to list users, skipping account for this pass")
		return rep, err
	}
	s.logger.InfoWithFields("Listed users", map[string]interface{}{
		"subscriptions": len(subscriptions),
		"chats":         len(chats),
	})

	acc := s.fetch(ctx, subscriptions, chats, rep)
	rep.SetUsers(acc.userCount())

	if err := s.download(ctx, acc, rep); err != nil {
		rep.AddError(report.ScopeAccount, "", err)
		s.metrics.IncFailure(s.account.Name, string(report.ScopeAccount))
		s.logger.WithError(err).Error("Download phase aborted")
		return rep, err
	}
	return rep, nil
}

func (s *Scraper) listUsers(ctx context.Context, rep *report.Report) (subscriptions, chats []models.RemoteUser, err error) {
	subs, err := s.api.Subscriptions(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, u := range subs {
		ru := toRemoteUser(u)
		s.users.put(ru)
		subscriptions = append(subscriptions, ru)
	}

	partners, err := s.api.Chats(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, u := range partners {
		ru, err := s.resolve(ctx, u)
		if err != nil {
			rep.AddError(report.ScopeUser, "", err)
			s.metrics.IncFailure(s.account.Name, string(report.ScopeUser))
			s.logger.WithError(err).WithField("user_id", u.ID).Warn("Failed to resolve chat partner")
			continue
		}
		chats = append(chats, ru)
	}
	return subscriptions, chats, nil
}

func toRemoteUser(u onlyfans.User) models.RemoteUser {
	return models.RemoteUser{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.Name,
		AvatarURL:   u.Avatar,
		HeaderURL:   u.Header,
	}
}

func retryConfig(rc config.RetryConfig, log logger.Logger) *retry.Config {
	return &retry.Config{
		MaxAttempts: rc.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    rc.BaseDelay,
			MaxDelay:     rc.MaxDelay,
			Multiplier:   rc.Multiplier,
			JitterFactor: rc.JitterFactor,
		},
		RetryIf: retry.DefaultRetryIf,
		Logger:  log,
	}
}

const nonceAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomNonce returns a 40 character [0-9a-z] x-bc value
func randomNonce() string {
	buf := make([]byte, 40)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)%len(nonceAlphabet)]
	}
	return string(buf)
}
