package scraper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"

	"fansync/internal/downloader"
	errs "fansync/pkg/errors"
	"fansync/pkg/ledger"
	"fansync/pkg/logger"
	"fansync/pkg/metrics"
	"fansync/pkg/models"
	"fansync/pkg/report"
	"fansync/pkg/storage"
)

// download materializes every accumulated item. Transfer failures are
// reported per item; a ledger failure cancels the phase and is returned.
func (s *Scraper) download(ctx context.Context, acc *accumulator, rep *report.Report) error {
	pending := acc.pending()
	if len(pending) == 0 {
		s.logger.Info("No new media found")
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatal     error
	)
	pool := downloader.NewPool(ctx, s.cfg.Download.DownloadWorkers, s.logger)
	for _, entry := range pending {
		entry := entry
		s.logger.InfoWithFields("Found new media", map[string]interface{}{
			"username": entry.user.Username,
			"count":    len(entry.items),
		})
		err := pool.Submit(entry.user.Username, func(ctx context.Context) error {
			err := s.downloadUser(ctx, entry, rep)
			if err != nil && errs.IsLedger(err) {
				fatalOnce.Do(func() {
					fatal = err
					cancel()
				})
			}
			return err
		})
		if err != nil {
			break
		}
	}
	s.reportPanics(pool.Wait(), rep)
	return fatal
}

// reportPanics records tasks that panicked as user-scope failures. Returned
// errors are already reported by the tasks themselves.
func (s *Scraper) reportPanics(results []downloader.Result, rep *report.Report) {
	for _, r := range results {
		var pe *downloader.PanicError
		if !errors.As(r.Err, &pe) {
			continue
		}
		rep.AddError(report.ScopeUser, r.ID, pe)
		s.metrics.IncFailure(s.account.Name, string(report.ScopeUser))
		s.logger.WithError(pe).WithField("task", r.ID).Error("Task panicked")
	}
}

func (s *Scraper) downloadUser(ctx context.Context, entry *userItems, rep *report.Report) error {
	user := entry.user
	dir, err := s.storage.EnsureUserDir(user.Username)
	if err != nil {
		rep.AddError(report.ScopeUser, user.Username, err)
		return err
	}
	l := s.ledgers.For(dir)

	if err := s.refreshAsset(ctx, l, user, dir, models.CollectionAvatar, user.AvatarURL, rep); err != nil {
		return err
	}
	if err := s.refreshAsset(ctx, l, user, dir, models.CollectionHeader, user.HeaderURL, rep); err != nil {
		return err
	}

	// oldest first so the high-water mark only passes recorded items
	items := append([]models.MediaItem(nil), entry.items...)
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.downloadItem(ctx, l, user, item, rep); err != nil {
			return err
		}
	}
	return nil
}

// downloadItem transfers one item. Only ledger errors are returned.
func (s *Scraper) downloadItem(ctx context.Context, l *ledger.Ledger, user models.RemoteUser, item models.MediaItem, rep *report.Report) error {
	log := s.logger.WithFields(map[string]interface{}{
		"username":    user.Username,
		"media_id":    item.MediaID,
		"source_type": item.SourceType,
	})

	has, err := l.Has(ctx, item.Key())
	if err != nil {
		return err
	}
	if has {
		s.metrics.ObserveMedia(s.account.Name, string(item.SourceType), metrics.OutcomeSkipped)
		rep.AddSkipped()
		return nil
	}

	dest, err := s.storage.DestinationPath(user.Username, item)
	if err != nil {
		log.WithError(err).Warn("Skipping media")
		s.itemFailed(rep, user, item, err)
		return nil
	}

	// the transfer is bounded; ledger writes below keep the phase context
	tctx, cancel := context.WithTimeout(ctx, s.cfg.Download.Timeout)
	defer cancel()

	resp, err := s.api.Download(tctx, item.URL)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			err = errs.NewTransport(0, "GET "+item.URL, err)
		}
		s.itemFailed(rep, user, item, err)
		logger.LogDownload(log, user.Username, item.MediaID, string(item.SourceType), false, err)
		return nil
	}
	defer resp.Body.Close()

	// a previous run may have renamed the file into place but died before
	// recording it
	if size, ok := storage.ExistingSize(dest); ok && resp.ContentLength >= 0 && size == resp.ContentLength {
		if _, err := l.Record(ctx, ledger.EntryFor(item)); err != nil {
			return err
		}
		s.metrics.ObserveMedia(s.account.Name, string(item.SourceType), metrics.OutcomeSkipped)
		rep.AddSkipped()
		logger.LogDownload(log, user.Username, item.MediaID, string(item.SourceType), true, nil)
		return nil
	}

	n, err := storage.WriteAtomic(dest, resp.Body)
	if err != nil {
		s.itemFailed(rep, user, item, errs.NewTransport(0, "GET "+item.URL, err))
		logger.LogDownload(log, user.Username, item.MediaID, string(item.SourceType), false, err)
		return nil
	}

	if _, err := l.Record(ctx, ledger.EntryFor(item)); err != nil {
		return err
	}
	s.metrics.ObserveMedia(s.account.Name, string(item.SourceType), metrics.OutcomeDownloaded)
	s.metrics.AddBytes(s.account.Name, n)
	rep.AddDownloaded(n)
	logger.LogDownload(log, user.Username, item.MediaID, string(item.SourceType), false, nil)
	return nil
}

func (s *Scraper) itemFailed(rep *report.Report, user models.RemoteUser, item models.MediaItem, err error) {
	s.metrics.ObserveMedia(s.account.Name, string(item.SourceType), metrics.OutcomeFailed)
	f := report.Failure{
		Scope:      report.ScopeItem,
		Collection: string(item.Collection),
		UserID:     user.ID,
		Username:   user.Username,
		MediaID:    item.MediaID,
		URL:        item.URL,
		Error:      err.Error(),
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		f.Kind = string(typed.Type)
		f.Status = typed.Code
	}
	rep.Add(f)
}

// refreshAsset keeps the avatar or header current. A changed asset archives
// the previous file under its old timestamp before the new one is written.
// Only ledger errors are returned.
func (s *Scraper) refreshAsset(ctx context.Context, l *ledger.Ledger, user models.RemoteUser, dir string, kind models.Collection, url string, rep *report.Report) error {
	if url == "" {
		return nil
	}

	resp, err := s.api.Download(ctx, url)
	if err != nil {
		rep.Add(report.Failure{
			Scope:      report.ScopeAsset,
			Collection: string(kind),
			UserID:     user.ID,
			Username:   user.Username,
			URL:        url,
			Status:     errs.StatusCode(err),
			Error:      err.Error(),
		})
		s.logger.WithError(err).WithField("username", user.Username).Warn("Failed to get " + string(kind))
		return nil
	}
	defer resp.Body.Close()

	ts := lastModified(resp.Header)
	key := models.Key{SourceType: models.SourceType(kind), SourceRecordID: ts, MediaID: ts}
	has, err := l.Has(ctx, key)
	if err != nil {
		return err
	}
	if has {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}

	previous, ok, err := l.Latest(ctx, kind)
	if err != nil {
		return err
	}
	if ok {
		if err := storage.RotateAsset(dir, string(kind), previous.Timestamp); err != nil {
			s.logger.WithError(err).WithField("username", user.Username).Warn("Failed to archive previous asset")
		}
	}

	path, _, err := storage.WriteAsset(dir, string(kind), resp.Body)
	if err != nil {
		rep.Add(report.Failure{
			Scope:      report.ScopeAsset,
			Collection: string(kind),
			UserID:     user.ID,
			Username:   user.Username,
			URL:        url,
			Error:      err.Error(),
		})
		return nil
	}

	if _, err := l.Record(ctx, ledger.AssetEntry(kind, ts)); err != nil {
		return err
	}
	s.logger.DebugWithFields("Updated asset", map[string]interface{}{
		"username": user.Username,
		"kind":     kind,
		"path":     path,
	})
	return nil
}

// lastModified returns the Last-Modified header as unix seconds, or 0
func lastModified(h http.Header) int64 {
	v := h.Get("Last-Modified")
	if v == "" {
		return 0
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return 0
	}
	return t.Unix()
}
