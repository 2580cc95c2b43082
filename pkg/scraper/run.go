package scraper

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"fansync/pkg/logger"
	"fansync/pkg/report"
)

// RunAll runs one pass of every scraper concurrently. Accounts do not
// affect each other: every report is returned, along with the first
// account-level error.
func RunAll(ctx context.Context, scrapers []*Scraper) ([]*report.Report, error) {
	var (
		g       errgroup.Group
		mu      sync.Mutex
		reports = make([]*report.Report, len(scrapers))
	)
	for i, s := range scrapers {
		i, s := i, s
		g.Go(func() error {
			rep, err := s.Run(ctx)
			mu.Lock()
			reports[i] = rep
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return reports, err
}

// RunForever repeats RunAll, sleeping interval between passes, until ctx
// is cancelled. onPass is called after each pass when non-nil.
func RunForever(ctx context.Context, scrapers []*Scraper, interval time.Duration, log logger.Logger, onPass func([]*report.Report)) error {
	if log == nil {
		log = logger.NewNopLogger()
	}

	for iteration := 1; ; iteration++ {
		log.InfoWithFields("Starting iteration", map[string]interface{}{
			"iteration": iteration,
		})

		reports, err := RunAll(ctx, scrapers)
		if err != nil {
			log.WithError(err).Warn("Pass finished with aborted accounts")
		}
		if onPass != nil {
			onPass(reports)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
