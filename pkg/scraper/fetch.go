package scraper

import (
	"context"
	"sync"

	"fansync/internal/downloader"
	"fansync/pkg/models"
	"fansync/pkg/normalize"
	"fansync/pkg/report"
)

// userItems is everything new found for one remote user
type userItems struct {
	user  models.RemoteUser
	items []models.MediaItem
	seen  map[models.Key]struct{}
}

// accumulator collects fetch results by user. Items are deduplicated by
// identity key.
type accumulator struct {
	mu    sync.Mutex
	users map[int64]*userItems
	order []int64
}

func newAccumulator() *accumulator {
	return &accumulator{users: make(map[int64]*userItems)}
}

func (a *accumulator) add(user models.RemoteUser, items []models.MediaItem) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.users[user.ID]
	if !ok {
		entry = &userItems{user: user, seen: make(map[models.Key]struct{})}
		a.users[user.ID] = entry
		a.order = append(a.order, user.ID)
	}
	for _, item := range items {
		key := item.Key()
		if _, dup := entry.seen[key]; dup {
			continue
		}
		entry.seen[key] = struct{}{}
		entry.items = append(entry.items, item)
	}
}

// pending returns the users that have at least one item
func (a *accumulator) pending() []*userItems {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []*userItems
	for _, id := range a.order {
		if entry := a.users[id]; len(entry.items) > 0 {
			out = append(out, entry)
		}
	}
	return out
}

func (a *accumulator) userCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.users)
}

// walkFunc fetches and normalizes one collection of one user, newer than mark
type walkFunc func(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error)

type stage struct {
	collection models.Collection
	users      []models.RemoteUser
	walk       walkFunc
}

// fetch runs every collection walk over its users on the fetch pool.
// A failed walk is reported and does not affect other users.
func (s *Scraper) fetch(ctx context.Context, subscriptions, chats []models.RemoteUser, rep *report.Report) *accumulator {
	acc := newAccumulator()

	stages := []stage{
		{models.CollectionPosts, subscriptions, s.walkPosts},
		{models.CollectionArchived, subscriptions, s.walkArchived},
		{models.CollectionMessages, chats, s.walkMessages},
		{models.CollectionHighlights, subscriptions, s.walkHighlights},
	}
	if !s.account.SkipTemporary {
		stages = append(stages, stage{models.CollectionStories, subscriptions, s.walkStories})
	} else {
		s.logger.Debug("Skipping temporary items")
	}

	for _, st := range stages {
		s.logger.InfoWithFields("Gathering media", map[string]interface{}{
			"collection": st.collection,
			"users":      len(st.users),
		})

		pool := downloader.NewPool(ctx, s.cfg.Download.FetchWorkers, s.logger)
		for _, user := range st.users {
			user, st := user, st
			err := pool.Submit(string(st.collection)+"/"+user.Username, func(ctx context.Context) error {
				return s.fetchUser(ctx, st, user, acc, rep)
			})
			if err != nil {
				break
			}
		}
		s.reportPanics(pool.Wait(), rep)
	}
	return acc
}

func (s *Scraper) fetchUser(ctx context.Context, st stage, user models.RemoteUser, acc *accumulator, rep *report.Report) error {
	l := s.ledgers.For(s.storage.UserDir(user.Username))
	mark, err := l.HighWaterMark(ctx, st.collection)
	if err != nil {
		s.logger.WithError(err).WithField("username", user.Username).Warn("Unreadable ledger, fetching everything")
	}

	items, err := st.walk(ctx, user, mark)
	if err != nil {
		rep.AddError(report.ScopeUser, user.Username, err)
		s.metrics.IncFailure(s.account.Name, string(report.ScopeUser))
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"username":   user.Username,
			"collection": st.collection,
		}).Error("Failed to gather media")
		return err
	}

	acc.add(user, items)
	if len(items) > 0 {
		s.logger.DebugWithFields("Found new media", map[string]interface{}{
			"username":   user.Username,
			"collection": st.collection,
			"count":      len(items),
		})
	}
	return nil
}

func (s *Scraper) walkPosts(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error) {
	posts, err := s.api.Posts(ctx, user.ID, mark)
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	for _, p := range posts {
		items = append(items, normalize.Post(p, user.ID, s.account.SkipTemporary)...)
	}
	return items, nil
}

func (s *Scraper) walkArchived(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error) {
	posts, err := s.api.ArchivedPosts(ctx, user.ID, mark)
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	for _, p := range posts {
		items = append(items, normalize.ArchivedPost(p, user.ID, s.account.SkipTemporary)...)
	}
	return items, nil
}

func (s *Scraper) walkMessages(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error) {
	messages, err := s.api.Messages(ctx, user.ID, mark)
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	for _, m := range messages {
		items = append(items, normalize.Message(m)...)
	}
	return items, nil
}

func (s *Scraper) walkHighlights(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error) {
	stories, err := s.api.Highlights(ctx, user.ID, mark)
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	for _, h := range stories {
		items = append(items, normalize.Highlight(h)...)
	}
	return items, nil
}

func (s *Scraper) walkStories(ctx context.Context, user models.RemoteUser, mark int64) ([]models.MediaItem, error) {
	stories, err := s.api.Stories(ctx, user.ID, mark)
	if err != nil {
		return nil, err
	}
	var items []models.MediaItem
	for _, st := range stories {
		items = append(items, normalize.Story(st)...)
	}
	return items, nil
}
