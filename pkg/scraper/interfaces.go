package scraper

import (
	"context"
	"net/http"

	"fansync/pkg/onlyfans"
)

// API is the remote surface a scrape pass needs. *onlyfans.Client
// implements it.
type API interface {
	Account() string
	User(ctx context.Context, idOrName string) (*onlyfans.User, error)
	Subscriptions(ctx context.Context) ([]onlyfans.User, error)
	Chats(ctx context.Context) ([]onlyfans.User, error)
	Posts(ctx context.Context, userID, mark int64) ([]onlyfans.Post, error)
	ArchivedPosts(ctx context.Context, userID, mark int64) ([]onlyfans.Post, error)
	Messages(ctx context.Context, userID, mark int64) ([]onlyfans.Message, error)
	Highlights(ctx context.Context, userID, mark int64) ([]onlyfans.HighlightStory, error)
	Stories(ctx context.Context, userID, mark int64) ([]onlyfans.Story, error)
	Download(ctx context.Context, rawURL string) (*http.Response, error)
}

var _ API = (*onlyfans.Client)(nil)
