package onlyfans

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "fansync/pkg/errors"
)

func iso(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func offsetOf(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return n
}

// postsHandler serves count posts newest first, with timestamps
// newest, newest-1, ... and one media item each.
func postsHandler(count int, newest int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset := offsetOf(r)
		var items []string
		for i := offset; i < count && i < offset+limit; i++ {
			ts := newest - int64(i)
			items = append(items, fmt.Sprintf(
				`{"id":%d,"postedAt":%q,"rawText":"post %d","media":[{"id":%d,"type":"photo","canView":true,"source":{"source":"http://x/%d.jpg"}}]}`,
				1000+i, iso(ts), i, 5000+i, i))
		}
		fmt.Fprintf(w, "[%s]", strings.Join(items, ","))
	}
}

func TestPostsWalksAllPagesUntilEmpty(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/posts", postsHandler(12, 2000))
	c := newTestClient(t, srv.URL)

	posts, err := c.Posts(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, posts, 12)
	assert.Equal(t, int64(1000), posts[0].ID)
	assert.Equal(t, int64(2000), posts[0].PostedAt.Unix())
	// pages at offsets 0, 5, 10 and an empty one at 15
	assert.Equal(t, 4, api.count("/api2/v2/users/42/posts"))
}

func TestPostsStopsAtHighWaterMark(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/posts", postsHandler(50, 2000))
	c := newTestClient(t, srv.URL)

	// 1998 is the third post; everything from it on is already mirrored
	posts, err := c.Posts(context.Background(), 42, 1998)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, 1, api.count("/api2/v2/users/42/posts"))
	assert.Contains(t, api.requests[0], "order=publish_date_desc")
	assert.Contains(t, api.requests[0], "limit=5")
}

func TestPostsSkipsUndatedRecords(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/posts", func(w http.ResponseWriter, r *http.Request) {
		if offsetOf(r) > 0 {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprintf(w, `[{"id":1,"postedAt":%q},{"id":2},{"id":3,"postedAt":%q}]`, iso(3000), iso(2000))
	})
	c := newTestClient(t, srv.URL)

	posts, err := c.Posts(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(1), posts[0].ID)
	assert.Equal(t, int64(3), posts[1].ID)

	// a real timestamp at the mark still ends the walk
	posts, err = c.Posts(context.Background(), 42, 2000)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(1), posts[0].ID)
}

func TestMessagesAndStoriesSkipUndatedRecords(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/chats/42/messages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"list":[
			{"id":1,"fromUser":{"id":42},"createdAt":%q},
			{"id":2,"fromUser":{"id":42}},
			{"id":3,"fromUser":{"id":42},"createdAt":%q}
		],"hasMore":false}`, iso(900), iso(800))
	})
	api.handle("/api2/v2/users/42/stories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":1,"createdAt":%q},{"id":2},{"id":3,"createdAt":%q}]`, iso(100), iso(300))
	})
	c := newTestClient(t, srv.URL)

	msgs, err := c.Messages(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(3), msgs[1].ID)

	stories, err := c.Stories(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, int64(3), stories[0].ID)
	assert.Equal(t, int64(1), stories[1].ID)
}

func TestArchivedPostsUsesArchivePath(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/posts/archived", postsHandler(3, 500))
	c := newTestClient(t, srv.URL)

	posts, err := c.ArchivedPosts(context.Background(), 42, 0)
	require.NoError(t, err)
	assert.Len(t, posts, 3)
	assert.Equal(t, 0, api.count("/api2/v2/users/42/posts?"))
}

func TestPostsFailureReportsCursor(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/posts", func(w http.ResponseWriter, r *http.Request) {
		if offsetOf(r) == 5 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		postsHandler(20, 2000)(w, r)
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Posts(context.Background(), 42, 0)
	var se *errs.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 5, se.Cursor)
	assert.Equal(t, http.StatusForbidden, errs.StatusCode(err))
}

func TestSubscriptionsAdvanceByCount(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/subscriptions/subscribes", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "active", r.URL.Query().Get("type"))
		switch offsetOf(r) {
		case 0:
			fmt.Fprint(w, `[{"id":1,"username":"a"},{"id":2,"username":"b"},{"id":3,"username":"c"}]`)
		case 3:
			fmt.Fprint(w, `[{"id":4,"username":"d"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	c := newTestClient(t, srv.URL)

	users, err := c.Subscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 4)
	assert.Equal(t, "d", users[3].Username)
	assert.Equal(t, 3, api.count("/api2/v2/subscriptions/subscribes"))
}

func TestChatsFollowNextOffset(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/chats", func(w http.ResponseWriter, r *http.Request) {
		switch offsetOf(r) {
		case 0:
			fmt.Fprint(w, `{"list":[{"withUser":{"id":1,"username":"a"}}],"hasMore":true,"nextOffset":10}`)
		case 10:
			fmt.Fprint(w, `{"list":[{"withUser":{"id":2,"username":"b"}}],"hasMore":false}`)
		default:
			t.Errorf("unexpected offset %d", offsetOf(r))
		}
	})
	c := newTestClient(t, srv.URL)

	users, err := c.Chats(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(2), users[1].ID)
}

func TestChatsStopOnEmptyPageWithHasMore(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/chats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"list":[],"hasMore":true}`)
	})
	c := newTestClient(t, srv.URL)

	users, err := c.Chats(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 1, api.count("/api2/v2/chats"))
}

func TestMessagesFilterSenderAndStopAtMark(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/chats/42/messages", func(w http.ResponseWriter, r *http.Request) {
		switch offsetOf(r) {
		case 0:
			fmt.Fprintf(w, `{"list":[
				{"id":1,"fromUser":{"id":42},"createdAt":%q},
				{"id":2,"fromUser":{"id":7},"createdAt":%q}
			],"hasMore":true}`, iso(900), iso(800))
		case 2:
			fmt.Fprintf(w, `{"list":[
				{"id":3,"fromUser":{"id":42},"createdAt":%q},
				{"id":4,"fromUser":{"id":7},"createdAt":%q},
				{"id":5,"fromUser":{"id":42},"createdAt":%q}
			],"hasMore":true}`, iso(700), iso(500), iso(400))
		default:
			t.Errorf("walk continued past the mark")
		}
	})
	c := newTestClient(t, srv.URL)

	// message 4 is from the account itself but still ends the walk
	msgs, err := c.Messages(context.Background(), 42, 500)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].ID)
	assert.Equal(t, int64(3), msgs[1].ID)
	assert.Contains(t, api.requests[0], "order=desc")
}

func TestHighlightsPerCategoryCutoff(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/stories/highlights", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		switch offsetOf(r) {
		case 0:
			fmt.Fprint(w, `[{"id":11,"title":"Trips"},{"id":12,"title":"Food"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	api.handle("/api2/v2/stories/highlights/11", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":11,"title":"Trips","stories":[
			{"id":1,"createdAt":%q},{"id":2,"createdAt":%q},{"id":3,"createdAt":%q}
		]}`, iso(100), iso(200), iso(300))
	})
	api.handle("/api2/v2/stories/highlights/12", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":12,"title":"Food","stories":[{"id":4,"createdAt":%q}]}`, iso(120))
	})
	c := newTestClient(t, srv.URL)

	stories, err := c.Highlights(context.Background(), 42, 150)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, int64(3), stories[0].Story.ID)
	assert.Equal(t, int64(2), stories[1].Story.ID)
	assert.Equal(t, "Trips", stories[0].Category)
	assert.Equal(t, 2, api.count("/api2/v2/users/42/stories/highlights"))
}

func TestHighlightDetailFailureReportsCategory(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/stories/highlights", func(w http.ResponseWriter, r *http.Request) {
		if offsetOf(r) > 0 {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprint(w, `[{"id":11,"title":"Trips"},{"id":12,"title":"Food"}]`)
	})
	api.handle("/api2/v2/stories/highlights/11", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":11,"title":"Trips","stories":[]}`)
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Highlights(context.Background(), 42, 0)
	require.Error(t, err)

	var se *errs.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "highlights", se.Collection)
	assert.Equal(t, 12, se.Cursor)
	assert.Equal(t, 404, errs.StatusCode(err))
}

func TestStoriesSingleFetch(t *testing.T) {
	api, srv := newMockAPI(t)
	api.handle("/api2/v2/users/42/stories", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":1,"createdAt":%q},{"id":2,"createdAt":%q}]`, iso(100), iso(300))
	})
	c := newTestClient(t, srv.URL)

	stories, err := c.Stories(context.Background(), 42, 0)
	require.NoError(t, err)
	require.Len(t, stories, 2)
	assert.Equal(t, int64(2), stories[0].ID)
	assert.Equal(t, 1, api.count("/api2/v2/users/42/stories"))
}

func TestNextCursor(t *testing.T) {
	ten := 10
	stale := 3

	next, ok := nextCursor(0, 5, true, &ten)
	assert.True(t, ok)
	assert.Equal(t, 10, next)

	next, ok = nextCursor(5, 5, true, &stale)
	assert.True(t, ok)
	assert.Equal(t, 10, next)

	next, ok = nextCursor(0, 4, true, nil)
	assert.True(t, ok)
	assert.Equal(t, 4, next)

	_, ok = nextCursor(0, 4, false, &ten)
	assert.False(t, ok)
}
