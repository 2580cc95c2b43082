package onlyfans

import (
	"context"
	"slices"
	"strconv"

	errs "fansync/pkg/errors"
)

// Every walker below returns raw records strictly newer than mark (unix
// seconds). Failures are returned as *errs.ScrapeError carrying the
// collection and the offset that failed.

func (c *Client) fail(err error, collection string, userID int64, cursor int) error {
	return errs.Wrap(err, c.opts.Account, collection, userID, cursor)
}

// User fetches a profile by numeric id or username
func (c *Client) User(ctx context.Context, idOrName string) (*User, error) {
	var u User
	if err := c.getJSON(ctx, collectionUser, userPath(idOrName), &u); err != nil {
		var uid int64
		if n, convErr := strconv.ParseInt(idOrName, 10, 64); convErr == nil {
			uid = n
		}
		return nil, c.fail(err, collectionUser, uid, 0)
	}
	return &u, nil
}

// Subscriptions lists every active subscription. The offset advances by the
// number of users returned until an empty page.
func (c *Client) Subscriptions(ctx context.Context) ([]User, error) {
	var users []User
	offset := 0
	for {
		var page []User
		if err := c.getJSON(ctx, collectionSubscriptions, subscriptionsPath(c.opts.PageSize, offset), &page); err != nil {
			return nil, c.fail(err, collectionSubscriptions, 0, offset)
		}
		if len(page) == 0 {
			return users, nil
		}
		users = append(users, page...)
		offset += len(page)
	}
}

// Chats lists the partner of every chat, following the server cursor
func (c *Client) Chats(ctx context.Context) ([]User, error) {
	var users []User
	offset := 0
	for {
		var page ChatsPage
		if err := c.getJSON(ctx, collectionChats, chatsPath(c.opts.PageSize, offset), &page); err != nil {
			return nil, c.fail(err, collectionChats, 0, offset)
		}
		for _, chat := range page.List {
			users = append(users, chat.WithUser)
		}
		next, ok := nextCursor(offset, len(page.List), page.HasMore, page.NextOffset)
		if !ok {
			return users, nil
		}
		offset = next
	}
}

// nextCursor decides the following offset for server-cursored listings.
// An empty page ends the walk even if the server claims more.
func nextCursor(offset, count int, hasMore bool, nextOffset *int) (int, bool) {
	if !hasMore || count == 0 {
		return 0, false
	}
	if nextOffset != nil && *nextOffset > offset {
		return *nextOffset, true
	}
	return offset + count, true
}

// Posts walks a user's timeline newest first and stops at the first post
// not newer than mark.
func (c *Client) Posts(ctx context.Context, userID, mark int64) ([]Post, error) {
	return c.walkPosts(ctx, collectionPosts, userID, mark, postsPath)
}

// ArchivedPosts is Posts for the archive
func (c *Client) ArchivedPosts(ctx context.Context, userID, mark int64) ([]Post, error) {
	return c.walkPosts(ctx, collectionArchived, userID, mark, archivedPostsPath)
}

func (c *Client) walkPosts(ctx context.Context, collection string, userID, mark int64, path func(int64, int, int) string) ([]Post, error) {
	var posts []Post
	offset := 0
	for {
		var page []Post
		if err := c.getJSON(ctx, collection, path(userID, c.opts.PageSize, offset), &page); err != nil {
			return nil, c.fail(err, collection, userID, offset)
		}
		if len(page) == 0 {
			return posts, nil
		}
		for _, post := range page {
			if post.PostedAt.IsZero() {
				c.skipUndated(collection, userID, post.ID)
				continue
			}
			if post.PostedAt.Unix() <= mark {
				return posts, nil
			}
			posts = append(posts, post)
		}
		offset += c.opts.PageSize
	}
}

// Messages walks a chat newest first, keeping only messages sent by userID,
// and stops at the first message not newer than mark.
func (c *Client) Messages(ctx context.Context, userID, mark int64) ([]Message, error) {
	var messages []Message
	offset := 0
	for {
		var page MessagesPage
		if err := c.getJSON(ctx, collectionMessages, messagesPath(userID, c.opts.PageSize, offset), &page); err != nil {
			return nil, c.fail(err, collectionMessages, userID, offset)
		}
		for _, msg := range page.List {
			if msg.CreatedAt.IsZero() {
				c.skipUndated(collectionMessages, userID, msg.ID)
				continue
			}
			if msg.CreatedAt.Unix() <= mark {
				return messages, nil
			}
			if msg.FromUser.ID == userID {
				messages = append(messages, msg)
			}
		}
		next, ok := nextCursor(offset, len(page.List), page.HasMore, page.NextOffset)
		if !ok {
			return messages, nil
		}
		offset = next
	}
}

// Highlights lists every highlight category, then fetches each category's
// stories. The cutoff is applied per category on the reversed story list.
func (c *Client) Highlights(ctx context.Context, userID, mark int64) ([]HighlightStory, error) {
	var categories []HighlightCategory
	offset := 0
	for {
		var page []HighlightCategory
		if err := c.getJSON(ctx, collectionHighlights, highlightCategoriesPath(userID, offset), &page); err != nil {
			return nil, c.fail(err, collectionHighlights, userID, offset)
		}
		if len(page) == 0 {
			break
		}
		categories = append(categories, page...)
		offset += highlightCategoryPageSize
	}

	var stories []HighlightStory
	for _, category := range categories {
		var detail Highlight
		if err := c.getJSON(ctx, collectionHighlights, highlightPath(category.ID), &detail); err != nil {
			return nil, c.fail(err, collectionHighlights, userID, int(category.ID))
		}
		for _, story := range c.newerStories(collectionHighlights, userID, detail.Stories, mark) {
			stories = append(stories, HighlightStory{Category: category.Title, Story: story})
		}
	}
	return stories, nil
}

// Stories fetches the current stories in a single request
func (c *Client) Stories(ctx context.Context, userID, mark int64) ([]Story, error) {
	var page []Story
	if err := c.getJSON(ctx, collectionStories, storiesPath(userID), &page); err != nil {
		return nil, c.fail(err, collectionStories, userID, 0)
	}
	return c.newerStories(collectionStories, userID, page, mark), nil
}

// newerStories walks stories in reverse and keeps them until the first one
// not newer than mark. Undated stories are skipped.
func (c *Client) newerStories(collection string, userID int64, stories []Story, mark int64) []Story {
	var kept []Story
	for _, story := range slices.Backward(stories) {
		if story.CreatedAt.IsZero() {
			c.skipUndated(collection, userID, story.ID)
			continue
		}
		if story.CreatedAt.Unix() <= mark {
			break
		}
		kept = append(kept, story)
	}
	return kept
}

// skipUndated drops a record without a timestamp. It can be neither compared
// to the mark nor recorded, so it must not end the walk.
func (c *Client) skipUndated(collection string, userID, recordID int64) {
	c.opts.Logger.DebugWithFields("skipping record without timestamp", map[string]interface{}{
		"collection": collection,
		"user_id":    userID,
		"record_id":  recordID,
	})
}
