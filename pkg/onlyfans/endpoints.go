package onlyfans

import (
	"fmt"
	"net/url"
)

const (
	// DefaultPageSize is the limit sent on offset-paginated listings
	DefaultPageSize = 10

	// highlightCategoryPageSize is fixed by the remote API
	highlightCategoryPageSize = 5
)

// Collection names used in errors, metrics and dump file names
const (
	collectionUser          = "user"
	collectionSubscriptions = "subscriptions"
	collectionChats         = "chats"
	collectionPosts         = "posts"
	collectionArchived      = "archived"
	collectionMessages      = "messages"
	collectionHighlights    = "highlights"
	collectionStories       = "stories"
)

func userPath(idOrName string) string {
	return "/api2/v2/users/" + url.PathEscape(idOrName)
}

func subscriptionsPath(limit, offset int) string {
	return fmt.Sprintf("/api2/v2/subscriptions/subscribes?limit=%d&offset=%d&type=active&sort=desc", limit, offset)
}

func postsPath(userID int64, limit, offset int) string {
	return fmt.Sprintf("/api2/v2/users/%d/posts?limit=%d&offset=%d&order=publish_date_desc", userID, limit, offset)
}

func archivedPostsPath(userID int64, limit, offset int) string {
	return fmt.Sprintf("/api2/v2/users/%d/posts/archived?limit=%d&offset=%d&order=publish_date_desc", userID, limit, offset)
}

func chatsPath(limit, offset int) string {
	return fmt.Sprintf("/api2/v2/chats?limit=%d&offset=%d", limit, offset)
}

func messagesPath(userID int64, limit, offset int) string {
	return fmt.Sprintf("/api2/v2/chats/%d/messages?limit=%d&offset=%d&order=desc", userID, limit, offset)
}

func highlightCategoriesPath(userID int64, offset int) string {
	return fmt.Sprintf("/api2/v2/users/%d/stories/highlights?limit=%d&offset=%d", userID, highlightCategoryPageSize, offset)
}

func highlightPath(categoryID int64) string {
	return fmt.Sprintf("/api2/v2/stories/highlights/%d", categoryID)
}

func storiesPath(userID int64) string {
	return fmt.Sprintf("/api2/v2/users/%d/stories", userID)
}
