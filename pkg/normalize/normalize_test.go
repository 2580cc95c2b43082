package normalize

import (
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fansync/pkg/models"
	"fansync/pkg/onlyfans"
)

func decode[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestArchivedPostPreviewStaysFree(t *testing.T) {
	post := decode[onlyfans.Post](t, `{
		"id": 100, "postedAt": "2024-03-05T10:00:00+00:00", "rawText": "hello",
		"author": {"id": 42}, "price": 10, "preview": [5],
		"media": [
			{"id": 5, "type": "photo", "canView": true, "source": {"source": "http://cdn/5.jpg", "width": 10, "height": 20}},
			{"id": 6, "type": "video", "canView": true, "source": {"source": "http://cdn/6.mp4", "duration": 12.5}}
		]
	}`)

	items := ArchivedPost(post, 0, false)
	require.Len(t, items, 2)

	assert.Equal(t, int64(5), items[0].MediaID)
	assert.Equal(t, models.PriceFree, items[0].PriceTier)
	assert.Equal(t, 10, items[0].Width)
	assert.Equal(t, 20, items[0].Height)

	assert.Equal(t, int64(6), items[1].MediaID)
	assert.Equal(t, models.PricePaid, items[1].PriceTier)
	assert.Equal(t, 12.5, items[1].Duration)
	assert.Equal(t, models.FileVideo, items[1].FileType)

	for _, it := range items {
		assert.Equal(t, models.SourceArchived, it.SourceType)
		assert.Equal(t, models.CollectionArchived, it.Collection)
		assert.Equal(t, int64(42), it.OwnerUserID)
		assert.Equal(t, int64(100), it.SourceRecordID)
		assert.Equal(t, "hello", it.Caption)
		assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC).Unix(), it.Timestamp())
	}
}

func TestPostPriceAppliesToEveryMedia(t *testing.T) {
	post := decode[onlyfans.Post](t, `{
		"id": 1, "postedAt": "2024-03-05T10:00:00+00:00", "price": 10, "preview": [5],
		"media": [{"id": 5, "type": "photo", "canView": true}, {"id": 6, "type": "photo", "canView": true}]
	}`)

	items := Post(post, 42, false)
	require.Len(t, items, 2)
	assert.Equal(t, models.PricePaid, items[0].PriceTier)
	assert.Equal(t, models.PricePaid, items[1].PriceTier)
	assert.Equal(t, int64(42), items[0].OwnerUserID)
}

func TestZeroOrMissingPriceIsFree(t *testing.T) {
	free := decode[onlyfans.Post](t, `{"id": 1, "price": 0, "media": [{"id": 5, "canView": true}]}`)
	missing := decode[onlyfans.Post](t, `{"id": 2, "media": [{"id": 6, "canView": true}]}`)

	assert.Equal(t, models.PriceFree, Post(free, 1, false)[0].PriceTier)
	assert.Equal(t, models.PriceFree, Post(missing, 1, false)[0].PriceTier)
	assert.Equal(t, models.PriceFree, ArchivedPost(free, 1, false)[0].PriceTier)
}

func TestUnviewableMediaDropped(t *testing.T) {
	post := decode[onlyfans.Post](t, `{"id": 1, "media": [{"id": 5, "type": "photo", "canView": false}]}`)
	assert.Empty(t, Post(post, 1, false))
	assert.Empty(t, ArchivedPost(post, 1, false))

	msg := decode[onlyfans.Message](t, `{"id": 1, "media": [{"id": 5, "canView": false}]}`)
	assert.Empty(t, Message(msg))

	story := decode[onlyfans.Story](t, `{"id": 1, "media": [{"id": 5, "canView": false}]}`)
	assert.Empty(t, Story(story))
}

func TestPostWithoutMediaDropped(t *testing.T) {
	post := decode[onlyfans.Post](t, `{"id": 1, "rawText": "text only"}`)
	assert.Nil(t, Post(post, 1, false))
}

func TestExpiredPostsHonorSkipTemporary(t *testing.T) {
	post := decode[onlyfans.Post](t, `{
		"id": 1, "expiredAt": "2024-04-01T00:00:00+00:00",
		"media": [{"id": 5, "type": "photo", "canView": true}]
	}`)

	assert.Empty(t, Post(post, 1, true))
	assert.Empty(t, ArchivedPost(post, 1, true))

	items := Post(post, 1, false)
	require.Len(t, items, 1)
	require.NotNil(t, items[0].ExpiresAt)
	assert.Equal(t, 2024, items[0].ExpiresAt.Year())
}

func TestMessagePreviewsAndGeometry(t *testing.T) {
	msg := decode[onlyfans.Message](t, `{
		"id": 9, "text": "for you", "price": 4.99, "previews": ["7"],
		"fromUser": {"id": 42}, "createdAt": "2024-03-05T10:00:00+00:00",
		"media": [
			{"id": 7, "type": "photo", "canView": true, "src": "http://cdn/7.jpg", "info": {"source": {"width": 640, "height": 480}}},
			{"id": 8, "type": "audio", "canView": true, "src": "http://cdn/8.mp3", "duration": 30}
		]
	}`)

	items := Message(msg)
	require.Len(t, items, 2)
	assert.Equal(t, models.PriceFree, items[0].PriceTier)
	assert.Equal(t, "http://cdn/7.jpg", items[0].URL)
	assert.Equal(t, 640, items[0].Width)
	assert.Equal(t, 480, items[0].Height)
	assert.Equal(t, models.PricePaid, items[1].PriceTier)
	assert.Equal(t, 30.0, items[1].Duration)
	assert.Equal(t, models.SourceMessages, items[1].SourceType)
	assert.Equal(t, "for you", items[1].Caption)
	assert.Equal(t, int64(42), items[1].OwnerUserID)
}

func TestStoryCaptions(t *testing.T) {
	plain := decode[onlyfans.Story](t, `{"id": 1, "userId": 42, "media": [{"id": 5, "canView": true}]}`)
	asked := decode[onlyfans.Story](t, `{"id": 2, "userId": 42, "question": {"entity": {"text": "why"}}, "media": [{"id": 6, "canView": true}]}`)

	items := Story(plain)
	require.Len(t, items, 1)
	assert.Equal(t, "", items[0].Caption)
	assert.Equal(t, models.CollectionStories, items[0].Collection)
	assert.Equal(t, models.PriceFree, items[0].PriceTier)

	items = Highlight(onlyfans.HighlightStory{Category: "Trips", Story: plain})
	require.Len(t, items, 1)
	assert.Equal(t, "Trips", items[0].Caption)
	assert.Equal(t, "Trips", items[0].HighlightCategory)
	assert.Equal(t, models.SourceStories, items[0].SourceType)
	assert.Equal(t, models.CollectionHighlights, items[0].Collection)

	items = Highlight(onlyfans.HighlightStory{Category: "Trips", Story: asked})
	require.Len(t, items, 1)
	assert.Equal(t, "Trips.why", items[0].Caption)
}
