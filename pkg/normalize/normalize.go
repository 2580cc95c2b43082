package normalize

import (
	"time"

	"fansync/pkg/models"
	"fansync/pkg/onlyfans"
)

// mediaShape resolves the fields that live under a different name on each
// raw media kind.
type mediaShape interface {
	mediaID() int64
	fileType() models.FileType
	viewable() bool
	url() string
	geometry() (width, height int, duration float64)
}

type postMedia onlyfans.PostMedia

func (m postMedia) mediaID() int64            { return m.ID }
func (m postMedia) fileType() models.FileType { return models.FileType(m.Type) }
func (m postMedia) viewable() bool            { return m.CanView }
func (m postMedia) url() string               { return m.Source.Source }
func (m postMedia) geometry() (int, int, float64) {
	return m.Source.Width, m.Source.Height, m.Source.Duration
}

type messageMedia onlyfans.MessageMedia

func (m messageMedia) mediaID() int64            { return m.ID }
func (m messageMedia) fileType() models.FileType { return models.FileType(m.Type) }
func (m messageMedia) viewable() bool            { return m.CanView }
func (m messageMedia) url() string               { return m.Src }
func (m messageMedia) geometry() (int, int, float64) {
	return m.Info.Source.Width, m.Info.Source.Height, m.Duration
}

func newItem(shape mediaShape, base models.MediaItem) models.MediaItem {
	item := base
	item.MediaID = shape.mediaID()
	item.FileType = shape.fileType()
	item.URL = shape.url()
	item.Width, item.Height, item.Duration = shape.geometry()
	return item
}

// Post normalizes a timeline post. ownerID is used when the post carries no
// author.
func Post(p onlyfans.Post, ownerID int64, skipTemporary bool) []models.MediaItem {
	if !keepPost(p, skipTemporary) {
		return nil
	}
	tier := models.PriceFree
	if isPriced(p.Price) {
		tier = models.PricePaid
	}

	base := postBase(p, ownerID, models.SourcePosts)
	var items []models.MediaItem
	for _, m := range p.Media {
		if !m.CanView {
			continue
		}
		item := newItem(postMedia(m), base)
		item.PriceTier = tier
		items = append(items, item)
	}
	return items
}

// ArchivedPost normalizes an archived post. Media listed as a preview stays
// free even on a priced post.
func ArchivedPost(p onlyfans.Post, ownerID int64, skipTemporary bool) []models.MediaItem {
	if !keepPost(p, skipTemporary) {
		return nil
	}
	priced := isPriced(p.Price)
	previews := previewSet(p.Preview)

	base := postBase(p, ownerID, models.SourceArchived)
	var items []models.MediaItem
	for _, m := range p.Media {
		if !m.CanView {
			continue
		}
		item := newItem(postMedia(m), base)
		item.PriceTier = tierFor(priced, previews, m.ID)
		items = append(items, item)
	}
	return items
}

// Message normalizes a direct message sent by the chat partner
func Message(msg onlyfans.Message) []models.MediaItem {
	priced := isPriced(msg.Price)
	previews := previewSet(msg.Previews)

	base := models.MediaItem{
		OwnerUserID:    msg.FromUser.ID,
		SourceType:     models.SourceMessages,
		Collection:     models.CollectionMessages,
		SourceRecordID: msg.ID,
		CreatedAt:      msg.CreatedAt.Time,
		Caption:        msg.Text,
	}
	var items []models.MediaItem
	for _, m := range msg.Media {
		if !m.CanView {
			continue
		}
		item := newItem(messageMedia(m), base)
		item.PriceTier = tierFor(priced, previews, m.ID)
		items = append(items, item)
	}
	return items
}

// Story normalizes a current story
func Story(s onlyfans.Story) []models.MediaItem {
	return story(s, "", models.CollectionStories)
}

// Highlight normalizes a story found under a highlight category
func Highlight(h onlyfans.HighlightStory) []models.MediaItem {
	return story(h.Story, h.Category, models.CollectionHighlights)
}

func story(s onlyfans.Story, category string, collection models.Collection) []models.MediaItem {
	caption := category
	if s.Question != nil {
		caption = category + "." + s.Question.Entity.Text
	}

	base := models.MediaItem{
		OwnerUserID:       s.UserID,
		SourceType:        models.SourceStories,
		Collection:        collection,
		SourceRecordID:    s.ID,
		CreatedAt:         s.CreatedAt.Time,
		PriceTier:         models.PriceFree,
		Caption:           caption,
		HighlightCategory: category,
	}
	var items []models.MediaItem
	for _, m := range s.Media {
		if !m.CanView {
			continue
		}
		items = append(items, newItem(postMedia(m), base))
	}
	return items
}

func keepPost(p onlyfans.Post, skipTemporary bool) bool {
	if len(p.Media) == 0 {
		return false
	}
	return !(skipTemporary && p.Expired())
}

func postBase(p onlyfans.Post, ownerID int64, source models.SourceType) models.MediaItem {
	if p.Author != nil && p.Author.ID != 0 {
		ownerID = p.Author.ID
	}
	var expires *time.Time
	if p.Expired() {
		t := p.ExpiredAt.Time
		expires = &t
	}
	return models.MediaItem{
		OwnerUserID:    ownerID,
		SourceType:     source,
		Collection:     models.Collection(source),
		SourceRecordID: p.ID,
		CreatedAt:      p.PostedAt.Time,
		Caption:        p.RawText,
		ExpiresAt:      expires,
	}
}

func isPriced(price *float64) bool {
	return price != nil && *price != 0
}

func previewSet(ids []onlyfans.FlexibleID) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[int64(id)] = struct{}{}
	}
	return set
}

func tierFor(priced bool, previews map[int64]struct{}, mediaID int64) models.PriceTier {
	if !priced {
		return models.PriceFree
	}
	if _, ok := previews[mediaID]; ok {
		return models.PriceFree
	}
	return models.PricePaid
}
