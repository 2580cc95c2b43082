package models

import (
	"fmt"
	"time"
)

// SourceType names the remote collection a media item came from. It is also
// the directory segment under a user's download folder.
type SourceType string

const (
	SourcePosts    SourceType = "posts"
	SourceArchived SourceType = "archived"
	SourceMessages SourceType = "messages"
	SourceStories  SourceType = "stories"
)

// Collection names the walk that produced a ledger row. Highlights are
// stored as stories but keep their own high-water mark.
type Collection string

const (
	CollectionPosts      Collection = "posts"
	CollectionArchived   Collection = "archived"
	CollectionMessages   Collection = "messages"
	CollectionStories    Collection = "stories"
	CollectionHighlights Collection = "highlights"
	CollectionAvatar     Collection = "avatar"
	CollectionHeader     Collection = "header"
)

// SourceType maps a walk to the directory its media is written under
func (c Collection) SourceType() SourceType {
	switch c {
	case CollectionHighlights:
		return SourceStories
	default:
		return SourceType(c)
	}
}

// PriceTier records whether a viewable item was paid for
type PriceTier string

const (
	PriceFree PriceTier = "free"
	PricePaid PriceTier = "paid"
)

// FileType is the remote media kind
type FileType string

const (
	FilePhoto FileType = "photo"
	FileVideo FileType = "video"
	FileGIF   FileType = "gif"
	FileAudio FileType = "audio"
)

// Extension returns the file extension for a media kind, or "" for kinds
// that cannot be materialized.
func (f FileType) Extension() string {
	switch f {
	case FilePhoto:
		return "jpg"
	case FileVideo, FileGIF:
		return "mp4"
	case FileAudio:
		return "mp3"
	default:
		return ""
	}
}

// RemoteUser is a creator account on the remote service. Two users are the
// same user when their IDs match.
type RemoteUser struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"name"`
	AvatarURL   string `json:"avatar,omitempty"`
	HeaderURL   string `json:"header,omitempty"`
}

// Equal compares by ID only
func (u RemoteUser) Equal(other RemoteUser) bool {
	return u.ID == other.ID
}

func (u RemoteUser) String() string {
	return fmt.Sprintf("%s(%d)", u.Username, u.ID)
}

// Key identifies a media item across passes
type Key struct {
	SourceType     SourceType
	SourceRecordID int64
	MediaID        int64
}

// MediaItem is the canonical descriptor produced from any raw record kind
type MediaItem struct {
	OwnerUserID    int64
	SourceType     SourceType
	Collection     Collection
	SourceRecordID int64
	MediaID        int64
	FileType       FileType
	CreatedAt      time.Time
	PriceTier      PriceTier
	Caption        string
	Width          int
	Height         int
	Duration       float64
	URL            string
	ExpiresAt      *time.Time

	// HighlightCategory is set for stories reached through a highlight
	HighlightCategory string
}

// Key returns the item's identity key
func (m MediaItem) Key() Key {
	return Key{
		SourceType:     m.SourceType,
		SourceRecordID: m.SourceRecordID,
		MediaID:        m.MediaID,
	}
}

// Timestamp is the ledger timestamp for the item, in unix seconds
func (m MediaItem) Timestamp() int64 {
	return m.CreatedAt.Unix()
}
