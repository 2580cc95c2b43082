package onlyfans

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
)

// Timestamp decodes the API's ISO-8601 timestamps ("2024-03-05T10:00:00+00:00")
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

// Unix returns seconds since the epoch, or 0 for a missing timestamp
func (t Timestamp) Unix() int64 {
	if t.IsZero() {
		return 0
	}
	return t.Time.Unix()
}

// FlexibleID accepts an identifier encoded either as a JSON number or string.
// Preview lists mix both.
type FlexibleID int64

func (id *FlexibleID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			// Non-numeric previews never match a media id.
			*id = -1
			return nil
		}
		*id = FlexibleID(n)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = FlexibleID(n)
	return nil
}

// User is the subset of a user profile the mirror needs
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Header   string `json:"header"`
}

// MediaSource is the nested source object on post and story media
type MediaSource struct {
	Source   string  `json:"source"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Duration float64 `json:"duration"`
}

// PostMedia is a media entry on a post, archived post or story
type PostMedia struct {
	ID      int64       `json:"id"`
	Type    string      `json:"type"`
	CanView bool        `json:"canView"`
	Source  MediaSource `json:"source"`
}

// Post is a timeline post. Reported posts omit most fields.
type Post struct {
	ID              int64        `json:"id"`
	PostedAt        Timestamp    `json:"postedAt"`
	PostedAtPrecise string       `json:"postedAtPrecise"`
	ExpiredAt       *Timestamp   `json:"expiredAt"`
	Author          *User        `json:"author"`
	RawText         string       `json:"rawText"`
	Price           *float64     `json:"price"`
	IsArchived      bool         `json:"isArchived"`
	Media           []PostMedia  `json:"media"`
	Preview         []FlexibleID `json:"preview"`
}

// Expired reports whether the post carries an expiry
func (p Post) Expired() bool {
	return p.ExpiredAt != nil && !p.ExpiredAt.IsZero()
}

// Chat is one conversation from the chats listing
type Chat struct {
	WithUser User `json:"withUser"`
}

// ChatsPage is one page of the chats listing
type ChatsPage struct {
	List       []Chat `json:"list"`
	HasMore    bool   `json:"hasMore"`
	NextOffset *int   `json:"nextOffset"`
}

// MessageMedia is a media entry attached to a direct message
type MessageMedia struct {
	ID       int64   `json:"id"`
	CanView  bool    `json:"canView"`
	Type     string  `json:"type"`
	Src      string  `json:"src"`
	Duration float64 `json:"duration"`
	Info     struct {
		Source struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"source"`
	} `json:"info"`
}

// Message is a direct message
type Message struct {
	ID        int64          `json:"id"`
	Text      string         `json:"text"`
	Price     *float64       `json:"price"`
	Media     []MessageMedia `json:"media"`
	Previews  []FlexibleID   `json:"previews"`
	FromUser  User           `json:"fromUser"`
	CreatedAt Timestamp      `json:"createdAt"`
}

// MessagesPage is one page of a chat's messages
type MessagesPage struct {
	List       []Message `json:"list"`
	HasMore    bool      `json:"hasMore"`
	NextOffset *int      `json:"nextOffset"`
}

// StoryQuestion is the optional question sticker on a story
type StoryQuestion struct {
	Entity struct {
		Text string `json:"text"`
	} `json:"entity"`
}

// Story is a story, standalone or inside a highlight
type Story struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"userId"`
	CreatedAt Timestamp      `json:"createdAt"`
	Media     []PostMedia    `json:"media"`
	Question  *StoryQuestion `json:"question"`
}

// HighlightCategory is one entry in a user's highlight listing
type HighlightCategory struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Title     string    `json:"title"`
	Cover     string    `json:"cover"`
	CreatedAt Timestamp `json:"createdAt"`
}

// Highlight is the detail document of a highlight category
type Highlight struct {
	HighlightCategory
	Stories []Story `json:"stories"`
}

// HighlightStory is a story together with the category it was found under
type HighlightStory struct {
	Category string
	Story    Story
}
