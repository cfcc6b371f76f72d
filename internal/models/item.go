// ABOUTME: Item model representing one canonical entry, episode, or video of a feed
// ABOUTME: Link is the dedup key; AI and TTS fields are filled once by downstream processes

package models

import (
	"time"

	"github.com/google/uuid"
)

// AudioInfo describes an attached media enclosure.
type AudioInfo struct {
	Length int64  `json:"length" bson:"length"`
	Type   string `json:"type" bson:"type"`
	URL    string `json:"url" bson:"url"`
}

// Item is the normalized, storage-ready representation of a feed entry
type Item struct {
	ID          string     `json:"_id" bson:"_id"`
	FeedID      string     `json:"feed" bson:"feed_id"`
	Title       string     `json:"title" bson:"title"`
	Link        string     `json:"link" bson:"link"`
	PubDate     time.Time  `json:"pubDate" bson:"pub_date"`
	Content     string     `json:"content" bson:"content"`
	Image       string     `json:"image,omitempty" bson:"image,omitempty"`
	AudioInfo   *AudioInfo `json:"audioInfo,omitempty" bson:"audio_info,omitempty"`
	Summary     string     `json:"summary,omitempty" bson:"summary,omitempty"`
	Labels      []string   `json:"labels,omitempty" bson:"labels,omitempty"`
	TTSAudioURL string     `json:"ttsAudio,omitempty" bson:"tts_audio,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at"`
}

// NewItem creates an Item with a generated ID owned by feedID
func NewItem(feedID, title, link string) *Item {
	return &Item{
		ID:        uuid.New().String(),
		FeedID:    feedID,
		Title:     title,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
}
