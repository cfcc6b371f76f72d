// ABOUTME: Subscription model linking a user to a feed with notification and AI flags
// ABOUTME: Read by event subscribers to decide who hears about new items

package models

import "time"

// Subscription is one user's subscription to one feed.
type Subscription struct {
	UserID        string    `json:"userId" bson:"user_id"`
	FeedID        string    `json:"feedId" bson:"feed_id"`
	Notifications bool      `json:"notifications" bson:"notifications"`
	AITrigger     bool      `json:"aiTrigger" bson:"ai_trigger"`
	CreatedAt     time.Time `json:"createdAt" bson:"created_at"`
}
