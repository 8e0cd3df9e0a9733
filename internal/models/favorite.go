package models

// Favorite marks a channel id as favorite. AddedAt is a millisecond epoch.
type Favorite struct {
	ChannelID string `json:"channel_id" db:"channel_id"`
	AddedAt   int64  `json:"added_at" db:"added_at"`
}
