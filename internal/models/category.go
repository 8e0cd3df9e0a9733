package models

// Category groups channels within a playlist. ParentID, when set, names another
// category of the same playlist.
type Category struct {
	ID         string  `json:"id" db:"id"`
	PlaylistID string  `json:"playlist_id" db:"playlist_id"`
	Name       string  `json:"name" db:"name"`
	ParentID   *string `json:"parent_id,omitempty" db:"parent_id"`
}

// CategoryCount is the number of channels assigned to one category.
type CategoryCount struct {
	PlaylistID string `json:"playlist_id" db:"playlist_id"`
	CategoryID string `json:"category_id" db:"category_id"`
	Count      int    `json:"count" db:"channel_count"`
}
