package models

// Channel is a single playable stream belonging to exactly one playlist.
// Group holds the free-text group-title (M3U) or the resolved category name (Xtream).
type Channel struct {
	ID           string          `json:"id" db:"id"`
	PlaylistID   string          `json:"playlist_id" db:"playlist_id"`
	Name         string          `json:"name" db:"name"`
	URL          string          `json:"url" db:"url"`
	LogoURL      *string         `json:"logo_url,omitempty" db:"logo_url"`
	Group        *string         `json:"group,omitempty" db:"group_name"`
	TvgID        *string         `json:"tvg_id,omitempty" db:"tvg_id"`
	TvgName      *string         `json:"tvg_name,omitempty" db:"tvg_name"`
	EpgChannelID *string         `json:"epg_channel_id,omitempty" db:"epg_channel_id"`
	CategoryID   *string         `json:"category_id,omitempty" db:"category_id"`
	Headers      *ChannelHeaders `json:"headers,omitempty" db:"-"`
}
