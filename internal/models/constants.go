package models

// PlaylistType identifies where a playlist's channels come from.
type PlaylistType string

// Playlist source types, stored verbatim in Playlist.type.
const (
	PlaylistTypeM3UURL  PlaylistType = "M3U_URL"
	PlaylistTypeM3UFile PlaylistType = "M3U_FILE"
	PlaylistTypeXtream  PlaylistType = "XTREAM"
)

// Valid reports whether t is one of the known playlist types.
func (t PlaylistType) Valid() bool {
	switch t {
	case PlaylistTypeM3UURL, PlaylistTypeM3UFile, PlaylistTypeXtream:
		return true
	}
	return false
}

// Stream kinds for Xtream URL synthesis.
const (
	StreamKindLive  = "live"
	StreamKindMovie = "movie"
)
