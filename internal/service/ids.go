package service

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// playlistID derives a stable id from the parts identifying a source, so
// re-ingesting the same source replaces the previous snapshot.
func playlistID(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return fmt.Sprintf("%x", h[:8])
}

// M3UURLPlaylistID is the id of a playlist ingested from url.
func M3UURLPlaylistID(url string) string { return playlistID("m3u-url", url) }

// M3UFilePlaylistID is the id of a playlist ingested from local text named name.
func M3UFilePlaylistID(name string) string { return playlistID("m3u-file", name) }

// XtreamPlaylistID is the id of a playlist ingested from an Xtream account.
func XtreamPlaylistID(serverURL, username, password string) string {
	return playlistID("xtream", strings.TrimRight(serverURL, "/"), username, password)
}
