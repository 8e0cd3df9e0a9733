package store

import (
	"context"
	"errors"

	"github.com/voyagen/streamshelf/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidParent is returned when a category's parent is not a top-level
	// category of the same playlist.
	ErrInvalidParent = errors.New("invalid category parent")
	// ErrInvalidProgram is returned for EPG programs with an empty interval.
	ErrInvalidProgram = errors.New("invalid epg program interval")
)

// Store defines persistence for playlists, channels, categories, favorites and EPG programs.
type Store interface {
	// InsertPlaylist upserts the playlist row and, in the same transaction, replaces
	// all of its channels and categories.
	InsertPlaylist(ctx context.Context, p *models.Playlist) error
	// Playlists returns every playlist with its channels and categories.
	Playlists(ctx context.Context) ([]models.Playlist, error)
	// PlaylistByID returns one playlist with its channels and categories.
	PlaylistByID(ctx context.Context, id string) (*models.Playlist, error)
	// RenamePlaylist sets the playlist name. The caller validates name.
	RenamePlaylist(ctx context.Context, id, name string) error
	// DeletePlaylist removes a playlist (cascading to channels and categories) and
	// sweeps favorites left without a channel.
	DeletePlaylist(ctx context.Context, id string) error
	// WatchPlaylists emits the full playlist list now and after every committed write.
	WatchPlaylists(ctx context.Context) <-chan []models.Playlist

	// Channels returns a playlist's channels in stored order.
	Channels(ctx context.Context, playlistID string) ([]models.Channel, error)
	// ChannelsByCategory returns a playlist's channels assigned to categoryID.
	ChannelsByCategory(ctx context.Context, playlistID, categoryID string) ([]models.Channel, error)

	// Categories returns a playlist's categories sorted by name.
	Categories(ctx context.Context, playlistID string) ([]models.Category, error)
	// CategoryChannelCounts counts channels per non-null category id. An empty
	// playlistID counts across all playlists.
	CategoryChannelCounts(ctx context.Context, playlistID string) ([]models.CategoryCount, error)

	// ToggleFavorite flips the favorite state of channelID and returns the new state.
	ToggleFavorite(ctx context.Context, channelID string) (bool, error)
	// IsFavorite reports whether channelID is a favorite.
	IsFavorite(ctx context.Context, channelID string) (bool, error)
	// Favorites returns all favorites, newest first.
	Favorites(ctx context.Context) ([]models.Favorite, error)
	// PruneFavorites deletes favorites whose channel id matches no channel.
	PruneFavorites(ctx context.Context) (int64, error)

	// InsertPrograms upserts EPG programs by id.
	InsertPrograms(ctx context.Context, programs []models.EpgProgram) error
	// Programs returns programs of channelID overlapping [from, to), by start time.
	Programs(ctx context.Context, channelID string, from, to int64) ([]models.EpgProgram, error)
	// CurrentProgram returns the program of channelID covering at.
	CurrentProgram(ctx context.Context, channelID string, at int64) (*models.EpgProgram, error)
	// DeleteProgramsBefore deletes programs that ended at or before ts.
	DeleteProgramsBefore(ctx context.Context, ts int64) (int64, error)
}
