// Package service orchestrates playlist ingestion: fetch or parse, resolve
// categories, then replace the stored snapshot in one transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/models"
	"github.com/voyagen/streamshelf/internal/store"
	"github.com/voyagen/streamshelf/internal/xtream"
)

var (
	// ErrAuthFailed means the Xtream panel rejected the account.
	ErrAuthFailed = errors.New("xtream authentication failed")
	// ErrIngestInProgress means another process holds the ingest lock for the playlist.
	ErrIngestInProgress = errors.New("ingestion already in progress")
	// ErrRefreshUnsupported means the playlist has no source that can be fetched again.
	ErrRefreshUnsupported = errors.New("playlist cannot be refreshed")
	// ErrInvalidURL rejects playlist URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid playlist url")
)

// vodPrefix namespaces VOD ids so they cannot collide with live ids from the same panel.
const vodPrefix = "vod:"

// XtreamAPI is the subset of the Xtream client used for ingestion.
type XtreamAPI interface {
	Authenticate(ctx context.Context, a xtream.Account) bool
	ListLiveCategories(ctx context.Context, a xtream.Account) ([]models.Category, error)
	ListLiveStreams(ctx context.Context, a xtream.Account) ([]models.Channel, error)
	ListVodCategories(ctx context.Context, a xtream.Account) ([]models.Category, error)
	ListVodStreams(ctx context.Context, a xtream.Account) ([]models.Channel, error)
}

// Ingester builds playlists from their sources and persists them.
type Ingester struct {
	store  store.Store
	getter fetcher.Getter
	xtream XtreamAPI
	locker Locker
	logger *zap.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithLocker adds l after the in-process lock, e.g. a RedisLocker shared by
// several instances.
func WithLocker(l Locker) Option {
	return func(in *Ingester) {
		in.locker = chainLocker{in.locker, l}
	}
}

// NewIngester returns an Ingester writing to s.
func NewIngester(s store.Store, g fetcher.Getter, x XtreamAPI, logger *zap.Logger, opts ...Option) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	in := &Ingester{store: s, getter: g, xtream: x, locker: newKeyedMutex(), logger: logger}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// IngestM3UURL fetches and parses the playlist at rawURL. name is optional and
// defaults to the URL host.
func (in *Ingester) IngestM3UURL(ctx context.Context, rawURL, name string) (*models.Playlist, error) {
	rawURL = strings.TrimSpace(rawURL)
	host, err := checkURL(rawURL)
	if err != nil {
		return nil, err
	}
	if name, err = nameOr(name, host); err != nil {
		return nil, err
	}

	channels, err := fetcher.FetchM3U(ctx, in.getter, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	p := &models.Playlist{
		ID:   M3UURLPlaylistID(rawURL),
		Name: name,
		URL:  &rawURL,
		Type: models.PlaylistTypeM3UURL,
	}
	p.Channels = channels
	p.Categories = categoriesFromGroups(channels)
	if err := in.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// IngestM3UText parses text already read by the caller and stores it under name.
func (in *Ingester) IngestM3UText(ctx context.Context, name, text string) (*models.Playlist, error) {
	name, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	channels := fetcher.Parse(text)
	p := &models.Playlist{
		ID:   M3UFilePlaylistID(name),
		Name: name,
		Type: models.PlaylistTypeM3UFile,
	}
	p.Channels = channels
	p.Categories = categoriesFromGroups(channels)
	if err := in.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// IngestXtream authenticates a and stores its live streams, plus VOD when
// a.IncludeVOD is set. Any failed call fails the whole ingestion.
func (in *Ingester) IngestXtream(ctx context.Context, a xtream.Account, name string) (*models.Playlist, error) {
	a.ServerURL = strings.TrimRight(strings.TrimSpace(a.ServerURL), "/")
	host, err := checkURL(a.ServerURL)
	if err != nil {
		return nil, err
	}
	if name, err = nameOr(name, host); err != nil {
		return nil, err
	}
	if !in.xtream.Authenticate(ctx, a) {
		return nil, ErrAuthFailed
	}

	cats, err := in.xtream.ListLiveCategories(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("ListLiveCategories: %w", err)
	}
	channels, err := in.xtream.ListLiveStreams(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("ListLiveStreams: %w", err)
	}
	resolveGroups(channels, cats)

	if a.IncludeVOD {
		vodCats, err := in.xtream.ListVodCategories(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("ListVodCategories: %w", err)
		}
		movies, err := in.xtream.ListVodStreams(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("ListVodStreams: %w", err)
		}
		resolveGroups(movies, vodCats)
		prefixVOD(vodCats, movies)
		cats = append(cats, vodCats...)
		channels = append(channels, movies...)
	}

	if n := store.SanitizeCategories(cats); n > 0 {
		in.logger.Warn("xtream categories with invalid parent flattened",
			zap.String("server", a.ServerURL), zap.Int("count", n))
	}

	serverURL := a.ServerURL
	creds := a.Credentials()
	p := &models.Playlist{
		ID:          XtreamPlaylistID(a.ServerURL, a.Username, a.Password),
		Name:        name,
		URL:         &serverURL,
		Type:        models.PlaylistTypeXtream,
		Channels:    channels,
		Categories:  cats,
		Credentials: &creds,
	}
	if err := in.persist(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Refresh re-ingests an M3U_URL playlist from its stored URL, keeping its name.
func (in *Ingester) Refresh(ctx context.Context, id string) (*models.Playlist, error) {
	p, err := in.store.PlaylistByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Type != models.PlaylistTypeM3UURL || p.URL == nil {
		return nil, fmt.Errorf("%w: type %s", ErrRefreshUnsupported, p.Type)
	}
	return in.IngestM3UURL(ctx, *p.URL, p.Name)
}

// RenamePlaylist validates name and stores it.
func (in *Ingester) RenamePlaylist(ctx context.Context, id, name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	return in.store.RenamePlaylist(ctx, id, name)
}

func (in *Ingester) persist(ctx context.Context, p *models.Playlist) error {
	unlock, err := in.locker.Lock(ctx, "ingest:"+p.ID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := in.store.InsertPlaylist(ctx, p); err != nil {
		return fmt.Errorf("InsertPlaylist: %w", err)
	}
	in.logger.Info("playlist ingested",
		zap.String("playlist_id", p.ID),
		zap.String("type", string(p.Type)),
		zap.Int("channels", len(p.Channels)),
		zap.Int("categories", len(p.Categories)))
	return nil
}

// categoriesFromGroups derives one category per distinct group-title, in order of
// first appearance, and points each grouped channel at it. The group is the id.
func categoriesFromGroups(channels []models.Channel) []models.Category {
	var cats []models.Category
	seen := make(map[string]bool)
	for i := range channels {
		g := channels[i].Group
		if g == nil || *g == "" {
			continue
		}
		if !seen[*g] {
			seen[*g] = true
			cats = append(cats, models.Category{ID: *g, Name: *g})
		}
		catID := *g
		channels[i].CategoryID = &catID
	}
	return cats
}

// resolveGroups replaces each channel's raw category id in Group with the
// category's display name. Unknown ids are left as they are.
func resolveGroups(channels []models.Channel, cats []models.Category) {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	for i := range channels {
		g := channels[i].Group
		if g == nil {
			continue
		}
		if name, ok := names[*g]; ok {
			resolved := name
			channels[i].Group = &resolved
		}
	}
}

func prefixVOD(cats []models.Category, movies []models.Channel) {
	for i := range cats {
		cats[i].ID = vodPrefix + cats[i].ID
		if cats[i].ParentID != nil {
			p := vodPrefix + *cats[i].ParentID
			cats[i].ParentID = &p
		}
	}
	for i := range movies {
		movies[i].ID = vodPrefix + movies[i].ID
		if movies[i].CategoryID != nil {
			c := vodPrefix + *movies[i].CategoryID
			movies[i].CategoryID = &c
		}
	}
}

func checkURL(raw string) (host string, err error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u.Hostname(), nil
}

func nameOr(name, fallback string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = fallback
	}
	return ValidateName(name)
}
