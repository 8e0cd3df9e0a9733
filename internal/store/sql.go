package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/models"
)

const (
	playlistColumns = `id, name, url, type, createdAt AS created_at, updatedAt AS updated_at`
	channelColumns  = `id, playlistId AS playlist_id, name, url, logoUrl AS logo_url, groupName AS group_name,
		tvgId AS tvg_id, tvgName AS tvg_name, epgChannelId AS epg_channel_id, categoryId AS category_id`
	categoryColumns = `id, playlistId AS playlist_id, name, parentId AS parent_id`
	programColumns  = `id, channelId AS channel_id, title, description, startTime AS start_time, endTime AS end_time`
)

// SQLStore implements Store on SQLite or PostgreSQL. The schema must already be
// migrated.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	changes *notifier
	logger  *zap.Logger
	now     func() time.Time
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sqlx.DB, logger *zap.Logger) (*SQLStore, error) {
	d, err := dialectFor(db.DriverName())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, dialect: d, changes: newNotifier(), logger: logger, now: time.Now}, nil
}

// --- playlists ---

// InsertPlaylist replaces a playlist and everything it owns. Readers see either the
// previous snapshot or the new one.
func (s *SQLStore) InsertPlaylist(ctx context.Context, p *models.Playlist) error {
	if !p.Type.Valid() {
		return fmt.Errorf("InsertPlaylist: unknown playlist type %q", p.Type)
	}
	if err := ValidateCategories(p.Categories); err != nil {
		return fmt.Errorf("InsertPlaylist: %w", err)
	}
	now := s.now().UnixMilli()
	if p.CreatedAt == 0 {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()

	// A replaced playlist keeps its stored createdAt, and so does p.
	err = tx.QueryRowxContext(ctx, tx.Rebind(
		`INSERT INTO Playlist (id, name, url, type, createdAt, updatedAt)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   name = excluded.name, url = excluded.url, type = excluded.type, updatedAt = excluded.updatedAt
		 RETURNING createdAt`),
		p.ID, p.Name, p.URL, string(p.Type), p.CreatedAt, p.UpdatedAt,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert playlist: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM Channel WHERE playlistId = ?`), p.ID); err != nil {
		return fmt.Errorf("delete channels: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM Category WHERE playlistId = ?`), p.ID); err != nil {
		return fmt.Errorf("delete categories: %w", err)
	}
	if err := insertCategories(ctx, tx, p.ID, p.Categories); err != nil {
		return err
	}
	if err := insertChannels(ctx, tx, p.ID, p.Channels); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	s.logger.Debug("playlist stored",
		zap.String("playlist_id", p.ID),
		zap.Int("channels", len(p.Channels)),
		zap.Int("categories", len(p.Categories)))
	s.changes.notify()
	return nil
}

func insertCategories(ctx context.Context, tx *sqlx.Tx, playlistID string, cats []models.Category) error {
	if len(cats) == 0 {
		return nil
	}
	// Rows are keyed by categoryKey so two playlists can reuse the same local id.
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO Category (id, playlistId, name, parentId) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name, parentId = excluded.parentId
		 WHERE Category.playlistId = excluded.playlistId`))
	if err != nil {
		return fmt.Errorf("prepare category insert: %w", err)
	}
	defer stmt.Close()
	for i := range cats {
		cats[i].PlaylistID = playlistID
		c := cats[i]
		var parent *string
		if c.ParentID != nil {
			k := categoryKey(playlistID, *c.ParentID)
			parent = &k
		}
		if _, err := stmt.ExecContext(ctx, categoryKey(playlistID, c.ID), playlistID, c.Name, parent); err != nil {
			return fmt.Errorf("insert category %s: %w", c.ID, err)
		}
	}
	return nil
}

func insertChannels(ctx context.Context, tx *sqlx.Tx, playlistID string, channels []models.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO Channel (id, playlistId, name, url, logoUrl, groupName, tvgId, tvgName, epgChannelId, categoryId)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("prepare channel insert: %w", err)
	}
	defer stmt.Close()
	for i := range channels {
		if err := ctx.Err(); err != nil {
			return err
		}
		channels[i].PlaylistID = playlistID
		c := channels[i]
		_, err := stmt.ExecContext(ctx, c.ID, playlistID, c.Name, c.URL, c.LogoURL, c.Group,
			c.TvgID, c.TvgName, c.EpgChannelID, c.CategoryID)
		if err != nil {
			return fmt.Errorf("insert channel %s: %w", c.ID, err)
		}
	}
	return nil
}

// Playlists returns every playlist, oldest first, with channels and categories.
func (s *SQLStore) Playlists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := s.db.SelectContext(ctx, &playlists,
		`SELECT `+playlistColumns+` FROM Playlist ORDER BY createdAt, id`)
	if err != nil {
		return nil, fmt.Errorf("Playlists: %w", err)
	}
	if len(playlists) == 0 {
		return []models.Playlist{}, nil
	}

	var channels []models.Channel
	err = s.db.SelectContext(ctx, &channels,
		`SELECT `+channelColumns+` FROM Channel ORDER BY playlistId, `+s.dialect.insertOrder)
	if err != nil {
		return nil, fmt.Errorf("Playlists: channels: %w", err)
	}
	var categories []models.Category
	err = s.db.SelectContext(ctx, &categories,
		`SELECT `+categoryColumns+` FROM Category ORDER BY playlistId, name`)
	if err != nil {
		return nil, fmt.Errorf("Playlists: categories: %w", err)
	}

	byID := make(map[string]*models.Playlist, len(playlists))
	for i := range playlists {
		playlists[i].Channels = []models.Channel{}
		byID[playlists[i].ID] = &playlists[i]
	}
	for _, ch := range channels {
		if p, ok := byID[ch.PlaylistID]; ok {
			p.Channels = append(p.Channels, ch)
		}
	}
	localCategoryIDs(categories)
	for _, c := range categories {
		if p, ok := byID[c.PlaylistID]; ok {
			p.Categories = append(p.Categories, c)
		}
	}
	return playlists, nil
}

// PlaylistByID returns ErrNotFound for an unknown id.
func (s *SQLStore) PlaylistByID(ctx context.Context, id string) (*models.Playlist, error) {
	var p models.Playlist
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+playlistColumns+` FROM Playlist WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("PlaylistByID: %w", err)
	}
	if p.Channels, err = s.Channels(ctx, id); err != nil {
		return nil, err
	}
	if p.Categories, err = s.Categories(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) RenamePlaylist(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE Playlist SET name = ?, updatedAt = ? WHERE id = ?`),
		name, s.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("RenamePlaylist: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	s.changes.notify()
	return nil
}

func (s *SQLStore) DeletePlaylist(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()

	// Explicit child deletes keep this correct where foreign keys are not enforced.
	for _, q := range []string{
		`DELETE FROM Channel WHERE playlistId = ?`,
		`DELETE FROM Category WHERE playlistId = ?`,
	} {
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
			return fmt.Errorf("DeletePlaylist: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM Playlist WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("DeletePlaylist: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	swept, err := pruneFavorites(ctx, tx)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	s.logger.Debug("playlist deleted", zap.String("playlist_id", id), zap.Int64("favorites_swept", swept))
	s.changes.notify()
	return nil
}

// --- channels ---

func (s *SQLStore) Channels(ctx context.Context, playlistID string) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.SelectContext(ctx, &channels, s.db.Rebind(
		`SELECT `+channelColumns+` FROM Channel WHERE playlistId = ? ORDER BY `+s.dialect.insertOrder), playlistID)
	if err != nil {
		return nil, fmt.Errorf("Channels: %w", err)
	}
	return channels, nil
}

func (s *SQLStore) ChannelsByCategory(ctx context.Context, playlistID, categoryID string) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := s.db.SelectContext(ctx, &channels, s.db.Rebind(
		`SELECT `+channelColumns+` FROM Channel WHERE playlistId = ? AND categoryId = ? ORDER BY `+s.dialect.insertOrder),
		playlistID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("ChannelsByCategory: %w", err)
	}
	return channels, nil
}

// --- categories ---

func (s *SQLStore) Categories(ctx context.Context, playlistID string) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories, s.db.Rebind(
		`SELECT `+categoryColumns+` FROM Category WHERE playlistId = ? ORDER BY name ASC`), playlistID)
	if err != nil {
		return nil, fmt.Errorf("Categories: %w", err)
	}
	localCategoryIDs(categories)
	return categories, nil
}

func (s *SQLStore) CategoryChannelCounts(ctx context.Context, playlistID string) ([]models.CategoryCount, error) {
	q := `SELECT playlistId AS playlist_id, categoryId AS category_id, COUNT(*) AS channel_count
	      FROM Channel WHERE categoryId IS NOT NULL`
	var args []any
	if playlistID != "" {
		q += ` AND playlistId = ?`
		args = append(args, playlistID)
	}
	q += ` GROUP BY playlistId, categoryId ORDER BY playlistId, categoryId`
	counts := []models.CategoryCount{}
	if err := s.db.SelectContext(ctx, &counts, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("CategoryChannelCounts: %w", err)
	}
	return counts, nil
}

// --- favorites ---

// ToggleFavorite checks for an existing row and then deletes or inserts it, so two
// calls always restore the original state.
func (s *SQLStore) ToggleFavorite(ctx context.Context, channelID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM Favorite WHERE channelId = ?`), channelID); err != nil {
		return false, fmt.Errorf("ToggleFavorite: %w", err)
	}
	favorite := n == 0
	if favorite {
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO Favorite (channelId, addedAt) VALUES (?, ?)`),
			channelID, s.now().UnixMilli())
	} else {
		_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM Favorite WHERE channelId = ?`), channelID)
	}
	if err != nil {
		return false, fmt.Errorf("ToggleFavorite: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("Commit: %w", err)
	}
	s.changes.notify()
	return favorite, nil
}

func (s *SQLStore) IsFavorite(ctx context.Context, channelID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM Favorite WHERE channelId = ?`), channelID); err != nil {
		return false, fmt.Errorf("IsFavorite: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) Favorites(ctx context.Context) ([]models.Favorite, error) {
	favorites := []models.Favorite{}
	err := s.db.SelectContext(ctx, &favorites,
		`SELECT channelId AS channel_id, addedAt AS added_at FROM Favorite ORDER BY addedAt DESC, channelId`)
	if err != nil {
		return nil, fmt.Errorf("Favorites: %w", err)
	}
	return favorites, nil
}

func (s *SQLStore) PruneFavorites(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()
	n, err := pruneFavorites(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("Commit: %w", err)
	}
	if n > 0 {
		s.changes.notify()
	}
	return n, nil
}

func pruneFavorites(ctx context.Context, tx *sqlx.Tx) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM Favorite WHERE channelId NOT IN (SELECT id FROM Channel)`)
	if err != nil {
		return 0, fmt.Errorf("prune favorites: %w", err)
	}
	return res.RowsAffected()
}

// --- epg ---

func (s *SQLStore) InsertPrograms(ctx context.Context, programs []models.EpgProgram) error {
	for _, p := range programs {
		if p.EndTime <= p.StartTime {
			return fmt.Errorf("InsertPrograms: %s: %w", p.ID, ErrInvalidProgram)
		}
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTxx: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(
		`INSERT INTO EpgProgram (id, channelId, title, description, startTime, endTime)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   channelId = excluded.channelId, title = excluded.title, description = excluded.description,
		   startTime = excluded.startTime, endTime = excluded.endTime`))
	if err != nil {
		return fmt.Errorf("prepare program insert: %w", err)
	}
	defer stmt.Close()
	for _, p := range programs {
		if _, err := stmt.ExecContext(ctx, p.ID, p.ChannelID, p.Title, p.Description, p.StartTime, p.EndTime); err != nil {
			return fmt.Errorf("insert program %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func (s *SQLStore) Programs(ctx context.Context, channelID string, from, to int64) ([]models.EpgProgram, error) {
	programs := []models.EpgProgram{}
	err := s.db.SelectContext(ctx, &programs, s.db.Rebind(
		`SELECT `+programColumns+` FROM EpgProgram
		 WHERE channelId = ? AND startTime < ? AND endTime > ?
		 ORDER BY startTime`), channelID, to, from)
	if err != nil {
		return nil, fmt.Errorf("Programs: %w", err)
	}
	return programs, nil
}

func (s *SQLStore) CurrentProgram(ctx context.Context, channelID string, at int64) (*models.EpgProgram, error) {
	var p models.EpgProgram
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		`SELECT `+programColumns+` FROM EpgProgram
		 WHERE channelId = ? AND startTime <= ? AND endTime > ?
		 ORDER BY startTime DESC LIMIT 1`), channelID, at, at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("CurrentProgram: %w", err)
	}
	return &p, nil
}

func (s *SQLStore) DeleteProgramsBefore(ctx context.Context, ts int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM EpgProgram WHERE endTime <= ?`), ts)
	if err != nil {
		return 0, fmt.Errorf("DeleteProgramsBefore: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
