package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voyagen/streamshelf/internal/fetcher"
	"github.com/voyagen/streamshelf/internal/models"
	"github.com/voyagen/streamshelf/internal/xtream"
)

// playlistSummary is a playlist without its channel and category lists.
type playlistSummary struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	URL           *string             `json:"url,omitempty"`
	Type          models.PlaylistType `json:"type"`
	ChannelCount  int                 `json:"channel_count"`
	CategoryCount int                 `json:"category_count"`
	CreatedAt     int64               `json:"created_at"`
	UpdatedAt     int64               `json:"updated_at"`
}

func summarize(p models.Playlist) playlistSummary {
	return playlistSummary{
		ID:            p.ID,
		Name:          p.Name,
		URL:           p.URL,
		Type:          p.Type,
		ChannelCount:  len(p.Channels),
		CategoryCount: len(p.Categories),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func summarizeAll(ps []models.Playlist) []playlistSummary {
	out := make([]playlistSummary, 0, len(ps))
	for _, p := range ps {
		out = append(out, summarize(p))
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.Playlists(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summarizeAll(ps))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.PlaylistByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if p.Channels == nil {
		p.Channels = []models.Channel{}
	}
	s.writeJSON(w, http.StatusOK, p)
}

type ingestM3URequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

func (s *Server) handleIngestM3U(w http.ResponseWriter, r *http.Request) {
	var req ingestM3URequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ingest.IngestM3UURL(r.Context(), req.URL, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, summarize(*p))
}

type ingestXtreamRequest struct {
	ServerURL  string `json:"server_url"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	IncludeVOD bool   `json:"include_vod"`
}

func (s *Server) handleIngestXtream(w http.ResponseWriter, r *http.Request) {
	var req ingestXtreamRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("username and password are required"))
		return
	}
	acct := xtream.Account{
		ServerURL:  req.ServerURL,
		Username:   req.Username,
		Password:   req.Password,
		IncludeVOD: req.IncludeVOD,
	}
	p, err := s.ingest.IngestXtream(r.Context(), acct, req.Name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, summarize(*p))
}

type ingestTextRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (s *Server) handleIngestText(w http.ResponseWriter, r *http.Request) {
	var req ingestTextRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.ingest.IngestM3UText(r.Context(), req.Name, req.Text)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, summarize(*p))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenamePlaylist(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !s.decode(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.ingest.RenamePlaylist(r.Context(), id, req.Name); err != nil {
		s.fail(w, err)
		return
	}
	p, err := s.store.PlaylistByID(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summarize(*p))
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePlaylist(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	writeNoContent(w)
}

// handleRefreshPlaylist queues a refresh when a queue is configured and runs it
// inline otherwise.
func (s *Server) handleRefreshPlaylist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.store.PlaylistByID(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if s.queue != nil && p.Type == models.PlaylistTypeM3UURL {
		if err := s.queue.Enqueue(r.Context(), id, "api"); err != nil {
			s.fail(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, map[string]any{"playlist_id": id, "queued": true})
		return
	}
	refreshed, err := s.ingest.Refresh(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summarize(*refreshed))
}

func (s *Server) handleExportPlaylist(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.PlaylistByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", p.Name+".m3u"))
	if err := fetcher.WriteM3U(w, p.Channels); err != nil {
		s.logger.Warn("export write failed", zap.String("playlist_id", p.ID), zap.Error(err))
	}
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var (
		channels []models.Channel
		err      error
	)
	if catID := r.URL.Query().Get("category_id"); catID != "" {
		channels, err = s.store.ChannelsByCategory(r.Context(), id, catID)
	} else {
		channels, err = s.store.Channels(r.Context(), id)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	s.writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.store.Categories(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	s.writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCategoryCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CategoryChannelCounts(r.Context(), r.URL.Query().Get("playlist_id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if counts == nil {
		counts = []models.CategoryCount{}
	}
	s.writeJSON(w, http.StatusOK, counts)
}
