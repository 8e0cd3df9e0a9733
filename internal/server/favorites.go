package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/streamshelf/internal/models"
)

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	favs, err := s.store.Favorites(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	if favs == nil {
		favs = []models.Favorite{}
	}
	s.writeJSON(w, http.StatusOK, favs)
}

func (s *Server) handleIsFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channelID")
	fav, err := s.store.IsFavorite(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"channel_id": id, "favorite": fav})
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "channelID")
	fav, err := s.store.ToggleFavorite(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"channel_id": id, "favorite": fav})
}

func (s *Server) handlePruneFavorites(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.PruneFavorites(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}
