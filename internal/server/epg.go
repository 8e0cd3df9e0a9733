package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voyagen/streamshelf/internal/models"
)

type importEPGRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleImportEPG(w http.ResponseWriter, r *http.Request) {
	if s.epg == nil {
		s.writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("epg import is not configured"))
		return
	}
	var req importEPGRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("url is required"))
		return
	}
	n, err := s.epg.FetchAndImport(r.Context(), req.URL)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"programs": n})
}

// handlePrograms lists programs overlapping [from, to), millisecond epochs.
// The window defaults to the next 24 hours.
func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UnixMilli()
	from, err := queryInt(r, "from", now)
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	to, err := queryInt(r, "to", from+int64(24*time.Hour/time.Millisecond))
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	if to <= from {
		s.writeErr(w, http.StatusBadRequest, fmt.Errorf("to must be after from"))
		return
	}
	progs, err := s.store.Programs(r.Context(), chi.URLParam(r, "channelID"), from, to)
	if err != nil {
		s.fail(w, err)
		return
	}
	if progs == nil {
		progs = []models.EpgProgram{}
	}
	s.writeJSON(w, http.StatusOK, progs)
}

func (s *Server) handleCurrentProgram(w http.ResponseWriter, r *http.Request) {
	at, err := queryInt(r, "at", time.Now().UnixMilli())
	if err != nil {
		s.writeErr(w, http.StatusBadRequest, err)
		return
	}
	p, err := s.store.CurrentProgram(r.Context(), chi.URLParam(r, "channelID"), at)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, v)
	}
	return n, nil
}
