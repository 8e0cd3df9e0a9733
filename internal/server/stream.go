package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleStreamPlaylists pushes the playlist summaries as server-sent events: once
// on connect and again after every committed change.
func (s *Server) handleStreamPlaylists(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse flush unsupported", zap.Error(err))
		return
	}

	for snapshot := range s.store.WatchPlaylists(r.Context()) {
		data, err := json.Marshal(summarizeAll(snapshot))
		if err != nil {
			s.logger.Warn("sse marshal", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(w, "event: playlists\ndata: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
