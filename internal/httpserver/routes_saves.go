// internal/httpserver/routes_saves.go
//
// Named save slots, one namespace per owner (user or anonymous cookie):
//   - POST   /saves         {gameId, name} → store the session's snapshot
//   - GET    /saves                        → list the caller's slots
//   - POST   /saves/load    {name}         → start a new session from a slot
//   - DELETE /saves/{name}                 → remove a slot
//
// Loading never touches the caller's existing sessions; a bad slot just
// fails the request.

package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/virusspread/internal/saves"
)

func (s *Server) mountSaves(r chi.Router) {
	r.Route("/saves", func(r chi.Router) {
		r.Post("/", s.handleSave)
		r.Get("/", s.handleListSaves)
		r.Post("/load", s.handleLoadSave)
		r.Delete("/{name}", s.handleDeleteSave)
	})
}

type saveReq struct {
	GameID string `json:"gameId"`
	Name   string `json:"name"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	name, err := saves.NormalizeName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	snap := sess.Game.Snapshot()
	sess.Unlock()

	ownerID, _ := s.owner(w, r)
	if err := s.saves.Put(r.Context(), ownerID, name, snap); err != nil {
		log.Error().Err(err).Str("owner", ownerID).Msg("put save")
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	writeJSON(w, map[string]any{"ok": true, "name": name})
}

func (s *Server) handleListSaves(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := s.owner(w, r)
	list, err := s.saves.List(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	writeJSON(w, list)
}

type loadReq struct {
	Name string `json:"name"`
}

func (s *Server) handleLoadSave(w http.ResponseWriter, r *http.Request) {
	var req loadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	ownerID, _ := s.owner(w, r)
	snap, err := s.saves.Get(r.Context(), ownerID, req.Name)
	switch {
	case errors.Is(err, saves.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "save")
		return
	case errors.Is(err, saves.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
		return
	case err != nil:
		writeEngineError(w, err)
		return
	}
	s.startFromSnapshot(w, r, snap)
}

func (s *Server) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := s.owner(w, r)
	err := s.saves.Delete(r.Context(), ownerID, chi.URLParam(r, "name"))
	if errors.Is(err, saves.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "save")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}
