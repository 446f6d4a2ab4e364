// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode:
//   - POST /daily/new         → start (or resume) today's board
//   - GET  /daily/leaderboard → top 20 for today (or ?date=YYYY-MM-DD)
//
// Everyone gets the same DAILY_SIZE board, seeded from HMAC(salt, date), and
// the same RNG drives the spread, so identical play gives identical results.
// Play happens through the regular /game endpoints; a win files the result.
// Each owner can finish the daily once (enforced by DB + in-memory session map).

package httpserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/virusspread/internal/daily"
	"github.com/robalobadob/virusspread/internal/game"
)

// dailyRoutes keeps the owner|date → session ID index for resuming.
type dailyRoutes struct {
	srv      *Server
	sessions map[string]string
	mu       sync.Mutex
}

func (s *Server) mountDaily(r chi.Router) {
	d := &dailyRoutes{srv: s, sessions: make(map[string]string)}
	s.dailyIdx = d
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", d.handleNew)
		r.Get("/leaderboard", d.handleLeaderboard)
	})
}

// forget drops index entries for evicted sessions.
func (d *dailyRoutes) forget(ids []string) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		gone[id] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, id := range d.sessions {
		if gone[id] {
			delete(d.sessions, key)
		}
	}
}

type dailyNewRes struct {
	Date   string    `json:"date"`
	Played bool      `json:"played"`
	Game   *gameView `json:"game,omitempty"`
}

// handleNew returns today's session for the caller, creating it on first call.
// If the caller already has a result for today → Played=true and no game.
func (d *dailyRoutes) handleNew(w http.ResponseWriter, r *http.Request) {
	s := d.srv
	ownerID, _ := s.owner(w, r)
	now := time.Now().UTC()
	date := daily.DateKey(now)

	if played, err := s.daily.AlreadyPlayed(r.Context(), ownerID, date); err == nil && played {
		writeJSON(w, dailyNewRes{Date: date, Played: true})
		return
	}

	key := ownerID + "|" + date
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.sessions[key]; ok {
		if sess, err := s.store.Get(r.Context(), id); err == nil {
			sess.Lock()
			v := view(sess)
			sess.Unlock()
			writeJSON(w, dailyNewRes{Date: date, Game: &v})
			return
		}
	}

	g, err := game.New(game.Options{
		Size:     s.cfg.DailySize,
		Level:    1,
		MaxLevel: 1,
		Rand:     game.NewRand(daily.Seed(now, s.cfg.DailySalt)),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	sess, err := s.startSession(w, r, g, date)
	if err != nil {
		log.Error().Err(err).Msg("save daily session")
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	d.sessions[key] = sess.ID
	v := view(sess)
	writeJSON(w, dailyNewRes{Date: date, Game: &v})
}

type lbRes struct {
	Date string        `json:"date"`
	Top  []daily.LBRow `json:"top"`
}

// handleLeaderboard returns the leaderboard for the given date (default today).
func (d *dailyRoutes) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = daily.DateKey(time.Now())
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeError(w, http.StatusBadRequest, "bad_date", date)
		return
	}
	rows, err := d.srv.daily.Leaderboard(r.Context(), date, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error", "")
		return
	}
	writeJSON(w, lbRes{Date: date, Top: rows})
}
