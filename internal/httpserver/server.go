// internal/httpserver/server.go
//
// HTTP server wiring for the containment backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs,
//     request logging).
//   - Public endpoints: "/", "/health".
//   - Game endpoints (optional auth): new, view, barrier, spread, next level,
//     export/import of .vsc save files.
//   - Saved-game slots, daily challenge and account routes (see sibling files).
//
// Notes:
//   - Each request locks the session it acts on; a game is single-owner.
//   - RunJanitor evicts sessions idle longer than SESSION_IDLE_MINUTES.
//   - Engine failures map to 4xx JSON bodies {"error": kind, "detail": ...}.

package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/virusspread/internal/config"
	"github.com/robalobadob/virusspread/internal/daily"
	"github.com/robalobadob/virusspread/internal/game"
	"github.com/robalobadob/virusspread/internal/savecodec"
	"github.com/robalobadob/virusspread/internal/saves"
	"github.com/robalobadob/virusspread/internal/store"
)

// maxSaveUpload bounds /game/import bodies; a 10x10 save is 24 bytes.
const maxSaveUpload = 64 << 10

// Server bundles router, session store, DB handle and config.
type Server struct {
	r     *chi.Mux
	cfg   config.Config
	store store.Store
	db    *sql.DB
	saves *saves.Store
	daily *daily.Store
	// dailyIdx resumes today's daily session per owner.
	dailyIdx *dailyRoutes
	// newRand builds the RNG for fresh, non-daily games. Tests replace it.
	newRand func() game.Rand
}

// New constructs a Server, installs middleware, and registers routes.
func New(cfg config.Config, st store.Store, db *sql.DB) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		cfg:     cfg,
		store:   st,
		db:      db,
		saves:   saves.NewStore(db),
		daily:   daily.NewStore(db),
		newRand: game.NewTimeRand,
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(requestLogger)
	s.r.Use(chimw.Recoverer)
	s.r.Use(chimw.Timeout(10 * time.Second))
	s.r.Use(jsonContentType)
	s.r.Use(s.cors)

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"virusspread","endpoints":["/health","POST /game/new","POST /game/barrier","POST /game/spread","POST /game/next","/saves","/daily/*","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Game endpoints — OPTIONAL AUTH (guests can play)
	s.r.Group(func(r chi.Router) {
		r.Use(s.withOptionalAuth())
		r.Post("/game/new", s.handleNewGame)
		r.Get("/game/{id}", s.handleGetGame)
		r.Post("/game/barrier", s.handleBarrier)
		r.Post("/game/spread", s.handleSpread)
		r.Post("/game/next", s.handleNextLevel)
		r.Get("/game/{id}/export", s.handleExport)
		r.Post("/game/import", s.handleImport)

		s.mountSaves(r)
		s.mountDaily(r)
	})

	// Auth + profile/stats (require auth)
	s.mountAuthRoutes()

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", r.URL.Path)
	})

	return s
}

// SweepSessions evicts sessions idle for longer than idle and forgets any
// daily entries that pointed at them. Returns the number evicted.
func (s *Server) SweepSessions(ctx context.Context, idle time.Duration) int {
	gone, err := s.store.Sweep(ctx, idle)
	if err != nil {
		log.Warn().Err(err).Msg("sweep sessions")
		return 0
	}
	if s.dailyIdx != nil {
		s.dailyIdx.forget(gone)
	}
	return len(gone)
}

// RunJanitor sweeps idle sessions every interval until ctx is done.
func (s *Server) RunJanitor(ctx context.Context, every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.SweepSessions(ctx, idle); n > 0 {
				log.Info().Int("evicted", n).Dur("idle", idle).Msg("swept idle sessions")
			}
		}
	}
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors enables credentialed CORS for the configured client origin.
func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.ClientOrigin
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger writes one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("reqId", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

// ------------------------------ helpers ------------------------------------

type errorRes struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func writeError(w http.ResponseWriter, status int, kind, detail string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorRes{Error: kind, Detail: detail})
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps engine and codec failures onto HTTP responses.
func writeEngineError(w http.ResponseWriter, err error) {
	var pe *game.PlacementError
	switch {
	case errors.Is(err, game.ErrBudgetExhausted):
		writeError(w, http.StatusConflict, "budget_exhausted", "")
	case errors.As(err, &pe):
		writeError(w, http.StatusUnprocessableEntity, "invalid_placement", pe.Reason)
	case errors.Is(err, game.ErrBarrierAlreadyUsed):
		writeError(w, http.StatusConflict, "barrier_already_used", "")
	case errors.Is(err, game.ErrGameOver):
		writeError(w, http.StatusConflict, "game_over", "")
	case errors.Is(err, game.ErrMaxLevel):
		writeError(w, http.StatusConflict, "max_level", "")
	case errors.Is(err, game.ErrNotWon):
		writeError(w, http.StatusConflict, "not_won", "")
	case errors.Is(err, game.ErrOutOfRange), errors.Is(err, savecodec.ErrOutOfRange):
		writeError(w, http.StatusBadRequest, "out_of_range", err.Error())
	case errors.Is(err, savecodec.ErrMalformed):
		writeError(w, http.StatusBadRequest, "malformed_save", err.Error())
	default:
		log.Error().Err(err).Msg("unexpected engine error")
		writeError(w, http.StatusInternalServerError, "internal", "")
	}
}

// gameView is the JSON shape of a session sent to clients.
type gameView struct {
	GameID      string      `json:"gameId"`
	Size        int         `json:"size"`
	Level       int         `json:"level"`
	MaxLevel    int         `json:"maxLevel"`
	Turn        int         `json:"turn"`
	Budget      int         `json:"budget"`
	BarrierUsed bool        `json:"barrierUsed"`
	FreeCells   int         `json:"freeCells"`
	Status      game.Status `json:"status"`
	Finished    bool        `json:"finished"` // won on the last level
	Daily       string      `json:"daily,omitempty"`
	Board       [][]int     `json:"board"` // 0 free, 1 infected, 2 barrier
}

// view renders a session; callers hold the session lock.
func view(sess *store.Session) gameView {
	g := sess.Game
	board := g.Board()
	cells := make([][]int, len(board))
	for r, row := range board {
		cells[r] = make([]int, len(row))
		for c, v := range row {
			cells[r][c] = int(v)
		}
	}
	st := g.Status()
	return gameView{
		GameID:      sess.ID,
		Size:        g.Size(),
		Level:       g.Level(),
		MaxLevel:    g.MaxLevel(),
		Turn:        g.Turn(),
		Budget:      g.Budget(),
		BarrierUsed: g.BarrierUsed(),
		FreeCells:   g.FreeCells(),
		Status:      st,
		Finished:    st == game.StatusWon && g.Level() == g.MaxLevel(),
		Daily:       sess.DailyDate,
		Board:       cells,
	}
}

// session loads and locks a session, writing a 404 when it is missing.
// The caller must Unlock on success.
func (s *Server) session(w http.ResponseWriter, r *http.Request, id string) (*store.Session, bool) {
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "game")
		return nil, false
	}
	sess.Lock()
	return sess, true
}

// startSession stores g as a new session owned by the caller and records it.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, g *game.Game, dailyDate string) (*store.Session, error) {
	ownerID, userID := s.owner(w, r)
	sess := store.NewSession(g, ownerID)
	sess.UserID = userID
	sess.DailyDate = dailyDate
	if err := s.store.Save(r.Context(), sess); err != nil {
		return nil, err
	}
	s.recordStart(r, sess)
	return sess, nil
}

// ------------------------------ GAME ---------------------------------------

type newGameReq struct {
	Size  int `json:"size"`
	Level int `json:"level"`
}

// handleNewGame creates a fresh session. Size defaults to DEFAULT_SIZE.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	var req newGameReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad_json", "")
			return
		}
	}
	if req.Size == 0 {
		req.Size = s.cfg.DefaultSize
	}
	g, err := game.New(game.Options{
		Size:     req.Size,
		Level:    req.Level,
		MaxLevel: s.cfg.MaxLevel,
		Rand:     s.newRand(),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	sess, err := s.startSession(w, r, g, "")
	if err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	writeJSON(w, view(sess))
}

func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	defer sess.Unlock()
	writeJSON(w, view(sess))
}

type barrierReq struct {
	GameID string `json:"gameId"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// handleBarrier places the player's barrier for this turn.
func (s *Server) handleBarrier(w http.ResponseWriter, r *http.Request) {
	var req barrierReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	defer sess.Unlock()

	if err := sess.Game.PlaceTurnBarrier(req.Row, req.Col); err != nil {
		writeEngineError(w, err)
		return
	}
	s.recordIfFinished(r, sess)
	writeJSON(w, view(sess))
}

type gameIDReq struct {
	GameID string `json:"gameId"`
}

type spreadRes struct {
	NewInfections []game.Coord `json:"newInfections"`
	Game          gameView     `json:"game"`
}

// handleSpread ends the turn: one diffusion tick.
func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	var req gameIDReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	defer sess.Unlock()

	if sess.Game.Status() != game.StatusPlaying {
		writeEngineError(w, game.ErrGameOver)
		return
	}
	fresh := sess.Game.SpreadVirus()
	if fresh == nil {
		fresh = []game.Coord{}
	}
	s.recordIfFinished(r, sess)
	writeJSON(w, spreadRes{NewInfections: fresh, Game: view(sess)})
}

// handleNextLevel advances a won session.
func (s *Server) handleNextLevel(w http.ResponseWriter, r *http.Request) {
	var req gameIDReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "")
		return
	}
	sess, ok := s.session(w, r, req.GameID)
	if !ok {
		return
	}
	defer sess.Unlock()

	if err := sess.Game.AdvanceLevel(); err != nil {
		writeEngineError(w, err)
		return
	}
	sess.Recorded = false
	s.recordLevel(r, sess)
	writeJSON(w, view(sess))
}

// handleExport streams the session as a .vsc file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	data, err := savecodec.Marshal(sess.Game.Snapshot())
	sess.Unlock()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, sess.ID, savecodec.Extension))
	_, _ = w.Write(data)
}

// handleImport starts a new session from an uploaded .vsc body. The caller's
// existing sessions are never touched, even when the upload is bad.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSaveUpload))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "too_large", "")
		return
	}
	snap, err := savecodec.Unmarshal(body)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	s.startFromSnapshot(w, r, snap)
}

// startFromSnapshot restores snap into a new session and writes its view.
func (s *Server) startFromSnapshot(w http.ResponseWriter, r *http.Request, snap game.Snapshot) {
	g, err := game.Restore(snap, game.Options{MaxLevel: s.cfg.MaxLevel, Rand: s.newRand()})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	sess, err := s.startSession(w, r, g, "")
	if err != nil {
		log.Error().Err(err).Msg("save session")
		writeError(w, http.StatusInternalServerError, "save_failed", "")
		return
	}
	writeJSON(w, view(sess))
}
