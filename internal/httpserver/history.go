// internal/httpserver/history.go
//
// Game history and user stats, persisted best-effort: a failed write is
// logged and never fails the request that triggered it.
//
//   - recordStart:      INSERT a games row when a session starts.
//   - recordIfFinished: on the first won/lost observation of a level, close the
//     row, bump user stats, and file daily results.
//   - recordLevel:      reopen the row for the next level after AdvanceLevel.

package httpserver

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/virusspread/internal/daily"
	"github.com/robalobadob/virusspread/internal/game"
	"github.com/robalobadob/virusspread/internal/store"
)

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Server) recordStart(r *http.Request, sess *store.Session) {
	var anon string
	if sess.UserID == "" {
		anon = sess.OwnerID
	}
	g := sess.Game
	_, err := s.db.ExecContext(r.Context(), `
		INSERT INTO games (id, user_id, anonymous_id, size, level, status, turns, started_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		sess.ID, nullable(sess.UserID), nullable(anon), g.Size(), g.Level(),
		string(g.Status()), g.Turn(), sess.StartedAt.Format(time.RFC3339))
	if err != nil {
		log.Warn().Err(err).Str("gameId", sess.ID).Msg("insert game row")
	}
}

func (s *Server) recordLevel(r *http.Request, sess *store.Session) {
	g := sess.Game
	_, err := s.db.ExecContext(r.Context(),
		`UPDATE games SET level=?, status=?, turns=?, finished_at=NULL WHERE id=?`,
		g.Level(), string(g.Status()), g.Turn(), sess.ID)
	if err != nil {
		log.Warn().Err(err).Str("gameId", sess.ID).Msg("update game level")
	}
}

// recordIfFinished runs once per finished level; callers hold the session lock.
func (s *Server) recordIfFinished(r *http.Request, sess *store.Session) {
	g := sess.Game
	status := g.Status()
	if status == game.StatusPlaying || sess.Recorded {
		return
	}
	sess.Recorded = true
	won := status == game.StatusWon
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Warn().Err(err).Msg("begin history tx")
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE games SET level=?, status=?, turns=?, finished_at=? WHERE id=?`,
		g.Level(), string(status), g.Turn(), now.Format(time.RFC3339), sess.ID); err != nil {
		log.Warn().Err(err).Str("gameId", sess.ID).Msg("finish game")
	}
	if sess.UserID != "" {
		if err := bumpStats(tx, sess.UserID, won, g.Level()); err != nil {
			log.Warn().Err(err).Str("user", sess.UserID).Msg("bump stats")
		}
	}
	if err := tx.Commit(); err != nil {
		log.Warn().Err(err).Msg("commit history")
	}

	if sess.DailyDate != "" && won {
		res := daily.Result{
			UserID:    sess.OwnerID,
			Date:      sess.DailyDate,
			Turns:     g.Turn(),
			Barriers:  game.MaxBarriers(g.Size(), g.Level()) - g.Budget(),
			Infected:  len(g.Infected()),
			ElapsedMs: int(now.Sub(sess.StartedAt).Milliseconds()),
		}
		if err := s.daily.InsertResult(r.Context(), res); err != nil {
			log.Warn().Err(err).Str("date", sess.DailyDate).Msg("insert daily result")
		}
	}
	log.Info().Str("gameId", sess.ID).Int("level", g.Level()).Str("status", string(status)).Msg("level finished")
}

// bumpStats increments games played; updates wins, streak and best level (within tx).
func bumpStats(tx *sql.Tx, userID string, won bool, level int) error {
	var gp, wins, streak, best int
	row := tx.QueryRow(`SELECT games_played, wins, streak, best_level FROM users WHERE id=?`, userID)
	if err := row.Scan(&gp, &wins, &streak, &best); err != nil {
		return err
	}
	gp++
	if won {
		wins++
		streak++
		if level > best {
			best = level
		}
	} else {
		streak = 0
	}
	_, err := tx.Exec(`UPDATE users SET games_played=?, wins=?, streak=?, best_level=? WHERE id=?`,
		gp, wins, streak, best, userID)
	return err
}
