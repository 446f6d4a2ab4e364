package daily

import (
	"context"
	"database/sql"
)

// Result is one player's finished daily challenge.
type Result struct {
	UserID    string `json:"userId"`
	Date      string `json:"date"`
	Turns     int    `json:"turns"`
	Barriers  int    `json:"barriers"`
	Infected  int    `json:"infected"`
	ElapsedMs int    `json:"elapsedMs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) AlreadyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM daily_results WHERE user_id=? AND date=?",
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertResult records a result; a second result for the same user and date is ignored.
func (s *Store) InsertResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_results(user_id, date, turns, barriers, infected, elapsed_ms)
		VALUES(?,?,?,?,?,?)`, r.UserID, r.Date, r.Turns, r.Barriers, r.Infected, r.ElapsedMs,
	)
	return err
}

// Claim moves an anonymous owner's results to a user account. A day the user
// already has a result for keeps the user's row.
func (s *Store) Claim(ctx context.Context, fromOwner, toOwner string) error {
	if fromOwner == "" || toOwner == "" || fromOwner == toOwner {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE OR IGNORE daily_results SET user_id=? WHERE user_id=?`, toOwner, fromOwner)
	return err
}

// LBRow is one public leaderboard entry. Owner IDs stay private: guests
// appear as "guest", accounts by username.
type LBRow struct {
	Player    string `json:"player"`
	Infected  int    `json:"infected"`
	Turns     int    `json:"turns"`
	Barriers  int    `json:"barriers"`
	ElapsedMs int    `json:"elapsedMs"`
}

// Leaderboard ranks a day's results: smallest outbreak first, then fewest
// turns, fewest barriers, earliest finish.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(u.username, 'guest'), d.infected, d.turns, d.barriers, d.elapsed_ms
		FROM daily_results d
		LEFT JOIN users u ON u.id = d.user_id
		WHERE d.date=?
		ORDER BY d.infected ASC, d.turns ASC, d.barriers ASC, d.created_at ASC
		LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LBRow{}
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.Player, &r.Infected, &r.Turns, &r.Barriers, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
