// internal/saves/store.go
//
// Named save slots backed by SQLite.
// Each owner (user ID or anonymous cookie ID) has its own namespace of slots;
// a slot holds one encoded .vsc snapshot. Writing an existing name replaces it.

package saves

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robalobadob/virusspread/internal/game"
	"github.com/robalobadob/virusspread/internal/savecodec"
)

var (
	ErrNotFound    = errors.New("save not found")
	ErrInvalidName = errors.New("save name must be 1-40 characters")
)

const maxNameLen = 40

// Meta describes a slot without its payload.
type Meta struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// NormalizeName trims the name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// Put encodes s and stores it under (ownerID, name).
func (s *Store) Put(ctx context.Context, ownerID, name string, snap game.Snapshot) error {
	name, err := NormalizeName(name)
	if err != nil {
		return err
	}
	data, err := savecodec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode save: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saves (owner_id, name, size, level, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, name) DO UPDATE SET
			size=excluded.size, level=excluded.level,
			data=excluded.data, updated_at=excluded.updated_at`,
		ownerID, name, snap.Size, snap.Level, data, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Get loads and decodes a slot.
func (s *Store) Get(ctx context.Context, ownerID, name string) (game.Snapshot, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return game.Snapshot{}, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM saves WHERE owner_id=? AND name=?`, ownerID, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return game.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return game.Snapshot{}, err
	}
	return savecodec.Unmarshal(data)
}

// List returns an owner's slots, most recently written first.
func (s *Store) List(ctx context.Context, ownerID string) ([]Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, size, level, updated_at
		FROM saves WHERE owner_id=?
		ORDER BY updated_at DESC, name ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Meta{}
	for rows.Next() {
		var m Meta
		var updated string
		if err := rows.Scan(&m.Name, &m.Size, &m.Level, &updated); err != nil {
			return nil, err
		}
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Delete removes a slot. Missing slots report ErrNotFound.
func (s *Store) Delete(ctx context.Context, ownerID, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE owner_id=? AND name=?`, ownerID, strings.TrimSpace(name))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim moves an anonymous owner's slots to a user account. Slots whose name
// the user already has are left behind.
func (s *Store) Claim(ctx context.Context, fromOwner, toOwner string) error {
	if fromOwner == "" || toOwner == "" || fromOwner == toOwner {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE OR IGNORE saves SET owner_id=? WHERE owner_id=?`, toOwner, fromOwner)
	return err
}
