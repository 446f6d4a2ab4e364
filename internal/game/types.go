// internal/game/types.go
//
// Core type definitions for the containment engine.
// Defines:
//   - Cell: ternary board state (free/infected/barrier).
//   - Coord: a row/column position on the board.
//   - Status: coarse per-level outcome (playing/won/lost).
//   - Snapshot: read-only copy of a game, also the unit of persistence.
//   - Options: construction parameters for New and Restore.

package game

import "fmt"

// Cell is the state of one board square. The numeric values are part of the
// save format (base-3 digits) and must not change.
type Cell uint8

const (
	Free     Cell = 0
	Infected Cell = 1
	Barrier  Cell = 2
)

// Valid reports whether c is one of the three known states.
func (c Cell) Valid() bool { return c <= Barrier }

func (c Cell) String() string {
	switch c {
	case Free:
		return "free"
	case Infected:
		return "infected"
	case Barrier:
		return "barrier"
	}
	return fmt.Sprintf("cell(%d)", uint8(c))
}

// Coord addresses a cell. Row and Col are both in [0, size).
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// less orders coords row-major; used to give shuffles a stable starting order.
func (c Coord) less(o Coord) bool {
	if c.Row != o.Row {
		return c.Row < o.Row
	}
	return c.Col < o.Col
}

// directions are the four orthogonal neighbours: right, down, left, up.
var directions = [4]Coord{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}

// Status is the outcome of the current level.
type Status string

const (
	StatusPlaying Status = "playing"
	StatusWon     Status = "won"
	StatusLost    Status = "lost"
)

// Board size and level limits.
const (
	MinSize         = 3
	MaxSize         = 10
	DefaultSize     = 10
	DefaultMaxLevel = 5
	// MaxLevelLimit is the largest level the one-byte save field can hold.
	MaxLevelLimit = 255
)

// Snapshot is an immutable-by-convention copy of a game's state. Board is
// always a fresh copy; mutating it never affects the game it came from.
type Snapshot struct {
	Size   int
	Level  int
	Budget int
	Turn   int
	Board  [][]Cell
}

// Options configures New and Restore. Zero values pick defaults:
// Size=DefaultSize, Level=1, MaxLevel=DefaultMaxLevel, Rand=time-seeded.
type Options struct {
	Size     int
	Level    int
	MaxLevel int
	Rand     Rand
}

func (o Options) withDefaults() Options {
	if o.Size == 0 {
		o.Size = DefaultSize
	}
	if o.Level == 0 {
		o.Level = 1
	}
	if o.MaxLevel == 0 {
		o.MaxLevel = DefaultMaxLevel
	}
	if o.Rand == nil {
		o.Rand = NewTimeRand()
	}
	return o
}
