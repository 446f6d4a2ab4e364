// internal/game/engine.go
//
// Core engine for a single containment game.
// Responsibilities:
//   - Create games with range-checked size/level and seed the infection.
//   - Validate and apply barrier placements (budget, bounds, island rule).
//   - Spread the infection one diffusion tick at a time.
//   - Track state transitions: playing → won/lost → next level.
//
// Notes:
//   - Randomness comes from the injected Rand (see rand.go).
//   - The infected set is maintained incrementally; it always mirrors the
//     Infected cells on the board.
//   - Callers only ever receive copies of the board (Board, Snapshot).
package game

import (
	"math"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// Game holds the state of one level of play.
type Game struct {
	size        int
	level       int
	maxLevel    int
	board       [][]Cell
	infected    mapset.Set[Coord]
	budget      int
	turn        int
	barrierUsed bool
	rng         Rand
}

// New range-checks opts, allocates the board and seeds the first level.
func New(opts Options) (*Game, error) {
	opts = opts.withDefaults()
	if err := checkConfig(opts.Size, opts.Level, opts.MaxLevel); err != nil {
		return nil, err
	}
	g := &Game{
		size:     opts.Size,
		level:    opts.Level,
		maxLevel: opts.MaxLevel,
		rng:      opts.Rand,
	}
	g.InitializeLevel()
	return g, nil
}

// Restore rebuilds a game from a snapshot (e.g. a decoded save file). The
// infected set is derived by scanning the board. opts.Size and opts.Level are
// ignored; the snapshot's values win.
func Restore(s Snapshot, opts Options) (*Game, error) {
	opts.Size, opts.Level = s.Size, s.Level
	opts = opts.withDefaults()
	if err := checkConfig(s.Size, s.Level, opts.MaxLevel); err != nil {
		return nil, err
	}
	if s.Budget < 0 || s.Turn < 0 {
		return nil, rangeErr("budget %d, turn %d", s.Budget, s.Turn)
	}
	if len(s.Board) != s.Size {
		return nil, rangeErr("board has %d rows, want %d", len(s.Board), s.Size)
	}
	g := &Game{
		size:     s.Size,
		level:    s.Level,
		maxLevel: opts.MaxLevel,
		board:    make([][]Cell, s.Size),
		infected: mapset.New[Coord](),
		budget:   s.Budget,
		turn:     s.Turn,
		rng:      opts.Rand,
	}
	for r, row := range s.Board {
		if len(row) != s.Size {
			return nil, rangeErr("row %d has %d cells, want %d", r, len(row), s.Size)
		}
		g.board[r] = make([]Cell, s.Size)
		for c, v := range row {
			if !v.Valid() {
				return nil, rangeErr("cell (%d,%d) = %d", r, c, v)
			}
			g.board[r][c] = v
			if v == Infected {
				g.infected.Put(Coord{r, c})
			}
		}
	}
	return g, nil
}

func checkConfig(size, level, maxLevel int) error {
	if size < MinSize || size > MaxSize {
		return rangeErr("size %d not in [%d,%d]", size, MinSize, MaxSize)
	}
	if maxLevel < 1 || maxLevel > MaxLevelLimit {
		return rangeErr("max level %d not in [1,%d]", maxLevel, MaxLevelLimit)
	}
	if level < 1 || level > maxLevel {
		return rangeErr("level %d not in [1,%d]", level, maxLevel)
	}
	if level > size*size {
		return rangeErr("level %d needs more cells than a %dx%d board has", level, size, size)
	}
	return nil
}

// MaxBarriers is the per-level barrier budget: linear in board size, 30% less
// for every level above the first, never below 40% of base or below 3.
func MaxBarriers(size, level int) int {
	mult := math.Max(0.4, 1-float64(level-1)*0.3)
	n := int(math.Floor(float64(size) * 2 * mult))
	if n < 3 {
		return 3
	}
	return n
}

// InitializeLevel clears the board, resets budget and turn state, and seeds
// `level` infections at distinct random cells.
func (g *Game) InitializeLevel() {
	g.board = make([][]Cell, g.size)
	for r := range g.board {
		g.board[r] = make([]Cell, g.size)
	}
	g.infected = mapset.New[Coord]()
	g.budget = MaxBarriers(g.size, g.level)
	g.turn = 0
	g.barrierUsed = false

	for _, i := range g.rng.Choose(g.level, g.size*g.size) {
		at := Coord{i / g.size, i % g.size}
		g.board[at.Row][at.Col] = Infected
		g.infected.Put(at)
	}
}

// PlaceBarrier validates and commits a single barrier.
//
// Checks, in order: budget > 0, in bounds, cell free, no isolated free
// region afterwards. On any failure the game is unchanged and a
// *PlacementError is returned.
func (g *Game) PlaceBarrier(row, col int) error {
	at := Coord{row, col}
	if g.budget <= 0 {
		return &PlacementError{Kind: ErrBudgetExhausted, At: at, Reason: ReasonNoBudget}
	}
	if !g.inBounds(at) {
		return &PlacementError{Kind: ErrInvalidPlacement, At: at, Reason: ReasonOutOfBounds}
	}
	if g.board[row][col] != Free {
		return &PlacementError{Kind: ErrInvalidPlacement, At: at, Reason: ReasonOccupied}
	}

	g.board[row][col] = Barrier
	if !g.Reachable() {
		g.board[row][col] = Free
		return &PlacementError{Kind: ErrInvalidPlacement, At: at, Reason: ReasonIsolates}
	}
	g.budget--
	g.barrierUsed = true
	return nil
}

// PlaceTurnBarrier is PlaceBarrier under the turn policy: only while the level
// is in progress and at most once per turn cycle.
func (g *Game) PlaceTurnBarrier(row, col int) error {
	if g.Status() != StatusPlaying {
		return ErrGameOver
	}
	if g.barrierUsed {
		return ErrBarrierAlreadyUsed
	}
	return g.PlaceBarrier(row, col)
}

// SpreadVirus runs one diffusion tick. Every source that was infected before
// the call infects at most one free neighbour; sources are visited in shuffled
// order and each tries its neighbours in shuffled order. Cells infected during
// the tick do not spread until the next one. The turn advances and the
// per-turn barrier allowance resets. Returns the newly infected cells.
func (g *Game) SpreadVirus() []Coord {
	sources := g.Infected()
	g.rng.Shuffle(len(sources), func(i, j int) { sources[i], sources[j] = sources[j], sources[i] })

	var fresh []Coord
	for _, src := range sources {
		dirs := directions
		g.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })
		for _, d := range dirs {
			n := Coord{src.Row + d.Row, src.Col + d.Col}
			if g.inBounds(n) && g.board[n.Row][n.Col] == Free {
				g.board[n.Row][n.Col] = Infected
				fresh = append(fresh, n)
				break
			}
		}
	}
	for _, c := range fresh {
		g.infected.Put(c)
	}
	g.turn++
	g.barrierUsed = false
	return fresh
}

// CheckWin reports whether the infection is fully contained: no infected cell
// has a free neighbour.
func (g *Game) CheckWin() bool {
	for _, c := range g.sources() {
		if g.hasFreeNeighbour(c) {
			return false
		}
	}
	return true
}

// CheckLoss reports whether the budget is spent while the infection can still grow.
func (g *Game) CheckLoss() bool {
	return g.budget == 0 && !g.CheckWin()
}

// Status evaluates win first; loss is defined relative to it.
func (g *Game) Status() Status {
	if g.CheckWin() {
		return StatusWon
	}
	if g.CheckLoss() {
		return StatusLost
	}
	return StatusPlaying
}

// AdvanceLevel moves a won game to the next level and reseeds it. It fails
// without mutating anything at the max level or before the level is won.
func (g *Game) AdvanceLevel() error {
	if g.level >= g.maxLevel {
		return ErrMaxLevel
	}
	if g.Status() != StatusWon {
		return ErrNotWon
	}
	if err := checkConfig(g.size, g.level+1, g.maxLevel); err != nil {
		return err
	}
	g.level++
	g.InitializeLevel()
	return nil
}

// FreeCells counts free cells on the board.
func (g *Game) FreeCells() int {
	n := 0
	for _, row := range g.board {
		for _, v := range row {
			if v == Free {
				n++
			}
		}
	}
	return n
}

// Infected returns the infected cells in row-major order.
func (g *Game) Infected() []Coord {
	out := g.sources()
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// sources lists the infected set in map order.
func (g *Game) sources() []Coord {
	out := make([]Coord, 0, g.infected.Size())
	g.infected.Each(func(c Coord) { out = append(out, c) })
	return out
}

// Board returns a copy of the grid.
func (g *Game) Board() [][]Cell {
	out := make([][]Cell, g.size)
	for r, row := range g.board {
		out[r] = append([]Cell(nil), row...)
	}
	return out
}

// Snapshot returns a detached copy of the persistent state.
func (g *Game) Snapshot() Snapshot {
	return Snapshot{
		Size:   g.size,
		Level:  g.level,
		Budget: g.budget,
		Turn:   g.turn,
		Board:  g.Board(),
	}
}

func (g *Game) Size() int         { return g.size }
func (g *Game) Level() int        { return g.level }
func (g *Game) MaxLevel() int     { return g.maxLevel }
func (g *Game) Budget() int       { return g.budget }
func (g *Game) Turn() int         { return g.turn }
func (g *Game) BarrierUsed() bool { return g.barrierUsed }

func (g *Game) inBounds(c Coord) bool {
	return c.Row >= 0 && c.Row < g.size && c.Col >= 0 && c.Col < g.size
}

func (g *Game) hasFreeNeighbour(c Coord) bool {
	for _, d := range directions {
		n := Coord{c.Row + d.Row, c.Col + d.Col}
		if g.inBounds(n) && g.board[n.Row][n.Col] == Free {
			return true
		}
	}
	return false
}
