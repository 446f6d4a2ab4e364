// internal/game/errors.go
//
// Error kinds reported by the engine. Every failing operation leaves the game
// untouched, so callers can branch on the kind with errors.Is and carry on.

package game

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPlacement: target out of bounds, not free, or it would cut a
	// free region off from every infection.
	ErrInvalidPlacement = errors.New("invalid placement")
	// ErrBudgetExhausted: no barriers left this level.
	ErrBudgetExhausted = errors.New("barrier budget exhausted")
	// ErrBarrierAlreadyUsed: a barrier was already placed this turn cycle.
	ErrBarrierAlreadyUsed = errors.New("barrier already placed this turn")
	// ErrGameOver: the level is already won or lost.
	ErrGameOver = errors.New("level is over")
	// ErrOutOfRange: size, level or snapshot fields outside supported bounds.
	ErrOutOfRange = errors.New("configuration out of range")
	// ErrMaxLevel: advancing past the configured maximum level.
	ErrMaxLevel = errors.New("already at max level")
	// ErrNotWon: advancing before the current level is won.
	ErrNotWon = errors.New("level not won")
)

// PlacementError describes a rejected barrier placement. It unwraps to its
// Kind, so errors.Is(err, ErrInvalidPlacement) works.
type PlacementError struct {
	Kind   error
	At     Coord
	Reason string
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("place barrier at (%d,%d): %v: %s", e.At.Row, e.At.Col, e.Kind, e.Reason)
}

func (e *PlacementError) Unwrap() error { return e.Kind }

// Placement rejection reasons.
const (
	ReasonOutOfBounds = "out of bounds"
	ReasonOccupied    = "cell not free"
	ReasonIsolates    = "would isolate free cells"
	ReasonNoBudget    = "no barriers left"
)

func rangeErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrOutOfRange}, args...)...)
}
