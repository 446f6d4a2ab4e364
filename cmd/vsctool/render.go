package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/robalobadob/virusspread/internal/game"
)

var (
	freeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	infectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	barrierStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	titleStyle    = lipgloss.NewStyle().Bold(true)
	boardStyle    = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("2")).
			Padding(0, 1)
)

func glyph(c game.Cell) string {
	switch c {
	case game.Infected:
		return infectedStyle.Render("V")
	case game.Barrier:
		return barrierStyle.Render("#")
	default:
		return freeStyle.Render(".")
	}
}

func renderBoard(board [][]game.Cell) string {
	lines := make([]string, len(board))
	for r, row := range board {
		cells := make([]string, len(row))
		for c, v := range row {
			cells[c] = glyph(v)
		}
		lines[r] = strings.Join(cells, " ")
	}
	return boardStyle.Render(strings.Join(lines, "\n"))
}

func render(g *game.Game) string {
	title := titleStyle.Render(fmt.Sprintf("level %d/%d  %dx%d", g.Level(), g.MaxLevel(), g.Size(), g.Size()))
	info := fmt.Sprintf("budget %d  infected %d  free %d  status %s",
		g.Budget(), len(g.Infected()), g.FreeCells(), g.Status())
	return lipgloss.JoinVertical(lipgloss.Left, title, renderBoard(g.Board()), info)
}
