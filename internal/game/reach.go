package game

import "github.com/zyedidia/generic/mapset"

// Reachable runs a multi-source BFS from every infected cell over free cells
// (barriers block) and reports whether every free cell on the board was
// reached. A false result means some free region is an island.
func (g *Game) Reachable() bool {
	return len(g.Islands()) == 0
}

// Islands returns the free cells no infection can reach, row-major.
func (g *Game) Islands() []Coord {
	visited := mapset.New[Coord]()
	queue := g.Infected()
	for _, c := range queue {
		visited.Put(c)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range directions {
			n := Coord{cur.Row + d.Row, cur.Col + d.Col}
			if !g.inBounds(n) || visited.Has(n) || g.board[n.Row][n.Col] != Free {
				continue
			}
			visited.Put(n)
			queue = append(queue, n)
		}
	}

	var cut []Coord
	for r, row := range g.board {
		for c, v := range row {
			if v == Free && !visited.Has(Coord{r, c}) {
				cut = append(cut, Coord{r, c})
			}
		}
	}
	return cut
}
