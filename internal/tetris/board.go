package tetris

const (
	Width  = 10
	Height = 20
)

// Grid is the playfield. Row 0 is the top (spawn) row. Grid is a value type,
// so the engine functions below never mutate their input.
type Grid [Height][Width]bool

// Cell values used by Render.
const (
	CellEmpty  = 0
	CellLocked = 1
	CellActive = 2
)

// IsValidPosition reports whether p, anchored at pos, fits on g. Every
// occupied cell must satisfy 0 <= x < Width and y < Height. Cells above the
// board (y < 0) never collide; cells at y >= 0 must land on empty grid cells.
func IsValidPosition(g Grid, p Piece, pos Position) bool {
	for _, c := range p.At(pos).Cells() {
		if c.X < 0 || c.X >= Width || c.Y >= Height {
			return false
		}
		if c.Y >= 0 && g[c.Y][c.X] {
			return false
		}
	}
	return true
}

// Place returns a copy of g with p's cells marked occupied. Cells outside the
// board are dropped.
func Place(g Grid, p Piece) Grid {
	for _, c := range p.Cells() {
		if c.Y >= 0 && c.Y < Height && c.X >= 0 && c.X < Width {
			g[c.Y][c.X] = true
		}
	}
	return g
}

// ClearLines removes every full row in a single pass and inserts empty rows
// at the top, keeping the remaining rows in order.
func ClearLines(g Grid) (Grid, int) {
	var out Grid
	dst := Height - 1
	cleared := 0
	for row := Height - 1; row >= 0; row-- {
		if rowFull(g[row]) {
			cleared++
			continue
		}
		out[dst] = g[row]
		dst--
	}
	return out, cleared
}

func rowFull(row [Width]bool) bool {
	for _, filled := range row {
		if !filled {
			return false
		}
	}
	return true
}

var lineScores = [...]int{0, 100, 300, 500, 800}

// Score returns the points for clearing lines at the given level.
func Score(lines, level int) int {
	if lines < 0 || lines >= len(lineScores) {
		return 0
	}
	return lineScores[lines] * (level + 1)
}

// IsGameOver reports whether any cell of the top row is occupied.
func IsGameOver(g Grid) bool {
	for _, filled := range g[0] {
		if filled {
			return true
		}
	}
	return false
}

// Render flattens g into display rows, tagging the cells of active (if any)
// with CellActive.
func Render(g Grid, active *Piece) [][]int {
	out := make([][]int, Height)
	for row := range g {
		out[row] = make([]int, Width)
		for col, filled := range g[row] {
			if filled {
				out[row][col] = CellLocked
			}
		}
	}
	if active != nil {
		for _, c := range active.Cells() {
			if c.Y >= 0 && c.Y < Height && c.X >= 0 && c.X < Width {
				out[c.Y][c.X] = CellActive
			}
		}
	}
	return out
}
