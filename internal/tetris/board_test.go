package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillRow(g *Grid, row int) {
	for col := range g[row] {
		g[row][col] = true
	}
}

func TestShapesFor(t *testing.T) {
	want := map[Kind]int{KindO: 1, KindI: 2, KindS: 2, KindZ: 2, KindT: 4, KindJ: 4, KindL: 4}
	for k, n := range want {
		shapes := ShapesFor(k)
		require.Len(t, shapes, n, "kind %s", k)
		for _, s := range shapes {
			cells := 0
			for _, row := range s {
				for _, filled := range row {
					if filled {
						cells++
					}
				}
			}
			assert.Equal(t, 4, cells, "kind %s has a shape without 4 cells", k)
		}
	}
	assert.Empty(t, ShapesFor(Kind("Q")))
}

func TestNewPieceIsCentred(t *testing.T) {
	assert.Equal(t, Position{X: 3, Y: 0}, NewPiece(KindI).Position)
	assert.Equal(t, Position{X: 4, Y: 0}, NewPiece(KindO).Position)
	assert.Equal(t, Position{X: 4, Y: 0}, NewPiece(KindT).Position)
}

func TestIsValidPositionBounds(t *testing.T) {
	var g Grid
	p := NewPiece(KindO)

	assert.True(t, IsValidPosition(g, p, Position{X: 0, Y: 0}))
	assert.True(t, IsValidPosition(g, p, Position{X: Width - 2, Y: Height - 2}))
	assert.False(t, IsValidPosition(g, p, Position{X: -1, Y: 0}), "left wall")
	assert.False(t, IsValidPosition(g, p, Position{X: Width - 1, Y: 0}), "right wall")
	assert.False(t, IsValidPosition(g, p, Position{X: 0, Y: Height - 1}), "floor")
}

func TestIsValidPositionCollision(t *testing.T) {
	var g Grid
	g[10][4] = true
	p := NewPiece(KindO)

	assert.False(t, IsValidPosition(g, p, Position{X: 3, Y: 9}))
	assert.True(t, IsValidPosition(g, p, Position{X: 5, Y: 9}))
}

func TestIsValidPositionAboveBoard(t *testing.T) {
	var g Grid
	fillRow(&g, 0)
	p := NewPiece(KindO)

	// Entirely above the board: nothing to collide with.
	assert.True(t, IsValidPosition(g, p, Position{X: 4, Y: -2}))
	// Lower row reaches into the occupied top row.
	assert.False(t, IsValidPosition(g, p, Position{X: 4, Y: -1}))
	// Horizontal bounds still apply above the board.
	assert.False(t, IsValidPosition(g, p, Position{X: -1, Y: -5}))
}

func TestPlaceDoesNotMutateInput(t *testing.T) {
	var g Grid
	p := NewPiece(KindO).At(Position{X: 0, Y: 18})
	placed := Place(g, p)

	assert.False(t, g[18][0], "input grid was mutated")
	assert.True(t, placed[18][0])
	assert.True(t, placed[18][1])
	assert.True(t, placed[19][0])
	assert.True(t, placed[19][1])
}

func TestPlaceDropsOutOfBoundsCells(t *testing.T) {
	var g Grid
	p := Piece{Kind: KindI, Rotation: 1, Position: Position{X: 0, Y: -2}}
	placed := Place(g, p)

	assert.True(t, placed[0][0])
	assert.True(t, placed[1][0])
	assert.False(t, placed[2][0])
}

func TestPlaceThenClearWithoutFullRows(t *testing.T) {
	var g Grid
	g[19][0] = true
	placed := Place(g, NewPiece(KindT).At(Position{X: 4, Y: 18}))

	cleared, n := ClearLines(placed)
	assert.Equal(t, 0, n)
	assert.Equal(t, placed, cleared)
}

func TestClearBottomRow(t *testing.T) {
	var g Grid
	fillRow(&g, Height-1)

	cleared, n := ClearLines(g)
	require.Equal(t, 1, n)
	assert.Len(t, cleared, Height)
	assert.Equal(t, Grid{}, cleared)
}

func TestClearTwoRowsSimultaneously(t *testing.T) {
	var g Grid
	fillRow(&g, 5)
	fillRow(&g, 19)
	g[10][3] = true
	g[4][7] = true

	cleared, n := ClearLines(g)
	require.Equal(t, 2, n)

	var want Grid
	want[11][3] = true // one cleared row below it
	want[6][7] = true  // two cleared rows below it
	assert.Equal(t, want, cleared)
}

func TestScore(t *testing.T) {
	cases := []struct {
		lines, level, want int
	}{
		{0, 0, 0},
		{1, 0, 100},
		{2, 0, 300},
		{3, 0, 500},
		{4, 0, 800},
		{1, 1, 200},
		{1, 2, 300},
		{5, 0, 0},
		{-1, 3, 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Score(c.lines, c.level), "Score(%d, %d)", c.lines, c.level)
	}
}

func TestIsGameOver(t *testing.T) {
	var g Grid
	assert.False(t, IsGameOver(g))

	g[1][5] = true
	assert.False(t, IsGameOver(g))

	g[0][9] = true
	assert.True(t, IsGameOver(g))
}

func TestRenderTagsActivePiece(t *testing.T) {
	var g Grid
	g[19][0] = true
	p := NewPiece(KindO)

	rows := Render(g, &p)
	require.Len(t, rows, Height)
	assert.Equal(t, CellLocked, rows[19][0])
	assert.Equal(t, CellActive, rows[0][4])
	assert.Equal(t, CellActive, rows[1][5])
	assert.Equal(t, CellEmpty, rows[0][0])
}
