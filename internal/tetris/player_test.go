package tetris

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tetrisduel/internal/identity"
)

// seqRand replays a fixed sequence of catalog indexes.
type seqRand struct {
	seq []int
	i   int
}

func (r *seqRand) IntN(n int) int {
	v := r.seq[r.i%len(r.seq)] % n
	r.i++
	return v
}

func kindIndex(k Kind) int {
	for i, kk := range Kinds {
		if kk == k {
			return i
		}
	}
	panic("unknown kind " + string(k))
}

func newTestPlayer(kinds ...Kind) *Player {
	seq := make([]int, len(kinds))
	for i, k := range kinds {
		seq[i] = kindIndex(k)
	}
	return NewPlayer(identity.Guest("p1"), "alice", &seqRand{seq: seq})
}

func TestParseMove(t *testing.T) {
	for _, s := range []string{"left", "right", "rotate", "down", "drop"} {
		m, err := ParseMove(s)
		require.NoError(t, err)
		assert.Equal(t, Move(s), m)
	}
	_, err := ParseMove("hold")
	assert.ErrorIs(t, err, ErrInvalidMoveType)
}

func TestNewPlayer(t *testing.T) {
	p := newTestPlayer(KindT, KindI)
	require.NotNil(t, p.Current)
	assert.Equal(t, KindT, p.Current.Kind)
	assert.Equal(t, KindI, p.Next.Kind)
	assert.Equal(t, PhaseActive, p.Phase())
	assert.Equal(t, Grid{}, p.Grid)
	assert.Zero(t, p.Score)
}

func TestNewPlayerDefaultRand(t *testing.T) {
	p := NewPlayer(identity.Guest("p1"), "alice", nil)
	require.NotNil(t, p.Current)
	assert.True(t, p.Current.Kind.Valid())
	assert.True(t, p.Next.Kind.Valid())
}

func TestMoveLeftRightStopsAtWalls(t *testing.T) {
	p := newTestPlayer(KindO)
	for i := 0; i < 10; i++ {
		p.Apply(MoveLeft)
	}
	assert.Equal(t, 0, p.Current.Position.X)
	assert.False(t, p.Apply(MoveLeft), "move into the wall should be rejected")
	assert.Equal(t, 0, p.Current.Position.X)

	for i := 0; i < 10; i++ {
		p.Apply(MoveRight)
	}
	assert.Equal(t, Width-2, p.Current.Position.X)
	assert.False(t, p.Apply(MoveRight))
}

func TestRotateCyclesTPiece(t *testing.T) {
	p := newTestPlayer(KindT)
	p.Apply(MoveDown) // leave the spawn row so every rotation fits

	var seen []int
	for i := 0; i < 5; i++ {
		seen = append(seen, p.Current.Rotation)
		require.True(t, p.Apply(MoveRotate))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 0}, seen)
	assert.Equal(t, 1, p.Current.Rotation)
}

func TestRotateRejectedAgainstWall(t *testing.T) {
	p := newTestPlayer(KindI)
	p.Apply(MoveRotate) // vertical
	for i := 0; i < 10; i++ {
		p.Apply(MoveRight)
	}
	require.Equal(t, Width-1, p.Current.Position.X)

	assert.False(t, p.Apply(MoveRotate), "horizontal I does not fit at the right wall")
	assert.Equal(t, 1, p.Current.Rotation)
}

func TestSoftDropMovesThenLocks(t *testing.T) {
	p := newTestPlayer(KindO, KindT)
	for i := 0; i < Height-2; i++ {
		require.True(t, p.Apply(MoveDown))
	}
	assert.Equal(t, Height-2, p.Current.Position.Y)
	assert.Equal(t, Grid{}, p.Grid, "moving down alone never locks")

	require.True(t, p.Apply(MoveDown))
	assert.True(t, p.Grid[19][4])
	assert.True(t, p.Grid[18][5])
	assert.Equal(t, KindT, p.Current.Kind)
	assert.Equal(t, 0, p.Current.Position.Y)
	assert.False(t, p.GameOver)
}

func TestHardDropClearsLineAndScores(t *testing.T) {
	p := newTestPlayer(KindI)
	for col := 0; col < Width; col++ {
		if col < 3 || col > 6 {
			p.Grid[Height-1][col] = true
		}
	}

	require.True(t, p.Apply(MoveDrop))
	assert.Equal(t, 1, p.Lines)
	assert.Equal(t, 100, p.Score)
	assert.Equal(t, 0, p.Level)
	assert.Equal(t, Grid{}, p.Grid)
}

func TestLevelMultipliesScore(t *testing.T) {
	p := newTestPlayer(KindI)
	p.Lines = 10
	p.Level = 1
	for col := 0; col < Width; col++ {
		if col < 3 || col > 6 {
			p.Grid[Height-1][col] = true
		}
	}

	p.Apply(MoveDrop)
	assert.Equal(t, 200, p.Score)
	assert.Equal(t, 11, p.Lines)
	assert.Equal(t, 1, p.Level)
}

func TestGameOverWhenSpawnBlocked(t *testing.T) {
	p := newTestPlayer(KindO)
	for row := 2; row < Height; row++ {
		p.Grid[row][0] = true // column of junk, keeps rows from clearing
		for col := 3; col < 7; col++ {
			p.Grid[row][col] = true
		}
	}

	require.True(t, p.Apply(MoveDrop))
	assert.True(t, p.GameOver)
	assert.Equal(t, PhaseOver, p.Phase())

	before := p.State()
	for _, m := range []Move{MoveLeft, MoveRight, MoveRotate, MoveDown, MoveDrop} {
		assert.False(t, p.Apply(m), "move %s after game over", m)
	}
	assert.Equal(t, before, p.State())
}

func TestStateSnapshotIsDetached(t *testing.T) {
	p := newTestPlayer(KindO)
	s := p.State()
	require.NotNil(t, s.CurrentPiece)

	p.Apply(MoveLeft)
	assert.Equal(t, 4, s.CurrentPiece.Position.X)
	assert.Equal(t, "alice", s.Username)
	assert.Equal(t, identity.Guest("p1"), s.Identity)
	assert.Equal(t, CellActive, s.Grid[0][4])
}
