package tetris

import (
	"errors"
	"math/rand/v2"

	"tetrisduel/internal/identity"
)

// Move is a gameplay command.
type Move string

const (
	MoveLeft   Move = "left"
	MoveRight  Move = "right"
	MoveRotate Move = "rotate"
	MoveDown   Move = "down"
	MoveDrop   Move = "drop"
)

// ErrInvalidMoveType is returned by ParseMove for unknown commands.
var ErrInvalidMoveType = errors.New("invalid move type")

// ParseMove validates a wire move name.
func ParseMove(s string) (Move, error) {
	switch m := Move(s); m {
	case MoveLeft, MoveRight, MoveRotate, MoveDown, MoveDrop:
		return m, nil
	}
	return "", ErrInvalidMoveType
}

// Phase is the simulation state of one player. Spawning and locking are
// only observed inside Apply.
type Phase string

const (
	PhaseSpawning Phase = "spawning"
	PhaseActive   Phase = "active"
	PhaseLocking  Phase = "locking"
	PhaseOver     Phase = "over"
)

// Rand picks piece kinds. *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Player is one player's playfield and progress. It is not safe for
// concurrent use; callers serialize access per session.
type Player struct {
	Identity identity.Identity
	Name     string
	Grid     Grid
	Current  *Piece
	Next     Piece
	Score    int
	Lines    int
	Level    int
	GameOver bool

	phase Phase
	rng   Rand
}

// NewPlayer creates a fresh playfield with an active and a pending piece.
// A nil rng uses the process-wide source.
func NewPlayer(id identity.Identity, name string, rng Rand) *Player {
	if rng == nil {
		rng = globalRand{}
	}
	p := &Player{Identity: id, Name: name, rng: rng, phase: PhaseSpawning}
	first := NewPiece(p.randomKind())
	p.Current = &first
	p.Next = NewPiece(p.randomKind())
	p.phase = PhaseActive
	return p
}

func (p *Player) randomKind() Kind {
	return Kinds[p.rng.IntN(len(Kinds))]
}

// Phase returns the player's current simulation phase.
func (p *Player) Phase() Phase {
	if p.GameOver {
		return PhaseOver
	}
	return p.phase
}

// Apply runs one move command and reports whether the state changed.
// Blocked moves and any move after game over are no-ops.
func (p *Player) Apply(m Move) bool {
	if p.GameOver || p.Current == nil {
		return false
	}
	cur := *p.Current
	pos := cur.Position

	switch m {
	case MoveLeft:
		return p.shift(Position{X: pos.X - 1, Y: pos.Y})
	case MoveRight:
		return p.shift(Position{X: pos.X + 1, Y: pos.Y})
	case MoveRotate:
		rotated := cur.Rotated()
		if !IsValidPosition(p.Grid, rotated, pos) {
			return false
		}
		p.Current = &rotated
		return true
	case MoveDown:
		if p.shift(Position{X: pos.X, Y: pos.Y + 1}) {
			return true
		}
		p.lock()
		return true
	case MoveDrop:
		y := pos.Y
		for IsValidPosition(p.Grid, cur, Position{X: pos.X, Y: y + 1}) {
			y++
		}
		cur = cur.At(Position{X: pos.X, Y: y})
		p.Current = &cur
		p.lock()
		return true
	}
	return false
}

func (p *Player) shift(to Position) bool {
	if !IsValidPosition(p.Grid, *p.Current, to) {
		return false
	}
	moved := p.Current.At(to)
	p.Current = &moved
	return true
}

// lock merges the active piece, clears lines, scores, spawns the next piece
// and evaluates game over.
func (p *Player) lock() {
	p.phase = PhaseLocking
	grid, cleared := ClearLines(Place(p.Grid, *p.Current))
	p.Grid = grid
	p.Lines += cleared
	p.Score += Score(cleared, p.Level)
	p.Level = p.Lines / 10

	p.phase = PhaseSpawning
	next := p.Next
	p.Current = &next
	p.Next = NewPiece(p.randomKind())

	if IsGameOver(p.Grid) || !IsValidPosition(p.Grid, next, next.Position) {
		p.GameOver = true
		return
	}
	p.phase = PhaseActive
}

// State is the wire view of a player.
type State struct {
	Identity     identity.Identity `json:"identity"`
	Username     string            `json:"username"`
	Grid         [][]int           `json:"grid"`
	CurrentPiece *Piece            `json:"currentPiece"`
	NextPiece    Piece             `json:"nextPiece"`
	Score        int               `json:"score"`
	LinesCleared int               `json:"linesCleared"`
	Level        int               `json:"level"`
	GameOver     bool              `json:"gameOver"`
	Phase        Phase             `json:"phase"`
}

// State returns a copy of the player's state for broadcasting.
func (p *Player) State() State {
	var cur *Piece
	if p.Current != nil {
		c := *p.Current
		cur = &c
	}
	var active *Piece
	if !p.GameOver {
		active = cur
	}
	return State{
		Identity:     p.Identity,
		Username:     p.Name,
		Grid:         Render(p.Grid, active),
		CurrentPiece: cur,
		NextPiece:    p.Next,
		Score:        p.Score,
		LinesCleared: p.Lines,
		Level:        p.Level,
		GameOver:     p.GameOver,
		Phase:        p.Phase(),
	}
}
