package tetris

// Kind names one of the seven tetrominoes.
type Kind string

const (
	KindI Kind = "I"
	KindO Kind = "O"
	KindT Kind = "T"
	KindS Kind = "S"
	KindZ Kind = "Z"
	KindJ Kind = "J"
	KindL Kind = "L"
)

// Kinds lists every piece kind in catalog order.
var Kinds = [...]Kind{KindI, KindO, KindT, KindS, KindZ, KindJ, KindL}

// Shape is one rotation state of a piece. Row 0 is the top of the shape and
// true marks an occupied cell relative to the piece's anchor.
type Shape [][]bool

const (
	x = true
	o = false
)

var catalog = map[Kind][]Shape{
	KindI: {
		{{x, x, x, x}},
		{{x}, {x}, {x}, {x}},
	},
	KindO: {
		{{x, x}, {x, x}},
	},
	KindT: {
		{{o, x, o}, {x, x, x}},
		{{x, o}, {x, x}, {x, o}},
		{{x, x, x}, {o, x, o}},
		{{o, x}, {x, x}, {o, x}},
	},
	KindS: {
		{{o, x, x}, {x, x, o}},
		{{x, o}, {x, x}, {o, x}},
	},
	KindZ: {
		{{x, x, o}, {o, x, x}},
		{{o, x}, {x, x}, {x, o}},
	},
	KindJ: {
		{{x, o, o}, {x, x, x}},
		{{x, x}, {x, o}, {x, o}},
		{{x, x, x}, {o, o, x}},
		{{o, x}, {o, x}, {x, x}},
	},
	KindL: {
		{{o, o, x}, {x, x, x}},
		{{x, o}, {x, o}, {x, x}},
		{{x, x, x}, {x, o, o}},
		{{x, x}, {o, x}, {o, x}},
	},
}

// ShapesFor returns the ordered rotation states of a kind. Unknown kinds
// have no shapes.
func ShapesFor(k Kind) []Shape {
	return catalog[k]
}

// Valid reports whether k is one of the seven catalog kinds.
func (k Kind) Valid() bool {
	_, ok := catalog[k]
	return ok
}

// Position is a board-relative anchor; X is the column, Y the row.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Piece is a live piece instance: a kind, a rotation index into the kind's
// shape list, and an anchor position.
type Piece struct {
	Kind     Kind     `json:"type"`
	Rotation int      `json:"rotation"`
	Position Position `json:"position"`
}

// NewPiece returns a piece of kind k in rotation 0, horizontally centred on
// the spawn row.
func NewPiece(k Kind) Piece {
	shape := ShapesFor(k)[0]
	return Piece{
		Kind:     k,
		Position: Position{X: Width/2 - len(shape[0])/2, Y: 0},
	}
}

// Shape returns the piece's current rotation state.
func (p Piece) Shape() Shape {
	shapes := ShapesFor(p.Kind)
	return shapes[p.Rotation%len(shapes)]
}

// Rotated returns p advanced to the next rotation state, wrapping to 0.
func (p Piece) Rotated() Piece {
	p.Rotation = (p.Rotation + 1) % len(ShapesFor(p.Kind))
	return p
}

// At returns p moved to pos.
func (p Piece) At(pos Position) Piece {
	p.Position = pos
	return p
}

// Cells returns the board coordinates covered by the piece.
func (p Piece) Cells() []Position {
	var cells []Position
	for row, line := range p.Shape() {
		for col, filled := range line {
			if filled {
				cells = append(cells, Position{X: p.Position.X + col, Y: p.Position.Y + row})
			}
		}
	}
	return cells
}
