package game

import (
	"time"

	"tetrisduel/internal/identity"
	"tetrisduel/internal/session"
	"tetrisduel/internal/tetris"
)

// Match is the per-session game state: both playfields and the match clock.
// It is only read or written while the session lock is held.
type Match struct {
	states    map[identity.Identity]*tetris.Player
	startTime time.Time
	duration  time.Duration
	clock     *time.Timer
	round     int
	running   bool
	finished  bool
}

func newMatch() *Match {
	return &Match{states: make(map[identity.Identity]*tetris.Player)}
}

// stopClock halts the match clock. A clock that already fired is neutralised
// by the round check in expire.
func (m *Match) stopClock() {
	if m.clock != nil {
		m.clock.Stop()
		m.clock = nil
	}
}

func (m *Match) started() MatchStarted {
	return MatchStarted{StartTime: m.startTime, Duration: m.duration.Milliseconds()}
}

// snapshot returns the players' states in seat order.
func (m *Match) snapshot(info session.Info) []tetris.State {
	var out []tetris.State
	for _, slot := range info.Players() {
		if p, ok := m.states[slot.Identity]; ok {
			out = append(out, p.State())
		}
	}
	return out
}

// result compares the two players' scores. Higher score wins; equal scores
// tie.
func (m *Match) result(info session.Info, reason Reason) MatchFinished {
	fin := MatchFinished{Reason: reason}
	var p1, p2 PlayerResult
	if info.Player1 != nil {
		p1 = m.playerResult(*info.Player1)
		fin.Player1 = p1.Identity
		fin.Player1Score, fin.Player1Lines = p1.Score, p1.Lines
	}
	if info.Player2 != nil {
		p2 = m.playerResult(*info.Player2)
		fin.Player2 = p2.Identity
		fin.Player2Score, fin.Player2Lines = p2.Score, p2.Lines
	}

	p1.Rank, p2.Rank = 1, 1
	switch {
	case p1.Score > p2.Score:
		p2.Rank = 2
		w := p1.Identity
		fin.Winner = &w
	case p2.Score > p1.Score:
		p1.Rank = 2
		w := p2.Identity
		fin.Winner = &w
	}
	fin.Results = []PlayerResult{p1, p2}
	return fin
}

func (m *Match) playerResult(slot session.Slot) PlayerResult {
	r := PlayerResult{Identity: slot.Identity, Name: slot.Name}
	if p, ok := m.states[slot.Identity]; ok {
		r.Score = p.Score
		r.Lines = p.Lines
	}
	return r
}
