package session

import (
	"errors"
	"sync"
	"time"

	"tetrisduel/internal/identity"
)

// Status represents the session lifecycle.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Role is a player's seat in a session.
type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session is full")
	ErrSessionFinished = errors.New("session is finished")
	ErrNotInSession    = errors.New("player is not in session")
)

// Slot is a bound player seat.
type Slot struct {
	Identity identity.Identity `json:"identity"`
	Name     string            `json:"name"`
}

// Session is one matchmaking unit with at most two player slots. Its fields
// are only touched while the owning Manager holds the session lock, i.e.
// from inside a Registry.Update callback.
type Session struct {
	mu        sync.Mutex
	removed   bool
	Code      string
	Player1   *Slot
	Player2   *Slot
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	StartedAt *time.Time
}

func newSession(code string, creator identity.Identity, name string, now time.Time) *Session {
	return &Session{
		Code:      code,
		Player1:   &Slot{Identity: creator, Name: name},
		Status:    StatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RoleOf returns the seat bound to id.
func (s *Session) RoleOf(id identity.Identity) (Role, bool) {
	switch {
	case s.Player1 != nil && s.Player1.Identity == id:
		return RolePlayer1, true
	case s.Player2 != nil && s.Player2.Identity == id:
		return RolePlayer2, true
	}
	return "", false
}

// Slot returns the slot for a role, or nil when it is empty.
func (s *Session) Slot(r Role) *Slot {
	if r == RolePlayer1 {
		return s.Player1
	}
	return s.Player2
}

// Full reports whether both seats are bound.
func (s *Session) Full() bool { return s.Player1 != nil && s.Player2 != nil }

// Empty reports whether neither seat is bound.
func (s *Session) Empty() bool { return s.Player1 == nil && s.Player2 == nil }

// Join binds id to a seat. Rejoining returns the existing seat. Joining
// never changes the status: a match starts only on an explicit start.
func (s *Session) Join(id identity.Identity, name string, now time.Time) (Role, error) {
	if role, ok := s.RoleOf(id); ok {
		return role, nil
	}
	if s.Status == StatusFinished {
		return "", ErrSessionFinished
	}
	slot := &Slot{Identity: id, Name: name}
	switch {
	case s.Player2 == nil:
		s.Player2 = slot
		s.touch(now)
		return RolePlayer2, nil
	case s.Player1 == nil:
		s.Player1 = slot
		s.touch(now)
		return RolePlayer1, nil
	}
	return "", ErrSessionFull
}

// Leave clears the seat bound to id. If one player remains, an unfinished
// session drops back to the lobby.
func (s *Session) Leave(id identity.Identity, now time.Time) (Role, error) {
	role, ok := s.RoleOf(id)
	if !ok {
		return "", ErrNotInSession
	}
	if role == RolePlayer1 {
		s.Player1 = nil
	} else {
		s.Player2 = nil
	}
	if !s.Empty() && s.Status != StatusFinished {
		s.Status = StatusWaiting
		s.StartedAt = nil
	}
	s.touch(now)
	return role, nil
}

// SetStatus changes the lifecycle status.
func (s *Session) SetStatus(st Status, now time.Time) {
	s.Status = st
	s.touch(now)
}

// Begin marks the session as playing from now.
func (s *Session) Begin(now time.Time) {
	s.Status = StatusPlaying
	s.StartedAt = &now
	s.touch(now)
}

func (s *Session) touch(now time.Time) { s.UpdatedAt = now }

// Info is a point-in-time copy of a session.
type Info struct {
	Code      string     `json:"code"`
	Player1   *Slot      `json:"player1"`
	Player2   *Slot      `json:"player2"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Info returns a snapshot. The caller must hold the session lock.
func (s *Session) Info() Info {
	info := Info{
		Code:      s.Code,
		Status:    s.Status,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Player1 != nil {
		p := *s.Player1
		info.Player1 = &p
	}
	if s.Player2 != nil {
		p := *s.Player2
		info.Player2 = &p
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		info.StartedAt = &t
	}
	return info
}

// RoleOf returns the seat bound to id in the snapshot.
func (i Info) RoleOf(id identity.Identity) (Role, bool) {
	switch {
	case i.Player1 != nil && i.Player1.Identity == id:
		return RolePlayer1, true
	case i.Player2 != nil && i.Player2.Identity == id:
		return RolePlayer2, true
	}
	return "", false
}

// Full reports whether both seats were bound.
func (i Info) Full() bool { return i.Player1 != nil && i.Player2 != nil }

// Empty reports whether neither seat was bound. The registry deletes empty
// sessions, so an empty snapshot describes a removed session.
func (i Info) Empty() bool { return i.Player1 == nil && i.Player2 == nil }

// Players returns the bound slots in seat order.
func (i Info) Players() []Slot {
	var out []Slot
	if i.Player1 != nil {
		out = append(out, *i.Player1)
	}
	if i.Player2 != nil {
		out = append(out, *i.Player2)
	}
	return out
}
