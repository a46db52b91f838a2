package game

import (
	"time"

	"tetrisduel/internal/identity"
	"tetrisduel/internal/session"
	"tetrisduel/internal/tetris"
)

// Event type names as they appear on the wire.
const (
	TypeSessionInfo   = "session_info"
	TypePlayerJoined  = "player_joined"
	TypePlayersReady  = "players_ready"
	TypeMatchStarted  = "match_started"
	TypeStateUpdate   = "state_update"
	TypeGameState     = "game_state"
	TypeChatMessage   = "chat_message"
	TypePlayerLeft    = "player_left"
	TypeMatchFinished = "match_finished"
	TypeError         = "error"
)

// Event is an outbound message. The set of implementations is closed to this
// package.
type Event interface {
	Type() string
	event()
}

// Publisher fans events out to the connections attached to a session.
// Publish must not block.
type Publisher interface {
	Publish(code string, ev Event)
}

// SessionInfo is sent to a connection right after it joins.
type SessionInfo struct {
	Session              session.Info `json:"session"`
	Role                 session.Role `json:"role"`
	Waiting              bool         `json:"waiting"`
	BothPlayersConnected bool         `json:"bothPlayersConnected"`
	CanStart             bool         `json:"canStart"`
}

// PlayerJoined announces a newly bound seat.
type PlayerJoined struct {
	Identity identity.Identity `json:"identity"`
	Name     string            `json:"name"`
	Role     session.Role      `json:"role"`
}

// PlayersReady is published when both seats are bound in the lobby.
type PlayersReady struct {
	Session session.Info `json:"session"`
}

// MatchStarted is published once per started match. Duration is in
// milliseconds.
type MatchStarted struct {
	StartTime time.Time `json:"startTime"`
	Duration  int64     `json:"duration"`
}

// StateUpdate carries one player's state after it changed.
type StateUpdate struct {
	Identity identity.Identity `json:"identity"`
	State    tetris.State      `json:"state"`
}

// GameState is the full match view sent to a reconnecting connection.
type GameState struct {
	Match  *MatchStarted  `json:"match,omitempty"`
	States []tetris.State `json:"states"`
}

// ChatMessage is a validated chat line.
type ChatMessage struct {
	ID          string            `json:"id"`
	SessionCode string            `json:"sessionCode"`
	Identity    identity.Identity `json:"identity"`
	Name        string            `json:"name"`
	Text        string            `json:"text"`
	Timestamp   time.Time         `json:"timestamp"`
}

// PlayerLeft announces a freed seat.
type PlayerLeft struct {
	Identity identity.Identity `json:"identity"`
	Role     session.Role      `json:"role"`
}

// Reason tells why a match ended.
type Reason string

const (
	ReasonGameOver Reason = "gameover"
	ReasonTimeout  Reason = "timeout"
)

// PlayerResult holds the outcome for one player.
type PlayerResult struct {
	Identity identity.Identity `json:"identity"`
	Name     string            `json:"name"`
	Rank     int               `json:"rank"` // 1 = winner, both 1 on a tie
	Score    int               `json:"score"`
	Lines    int               `json:"lines"`
}

// MatchFinished is published exactly once per match. Winner is nil on a tie.
type MatchFinished struct {
	Winner       *identity.Identity `json:"winner"`
	Reason       Reason             `json:"reason"`
	Player1      identity.Identity  `json:"player1"`
	Player1Score int                `json:"player1Score"`
	Player1Lines int                `json:"player1Lines"`
	Player2      identity.Identity  `json:"player2"`
	Player2Score int                `json:"player2Score"`
	Player2Lines int                `json:"player2Lines"`
	Results      []PlayerResult     `json:"results"`
}

// Error is a scoped failure sent only to the acting connection.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (SessionInfo) Type() string   { return TypeSessionInfo }
func (PlayerJoined) Type() string  { return TypePlayerJoined }
func (PlayersReady) Type() string  { return TypePlayersReady }
func (MatchStarted) Type() string  { return TypeMatchStarted }
func (StateUpdate) Type() string   { return TypeStateUpdate }
func (GameState) Type() string     { return TypeGameState }
func (ChatMessage) Type() string   { return TypeChatMessage }
func (PlayerLeft) Type() string    { return TypePlayerLeft }
func (MatchFinished) Type() string { return TypeMatchFinished }
func (Error) Type() string         { return TypeError }

func (SessionInfo) event()   {}
func (PlayerJoined) event()  {}
func (PlayersReady) event()  {}
func (MatchStarted) event()  {}
func (StateUpdate) event()   {}
func (GameState) event()     {}
func (ChatMessage) event()   {}
func (PlayerLeft) event()    {}
func (MatchFinished) event() {}
func (Error) event()         {}
