package game

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"tetrisduel/internal/identity"
	"tetrisduel/internal/logging"
	"tetrisduel/internal/session"
	"tetrisduel/internal/storage"
	"tetrisduel/internal/tetris"
)

var (
	ErrNotAuthorized      = errors.New("not authorized")
	ErrPlayersNotReady    = errors.New("players not ready")
	ErrMatchInProgress    = errors.New("match already in progress")
	ErrMatchFinished      = errors.New("match finished")
	ErrGameNotReady       = errors.New("game not ready")
	ErrPlayerStateMissing = errors.New("player state missing")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrMessageTooLong     = errors.New("message is too long")
)

const (
	// DefaultMatchDuration bounds a match when no duration is configured.
	DefaultMatchDuration = 2 * time.Minute
	// MaxChatLength is the longest accepted chat text, in characters.
	MaxChatLength = 500

	scoreTimeout = 5 * time.Second
)

// ScoreRecorder persists final scores.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, s storage.Score) error
}

// Options configures a Coordinator. Zero values select defaults.
type Options struct {
	MatchDuration time.Duration
	// Scores receives non-zero final scores. Nil disables persistence.
	Scores ScoreRecorder
	// NewRand supplies the piece source for each new player.
	NewRand func() tetris.Rand
}

// Coordinator drives the match lifecycle of every session. All per-session
// work runs inside Registry.Update, so the two players of one session never
// interleave.
type Coordinator struct {
	sessions session.Registry
	pub      Publisher
	opts     Options
	now      func() time.Time

	mu      sync.Mutex
	matches map[string]*Match

	pending sync.WaitGroup
}

// NewCoordinator creates a coordinator over a session registry.
func NewCoordinator(sessions session.Registry, pub Publisher, opts Options) *Coordinator {
	if opts.MatchDuration <= 0 {
		opts.MatchDuration = DefaultMatchDuration
	}
	return &Coordinator{
		sessions: sessions,
		pub:      pub,
		opts:     opts,
		now:      time.Now,
		matches:  make(map[string]*Match),
	}
}

func (c *Coordinator) match(code string) *Match {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matches[code]
}

// Forget drops the match state of a removed session and stops its clock.
func (c *Coordinator) Forget(code string) {
	c.mu.Lock()
	m := c.matches[code]
	delete(c.matches, code)
	c.mu.Unlock()
	if m != nil {
		m.stopClock()
		logging.Debugf("match state for %s released", code)
	}
}

// Wait blocks until in-flight score writes complete.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

// Create opens a new session with the caller as player1.
func (c *Coordinator) Create(id identity.Identity, name string) (session.Info, error) {
	info, err := c.sessions.Create(id, name)
	if err != nil {
		return session.Info{}, err
	}
	log.Printf("session %s created by %s", info.Code, name)
	return info, nil
}

// JoinResult is what a joining player needs to render the session.
type JoinResult struct {
	Session session.Info
	Role    session.Role
	// Game is set when the session has match state to resume.
	Game *GameState
}

// Info builds the session_info event for the joined player.
func (r JoinResult) Info() SessionInfo {
	waiting := r.Session.Status == session.StatusWaiting
	full := r.Session.Full()
	return SessionInfo{
		Session:              r.Session,
		Role:                 r.Role,
		Waiting:              waiting,
		BothPlayersConnected: full,
		CanStart:             waiting && full && r.Role == session.RolePlayer1,
	}
}

// Join binds id to a seat. Rejoining keeps the existing seat and returns the
// current game state so the client can resume.
func (c *Coordinator) Join(code string, id identity.Identity, name string) (JoinResult, error) {
	var res JoinResult
	info, err := c.sessions.Update(code, func(s *session.Session) error {
		_, rejoin := s.RoleOf(id)
		role, err := s.Join(id, name, c.now())
		if err != nil {
			return err
		}
		res.Role = role
		info := s.Info()
		if !rejoin {
			slot := s.Slot(role)
			c.pub.Publish(info.Code, PlayerJoined{Identity: id, Name: slot.Name, Role: role})
			if s.Full() && s.Status == session.StatusWaiting {
				c.pub.Publish(info.Code, PlayersReady{Session: info})
			}
		}
		if m := c.match(info.Code); m != nil && len(m.states) > 0 {
			gs := GameState{States: m.snapshot(info)}
			if m.running || m.finished {
				started := m.started()
				gs.Match = &started
			}
			res.Game = &gs
		}
		return nil
	})
	if err != nil {
		return JoinResult{}, err
	}
	res.Session = info
	logging.Debugf("%s joined %s as %s", id, info.Code, res.Role)
	return res, nil
}

// Start begins the match. Only player1 may start, and only with both seats
// bound.
func (c *Coordinator) Start(code string, id identity.Identity) (MatchStarted, error) {
	var started MatchStarted
	_, err := c.sessions.Update(code, func(s *session.Session) error {
		if role, ok := s.RoleOf(id); !ok || role != session.RolePlayer1 {
			return ErrNotAuthorized
		}
		switch s.Status {
		case session.StatusFinished:
			return ErrMatchFinished
		case session.StatusPlaying:
			return ErrMatchInProgress
		}
		if !s.Full() {
			return ErrPlayersNotReady
		}

		now := c.now()
		s.Begin(now)
		info := s.Info()

		c.mu.Lock()
		m := c.matches[info.Code]
		if m == nil {
			m = newMatch()
			c.matches[info.Code] = m
		}
		c.mu.Unlock()

		for _, slot := range info.Players() {
			if _, ok := m.states[slot.Identity]; !ok {
				m.states[slot.Identity] = tetris.NewPlayer(slot.Identity, slot.Name, c.newRand())
			}
		}
		m.round++
		m.running = true
		m.startTime = now
		m.duration = c.opts.MatchDuration
		round := m.round
		m.clock = time.AfterFunc(m.duration, func() { c.expire(info.Code, m, round) })

		started = m.started()
		c.pub.Publish(info.Code, started)
		for _, st := range m.snapshot(info) {
			c.pub.Publish(info.Code, StateUpdate{Identity: st.Identity, State: st})
		}
		log.Printf("match %s started", info.Code)
		return nil
	})
	if err != nil {
		return MatchStarted{}, err
	}
	return started, nil
}

func (c *Coordinator) newRand() tetris.Rand {
	if c.opts.NewRand == nil {
		return nil
	}
	return c.opts.NewRand()
}

// Move applies one gameplay command for id. Commands after the player's game
// over are ignored.
func (c *Coordinator) Move(code string, id identity.Identity, kind string) error {
	mv, err := tetris.ParseMove(kind)
	if err != nil {
		return err
	}
	_, err = c.sessions.Update(code, func(s *session.Session) error {
		if _, ok := s.RoleOf(id); !ok {
			return ErrNotAuthorized
		}
		if s.Status == session.StatusFinished {
			// The player who topped out keeps pressing keys; ignore them.
			if m := c.match(s.Code); m != nil {
				if p, ok := m.states[id]; ok && p.GameOver {
					return nil
				}
			}
			return ErrMatchFinished
		}
		if s.Status != session.StatusPlaying || !s.Full() {
			return ErrGameNotReady
		}
		m := c.match(s.Code)
		if m == nil || !m.running {
			return ErrGameNotReady
		}
		p, ok := m.states[id]
		if !ok {
			return ErrPlayerStateMissing
		}
		if p.GameOver {
			return nil
		}
		if !p.Apply(mv) {
			return nil
		}
		logging.Debugf("%s %s in %s", id, mv, s.Code)
		c.pub.Publish(s.Code, StateUpdate{Identity: id, State: p.State()})
		if p.GameOver {
			c.finishLocked(s, m, ReasonGameOver)
		}
		return nil
	})
	return err
}

// expire ends the match when its clock runs out. A clock from an earlier
// round, or one racing a game over, is a no-op.
func (c *Coordinator) expire(code string, m *Match, round int) {
	_, err := c.sessions.Update(code, func(s *session.Session) error {
		if c.match(code) != m || m.round != round || !m.running || s.Status != session.StatusPlaying {
			return nil
		}
		c.finishLocked(s, m, ReasonTimeout)
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Printf("expire match %s: %v", code, err)
	}
}

// finishLocked moves the match to Finished. The caller holds the session
// lock; the first caller wins.
func (c *Coordinator) finishLocked(s *session.Session, m *Match, reason Reason) {
	if m.finished {
		return
	}
	m.finished = true
	m.running = false
	m.stopClock()
	s.SetStatus(session.StatusFinished, c.now())

	info := s.Info()
	fin := m.result(info, reason)
	c.pub.Publish(info.Code, fin)
	if fin.Winner != nil {
		log.Printf("match %s finished (%s): winner %s", info.Code, reason, fin.Winner)
	} else {
		log.Printf("match %s finished (%s): tie", info.Code, reason)
	}
	c.recordScores(info.Code, fin.Results)
}

// recordScores persists non-zero scores in the background. Failures are
// logged and never reach players.
func (c *Coordinator) recordScores(code string, results []PlayerResult) {
	if c.opts.Scores == nil {
		return
	}
	for _, r := range results {
		if r.Score == 0 || r.Identity.IsZero() {
			continue
		}
		sc := storage.Score{
			UserID:       r.Identity.UserID(),
			Username:     r.Name,
			Score:        r.Score,
			LinesCleared: r.Lines,
			SessionCode:  code,
			CreatedAt:    c.now(),
		}
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			ctx, cancel := context.WithTimeout(context.Background(), scoreTimeout)
			defer cancel()
			if err := c.opts.Scores.RecordScore(ctx, sc); err != nil {
				log.Printf("record score for %s in %s: %v", sc.Username, code, err)
				return
			}
			log.Printf("recorded score %s for %s in %s", humanize.Comma(int64(sc.Score)), sc.Username, code)
		}()
	}
}

// Leave frees id's seat. During an active match the session pauses: the
// clock stops, the leaver's state is dropped and the remaining player keeps
// theirs until a new match starts.
func (c *Coordinator) Leave(code string, id identity.Identity) error {
	_, err := c.sessions.Update(code, func(s *session.Session) error {
		wasPlaying := s.Status == session.StatusPlaying
		role, err := s.Leave(id, c.now())
		if err != nil {
			return err
		}
		if m := c.match(s.Code); m != nil && !m.finished {
			if wasPlaying {
				m.stopClock()
				m.running = false
				log.Printf("match %s paused: %s left", s.Code, id)
			}
			delete(m.states, id)
		}
		c.pub.Publish(s.Code, PlayerLeft{Identity: id, Role: role})
		return nil
	})
	return err
}

// Chat validates and broadcasts a chat line from a session member.
func (c *Coordinator) Chat(code string, id identity.Identity, text string) (ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxChatLength {
		return ChatMessage{}, ErrMessageTooLong
	}
	var msg ChatMessage
	_, err := c.sessions.Update(code, func(s *session.Session) error {
		role, ok := s.RoleOf(id)
		if !ok {
			return ErrNotAuthorized
		}
		msg = ChatMessage{
			ID:          uuid.NewString(),
			SessionCode: s.Code,
			Identity:    id,
			Name:        s.Slot(role).Name,
			Text:        text,
			Timestamp:   c.now(),
		}
		c.pub.Publish(s.Code, msg)
		return nil
	})
	if err != nil {
		return ChatMessage{}, err
	}
	return msg, nil
}

// States returns the current player states of a session in seat order.
func (c *Coordinator) States(code string) ([]tetris.State, error) {
	var out []tetris.State
	_, err := c.sessions.Update(code, func(s *session.Session) error {
		if m := c.match(s.Code); m != nil {
			out = m.snapshot(s.Info())
		}
		return nil
	})
	return out, err
}
