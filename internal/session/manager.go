package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"tetrisduel/internal/identity"
	"tetrisduel/internal/logging"
	"tetrisduel/internal/storage"
)

// Registry is the session store the rest of the server talks to. Every
// mutation of one session is serialized; different sessions are independent.
type Registry interface {
	Create(id identity.Identity, name string) (Info, error)
	Get(code string) (Info, error)
	Join(code string, id identity.Identity, name string) (Info, Role, error)
	// Leave frees id's seat. The returned snapshot is empty when the session
	// was deleted because nobody is left.
	Leave(code string, id identity.Identity) (Info, Role, error)
	SetStatus(code string, status Status) error
	List() []Info
	// Update runs fn with exclusive access to the session. If fn leaves the
	// session without players, the session is deleted.
	Update(code string, fn func(*Session) error) (Info, error)
}

// Store is the optional write-through persistence used by Manager.
type Store interface {
	SaveSession(row storage.SessionRow) error
	DeleteSession(code string) error
	ListSessions(status string) ([]storage.SessionRow, error)
}

// Manager is the in-memory Registry. Lock order is session, then manager.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    Store
	writes   *writer
	onRemove func(code string)
	now      func() time.Time
}

// NewManager creates a session manager. store may be nil. A manager with a
// store must be closed.
func NewManager(store Store) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		now:      time.Now,
	}
	if store != nil {
		m.writes = newWriter(store)
	}
	return m
}

// Flush waits until every session change so far has reached the store.
func (m *Manager) Flush() {
	if m.writes != nil {
		m.writes.flush()
	}
}

// Close writes out pending changes and stops the store writer.
func (m *Manager) Close() {
	if m.writes != nil {
		m.writes.close()
	}
}

// OnRemove registers a callback invoked after a session is deleted.
func (m *Manager) OnRemove(fn func(code string)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

// Create makes a new session with the creator as player1.
func (m *Manager) Create(id identity.Identity, name string) (Info, error) {
	if id.IsZero() {
		return Info{}, fmt.Errorf("create session: missing identity")
	}
	now := m.now()

	m.mu.Lock()
	code := generateCode()
	for _, exists := m.sessions[code]; exists; _, exists = m.sessions[code] {
		code = generateCode()
	}
	s := newSession(code, id, name, now)
	s.mu.Lock()
	m.sessions[code] = s
	m.mu.Unlock()
	defer s.mu.Unlock()

	m.persist(s)
	logging.Debugf("session %s created by %s", code, id)
	return s.Info(), nil
}

func (m *Manager) lookup(code string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[NormalizeCode(code)]
	return s, ok
}

// Get returns a snapshot of a session.
func (m *Manager) Get(code string) (Info, error) {
	s, ok := m.lookup(code)
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removed {
		return Info{}, ErrSessionNotFound
	}
	return s.Info(), nil
}

// Update runs fn under the session lock.
func (m *Manager) Update(code string, fn func(*Session) error) (Info, error) {
	s, ok := m.lookup(code)
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	s.mu.Lock()
	if s.removed {
		s.mu.Unlock()
		return Info{}, ErrSessionNotFound
	}
	before := s.Info()
	if err := fn(s); err != nil {
		s.mu.Unlock()
		return Info{}, err
	}
	after := s.Info()
	removed := false
	if s.Empty() {
		m.removeLocked(s)
		removed = true
	} else if lifecycleChanged(before, after) {
		m.persist(s)
	}
	s.mu.Unlock()

	if removed {
		m.notifyRemoved(after.Code)
	}
	return after, nil
}

// Join binds id to a seat in the session.
func (m *Manager) Join(code string, id identity.Identity, name string) (Info, Role, error) {
	var role Role
	info, err := m.Update(code, func(s *Session) error {
		r, err := s.Join(id, name, m.now())
		role = r
		return err
	})
	if err != nil {
		return Info{}, "", err
	}
	return info, role, nil
}

// Leave frees id's seat, deleting the session when it becomes empty.
func (m *Manager) Leave(code string, id identity.Identity) (Info, Role, error) {
	var role Role
	info, err := m.Update(code, func(s *Session) error {
		r, err := s.Leave(id, m.now())
		role = r
		return err
	})
	if err != nil {
		return Info{}, "", err
	}
	return info, role, nil
}

// SetStatus changes a session's status.
func (m *Manager) SetStatus(code string, status Status) error {
	_, err := m.Update(code, func(s *Session) error {
		s.SetStatus(status, m.now())
		return nil
	})
	return err
}

// List returns snapshots of all live sessions, newest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		if !s.removed {
			infos = append(infos, s.Info())
		}
		s.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos
}

// Restore loads unfinished sessions from the store on startup. Matches do
// not survive a restart, so playing sessions come back as waiting.
func (m *Manager) Restore() error {
	if m.store == nil {
		return nil
	}
	rows, err := m.store.ListSessions("")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, row := range rows {
		if row.Status == string(StatusFinished) {
			continue
		}
		s := &Session{
			Code:      row.Code,
			Player1:   slotFromRow(row.Player1),
			Player2:   slotFromRow(row.Player2),
			Status:    StatusWaiting,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
		if s.Empty() {
			log.Printf("skipping session %s: no players", row.Code)
			continue
		}
		m.mu.Lock()
		m.sessions[row.Code] = s
		m.mu.Unlock()
	}
	return nil
}

// CleanupLoop removes stale sessions periodically until ctx is done.
func (m *Manager) CleanupLoop(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup(maxAge)
		}
	}
}

// cleanup removes sessions that are not mid-match and have been idle for
// longer than maxAge.
func (m *Manager) cleanup(maxAge time.Duration) {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	now := m.now()
	for _, s := range all {
		s.mu.Lock()
		stale := !s.removed && s.Status != StatusPlaying && now.Sub(s.UpdatedAt) > maxAge
		if stale {
			log.Printf("cleaning up session %s", s.Code)
			m.removeLocked(s)
		}
		code := s.Code
		s.mu.Unlock()
		if stale {
			m.notifyRemoved(code)
		}
	}
}

// removeLocked deletes s from memory and queues its deletion from storage.
// The caller holds s.mu.
func (m *Manager) removeLocked(s *Session) {
	s.removed = true
	m.mu.Lock()
	delete(m.sessions, s.Code)
	m.mu.Unlock()
	if m.writes != nil {
		m.writes.enqueue(storeOp{delete: s.Code})
	}
}

func (m *Manager) notifyRemoved(code string) {
	m.mu.RLock()
	fn := m.onRemove
	m.mu.RUnlock()
	if fn != nil {
		fn(code)
	}
}

// persist queues a snapshot of s for the store. The caller holds s.mu, which
// keeps snapshots of one session in order.
func (m *Manager) persist(s *Session) {
	if m.writes != nil {
		m.writes.enqueue(storeOp{row: rowFromSession(s)})
	}
}

func lifecycleChanged(a, b Info) bool {
	return a.Status != b.Status ||
		!sameSlot(a.Player1, b.Player1) ||
		!sameSlot(a.Player2, b.Player2)
}

func sameSlot(a, b *Slot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func rowFromSession(s *Session) storage.SessionRow {
	return storage.SessionRow{
		Code:      s.Code,
		Player1:   rowFromSlot(s.Player1),
		Player2:   rowFromSlot(s.Player2),
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		StartedAt: s.StartedAt,
	}
}

func rowFromSlot(sl *Slot) storage.SeatRow {
	if sl == nil {
		return storage.SeatRow{}
	}
	return storage.SeatRow{ID: sl.Identity.ID(), Guest: sl.Identity.IsGuest(), Name: sl.Name}
}

func slotFromRow(r storage.SeatRow) *Slot {
	if r.ID == "" {
		return nil
	}
	id := identity.Registered(r.ID)
	if r.Guest {
		id = identity.Guest(r.ID)
	}
	return &Slot{Identity: id, Name: r.Name}
}

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NormalizeCode canonicalizes a user-typed session code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func generateCode() string {
	b := make([]byte, codeLength)
	rand.Read(b)
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}
