package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"tetrisduel/internal/game"
	"tetrisduel/internal/identity"
	"tetrisduel/internal/session"
	"tetrisduel/internal/storage"
)

const maxLeaderboard = 100

// Server is the HTTP and WebSocket gateway.
type Server struct {
	mux      *http.ServeMux
	sessions session.Registry
	coord    *game.Coordinator
	hub      *Hub
	verifier identity.Verifier
	scores   storage.ScoreStore
	validate *validator.Validate
}

// New creates a server with all routes. scores may be nil, which disables
// the leaderboard.
func New(sessions session.Registry, coord *game.Coordinator, hub *Hub, verifier identity.Verifier, scores storage.ScoreStore) *Server {
	if verifier == nil {
		verifier = identity.GuestOnly{}
	}
	s := &Server{
		mux:      http.NewServeMux(),
		sessions: sessions,
		coord:    coord,
		hub:      hub,
		verifier: verifier,
		scores:   scores,
		validate: validator.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	s.mux.HandleFunc("GET /api/sessions/{code}", s.handleGetSession)
	s.mux.HandleFunc("POST /api/sessions/{code}/join", s.handleJoinSession)
	s.mux.HandleFunc("POST /api/sessions/{code}/start", s.handleStartSession)
	s.mux.HandleFunc("POST /api/sessions/{code}/leave", s.handleLeaveSession)
	s.mux.HandleFunc("GET /api/sessions/{code}/ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /api/leaderboard", s.handleLeaderboard)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// playerRequest identifies the caller. A bearer token takes precedence over
// GuestToken.
type playerRequest struct {
	Name       string `json:"name" validate:"omitempty,max=32"`
	GuestToken string `json:"guestToken" validate:"omitempty,max=64"`
}

// sessionResponse is only sent to the caller it describes, so it may carry
// the guest token.
type sessionResponse struct {
	Code       string            `json:"code"`
	Role       session.Role      `json:"role"`
	Identity   identity.Identity `json:"identity"`
	GuestToken string            `json:"guestToken,omitempty"`
	Name       string            `json:"name"`
	Session    session.Info      `json:"session"`
}

// caller is a resolved request identity. guestToken is set for guests.
type caller struct {
	id         identity.Identity
	name       string
	guestToken string
}

// decodePlayer reads an optional JSON body and resolves the caller.
func (s *Server) decodePlayer(r *http.Request) (caller, error) {
	var req playerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return caller{}, fmt.Errorf("%w: body is not valid JSON", errBadRequest)
	}
	if err := s.validate.Struct(req); err != nil {
		return caller{}, err
	}
	return s.resolve(r.Context(), bearerToken(r), req.GuestToken, req.Name)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// resolve turns the caller's credentials into an identity and display name.
// Without a bearer token the caller is a guest, identified by guestToken or
// by a freshly issued one.
func (s *Server) resolve(ctx context.Context, token, guestToken, name string) (caller, error) {
	name = strings.TrimSpace(name)
	if token != "" {
		claims, err := s.verifier.Verify(ctx, token)
		if err != nil {
			return caller{}, err
		}
		if name == "" {
			name, _, _ = strings.Cut(claims.Email, "@")
		}
		if name == "" {
			name = "Player"
		}
		return caller{id: claims.Identity, name: name}, nil
	}

	if guestToken = strings.TrimSpace(guestToken); guestToken == "" {
		guestToken = identity.NewGuestToken()
	}
	if name == "" {
		name = fmt.Sprintf("Guest%04d", rand.IntN(10000))
	}
	return caller{id: identity.GuestFromToken(guestToken), name: name, guestToken: guestToken}, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	cl, err := s.decodePlayer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.coord.Create(cl.id, cl.name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{
		Code:       info.Code,
		Role:       session.RolePlayer1,
		Identity:   cl.id,
		GuestToken: cl.guestToken,
		Name:       cl.name,
		Session:    info,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.sessions.Get(r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleJoinSession(w http.ResponseWriter, r *http.Request) {
	cl, err := s.decodePlayer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.coord.Join(r.PathValue("code"), cl.id, cl.name)
	if err != nil {
		writeError(w, err)
		return
	}
	slot := res.Session.Player1
	if res.Role == session.RolePlayer2 {
		slot = res.Session.Player2
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Code:       res.Session.Code,
		Role:       res.Role,
		Identity:   cl.id,
		GuestToken: cl.guestToken,
		Name:       slot.Name,
		Session:    res.Session,
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	cl, err := s.decodePlayer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	started, err := s.coord.Start(r.PathValue("code"), cl.id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, started)
}

func (s *Server) handleLeaveSession(w http.ResponseWriter, r *http.Request) {
	cl, err := s.decodePlayer(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.coord.Leave(r.PathValue("code"), cl.id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

type leaderboardEntry struct {
	Rank int `json:"rank"`
	storage.Score
	DisplayScore string `json:"displayScore"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.scores == nil {
		writeJSON(w, http.StatusOK, []leaderboardEntry{})
		return
	}
	limit := maxLeaderboard
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			err = s.validate.Var(n, "gte=1")
		}
		if err != nil {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxLeaderboard)
	}

	top, err := s.scores.TopScores(r.Context(), limit)
	if err != nil {
		log.Printf("leaderboard: %v", err)
		writeError(w, err)
		return
	}
	entries := make([]leaderboardEntry, 0, len(top))
	for i, sc := range top {
		entries = append(entries, leaderboardEntry{
			Rank:         i + 1,
			Score:        sc,
			DisplayScore: humanize.Comma(int64(sc.Score)),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeError(w http.ResponseWriter, err error) {
	_, status := classify(err)
	writeJSON(w, status, errorEvent(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
