package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"tetrisduel/internal/game"
	"tetrisduel/internal/identity"
	"tetrisduel/internal/session"
	"tetrisduel/internal/storage"
	"tetrisduel/internal/tetris"
)

const testSecret = "test-secret"

// --- Test environment ---

type testEnv struct {
	ts       *httptest.Server
	mgr      *session.Manager
	hub      *Hub
	coord    *game.Coordinator
	store    *storage.Store
	verifier *identity.JWTVerifier
}

// onlyI always deals I pieces so boards are predictable.
type onlyI struct{}

func (onlyI) IntN(int) int { return 0 }

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return setupTestEnvWithDuration(t, time.Minute)
}

func setupTestEnvWithDuration(t *testing.T, d time.Duration) *testEnv {
	t.Helper()
	store, err := storage.New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := session.NewManager(store)
	t.Cleanup(mgr.Close)
	hub := NewHub()
	coord := game.NewCoordinator(mgr, hub, game.Options{
		MatchDuration: d,
		Scores:        store,
		NewRand:       func() tetris.Rand { return onlyI{} },
	})
	mgr.OnRemove(func(code string) {
		coord.Forget(code)
		hub.Forget(code)
	})
	verifier := identity.NewJWTVerifier(testSecret)

	srv := New(mgr, coord, hub, verifier, store)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(coord.Wait)

	return &testEnv{ts: ts, mgr: mgr, hub: hub, coord: coord, store: store, verifier: verifier}
}

func (e *testEnv) token(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := e.verifier.Issue(userID, email, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

// --- Context helpers ---

func timeoutCtx(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// --- REST API helpers ---

// postJSON sends body to path with an optional bearer token.
func postJSON(t *testing.T, ts *httptest.Server, path, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d", want, resp.StatusCode)
	}
}

func createSessionViaAPI(t *testing.T, ts *httptest.Server, guestToken, name string) sessionResponse {
	t.Helper()
	resp := postJSON(t, ts, "/api/sessions", "", playerRequest{GuestToken: guestToken, Name: name})
	expectStatus(t, resp, http.StatusCreated)
	return decodeBody[sessionResponse](t, resp)
}

func joinViaAPI(t *testing.T, ts *httptest.Server, code, guestToken, name string) sessionResponse {
	t.Helper()
	resp := postJSON(t, ts, "/api/sessions/"+code+"/join", "", playerRequest{GuestToken: guestToken, Name: name})
	expectStatus(t, resp, http.StatusOK)
	return decodeBody[sessionResponse](t, resp)
}

// --- WebSocket helpers ---

func wsURL(ts *httptest.Server, code string) string {
	return strings.Replace(ts.URL, "http://", "ws://", 1) + "/api/sessions/" + code + "/ws"
}

// wsConnect dials a WebSocket and sends a join message. The caller is
// responsible for closing the connection.
func wsConnect(t *testing.T, ts *httptest.Server, code string, join joinPayload) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx(t)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL(ts, code), nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	if err := sendWS(ctx, conn, msgJoin, join); err != nil {
		t.Fatalf("send join: %v", err)
	}
	return conn
}

// sendWS marshals and sends a typed WebSocket message.
func sendWS(ctx context.Context, conn *websocket.Conn, msgType string, payload any) error {
	msg, err := encode(msgType, payload)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, msg)
}

// readWS reads and unmarshals a single WebSocket message.
func readWS(ctx context.Context, conn *websocket.Conn) (WSMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return WSMessage{}, err
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return WSMessage{}, err
	}
	return msg, nil
}

// readUntil reads messages until one of the wanted type arrives and decodes
// its payload.
func readUntil[T any](t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) T {
	t.Helper()
	for {
		msg, err := readWS(ctx, conn)
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type != msgType {
			continue
		}
		var v T
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			t.Fatalf("unmarshal %s payload: %v", msgType, err)
		}
		return v
	}
}

// readError waits for an error message and returns its code.
func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	return readUntil[game.Error](t, ctx, conn, game.TypeError).Code
}

// lobby creates a session over REST for a guest player1 and connects both
// players over WebSocket. Both connections have consumed their
// session_info.
func lobby(t *testing.T, env *testEnv) (code string, p1, p2 *websocket.Conn) {
	t.Helper()
	created := createSessionViaAPI(t, env.ts, "g-alice", "alice")
	code = created.Code

	ctx, cancel := timeoutCtx(t)
	defer cancel()
	p1 = wsConnect(t, env.ts, code, joinPayload{GuestToken: "g-alice"})
	readUntil[game.SessionInfo](t, ctx, p1, game.TypeSessionInfo)
	p2 = wsConnect(t, env.ts, code, joinPayload{GuestToken: "g-bob", Name: "bob"})
	readUntil[game.SessionInfo](t, ctx, p2, game.TypeSessionInfo)
	t.Cleanup(func() {
		p1.Close(websocket.StatusNormalClosure, "")
		p2.Close(websocket.StatusNormalClosure, "")
	})
	return code, p1, p2
}
