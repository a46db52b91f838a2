package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"nhooyr.io/websocket"

	"tetrisduel/internal/game"
	"tetrisduel/internal/logging"
	"tetrisduel/internal/session"
)

// WSMessage is the JSON envelope for WebSocket messages.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound message types.
const (
	msgJoin  = "join"
	msgStart = "start"
	msgMove  = "move"
	msgChat  = "chat"
	msgLeave = "leave"
)

type joinPayload struct {
	Token      string `json:"token"`
	GuestToken string `json:"guestToken" validate:"omitempty,max=64"`
	Name       string `json:"name" validate:"omitempty,max=32"`
}

type movePayload struct {
	Move string `json:"move" validate:"required"`
}

type chatPayload struct {
	Text string `json:"text"`
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := s.sessions.Get(code); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // allow any origin for dev
	})
	if err != nil {
		log.Printf("websocket accept: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ctx := r.Context()

	// First message must be a join
	_, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != msgJoin {
		sendWSError(ctx, conn, fmt.Errorf("%w: first message must be a join", errBadRequest))
		return
	}
	var join joinPayload
	if err := s.decodePayload(msg.Payload, &join); err != nil {
		sendWSError(ctx, conn, err)
		return
	}
	cl, err := s.resolve(ctx, join.Token, join.GuestToken, join.Name)
	if err != nil {
		sendWSError(ctx, conn, err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Attach before joining so no event published after the join is missed.
	c := &client{
		conn: Connection{Identity: cl.id, Name: cl.name, Code: session.NormalizeCode(code)},
		send: make(chan []byte, sendBuffer),
		kick: cancel,
	}
	s.hub.attach(c)
	defer s.hub.detach(c)

	res, err := s.coord.Join(code, cl.id, cl.name)
	if err != nil {
		sendWSError(ctx, conn, err)
		return
	}
	c.conn.Role = res.Role

	c.sendEvent(res.Info())
	if res.Game != nil {
		c.sendEvent(*res.Game)
	}
	log.Printf("%s connected to session %s as %s", cl.name, c.conn.Code, c.conn.Role)

	// Writer goroutine: send messages from the channel to the websocket
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-c.send:
				if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	// Reader loop: handle incoming messages
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendEvent(errorEvent(fmt.Errorf("%w: invalid message", errBadRequest)))
			continue
		}
		if done := s.handleMessage(c, msg); done {
			break
		}
	}

	// A dropped connection keeps its seat so the player can reconnect.
	log.Printf("%s disconnected from session %s", cl.name, c.conn.Code)
}

// handleMessage dispatches one inbound message. It reports whether the
// connection should be closed.
func (s *Server) handleMessage(c *client, msg WSMessage) bool {
	cn := c.conn
	var err error
	switch msg.Type {
	case msgStart:
		_, err = s.coord.Start(cn.Code, cn.Identity)

	case msgMove:
		var mp movePayload
		if err = s.decodePayload(msg.Payload, &mp); err == nil {
			err = s.coord.Move(cn.Code, cn.Identity, mp.Move)
		}

	case msgChat:
		var cp chatPayload
		if err = s.decodePayload(msg.Payload, &cp); err == nil {
			_, err = s.coord.Chat(cn.Code, cn.Identity, cp.Text)
		}

	case msgLeave:
		if err = s.coord.Leave(cn.Code, cn.Identity); err == nil {
			logging.Debugf("%s left %s", cn.Identity, cn.Code)
			return true
		}

	default:
		err = fmt.Errorf("%w: unknown message type %q", errBadRequest, msg.Type)
	}
	if err != nil {
		logging.Debugf("%s %s rejected: %v", cn.Identity, msg.Type, err)
		c.sendEvent(errorEvent(err))
	}
	return false
}

// decodePayload unmarshals and validates a message payload. An absent
// payload decodes as the zero value.
func (s *Server) decodePayload(raw json.RawMessage, v any) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("%w: malformed payload", errBadRequest)
		}
	}
	return s.validate.Struct(v)
}

func sendWSError(ctx context.Context, conn *websocket.Conn, err error) {
	msg, _ := encode(game.TypeError, errorEvent(err))
	conn.Write(ctx, websocket.MessageText, msg)
}
