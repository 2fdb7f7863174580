package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/steward-platform/apiserver/internal/apperr"
	"github.com/steward-platform/apiserver/internal/policy"
	"github.com/steward-platform/apiserver/types"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 << 10
	defaultQueueSize = 64
	authorizeTimeout = 5 * time.Second
)

// Events emitted by the server only.
const (
	EventRoomJoined = "room:joined"
	EventError      = "error"
)

// Conn is one websocket client. Outbound frames go through a bounded queue
// drained by a single writer, so per-connection order is preserved.
type Conn struct {
	id    string
	actor policy.Actor
	ws    *websocket.Conn
	send  chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, actor policy.Actor, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Conn{
		id:    uuid.NewString(),
		actor: actor,
		ws:    ws,
		send:  make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// ID returns the connection id used to exclude a sender from its own events.
func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Authorizer loads an account and applies an access check to it.
type Authorizer interface {
	Authorize(ctx context.Context, id int, check func(policy.AccountRef) bool) (types.ManagedAccount, error)
}

// Server upgrades HTTP requests to websocket connections and routes client
// events through the hub.
type Server struct {
	hub       *Hub
	accounts  Authorizer
	upgrader  websocket.Upgrader
	queueSize int
	logger    *slog.Logger
}

// NewServer constructs a Server. Any origin is accepted; the bearer token is
// the access control.
func NewServer(hub *Hub, accounts Authorizer, logger *slog.Logger) *Server {
	return &Server{
		hub:      hub,
		accounts: accounts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize: defaultQueueSize,
		logger:    logger,
	}
}

// Serve upgrades the request and blocks until the client disconnects.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, actor policy.Actor) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "user_id", actor.ID, "error", err)
		return
	}
	c := newConn(ws, actor, s.queueSize)
	s.logger.Info("user connected", "conn_id", c.id, "user_id", actor.ID)

	go s.writePump(c)
	s.readPump(r.Context(), c)

	s.hub.Leave(c)
	c.close()
	s.logger.Info("user disconnected", "conn_id", c.id, "user_id", actor.ID)
}

func (s *Server) readPump(ctx context.Context, c *Conn) {
	defer c.ws.Close()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.reply(c, EventError, errorPayload{Message: "Malformed event"})
			continue
		}
		if err := s.route(ctx, c, frame); err != nil {
			s.reply(c, EventError, errorPayload{Event: frame.Event, Message: apperr.PublicMessage(err, false)})
		}
	}
}

func (s *Server) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type roomPayload struct {
	AccountID int `json:"accountId"`
}

type typingPayload struct {
	UserID    int  `json:"userId"`
	AccountID int  `json:"accountId"`
	IsTyping  bool `json:"isTyping"`
}

type readPayload struct {
	MessageID json.RawMessage `json:"messageId"`
	AccountID int             `json:"accountId"`
	UserID    int             `json:"userId"`
}

var errNotInRoom = apperr.Forbidden("Join the account room first")

func (s *Server) route(ctx context.Context, c *Conn, frame Frame) error {
	switch frame.Event {
	case types.EventJoinRoom:
		accountID, err := joinTarget(frame.Data)
		if err != nil {
			return err
		}
		return s.join(ctx, c, accountID)

	case types.EventMessageSend:
		room, err := s.room(c, frame.Data)
		if err != nil {
			return err
		}
		s.hub.Publish(room, types.EventMessageReceived, frame.Data, "")

	case types.EventUserTyping:
		var in typingPayload
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			return apperr.Validation("Malformed event data")
		}
		if !s.hub.InRoom(c, in.AccountID) {
			return errNotInRoom
		}
		in.UserID = c.actor.ID
		s.hub.Publish(in.AccountID, types.EventUserTyping, in, c.id)

	case types.EventMessageRead:
		var in readPayload
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			return apperr.Validation("Malformed event data")
		}
		if !s.hub.InRoom(c, in.AccountID) {
			return errNotInRoom
		}
		in.UserID = c.actor.ID
		s.hub.Publish(in.AccountID, types.EventMessageRead, in, c.id)

	case types.EventTaskUpdated, types.EventAccountStatusChange:
		room, err := s.room(c, frame.Data)
		if err != nil {
			return err
		}
		s.hub.Publish(room, frame.Event, frame.Data, "")

	default:
		return apperr.Validation("Unknown event %q", frame.Event)
	}
	return nil
}

func (s *Server) join(ctx context.Context, c *Conn, accountID int) error {
	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()
	_, err := s.accounts.Authorize(ctx, accountID, func(ref policy.AccountRef) bool {
		return policy.CanJoinRoom(c.actor, ref)
	})
	if err != nil {
		s.logger.Warn("room join rejected", "conn_id", c.id, "user_id", c.actor.ID, "account_id", accountID, "error", err)
		return err
	}
	s.hub.Join(c, accountID)
	s.logger.Info("joined room", "conn_id", c.id, "account_id", accountID)
	s.reply(c, EventRoomJoined, roomPayload{AccountID: accountID})
	return nil
}

// room returns the account a client event targets, which the sender must
// have joined.
func (s *Server) room(c *Conn, data json.RawMessage) (int, error) {
	var in roomPayload
	if err := json.Unmarshal(data, &in); err != nil {
		return 0, apperr.Validation("Malformed event data")
	}
	if !s.hub.InRoom(c, in.AccountID) {
		return 0, errNotInRoom
	}
	return in.AccountID, nil
}

func (s *Server) reply(c *Conn, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	if !c.enqueue(frame) {
		s.logger.Debug("dropped reply", "conn_id", c.id, "event", event)
	}
}

// joinTarget accepts a bare account id, a numeric string or {"accountId": n}.
func joinTarget(data json.RawMessage) (int, error) {
	data = bytes.TrimSpace(data)
	var id int
	if err := json.Unmarshal(data, &id); err == nil {
		if id <= 0 {
			return 0, apperr.Validation("Invalid account id")
		}
		return id, nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		id, err := strconv.Atoi(text)
		if err != nil || id <= 0 {
			return 0, apperr.Validation("Invalid account id")
		}
		return id, nil
	}
	var in roomPayload
	if err := json.Unmarshal(data, &in); err != nil || in.AccountID <= 0 {
		return 0, apperr.Validation("Invalid account id")
	}
	return in.AccountID, nil
}
