// Package server wraps the panel manager in an HTTP/WebSocket boundary,
// per spec §6. It is the only package that knows about wire transport;
// panelmgr, orchestrator, and sandbox never import it.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/panelkit/runtime/broadcast"
	"github.com/panelkit/runtime/panelmgr"
)

// defaultTopics are subscribed automatically on connect, per spec §4.6
// "Client subscription topics (default set on connect): state, events."
var defaultTopics = []string{"state", "events"}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsClient wraps one WebSocket connection scoped to a single panel,
// satisfying panelmgr.Client. Grounded on
// streamspace-dev-streamspace/api/internal/websocket/hub.go's Client
// (buffered send channel, read/write pump goroutines), narrowed from a
// hub-wide broadcast to a per-panel topic subscription.
type wsClient struct {
	id      string
	panelID string
	conn    *websocket.Conn
	send    chan []byte
	log     *zap.Logger
	policy  broadcast.Policy

	mu     sync.Mutex
	topics map[string]bool
}

func newWSClient(panelID string, conn *websocket.Conn, log *zap.Logger) *wsClient {
	send := make(chan []byte, wsSendBuffer)
	c := &wsClient{
		id:      uuid.NewString(),
		panelID: panelID,
		conn:    conn,
		send:    send,
		log:     log,
		topics:  make(map[string]bool),
	}
	c.policy = broadcast.NewChannelPolicy(send, broadcast.BufferedConfig{EnqueueTimeout: 2 * time.Second})
	for _, t := range defaultTopics {
		c.topics[t] = true
	}
	return c
}

func (c *wsClient) ID() string { return c.id }

// Send implements panelmgr.Client: encodes payload as {type, ...payload}
// and hands it to the client's broadcast.Policy, which decides whether
// to drop it under backpressure based on message kind (state patches
// and events may be dropped; trigger results and errors may not).
func (c *wsClient) Send(messageType string, payload any) {
	frame, err := encodeFrame(messageType, payload)
	if err != nil {
		c.log.Error("encode ws frame", zap.Error(err), zap.String("type", messageType))
		return
	}
	kind := broadcast.KindForMessageType(messageType)
	if err := c.policy.Deliver(c.id, kind, frame); err != nil {
		c.log.Warn("ws frame delivery failed", zap.Error(err), zap.String("clientId", c.id), zap.String("type", messageType))
	}
}

func (c *wsClient) HasTopic(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.topics[topic]
}

func (c *wsClient) setTopics(topics []string, subscribe bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if subscribe {
			c.topics[t] = true
		} else {
			delete(c.topics, t)
		}
	}
}

func encodeFrame(messageType string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var merged map[string]json.RawMessage
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &merged); err != nil {
			return nil, err
		}
	} else {
		merged = map[string]json.RawMessage{}
	}
	typeJSON, _ := json.Marshal(messageType)
	merged["type"] = typeJSON
	return json.Marshal(merged)
}

// clientMessage is the client→server envelope, per spec §6.2.
type clientMessage struct {
	Type      string   `json:"type"`
	Tool      string   `json:"tool,omitempty"`
	Args      []any    `json:"args,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
	Topics    []string `json:"topics,omitempty"`
}

// ServeWS upgrades r to a WebSocket connection bound to panelID, per
// spec §6.2 "Path /panels/:id/ws". On connect, sends
// {type:"CONNECTED", panelId, state}, then handles TRIGGER/SUBSCRIBE/
// UNSUBSCRIBE/PING until the connection closes.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request, panelID string) {
	p, err := s.panels.Get(panelID)
	if err != nil {
		http.Error(w, "panel not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	client := newWSClient(panelID, conn, s.log)
	if err := s.panels.AddClient(panelID, client); err != nil {
		conn.Close()
		return
	}
	s.metrics.IncWSClientConnected()

	client.Send("CONNECTED", map[string]any{"panelId": panelID, "state": p.State.Snapshot()})

	go client.writePump()
	client.readPump(s)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump(s *Server) {
	defer func() {
		s.panels.RemoveClient(c.panelID, c.id)
		c.policy.Close()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.Send("ERROR", map[string]any{"code": "INVALID_HANDLER", "message": "malformed message"})
			continue
		}
		c.handle(s, msg)
	}
}

// handle dispatches one client→server message, per spec §6.2.
func (c *wsClient) handle(s *Server, msg clientMessage) {
	switch msg.Type {
	case "TRIGGER":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		result, err := s.panels.Trigger(ctx, c.panelID, msg.Tool, msg.Args)
		if err != nil {
			c.Send("ERROR", map[string]any{"code": "METHOD_NOT_FOUND", "message": err.Error(), "requestId": msg.RequestID})
			return
		}
		c.Send("RESULT", map[string]any{"requestId": msg.RequestID, "result": result})
	case "SUBSCRIBE":
		c.setTopics(msg.Topics, true)
	case "UNSUBSCRIBE":
		c.setTopics(msg.Topics, false)
	case "PING":
		c.Send("PONG", map[string]any{})
	default:
		c.Send("ERROR", map[string]any{"code": "INVALID_HANDLER", "message": "unknown message type " + msg.Type})
	}
}
