package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"parley/contract"
	"parley/domain/event"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler receives connection lifecycle callbacks. The connection
// supervisor implements it.
type Handler interface {
	HandleConnect(ctx context.Context, c contract.Conn, credential string)
	HandleEvent(c contract.Conn, env event.Envelope)
	HandleDisconnect(c contract.Conn)
}

// Hub tracks every open websocket connection and the topic-scoped
// broadcast groups. It implements contract.Transport.
type Hub struct {
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	conns   map[string]*Conn
	groups  map[string]map[string]*Conn
	handler Handler
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		conns:  make(map[string]*Conn),
		groups: make(map[string]map[string]*Conn),
	}
}

// SetHandler wires the connection supervisor in after construction; the
// supervisor itself needs the hub as its Transport.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// ServeWS upgrades an HTTP request to a websocket connection and runs its
// read loop. The credential rides in the "token" query parameter or an
// Authorization bearer header; admission itself is the handler's call.
func (h *Hub) ServeWS(c *gin.Context) {
	credential := c.Query("token")
	if credential == "" {
		credential = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn := NewConn(uuid.NewString(), socket)
	go h.readLoop(conn, credential)
}

func (h *Hub) readLoop(conn *Conn, credential string) {
	defer func() {
		h.remove(conn)
		h.handler.HandleDisconnect(conn)
		_ = conn.Close()
	}()

	h.handler.HandleConnect(context.Background(), conn, credential)
	if conn.IsClosed() {
		// Admission was refused; silent termination, nothing to read.
		return
	}

	// Only admitted connections join the broadcast set. A socket still in
	// credential validation or eviction grace must not see room traffic.
	h.add(conn)

	for {
		_, payload, err := conn.socket.ReadMessage()
		if err != nil {
			h.log.Debug(fmt.Sprintf("Connection %s read loop ended: %v", conn.ID(), err))
			return
		}

		var env event.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			h.log.Debug("dropping malformed frame", "conn_id", conn.ID(), "error", err)
			continue
		}
		h.handler.HandleEvent(conn, env)
	}
}

func (h *Hub) add(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID()] = conn
}

// remove forgets the connection and its group memberships. Empty groups
// are dropped entirely to prevent memory leaks over time.
func (h *Hub) remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns, conn.ID())
	for group, members := range h.groups {
		delete(members, conn.ID())
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Broadcast delivers an event to every open connection.
func (h *Hub) Broadcast(name string, data any) {
	for _, conn := range h.snapshot() {
		if err := conn.Send(name, data); err != nil {
			h.log.Debug("broadcast delivery failed", "conn_id", conn.ID(), "event", name, "error", err)
		}
	}
}

// BroadcastExcept delivers an event to everyone but one connection,
// used to relay typing indicators without echoing them to the typist.
func (h *Hub) BroadcastExcept(exceptConnID, name string, data any) {
	for _, conn := range h.snapshot() {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.Send(name, data); err != nil {
			h.log.Debug("broadcast delivery failed", "conn_id", conn.ID(), "event", name, "error", err)
		}
	}
}

// BroadcastToGroup delivers an event to every member of one group.
func (h *Hub) BroadcastToGroup(group, name string, data any) {
	h.mu.RLock()
	members := make([]*Conn, 0, len(h.groups[group]))
	for _, conn := range h.groups[group] {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(name, data); err != nil {
			h.log.Debug("group delivery failed", "group", group, "conn_id", conn.ID(), "error", err)
		}
	}
}

// Join adds a connection to a topic-scoped broadcast group, creating the
// group on the fly.
func (h *Hub) Join(group string, c contract.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[c.ID()]
	if !ok {
		return
	}
	if _, ok := h.groups[group]; !ok {
		h.groups[group] = make(map[string]*Conn)
	}
	h.groups[group][conn.ID()] = conn
}

// Leave removes a connection from a group. Idempotent.
func (h *Hub) Leave(group string, c contract.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, c.ID())
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// snapshot copies the connection set so delivery happens outside the lock.
func (h *Hub) snapshot() []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	return conns
}
