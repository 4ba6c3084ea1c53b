// Package transport owns the websocket side of the realtime channel:
// connection handles, the hub that tracks them, and targeted/broadcast
// delivery. It knows event envelopes but no chat semantics.
package transport

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"parley/domain/event"

	"github.com/gorilla/websocket"
)

// Conn wraps a gorilla websocket connection behind the contract.Conn
// interface. Writes are serialized with a mutex; gorilla allows at most
// one concurrent writer.
type Conn struct {
	id     string
	socket *websocket.Conn
	mu     sync.Mutex
	closed atomic.Bool
}

func NewConn(id string, socket *websocket.Conn) *Conn {
	return &Conn{id: id, socket: socket}
}

func (c *Conn) ID() string {
	return c.id
}

// Send marshals the payload into the wire envelope and pushes it to the
// client. Sending on a closed connection is an error the caller may ignore.
func (c *Conn) Send(name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("connection %s already closed", c.id)
	}
	return c.socket.WriteJSON(event.Envelope{Event: name, Data: raw})
}

// Close terminates the underlying websocket connection. Idempotent; the
// close is a one-way signal and the read loop notices on its own.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// IsClosed reports whether the connection has already been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}
