//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Conn is the opaque handle into the transport layer. The presence
// registry holds one per online identity but never assumes the handle
// still denotes an open connection; the transport owns that truth.
type Conn interface {
	ID() string
	Send(name string, data any) error
	Close() error
}

// Transport is the delivery surface consumed by the connection
// supervisor and the moderation broker. Closes are one-way signals with
// no acknowledgement; callers proceed optimistically.
type Transport interface {
	Broadcast(name string, data any)
	BroadcastExcept(exceptConnID, name string, data any)
	BroadcastToGroup(group, name string, data any)
	Join(group string, c Conn)
	Leave(group string, c Conn)
}

// IRegistry is the presence registry: the single source of truth for who
// is online right now. Explicitly injected so tests can build isolated
// instances instead of mutating process-wide state.
type IRegistry interface {
	Register(userID, displayName string, c Conn) error
	Unregister(userID string)
	UnregisterConn(userID string, c Conn) bool
	Lookup(userID string) (Conn, bool)
	DisplayNames() []string
}
