package contract

import (
	"context"
	"reflect"

	"chat-gateway/domain"
	"chat-gateway/domain/event"
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

// EventSink is the delivery handle of one connected session.
// Consume must never block past ctx; Close releases the handle and
// makes further Consume calls fail fast.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
	Close()
}

// IRegistry is the single source of truth for "who is online".
// Register replaces any previous entry for the same user and hands the
// evicted sink back so the caller can close it (last-connection-wins).
type IRegistry interface {
	Register(user domain.User, sink EventSink) (evicted EventSink, replaced bool)
	Unregister(userID int64)
	Release(userID int64, sink EventSink) bool
	Lookup(userID int64) (EventSink, bool)
	ListOnline(excluding *int64) []domain.UserSummary
	IsOnline(userID int64) bool
	Snapshot() []EventSink
}

// IVerifier resolves a bearer credential into a stable identity.
// Both the connection handshake and the HTTP surface call it identically.
type IVerifier interface {
	Verify(ctx context.Context, credential string) (domain.User, error)
}
