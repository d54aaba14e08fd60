//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
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

// EventSink is one subscriber's delivery endpoint. Consume must never
// block: a sink that cannot keep up returns an error and the broadcaster
// handles its eviction.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry owns the ConnectionID <-> (UserID, rooms) mapping for every
// live connection.
type IRegistry interface {
	Register(connID domain.ConnectionID, userID domain.UserID, sink EventSink) error
	Deregister(connID domain.ConnectionID) []domain.RoomID
	ResolveUser(connID domain.ConnectionID) (domain.UserID, error)
	Subscriptions(connID domain.ConnectionID) []domain.RoomID
	AddSubscription(connID domain.ConnectionID, roomID domain.RoomID) (added bool, err error)
	RemoveSubscription(connID domain.ConnectionID, roomID domain.RoomID) bool
	Sink(connID domain.ConnectionID) (EventSink, bool)
}

// IBroadcaster owns the room -> connection fan-out sets.
type IBroadcaster interface {
	Subscribe(roomID domain.RoomID, connID domain.ConnectionID)
	Unsubscribe(roomID domain.RoomID, connID domain.ConnectionID)
	Broadcast(ctx context.Context, roomID domain.RoomID, e event.DomainEvent, exclude domain.ConnectionID)
	Subscribers(roomID domain.RoomID) []domain.ConnectionID
}

// ICoordinator is the per-connection state machine gating every
// client-initiated action. The transport layer only ever talks to this.
type ICoordinator interface {
	Connect(connID domain.ConnectionID, userID domain.UserID, sink EventSink) error
	Disconnect(ctx context.Context, connID domain.ConnectionID)
	Join(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID) error
	Leave(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID) error
	Send(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID, content string) (domain.Message, error)
	Typing(ctx context.Context, connID domain.ConnectionID, roomID domain.RoomID, isTyping bool) error
}
