package session

import (
	"context"
	"log/slog"

	"whiteboard/internal/idgen"
)

// Identity is who the local user is on the board
type Identity struct {
	UserID      string
	DisplayName string
}

// IdentityProvider resolves the local user before the channel is opened
type IdentityProvider interface {
	Identity(ctx context.Context) (Identity, error)
}

// StaticIdentity is a fixed identity. An empty UserID gets a fresh id on
// every call.
type StaticIdentity Identity

func (s StaticIdentity) Identity(context.Context) (Identity, error) {
	id := Identity(s)
	if id.UserID == "" {
		id.UserID = idgen.NewUserID()
	}
	return id, nil
}

// Notifier shows a message to the local user
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// LogNotifier reports through the default logger
type LogNotifier struct{}

func (LogNotifier) Notify(msg string) {
	slog.Error(msg)
}
