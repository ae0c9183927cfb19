// Package channel provides the realtime publish/subscribe transports the
// whiteboard session runs over.
//
// Every implementation delivers a publish to all other subscribers of the
// same named channel and pushes a full roster snapshot to every subscriber
// whenever membership changes. Delivery order and reliability are whatever
// the underlying transport gives; nothing here retries or resequences.
package channel

import (
	"context"
	"errors"
	"sync"

	"whiteboard/internal/event"
)

var (
	// ErrNotSubscribed is returned by Publish before Subscribe succeeds or after Unsubscribe
	ErrNotSubscribed = errors.New("channel: not subscribed")

	// ErrAlreadySubscribed is returned by a second Subscribe
	ErrAlreadySubscribed = errors.New("channel: already subscribed")

	// ErrBackpressure is returned when the outgoing buffer is full and the message was dropped
	ErrBackpressure = errors.New("channel: send buffer full")
)

// MessageHandler receives one inbound message
type MessageHandler func(event.Message)

// PresenceHandler receives the full roster
type PresenceHandler func([]event.Member)

// Channel is one named realtime channel
type Channel interface {
	Subscribe(ctx context.Context, self event.Member) error
	Publish(ctx context.Context, kind event.Kind, payload any) error
	OnMessage(fn MessageHandler)
	OnPresence(fn PresenceHandler)
	Unsubscribe(ctx context.Context) error
}

// handlers is the callback registry shared by the implementations
type handlers struct {
	mu         sync.RWMutex
	onMessage  MessageHandler
	onPresence PresenceHandler
}

func (h *handlers) OnMessage(fn MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onMessage = fn
}

func (h *handlers) OnPresence(fn PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPresence = fn
}

func (h *handlers) emitMessage(msg event.Message) {
	h.mu.RLock()
	fn := h.onMessage
	h.mu.RUnlock()

	if fn != nil {
		fn(msg)
	}
}

func (h *handlers) emitPresence(members []event.Member) {
	h.mu.RLock()
	fn := h.onPresence
	h.mu.RUnlock()

	if fn != nil {
		fn(members)
	}
}
