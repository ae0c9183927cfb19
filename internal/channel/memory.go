package channel

import (
	"context"
	"sort"
	"sync"

	"whiteboard/internal/event"
)

// Hub is an in-process broker for named channels
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[string]*Memory
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[string]*Memory)}
}

// Channel returns a new, unsubscribed handle on the named channel
func (h *Hub) Channel(name string) *Memory {
	return &Memory{hub: h, name: name}
}

// Memory is a Channel backed by a Hub. Delivery is synchronous on the
// publisher's goroutine.
type Memory struct {
	handlers

	hub  *Hub
	name string

	mu   sync.RWMutex
	self *event.Member
}

var _ Channel = (*Memory)(nil)

// Subscribe joins the channel and pushes the new roster to every member
func (m *Memory) Subscribe(_ context.Context, self event.Member) error {
	m.mu.Lock()
	if m.self != nil {
		m.mu.Unlock()
		return ErrAlreadySubscribed
	}
	m.self = &self
	m.mu.Unlock()

	m.hub.mu.Lock()
	room, ok := m.hub.rooms[m.name]
	if !ok {
		room = make(map[string]*Memory)
		m.hub.rooms[m.name] = room
	}
	room[self.ID] = m
	m.hub.mu.Unlock()

	m.hub.syncPresence(m.name)
	return nil
}

// Publish delivers the payload to every other subscriber
func (m *Memory) Publish(_ context.Context, kind event.Kind, payload any) error {
	self, ok := m.member()
	if !ok {
		return ErrNotSubscribed
	}

	msg, err := event.NewMessage(kind, self.ID, payload)
	if err != nil {
		return err
	}

	for _, peer := range m.hub.peers(m.name) {
		if peer == m {
			continue
		}
		peer.emitMessage(msg)
	}
	return nil
}

// Unsubscribe leaves the channel
func (m *Memory) Unsubscribe(_ context.Context) error {
	m.mu.Lock()
	self := m.self
	m.self = nil
	m.mu.Unlock()

	if self == nil {
		return ErrNotSubscribed
	}

	m.hub.mu.Lock()
	if room, ok := m.hub.rooms[m.name]; ok {
		delete(room, self.ID)
		if len(room) == 0 {
			delete(m.hub.rooms, m.name)
		}
	}
	m.hub.mu.Unlock()

	m.hub.syncPresence(m.name)
	return nil
}

func (m *Memory) member() (event.Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.self == nil {
		return event.Member{}, false
	}
	return *m.self, true
}

// peers returns a snapshot of the channel's subscribers
func (h *Hub) peers(name string) []*Memory {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[name]
	out := make([]*Memory, 0, len(room))
	for _, m := range room {
		out = append(out, m)
	}
	return out
}

// syncPresence pushes the current roster to every subscriber
func (h *Hub) syncPresence(name string) {
	peers := h.peers(name)

	roster := make([]event.Member, 0, len(peers))
	for _, p := range peers {
		if self, ok := p.member(); ok {
			roster = append(roster, self)
		}
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })

	for _, p := range peers {
		snapshot := make([]event.Member, len(roster))
		copy(snapshot, roster)
		p.emitPresence(snapshot)
	}
}
