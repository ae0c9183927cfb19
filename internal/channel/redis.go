package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"whiteboard/internal/event"
)

func messagesKey(name string) string {
	return fmt.Sprintf("whiteboard:%s:messages", name)
}

func presenceKey(name string) string {
	return fmt.Sprintf("whiteboard:%s:presence", name)
}

func presenceEventsKey(name string) string {
	return fmt.Sprintf("whiteboard:%s:presence-events", name)
}

func memberKey(name, id string) string {
	return fmt.Sprintf("whiteboard:%s:member:%s", name, id)
}

// DefaultMemberTTL is how long a member survives in the roster without a
// heartbeat.
const DefaultMemberTTL = 30 * time.Second

// Redis is a Channel over Redis pub/sub. The roster lives in a hash keyed by
// member id; every join and leave publishes a notification on which each
// subscriber re-reads the hash.
//
// Each member also owns a liveness key that it refreshes on a heartbeat.
// Hash entries whose liveness key has expired belong to clients that went
// away without unsubscribing and are swept whenever the roster is read.
type Redis struct {
	handlers

	rdb       redis.UniversalClient
	name      string
	memberTTL time.Duration

	mu     sync.Mutex
	self   *event.Member
	pubsub *redis.PubSub
	stop   context.CancelFunc
	wg     sync.WaitGroup
}

var _ Channel = (*Redis)(nil)

// RedisOption configures a Redis channel
type RedisOption func(*Redis)

// WithMemberTTL sets the liveness window of a member. The heartbeat runs at a
// third of it.
func WithMemberTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.memberTTL = ttl
		}
	}
}

// NewRedis creates a channel handle for name on rdb
func NewRedis(rdb redis.UniversalClient, name string, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, name: name, memberTTL: DefaultMemberTTL}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers self in the roster and starts receiving messages
func (r *Redis) Subscribe(ctx context.Context, self event.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.self != nil {
		return ErrAlreadySubscribed
	}

	pubsub := r.rdb.Subscribe(ctx, messagesKey(r.name), presenceEventsKey(r.name))
	// wait for the subscription to be confirmed before announcing ourselves
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", r.name, err)
	}

	member, err := json.Marshal(self)
	if err != nil {
		pubsub.Close()
		return fmt.Errorf("marshal member: %w", err)
	}
	if err := r.rdb.Set(ctx, memberKey(r.name, self.ID), 1, r.memberTTL).Err(); err != nil {
		pubsub.Close()
		return fmt.Errorf("register liveness: %w", err)
	}
	if err := r.rdb.HSet(ctx, presenceKey(r.name), self.ID, member).Err(); err != nil {
		pubsub.Close()
		return fmt.Errorf("register presence: %w", err)
	}

	hbCtx, stop := context.WithCancel(context.Background())
	r.self = &self
	r.pubsub = pubsub
	r.stop = stop

	r.wg.Add(2)
	go r.receive(pubsub, self.ID)
	go r.heartbeat(hbCtx, self.ID, member)

	if err := r.rdb.Publish(ctx, presenceEventsKey(r.name), self.ID).Err(); err != nil {
		slog.Warn("presence announce failed", "channel", r.name, "userId", self.ID, "err", err)
	}
	return nil
}

// Publish sends one message to every subscriber of the channel
func (r *Redis) Publish(ctx context.Context, kind event.Kind, payload any) error {
	r.mu.Lock()
	self := r.self
	r.mu.Unlock()

	if self == nil {
		return ErrNotSubscribed
	}

	msg, err := event.NewMessage(kind, self.ID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}

	return r.rdb.Publish(ctx, messagesKey(r.name), data).Err()
}

// Unsubscribe removes self from the roster and stops receiving
func (r *Redis) Unsubscribe(ctx context.Context) error {
	r.mu.Lock()
	self, pubsub, stop := r.self, r.pubsub, r.stop
	r.self, r.pubsub, r.stop = nil, nil, nil
	r.mu.Unlock()

	if self == nil {
		return ErrNotSubscribed
	}
	stop()

	if err := r.rdb.HDel(ctx, presenceKey(r.name), self.ID).Err(); err != nil {
		slog.Warn("presence removal failed", "channel", r.name, "userId", self.ID, "err", err)
	}
	if err := r.rdb.Del(ctx, memberKey(r.name, self.ID)).Err(); err != nil {
		slog.Warn("liveness removal failed", "channel", r.name, "userId", self.ID, "err", err)
	}
	if err := r.rdb.Publish(ctx, presenceEventsKey(r.name), self.ID).Err(); err != nil {
		slog.Warn("presence announce failed", "channel", r.name, "userId", self.ID, "err", err)
	}

	err := pubsub.Close()
	r.wg.Wait()
	return err
}

// Roster reads the current member list. Entries whose liveness key is gone
// are removed from the hash and announced so every subscriber refreshes.
func (r *Redis) Roster(ctx context.Context) ([]event.Member, error) {
	entries, err := r.rdb.HGetAll(ctx, presenceKey(r.name)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}

	alive := make(map[string]*redis.IntCmd, len(entries))
	pipe := r.rdb.Pipeline()
	for id := range entries {
		alive[id] = pipe.Exists(ctx, memberKey(r.name, id))
	}
	if len(alive) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("read liveness: %w", err)
		}
	}

	members := make([]event.Member, 0, len(entries))
	var stale []string
	for id, raw := range entries {
		if alive[id].Val() == 0 {
			stale = append(stale, id)
			continue
		}
		var m event.Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			m = event.Member{ID: id}
		}
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	if len(stale) > 0 {
		r.sweep(ctx, stale)
	}
	return members, nil
}

func (r *Redis) sweep(ctx context.Context, stale []string) {
	removed, err := r.rdb.HDel(ctx, presenceKey(r.name), stale...).Result()
	if err != nil {
		slog.Warn("presence sweep failed", "channel", r.name, "err", err)
		return
	}
	// another reader may have swept first
	if removed == 0 {
		return
	}
	slog.Debug("swept stale members", "channel", r.name, "members", stale)
	if err := r.rdb.Publish(ctx, presenceEventsKey(r.name), "sweep").Err(); err != nil {
		slog.Warn("presence announce failed", "channel", r.name, "err", err)
	}
}

// heartbeat keeps our liveness key fresh and sweeps members whose key lapsed
func (r *Redis) heartbeat(ctx context.Context, selfID string, member []byte) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.memberTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.rdb.Set(ctx, memberKey(r.name, selfID), 1, r.memberTTL).Err(); err != nil {
				if ctx.Err() == nil {
					slog.Warn("heartbeat failed", "channel", r.name, "userId", selfID, "err", err)
				}
				continue
			}
			// a lapse longer than the TTL gets us swept; put ourselves back
			added, err := r.rdb.HSetNX(ctx, presenceKey(r.name), selfID, member).Result()
			if err == nil && added {
				r.rdb.Publish(ctx, presenceEventsKey(r.name), selfID)
			}
			if _, err := r.Roster(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("presence sweep failed", "channel", r.name, "err", err)
			}
		}
	}
}

// receive dispatches pub/sub traffic until the subscription is closed
func (r *Redis) receive(pubsub *redis.PubSub, selfID string) {
	defer r.wg.Done()

	ctx := context.Background()
	for m := range pubsub.Channel() {
		switch m.Channel {
		case messagesKey(r.name):
			var msg event.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			// redis echoes our own publishes back
			if msg.UserID == selfID {
				continue
			}
			r.emitMessage(msg)

		case presenceEventsKey(r.name):
			members, err := r.Roster(ctx)
			if err != nil {
				slog.Warn("presence refresh failed", "channel", r.name, "err", err)
				continue
			}
			r.emitPresence(members)
		}
	}
}
