package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"whiteboard/internal/event"
	"whiteboard/internal/handlers"
	"whiteboard/internal/idgen"
	"whiteboard/internal/middleware"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

const (
	handshakeTimeout = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10 // Send pings at 90% of pong deadline
	writeWait        = 10 * time.Second

	// maxFrameSize is a hard cap; MaxMessageSize drops smaller frames without
	// closing the connection
	maxFrameSize = 1 << 20
)

// Server is the websocket relay
type Server struct {
	limits    *middleware.Limits
	ipLimiter *middleware.IPRateLimit
	sessions  *user.SessionManager
	rooms     *room.Manager
	router    *handlers.MessageRouter
	validator *event.Validator
	upgrader  websocket.Upgrader
}

// NewServer wires the relay. domains are the allowed browser origins.
func NewServer(domains []string, limits *middleware.Limits, ipLimiter *middleware.IPRateLimit) *Server {
	broadcaster := room.NewBroadcaster()
	synchronizer := room.NewSynchronizer(broadcaster)
	validator := event.NewValidator()

	return &Server{
		limits:    limits,
		ipLimiter: ipLimiter,
		sessions:  user.NewSessionManager(limits),
		rooms:     room.NewManager(limits, synchronizer),
		router:    handlers.NewMessageRouter(validator, broadcaster, synchronizer),
		validator: validator,
		upgrader: websocket.Upgrader{
			CheckOrigin: checkOrigin(domains),
		},
	}
}

// checkOrigin allows the configured domains. Requests without an Origin
// header come from non-browser clients and are let through.
func checkOrigin(domains []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		for _, allowed := range domains {
			if origin == allowed {
				return true
			}
		}

		slog.Warn("origin rejected", "origin", origin)
		return false
	}
}

// ApplyLimits swaps in new limits for rooms and live sessions
func (s *Server) ApplyLimits(rl middleware.RateLimit) {
	s.limits.Update(rl)
	s.sessions.ApplyLimits(rl)
}

// Cleanup drops expired rooms, idle sessions and stale IP limiters
func (s *Server) Cleanup() {
	s.rooms.Cleanup()
	s.sessions.Cleanup()
	s.ipLimiter.Cleanup()
}

// Sessions returns the per-user session registry
func (s *Server) Sessions() *user.SessionManager {
	return s.sessions
}

// HandleWebSocket: upgrades HTTP to WebSocket, performs the subscribe
// handshake and joins the channel's room
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	roomCode := chi.URLParam(r, "channel")
	if roomCode == "" {
		http.Error(w, "channel missing", http.StatusBadRequest)
		return
	}

	w.Header().Set("X-Content-Type-Options", "nosniff")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	sub, err := readSubscription(conn, handshakeTimeout)
	if err != nil {
		slog.Warn("subscribe failed", "room", roomCode, "err", err)
		writeFailure(conn, err)
		return
	}

	requested := sub.Member()
	if requested.ID == "" {
		requested.ID = idgen.NewUserID()
	}
	member, err := s.validator.ValidateMember(requested)
	if err != nil {
		slog.Warn("subscribe rejected", "room", roomCode, "err", err)
		writeFailure(conn, err)
		return
	}

	u := user.New(member.ID, member.DisplayName, s.sessions.GetOrCreate(member.ID), conn)

	var rm *room.Room
	defer func() {
		if rm != nil {
			s.rooms.LeaveRoom(rm, u)
			slog.Info("client disconnected", "room", roomCode, "userId", u.ID)
		}
		s.sessions.Release(u.Session)
	}()

	ack := func(color string) error {
		return writeFrame(u, event.KindSubscribed, event.Subscribed{UserID: u.ID, Color: color})
	}

	rm, err = s.rooms.JoinRoom(roomCode, u, member.Color, ack)
	if err != nil {
		slog.Warn("join failed", "room", roomCode, "userId", u.ID, "err", err)
		writeFailure(u, err)
		return
	}

	slog.Info("client connected", "room", roomCode, "userId", u.ID, "clients", rm.ConnectionCount())
	s.run(conn, rm, u)
}

// run: message loop for one connection
func (s *Server) run(conn *websocket.Conn, rm *room.Room, u *user.User) {
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-pingTicker.C:
				if err := u.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("connection lost", "room", rm.Code, "userId", u.ID, "err", err)
			}
			return
		}

		if !s.limits.Get().ValidateMessageSize(len(msg)) {
			slog.Warn("message too large", "userId", u.ID, "bytes", len(msg))
			continue
		}

		if err := s.router.Route(rm, u, msg); err != nil {
			if errors.Is(err, handlers.ErrRateLimited) {
				slog.Debug("message rate limited", "userId", u.ID)
				continue
			}
			slog.Warn("message dropped", "room", rm.Code, "userId", u.ID, "err", err)
		}
	}
}
