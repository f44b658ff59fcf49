// Package realtime is the websocket hub: project rooms, per-connection
// sessions, move commands and the relay of domain events to rooms.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/learning-layers/Timeliner/internal/platform/id"
	"github.com/learning-layers/Timeliner/internal/platform/logging"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
)

// Config tunes connection limits.
type Config struct {
	// AuthTimeout closes connections that have not authenticated in time.
	// Zero disables the timeout.
	AuthTimeout     time.Duration `env:"TIMELINER_WS_AUTH_TIMEOUT" envDefault:"30s"`
	FramesPerSecond float64       `env:"TIMELINER_WS_FRAMES_PER_SECOND" envDefault:"40"`
	FrameBurst      int           `env:"TIMELINER_WS_FRAME_BURST" envDefault:"80"`
	MaxPayloadBytes int           `env:"TIMELINER_WS_MAX_PAYLOAD_BYTES" envDefault:"16384"`
	MaxDecodeErrors int           `env:"TIMELINER_WS_MAX_DECODE_ERRORS" envDefault:"3"`
}

func (c Config) withDefaults() Config {
	if c.FramesPerSecond <= 0 {
		c.FramesPerSecond = 40
	}
	if c.FrameBurst <= 0 {
		c.FrameBurst = 80
	}
	if c.MaxPayloadBytes <= 0 {
		c.MaxPayloadBytes = 16 * 1024
	}
	if c.MaxDecodeErrors <= 0 {
		c.MaxDecodeErrors = 3
	}
	return c
}

// Authenticator resolves bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// Mover applies move commands.
type Mover interface {
	Move(ctx context.Context, objectType domain.ObjectType, entityID, actorID string, input domain.MoveInput) (domain.MoveRecord, error)
}

// RoomGate checks room membership.
type RoomGate interface {
	RequireAnyParticipant(ctx context.Context, projectID, userID string) (domain.Participant, error)
}

// Options wires the hub.
type Options struct {
	Auth   Authenticator
	Mover  Mover
	Gate   RoomGate
	Config Config
	// Redis enables cross-process room fan-out when set.
	Redis  *redis.Client
	Logger logrus.FieldLogger
}

// Hub owns every websocket session and room in this process.
type Hub struct {
	auth   Authenticator
	mover  Mover
	gate   RoomGate
	cfg    Config
	logger logrus.FieldLogger
	fanout fanout
	rooms  *rooms

	mu       sync.Mutex
	sessions map[string]*session
}

// NewHub builds a hub.
func NewHub(opts Options) (*Hub, error) {
	if opts.Auth == nil || opts.Mover == nil || opts.Gate == nil {
		return nil, fmt.Errorf("realtime hub needs auth, mover and gate")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	h := &Hub{
		auth:     opts.Auth,
		mover:    opts.Mover,
		gate:     opts.Gate,
		cfg:      opts.Config.withDefaults(),
		logger:   logging.Component(opts.Logger, "realtime"),
		rooms:    newRooms(),
		sessions: make(map[string]*session),
	}
	if opts.Redis != nil {
		h.fanout = newRedisFanout(opts.Redis, h.deliver, h.logger)
	} else {
		h.fanout = localFanout{deliver: h.deliver}
	}
	return h, nil
}

// Handler serves the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	server := websocket.Server{
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   h.serveConn,
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		server.ServeHTTP(w, r)
	})
}

// Register subscribes the relay to every event on bus.
func (h *Hub) Register(bus interface {
	Subscribe(name string, listener event.Listener)
}) {
	bus.Subscribe(event.All, h.Relay)
}

// Relay broadcasts a domain event to its project room.
func (h *Hub) Relay(ctx context.Context, evt event.Event) error {
	room := evt.Room()
	if room == "" {
		return nil
	}
	frame, err := encodeFrame(evt.Name(), "", evt.Data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Name(), err)
	}
	return h.fanout.publish(ctx, room, "", frame)
}

// Close stops cross-process subscriptions.
func (h *Hub) Close() {
	h.fanout.close()
}

// SessionCount reports the open connections.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// RoomSize reports the local members of a room.
func (h *Hub) RoomSize(roomID string) int {
	return h.rooms.size(roomID)
}

func (h *Hub) addSession(s *session) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *Hub) removeSession(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
}

func (h *Hub) deliver(room, exclude string, frame []byte) {
	for _, member := range h.rooms.snapshot(room, exclude) {
		if err := member.peer.write(frame); err != nil {
			h.logger.WithError(err).WithField("session_id", member.id).Debug("write room frame")
		}
	}
}

func (h *Hub) broadcast(ctx context.Context, room, exclude, frameType string, payload any) {
	frame, err := encodeFrame(frameType, "", payload)
	if err != nil {
		h.logger.WithError(err).WithField("frame", frameType).Error("encode broadcast")
		return
	}
	if err := h.fanout.publish(ctx, room, exclude, frame); err != nil {
		h.logger.WithError(err).WithField("room", room).Error("broadcast to room")
	}
}

func (h *Hub) joinRoom(ctx context.Context, roomID string, s *session) error {
	h.rooms.mu.Lock()
	defer h.rooms.mu.Unlock()
	if first := h.rooms.join(roomID, s); first {
		if err := h.fanout.ensure(ctx, roomID); err != nil {
			h.rooms.leave(roomID, s)
			return err
		}
	}
	return nil
}

func (h *Hub) leaveRoom(roomID string, s *session) {
	h.rooms.mu.Lock()
	defer h.rooms.mu.Unlock()
	if last := h.rooms.leave(roomID, s); last {
		h.fanout.release(roomID)
	}
}

// leaveAll removes s from every room, announcing the departure.
func (h *Hub) leaveAll(ctx context.Context, s *session) {
	user := s.currentUser()
	for _, roomID := range s.roomIDs() {
		h.broadcast(ctx, roomID, s.id, frameLeave, Presence{Project: roomID, User: user})
		h.leaveRoom(roomID, s)
	}
}

func newSessionID() string {
	sessionID, err := id.NewID()
	if err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return sessionID
}
