package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/websocket"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/services/timeline/domain"
	"github.com/learning-layers/Timeliner/internal/services/timeline/event"
)

type fakeAuth struct{}

// Authenticate accepts tokens of the form "token-<user>".
func (fakeAuth) Authenticate(_ context.Context, token string) (domain.User, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok || userID == "" {
		return domain.User{}, apperrors.New(apperrors.CodeTokenVerificationFailed, "bad token")
	}
	return domain.User{ID: userID, Email: userID + "@example.com", Activated: true}, nil
}

type fakeGate struct {
	members map[string]map[string]bool
}

func (g fakeGate) RequireAnyParticipant(_ context.Context, projectID, userID string) (domain.Participant, error) {
	if !g.members[projectID][userID] {
		return domain.Participant{}, domain.ErrNotProjectParticipant
	}
	return domain.Participant{ProjectID: projectID, UserID: userID, Status: domain.ParticipantActive}, nil
}

type fakeMover struct {
	mu      sync.Mutex
	bus     *event.Bus
	version int64
}

// Move accepts version 1 once, like a versioned write.
func (m *fakeMover) Move(ctx context.Context, objectType domain.ObjectType, entityID, actorID string, input domain.MoveInput) (domain.MoveRecord, error) {
	m.mu.Lock()
	if input.Version != nil && *input.Version != m.version {
		m.mu.Unlock()
		return domain.MoveRecord{}, domain.ErrVersionConflict
	}
	m.version++
	record := domain.MoveRecord{ID: entityID, ProjectID: "p1", Title: "Build", Start: input.Start, End: input.End, Version: m.version}
	m.mu.Unlock()
	m.bus.Publish(ctx, event.Event{Action: event.ActionMove, ObjectType: objectType, Data: record, ActorID: actorID})
	return record, nil
}

type testFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

func (f testFrame) reply(t *testing.T) Reply {
	t.Helper()
	var reply Reply
	if err := json.Unmarshal(f.Payload, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	return reply
}

func newTestHub(t *testing.T, cfg Config, client *redis.Client) (*Hub, *event.Bus, *httptest.Server) {
	t.Helper()
	bus := event.NewBus(nil)
	hub, err := NewHub(Options{
		Auth:  fakeAuth{},
		Mover: &fakeMover{bus: bus, version: 1},
		Gate: fakeGate{members: map[string]map[string]bool{
			"p1": {"alice": true, "bob": true, "carol": true},
		}},
		Config: cfg,
		Redis:  client,
	})
	if err != nil {
		t.Fatalf("new hub: %v", err)
	}
	hub.Register(bus)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return hub, bus, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType, requestID string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if err := json.NewEncoder(conn).Encode(testFrame{Type: frameType, RequestID: requestID, Payload: raw}); err != nil {
		t.Fatalf("send frame: %v", err)
	}
}

func read(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame testFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	return frame
}

func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			if strings.Contains(err.Error(), "timeout") {
				t.Fatal("expected connection to close")
			}
			return
		}
	}
}

func authenticate(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	send(t, conn, frameAuthenticate, "auth", authenticatePayload{Token: "token-" + userID})
	if reply := read(t, conn).reply(t); !reply.Success {
		t.Fatalf("expected authenticate success, got %+v", reply.Error)
	}
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	send(t, conn, frameJoin, "join", roomPayload{ID: roomID})
	frame := read(t, conn)
	if frame.Type != frameJoin || frame.RequestID != "join" {
		t.Fatalf("expected join reply, got %+v", frame)
	}
	if reply := frame.reply(t); !reply.Success {
		t.Fatalf("expected join success, got %+v", reply.Error)
	}
	// The whole room, joiner included, sees the presence notice.
	own := read(t, conn)
	if own.Type != frameJoin || own.RequestID != "" {
		t.Fatalf("expected own join presence, got %+v", own)
	}
}

func TestAuthenticateAndJoinGate(t *testing.T) {
	_, _, srv := newTestHub(t, Config{}, nil)
	conn := dial(t, srv)

	send(t, conn, frameJoin, "j0", roomPayload{ID: "p1"})
	reply := read(t, conn).reply(t)
	if reply.Success || reply.Error.Code != string(apperrors.CodeNotAuthenticated) {
		t.Fatalf("expected NOT_AUTHENTICATED, got %+v", reply)
	}

	send(t, conn, frameAuthenticate, "a0", authenticatePayload{Token: "nope"})
	reply = read(t, conn).reply(t)
	if reply.Success || reply.Error.Code != string(apperrors.CodeTokenVerificationFailed) {
		t.Fatalf("expected token failure, got %+v", reply)
	}

	// A failed authenticate leaves the connection usable.
	authenticate(t, conn, "mallory")
	send(t, conn, frameJoin, "j1", roomPayload{ID: "p1"})
	reply = read(t, conn).reply(t)
	if reply.Success || reply.Error.Code != string(apperrors.CodeNotProjectParticipant) {
		t.Fatalf("expected NOT_A_PROJECT_PARTICIPANT, got %+v", reply)
	}
}

func TestJoinBroadcastsPresence(t *testing.T) {
	hub, _, srv := newTestHub(t, Config{}, nil)
	alice := dial(t, srv)
	bob := dial(t, srv)
	authenticate(t, alice, "alice")
	authenticate(t, bob, "bob")
	join(t, alice, "p1")
	join(t, bob, "p1")

	frame := read(t, alice)
	if frame.Type != frameJoin || frame.RequestID != "" {
		t.Fatalf("expected join broadcast, got %+v", frame)
	}
	var presence Presence
	if err := json.Unmarshal(frame.Payload, &presence); err != nil {
		t.Fatalf("decode presence: %v", err)
	}
	if presence.User == nil || presence.User.ID != "bob" || presence.Project != "p1" {
		t.Fatalf("expected bob joining p1, got %+v", presence)
	}

	// Joining a room twice is a no-op without a second notice.
	send(t, bob, frameJoin, "again", roomPayload{ID: "p1"})
	if reply := read(t, bob).reply(t); !reply.Success {
		t.Fatalf("expected repeated join success, got %+v", reply.Error)
	}
	if hub.RoomSize("p1") != 2 {
		t.Fatalf("expected two members, got %d", hub.RoomSize("p1"))
	}

	send(t, bob, frameLeave, "l1", roomPayload{ID: "p1"})
	if reply := read(t, bob).reply(t); !reply.Success {
		t.Fatalf("expected leave success, got %+v", reply.Error)
	}
	if frame := read(t, alice); frame.Type != frameLeave {
		t.Fatalf("expected leave broadcast, got %+v", frame)
	}

	send(t, alice, frameLogout, "out", struct{}{})
	if reply := read(t, alice).reply(t); !reply.Success {
		t.Fatalf("expected logout success, got %+v", reply.Error)
	}
	if hub.RoomSize("p1") != 0 {
		t.Fatalf("expected empty room after logout, got %d", hub.RoomSize("p1"))
	}
}

func TestMoveAcknowledgesAndRelays(t *testing.T) {
	_, _, srv := newTestHub(t, Config{}, nil)
	alice := dial(t, srv)
	bob := dial(t, srv)
	authenticate(t, alice, "alice")
	authenticate(t, bob, "bob")
	join(t, alice, "p1")
	join(t, bob, "p1")
	_ = read(t, alice) // bob's presence

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(72 * time.Hour)
	version := int64(1)
	send(t, alice, "move:task", "m1", movePayload{ID: "t1", Start: &start, End: &end, Version: &version})

	// The relay writes the broadcast before Move returns to the hub.
	broadcast := read(t, alice)
	if broadcast.Type != "move:task" || broadcast.RequestID != "" {
		t.Fatalf("expected move broadcast, got %+v", broadcast)
	}
	ack := read(t, alice)
	if ack.RequestID != "m1" || !ack.reply(t).Success {
		t.Fatalf("expected move ack, got %+v", ack)
	}
	seen := read(t, bob)
	var record domain.MoveRecord
	if err := json.Unmarshal(seen.Payload, &record); err != nil {
		t.Fatalf("decode move: %v", err)
	}
	if seen.Type != "move:task" || record.ID != "t1" || record.Version != 2 {
		t.Fatalf("expected relayed move, got %s %+v", seen.Type, record)
	}

	// A stale move fails only for the sender.
	send(t, bob, "move:task", "m2", movePayload{ID: "t1", Start: &start, End: &end, Version: &version})
	failed := read(t, bob)
	reply := failed.reply(t)
	if failed.RequestID != "m2" || reply.Success || reply.Error.Code != string(apperrors.CodeVersionConflict) || reply.Error.Kind != "CONFLICT" {
		t.Fatalf("expected version conflict, got %+v", reply)
	}

	send(t, bob, "move:project", "m3", movePayload{ID: "p1"})
	if reply := read(t, bob).reply(t); reply.Success || reply.Error.Code != codeUnsupportedFrame {
		t.Fatalf("expected unsupported move target, got %+v", reply)
	}
}

func TestRelaySkipsEventsWithoutRoom(t *testing.T) {
	hub, _, _ := newTestHub(t, Config{}, nil)
	if err := hub.Relay(context.Background(), event.Event{Action: event.ActionCreate, ObjectType: domain.ObjectTask}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestAuthTimeoutClosesConnection(t *testing.T) {
	_, _, srv := newTestHub(t, Config{AuthTimeout: 50 * time.Millisecond}, nil)
	conn := dial(t, srv)
	expectClosed(t, conn)
}

func TestDecodeErrorCapClosesConnection(t *testing.T) {
	_, _, srv := newTestHub(t, Config{MaxDecodeErrors: 2}, nil)
	conn := dial(t, srv)
	for i := 0; i < 2; i++ {
		if _, err := conn.Write([]byte("{not json")); err != nil {
			t.Fatalf("write: %v", err)
		}
		frame := read(t, conn)
		if frame.Type != frameError {
			t.Fatalf("expected error frame, got %+v", frame)
		}
	}
	expectClosed(t, conn)
}

func TestRateLimitClosesConnection(t *testing.T) {
	_, _, srv := newTestHub(t, Config{FramesPerSecond: 0.001, FrameBurst: 1}, nil)
	conn := dial(t, srv)
	send(t, conn, "ping", "1", struct{}{})
	if reply := read(t, conn).reply(t); reply.Error == nil || reply.Error.Code != codeUnsupportedFrame {
		t.Fatalf("expected unsupported frame, got %+v", reply)
	}
	send(t, conn, "ping", "2", struct{}{})
	if reply := read(t, conn).reply(t); reply.Error == nil || reply.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit, got %+v", reply)
	}
	expectClosed(t, conn)
}

func TestPayloadTooLarge(t *testing.T) {
	_, _, srv := newTestHub(t, Config{MaxPayloadBytes: 64}, nil)
	conn := dial(t, srv)
	send(t, conn, frameAuthenticate, "big", authenticatePayload{Token: strings.Repeat("x", 100)})
	if reply := read(t, conn).reply(t); reply.Error == nil || reply.Error.Code != codePayloadTooLarge {
		t.Fatalf("expected payload too large, got %+v", reply)
	}
}

func TestRedisFanOutAcrossHubs(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}
	first, _, firstSrv := newTestHub(t, Config{}, newClient())
	second, _, secondSrv := newTestHub(t, Config{}, newClient())

	bob := dial(t, secondSrv)
	authenticate(t, bob, "bob")
	join(t, bob, "p1")

	carol := dial(t, firstSrv)
	authenticate(t, carol, "carol")
	join(t, carol, "p1")

	frame := read(t, bob)
	if frame.Type != frameJoin {
		t.Fatalf("expected cross-process join presence, got %+v", frame)
	}

	task := domain.Task{ID: "t1", ProjectID: "p1", Title: "Build"}
	if err := first.Relay(context.Background(), event.Event{Action: event.ActionUpdate, ObjectType: domain.ObjectTask, Data: task}); err != nil {
		t.Fatalf("relay: %v", err)
	}
	for _, conn := range []*websocket.Conn{bob, carol} {
		if frame := read(t, conn); frame.Type != "update:task" {
			t.Fatalf("expected update:task on both hubs, got %+v", frame)
		}
	}

	send(t, bob, frameLeave, "l", roomPayload{ID: "p1"})
	_ = read(t, bob)
	if second.RoomSize("p1") != 0 {
		t.Fatalf("expected empty room on second hub, got %d", second.RoomSize("p1"))
	}
	if first.SessionCount() != 1 {
		t.Fatalf("expected one session on first hub, got %d", first.SessionCount())
	}
}
