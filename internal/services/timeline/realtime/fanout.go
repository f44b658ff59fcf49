package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ChannelPrefix namespaces room channels on Redis.
const ChannelPrefix = "timeliner:room:"

// deliverFunc writes a frame to the local members of room, skipping the
// session named by exclude.
type deliverFunc func(room, exclude string, frame []byte)

// fanout carries room broadcasts to every process with members in the room.
type fanout interface {
	publish(ctx context.Context, room, exclude string, frame []byte) error
	// ensure starts receiving room broadcasts in this process.
	ensure(ctx context.Context, room string) error
	// release stops receiving room broadcasts in this process.
	release(room string)
	close()
}

// localFanout delivers in-process only.
type localFanout struct {
	deliver deliverFunc
}

func (f localFanout) publish(_ context.Context, room, exclude string, frame []byte) error {
	f.deliver(room, exclude, frame)
	return nil
}

func (localFanout) ensure(context.Context, string) error { return nil }
func (localFanout) release(string)                      {}
func (localFanout) close()                              {}

type roomEnvelope struct {
	Room    string          `json:"room"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// redisFanout publishes on one channel per room and keeps a subscription
// for every room with local members.
type redisFanout struct {
	client  *redis.Client
	deliver deliverFunc
	logger  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	subscriptions map[string]*redis.PubSub
	wg            sync.WaitGroup
}

func newRedisFanout(client *redis.Client, deliver deliverFunc, logger logrus.FieldLogger) *redisFanout {
	ctx, cancel := context.WithCancel(context.Background())
	return &redisFanout{
		client:        client,
		deliver:       deliver,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*redis.PubSub),
	}
}

func channelFor(room string) string {
	return ChannelPrefix + room
}

func (f *redisFanout) publish(ctx context.Context, room, exclude string, frame []byte) error {
	payload, err := json.Marshal(roomEnvelope{Room: room, Exclude: exclude, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode room envelope: %w", err)
	}
	if err := f.client.Publish(ctx, channelFor(room), payload).Err(); err != nil {
		return fmt.Errorf("publish room %s: %w", room, err)
	}
	return nil
}

func (f *redisFanout) ensure(ctx context.Context, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subscriptions[room]; ok {
		return nil
	}
	pubsub := f.client.Subscribe(f.ctx, channelFor(room))
	// Wait for the confirmation so a broadcast right after join is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe room %s: %w", room, err)
	}
	f.subscriptions[room] = pubsub
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.consume(pubsub)
	}()
	return nil
}

func (f *redisFanout) consume(pubsub *redis.PubSub) {
	for {
		msg, err := pubsub.ReceiveMessage(f.ctx)
		if err != nil {
			return
		}
		var envelope roomEnvelope
		if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
			f.logger.WithError(err).WithField("channel", msg.Channel).Warn("drop malformed room envelope")
			continue
		}
		f.deliver(envelope.Room, envelope.Exclude, envelope.Frame)
	}
}

func (f *redisFanout) release(room string) {
	f.mu.Lock()
	pubsub, ok := f.subscriptions[room]
	delete(f.subscriptions, room)
	f.mu.Unlock()
	if ok {
		_ = pubsub.Close()
	}
}

func (f *redisFanout) close() {
	f.cancel()
	f.mu.Lock()
	for room, pubsub := range f.subscriptions {
		_ = pubsub.Close()
		delete(f.subscriptions, room)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
