package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	roomChannelPrefix  = "rooms:events:"
	adminMirrorChannel = "rooms:events:admin"
)

// envelope wraps a mirrored event with the publishing instance's identity so
// a subscriber can skip events it originated itself.
type envelope struct {
	Origin  string          `json:"origin"`
	RoomID  uint            `json:"room_id,omitempty"`
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Mirror fans events out to the local hub and mirrors them through Redis
// pub/sub so subscribers connected to other instances see them too. Each
// instance assigns its own per-room sequence numbers on delivery.
type Mirror struct {
	hub        *Hub
	rdb        *redis.Client
	instanceID string
}

// NewMirror creates a Mirror over the given hub. rdb may be nil, in which
// case events stay local.
func NewMirror(hub *Hub, rdb *redis.Client) *Mirror {
	return &Mirror{
		hub:        hub,
		rdb:        rdb,
		instanceID: uuid.NewString(),
	}
}

// Publish delivers to local subscribers and mirrors to peer instances.
func (m *Mirror) Publish(roomID uint, evtType EventType, payload interface{}) {
	m.hub.Publish(roomID, evtType, payload)
	m.mirror(fmt.Sprintf("%s%d", roomChannelPrefix, roomID), envelope{
		Origin: m.instanceID,
		RoomID: roomID,
		Type:   evtType,
	}, payload)
}

// PublishAdmin delivers to local admin subscribers and mirrors to peers.
func (m *Mirror) PublishAdmin(evtType EventType, payload interface{}) {
	m.hub.PublishAdmin(evtType, payload)
	m.mirror(adminMirrorChannel, envelope{
		Origin: m.instanceID,
		Type:   evtType,
	}, payload)
}

func (m *Mirror) mirror(channel string, env envelope, payload interface{}) {
	if m.rdb == nil {
		return
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("failed to marshal mirrored %s event: %v", env.Type, err)
			return
		}
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("failed to marshal mirror envelope: %v", err)
		return
	}
	if err := m.rdb.Publish(context.Background(), channel, string(data)).Err(); err != nil {
		log.Printf("failed to mirror %s event to %s: %v", env.Type, channel, err)
	}
}

// Start subscribes to peer instances' mirrored events and re-injects them
// into the local hub. Events this instance originated are skipped.
func (m *Mirror) Start(ctx context.Context) error {
	if m.rdb == nil {
		return nil
	}
	sub := m.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in event mirror subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					m.handle(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

func (m *Mirror) handle(channel, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Printf("failed to decode mirrored event on %s: %v", channel, err)
		return
	}
	if env.Origin == m.instanceID {
		return
	}
	if strings.HasSuffix(channel, ":admin") {
		m.hub.PublishAdmin(env.Type, env.Payload)
		return
	}
	m.hub.Publish(env.RoomID, env.Type, env.Payload)
}
