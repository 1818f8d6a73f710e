package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func drainEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("failed to decode event: %v", err)
		}
		return evt
	case <-time.After(testEventuallyTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHub_PublishDeliversInOrderWithSequence(t *testing.T) {
	hub := NewHub()

	clientA, err := hub.Register(1, 7, nil)
	assert.NoError(t, err)
	clientB, err := hub.Register(2, 7, nil)
	assert.NoError(t, err)

	for i := 0; i < 5; i++ {
		hub.Publish(7, TypeNewMessage, NewMessagePayload{Text: fmt.Sprintf("msg-%d", i)})
	}

	for _, c := range []*Client{clientA, clientB} {
		for i := 0; i < 5; i++ {
			evt := drainEvent(t, c)
			assert.Equal(t, TypeNewMessage, evt.Type)
			assert.Equal(t, uint(7), evt.RoomID)
			assert.Equal(t, uint64(i+1), evt.Seq)
		}
	}

	_ = hub.Shutdown(context.Background())
}

func TestHub_PublishIsScopedToRoom(t *testing.T) {
	hub := NewHub()

	inRoom, err := hub.Register(1, 3, nil)
	assert.NoError(t, err)
	otherRoom, err := hub.Register(2, 4, nil)
	assert.NoError(t, err)

	hub.Publish(3, TypeWentLive, nil)

	evt := drainEvent(t, inRoom)
	assert.Equal(t, TypeWentLive, evt.Type)
	assert.Empty(t, otherRoom.Send)

	_ = hub.Shutdown(context.Background())
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(1, 9, nil)
	assert.NoError(t, err)
	client.Send = make(chan []byte, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(9, TypeViewerCount, ViewerCountPayload{Count: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(testEventuallyTimeout):
		t.Fatal("publish blocked on a slow subscriber")
	}

	_ = hub.Shutdown(context.Background())
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	hub := NewHub()

	client, err := hub.Register(1, 5, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, hub.SubscriberCount(5))

	hub.UnregisterClient(client)
	hub.UnregisterClient(client)
	assert.Equal(t, 0, hub.SubscriberCount(5))

	hub.mu.RLock()
	assert.Equal(t, 0, hub.totalConns)
	assert.Empty(t, hub.perUser)
	hub.mu.RUnlock()
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()

	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(42, uint(i), nil)
		assert.NoError(t, err)
	}
	_, err := hub.Register(42, 99, nil)
	assert.ErrorIs(t, err, errUserConnLimit)

	_ = hub.Shutdown(context.Background())
}

func TestHub_CloseRoomDisconnectsSubscribers(t *testing.T) {
	hub := NewHub()

	_, err := hub.Register(1, 11, nil)
	assert.NoError(t, err)
	_, err = hub.Register(2, 11, nil)
	assert.NoError(t, err)
	assert.Equal(t, 2, hub.SubscriberCount(11))

	hub.CloseRoom(11)
	assert.Equal(t, 0, hub.SubscriberCount(11))

	hub.mu.RLock()
	assert.Equal(t, 0, hub.totalConns)
	hub.mu.RUnlock()

	// Publishing after close is a no-op rather than a panic.
	hub.Publish(11, TypeEnded, nil)
}

func TestHub_AdminChannelIsSeparate(t *testing.T) {
	hub := NewHub()

	admin, err := hub.RegisterAdmin(1, nil)
	assert.NoError(t, err)
	viewer, err := hub.Register(2, 6, nil)
	assert.NoError(t, err)

	hub.PublishAdmin(TypeAdminNewReport, AdminNewReportPayload{RoomID: 6, PendingCount: 1})

	evt := drainEvent(t, admin)
	assert.Equal(t, TypeAdminNewReport, evt.Type)
	assert.Empty(t, viewer.Send)

	_ = hub.Shutdown(context.Background())
}

func TestMirror_RelaysEventsBetweenInstances(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	hubA := NewHub()
	hubB := NewHub()
	mirrorA := NewMirror(hubA, rdb)
	mirrorB := NewMirror(hubB, rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, mirrorA.Start(ctx))
	assert.NoError(t, mirrorB.Start(ctx))

	localClient, err := hubA.Register(1, 8, nil)
	assert.NoError(t, err)
	remoteClient, err := hubB.Register(2, 8, nil)
	assert.NoError(t, err)

	mirrorA.Publish(8, TypeWentLive, nil)

	evt := drainEvent(t, remoteClient)
	assert.Equal(t, TypeWentLive, evt.Type)
	assert.Equal(t, uint(8), evt.RoomID)

	// The origin instance delivers exactly once, not again via the mirror.
	evt = drainEvent(t, localClient)
	assert.Equal(t, TypeWentLive, evt.Type)
	assert.Never(t, func() bool { return len(localClient.Send) > 0 },
		20*testPollInterval, testPollInterval)

	_ = hubA.Shutdown(context.Background())
	_ = hubB.Shutdown(context.Background())
}
