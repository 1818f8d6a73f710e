package presence

import (
	"context"
	"sync"
	"testing"

	"limelight/internal/events"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type capturedEvent struct {
	roomID  uint
	evtType events.EventType
	payload interface{}
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(roomID uint, evtType events.EventType, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{roomID, evtType, payload})
}

func (p *capturePublisher) PublishAdmin(evtType events.EventType, payload interface{}) {
	p.Publish(0, evtType, payload)
}

func (p *capturePublisher) counts() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for _, e := range p.events {
		if e.evtType == events.TypeViewerCount {
			out = append(out, e.payload.(events.ViewerCountPayload).Count)
		}
	}
	return out
}

func TestTracker_JoinLeavePublishesAbsoluteCounts(t *testing.T) {
	pub := &capturePublisher{}
	tracker := NewTracker(pub, nil)
	ctx := context.Background()

	assert.Equal(t, 1, tracker.Join(ctx, 1, 10, "conn-a"))
	assert.Equal(t, 2, tracker.Join(ctx, 1, 20, "conn-b"))
	tracker.Leave(ctx, 1, 10, "conn-a")

	assert.Equal(t, []int{1, 2, 1}, pub.counts())
	assert.Equal(t, 1, tracker.Count(ctx, 1))
}

func TestTracker_DuplicateJoinSameConnectionIsNoOp(t *testing.T) {
	pub := &capturePublisher{}
	tracker := NewTracker(pub, nil)
	ctx := context.Background()

	tracker.Join(ctx, 1, 10, "conn-a")
	tracker.Join(ctx, 1, 10, "conn-a")

	assert.Equal(t, []int{1}, pub.counts())
	assert.Equal(t, 1, tracker.Count(ctx, 1))
}

func TestTracker_UserCountedOncePerRoomAcrossConnections(t *testing.T) {
	pub := &capturePublisher{}
	tracker := NewTracker(pub, nil)
	ctx := context.Background()

	tracker.Join(ctx, 1, 10, "conn-a")
	tracker.Join(ctx, 1, 10, "conn-b")
	assert.Equal(t, 1, tracker.Count(ctx, 1))

	// The viewer stays counted until their last connection leaves.
	tracker.Leave(ctx, 1, 10, "conn-a")
	assert.Equal(t, 1, tracker.Count(ctx, 1))
	tracker.Leave(ctx, 1, 10, "conn-b")
	assert.Equal(t, 0, tracker.Count(ctx, 1))

	assert.Equal(t, []int{1, 0}, pub.counts())
}

func TestTracker_LeaveUnknownConnectionIsBestEffort(t *testing.T) {
	pub := &capturePublisher{}
	tracker := NewTracker(pub, nil)
	ctx := context.Background()

	tracker.Leave(ctx, 1, 10, "never-joined")
	assert.Empty(t, pub.counts())
}

func TestTracker_RoomsAreIndependent(t *testing.T) {
	pub := &capturePublisher{}
	tracker := NewTracker(pub, nil)
	ctx := context.Background()

	tracker.Join(ctx, 1, 10, "conn-a")
	tracker.Join(ctx, 2, 10, "conn-b")

	assert.Equal(t, 1, tracker.Count(ctx, 1))
	assert.Equal(t, 1, tracker.Count(ctx, 2))
}

func TestTracker_RedisMirrorsViewerSet(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	pub := &capturePublisher{}
	tracker := NewTracker(pub, rdb)
	ctx := context.Background()

	tracker.Join(ctx, 5, 10, "conn-a")
	tracker.Join(ctx, 5, 20, "conn-b")

	members, err := rdb.SMembers(ctx, "presence:room:5").Result()
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"10", "20"}, members)
	assert.Equal(t, 2, tracker.Count(ctx, 5))

	tracker.ClearRoom(ctx, 5)
	exists, err := rdb.Exists(ctx, "presence:room:5").Result()
	assert.NoError(t, err)
	assert.Zero(t, exists)
	assert.Equal(t, 0, tracker.Count(ctx, 5))
}
