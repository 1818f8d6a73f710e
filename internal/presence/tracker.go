// Package presence tracks the live viewer set per room and announces count
// changes on the room's event channel.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"limelight/internal/events"
	"limelight/internal/observability"

	"github.com/redis/go-redis/v9"
)

const presenceKeyTTL = 24 * time.Hour

// entry records one viewer's membership and the connection ids backing it.
type entry struct {
	joinedAt time.Time
	conns    map[string]struct{}
}

// Tracker maintains the per-room viewer set. A viewer is counted once per
// room regardless of how many connections they hold. When Redis is
// configured the set is mirrored there so counts stay correct with more
// than one instance.
type Tracker struct {
	mu    sync.Mutex
	rooms map[uint]map[uint]*entry

	rdb *redis.Client
	pub events.Publisher
}

// NewTracker creates a Tracker publishing count changes through pub. rdb may
// be nil for single-instance deployments.
func NewTracker(pub events.Publisher, rdb *redis.Client) *Tracker {
	return &Tracker{
		rooms: make(map[uint]map[uint]*entry),
		pub:   pub,
		rdb:   rdb,
	}
}

func roomKey(roomID uint) string {
	return fmt.Sprintf("presence:room:%d", roomID)
}

// Join records a viewer connection. Duplicate joins from the same connection
// id are no-ops. Returns the resulting viewer count.
func (t *Tracker) Join(ctx context.Context, roomID, userID uint, connID string) int {
	t.mu.Lock()
	room := t.rooms[roomID]
	if room == nil {
		room = make(map[uint]*entry)
		t.rooms[roomID] = room
	}
	e := room[userID]
	if e == nil {
		e = &entry{joinedAt: time.Now().UTC(), conns: make(map[string]struct{})}
		room[userID] = e
	}
	if _, dup := e.conns[connID]; dup {
		count := len(room)
		t.mu.Unlock()
		return count
	}
	e.conns[connID] = struct{}{}
	newViewer := len(e.conns) == 1
	localCount := len(room)
	t.mu.Unlock()

	if !newViewer {
		return localCount
	}

	count := t.syncAdd(ctx, roomID, userID, localCount)
	t.pub.Publish(roomID, events.TypeViewerCount, events.ViewerCountPayload{Count: count})
	return count
}

// Leave removes a viewer connection. Best-effort: unknown connections are
// ignored and Redis failures never surface to the caller.
func (t *Tracker) Leave(ctx context.Context, roomID, userID uint, connID string) {
	t.mu.Lock()
	room := t.rooms[roomID]
	if room == nil {
		t.mu.Unlock()
		return
	}
	e := room[userID]
	if e == nil {
		t.mu.Unlock()
		return
	}
	if _, ok := e.conns[connID]; !ok {
		t.mu.Unlock()
		return
	}
	delete(e.conns, connID)
	if len(e.conns) > 0 {
		t.mu.Unlock()
		return
	}
	delete(room, userID)
	if len(room) == 0 {
		delete(t.rooms, roomID)
	}
	localCount := len(room)
	t.mu.Unlock()

	count := t.syncRemove(ctx, roomID, userID, localCount)
	t.pub.Publish(roomID, events.TypeViewerCount, events.ViewerCountPayload{Count: count})
}

// Count returns the current viewer count for a room.
func (t *Tracker) Count(ctx context.Context, roomID uint) int {
	if t.rdb != nil {
		n, err := t.rdb.SCard(ctx, roomKey(roomID)).Result()
		if err == nil {
			return int(n)
		}
		observability.RedisErrors.WithLabelValues("presence").Inc()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms[roomID])
}

// Members returns the user ids currently viewing a room.
func (t *Tracker) Members(ctx context.Context, roomID uint) []uint {
	if t.rdb != nil {
		raw, err := t.rdb.SMembers(ctx, roomKey(roomID)).Result()
		if err == nil {
			out := make([]uint, 0, len(raw))
			for _, m := range raw {
				id, perr := strconv.ParseUint(m, 10, 32)
				if perr != nil {
					continue
				}
				out = append(out, uint(id))
			}
			return out
		}
		observability.RedisErrors.WithLabelValues("presence").Inc()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint, 0, len(t.rooms[roomID]))
	for id := range t.rooms[roomID] {
		out = append(out, id)
	}
	return out
}

// ClearRoom drops all presence for a room once it reaches a terminal state.
func (t *Tracker) ClearRoom(ctx context.Context, roomID uint) {
	t.mu.Lock()
	delete(t.rooms, roomID)
	t.mu.Unlock()

	if t.rdb != nil {
		if err := t.rdb.Del(ctx, roomKey(roomID)).Err(); err != nil {
			observability.RedisErrors.WithLabelValues("presence").Inc()
		}
	}
}

func (t *Tracker) syncAdd(ctx context.Context, roomID, userID uint, localCount int) int {
	if t.rdb == nil {
		return localCount
	}
	key := roomKey(roomID)
	member := strconv.FormatUint(uint64(userID), 10)
	pipe := t.rdb.Pipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, presenceKeyTTL)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrors.WithLabelValues("presence").Inc()
		return localCount
	}
	return int(card.Val())
}

func (t *Tracker) syncRemove(ctx context.Context, roomID, userID uint, localCount int) int {
	if t.rdb == nil {
		return localCount
	}
	key := roomKey(roomID)
	member := strconv.FormatUint(uint64(userID), 10)
	pipe := t.rdb.Pipeline()
	pipe.SRem(ctx, key, member)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		observability.RedisErrors.WithLabelValues("presence").Inc()
		return localCount
	}
	return int(card.Val())
}
