// Package ingest bridges media-server publish signals into room lifecycle
// transitions.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"limelight/internal/models"
	"limelight/internal/observability"
	"limelight/internal/room"

	"github.com/redis/go-redis/v9"
)

// Bridge translates publish/unpublish callbacks from the media server, keyed
// by stream credential, into coordinator transitions. While a stream is up it
// maintains a liveness key so a crashed media server is detected within the
// configured window instead of leaving zombie rooms.
type Bridge struct {
	rooms        *room.Coordinator
	rdb          *redis.Client
	manifestBase string
	window       time.Duration
}

// NewBridge wires a Bridge. rdb may be nil; liveness detection then relies on
// explicit unpublish callbacks alone.
func NewBridge(rooms *room.Coordinator, rdb *redis.Client, manifestBase string, window time.Duration) *Bridge {
	return &Bridge{
		rooms:        rooms,
		rdb:          rdb,
		manifestBase: manifestBase,
		window:       window,
	}
}

func livenessKey(roomID uint) string {
	return fmt.Sprintf("ingest:live:%d", roomID)
}

// ManifestFor derives the manifest reference the media server exposes for a room.
func (b *Bridge) ManifestFor(roomID uint) string {
	return fmt.Sprintf("%s/%d/index.m3u8", b.manifestBase, roomID)
}

// HandlePublish authenticates a publish callback by stream key and moves the
// room into preview.
func (b *Bridge) HandlePublish(ctx context.Context, streamKey string) (*models.Room, error) {
	if streamKey == "" {
		return nil, models.NewUnauthorizedError("missing stream key")
	}
	r, err := b.rooms.GetByStreamKey(ctx, streamKey)
	if err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
			return nil, models.NewUnauthorizedError("unknown stream key")
		}
		return nil, err
	}

	r, err = b.rooms.ManifestReady(ctx, r.ID, b.ManifestFor(r.ID))
	if err != nil {
		return nil, err
	}

	b.touchLiveness(ctx, r.ID)
	return r, nil
}

// KeepAlive refreshes the liveness window for an active stream. Media servers
// that support periodic update callbacks use this between publish and
// unpublish.
func (b *Bridge) KeepAlive(ctx context.Context, streamKey string) error {
	r, err := b.rooms.GetByStreamKey(ctx, streamKey)
	if err != nil {
		return err
	}
	b.touchLiveness(ctx, r.ID)
	return nil
}

// HandleUnpublish ends the room tied to a stream key. The media server's
// explicit stop signal is authoritative; no retry budget applies here.
func (b *Bridge) HandleUnpublish(ctx context.Context, streamKey string) (*models.Room, error) {
	r, err := b.rooms.GetByStreamKey(ctx, streamKey)
	if err != nil {
		return nil, err
	}

	b.clearLiveness(ctx, r.ID)
	return b.rooms.End(ctx, r.ID, 0, true)
}

func (b *Bridge) touchLiveness(ctx context.Context, roomID uint) {
	if b.rdb == nil {
		return
	}
	if err := b.rdb.Set(ctx, livenessKey(roomID), "1", b.window).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("ingest").Inc()
	}
}

func (b *Bridge) clearLiveness(ctx context.Context, roomID uint) {
	if b.rdb == nil {
		return
	}
	if err := b.rdb.Del(ctx, livenessKey(roomID)).Err(); err != nil {
		observability.RedisErrors.WithLabelValues("ingest").Inc()
	}
}

// StartWatcher scans active rooms and force-ends any whose liveness key has
// expired, bounding how long a dead upstream can keep a room alive. No-op
// without Redis.
func (b *Bridge) StartWatcher(ctx context.Context) {
	if b.rdb == nil {
		return
	}
	interval := b.window / 2
	if interval < time.Second {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.sweep(ctx)
			}
		}
	}()
}

func (b *Bridge) sweep(ctx context.Context) {
	const pageSize = 100

	// Collect every candidate before ending anything. Each room the sweep
	// ends drops out of ListActive, so ending mid-pagination would shift
	// later pages left and rooms would slip past the offset.
	var active []uint
	for offset := 0; ; offset += pageSize {
		rooms, _, err := b.rooms.ListActive(ctx, pageSize, offset)
		if err != nil {
			slog.Error("ingest sweep failed to list active rooms", "error", err)
			return
		}
		for _, r := range rooms {
			active = append(active, r.ID)
		}
		if len(rooms) < pageSize {
			break
		}
	}

	for _, id := range active {
		exists, err := b.rdb.Exists(ctx, livenessKey(id)).Result()
		if err != nil {
			observability.RedisErrors.WithLabelValues("ingest").Inc()
			continue
		}
		if exists == 0 {
			slog.Warn("ingest signal lost, ending room", "room_id", id)
			if _, err := b.rooms.End(ctx, id, 0, true); err != nil {
				slog.Error("failed to end room after signal loss", "room_id", id, "error", err)
			}
		}
	}
}
