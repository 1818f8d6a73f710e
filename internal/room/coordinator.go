// Package room implements the broadcast session lifecycle state machine.
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"limelight/internal/events"
	"limelight/internal/models"
	"limelight/internal/observability"
	"limelight/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubscriberCloser disconnects a room's subscribers once the room is terminal.
type SubscriberCloser interface {
	CloseRoom(roomID uint)
}

// PresenceCleaner drops the viewer set of a terminal room.
type PresenceCleaner interface {
	ClearRoom(ctx context.Context, roomID uint)
}

// Coordinator is the single authoritative writer for every room's lifecycle.
// All mutating operations on one room are serialized behind a per-room lock;
// different rooms transition independently.
type Coordinator struct {
	rooms    repository.RoomRepository
	hostBans repository.HostBanRepository
	pub      events.Publisher
	closer   SubscriberCloser
	presence PresenceCleaner
	modlog   *observability.ModerationLogger

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewCoordinator wires a Coordinator. closer and presence may be nil when the
// caller has no subscriber or presence infrastructure (tests, CLI tools).
func NewCoordinator(
	rooms repository.RoomRepository,
	hostBans repository.HostBanRepository,
	pub events.Publisher,
	closer SubscriberCloser,
	presence PresenceCleaner,
) *Coordinator {
	return &Coordinator{
		rooms:    rooms,
		hostBans: hostBans,
		pub:      pub,
		closer:   closer,
		presence: presence,
		modlog:   observability.NewModerationLogger(),
		locks:    make(map[uint]*sync.Mutex),
	}
}

// lockRoom returns the mutex serializing mutations for one room.
func (c *Coordinator) lockRoom(roomID uint) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.locks[roomID]
	if l == nil {
		l = &sync.Mutex{}
		c.locks[roomID] = l
	}
	return l
}

// releaseRoom drops the lock entry for a terminal room.
func (c *Coordinator) releaseRoom(roomID uint) {
	c.mu.Lock()
	delete(c.locks, roomID)
	c.mu.Unlock()
}

// CreateParams carries the host-provided fields for a new room.
type CreateParams struct {
	HostID      uint
	Title       string
	Description string
	PrivacyType models.PrivacyType
}

// Create starts a new session in the waiting state with a fresh stream
// credential. Hosts under a livestreaming ban are rejected.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (*models.Room, error) {
	banned, err := c.hostBans.IsBanned(ctx, params.HostID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if banned {
		return nil, models.NewForbiddenError("host is banned from livestreaming")
	}

	privacy := params.PrivacyType
	if privacy == "" {
		privacy = models.PrivacyPublic
	}
	if privacy != models.PrivacyPublic && privacy != models.PrivacyFollowOnly {
		return nil, models.NewValidationError("invalid privacy type")
	}

	room := &models.Room{
		HostID:           params.HostID,
		Title:            params.Title,
		Description:      params.Description,
		State:            models.RoomStateWaiting,
		ModerationStatus: models.ModerationActive,
		PrivacyType:      privacy,
		StreamKey:        uuid.NewString(),
	}
	if err := c.rooms.Create(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.RoomTransitions.WithLabelValues(string(models.RoomStateWaiting)).Inc()
	return room, nil
}

// Get loads a room by id.
func (c *Coordinator) Get(ctx context.Context, roomID uint) (*models.Room, error) {
	room, err := c.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", roomID)
		}
		return nil, models.NewInternalError(err)
	}
	return room, nil
}

// GetByStreamKey loads a room by its ingest credential.
func (c *Coordinator) GetByStreamKey(ctx context.Context, key string) (*models.Room, error) {
	room, err := c.rooms.GetByStreamKey(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("room", key)
		}
		return nil, models.NewInternalError(err)
	}
	return room, nil
}

// ManifestReady moves a waiting room into preview once the ingest bridge
// reports a playable manifest. A repeated signal on a room already in preview
// or live refreshes the manifest reference without a transition.
func (c *Coordinator) ManifestReady(ctx context.Context, roomID uint, manifestRef string) (*models.Room, error) {
	if manifestRef == "" {
		return nil, models.NewValidationError("manifest reference must not be empty")
	}

	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.IsTerminal() {
		return nil, models.NewConflictError("room has ended")
	}

	switch room.State {
	case models.RoomStateWaiting:
		room.State = models.RoomStatePreview
		room.ManifestRef = &manifestRef
		if err := c.rooms.Save(ctx, room); err != nil {
			return nil, models.NewInternalError(err)
		}
		observability.RoomTransitions.WithLabelValues(string(models.RoomStatePreview)).Inc()
		c.pub.Publish(room.ID, events.TypePreviewReady, events.PreviewReadyPayload{ManifestRef: manifestRef})
	case models.RoomStatePreview, models.RoomStateLive:
		room.ManifestRef = &manifestRef
		if err := c.rooms.Save(ctx, room); err != nil {
			return nil, models.NewInternalError(err)
		}
	}
	return room, nil
}

// GoLive moves a preview room into live. Only the host may do this, and only
// with a non-empty title and a manifest in place.
func (c *Coordinator) GoLive(ctx context.Context, roomID, callerID uint) (*models.Room, error) {
	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != callerID {
		return nil, models.NewForbiddenError("only the host can go live")
	}
	if room.IsTerminal() {
		return nil, models.NewConflictError("room has ended")
	}
	if room.State == models.RoomStateLive {
		// Redundant but harmless.
		return room, nil
	}
	if room.State != models.RoomStatePreview {
		return nil, models.NewPreconditionFailedError("cannot go live before the media signal is ready")
	}
	if room.Title == "" {
		return nil, models.NewPreconditionFailedError("a title is required to go live")
	}
	if room.ManifestRef == nil {
		return nil, models.NewPreconditionFailedError("cannot go live without a manifest")
	}

	now := time.Now().UTC()
	room.State = models.RoomStateLive
	room.StartedAt = &now
	if err := c.rooms.Save(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	observability.RoomTransitions.WithLabelValues(string(models.RoomStateLive)).Inc()
	c.pub.Publish(room.ID, events.TypeWentLive, nil)
	return room, nil
}

// End moves a room into the terminal ended state. The host may end their own
// room; force bypasses the host check for admin and system callers. Ending an
// already-ended room is a no-op.
func (c *Coordinator) End(ctx context.Context, roomID, callerID uint, force bool) (*models.Room, error) {
	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !force && room.HostID != callerID {
		return nil, models.NewForbiddenError("only the host can end the room")
	}
	if room.State == models.RoomStateEnded {
		return room, nil
	}

	c.end(ctx, room)
	if err := c.rooms.Save(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	c.pub.Publish(room.ID, events.TypeEnded, nil)
	c.finishRoom(ctx, room.ID)
	return room, nil
}

// Ban sets the room's moderation status to banned and, when the room is still
// broadcasting, forces an end transition too. Idempotent on repeat.
func (c *Coordinator) Ban(ctx context.Context, roomID, adminID uint, reason string) (*models.Room, error) {
	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.ModerationStatus == models.ModerationBanned {
		return room, nil
	}

	room.ModerationStatus = models.ModerationBanned
	wasBroadcasting := room.State != models.RoomStateEnded
	if wasBroadcasting {
		c.end(ctx, room)
	}
	if err := c.rooms.Save(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	c.modlog.LogAction(ctx, "ban_room", adminID, map[string]interface{}{
		"room_id": room.ID,
		"reason":  reason,
	})

	c.pub.Publish(room.ID, events.TypeBanned, events.BannedPayload{Reason: reason})
	if wasBroadcasting {
		c.pub.Publish(room.ID, events.TypeEnded, nil)
	}
	c.finishRoom(ctx, room.ID)
	return room, nil
}

// end applies the terminal bookkeeping. Caller holds the room lock and saves.
func (c *Coordinator) end(_ context.Context, room *models.Room) {
	now := time.Now().UTC()
	room.State = models.RoomStateEnded
	room.EndedAt = &now
	room.ManifestRef = nil
	observability.RoomTransitions.WithLabelValues(string(models.RoomStateEnded)).Inc()
}

// finishRoom tears down subscribers, presence and the room lock entry after a
// terminal transition was committed and its events published.
func (c *Coordinator) finishRoom(ctx context.Context, roomID uint) {
	if c.closer != nil {
		c.closer.CloseRoom(roomID)
	}
	if c.presence != nil {
		c.presence.ClearRoom(ctx, roomID)
	}
	c.releaseRoom(roomID)
}

// UpdateDetails changes title and description. Host only, and only while the
// room can still broadcast.
func (c *Coordinator) UpdateDetails(ctx context.Context, roomID, callerID uint, title, description string) (*models.Room, error) {
	if title == "" {
		return nil, models.NewValidationError("title must not be empty")
	}

	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != callerID {
		return nil, models.NewForbiddenError("only the host can edit the room")
	}
	if room.IsTerminal() || !room.AcceptsDetailEdits() {
		return nil, models.NewConflictError("room has ended")
	}

	room.Title = title
	room.Description = description
	if err := c.rooms.Save(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	c.pub.Publish(room.ID, events.TypeDetailsChanged, events.DetailsChangedPayload{
		Title:       title,
		Description: description,
	})
	return room, nil
}

// UpdatePrivacy changes who may subscribe. Host only, same state rules as
// detail edits.
func (c *Coordinator) UpdatePrivacy(ctx context.Context, roomID, callerID uint, privacy models.PrivacyType) (*models.Room, error) {
	if privacy != models.PrivacyPublic && privacy != models.PrivacyFollowOnly {
		return nil, models.NewValidationError("invalid privacy type")
	}

	l := c.lockRoom(roomID)
	l.Lock()
	defer l.Unlock()

	room, err := c.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.HostID != callerID {
		return nil, models.NewForbiddenError("only the host can edit the room")
	}
	if room.IsTerminal() || !room.AcceptsDetailEdits() {
		return nil, models.NewConflictError("room has ended")
	}

	room.PrivacyType = privacy
	if err := c.rooms.Save(ctx, room); err != nil {
		return nil, models.NewInternalError(err)
	}

	c.pub.Publish(room.ID, events.TypePrivacyChanged, events.PrivacyChangedPayload{
		PrivacyType: string(privacy),
	})
	return room, nil
}

// ListActive returns rooms currently in preview or live.
func (c *Coordinator) ListActive(ctx context.Context, limit, offset int) ([]*models.Room, int64, error) {
	rooms, total, err := c.rooms.ListActive(ctx, limit, offset)
	if err != nil {
		return nil, 0, models.NewInternalError(err)
	}
	return rooms, total, nil
}

// ListByHost returns all rooms a host has created, newest first.
func (c *Coordinator) ListByHost(ctx context.Context, hostID uint) ([]*models.Room, error) {
	rooms, err := c.rooms.ListByHost(ctx, hostID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return rooms, nil
}

// CanView decides whether a caller may watch a room. The host always can;
// follow_only rooms require the caller to follow the host.
func CanView(room *models.Room, callerID uint, caps models.Capability, isFollower bool) bool {
	if callerID == room.HostID {
		return true
	}
	if caps.Has(models.CapBypassPrivacy) {
		return true
	}
	if room.PrivacyType == models.PrivacyFollowOnly {
		return isFollower
	}
	return true
}
