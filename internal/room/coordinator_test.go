package room

import (
	"context"
	"sync"
	"testing"

	"limelight/internal/events"
	"limelight/internal/models"
	"limelight/internal/repository"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Room{},
		&models.RoomMessage{},
		&models.ChatBan{},
		&models.HostBan{},
		&models.Report{},
	)
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

type recordedEvent struct {
	roomID  uint
	evtType events.EventType
	payload interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(roomID uint, evtType events.EventType, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{roomID, evtType, payload})
}

func (p *recordingPublisher) PublishAdmin(evtType events.EventType, payload interface{}) {
	p.Publish(0, evtType, payload)
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.EventType
	for _, e := range p.events {
		out = append(out, e.evtType)
	}
	return out
}

func newTestCoordinator(t *testing.T) (*Coordinator, *recordingPublisher, *gorm.DB) {
	db := setupTestDB(t)
	pub := &recordingPublisher{}
	coord := NewCoordinator(
		repository.NewRoomRepository(db),
		repository.NewHostBanRepository(db),
		pub,
		nil,
		nil,
	)
	return coord, pub, db
}

func TestCoordinator_CreateStartsWaitingWithStreamKey(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	room, err := coord.Create(context.Background(), CreateParams{HostID: 1, Title: "Jam"})
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStateWaiting, room.State)
	assert.Equal(t, models.ModerationActive, room.ModerationStatus)
	assert.Equal(t, models.PrivacyPublic, room.PrivacyType)
	assert.NotEmpty(t, room.StreamKey)
	assert.Nil(t, room.ManifestRef)

	other, err := coord.Create(context.Background(), CreateParams{HostID: 1})
	assert.NoError(t, err)
	assert.NotEqual(t, room.StreamKey, other.StreamKey)
}

func TestCoordinator_CreateRejectsBannedHost(t *testing.T) {
	coord, _, db := newTestCoordinator(t)

	assert.NoError(t, db.Create(&models.HostBan{UserID: 9, BannedByID: 1, Reason: "tos"}).Error)

	_, err := coord.Create(context.Background(), CreateParams{HostID: 9})
	assert.Error(t, err)
	assert.Equal(t, models.CodeForbidden, err.(*models.AppError).Code)
}

func TestCoordinator_CreateRejectsUnknownPrivacy(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	_, err := coord.Create(context.Background(), CreateParams{HostID: 1, PrivacyType: "secret"})
	assert.Error(t, err)
	assert.Equal(t, models.CodeValidation, err.(*models.AppError).Code)
}

func TestCoordinator_ManifestReadyMovesWaitingToPreview(t *testing.T) {
	coord, pub, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, err := coord.Create(ctx, CreateParams{HostID: 1})
	assert.NoError(t, err)

	room, err = coord.ManifestReady(ctx, room.ID, "https://cdn.example/m1.m3u8")
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStatePreview, room.State)
	if assert.NotNil(t, room.ManifestRef) {
		assert.Equal(t, "https://cdn.example/m1.m3u8", *room.ManifestRef)
	}
	assert.Equal(t, []events.EventType{events.TypePreviewReady}, pub.types())

	// A repeated signal refreshes the reference without another transition.
	room, err = coord.ManifestReady(ctx, room.ID, "https://cdn.example/m2.m3u8")
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStatePreview, room.State)
	assert.Equal(t, "https://cdn.example/m2.m3u8", *room.ManifestRef)
	assert.Equal(t, []events.EventType{events.TypePreviewReady}, pub.types())
}

func TestCoordinator_ManifestReadyRejectsEndedRoom(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1})
	_, err := coord.End(ctx, room.ID, 1, false)
	assert.NoError(t, err)

	_, err = coord.ManifestReady(ctx, room.ID, "https://cdn.example/m.m3u8")
	assert.Error(t, err)
	assert.Equal(t, models.CodeConflict, err.(*models.AppError).Code)
}

func TestCoordinator_GoLiveGuards(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1, Title: "Jam"})

	t.Run("before manifest", func(t *testing.T) {
		_, err := coord.GoLive(ctx, room.ID, 1)
		assert.Error(t, err)
		assert.Equal(t, models.CodePreconditionFailed, err.(*models.AppError).Code)
	})

	_, err := coord.ManifestReady(ctx, room.ID, "https://cdn.example/m.m3u8")
	assert.NoError(t, err)

	t.Run("non-host", func(t *testing.T) {
		_, err := coord.GoLive(ctx, room.ID, 2)
		assert.Error(t, err)
		assert.Equal(t, models.CodeForbidden, err.(*models.AppError).Code)
	})

	t.Run("empty title", func(t *testing.T) {
		untitled, _ := coord.Create(ctx, CreateParams{HostID: 1})
		_, err := coord.ManifestReady(ctx, untitled.ID, "https://cdn.example/u.m3u8")
		assert.NoError(t, err)
		_, err = coord.GoLive(ctx, untitled.ID, 1)
		assert.Error(t, err)
		assert.Equal(t, models.CodePreconditionFailed, err.(*models.AppError).Code)
	})

	t.Run("success", func(t *testing.T) {
		live, err := coord.GoLive(ctx, room.ID, 1)
		assert.NoError(t, err)
		assert.Equal(t, models.RoomStateLive, live.State)
		assert.NotNil(t, live.StartedAt)
		// The go-live precondition holds retroactively.
		assert.NotNil(t, live.ManifestRef)
		assert.NotEmpty(t, live.Title)
	})

	t.Run("repeat is harmless", func(t *testing.T) {
		live, err := coord.GoLive(ctx, room.ID, 1)
		assert.NoError(t, err)
		assert.Equal(t, models.RoomStateLive, live.State)
	})
}

func TestCoordinator_EndIsIdempotent(t *testing.T) {
	coord, pub, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1, Title: "Jam"})
	_, _ = coord.ManifestReady(ctx, room.ID, "https://cdn.example/m.m3u8")
	_, _ = coord.GoLive(ctx, room.ID, 1)

	ended, err := coord.End(ctx, room.ID, 1, false)
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, ended.State)
	assert.NotNil(t, ended.EndedAt)
	assert.Nil(t, ended.ManifestRef)

	again, err := coord.End(ctx, room.ID, 1, false)
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, again.State)
	assert.Equal(t, ended.EndedAt.Unix(), again.EndedAt.Unix())

	// The ended event goes out exactly once.
	count := 0
	for _, typ := range pub.types() {
		if typ == events.TypeEnded {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCoordinator_EndRequiresHostUnlessForced(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1, Title: "Jam"})

	_, err := coord.End(ctx, room.ID, 2, false)
	assert.Error(t, err)
	assert.Equal(t, models.CodeForbidden, err.(*models.AppError).Code)

	ended, err := coord.End(ctx, room.ID, 2, true)
	assert.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, ended.State)
}

func TestCoordinator_BanForcesEndAndBlocksGoLive(t *testing.T) {
	coord, pub, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1, Title: "Jam"})
	_, _ = coord.ManifestReady(ctx, room.ID, "https://cdn.example/m.m3u8")
	_, _ = coord.GoLive(ctx, room.ID, 1)

	banned, err := coord.Ban(ctx, room.ID, 99, "tos violation")
	assert.NoError(t, err)
	assert.Equal(t, models.ModerationBanned, banned.ModerationStatus)
	assert.Equal(t, models.RoomStateEnded, banned.State)
	assert.NotNil(t, banned.EndedAt)

	// banned precedes ended on the wire.
	types := pub.types()
	assert.Equal(t, []events.EventType{
		events.TypePreviewReady, events.TypeWentLive, events.TypeBanned, events.TypeEnded,
	}, types)

	// Repeat ban is a no-op.
	_, err = coord.Ban(ctx, room.ID, 99, "again")
	assert.NoError(t, err)
	assert.Equal(t, types, pub.types())

	_, err = coord.GoLive(ctx, room.ID, 1)
	assert.Error(t, err)
	assert.Equal(t, models.CodeConflict, err.(*models.AppError).Code)
}

func TestCoordinator_UpdateDetails(t *testing.T) {
	coord, pub, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1})

	_, err := coord.UpdateDetails(ctx, room.ID, 1, "", "desc")
	assert.Error(t, err)
	assert.Equal(t, models.CodeValidation, err.(*models.AppError).Code)

	_, err = coord.UpdateDetails(ctx, room.ID, 2, "Jam", "desc")
	assert.Error(t, err)
	assert.Equal(t, models.CodeForbidden, err.(*models.AppError).Code)

	updated, err := coord.UpdateDetails(ctx, room.ID, 1, "Jam", "late night set")
	assert.NoError(t, err)
	assert.Equal(t, "Jam", updated.Title)
	assert.Equal(t, []events.EventType{events.TypeDetailsChanged}, pub.types())

	_, _ = coord.End(ctx, room.ID, 1, false)
	_, err = coord.UpdateDetails(ctx, room.ID, 1, "Too late", "")
	assert.Error(t, err)
	assert.Equal(t, models.CodeConflict, err.(*models.AppError).Code)
}

func TestCoordinator_UpdatePrivacy(t *testing.T) {
	coord, pub, _ := newTestCoordinator(t)
	ctx := context.Background()

	room, _ := coord.Create(ctx, CreateParams{HostID: 1})

	_, err := coord.UpdatePrivacy(ctx, room.ID, 1, "friends_of_friends")
	assert.Error(t, err)
	assert.Equal(t, models.CodeValidation, err.(*models.AppError).Code)

	updated, err := coord.UpdatePrivacy(ctx, room.ID, 1, models.PrivacyFollowOnly)
	assert.NoError(t, err)
	assert.Equal(t, models.PrivacyFollowOnly, updated.PrivacyType)
	assert.Equal(t, []events.EventType{events.TypePrivacyChanged}, pub.types())
}

func TestCoordinator_ListActiveExcludesWaitingAndEnded(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	waiting, _ := coord.Create(ctx, CreateParams{HostID: 1, Title: "a"})
	previewing, _ := coord.Create(ctx, CreateParams{HostID: 2, Title: "b"})
	_, _ = coord.ManifestReady(ctx, previewing.ID, "https://cdn.example/b.m3u8")
	finished, _ := coord.Create(ctx, CreateParams{HostID: 3, Title: "c"})
	_, _ = coord.End(ctx, finished.ID, 3, false)

	rooms, total, err := coord.ListActive(ctx, 20, 0)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total)
	if assert.Len(t, rooms, 1) {
		assert.Equal(t, previewing.ID, rooms[0].ID)
		assert.NotEqual(t, waiting.ID, rooms[0].ID)
	}
}

func TestCanView(t *testing.T) {
	public := &models.Room{HostID: 1, PrivacyType: models.PrivacyPublic}
	private := &models.Room{HostID: 1, PrivacyType: models.PrivacyFollowOnly}

	assert.True(t, CanView(public, 2, 0, false))
	assert.False(t, CanView(private, 2, 0, false))
	assert.True(t, CanView(private, 2, 0, true))
	assert.True(t, CanView(private, 1, 0, false), "host always views their own room")
	assert.True(t, CanView(private, 2, models.CapBypassPrivacy, false))
}
