package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limelight/internal/models"
)

func TestCreateRoom_ReturnsStreamKeyOnce(t *testing.T) {
	t.Parallel()
	app, _, db := newTestApp(t)
	host := createUser(t, db, "host", false)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{
		"title": "morning show",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	require.NotEmpty(t, body["stream_key"])
	rm := body["room"].(map[string]interface{})
	assert.Equal(t, "waiting", rm["state"])
	assert.Equal(t, "public", rm["privacy_type"])

	// The key never shows up on the public snapshot.
	get := doJSON(t, app, http.MethodGet, "/api/rooms/1", 0, nil)
	require.Equal(t, http.StatusOK, get.StatusCode)
	snapshot := decodeBody(t, get)
	assert.NotContains(t, snapshot, "stream_key")
}

func TestCreateRoom_RequiresAuth(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", 0, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetRoom_FollowOnlyHidesManifest(t *testing.T) {
	t.Parallel()
	app, s, db := newTestApp(t)
	host := createUser(t, db, "host", false)
	follower := createUser(t, db, "follower", false)
	stranger := createUser(t, db, "stranger", false)
	require.NoError(t, db.Create(&models.Follow{FollowerID: follower.ID, FolloweeID: host.ID}).Error)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{
		"title":        "members only",
		"privacy_type": "follow_only",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	roomID := uint(decodeBody(t, resp)["room"].(map[string]interface{})["id"].(float64))

	_, err := s.coordinator.ManifestReady(context.Background(), roomID, "http://cdn.test/hls/1/index.m3u8")
	require.NoError(t, err)

	for name, tc := range map[string]struct {
		userID      uint
		hasManifest bool
	}{
		"anonymous": {0, false},
		"stranger":  {stranger.ID, false},
		"follower":  {follower.ID, true},
		"host":      {host.ID, true},
	} {
		t.Run(name, func(t *testing.T) {
			get := doJSON(t, app, http.MethodGet, "/api/rooms/1", tc.userID, nil)
			require.Equal(t, http.StatusOK, get.StatusCode)
			body := decodeBody(t, get)
			if tc.hasManifest {
				assert.NotEmpty(t, body["manifest_ref"], name)
			} else {
				assert.NotContains(t, body, "manifest_ref", name)
			}
		})
	}
}

func TestRoomLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	app, s, db := newTestApp(t)
	host := createUser(t, db, "host", false)
	other := createUser(t, db, "other", false)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{"title": "launch"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// No manifest yet: going live fails the precondition.
	goLive := doJSON(t, app, http.MethodPost, "/api/rooms/1/go-live", host.ID, nil)
	assert.Equal(t, http.StatusConflict, goLive.StatusCode)

	_, err := s.coordinator.ManifestReady(context.Background(), 1, "http://cdn.test/hls/1/index.m3u8")
	require.NoError(t, err)

	// Only the host may go live.
	goLive = doJSON(t, app, http.MethodPost, "/api/rooms/1/go-live", other.ID, nil)
	assert.Equal(t, http.StatusForbidden, goLive.StatusCode)

	goLive = doJSON(t, app, http.MethodPost, "/api/rooms/1/go-live", host.ID, nil)
	require.Equal(t, http.StatusOK, goLive.StatusCode)
	assert.Equal(t, "live", decodeBody(t, goLive)["state"])

	end := doJSON(t, app, http.MethodPost, "/api/rooms/1/end", host.ID, nil)
	require.Equal(t, http.StatusOK, end.StatusCode)
	assert.Equal(t, "ended", decodeBody(t, end)["state"])

	// Ending again is a no-op, not an error.
	end = doJSON(t, app, http.MethodPost, "/api/rooms/1/end", host.ID, nil)
	assert.Equal(t, http.StatusOK, end.StatusCode)

	// A terminal room never broadcasts again.
	goLive = doJSON(t, app, http.MethodPost, "/api/rooms/1/go-live", host.ID, nil)
	assert.Equal(t, http.StatusConflict, goLive.StatusCode)
}

func TestUpdateDetails_HostOnly(t *testing.T) {
	t.Parallel()
	app, _, db := newTestApp(t)
	host := createUser(t, db, "host", false)
	other := createUser(t, db, "other", false)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{"title": "before"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	upd := doJSON(t, app, http.MethodPut, "/api/rooms/1", other.ID, map[string]string{"title": "hijacked"})
	assert.Equal(t, http.StatusForbidden, upd.StatusCode)

	upd = doJSON(t, app, http.MethodPut, "/api/rooms/1", host.ID, map[string]string{"title": "after"})
	require.Equal(t, http.StatusOK, upd.StatusCode)
	assert.Equal(t, "after", decodeBody(t, upd)["title"])
}

// The public listing carries only broadcasting rooms: waiting rooms have
// nothing to watch yet and ended rooms are gone for good.
func TestListActiveRooms_OnlyBroadcastingRooms(t *testing.T) {
	t.Parallel()
	app, s, db := newTestApp(t)
	host := createUser(t, db, "host", false)
	ctx := context.Background()

	for _, title := range []string{"waiting", "preview", "ended"} {
		resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{"title": title})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	_, err := s.coordinator.ManifestReady(ctx, 2, "http://cdn.test/hls/2/index.m3u8")
	require.NoError(t, err)
	_, err = s.coordinator.ManifestReady(ctx, 3, "http://cdn.test/hls/3/index.m3u8")
	require.NoError(t, err)
	_, err = s.coordinator.End(ctx, 3, host.ID, false)
	require.NoError(t, err)

	list := doJSON(t, app, http.MethodGet, "/api/rooms/", 0, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	body := decodeBody(t, list)
	if assert.Len(t, body["rooms"], 1) {
		rm := body["rooms"].([]interface{})[0].(map[string]interface{})
		assert.Equal(t, "preview", rm["title"])
	}
	assert.EqualValues(t, 1, body["total"])
}

func TestGetMyRooms_IncludesEnded(t *testing.T) {
	t.Parallel()
	app, s, db := newTestApp(t)
	host := createUser(t, db, "host", false)

	resp := doJSON(t, app, http.MethodPost, "/api/rooms/", host.ID, map[string]string{"title": "old"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, err := s.coordinator.End(context.Background(), 1, host.ID, false)
	require.NoError(t, err)

	mine := doJSON(t, app, http.MethodGet, "/api/me/rooms", host.ID, nil)
	require.Equal(t, http.StatusOK, mine.StatusCode)
	assert.Len(t, decodeBody(t, mine)["rooms"], 1)
}

func TestGetRoom_InvalidID(t *testing.T) {
	t.Parallel()
	app, _, _ := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/rooms/banana", 0, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/rooms/999", 0, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
