package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"limelight/internal/chat"
	"limelight/internal/config"
	"limelight/internal/events"
	"limelight/internal/ingest"
	"limelight/internal/middleware"
	"limelight/internal/models"
	"limelight/internal/moderation"
	"limelight/internal/presence"
	"limelight/internal/repository"
	"limelight/internal/room"
)

const testJWTSecret = "server-test-secret"

// newTestServer wires a Server against in-memory sqlite without Redis or the
// Prometheus middleware.
func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Follow{},
		&models.Room{},
		&models.RoomMessage{},
		&models.ChatBan{},
		&models.Report{},
		&models.HostBan{},
	))

	cfg := &config.Config{
		JWTSecret:                testJWTSecret,
		Port:                     "0",
		ManifestBaseURL:          "http://cdn.test/hls",
		IngestDetectionWindowSec: 5,
	}
	middleware.InitMiddleware(cfg)

	roomRepo := repository.NewRoomRepository(db)
	chatRepo := repository.NewChatRepository(db)
	reportRepo := repository.NewReportRepository(db)
	hostBanRepo := repository.NewHostBanRepository(db)
	userRepo := repository.NewUserRepository(db)

	s := &Server{
		config:   cfg,
		db:       db,
		userRepo: userRepo,
	}
	s.hub = events.NewHub()
	s.mirror = events.NewMirror(s.hub, nil)
	s.pub = s.mirror
	s.tracker = presence.NewTracker(s.pub, nil)
	s.coordinator = room.NewCoordinator(roomRepo, hostBanRepo, s.pub, s.hub, s.tracker)
	s.chatService = chat.NewService(chatRepo, roomRepo, userRepo, s.pub)
	s.modService = moderation.NewService(reportRepo, hostBanRepo, s.coordinator, s.pub)
	s.bridge = ingest.NewBridge(s.coordinator, nil, cfg.ManifestBaseURL, 5*time.Second)

	return s, db
}

// newTestApp builds a Fiber app with the full route table, auth included.
func newTestApp(t *testing.T) (*fiber.App, *Server, *gorm.DB) {
	t.Helper()
	s, db := newTestServer(t)
	app := fiber.New()
	s.SetupRoutes(app)
	return app, s, db
}

func createUser(t *testing.T, db *gorm.DB, username string, isAdmin bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, IsAdmin: isAdmin}
	require.NoError(t, db.Create(u).Error)
	return u
}

// mintToken signs a short-lived HS256 token for the given user.
func mintToken(t *testing.T, userID uint) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": strconv.FormatUint(uint64(userID), 10),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

// doJSON performs a request against the app. A zero userID sends no token.
func doJSON(t *testing.T, app *fiber.App, method, path string, userID uint, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+mintToken(t, userID))
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
