package server

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"limelight/internal/events"
	"limelight/internal/middleware"
	"limelight/internal/models"
	"limelight/internal/observability"
)

// incomingWSMessage is the envelope clients send over the room socket.
type incomingWSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type wsChatPayload struct {
	Text     string `json:"text"`
	ParentID *uint  `json:"parent_id"`
}

// RoomEventsHandler returns the WebSocket handler for a room's event stream.
// Subscribing checks the room's privacy rule once, at connect time; a privacy
// change mid-stream does not evict existing subscribers.
func (s *Server) RoomEventsHandler() fiber.Handler {
	wsLogger := observability.NewWSLogger("room hub")

	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)
		roomID, _ := conn.Locals("roomID").(uint)
		ctx := context.Background()

		client, err := s.hub.Register(userID, roomID, conn)
		if err != nil {
			wsLogger.LogError(ctx, userID, roomID, err, "register")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "connection limit reached"))
			_ = conn.Close()
			return
		}
		wsLogger.LogConnect(ctx, userID, roomID)

		connID := uuid.NewString()
		s.tracker.Join(ctx, roomID, userID, connID)

		client.IncomingHandler = s.handleRoomMessage

		go client.WritePump()
		client.ReadPump()

		s.tracker.Leave(ctx, roomID, userID, connID)
		wsLogger.LogDisconnect(ctx, userID, roomID, "closed")
	})

	return func(c *fiber.Ctx) error {
		roomID, ok := parseID(c, "id")
		if !ok {
			return nil
		}

		rm, err := s.coordinator.Get(c.UserContext(), roomID)
		if err != nil {
			return respondServiceError(c, err)
		}
		if rm.IsTerminal() {
			return models.RespondWithError(c, fiber.StatusConflict,
				models.NewConflictError("room has ended"))
		}
		if !s.mayView(c, rm) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("room is restricted to followers"))
		}

		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		// Locals survive the upgrade; the socket callback reads them back.
		c.Locals("roomID", roomID)
		return upgrade(c)
	}
}

// handleRoomMessage dispatches messages arriving on a room socket. Failures go
// back to the sending client only, as a chat_error event; nothing is broadcast.
func (s *Server) handleRoomMessage(client *events.Client, raw []byte) {
	var msg incomingWSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendChatError(client, "malformed message")
		return
	}

	switch msg.Type {
	case "message":
		var p wsChatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			s.sendChatError(client, "malformed message payload")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		allowed, err := middleware.CheckRateLimit(ctx, s.redis, "room_chat",
			strconv.FormatUint(uint64(client.UserID), 10), 30, time.Minute)
		if err == nil && !allowed {
			s.sendChatError(client, "rate limit exceeded")
			return
		}

		if _, err := s.chatService.PostMessage(ctx, client.RoomID, client.UserID, p.Text, p.ParentID); err != nil {
			s.sendChatError(client, messageForClient(err))
		}

	case "ping":
		client.TrySend([]byte(`{"type":"pong"}`))

	default:
		s.sendChatError(client, "unknown message type")
	}
}

// sendChatError delivers a chat_error event to one client without touching the
// room channel.
func (s *Server) sendChatError(client *events.Client, reason string) {
	evt := events.Event{
		Type:    events.TypeChatError,
		RoomID:  client.RoomID,
		Payload: events.ChatErrorPayload{Reason: reason},
		TS:      time.Now().UTC(),
	}
	if data, err := json.Marshal(evt); err == nil {
		client.TrySend(data)
	}
}

// messageForClient extracts a safe, user-facing message from a service error.
func messageForClient(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "message could not be posted"
}

// AdminEventsHandler returns the WebSocket handler for the admin event channel.
func (s *Server) AdminEventsHandler() fiber.Handler {
	wsLogger := observability.NewWSLogger("admin hub")

	upgrade := websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(uint)
		ctx := context.Background()

		client, err := s.hub.RegisterAdmin(userID, conn)
		if err != nil {
			wsLogger.LogError(ctx, userID, 0, err, "register")
			_ = conn.Close()
			return
		}
		wsLogger.LogConnect(ctx, userID, 0)

		go client.WritePump()
		client.ReadPump()

		wsLogger.LogDisconnect(ctx, userID, 0, "closed")
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}
