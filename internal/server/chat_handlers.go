package server

import (
	"github.com/gofiber/fiber/v2"

	"limelight/internal/models"
)

type postMessageRequest struct {
	Text     string `json:"text"`
	ParentID *uint  `json:"parent_id"`
}

// PostChatMessage posts a chat message over HTTP. The same path exists on the
// room WebSocket; both feed the identical service so ordering and moderation
// rules cannot diverge.
func (s *Server) PostChatMessage(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	var req postMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	msg, err := s.chatService.PostMessage(c.UserContext(), roomID, callerID(c), req.Text, req.ParentID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetChatHistory returns the room's message log, newest first. Removed
// messages come back redacted, not omitted, so reply threads stay coherent.
func (s *Server) GetChatHistory(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	p := parsePagination(c, 50)

	messages, err := s.chatService.History(c.UserContext(), roomID, p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"messages": messages,
		"limit":    p.Limit,
		"offset":   p.Offset,
	})
}

type banChatUserRequest struct {
	Reason    string `json:"reason"`
	MessageID *uint  `json:"message_id"`
}

// BanChatUser bans a user from the room's chat, optionally removing one of
// their messages in the same stroke.
func (s *Server) BanChatUser(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	targetID, ok := parseID(c, "userId")
	if !ok {
		return nil
	}

	var req banChatUserRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("invalid request body"))
		}
	}

	err := s.chatService.BanUser(c.UserContext(), roomID, callerID(c), callerCaps(c),
		targetID, req.Reason, req.MessageID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UnbanChatUser lifts a chat ban. Unbanning a user who is not banned succeeds.
func (s *Server) UnbanChatUser(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}
	targetID, ok := parseID(c, "userId")
	if !ok {
		return nil
	}

	err := s.chatService.UnbanUser(c.UserContext(), roomID, callerID(c), callerCaps(c), targetID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListChatBans returns the active chat bans for a room.
func (s *Server) ListChatBans(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	bans, err := s.chatService.ListBans(c.UserContext(), roomID, callerID(c), callerCaps(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"bans": bans})
}
