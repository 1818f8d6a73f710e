package server

import (
	"github.com/gofiber/fiber/v2"

	"limelight/internal/models"
)

// ingestCallbackRequest is the payload media servers post on stream lifecycle
// callbacks. The stream key doubles as the credential.
type ingestCallbackRequest struct {
	StreamKey string `json:"stream_key"`
}

func parseIngestCallback(c *fiber.Ctx) (string, bool) {
	var req ingestCallbackRequest
	if err := c.BodyParser(&req); err != nil || req.StreamKey == "" {
		// Some media servers send form-encoded callbacks.
		req.StreamKey = c.FormValue("stream_key", c.FormValue("name"))
	}
	if req.StreamKey == "" {
		_ = models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("stream key required"))
		return "", false
	}
	return req.StreamKey, true
}

// IngestPublish handles the media server's on-publish callback: the room moves
// to preview (or refreshes its manifest) and its liveness window opens.
func (s *Server) IngestPublish(c *fiber.Ctx) error {
	key, ok := parseIngestCallback(c)
	if !ok {
		return nil
	}

	rm, err := s.bridge.HandlePublish(c.UserContext(), key)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"room_id":      rm.ID,
		"state":        rm.State,
		"manifest_ref": rm.ManifestRef,
	})
}

// IngestKeepAlive extends the room's liveness window while media keeps flowing.
func (s *Server) IngestKeepAlive(c *fiber.Ctx) error {
	key, ok := parseIngestCallback(c)
	if !ok {
		return nil
	}

	if err := s.bridge.KeepAlive(c.UserContext(), key); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IngestUnpublish handles the media server's on-unpublish callback: the room
// ends authoritatively.
func (s *Server) IngestUnpublish(c *fiber.Ctx) error {
	key, ok := parseIngestCallback(c)
	if !ok {
		return nil
	}

	rm, err := s.bridge.HandleUnpublish(c.UserContext(), key)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{
		"room_id": rm.ID,
		"state":   rm.State,
	})
}
