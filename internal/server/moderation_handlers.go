package server

import (
	"github.com/gofiber/fiber/v2"

	"limelight/internal/models"
)

type submitReportRequest struct {
	Reason      string `json:"reason"`
	Description string `json:"description"`
}

// SubmitReport files a moderation report against a room. Duplicate reports
// from the same user are accepted; the pending count reflects every filing.
func (s *Server) SubmitReport(c *fiber.Ctx) error {
	roomID, ok := parseID(c, "id")
	if !ok {
		return nil
	}

	var req submitReportRequest
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid request body"))
	}

	report, err := s.modService.SubmitReport(c.UserContext(), roomID, callerID(c),
		models.ReportReason(req.Reason), req.Description)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(report)
}
