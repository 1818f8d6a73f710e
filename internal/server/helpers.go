package server

import (
	"strconv"
	"strings"

	"limelight/internal/middleware"
	"limelight/internal/models"

	"github.com/gofiber/fiber/v2"
)

const maxPaginationLimit = 100

// Pagination holds normalized limit/offset values for list endpoints.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination reads limit/offset query params and clamps them to sane
// bounds. Invalid values fall back to the defaults rather than erroring.
func parsePagination(c *fiber.Ctx, defaultLimit int) Pagination {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPaginationLimit {
		limit = maxPaginationLimit
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return Pagination{Limit: limit, Offset: offset}
}

// parseID parses a numeric path parameter, responding 400 on failure. When the
// returned bool is false the handler must return nil; a response was written.
func parseID(c *fiber.Ctx, param string) (uint, bool) {
	raw := c.Params(param)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("invalid "+humanizeParam(param)))
		return 0, false
	}
	return uint(id), true
}

// humanizeParam turns a camelCase path param name into words for error text,
// e.g. "userId" -> "user id".
func humanizeParam(param string) string {
	return strings.ToLower(strings.Join(splitCamel(param), " "))
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// callerID returns the authenticated user ID set by the auth middleware.
func callerID(c *fiber.Ctx) uint {
	id, _ := c.Locals("userID").(uint)
	return id
}

// callerCaps returns the capability bitset resolved by the auth middleware.
func callerCaps(c *fiber.Ctx) models.Capability {
	return middleware.Capabilities(c)
}

// respondServiceError maps a service error to its HTTP status and writes the
// error body.
func respondServiceError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.StatusForError(err), err)
}
