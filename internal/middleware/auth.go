// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"strconv"
	"strings"

	"limelight/internal/config"
	"limelight/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// UserLookup resolves a user record by ID. The auth middleware uses it to
// resolve the caller's capability set once per request.
type UserLookup func(ctx context.Context, userID uint) (*models.User, error)

func parseBearer(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}

	// User ID travels in the "sub" claim (RFC 7519 subject).
	subClaim, ok := claims["sub"]
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid token structure - missing subject")
	}
	subStr, ok := subClaim.(string)
	if !ok {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid token subject type")
	}
	userID, err := strconv.ParseUint(subStr, 10, 32)
	if err != nil {
		return 0, fiber.NewError(fiber.StatusUnauthorized, "Invalid user ID in token")
	}
	return uint(userID), nil
}

// AuthRequired enforces authentication for protected routes and resolves the
// caller's capability bitset into locals ("userID", "capabilities").
func AuthRequired(lookup UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		userID, err := parseBearer(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("userID", userID)
		c.Locals("capabilities", resolveCapabilities(c, lookup, userID))
		return c.Next()
	}
}

// OptionalAuth resolves the caller's identity when an Authorization header is
// present but lets anonymous requests through. Public browse endpoints use it
// so privacy filtering can still recognize a signed-in caller.
func OptionalAuth(lookup UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Next()
		}

		if userID, err := parseBearer(parts[1]); err == nil {
			c.Locals("userID", userID)
			c.Locals("capabilities", resolveCapabilities(c, lookup, userID))
		}
		return c.Next()
	}
}

// WebSocketAuthRequired validates JWT tokens from query parameters for
// WebSocket connections, falling back to the Authorization header.
func WebSocketAuthRequired(lookup UserLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			authHeader := c.Get("Authorization")
			if authHeader == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Token required",
				})
			}
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid authorization header format",
				})
			}
			token = parts[1]
		}

		userID, err := parseBearer(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		c.Locals("userID", userID)
		c.Locals("capabilities", resolveCapabilities(c, lookup, userID))
		return c.Next()
	}
}

func resolveCapabilities(c *fiber.Ctx, lookup UserLookup, userID uint) models.Capability {
	if lookup == nil {
		return 0
	}
	user, err := lookup(c.UserContext(), userID)
	if err != nil {
		// Unknown users simply get no capabilities; the handler decides 403/404.
		return 0
	}
	return models.CapabilitiesFor(user)
}

// Capabilities returns the capability set resolved for the current request.
func Capabilities(c *fiber.Ctx) models.Capability {
	if caps, ok := c.Locals("capabilities").(models.Capability); ok {
		return caps
	}
	return 0
}

// RequireCapability gates a route on a capability bit.
func RequireCapability(want models.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !Capabilities(c).Has(want) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient privileges",
			})
		}
		return c.Next()
	}
}
