// Package middleware provides authentication, authorization, logging and throttling middleware.
package middleware

import (
	"context"
	"strings"

	"clubhub/internal/models"
	"clubhub/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier turns a bearer token into a subject user ID. ok is false for any invalid token.
type TokenVerifier interface {
	VerifyToken(token string) (userID uint, ok bool)
}

// IdentityResolver loads the non-deleted user behind a token subject.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, userID uint) (*models.User, error)
}

const (
	localUserID = "userID"
	localUser   = "user"
)

// bearerToken reads "Authorization: Bearer <token>", falling back to ?token= for websocket upgrades.
func bearerToken(c *fiber.Ctx) string {
	if authHeader := c.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(parts[1])
	}
	return c.Query("token")
}

func resolve(c *fiber.Ctx, verifier TokenVerifier, resolver IdentityResolver) *models.User {
	token := bearerToken(c)
	if token == "" {
		return nil
	}
	userID, ok := verifier.VerifyToken(token)
	if !ok {
		return nil
	}
	user, err := resolver.ResolveIdentity(c.UserContext(), userID)
	if err != nil || user == nil {
		return nil
	}
	return user
}

func attach(c *fiber.Ctx, user *models.User) {
	c.Locals(localUserID, user.ID)
	c.Locals(localUser, user)
	c.SetUserContext(context.WithValue(c.UserContext(), observability.UserIDKey, user.ID))
}

// AuthRequired rejects the request with 401 unless it carries a valid token for a non-deleted user.
// Missing, invalid and expired tokens, unknown subjects and deleted users are indistinguishable.
func AuthRequired(verifier TokenVerifier, resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := resolve(c, verifier, resolver)
		if user == nil {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired credentials"))
		}
		attach(c, user)
		return c.Next()
	}
}

// OptionalAuth attaches the user when a valid token is present and otherwise continues anonymously.
func OptionalAuth(verifier TokenVerifier, resolver IdentityResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if user := resolve(c, verifier, resolver); user != nil {
			attach(c, user)
		}
		return c.Next()
	}
}

// CurrentUser returns the user attached by AuthRequired or OptionalAuth.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localUser).(*models.User)
	return user
}

// ActiveRequired must run after AuthRequired; it answers 403 for users awaiting approval.
func ActiveRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired credentials"))
		}
		if !user.IsApproved {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Account is awaiting admin approval"))
		}
		return c.Next()
	}
}

// AdminRequired must run after AuthRequired; it answers 403 for non-admin users.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := CurrentUser(c)
		if user == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired credentials"))
		}
		if !user.IsAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin privileges required"))
		}
		return c.Next()
	}
}
