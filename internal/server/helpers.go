package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"clubhub/internal/middleware"
	"clubhub/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten means a helper already sent the response; the handler
// must return nil so Fiber's ErrorHandler leaves it alone.
var errResponseWritten = errors.New("response already written")

// Pagination is a parsed limit/skip window.
type Pagination struct {
	Limit  int
	Offset int
}

const maxPageSize = 100

// parsePagination reads ?limit and ?skip (or its alias ?offset).
// Non-positive limits fall back to def and large ones are capped at maxPageSize.
func parsePagination(c *fiber.Ctx, def int) Pagination {
	p := Pagination{
		Limit:  c.QueryInt("limit", def),
		Offset: c.QueryInt("skip", c.QueryInt("offset", 0)),
	}
	p.Limit = min(p.Limit, maxPageSize)
	if p.Limit <= 0 {
		p.Limit = def
	}
	p.Offset = max(p.Offset, 0)
	return p
}

// parseID reads a positive integer route parameter. On failure it has already
// answered 400 and returns errResponseWritten; callers return nil.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err == nil && id > 0 {
		return uint(id), nil
	}
	_ = models.RespondWithError(c, fiber.StatusBadRequest,
		models.NewValidationError("Invalid "+humanizeParam(param)))
	return 0, errResponseWritten
}

// humanizeParam turns a route parameter into a label: "id" is "ID", "albumId" is "album ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	base, ok := strings.CutSuffix(param, "Id")
	if !ok {
		return param
	}
	var b strings.Builder
	for i, r := range base {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte(' ')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String() + " ID"
}

// parseBody decodes the JSON body into out, answering 400 on failure.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
		return errResponseWritten
	}
	return nil
}

// statusFor maps AppError codes onto HTTP statuses. Capacity and conflict
// failures are client input errors and share 400 with validation.
func statusFor(code string) int {
	switch code {
	case models.CodeValidation, models.CodeConflict, models.CodeCapacityExceeded:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// mapServiceError writes the response for a service-layer error.
func mapServiceError(c *fiber.Ctx, err error) error {
	status := statusFor(models.ErrorCode(err))
	if status == fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
		return models.RespondWithError(c, status, models.NewInternalError(err))
	}
	return models.RespondWithError(c, status, err)
}

// currentUser returns the authenticated user. Routes using it sit behind AuthRequired.
func currentUser(c *fiber.Ctx) *models.User {
	return middleware.CurrentUser(c)
}
