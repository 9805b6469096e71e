package server

import (
	"clubhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UpdateProfileRequest lists the profile fields a member may change. Omitted fields are kept.
type UpdateProfileRequest struct {
	Username    *string `json:"username"`
	RealName    *string `json:"real_name"`
	PhoneNumber *string `json:"phone_number"`
	Major       *string `json:"major"`
	Year        *int    `json:"year"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type DeleteAccountRequest struct {
	Password string `json:"password"`
}

type UpdateRoleRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// ListUsers godoc
// @Summary List active users
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {array} models.User
// @Router /api/users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	users, err := s.membership.List(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(users)
}

// ListPendingUsers godoc
// @Summary Users awaiting approval
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.User
// @Router /api/users/pending [get]
func (s *Server) ListPendingUsers(c *fiber.Ctx) error {
	users, err := s.membership.ListPending(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(users)
}

// GetUserStats godoc
// @Summary Membership counts
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.UserStats
// @Router /api/users/stats [get]
func (s *Server) GetUserStats(c *fiber.Ctx) error {
	stats, err := s.membership.Stats(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(stats)
}

// UpdateMyProfile godoc
// @Summary Update own profile
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /api/users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req UpdateProfileRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.membership.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:      currentUser(c).ID,
		Username:    req.Username,
		RealName:    req.RealName,
		PhoneNumber: req.PhoneNumber,
		Major:       req.Major,
		Year:        req.Year,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(user)
}

// ChangeMyPassword godoc
// @Summary Change own password
// @Tags users
// @Security BearerAuth
// @Accept json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /api/users/me/password [put]
func (s *Server) ChangeMyPassword(c *fiber.Ctx) error {
	var req ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if err := s.membership.ChangePassword(c.UserContext(), currentUser(c).ID, req.CurrentPassword, req.NewPassword); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteMyAccount godoc
// @Summary Permanently delete own account
// @Description Removes the account with its posts, comments, gallery items and application.
// @Tags users
// @Security BearerAuth
// @Accept json
// @Param request body DeleteAccountRequest true "Password confirmation"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /api/users/me [delete]
func (s *Server) DeleteMyAccount(c *fiber.Ctx) error {
	var req DeleteAccountRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if err := s.membership.DeleteSelf(c.UserContext(), currentUser(c).ID, req.Password); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ApproveUser godoc
// @Summary Approve a member
// @Tags users
// @Security BearerAuth
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} models.ErrorResponse
// @Router /api/users/{id}/approve [post]
func (s *Server) ApproveUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	user, err := s.membership.Approve(c.UserContext(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(user)
}

// RejectUser godoc
// @Summary Reject a pending registration
// @Description Removes an unapproved account and everything it owns.
// @Tags users
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /api/users/{id}/reject [post]
func (s *Server) RejectUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.membership.Reject(c.UserContext(), currentUser(c).ID, id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateUserRole godoc
// @Summary Grant or revoke admin
// @Tags users
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateRoleRequest true "Role"
// @Success 200 {object} models.User
// @Failure 403 {object} models.ErrorResponse
// @Router /api/users/{id}/role [put]
func (s *Server) UpdateUserRole(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req UpdateRoleRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.membership.UpdateRole(c.UserContext(), currentUser(c).ID, id, req.IsAdmin)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(user)
}

// SoftDeleteUser godoc
// @Summary Soft-delete a member
// @Tags users
// @Security BearerAuth
// @Param id path int true "User ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /api/users/{id} [delete]
func (s *Server) SoftDeleteUser(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.membership.SoftDelete(c.UserContext(), currentUser(c).ID, id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
