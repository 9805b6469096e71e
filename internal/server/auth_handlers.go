package server

import (
	"clubhub/internal/models"
	"clubhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	RealName    string  `json:"real_name"`
	StudentID   *string `json:"student_id"`
	PhoneNumber string  `json:"phone_number"`
	Major       string  `json:"major"`
	Year        *int    `json:"year"`
}

func (r RegisterRequest) input() service.RegisterInput {
	return service.RegisterInput{
		Email:       r.Email,
		Username:    r.Username,
		Password:    r.Password,
		RealName:    r.RealName,
		StudentID:   r.StudentID,
		PhoneNumber: r.PhoneNumber,
		Major:       r.Major,
		Year:        r.Year,
	}
}

// ApplicationRequest carries the answers of a membership application.
type ApplicationRequest struct {
	Motivation string         `json:"motivation"`
	Experience string         `json:"experience"`
	Instrument string         `json:"instrument"`
	FormData   map[string]any `json:"form_data"`
}

func (r ApplicationRequest) input() service.ApplicationInput {
	return service.ApplicationInput{
		Motivation: r.Motivation,
		Experience: r.Experience,
		Instrument: r.Instrument,
		FormData:   r.FormData,
	}
}

// IntegratedApplicationRequest registers an account and files its application together.
type IntegratedApplicationRequest struct {
	RegisterRequest
	ApplicationRequest
}

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register godoc
// @Summary Register a new account
// @Description The account starts unapproved and a welcome email is queued.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /api/auth/register [post]
func (s *Server) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	user, err := s.membership.Register(c.UserContext(), req.input())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// Login godoc
// @Summary Log in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} service.LoginResult
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	if req.Email == "" || req.Password == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Email and password are required"))
	}
	result, err := s.membership.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// SubmitIntegratedApplication godoc
// @Summary Register and apply in one step
// @Description Checks the recruitment gate, creates the account and the application, and counts the applicant.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body IntegratedApplicationRequest true "Account and application"
// @Success 201 {object} service.IntegratedResult
// @Failure 400 {object} models.ErrorResponse
// @Router /api/auth/integrated-application [post]
func (s *Server) SubmitIntegratedApplication(c *fiber.Ctx) error {
	var req IntegratedApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	result, err := s.applications.SubmitIntegrated(c.UserContext(), service.IntegratedInput{
		RegisterInput:    req.RegisterRequest.input(),
		ApplicationInput: req.ApplicationRequest.input(),
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// GetMe godoc
// @Summary Current user
// @Tags auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /api/auth/me [get]
func (s *Server) GetMe(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}
