package server

import (
	"clubhub/internal/models"
	"clubhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ReviewRequest struct {
	Status string `json:"status"`
}

// UpdateFormRequest changes the recruitment settings. Omitted fields are kept.
type UpdateFormRequest struct {
	IsActive      *bool                 `json:"is_active"`
	MaxApplicants *int                  `json:"max_applicants"`
	FormQuestions []models.FormQuestion `json:"form_questions"`
}

type QuestionsRequest struct {
	Questions []models.FormQuestion `json:"questions"`
}

// CreateApplication godoc
// @Summary Submit an application for the current account
// @Description Does not consume recruitment capacity.
// @Tags applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body ApplicationRequest true "Application answers"
// @Success 201 {object} models.Application
// @Failure 400 {object} models.ErrorResponse
// @Router /api/applications [post]
func (s *Server) CreateApplication(c *fiber.Ctx) error {
	var req ApplicationRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	app, err := s.applications.Create(c.UserContext(), currentUser(c).ID, req.input())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(app)
}

// GetMyApplication godoc
// @Summary The caller's application
// @Tags applications
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.Application
// @Failure 404 {object} models.ErrorResponse
// @Router /api/applications/my [get]
func (s *Server) GetMyApplication(c *fiber.Ctx) error {
	app, err := s.applications.GetMine(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(app)
}

// ListApplications godoc
// @Summary List applications, newest first
// @Tags applications
// @Security BearerAuth
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {array} models.Application
// @Router /api/applications [get]
func (s *Server) ListApplications(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	apps, err := s.applications.List(c.UserContext(), c.Query("status"), page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(apps)
}

// GetApplication godoc
// @Summary Get one application
// @Tags applications
// @Security BearerAuth
// @Produce json
// @Param id path int true "Application ID"
// @Success 200 {object} models.Application
// @Failure 404 {object} models.ErrorResponse
// @Router /api/applications/{id} [get]
func (s *Server) GetApplication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	app, err := s.applications.Get(c.UserContext(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(app)
}

// ReviewApplication godoc
// @Summary Approve or reject an application
// @Description Approval also approves the applicant's account.
// @Tags applications
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Application ID"
// @Param request body ReviewRequest true "approved or rejected"
// @Success 200 {object} service.ReviewResult
// @Failure 400 {object} models.ErrorResponse
// @Router /api/applications/{id} [put]
func (s *Server) ReviewApplication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	var req ReviewRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	result, err := s.applications.Review(c.UserContext(), currentUser(c).ID, id, req.Status)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(result)
}

// DeleteApplication godoc
// @Summary Delete an application
// @Description The recruitment counter is left unchanged.
// @Tags applications
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /api/applications/{id} [delete]
func (s *Server) DeleteApplication(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.applications.Delete(c.UserContext(), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetApplicationForm godoc
// @Summary Current recruitment form
// @Tags application-form
// @Produce json
// @Success 200 {object} models.ApplicationForm
// @Router /api/application-form [get]
func (s *Server) GetApplicationForm(c *fiber.Ctx) error {
	form, err := s.applications.GetForm(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(form)
}

// UpdateApplicationForm godoc
// @Summary Change recruitment settings
// @Tags application-form
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body UpdateFormRequest true "Form settings"
// @Success 200 {object} models.ApplicationForm
// @Failure 400 {object} models.ErrorResponse
// @Router /api/application-form [put]
func (s *Server) UpdateApplicationForm(c *fiber.Ctx) error {
	var req UpdateFormRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	form, err := s.applications.UpdateForm(c.UserContext(), currentUser(c).ID, service.FormInput{
		IsActive:      req.IsActive,
		MaxApplicants: req.MaxApplicants,
		Questions:     req.FormQuestions,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(form)
}

// GetFormQuestions godoc
// @Summary Questions of the current form
// @Tags application-form
// @Produce json
// @Success 200 {object} QuestionsRequest
// @Router /api/application-form/questions [get]
func (s *Server) GetFormQuestions(c *fiber.Ctx) error {
	questions, err := s.applications.GetQuestions(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"questions": questions})
}

// UpdateFormQuestions godoc
// @Summary Replace the form questions
// @Tags application-form
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body QuestionsRequest true "Questions"
// @Success 200 {object} QuestionsRequest
// @Failure 400 {object} models.ErrorResponse
// @Router /api/application-form/questions [put]
func (s *Server) UpdateFormQuestions(c *fiber.Ctx) error {
	var req QuestionsRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}
	questions, err := s.applications.UpdateQuestions(c.UserContext(), currentUser(c).ID, req.Questions)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(fiber.Map{"questions": questions})
}

// GetRecruitmentStatus godoc
// @Summary Public capacity view
// @Tags application-form
// @Produce json
// @Success 200 {object} models.RecruitmentStatus
// @Router /api/application-form/status [get]
func (s *Server) GetRecruitmentStatus(c *fiber.Ctx) error {
	status, err := s.applications.Status(c.UserContext())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(status)
}

// ResetApplicants godoc
// @Summary Reset the applicant counter to zero
// @Tags application-form
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.ApplicationForm
// @Failure 404 {object} models.ErrorResponse
// @Router /api/application-form/reset-applicants [post]
func (s *Server) ResetApplicants(c *fiber.Ctx) error {
	form, err := s.applications.ResetApplicants(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(form)
}
