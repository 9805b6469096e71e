package server

import (
	"net/http"
	"testing"

	"clubhub/internal/mail"
	"clubhub/internal/models"
	"clubhub/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationForm_DefaultAndQuestions(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createUser(t, "admin", true, true)
	_, memberToken := ts.createUser(t, "member", true, false)

	resp := ts.do(t, http.MethodGet, "/api/application-form", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	form := decode[models.ApplicationForm](t, resp)
	assert.False(t, form.IsActive, "the default form starts closed")
	assert.Zero(t, form.MaxApplicants)

	resp = ts.do(t, http.MethodPost, "/api/auth/integrated-application", "", integratedRequest("early"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[models.ErrorResponse](t, resp).Error, "not currently recruiting")

	resp = ts.do(t, http.MethodGet, "/api/application-form/questions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[QuestionsRequest](t, resp).Questions, len(service.DefaultFormQuestions()))

	questions := []models.FormQuestion{{ID: 1, Type: "text", Label: "Favourite composer", Required: true}}
	assert.Equal(t, http.StatusForbidden,
		ts.do(t, http.MethodPut, "/api/application-form/questions", memberToken, QuestionsRequest{Questions: questions}).StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/application-form/questions", adminToken, QuestionsRequest{Questions: questions})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/application-form/questions", "", nil)
	got := decode[QuestionsRequest](t, resp).Questions
	require.Len(t, got, 1)
	assert.Equal(t, "Favourite composer", got[0].Label)

	negative := -1
	resp = ts.do(t, http.MethodPut, "/api/application-form", adminToken, UpdateFormRequest{MaxApplicants: &negative})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApplications_SubmitReviewDelete(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createUser(t, "admin", true, true)
	applicant, applicantToken := ts.createUser(t, "frank", false, false)

	resp := ts.do(t, http.MethodGet, "/api/applications/my", applicantToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/applications", applicantToken, ApplicationRequest{Motivation: "I love jazz", Instrument: "sax"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	app := decode[models.Application](t, resp)

	resp = ts.do(t, http.MethodPost, "/api/applications", applicantToken, ApplicationRequest{Motivation: "Again"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "one application per applicant")

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/api/applications", applicantToken, nil).StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/applications?status=pending", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Application](t, resp), 1)

	resp = ts.do(t, http.MethodGet, "/api/applications?status=bogus", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, path("/api/applications/%d", app.ID), adminToken, ReviewRequest{Status: "maybe"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, path("/api/applications/%d", app.ID), adminToken, ReviewRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[service.ReviewResult](t, resp)
	assert.False(t, result.AlreadyReviewed)
	assert.Equal(t, models.ApplicationStatusApproved, result.Application.Status)
	assert.Contains(t, ts.templates(), mail.TemplateApplicationApproved)

	var reloaded models.User
	require.NoError(t, ts.db.First(&reloaded, applicant.ID).Error)
	assert.True(t, reloaded.IsApproved)

	resp = ts.do(t, http.MethodPut, path("/api/applications/%d", app.ID), adminToken, ReviewRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[service.ReviewResult](t, resp).AlreadyReviewed)

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, path("/api/applications/%d", app.ID), adminToken, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, path("/api/applications/%d", app.ID), adminToken, nil).StatusCode)
}

func TestResetApplicants(t *testing.T) {
	ts := newTestServer(t)
	_, adminToken := ts.createUser(t, "admin", true, true)

	max, active := 5, true
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPut, "/api/application-form", adminToken,
		UpdateFormRequest{IsActive: &active, MaxApplicants: &max}).StatusCode)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/auth/integrated-application", "", integratedRequest("gina")).StatusCode)

	resp := ts.do(t, http.MethodPost, "/api/application-form/reset-applicants", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, decode[models.ApplicationForm](t, resp).CurrentApplicants)

	resp = ts.do(t, http.MethodGet, "/api/application-form/status", "", nil)
	status := decode[models.RecruitmentStatus](t, resp)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, 5, *status.Remaining)
}
