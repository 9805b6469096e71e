package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"clubhub/internal/mail"
	"clubhub/internal/models"
	"clubhub/internal/notifications"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func integrated(username string) IntegratedInput {
	return IntegratedInput{
		RegisterInput: validRegistration(username),
		ApplicationInput: ApplicationInput{
			Motivation: "I love ensemble playing",
			Instrument: "cello",
			FormData:   map[string]any{"1": "cello"},
		},
	}
}

func TestSubmitIntegrated_CreatesUserApplicationAndCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	form := env.createForm(t, true, 5, 0)

	res, err := env.applications.SubmitIntegrated(ctx, integrated("anna"))
	require.NoError(t, err)
	assert.False(t, res.User.IsApproved)
	assert.Equal(t, models.ApplicationStatusPending, res.Application.Status)
	assert.Equal(t, res.User.ID, res.Application.ApplicantID)
	assert.Equal(t, 1, env.reloadForm(t, form.ID).CurrentApplicants)

	assert.Empty(t, env.mail.Intents(), "integrated submission sends no welcome email")
	assert.Equal(t, []string{notifications.EventApplicationSubmitted}, env.events.types())
}

func TestSubmitIntegrated_Gate(t *testing.T) {
	t.Run("no form", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.applications.SubmitIntegrated(context.Background(), integrated("anna"))
		require.Error(t, err)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		assert.Contains(t, err.Error(), "not configured")
	})

	t.Run("inactive form", func(t *testing.T) {
		env := newTestEnv(t)
		env.createForm(t, false, 0, 0)
		_, err := env.applications.SubmitIntegrated(context.Background(), integrated("anna"))
		require.Error(t, err)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		assert.Contains(t, err.Error(), "not currently recruiting")
		assert.Equal(t, int64(0), env.count(t, &models.User{}))
	})

	t.Run("full", func(t *testing.T) {
		env := newTestEnv(t)
		env.createForm(t, true, 3, 3)
		_, err := env.applications.SubmitIntegrated(context.Background(), integrated("anna"))
		require.Error(t, err)
		assert.Equal(t, models.CodeCapacityExceeded, models.ErrorCode(err))

		var appErr *models.AppError
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, models.CapacityDetails{CurrentApplicants: 3, MaxApplicants: 3}, appErr.Details)
		assert.Equal(t, int64(0), env.count(t, &models.User{}))
	})

	t.Run("unlimited", func(t *testing.T) {
		env := newTestEnv(t)
		form := env.createForm(t, true, 0, 500)
		_, err := env.applications.SubmitIntegrated(context.Background(), integrated("anna"))
		require.NoError(t, err)
		assert.Equal(t, 501, env.reloadForm(t, form.ID).CurrentApplicants)
	})
}

func TestSubmitIntegrated_CapacityIsNeverExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	form := env.createForm(t, true, 2, 0)

	var rejected int
	for i := 0; i < 4; i++ {
		_, err := env.applications.SubmitIntegrated(ctx, integrated(fmt.Sprintf("user%d", i)))
		if err != nil {
			assert.Equal(t, models.CodeCapacityExceeded, models.ErrorCode(err))
			rejected++
		}
	}
	assert.Equal(t, 2, rejected)
	assert.Equal(t, 2, env.reloadForm(t, form.ID).CurrentApplicants)
	assert.Equal(t, int64(2), env.count(t, &models.Application{}))
	assert.Equal(t, int64(2), env.count(t, &models.User{}))
}

func TestSubmitIntegrated_ConflictRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	form := env.createForm(t, true, 10, 0)
	_, err := env.applications.SubmitIntegrated(ctx, integrated("anna"))
	require.NoError(t, err)

	dup := integrated("other")
	dup.Email = "anna@uni.test"
	_, err = env.applications.SubmitIntegrated(ctx, dup)
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	assert.Equal(t, 1, env.reloadForm(t, form.ID).CurrentApplicants)
	assert.Equal(t, int64(1), env.count(t, &models.User{}))
	assert.Equal(t, int64(1), env.count(t, &models.Application{}))
}

func TestSubmitIntegrated_InvalidApplication(t *testing.T) {
	env := newTestEnv(t)
	form := env.createForm(t, true, 10, 0)
	in := integrated("anna")
	in.Motivation = "   "

	_, err := env.applications.SubmitIntegrated(context.Background(), in)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	assert.Equal(t, 0, env.reloadForm(t, form.ID).CurrentApplicants)
}

func TestCreate_StandaloneIgnoresCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	form := env.createForm(t, true, 1, 1)
	user := env.createUser(t, "bert", false, false)

	app, err := env.applications.Create(ctx, user.ID, ApplicationInput{Motivation: "hello"})
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, 1, env.reloadForm(t, form.ID).CurrentApplicants)

	_, err = env.applications.Create(ctx, user.ID, ApplicationInput{Motivation: "again"})
	assert.Equal(t, models.CodeConflict, models.ErrorCode(err))

	mine, err := env.applications.GetMine(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, app.ID, mine.ID)
}

func TestGetMine_NotFound(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "cara", false, false)
	_, err := env.applications.GetMine(context.Background(), user.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))
}

func TestReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)
	applicant := env.createUser(t, "dina", false, false)
	app, err := env.applications.Create(ctx, applicant.ID, ApplicationInput{Motivation: "m", Instrument: "oboe"})
	require.NoError(t, err)

	_, err = env.applications.Review(ctx, admin.ID, app.ID, "pending")
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
	_, err = env.applications.Review(ctx, admin.ID, 999, "approved")
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	res, err := env.applications.Review(ctx, admin.ID, app.ID, "approved")
	require.NoError(t, err)
	assert.False(t, res.AlreadyReviewed)
	assert.Equal(t, "pending", res.PreviousStatus)
	assert.Equal(t, models.ApplicationStatusApproved, res.Application.Status)
	require.NotNil(t, res.Application.ReviewedBy)
	assert.Equal(t, admin.ID, *res.Application.ReviewedBy)
	assert.NotNil(t, res.Application.ReviewedAt)

	approved, err := env.users.GetByIDAny(ctx, applicant.ID)
	require.NoError(t, err)
	assert.True(t, approved.IsApproved)

	intents := env.mail.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, mail.TemplateApplicationApproved, intents[0].Template)
	assert.Equal(t, "oboe", intents[0].Data["instrument"])

	again, err := env.applications.Review(ctx, admin.ID, app.ID, "approved")
	require.NoError(t, err)
	assert.True(t, again.AlreadyReviewed)
	assert.Len(t, env.mail.Intents(), 1, "re-approval sends no second acceptance email")
}

func TestReview_RejectThenApproveSendsAcceptance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)
	applicant := env.createUser(t, "ella", false, false)
	app, err := env.applications.Create(ctx, applicant.ID, ApplicationInput{Motivation: "m"})
	require.NoError(t, err)

	res, err := env.applications.Review(ctx, admin.ID, app.ID, "rejected")
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, res.Application.Status)
	assert.Empty(t, env.mail.Intents())

	notApproved, err := env.users.GetByIDAny(ctx, applicant.ID)
	require.NoError(t, err)
	assert.False(t, notApproved.IsApproved)

	res, err = env.applications.Review(ctx, admin.ID, app.ID, "approved")
	require.NoError(t, err)
	assert.True(t, res.AlreadyReviewed)
	assert.Equal(t, "rejected", res.PreviousStatus)
	require.Len(t, env.mail.Intents(), 1)
	assert.Equal(t, mail.UnspecifiedInstrument, env.mail.Intents()[0].Data["instrument"])
}

func TestListAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)
	form := env.createForm(t, true, 10, 0)
	first, err := env.applications.SubmitIntegrated(ctx, integrated("finn"))
	require.NoError(t, err)
	_, err = env.applications.SubmitIntegrated(ctx, integrated("gail"))
	require.NoError(t, err)
	_, err = env.applications.Review(ctx, admin.ID, first.Application.ID, "approved")
	require.NoError(t, err)

	all, err := env.applications.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := env.applications.List(ctx, "APPROVED", 10, 0)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, first.Application.ID, approved[0].ID)
	require.NotNil(t, approved[0].Applicant)

	_, err = env.applications.List(ctx, "archived", 10, 0)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	require.NoError(t, env.applications.Delete(ctx, first.Application.ID))
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(env.applications.Delete(ctx, first.Application.ID)))
	assert.Equal(t, 2, env.reloadForm(t, form.ID).CurrentApplicants, "deleting an application keeps the count")
}

func TestGetForm_CreatesDefaultOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	form, err := env.applications.GetForm(ctx)
	require.NoError(t, err)
	assert.False(t, form.IsActive)
	assert.Equal(t, 0, form.MaxApplicants)

	again, err := env.applications.GetForm(ctx)
	require.NoError(t, err)
	assert.Equal(t, form.ID, again.ID)
	assert.Equal(t, int64(1), env.count(t, &models.ApplicationForm{}))

	questions, err := env.applications.GetQuestions(ctx)
	require.NoError(t, err)
	require.Len(t, questions, len(DefaultFormQuestions()))
	assert.Equal(t, "Motivation", questions[0].Label)
	assert.Len(t, questions[2].Options, 6)
}

func TestGetForm_DoesNotOpenRecruitment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.applications.SubmitIntegrated(ctx, integrated("anna"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")

	_, err = env.applications.GetForm(ctx)
	require.NoError(t, err)

	for _, name := range []string{"anna", "bora", "chen"} {
		_, err := env.applications.SubmitIntegrated(ctx, integrated(name))
		require.Error(t, err)
		assert.Equal(t, models.CodeValidation, models.ErrorCode(err))
		assert.Contains(t, err.Error(), "not currently recruiting")
	}
	assert.Equal(t, int64(0), env.count(t, &models.User{}))
	assert.Equal(t, int64(0), env.count(t, &models.Application{}))
}

func TestUpdateForm_CreatesClosedUnlessActivated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)

	form, err := env.applications.UpdateForm(ctx, admin.ID, FormInput{MaxApplicants: intPtr(2)})
	require.NoError(t, err)
	assert.False(t, form.IsActive)
	assert.Equal(t, 2, form.MaxApplicants)
	_, err = env.applications.SubmitIntegrated(ctx, integrated("anna"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not currently recruiting")

	opened, err := env.applications.UpdateForm(ctx, admin.ID, FormInput{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, form.ID, opened.ID)
	_, err = env.applications.SubmitIntegrated(ctx, integrated("anna"))
	require.NoError(t, err)
}

func TestGetForm_InactiveFormIsShownNotReplaced(t *testing.T) {
	env := newTestEnv(t)
	inactive := env.createForm(t, false, 4, 1)

	form, err := env.applications.GetForm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, inactive.ID, form.ID)
	assert.False(t, form.IsActive)
	assert.Equal(t, int64(1), env.count(t, &models.ApplicationForm{}))
}

func TestUpdateForm_NeverWritesCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)
	form := env.createForm(t, true, 10, 7)

	_, err := env.applications.UpdateForm(ctx, admin.ID, FormInput{MaxApplicants: intPtr(-1)})
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	updated, err := env.applications.UpdateForm(ctx, admin.ID, FormInput{IsActive: boolPtr(false), MaxApplicants: intPtr(3)})
	require.NoError(t, err)
	assert.Equal(t, form.ID, updated.ID)

	stored := env.reloadForm(t, form.ID)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 3, stored.MaxApplicants)
	assert.Equal(t, 7, stored.CurrentApplicants)
	require.NotNil(t, stored.UpdatedBy)
	assert.Equal(t, admin.ID, *stored.UpdatedBy)

	reopened, err := env.applications.UpdateForm(ctx, admin.ID, FormInput{IsActive: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, form.ID, reopened.ID, "the latest form is reopened rather than replaced")
}

func TestUpdateQuestions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)
	env.createForm(t, true, 0, 0)

	bad := []models.FormQuestion{{ID: 1, Type: "select", Label: "Pick"}}
	_, err := env.applications.UpdateQuestions(ctx, admin.ID, bad)
	assert.Equal(t, models.CodeValidation, models.ErrorCode(err))

	good := []models.FormQuestion{{ID: 7, Type: "text", Label: "Favourite composer", Required: true}}
	_, err = env.applications.UpdateQuestions(ctx, admin.ID, good)
	require.NoError(t, err)

	questions, err := env.applications.GetQuestions(ctx)
	require.NoError(t, err)
	assert.Equal(t, good, questions)
}

func TestGetQuestions_UnreadableBlob(t *testing.T) {
	env := newTestEnv(t)
	form := env.createForm(t, true, 0, 0)
	require.NoError(t, env.db.Model(form).Update("form_questions", datatypes.JSON(`{"not":"a list"}`)).Error)

	questions, err := env.applications.GetQuestions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, questions)
	assert.NotNil(t, questions)
}

func TestStatusAndReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createUser(t, "root", true, true)

	_, err := env.applications.ResetApplicants(ctx, admin.ID)
	assert.Equal(t, models.CodeNotFound, models.ErrorCode(err))

	status, err := env.applications.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Configured)

	form := env.createForm(t, true, 3, 3)
	status, err = env.applications.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsFull)
	require.NotNil(t, status.Remaining)
	assert.Equal(t, 0, *status.Remaining)

	_, err = env.applications.CheckCapacity(ctx)
	assert.Equal(t, models.CodeCapacityExceeded, models.ErrorCode(err))

	reset, err := env.applications.ResetApplicants(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.CurrentApplicants)
	assert.Equal(t, 0, env.reloadForm(t, form.ID).CurrentApplicants)

	status, err = env.applications.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsFull)
	assert.Equal(t, 3, *status.Remaining)

	_, err = env.applications.SubmitIntegrated(ctx, integrated("hugo"))
	assert.NoError(t, err)
}
