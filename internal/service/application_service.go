package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"clubhub/internal/cache"
	"clubhub/internal/mail"
	"clubhub/internal/models"
	"clubhub/internal/notifications"
	"clubhub/internal/observability"
	"clubhub/internal/repository"
	"clubhub/internal/tasks"
	"clubhub/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	maxMotivationLen = 5000
	maxExperienceLen = 5000
	maxInstrumentLen = 64
)

// ApplicationService runs the club-application workflow: the capacity gate,
// submissions, admin review and recruitment form management.
type ApplicationService struct {
	db       *gorm.DB
	users    repository.UserRepository
	apps     repository.ApplicationRepository
	forms    repository.FormRepository
	counter  ApplicantCounter
	creds    Credentials
	notifier tasks.Dispatcher
	events   notifications.Publisher
	now      func() time.Time
}

type ApplicationInput struct {
	Motivation string
	Experience string
	Instrument string
	FormData   map[string]any
}

// IntegratedInput registers an account and files its application in one step.
type IntegratedInput struct {
	RegisterInput
	ApplicationInput
}

type IntegratedResult struct {
	User        *models.User        `json:"user"`
	Application *models.Application `json:"application"`
}

// ReviewResult reports the reviewed application. AlreadyReviewed is set when
// the application had a final status before this review.
type ReviewResult struct {
	Application     *models.Application `json:"application"`
	AlreadyReviewed bool                `json:"already_reviewed"`
	PreviousStatus  string              `json:"previous_status"`
}

type FormInput struct {
	IsActive      *bool
	MaxApplicants *int
	Questions     []models.FormQuestion
}

func NewApplicationService(
	db *gorm.DB,
	users repository.UserRepository,
	apps repository.ApplicationRepository,
	forms repository.FormRepository,
	counter ApplicantCounter,
	creds Credentials,
	notifier tasks.Dispatcher,
	events notifications.Publisher,
) *ApplicationService {
	return &ApplicationService{
		db:       db,
		users:    users,
		apps:     apps,
		forms:    forms,
		counter:  counter,
		creds:    creds,
		notifier: notifier,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (in *ApplicationInput) normalize() error {
	in.Motivation = strings.TrimSpace(in.Motivation)
	in.Experience = strings.TrimSpace(in.Experience)
	in.Instrument = strings.TrimSpace(in.Instrument)

	if err := validation.RequiredText("motivation", in.Motivation, maxMotivationLen); err != nil {
		return models.NewValidationError(err.Error())
	}
	if len([]rune(in.Experience)) > maxExperienceLen {
		return models.NewValidationError("experience must not exceed 5000 characters")
	}
	if len([]rune(in.Instrument)) > maxInstrumentLen {
		return models.NewValidationError("instrument must not exceed 64 characters")
	}
	return nil
}

func (in ApplicationInput) build(applicantID uint) (*models.Application, error) {
	app := &models.Application{
		ApplicantID: applicantID,
		Motivation:  in.Motivation,
		Experience:  in.Experience,
		Instrument:  in.Instrument,
		Status:      models.ApplicationStatusPending,
	}
	if len(in.FormData) > 0 {
		raw, err := json.Marshal(in.FormData)
		if err != nil {
			return nil, models.NewValidationError("form_data must be a JSON object")
		}
		app.FormData = datatypes.JSON(raw)
	}
	return app, nil
}

// gate applies the capacity rules to the current form. fallback is the newest
// form of any state and only matters when no form is active.
func (s *ApplicationService) gate(current, fallback *models.ApplicationForm) error {
	if current == nil {
		if fallback != nil {
			observability.CapacityRejections.WithLabelValues("inactive").Inc()
			return models.NewValidationError("The club is not currently recruiting")
		}
		observability.CapacityRejections.WithLabelValues("unconfigured").Inc()
		return models.NewValidationError("The application form is not configured")
	}
	if current.MaxApplicants > 0 && s.counter.Current(current) >= current.MaxApplicants {
		observability.CapacityRejections.WithLabelValues("full").Inc()
		return models.NewCapacityError(s.counter.Current(current), current.MaxApplicants)
	}
	return nil
}

// CheckCapacity evaluates the capacity gate without reserving a slot.
func (s *ApplicationService) CheckCapacity(ctx context.Context) (*models.ApplicationForm, error) {
	current, err := s.forms.Current(ctx)
	if err != nil {
		return nil, err
	}
	var fallback *models.ApplicationForm
	if current == nil {
		if fallback, err = s.forms.Latest(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.gate(current, fallback); err != nil {
		return nil, err
	}
	return current, nil
}

// SubmitIntegrated creates an unapproved user and a pending application and
// counts one applicant, all or nothing. The current form row stays locked for
// the whole transaction, so concurrent submissions cannot both take the last
// slot; the unique indexes on users and applications catch any other race.
// No welcome email is sent; the applicant hears back on approval.
func (s *ApplicationService) SubmitIntegrated(ctx context.Context, in IntegratedInput) (*IntegratedResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ApplicationService", "SubmitIntegrated")
	defer span.End()

	if err := validateRegistration(&in.RegisterInput); err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := in.ApplicationInput.normalize(); err != nil {
		span.SetError(err)
		return nil, err
	}
	user, err := newUser(s.creds, in.RegisterInput)
	if err != nil {
		return nil, err
	}

	var app *models.Application
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		forms := s.forms.WithTx(tx)
		form, err := forms.LockCurrent(ctx)
		if err != nil {
			return err
		}
		var fallback *models.ApplicationForm
		if form == nil {
			if fallback, err = forms.Latest(ctx); err != nil {
				return err
			}
		}
		if err := s.gate(form, fallback); err != nil {
			return err
		}

		users := s.users.WithTx(tx)
		if err := ensureAvailable(ctx, users, in.RegisterInput); err != nil {
			return err
		}
		if err := users.Create(ctx, user); err != nil {
			return err
		}

		app, err = in.ApplicationInput.build(user.ID)
		if err != nil {
			return err
		}
		if err := s.apps.WithTx(tx).Create(ctx, app); err != nil {
			return err
		}
		return s.counter.Increment(ctx, tx, form.ID)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	cache.InvalidateRecruitment(ctx)
	cache.Invalidate(ctx, cache.MemberStatsKey)
	observability.ApplicationsSubmitted.WithLabelValues("integrated").Inc()
	notifications.Emit(ctx, s.events, 0, true, notifications.NewEvent(notifications.EventApplicationSubmitted,
		map[string]any{"application_id": app.ID, "applicant_id": user.ID, "real_name": user.RealName}))

	return &IntegratedResult{User: user, Application: app}, nil
}

// Create files an application for an existing account. It is not subject to
// the capacity gate and does not count towards it.
func (s *ApplicationService) Create(ctx context.Context, applicantID uint, in ApplicationInput) (*models.Application, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	existing, err := s.apps.GetByApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("You have already submitted an application")
	}

	app, err := in.build(applicantID)
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if models.ErrorCode(err) == models.CodeConflict {
			return nil, models.NewConflictError("You have already submitted an application")
		}
		return nil, err
	}

	observability.ApplicationsSubmitted.WithLabelValues("standalone").Inc()
	notifications.Emit(ctx, s.events, 0, true, notifications.NewEvent(notifications.EventApplicationSubmitted,
		map[string]any{"application_id": app.ID, "applicant_id": applicantID}))
	return app, nil
}

func (s *ApplicationService) GetMine(ctx context.Context, applicantID uint) (*models.Application, error) {
	app, err := s.apps.GetByApplicant(ctx, applicantID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, models.NewNotFoundError("Application for user", applicantID)
	}
	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, id uint) (*models.Application, error) {
	return s.apps.GetByID(ctx, id)
}

// ParseStatus accepts "", pending, approved and rejected.
func ParseStatus(raw string) (models.ApplicationStatus, error) {
	status := models.ApplicationStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case "", models.ApplicationStatusPending, models.ApplicationStatusApproved, models.ApplicationStatusRejected:
		return status, nil
	}
	return "", models.NewValidationError("status must be one of pending, approved, rejected")
}

func (s *ApplicationService) List(ctx context.Context, status string, limit, offset int) ([]models.Application, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.apps.List(ctx, st, limit, offset)
}

// Review records an admin decision. Approval also approves the applicant's
// account. Reviewing a decided application is allowed as a correction and is
// reported through AlreadyReviewed; the acceptance email goes out only when
// the application becomes approved for the first time.
func (s *ApplicationService) Review(ctx context.Context, reviewerID, id uint, status string) (*ReviewResult, error) {
	ctx, span := observability.StartServiceSpan(ctx, "ApplicationService", "Review",
		attribute.Int64("application.id", int64(id)), attribute.String("application.status", status))
	defer span.End()

	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	if !next.IsTerminal() {
		return nil, models.NewValidationError("status must be approved or rejected")
	}

	var result ReviewResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		app, err := s.apps.WithTx(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		result.PreviousStatus = string(app.Status)
		result.AlreadyReviewed = app.Status.IsTerminal()

		reviewedAt := s.now()
		reviewer := reviewerID
		app.Status = next
		app.ReviewedAt = &reviewedAt
		app.ReviewedBy = &reviewer
		if err := s.apps.WithTx(tx).SaveReview(ctx, app); err != nil {
			return err
		}
		if next == models.ApplicationStatusApproved {
			if err := s.users.WithTx(tx).UpdateFields(ctx, app.ApplicantID, map[string]any{"is_approved": true}); err != nil {
				return err
			}
			if app.Applicant != nil {
				app.Applicant.IsApproved = true
			}
		}
		result.Application = app
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	app := result.Application
	cache.InvalidateUser(ctx, app.ApplicantID)
	observability.ApplicationsReviewed.WithLabelValues(string(next), strconv.FormatBool(result.AlreadyReviewed)).Inc()

	firstApproval := next == models.ApplicationStatusApproved &&
		result.PreviousStatus != string(models.ApplicationStatusApproved)
	if firstApproval && app.Applicant != nil {
		tasks.Notify(ctx, s.notifier, tasks.NotificationIntent{
			Template: mail.TemplateApplicationApproved,
			To:       app.Applicant.Email,
			Data: map[string]string{
				"real_name":  app.Applicant.RealName,
				"email":      app.Applicant.Email,
				"instrument": instrumentOf(app),
			},
		})
	}
	notifications.Emit(ctx, s.events, app.ApplicantID, true, notifications.NewEvent(notifications.EventApplicationReviewed,
		map[string]any{"application_id": app.ID, "status": app.Status, "already_reviewed": result.AlreadyReviewed}))
	return &result, nil
}

// Delete removes an application. The applicant count is left as is.
func (s *ApplicationService) Delete(ctx context.Context, id uint) error {
	return s.apps.Delete(ctx, id)
}

// displayForm returns the active form, else the newest form. With create set
// and no form at all, it stores the default form closed for recruitment.
func (s *ApplicationService) displayForm(ctx context.Context, create bool) (*models.ApplicationForm, error) {
	form, err := s.forms.Current(ctx)
	if err != nil || form != nil {
		return form, err
	}
	if form, err = s.forms.Latest(ctx); err != nil || form != nil {
		return form, err
	}
	if !create {
		return nil, nil
	}

	questions, err := encodeQuestions(DefaultFormQuestions())
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	form = &models.ApplicationForm{IsActive: false, FormQuestions: questions}
	if err := s.forms.Create(ctx, form); err != nil {
		return nil, err
	}
	return form, nil
}

func (s *ApplicationService) GetForm(ctx context.Context) (*models.ApplicationForm, error) {
	return s.displayForm(ctx, true)
}

// UpdateForm edits the recruitment settings. The applicant count is never
// written here; only ResetApplicants and submissions change it.
func (s *ApplicationService) UpdateForm(ctx context.Context, adminID uint, in FormInput) (*models.ApplicationForm, error) {
	if in.MaxApplicants != nil && *in.MaxApplicants < 0 {
		return nil, models.NewValidationError("max_applicants must be zero (unlimited) or positive")
	}
	if in.Questions != nil {
		if err := ValidateQuestions(in.Questions); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	form, err := s.displayForm(ctx, false)
	if err != nil {
		return nil, err
	}
	// A form created here stays closed unless the admin sets is_active.
	creating := form == nil
	if creating {
		form = &models.ApplicationForm{}
		if in.Questions == nil {
			in.Questions = DefaultFormQuestions()
		}
	}

	if in.IsActive != nil {
		form.IsActive = *in.IsActive
	}
	if in.MaxApplicants != nil {
		form.MaxApplicants = *in.MaxApplicants
	}
	if in.Questions != nil {
		raw, err := encodeQuestions(in.Questions)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		form.FormQuestions = raw
	}
	admin := adminID
	form.UpdatedBy = &admin

	if creating {
		err = s.forms.Create(ctx, form)
	} else {
		err = s.forms.SaveSettings(ctx, form)
	}
	if err != nil {
		return nil, err
	}
	return form, nil
}

// GetQuestions returns the current question list; a missing form or an
// unreadable blob yields an empty list.
func (s *ApplicationService) GetQuestions(ctx context.Context) ([]models.FormQuestion, error) {
	form, err := s.displayForm(ctx, false)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return []models.FormQuestion{}, nil
	}
	return decodeQuestions(form.FormQuestions), nil
}

func (s *ApplicationService) UpdateQuestions(ctx context.Context, adminID uint, questions []models.FormQuestion) ([]models.FormQuestion, error) {
	if questions == nil {
		questions = []models.FormQuestion{}
	}
	if _, err := s.UpdateForm(ctx, adminID, FormInput{Questions: questions}); err != nil {
		return nil, err
	}
	return questions, nil
}

// Status reports the public recruitment state.
func (s *ApplicationService) Status(ctx context.Context) (*models.RecruitmentStatus, error) {
	var status models.RecruitmentStatus
	err := cache.Aside(ctx, cache.RecruitmentKey, &status, cache.RecruitmentTTL, func() error {
		form, err := s.displayForm(ctx, false)
		if err != nil {
			return err
		}
		status = recruitmentStatus(form, s.counter)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func recruitmentStatus(form *models.ApplicationForm, counter ApplicantCounter) models.RecruitmentStatus {
	if form == nil {
		return models.RecruitmentStatus{}
	}
	current := counter.Current(form)
	status := models.RecruitmentStatus{
		Configured:        true,
		IsActive:          form.IsActive,
		MaxApplicants:     form.MaxApplicants,
		CurrentApplicants: current,
	}
	if form.MaxApplicants > 0 {
		remaining := form.MaxApplicants - current
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
		status.IsFull = remaining == 0
	}
	return status
}

// ResetApplicants sets the applicant count of the current form to zero,
// whatever the number of application rows.
func (s *ApplicationService) ResetApplicants(ctx context.Context, adminID uint) (*models.ApplicationForm, error) {
	form, err := s.displayForm(ctx, false)
	if err != nil {
		return nil, err
	}
	if form == nil {
		return nil, models.NewNotFoundError("ApplicationForm", "current")
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.counter.Reset(ctx, tx, form.ID, adminID)
	})
	if err != nil {
		return nil, err
	}
	form.CurrentApplicants = 0
	admin := adminID
	form.UpdatedBy = &admin
	return form, nil
}
