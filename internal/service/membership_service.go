package service

import (
	"context"
	"strings"
	"time"

	"clubhub/internal/cache"
	"clubhub/internal/mail"
	"clubhub/internal/models"
	"clubhub/internal/notifications"
	"clubhub/internal/observability"
	"clubhub/internal/repository"
	"clubhub/internal/storage"
	"clubhub/internal/tasks"
	"clubhub/internal/validation"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// MembershipService owns the account lifecycle: registration, approval,
// soft and hard deletion, and role changes.
type MembershipService struct {
	db       *gorm.DB
	users    repository.UserRepository
	apps     repository.ApplicationRepository
	creds    Credentials
	notifier tasks.Dispatcher
	events   notifications.Publisher
	files    storage.ObjectStore
	now      func() time.Time
}

type RegisterInput struct {
	Email       string
	Username    string
	Password    string
	RealName    string
	StudentID   *string
	PhoneNumber string
	Major       string
	Year        *int
}

type UpdateProfileInput struct {
	UserID      uint
	Username    *string
	RealName    *string
	PhoneNumber *string
	Major       *string
	Year        *int
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string       `json:"access_token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      *models.User `json:"user"`
}

func NewMembershipService(
	db *gorm.DB,
	users repository.UserRepository,
	apps repository.ApplicationRepository,
	creds Credentials,
	notifier tasks.Dispatcher,
	events notifications.Publisher,
	files storage.ObjectStore,
) *MembershipService {
	return &MembershipService{
		db:       db,
		users:    users,
		apps:     apps,
		creds:    creds,
		notifier: notifier,
		events:   events,
		files:    files,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var conflictMessages = map[string]string{
	repository.FieldEmail:     "Email is already registered",
	repository.FieldUsername:  "Username is already taken",
	repository.FieldStudentID: "Student ID is already registered",
}

// validateRegistration normalises and validates the identity fields of a new account.
func validateRegistration(in *RegisterInput) error {
	in.Email = normalizeEmail(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	in.RealName = strings.TrimSpace(in.RealName)
	in.StudentID = optionalString(in.StudentID)

	if err := validation.ValidateEmail(in.Email); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateRealName(in.RealName); err != nil {
		return models.NewValidationError(err.Error())
	}
	if in.StudentID != nil {
		if err := validation.ValidateStudentID(*in.StudentID); err != nil {
			return models.NewValidationError(err.Error())
		}
	}
	return nil
}

// ensureAvailable reports a conflict when an active user already holds one of
// the identifiers in in.
func ensureAvailable(ctx context.Context, users repository.UserRepository, in RegisterInput) error {
	field, err := users.FindConflict(ctx, in.Email, in.Username, in.StudentID, 0)
	if err != nil {
		return err
	}
	if field != "" {
		return models.NewConflictError(conflictMessages[field])
	}
	return nil
}

func checkIdentifiers(ctx context.Context, users repository.UserRepository, in *RegisterInput) error {
	if err := validateRegistration(in); err != nil {
		return err
	}
	return ensureAvailable(ctx, users, *in)
}

// newUser hashes the password and builds an unapproved account from in.
func newUser(creds Credentials, in RegisterInput) (*models.User, error) {
	hash, err := creds.HashPassword(in.Password)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &models.User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		RealName:     in.RealName,
		StudentID:    in.StudentID,
		PhoneNumber:  strings.TrimSpace(in.PhoneNumber),
		Major:        strings.TrimSpace(in.Major),
		Year:         in.Year,
	}, nil
}

// Register creates an unapproved account and sends the welcome email.
func (s *MembershipService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	ctx, span := observability.StartServiceSpan(ctx, "MembershipService", "Register")
	defer span.End()

	if err := checkIdentifiers(ctx, s.users, &in); err != nil {
		span.SetError(err)
		return nil, err
	}
	user, err := newUser(s.creds, in)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		span.SetError(err)
		return nil, err
	}

	tasks.Notify(ctx, s.notifier, tasks.NotificationIntent{
		Template: mail.TemplateWelcome,
		To:       user.Email,
		Data: map[string]string{
			"real_name": user.RealName,
			"username":  user.Username,
			"email":     user.Email,
		},
	})
	notifications.Emit(ctx, s.events, 0, true, notifications.NewEvent(notifications.EventUserRegistered,
		map[string]any{"user_id": user.ID, "username": user.Username}))
	return user, nil
}

// Login exchanges email and password for a bearer token. Unknown, deleted and
// wrong-password accounts get the same answer.
func (s *MembershipService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := models.NewUnauthorizedError("Incorrect email or password")

	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil || !s.creds.CheckPassword(password, user.PasswordHash) {
		return nil, invalid
	}

	token, err := s.creds.IssueToken(user.ID, 0)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &LoginResult{
		Token:     token,
		TokenType: "bearer",
		ExpiresIn: int64(s.creds.TTL().Seconds()),
		User:      user,
	}, nil
}

// ResolveIdentity loads the active user behind a verified token subject.
func (s *MembershipService) ResolveIdentity(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *MembershipService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

func (s *MembershipService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *MembershipService) ListPending(ctx context.Context) ([]models.User, error) {
	return s.users.ListPending(ctx)
}

func (s *MembershipService) ListAdmins(ctx context.Context) ([]models.User, error) {
	return s.users.ListAdmins(ctx)
}

func (s *MembershipService) Stats(ctx context.Context) (*models.UserStats, error) {
	return s.users.Stats(ctx)
}

// instrumentOf returns the instrument named on the user's application, if any.
func instrumentOf(app *models.Application) string {
	if app == nil || strings.TrimSpace(app.Instrument) == "" {
		return mail.UnspecifiedInstrument
	}
	return app.Instrument
}

// Approve marks the user approved. Approving twice is harmless; each call
// sends the approval email with the instrument from the user's application.
func (s *MembershipService) Approve(ctx context.Context, userID uint) (*models.User, error) {
	ctx, span := observability.StartServiceSpan(ctx, "MembershipService", "Approve",
		attribute.Int64("user.id", int64(userID)))
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]any{"is_approved": true}); err != nil {
		span.SetError(err)
		return nil, err
	}
	user.IsApproved = true

	app, err := s.apps.GetByApplicant(ctx, userID)
	if err != nil {
		// The approval itself has committed; a missing instrument only degrades the email.
		app = nil
	}
	studentID := ""
	if user.StudentID != nil {
		studentID = *user.StudentID
	}
	tasks.Notify(ctx, s.notifier, tasks.NotificationIntent{
		Template: mail.TemplateApproval,
		To:       user.Email,
		Data: map[string]string{
			"real_name":  user.RealName,
			"username":   user.Username,
			"email":      user.Email,
			"student_id": studentID,
			"major":      user.Major,
			"instrument": instrumentOf(app),
		},
	})
	notifications.Emit(ctx, s.events, user.ID, false,
		notifications.NewEvent(notifications.EventUserApproved, map[string]any{"user_id": user.ID}))
	return user, nil
}

// Reject removes an account that has not been approved yet, with everything it owns.
func (s *MembershipService) Reject(ctx context.Context, actorID, userID uint) error {
	if actorID == userID {
		return models.NewForbiddenError("You cannot reject your own account")
	}
	user, err := s.users.GetByIDAny(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsAdmin {
		return models.NewForbiddenError("Administrator accounts cannot be rejected")
	}
	if user.IsApproved {
		return models.NewForbiddenError("Approved members cannot be rejected; delete the account instead")
	}
	return s.hardDelete(ctx, userID)
}

// SoftDelete deactivates another member's account. Admins, the caller's own
// account and already deleted accounts are refused and left unchanged.
func (s *MembershipService) SoftDelete(ctx context.Context, actorID, targetID uint) error {
	ctx, span := observability.StartServiceSpan(ctx, "MembershipService", "SoftDelete",
		attribute.Int64("user.id", int64(targetID)))
	defer span.End()

	target, err := s.users.GetByIDAny(ctx, targetID)
	if err != nil {
		span.SetError(err)
		return err
	}
	switch {
	case target.ID == actorID:
		err = models.NewForbiddenError("You cannot delete your own account")
	case target.IsAdmin:
		err = models.NewForbiddenError("Administrator accounts cannot be deleted")
	case target.IsDeleted:
		err = models.NewForbiddenError("User is already deleted")
	}
	if err != nil {
		span.SetError(err)
		return err
	}
	return s.users.SoftDelete(ctx, targetID, s.now())
}

// DeleteSelf withdraws the caller's membership after re-checking the password.
// The user's posts, comments, gallery items, application and the account row
// are removed in one transaction; stored files are removed after commit.
func (s *MembershipService) DeleteSelf(ctx context.Context, userID uint, password string) error {
	ctx, span := observability.StartServiceSpan(ctx, "MembershipService", "DeleteSelf",
		attribute.Int64("user.id", int64(userID)))
	defer span.End()

	user, err := s.users.GetByIDWithSecret(ctx, userID)
	if err != nil {
		span.SetError(err)
		return err
	}
	if !s.creds.CheckPassword(password, user.PasswordHash) {
		return models.NewValidationError("Password is incorrect")
	}
	return s.hardDelete(ctx, userID)
}

func (s *MembershipService) hardDelete(ctx context.Context, userID uint) error {
	var paths []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		paths, err = s.users.WithTx(tx).HardDeleteCascade(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	cache.InvalidateUser(ctx, userID)
	removeFiles(ctx, s.files, paths)
	return nil
}

// UpdateRole grants or revokes admin rights on another account.
func (s *MembershipService) UpdateRole(ctx context.Context, actorID, targetID uint, isAdmin bool) (*models.User, error) {
	if actorID == targetID {
		return nil, models.NewForbiddenError("You cannot change your own role")
	}
	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, targetID, map[string]any{"is_admin": isAdmin}); err != nil {
		return nil, err
	}
	user.IsAdmin = isAdmin
	return user, nil
}

// SetAdminByEmail is the operator path used by the admin CLI.
func (s *MembershipService) SetAdminByEmail(ctx context.Context, email string, isAdmin bool) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", email)
	}
	fields := map[string]any{"is_admin": isAdmin}
	if isAdmin {
		fields["is_approved"] = true
		user.IsApproved = true
	}
	if err := s.users.UpdateFields(ctx, user.ID, fields); err != nil {
		return nil, err
	}
	user.IsAdmin = isAdmin
	return user, nil
}

// EnsureAdmin creates an approved administrator for email unless an active
// account already holds it.
func (s *MembershipService) EnsureAdmin(ctx context.Context, email, password string) (*models.User, bool, error) {
	email = normalizeEmail(email)
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	username, _, _ := strings.Cut(email, "@")
	in := RegisterInput{Email: email, Username: username, Password: password, RealName: "Administrator"}
	if err := checkIdentifiers(ctx, s.users, &in); err != nil {
		return nil, false, err
	}
	user, err := newUser(s.creds, in)
	if err != nil {
		return nil, false, err
	}
	user.IsAdmin = true
	user.IsApproved = true
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// UpdateProfile edits the caller's own profile. A new username is checked
// against other active users.
func (s *MembershipService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if username != user.Username {
			field, err := s.users.FindConflict(ctx, "", username, nil, user.ID)
			if err != nil {
				return nil, err
			}
			if field != "" {
				return nil, models.NewConflictError(conflictMessages[field])
			}
		}
		fields["username"] = username
		user.Username = username
	}
	if in.RealName != nil {
		name := strings.TrimSpace(*in.RealName)
		if err := validation.ValidateRealName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		fields["real_name"] = name
		user.RealName = name
	}
	if in.PhoneNumber != nil {
		fields["phone_number"] = strings.TrimSpace(*in.PhoneNumber)
		user.PhoneNumber = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.Major != nil {
		fields["major"] = strings.TrimSpace(*in.Major)
		user.Major = strings.TrimSpace(*in.Major)
	}
	if in.Year != nil {
		if *in.Year < 1 || *in.Year > 10 {
			return nil, models.NewValidationError("year must be between 1 and 10")
		}
		fields["year"] = *in.Year
		user.Year = in.Year
	}
	if len(fields) == 0 {
		return user, nil
	}

	if err := s.users.UpdateFields(ctx, user.ID, fields); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the caller's password after verifying the current one.
func (s *MembershipService) ChangePassword(ctx context.Context, userID uint, current, next string) error {
	user, err := s.users.GetByIDWithSecret(ctx, userID)
	if err != nil {
		return err
	}
	if !s.creds.CheckPassword(current, user.PasswordHash) {
		return models.NewValidationError("Current password is incorrect")
	}
	if err := validation.ValidatePassword(next); err != nil {
		return models.NewValidationError(err.Error())
	}
	hash, err := s.creds.HashPassword(next)
	if err != nil {
		return models.NewInternalError(err)
	}
	return s.users.UpdateFields(ctx, userID, map[string]any{"password_hash": hash})
}
