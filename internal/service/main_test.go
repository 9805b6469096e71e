package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"clubhub/internal/database"
	"clubhub/internal/featureflags"
	"clubhub/internal/models"
	"clubhub/internal/notifications"
	"clubhub/internal/repository"
	"clubhub/internal/storage"
	"clubhub/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeCredentials skips bcrypt so the tests stay fast.
type fakeCredentials struct{}

func (fakeCredentials) HashPassword(password string) (string, error) { return "hashed:" + password, nil }
func (fakeCredentials) CheckPassword(password, hash string) bool     { return hash == "hashed:"+password }
func (fakeCredentials) TTL() time.Duration                            { return 30 * time.Minute }
func (fakeCredentials) IssueToken(userID uint, _ time.Duration) (string, error) {
	return fmt.Sprintf("token-%d", userID), nil
}

type published struct {
	UserID   uint
	ToAdmins bool
	Event    notifications.Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishUser(_ context.Context, userID uint, e notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{UserID: userID, Event: e})
	return nil
}

func (p *recordingPublisher) PublishAdmins(_ context.Context, e notifications.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{ToAdmins: true, Event: e})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event.Type)
	}
	return out
}

type testEnv struct {
	db           *gorm.DB
	users        repository.UserRepository
	apps         repository.ApplicationRepository
	forms        repository.FormRepository
	posts        repository.PostRepository
	comments     repository.CommentRepository
	gallery      repository.GalleryRepository
	store        *storage.LocalStore
	flags        *featureflags.Manager
	mail         *testutil.RecordingDispatcher
	events       *recordingPublisher
	membership   *MembershipService
	applications *ApplicationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	store, err := storage.NewLocalStore(t.TempDir(), "/static/gallery")
	require.NoError(t, err)

	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		apps:     repository.NewApplicationRepository(db),
		forms:    repository.NewFormRepository(db),
		posts:    repository.NewPostRepository(db),
		comments: repository.NewCommentRepository(db),
		gallery:  repository.NewGalleryRepository(db),
		store:    store,
		flags:    featureflags.NewManager(""),
		mail:     &testutil.RecordingDispatcher{},
		events:   &recordingPublisher{},
	}
	env.membership = NewMembershipService(db, env.users, env.apps, fakeCredentials{}, env.mail, env.events, store)
	env.applications = NewApplicationService(db, env.users, env.apps, env.forms,
		NewStoredCounter(env.forms), fakeCredentials{}, env.mail, env.events)
	return env
}

func (e *testEnv) createUser(t *testing.T, username string, approved, admin bool) *models.User {
	t.Helper()
	u := &models.User{
		Email:        username + "@uni.test",
		Username:     username,
		PasswordHash: "hashed:Secret123",
		RealName:     "Member " + username,
		IsApproved:   approved,
		IsAdmin:      admin,
	}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) createForm(t *testing.T, active bool, max, current int) *models.ApplicationForm {
	t.Helper()
	raw, err := encodeQuestions(DefaultFormQuestions())
	require.NoError(t, err)
	f := &models.ApplicationForm{IsActive: active, MaxApplicants: max, CurrentApplicants: current, FormQuestions: raw}
	require.NoError(t, e.db.Create(f).Error)
	return f
}

func (e *testEnv) reloadForm(t *testing.T, id uint) *models.ApplicationForm {
	t.Helper()
	var f models.ApplicationForm
	require.NoError(t, e.db.First(&f, id).Error)
	return &f
}

func (e *testEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func (e *testEnv) templates() []string {
	var out []string
	for _, intent := range e.mail.Intents() {
		out = append(out, intent.Template)
	}
	return out
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func boolPtr(b bool) *bool { return &b }
