package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clubhub/internal/config"
	"clubhub/internal/database"
	"clubhub/internal/models"
	"clubhub/internal/service"
	"clubhub/internal/storage"
	"clubhub/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testPassword = "Secret123"

type testServer struct {
	*Server
	app  *fiber.App
	mail *testutil.RecordingDispatcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: database.NewGormLogger(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))

	store, err := storage.NewLocalStore(t.TempDir(), "/static/gallery")
	require.NoError(t, err)

	recorder := &testutil.RecordingDispatcher{}
	cfg := &config.Config{
		Port:             "0",
		Env:              "test",
		ClubName:         "clubhub",
		JWTSecret:        "test-secret-key-that-is-long-enough-123",
		JWTTTLMinutes:    30,
		GalleryMaxFileMB: 1,
		AllowedOrigins:   "http://localhost:5173",
	}
	s, err := NewServer(cfg, Deps{DB: db, Store: store, Dispatcher: recorder})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return &testServer{Server: s, app: s.App(), mail: recorder}
}

// createUser registers username through the service and adjusts its flags directly.
func (ts *testServer) createUser(t *testing.T, username string, approved, admin bool) (*models.User, string) {
	t.Helper()
	sid := "S-" + username
	user, err := ts.membership.Register(t.Context(), service.RegisterInput{
		Email:     username + "@uni.test",
		Username:  username,
		Password:  testPassword,
		RealName:  "Real " + username,
		StudentID: &sid,
	})
	require.NoError(t, err)
	require.NoError(t, ts.db.Model(user).Updates(map[string]any{"is_approved": approved, "is_admin": admin}).Error)
	user.IsApproved, user.IsAdmin = approved, admin

	token, err := ts.credentials.IssueToken(user.ID, time.Hour)
	require.NoError(t, err)
	return user, token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func path(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}

func (ts *testServer) templates() []string {
	var out []string
	for _, intent := range ts.mail.Intents() {
		out = append(out, intent.Template)
	}
	return out
}
