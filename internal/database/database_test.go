package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"
	"time"

	"clubhub/internal/config"
	"clubhub/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: NewGormLogger(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestConfigurePool(t *testing.T) {
	db := openSQLite(t)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
	require.NoError(t, Ping(context.Background(), db))
}

func TestAutoMigrate_ActiveUniqueness(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, runAutoMigrate(db))

	first := &models.User{Email: "x@y.com", Username: "alice", PasswordHash: "h", RealName: "Alice"}
	require.NoError(t, db.Create(first).Error)

	dup := &models.User{Email: "x@y.com", Username: "alice2", PasswordHash: "h", RealName: "Alice Two"}
	err := db.Create(dup).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	now := time.Now().UTC()
	require.NoError(t, db.Model(first).Updates(map[string]any{"is_deleted": true, "deleted_at": now}).Error)

	reuse := &models.User{Email: "x@y.com", Username: "alice", PasswordHash: "h", RealName: "Alice Again"}
	assert.NoError(t, db.Create(reuse).Error, "identifiers of a soft-deleted user must be reusable")
}

func TestAutoMigrate_OneApplicationPerApplicant(t *testing.T) {
	db := openSQLite(t)
	require.NoError(t, runAutoMigrate(db))

	u := &models.User{Email: "a@b.com", Username: "bob", PasswordHash: "h", RealName: "Bob"}
	require.NoError(t, db.Create(u).Error)
	require.NoError(t, db.Create(&models.Application{ApplicantID: u.ID, Motivation: "first", Status: models.ApplicationStatusPending}).Error)

	err := db.Create(&models.Application{ApplicantID: u.ID, Motivation: "second", Status: models.ApplicationStatusPending}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestEmbeddedMigrationsRegistered(t *testing.T) {
	all := GetMigrations()
	require.GreaterOrEqual(t, len(all), 2)
	assert.Equal(t, 1, all[0].Version)
	assert.Equal(t, "membership_schema", all[0].Name)
	assert.Contains(t, all[0].UpScript, "idx_users_email_active")
	assert.NotEmpty(t, all[0].DownScript)
	assert.Equal(t, "000002_default_application_form", GetMigrationByVersion(2).String())
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		want    SchemaPlan
		wantErr bool
	}{
		{"hybrid in development", config.Config{Env: "development", DBSchemaMode: "hybrid"}, SchemaPlan{Mode: "hybrid", RunSQL: true, RunAuto: true}, false},
		{"hybrid in production", config.Config{Env: "production", DBSchemaMode: "hybrid"}, SchemaPlan{Mode: "hybrid", RunSQL: true}, false},
		{"empty mode defaults to hybrid", config.Config{Env: "staging"}, SchemaPlan{Mode: "hybrid", RunSQL: true}, false},
		{"sql only", config.Config{Env: "test", DBSchemaMode: " SQL "}, SchemaPlan{Mode: "sql", RunSQL: true}, false},
		{"auto refused in production", config.Config{Env: "production", DBSchemaMode: "auto"}, SchemaPlan{}, true},
		{"auto allowed when destructive is opted in", config.Config{Env: "prod", DBSchemaMode: "auto", DBAutoMigrateDestructive: true}, SchemaPlan{Mode: "auto", RunAuto: true}, false},
		{"unknown mode", config.Config{Env: "test", DBSchemaMode: "bogus"}, SchemaPlan{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := planSchema(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbeddedChecksums(t *testing.T) {
	for _, m := range GetMigrations() {
		assert.Len(t, m.Checksum, 64, m.String())
	}
}

func TestDefaultFormMigrationStartsClosed(t *testing.T) {
	m := GetMigrationByVersion(2)
	require.NotNil(t, m)
	assert.Contains(t, m.UpScript, "SELECT FALSE, 0, 0,")
	assert.NotContains(t, m.UpScript, "TRUE")
}

func TestParseMigrations_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files fstest.MapFS
		want  string
	}{
		{"bad name", fstest.MapFS{"m/init.up.sql": {Data: []byte("x")}}, "expected NNNNNN_name"},
		{"bad version", fstest.MapFS{"m/abc_init.up.sql": {Data: []byte("x")}}, "positive number"},
		{"missing down", fstest.MapFS{"m/000001_init.up.sql": {Data: []byte("x")}}, "no down script"},
		{"duplicate version", fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("x")}, "m/000001_a.down.sql": {Data: []byte("x")},
			"m/1_b.up.sql": {Data: []byte("y")}, "m/1_b.down.sql": {Data: []byte("y")},
		}, "used by both"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMigrations(tt.files, "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// sqliteMigrations is a small history that runs on sqlite.
func sqliteMigrations(t *testing.T) []Migration {
	t.Helper()
	all, err := parseMigrations(fstest.MapFS{
		"m/000001_clubs.up.sql":     {Data: []byte("CREATE TABLE clubs (id INTEGER PRIMARY KEY, name TEXT NOT NULL);")},
		"m/000001_clubs.down.sql":   {Data: []byte("DROP TABLE clubs;")},
		"m/000002_members.up.sql":   {Data: []byte("CREATE TABLE members (id INTEGER PRIMARY KEY, club_id INTEGER NOT NULL);")},
		"m/000002_members.down.sql": {Data: []byte("DROP TABLE members;")},
		"m/README.md":               {Data: []byte("ignored")},
	}, "m")
	require.NoError(t, err)
	require.Len(t, all, 2)
	return all
}

func TestRunMigrations_AppliesPendingOnce(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	registered := sqliteMigrations(t)

	require.NoError(t, runMigrations(ctx, db, registered[:1]))
	assert.True(t, db.Migrator().HasTable("clubs"))
	assert.False(t, db.Migrator().HasTable("members"))

	require.NoError(t, runMigrations(ctx, db, registered))
	require.NoError(t, runMigrations(ctx, db, registered), "re-running is a no-op")
	assert.True(t, db.Migrator().HasTable("members"))

	applied, err := appliedMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, registered[1].Checksum, applied[1].Checksum)
}

func TestRunMigrations_FailedScriptLeavesNoHistory(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	broken := []Migration{{Version: 1, Name: "broken", UpScript: "CREATE TABLE;", Checksum: "x"}}

	require.Error(t, runMigrations(ctx, db, broken))
	applied, err := appliedMigrations(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestCheckHistory(t *testing.T) {
	registered := []Migration{{Version: 1, Name: "a", Checksum: "aaa"}, {Version: 2, Name: "b", Checksum: "bbb"}}
	assert.NoError(t, checkHistory(nil, registered))
	assert.NoError(t, checkHistory([]SchemaMigration{{Version: 1, Checksum: "aaa"}, {Version: 2}}, registered))

	err := checkHistory([]SchemaMigration{{Version: 1, Checksum: "aaa"}, {Version: 7}}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000007")

	err = checkHistory([]SchemaMigration{{Version: 2, Checksum: "changed"}}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000002_b")
}

func TestRollbackMigration_OnlyLatest(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	registered := sqliteMigrations(t)
	require.NoError(t, runMigrations(ctx, db, registered))

	err := rollbackMigration(ctx, db, registered, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latest: 000002")
	assert.Error(t, rollbackMigration(ctx, db, registered, 9))

	require.NoError(t, rollbackMigration(ctx, db, registered, 2))
	assert.False(t, db.Migrator().HasTable("members"))
	require.NoError(t, rollbackMigration(ctx, db, registered, 1))
	assert.False(t, db.Migrator().HasTable("clubs"))

	applied, err := appliedMigrations(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
