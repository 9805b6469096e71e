package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"clubhub/internal/config"
	"clubhub/internal/middleware"

	"gorm.io/gorm"
)

// DB_SCHEMA_MODE values.
const (
	SchemaModeHybrid = "hybrid"
	SchemaModeSQL    = "sql"
	SchemaModeAuto   = "auto"
)

// SchemaPlan is what ApplySchema will do for a configuration.
type SchemaPlan struct {
	Mode    string
	RunSQL  bool
	RunAuto bool
}

// SchemaStatus describes the plan and migration history without changing anything.
type SchemaStatus struct {
	Mode               string
	Environment        string
	WillRunSQL         bool
	WillRunAutoMigrate bool
	AppliedVersions    []int
	PendingMigrations  []Migration
	// HistoryError is set when schema_migrations disagrees with the embedded scripts.
	HistoryError string
}

// productionLike environments never AutoMigrate unless explicitly allowed.
func productionLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "staging", "stage":
		return true
	}
	return false
}

func planSchema(cfg *config.Config) (SchemaPlan, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.DBSchemaMode))
	if mode == "" {
		mode = SchemaModeHybrid
	}
	plan := SchemaPlan{Mode: mode}
	prod := productionLike(cfg.Env)

	switch mode {
	case SchemaModeSQL:
		plan.RunSQL = true
	case SchemaModeHybrid:
		// SQL migrations own the schema; AutoMigrate only fills gaps outside production.
		plan.RunSQL, plan.RunAuto = true, !prod
	case SchemaModeAuto:
		if prod && !cfg.DBAutoMigrateDestructive {
			return plan, fmt.Errorf("DB_SCHEMA_MODE=auto is refused in %q unless DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE=true", cfg.Env)
		}
		plan.RunAuto = true
	default:
		return plan, fmt.Errorf("unsupported DB_SCHEMA_MODE %q", mode)
	}
	return plan, nil
}

// ApplySchema brings the database schema up to date according to DB_SCHEMA_MODE.
func ApplySchema(ctx context.Context, db *gorm.DB, cfg *config.Config) error {
	plan, err := planSchema(cfg)
	if err != nil {
		return err
	}

	if plan.RunSQL {
		if err := RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("run sql migrations: %w", err)
		}
	}
	if !plan.RunAuto {
		return nil
	}

	if plan.Mode == SchemaModeAuto && productionLike(cfg.Env) {
		middleware.Logger.WarnContext(ctx, "running AutoMigrate against a production-like database",
			slog.String("env", cfg.Env))
	}
	middleware.Logger.InfoContext(ctx, "running AutoMigrate",
		slog.String("mode", plan.Mode), slog.Int("models", len(PersistentModels())))
	return runAutoMigrate(db.WithContext(ctx))
}

// runAutoMigrate creates or extends the tables for PersistentModels,
// including the partial unique indexes declared on the models.
func runAutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

// GetSchemaStatus reports the plan for cfg and, when SQL migrations are part
// of it, which embedded migrations are applied or pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config) (*SchemaStatus, error) {
	plan, err := planSchema(cfg)
	if err != nil {
		return nil, err
	}
	status := &SchemaStatus{
		Mode:               plan.Mode,
		Environment:        cfg.Env,
		WillRunSQL:         plan.RunSQL,
		WillRunAutoMigrate: plan.RunAuto,
	}
	if !plan.RunSQL {
		return status, nil
	}

	registered, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	if err := ensureHistoryTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return nil, err
	}
	for _, row := range applied {
		status.AppliedVersions = append(status.AppliedVersions, row.Version)
	}
	status.PendingMigrations = pendingMigrations(applied, registered)
	if err := checkHistory(applied, registered); err != nil {
		status.HistoryError = err.Error()
	}
	return status, nil
}
