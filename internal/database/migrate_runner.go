package database

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"clubhub/internal/middleware"

	"gorm.io/gorm"
)

// SchemaMigration is one row of the schema_migrations history table.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:255;not null"`
	Checksum  string    `gorm:"size:64"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

func (SchemaMigration) TableName() string { return "schema_migrations" }

func ensureHistoryTable(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&SchemaMigration{}); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}
	return nil
}

func appliedMigrations(ctx context.Context, db *gorm.DB) ([]SchemaMigration, error) {
	var rows []SchemaMigration
	if err := db.WithContext(ctx).Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	return rows, nil
}

// checkHistory fails when the database records versions this binary does not
// ship, or when an applied script has since been edited.
func checkHistory(applied []SchemaMigration, registered []Migration) error {
	known := make(map[int]Migration, len(registered))
	for _, m := range registered {
		known[m.Version] = m
	}

	var unknown, edited []string
	for _, row := range applied {
		m, ok := known[row.Version]
		switch {
		case !ok:
			unknown = append(unknown, fmt.Sprintf("%06d", row.Version))
		case row.Checksum != "" && row.Checksum != m.Checksum:
			edited = append(edited, m.String())
		}
	}
	sort.Strings(unknown)

	var problems []string
	if len(unknown) > 0 {
		problems = append(problems, "unknown versions "+strings.Join(unknown, ", "))
	}
	if len(edited) > 0 {
		problems = append(problems, "scripts changed after being applied: "+strings.Join(edited, ", "))
	}
	if len(problems) > 0 {
		return fmt.Errorf("schema_migrations does not match this build: %s", strings.Join(problems, "; "))
	}
	return nil
}

func pendingMigrations(applied []SchemaMigration, registered []Migration) []Migration {
	done := make(map[int]struct{}, len(applied))
	for _, row := range applied {
		done[row.Version] = struct{}{}
	}
	var pending []Migration
	for _, m := range registered {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m)
		}
	}
	return pending
}

// RunMigrations applies every pending embedded migration in version order.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	registered, err := embeddedMigrations()
	if err != nil {
		return err
	}
	return runMigrations(ctx, db, registered)
}

func runMigrations(ctx context.Context, db *gorm.DB, registered []Migration) error {
	if err := ensureHistoryTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if err := checkHistory(applied, registered); err != nil {
		return err
	}

	for _, m := range pendingMigrations(applied, registered) {
		start := time.Now()
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.UpScript).Error; err != nil {
				return fmt.Errorf("apply %s: %w", m, err)
			}
			return tx.Create(&SchemaMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum}).Error
		})
		if err != nil {
			return err
		}
		middleware.Logger.InfoContext(ctx, "migration applied",
			slog.String("migration", m.String()),
			slog.Duration("took", time.Since(start)))
	}
	return nil
}

// RollbackMigration reverts version, which must be the most recently applied migration.
func RollbackMigration(ctx context.Context, db *gorm.DB, version int) error {
	registered, err := embeddedMigrations()
	if err != nil {
		return err
	}
	return rollbackMigration(ctx, db, registered, version)
}

func rollbackMigration(ctx context.Context, db *gorm.DB, registered []Migration, version int) error {
	var target *Migration
	for i := range registered {
		if registered[i].Version == version {
			target = &registered[i]
		}
	}
	if target == nil {
		return fmt.Errorf("migration version %d not found", version)
	}

	if err := ensureHistoryTable(ctx, db); err != nil {
		return err
	}
	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return err
	}
	if len(applied) == 0 || applied[len(applied)-1].Version != version {
		latest := "none"
		if len(applied) > 0 {
			latest = fmt.Sprintf("%06d", applied[len(applied)-1].Version)
		}
		return fmt.Errorf("migration %06d is not the latest applied migration (latest: %s)", version, latest)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(target.DownScript).Error; err != nil {
			return fmt.Errorf("roll back %s: %w", target, err)
		}
		return tx.Where("version = ?", version).Delete(&SchemaMigration{}).Error
	})
	if err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "migration rolled back", slog.String("migration", target.String()))
	return nil
}
