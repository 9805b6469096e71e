// Command migrate applies, inspects and rolls back the clubhub schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"clubhub/internal/config"
	"clubhub/internal/database"

	"gorm.io/gorm"
)

const usageText = `usage: migrate <command> [args]

commands:
  up              apply pending SQL migrations
  auto            run GORM AutoMigrate over the persistent models
  status          show applied and pending migrations for DB_SCHEMA_MODE
  list            list embedded migrations
  down <version>  roll back one applied migration`

type command func(ctx context.Context, db *gorm.DB, cfg *config.Config, args []string) error

var commands = map[string]command{
	"up":     migrateUp,
	"auto":   migrateAuto,
	"status": schemaStatus,
	"list":   listMigrations,
	"down":   migrateDown,
}

func main() {
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usageText) }
	flag.Parse()
	if err := run(flag.Args()); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%s", usageText)
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q\n%s", name, usageText)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var db *gorm.DB
	if name != "list" {
		if db, err = database.Connect(cfg); err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
	}
	return cmd(context.Background(), db, cfg, args[1:])
}

func migrateUp(ctx context.Context, db *gorm.DB, _ *config.Config, _ []string) error {
	if err := database.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("sql migrations failed: %w", err)
	}
	log.Println("sql migrations applied")
	return nil
}

func migrateAuto(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	cfg.DBSchemaMode = database.SchemaModeAuto
	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return fmt.Errorf("auto schema apply failed: %w", err)
	}
	log.Printf("automigrate applied to %d models", len(database.PersistentModels()))
	return nil
}

func schemaStatus(ctx context.Context, db *gorm.DB, cfg *config.Config, _ []string) error {
	status, err := database.GetSchemaStatus(ctx, db, cfg)
	if err != nil {
		return fmt.Errorf("schema status failed: %w", err)
	}
	log.Printf("mode=%s env=%s run_sql=%t run_auto=%t applied=%v pending=%d",
		status.Mode, status.Environment, status.WillRunSQL, status.WillRunAutoMigrate,
		status.AppliedVersions, len(status.PendingMigrations))
	for _, m := range status.PendingMigrations {
		log.Printf("pending: %s", m)
	}
	if status.HistoryError != "" {
		log.Printf("warning: %s", status.HistoryError)
	}
	return nil
}

func listMigrations(_ context.Context, _ *gorm.DB, _ *config.Config, _ []string) error {
	for _, m := range database.GetMigrations() {
		fmt.Printf("%s  sha256:%s\n", m, m.Checksum[:12])
	}
	return nil
}

func migrateDown(ctx context.Context, db *gorm.DB, _ *config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: migrate down <version>")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}
	if database.GetMigrationByVersion(version) == nil {
		return fmt.Errorf("no embedded migration with version %d", version)
	}
	if err := database.RollbackMigration(ctx, db, version); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}
	log.Printf("rolled back migration %d", version)
	return nil
}
