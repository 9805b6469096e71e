// Package main provides operator utilities for clubhub: role management,
// recruitment question import and development seeding.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"clubhub/internal/auth"
	"clubhub/internal/bootstrap"
	"clubhub/internal/config"
	"clubhub/internal/database"
	"clubhub/internal/models"
	"clubhub/internal/repository"
	"clubhub/internal/seed"
	"clubhub/internal/service"

	"gorm.io/gorm"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/admin promote <email>                          - Promote user to admin")
	fmt.Println("  go run ./cmd/admin demote <email>                           - Demote user from admin")
	fmt.Println("  go run ./cmd/admin list-admins                              - List all admins")
	fmt.Println("  go run ./cmd/admin import-questions <admin-email> <file.yml> - Replace recruitment form questions")
	fmt.Println("  go run ./cmd/admin seed [flags]                             - Seed development data")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx := context.Background()
	members, err := bootstrap.NewMembershipService(cfg, db)
	if err != nil {
		log.Fatalf("Failed to build membership service: %v", err)
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "promote", "demote":
		if len(args) < 1 {
			fmt.Printf("Usage: go run ./cmd/admin %s <email>\n", os.Args[1])
			os.Exit(1)
		}
		setAdmin(ctx, members, args[0], os.Args[1] == "promote")
	case "list-admins":
		listAdmins(ctx, members)
	case "import-questions":
		if len(args) < 2 {
			fmt.Println("Usage: go run ./cmd/admin import-questions <admin-email> <file.yml>")
			os.Exit(1)
		}
		importQuestions(ctx, cfg, db, args[0], args[1])
	case "seed":
		runSeed(ctx, cfg, db, args)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func setAdmin(ctx context.Context, members *service.MembershipService, email string, isAdmin bool) {
	user, err := members.SetAdminByEmail(ctx, email, isAdmin)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			fmt.Printf("User with email %s not found\n", email)
			os.Exit(1)
		}
		log.Fatalf("Failed to update role: %v", err)
	}
	verb := "demoted"
	if isAdmin {
		verb = "promoted"
	}
	fmt.Printf("✅ Successfully %s %s (ID: %d)\n", verb, user.Username, user.ID)
}

func listAdmins(ctx context.Context, members *service.MembershipService) {
	admins, err := members.ListAdmins(ctx)
	if err != nil {
		log.Fatalf("Failed to fetch admins: %v", err)
	}
	if len(admins) == 0 {
		fmt.Println("No admins found in the system")
		return
	}

	fmt.Println("\n📋 Current Admins:")
	fmt.Println("─────────────────────────────────────")
	for _, admin := range admins {
		fmt.Printf("ID: %d | Username: %s | Email: %s\n", admin.ID, admin.Username, admin.Email)
	}
	fmt.Println("─────────────────────────────────────")
}

func importQuestions(ctx context.Context, cfg *config.Config, db *gorm.DB, adminEmail, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", path, err)
	}
	questions, err := service.ParseQuestionsYAML(raw)
	if err != nil {
		log.Fatalf("Invalid question file: %v", err)
	}

	users := repository.NewUserRepository(db)
	admin, err := users.GetByEmail(ctx, strings.ToLower(adminEmail))
	if err != nil {
		log.Fatalf("Database error: %v", err)
	}
	if admin == nil || !admin.IsAdmin {
		fmt.Printf("%s is not an administrator\n", adminEmail)
		os.Exit(1)
	}

	creds, err := auth.NewCredentials(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("Failed to build credentials: %v", err)
	}
	forms := repository.NewFormRepository(db)
	apps := service.NewApplicationService(db, users, repository.NewApplicationRepository(db),
		forms, service.NewStoredCounter(forms), creds, nil, nil)

	saved, err := apps.UpdateQuestions(ctx, admin.ID, questions)
	if err != nil {
		log.Fatalf("Failed to save questions: %v", err)
	}
	fmt.Printf("✅ Imported %d questions from %s\n", len(saved), path)
}

func runSeed(ctx context.Context, cfg *config.Config, db *gorm.DB, args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	opts := seed.Options{}
	fs.IntVar(&opts.Members, "members", 20, "approved members to create")
	fs.IntVar(&opts.Applicants, "applicants", 5, "pending applicants to create")
	fs.IntVar(&opts.Posts, "posts", 30, "board posts to create")
	fs.IntVar(&opts.CommentsPerPost, "comments", 3, "maximum comments per post")
	fs.BoolVar(&opts.Clean, "clean", false, "remove previously seeded data first")
	fs.Int64Var(&opts.Seed, "seed", time.Now().UnixNano(), "random seed")
	fs.IntVar(&opts.MaxDays, "days", 90, "spread timestamps over this many past days")
	_ = fs.Parse(args)

	if cfg.Env == "production" {
		log.Fatal("Refusing to seed a production database")
	}

	creds, err := auth.NewCredentials(cfg.JWTSecret, time.Duration(cfg.JWTTTLMinutes)*time.Minute)
	if err != nil {
		log.Fatalf("Failed to build credentials: %v", err)
	}
	summary, err := seed.NewSeeder(db, creds, opts).Run(ctx)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	fmt.Printf("🌱 Seeded %d members, %d applicants, %d posts, %d comments (password %q)\n",
		summary.Members, summary.Applicants, summary.Posts, summary.Comments, seed.DefaultPassword)
}
