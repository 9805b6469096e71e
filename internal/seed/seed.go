package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"clubhub/internal/middleware"
	"clubhub/internal/models"
	"clubhub/internal/repository"
	"clubhub/internal/service"

	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "ClubMember123"

// PasswordHasher hashes the shared seed password once per run.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// Options configuration for the seeder
type Options struct {
	Members         int
	Applicants      int
	Posts           int
	CommentsPerPost int
	// Clean removes previously seeded accounts and everything they own first.
	Clean   bool
	Seed    int64
	MaxDays int
}

// Summary counts what a run created.
type Summary struct {
	Members      int
	Applicants   int
	Posts        int
	Comments     int
	FormCreated  bool
	CounterAdded int
}

type Seeder struct {
	db      *gorm.DB
	hasher  PasswordHasher
	opts    Options
	factory *Factory
	forms   repository.FormRepository
}

func NewSeeder(db *gorm.DB, hasher PasswordHasher, opts Options) *Seeder {
	return &Seeder{
		db:      db,
		hasher:  hasher,
		opts:    opts,
		factory: NewFactory(opts.Seed, opts.MaxDays),
		forms:   repository.NewFormRepository(db),
	}
}

// Run seeds members with posts and comments, plus pending applicants who are
// counted against the current recruitment form. Everything happens in one transaction.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	middleware.Logger.Info("starting database seeding",
		slog.Int("members", s.opts.Members),
		slog.Int("applicants", s.opts.Applicants),
		slog.Int("posts", s.opts.Posts))

	hash, err := s.hasher.HashPassword(DefaultPassword)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.opts.Clean {
			if err := clean(tx); err != nil {
				return fmt.Errorf("clean seeded data: %w", err)
			}
		}

		members, err := s.createUsers(tx, s.opts.Members, hash, true)
		if err != nil {
			return fmt.Errorf("create members: %w", err)
		}
		summary.Members = len(members)

		if err := s.createContent(tx, members, summary); err != nil {
			return err
		}
		return s.createApplicants(ctx, tx, hash, summary)
	})
	if err != nil {
		return nil, err
	}

	middleware.Logger.Info("database seeding completed",
		slog.Int("members", summary.Members),
		slog.Int("applicants", summary.Applicants),
		slog.Int("posts", summary.Posts),
		slog.Int("comments", summary.Comments))
	return summary, nil
}

func (s *Seeder) createUsers(tx *gorm.DB, n int, hash string, approved bool) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for range n {
		users = append(users, s.factory.User(hash, approved))
	}
	if len(users) == 0 {
		return users, nil
	}
	if err := tx.CreateInBatches(&users, 100).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Seeder) createContent(tx *gorm.DB, members []models.User, summary *Summary) error {
	if len(members) == 0 || s.opts.Posts <= 0 {
		return nil
	}
	posts := make([]models.Post, 0, s.opts.Posts)
	for i := range s.opts.Posts {
		posts = append(posts, s.factory.Post(members[i%len(members)].ID))
	}
	if err := tx.CreateInBatches(&posts, 100).Error; err != nil {
		return fmt.Errorf("create posts: %w", err)
	}
	summary.Posts = len(posts)

	var comments []models.Comment
	for i, post := range posts {
		for j := range s.opts.CommentsPerPost {
			author := members[(i+j+1)%len(members)]
			comments = append(comments, s.factory.Comment(post, author.ID))
		}
	}
	if len(comments) > 0 {
		if err := tx.CreateInBatches(&comments, 200).Error; err != nil {
			return fmt.Errorf("create comments: %w", err)
		}
	}
	summary.Comments = len(comments)
	return nil
}

// createApplicants adds unapproved users with pending applications. Each one
// is counted through the applicant counter, as a real submission would be.
func (s *Seeder) createApplicants(ctx context.Context, tx *gorm.DB, hash string, summary *Summary) error {
	if s.opts.Applicants <= 0 {
		return nil
	}
	forms := s.forms.WithTx(tx)
	form, err := forms.Current(ctx)
	if err != nil {
		return err
	}
	if form == nil {
		questions, err := json.Marshal(service.DefaultFormQuestions())
		if err != nil {
			return err
		}
		form = &models.ApplicationForm{IsActive: true, FormQuestions: questions}
		if err := forms.Create(ctx, form); err != nil {
			return fmt.Errorf("create recruitment form: %w", err)
		}
		summary.FormCreated = true
	}

	applicants, err := s.createUsers(tx, s.opts.Applicants, hash, false)
	if err != nil {
		return fmt.Errorf("create applicants: %w", err)
	}
	counter := service.NewStoredCounter(s.forms)
	for _, u := range applicants {
		app := s.factory.Application(u.ID)
		if err := tx.Create(&app).Error; err != nil {
			return fmt.Errorf("create application: %w", err)
		}
		if err := counter.Increment(ctx, tx, form.ID); err != nil {
			return err
		}
		summary.CounterAdded++
	}
	summary.Applicants = len(applicants)
	return nil
}

// clean deletes seeded accounts together with their content.
func clean(tx *gorm.DB) error {
	seeded := tx.Model(&models.User{}).Select("id").Where("email LIKE ?", "%@"+seedDomain)
	seededPosts := tx.Model(&models.Post{}).Select("id").Where("author_id IN (?)", seeded)
	steps := []*gorm.DB{
		tx.Where("post_id IN (?) OR author_id IN (?)", seededPosts, seeded).Delete(&models.Comment{}),
		tx.Where("author_id IN (?)", seeded).Delete(&models.Post{}),
		tx.Where("applicant_id IN (?)", seeded).Delete(&models.Application{}),
		tx.Where("email LIKE ?", "%@"+seedDomain).Delete(&models.User{}),
	}
	for _, step := range steps {
		if step.Error != nil {
			return step.Error
		}
	}
	return nil
}
