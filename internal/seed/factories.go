// Package seed fills a development database with plausible club data.
// It is intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"time"

	"clubhub/internal/models"

	"github.com/brianvoe/gofakeit/v6"
)

// Domain seeded accounts are created under; Clean only removes these.
const seedDomain = "seed.clubhub.test"

var (
	instruments = []string{"piano", "violin", "cello", "guitar", "bass", "drums", "vocals", "saxophone", "trumpet", "flute"}
	categories  = []string{"general", "notice", "rehearsal", "concert", "lessons"}
	majors      = []string{"Music", "Computer Science", "Physics", "Economics", "Biology", "History", "Mechanical Engineering"}
)

// Factory builds unsaved domain entities from a seeded faker, so a fixed seed
// gives the same data set every run.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
	next    int
}

// NewFactory returns a Factory. A zero seed picks a random one.
func NewFactory(seed int64, maxDays int) *Factory {
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		faker:   gofakeit.New(seed),
		maxDays: maxDays,
		now:     time.Now,
	}
}

func (f *Factory) pick(values []string) string {
	return values[f.faker.Number(0, len(values)-1)]
}

// pastTime spreads created_at values over the last maxDays days.
func (f *Factory) pastTime() time.Time {
	back := time.Duration(f.faker.Number(0, f.maxDays*24*60)) * time.Minute
	return f.now().Add(-back).UTC()
}

// User returns an account with unique email, username and student id.
func (f *Factory) User(passwordHash string, approved bool) models.User {
	f.next++
	first, last := f.faker.FirstName(), f.faker.LastName()
	username := strings.ToLower(fmt.Sprintf("%s.%s%d", first, last, f.next))
	studentID := fmt.Sprintf("%d%05d", f.faker.Number(2019, 2025), f.next)
	year := f.faker.Number(1, 4)
	created := f.pastTime()
	return models.User{
		Email:        fmt.Sprintf("%s@%s", username, seedDomain),
		Username:     username,
		PasswordHash: passwordHash,
		RealName:     first + " " + last,
		StudentID:    &studentID,
		PhoneNumber:  f.faker.Phone(),
		Major:        f.pick(majors),
		Year:         &year,
		IsApproved:   approved,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

// Application returns a pending application for applicantID.
func (f *Factory) Application(applicantID uint) models.Application {
	return models.Application{
		ApplicantID: applicantID,
		Motivation:  f.faker.Paragraph(1, 3, 12, " "),
		Experience:  f.faker.Sentence(12),
		Instrument:  f.pick(instruments),
		Status:      models.ApplicationStatusPending,
		CreatedAt:   f.pastTime(),
	}
}

// Post returns a markdown post by authorID.
func (f *Factory) Post(authorID uint) models.Post {
	created := f.pastTime()
	title := strings.TrimSuffix(f.faker.Sentence(f.faker.Number(3, 8)), ".")
	body := fmt.Sprintf("%s\n\n**%s**", f.faker.Paragraph(2, 3, 10, "\n\n"), f.faker.HipsterSentence(6))
	return models.Post{
		Title:     title,
		Content:   body,
		Category:  f.pick(categories),
		AuthorID:  authorID,
		IsPinned:  f.faker.Number(0, 19) == 0,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

// Comment returns a reply to post by authorID, dated after the post.
func (f *Factory) Comment(post models.Post, authorID uint) models.Comment {
	created := post.CreatedAt.Add(time.Duration(f.faker.Number(1, 72*60)) * time.Minute)
	return models.Comment{
		Content:   f.faker.Sentence(f.faker.Number(4, 20)),
		PostID:    post.ID,
		AuthorID:  authorID,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
