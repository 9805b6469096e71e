package service

import (
	"context"
	"strings"
	"time"

	"clubhub/internal/featureflags"
	"clubhub/internal/models"
	"clubhub/internal/repository"
	"clubhub/internal/validation"
)

const (
	maxTitleLen   = 200
	maxContentLen = 50000
)

type PostService struct {
	posts repository.PostRepository
	flags *featureflags.Manager
}

type CreatePostInput struct {
	AuthorID uint
	Title    string
	Content  string
	Category string
}

type UpdatePostInput struct {
	Title    *string
	Content  *string
	Category *string
}

func NewPostService(posts repository.PostRepository, flags *featureflags.Manager) *PostService {
	return &PostService{posts: posts, flags: flags}
}

func (s *PostService) present(p *models.Post) *models.Post {
	p.ContentHTML = renderBody(s.flags, p.Content)
	return p
}

// List is public: pinned posts first, then newest.
func (s *PostService) List(ctx context.Context, category string, limit, offset int) ([]models.Post, error) {
	posts, err := s.posts.List(ctx, strings.TrimSpace(category), limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		s.present(&posts[i])
	}
	return posts, nil
}

func (s *PostService) Get(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.present(post), nil
}

func validatePostFields(title, content, category string) error {
	if err := validation.RequiredText("title", title, maxTitleLen); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.RequiredText("content", content, maxContentLen); err != nil {
		return models.NewValidationError(err.Error())
	}
	if err := validation.ValidateCategory(category); err != nil {
		return models.NewValidationError(err.Error())
	}
	return nil
}

func (s *PostService) Create(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	title := strings.TrimSpace(in.Title)
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = defaultCategory
	}
	if err := validatePostFields(title, in.Content, category); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:    title,
		Content:  in.Content,
		Category: category,
		AuthorID: in.AuthorID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return s.present(post), nil
}

// Update edits a post; only its author or an admin may do so.
func (s *PostService) Update(ctx context.Context, actor Actor, id uint, in UpdatePostInput) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(post.AuthorID) {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}

	if in.Title != nil {
		post.Title = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Category != nil {
		post.Category = strings.TrimSpace(*in.Category)
	}
	if err := validatePostFields(post.Title, post.Content, post.Category); err != nil {
		return nil, err
	}
	post.UpdatedAt = time.Now().UTC()

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	return s.present(post), nil
}

// Delete removes a post and its comments; only its author or an admin may do so.
func (s *PostService) Delete(ctx context.Context, actor Actor, id uint) error {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(post.AuthorID) {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	return s.posts.Delete(ctx, id)
}

// TogglePin flips the pinned flag.
func (s *PostService) TogglePin(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.IsPinned = !post.IsPinned
	if err := s.posts.SetPinned(ctx, id, post.IsPinned); err != nil {
		return nil, err
	}
	return s.present(post), nil
}
