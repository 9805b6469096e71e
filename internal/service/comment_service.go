package service

import (
	"context"
	"time"

	"clubhub/internal/featureflags"
	"clubhub/internal/models"
	"clubhub/internal/repository"
	"clubhub/internal/validation"
)

const maxCommentLen = 2000

type CommentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	flags    *featureflags.Manager
}

func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository, flags *featureflags.Manager) *CommentService {
	return &CommentService{comments: comments, posts: posts, flags: flags}
}

func (s *CommentService) present(c *models.Comment) *models.Comment {
	c.ContentHTML = renderBody(s.flags, c.Content)
	return c
}

// List returns a post's comments oldest first.
func (s *CommentService) List(ctx context.Context, postID uint) ([]models.Comment, error) {
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		s.present(&comments[i])
	}
	return comments, nil
}

func (s *CommentService) Create(ctx context.Context, authorID, postID uint, content string) (*models.Comment, error) {
	if err := validation.RequiredText("content", content, maxCommentLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if _, err := s.posts.GetByID(ctx, postID); err != nil {
		return nil, err
	}
	comment := &models.Comment{Content: content, PostID: postID, AuthorID: authorID}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return s.present(comment), nil
}

func (s *CommentService) Update(ctx context.Context, actor Actor, id uint, content string) (*models.Comment, error) {
	if err := validation.RequiredText("content", content, maxCommentLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(comment.AuthorID) {
		return nil, models.NewForbiddenError("You can only edit your own comments")
	}
	comment.Content = content
	comment.UpdatedAt = time.Now().UTC()
	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, err
	}
	return s.present(comment), nil
}

func (s *CommentService) Delete(ctx context.Context, actor Actor, id uint) error {
	comment, err := s.comments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(comment.AuthorID) {
		return models.NewForbiddenError("You can only delete your own comments")
	}
	return s.comments.Delete(ctx, id)
}
