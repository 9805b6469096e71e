// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"clubhub/internal/cache"
	"clubhub/internal/models"

	"gorm.io/gorm"
)

// Conflict field names reported by FindConflict.
const (
	FieldEmail     = "email"
	FieldUsername  = "username"
	FieldStudentID = "student_id"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByIDWithSecret(ctx context.Context, id uint) (*models.User, error)
	GetByIDAny(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	FindConflict(ctx context.Context, email, username string, studentID *string, excludeID uint) (string, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
	SoftDelete(ctx context.Context, id uint, at time.Time) error
	List(ctx context.Context, limit, offset int) ([]models.User, error)
	ListPending(ctx context.Context) ([]models.User, error)
	ListAdmins(ctx context.Context) ([]models.User, error)
	Stats(ctx context.Context) (*models.UserStats, error)
	HardDeleteCascade(ctx context.Context, id uint) ([]string, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

// activeUsers is the single visibility predicate for accounts: every lookup,
// listing and uniqueness check goes through it.
func activeUsers(db *gorm.DB) *gorm.DB {
	return db.Where("users.is_deleted = ?", false)
}

// GetByID returns an active user. Results are cached without the password hash.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		return translate(activeUsers(r.db.WithContext(ctx)).First(&user, id).Error, "User", id)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIDWithSecret reads an active user straight from the database, hash included.
func (r *userRepository) GetByIDWithSecret(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := activeUsers(r.db.WithContext(ctx)).First(&user, id).Error; err != nil {
		return nil, translate(err, "User", id)
	}
	return &user, nil
}

// GetByIDAny also returns soft-deleted users.
func (r *userRepository) GetByIDAny(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err, "User", id)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := activeUsers(r.db.WithContext(ctx)).
		Where("email = ?", strings.TrimSpace(email)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// FindConflict returns the first identifier already held by another active user,
// or "" when all are free. Empty values are skipped.
func (r *userRepository) FindConflict(ctx context.Context, email, username string, studentID *string, excludeID uint) (string, error) {
	checks := []struct {
		field string
		value string
	}{
		{FieldEmail, email},
		{FieldUsername, username},
	}
	if studentID != nil {
		checks = append(checks, struct {
			field string
			value string
		}{FieldStudentID, *studentID})
	}

	for _, c := range checks {
		if c.value == "" {
			continue
		}
		q := activeUsers(r.db.WithContext(ctx).Model(&models.User{})).Where(c.field+" = ?", c.value)
		if excludeID != 0 {
			q = q.Where("id <> ?", excludeID)
		}
		var count int64
		if err := q.Count(&count).Error; err != nil {
			return "", models.NewInternalError(err)
		}
		if count > 0 {
			return c.field, nil
		}
	}
	return "", nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return translate(err, "User", user.Email)
	}
	cache.Invalidate(ctx, cache.MemberStatsKey)
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return translate(err, "User", user.ID)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

func (r *userRepository) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error, "User", id)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

// SoftDelete flags an active user as deleted, freeing its identifiers for reuse.
func (r *userRepository) SoftDelete(ctx context.Context, id uint, at time.Time) error {
	res := activeUsers(r.db.WithContext(ctx).Model(&models.User{})).
		Where("id = ?", id).
		Updates(map[string]any{"is_deleted": true, "deleted_at": at})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	return nil
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	var users []models.User
	if err := activeUsers(r.db.WithContext(ctx)).Scopes(paginate(limit, offset)).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListPending(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := activeUsers(r.db.WithContext(ctx)).
		Where("is_approved = ?", false).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := activeUsers(r.db.WithContext(ctx)).
		Where("is_admin = ?", true).
		Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

// Stats counts approved and pending active members; the total includes soft-deleted rows.
func (r *userRepository) Stats(ctx context.Context) (*models.UserStats, error) {
	var stats models.UserStats
	err := cache.Aside(ctx, cache.MemberStatsKey, &stats, cache.StatsTTL, func() error {
		db := r.db.WithContext(ctx)
		if err := activeUsers(db.Model(&models.User{})).
			Where("is_approved = ?", true).Count(&stats.CurrentMembers).Error; err != nil {
			return models.NewInternalError(err)
		}
		if err := db.Model(&models.User{}).Count(&stats.TotalMembers).Error; err != nil {
			return models.NewInternalError(err)
		}
		if err := activeUsers(db.Model(&models.User{})).
			Where("is_approved = ?", false).Count(&stats.PendingMembers).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// HardDeleteCascade removes the user row with everything the user owns: posts
// (with their comments), comments, gallery albums and items, and the application.
// It returns the stored file paths of the removed gallery items so the caller
// can delete them once the surrounding transaction commits.
func (r *userRepository) HardDeleteCascade(ctx context.Context, id uint) ([]string, error) {
	db := r.db.WithContext(ctx)

	var items []models.GalleryItem
	if err := db.
		Where("uploader_id = ? OR album_id IN (?)", id,
			db.Model(&models.GalleryAlbum{}).Select("id").Where("uploader_id = ?", id)).
		Find(&items).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	steps := []func() error{
		func() error {
			return db.Where("post_id IN (?)", db.Model(&models.Post{}).Select("id").Where("author_id = ?", id)).
				Delete(&models.Comment{}).Error
		},
		func() error { return db.Where("author_id = ?", id).Delete(&models.Post{}).Error },
		func() error { return db.Where("author_id = ?", id).Delete(&models.Comment{}).Error },
		func() error {
			ids := make([]uint, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			if len(ids) == 0 {
				return nil
			}
			return db.Where("id IN ?", ids).Delete(&models.GalleryItem{}).Error
		},
		func() error { return db.Where("uploader_id = ?", id).Delete(&models.GalleryAlbum{}).Error },
		func() error { return db.Where("applicant_id = ?", id).Delete(&models.Application{}).Error },
		func() error {
			// Forms and reviews keep their history without the reviewer.
			if err := db.Model(&models.Application{}).Where("reviewed_by = ?", id).
				Update("reviewed_by", nil).Error; err != nil {
				return err
			}
			return db.Model(&models.ApplicationForm{}).Where("updated_by = ?", id).
				Update("updated_by", nil).Error
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, models.NewInternalError(err)
		}
	}

	res := db.Delete(&models.User{}, id)
	if res.Error != nil {
		return nil, models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)

	paths := make([]string, 0, len(items)*2)
	for _, it := range items {
		paths = append(paths, it.FilePath)
		if it.ThumbnailPath != "" {
			paths = append(paths, it.ThumbnailPath)
		}
	}
	return paths, nil
}
