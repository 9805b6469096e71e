package repository

import (
	"context"
	"errors"
	"time"

	"clubhub/internal/cache"
	"clubhub/internal/models"

	"gorm.io/gorm"
)

// FormRepository persists recruitment forms. The newest active row is the
// current form; when none is active the newest row of any state stands in.
type FormRepository interface {
	WithTx(tx *gorm.DB) FormRepository
	Current(ctx context.Context) (*models.ApplicationForm, error)
	Latest(ctx context.Context) (*models.ApplicationForm, error)
	LockCurrent(ctx context.Context) (*models.ApplicationForm, error)
	Create(ctx context.Context, form *models.ApplicationForm) error
	SaveSettings(ctx context.Context, form *models.ApplicationForm) error
	AddApplicants(ctx context.Context, id uint, delta int) error
	ResetApplicants(ctx context.Context, id uint, adminID uint) error
}

type formRepository struct {
	db *gorm.DB
}

// NewFormRepository creates a new FormRepository
func NewFormRepository(db *gorm.DB) FormRepository {
	return &formRepository{db: db}
}

func (r *formRepository) WithTx(tx *gorm.DB) FormRepository {
	return &formRepository{db: tx}
}

func (r *formRepository) first(q *gorm.DB) (*models.ApplicationForm, error) {
	var form models.ApplicationForm
	err := q.Order("created_at DESC").Order("id DESC").First(&form).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &form, nil
}

// Current returns the newest active form, or nil.
func (r *formRepository) Current(ctx context.Context) (*models.ApplicationForm, error) {
	return r.first(r.db.WithContext(ctx).Where("is_active = ?", true))
}

// Latest returns the newest form regardless of state, or nil.
func (r *formRepository) Latest(ctx context.Context) (*models.ApplicationForm, error) {
	return r.first(r.db.WithContext(ctx))
}

// LockCurrent is Current with the row locked for the rest of the transaction.
func (r *formRepository) LockCurrent(ctx context.Context) (*models.ApplicationForm, error) {
	return r.first(forUpdate(r.db.WithContext(ctx)).Where("is_active = ?", true))
}

func (r *formRepository) Create(ctx context.Context, form *models.ApplicationForm) error {
	if err := r.db.WithContext(ctx).Create(form).Error; err != nil {
		return models.NewInternalError(err)
	}
	cache.InvalidateRecruitment(ctx)
	return nil
}

// SaveSettings writes the admin-editable columns. current_applicants is never
// touched here.
func (r *formRepository) SaveSettings(ctx context.Context, form *models.ApplicationForm) error {
	form.UpdatedAt = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.ApplicationForm{}).
		Where("id = ?", form.ID).
		Select("is_active", "max_applicants", "form_questions", "updated_by", "updated_at").
		Updates(form)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("ApplicationForm", form.ID)
	}
	cache.InvalidateRecruitment(ctx)
	return nil
}

// AddApplicants adjusts the stored counter in place.
func (r *formRepository) AddApplicants(ctx context.Context, id uint, delta int) error {
	res := r.db.WithContext(ctx).Model(&models.ApplicationForm{}).
		Where("id = ?", id).
		Update("current_applicants", gorm.Expr("current_applicants + ?", delta))
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("ApplicationForm", id)
	}
	cache.InvalidateRecruitment(ctx)
	return nil
}

func (r *formRepository) ResetApplicants(ctx context.Context, id uint, adminID uint) error {
	res := r.db.WithContext(ctx).Model(&models.ApplicationForm{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"current_applicants": 0,
			"updated_by":         adminID,
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("ApplicationForm", id)
	}
	cache.InvalidateRecruitment(ctx)
	return nil
}
