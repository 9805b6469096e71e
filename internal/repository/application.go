package repository

import (
	"context"
	"errors"

	"clubhub/internal/models"

	"gorm.io/gorm"
)

// ApplicationRepository persists club applications.
type ApplicationRepository interface {
	WithTx(tx *gorm.DB) ApplicationRepository
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id uint) (*models.Application, error)
	GetByApplicant(ctx context.Context, applicantID uint) (*models.Application, error)
	List(ctx context.Context, status models.ApplicationStatus, limit, offset int) ([]models.Application, error)
	SaveReview(ctx context.Context, app *models.Application) error
	Delete(ctx context.Context, id uint) error
}

type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository creates a new ApplicationRepository
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) WithTx(tx *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: tx}
}

// Create inserts app. A second application for the same applicant violates
// idx_applications_applicant and surfaces as a conflict.
func (r *applicationRepository) Create(ctx context.Context, app *models.Application) error {
	if err := r.db.WithContext(ctx).Omit("Applicant").Create(app).Error; err != nil {
		return translate(err, "Application", app.ApplicantID)
	}
	return nil
}

func (r *applicationRepository) GetByID(ctx context.Context, id uint) (*models.Application, error) {
	var app models.Application
	if err := r.db.WithContext(ctx).Preload("Applicant").First(&app, id).Error; err != nil {
		return nil, translate(err, "Application", id)
	}
	return &app, nil
}

// GetByApplicant returns nil, nil when the user has not applied.
func (r *applicationRepository) GetByApplicant(ctx context.Context, applicantID uint) (*models.Application, error) {
	var app models.Application
	err := r.db.WithContext(ctx).Where("applicant_id = ?", applicantID).First(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &app, nil
}

// List returns applications newest first, optionally filtered by status.
func (r *applicationRepository) List(ctx context.Context, status models.ApplicationStatus, limit, offset int) ([]models.Application, error) {
	var apps []models.Application
	q := r.db.WithContext(ctx).Preload("Applicant")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Scopes(paginate(limit, offset)).
		Order("created_at DESC").Order("id DESC").
		Find(&apps).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return apps, nil
}

// SaveReview writes only the review columns of app.
func (r *applicationRepository) SaveReview(ctx context.Context, app *models.Application) error {
	res := r.db.WithContext(ctx).Model(&models.Application{}).
		Where("id = ?", app.ID).
		Updates(map[string]any{
			"status":      app.Status,
			"reviewed_at": app.ReviewedAt,
			"reviewed_by": app.ReviewedBy,
		})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Application", app.ID)
	}
	return nil
}

func (r *applicationRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Application{}, id)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Application", id)
	}
	return nil
}
