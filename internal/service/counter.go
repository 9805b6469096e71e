package service

import (
	"context"

	"clubhub/internal/models"
	"clubhub/internal/repository"

	"gorm.io/gorm"
)

// ApplicantCounter is the only code allowed to change an ApplicationForm's
// applicant count. The capacity gate reads the count through Current.
type ApplicantCounter interface {
	Increment(ctx context.Context, tx *gorm.DB, formID uint) error
	Reset(ctx context.Context, tx *gorm.DB, formID, adminID uint) error
	Current(form *models.ApplicationForm) int
}

// storedCounter keeps the count in application_forms.current_applicants. The
// stored value drifts from the number of application rows: deletions never
// decrement it and resets ignore existing rows.
type storedCounter struct {
	forms repository.FormRepository
}

// NewStoredCounter returns the column-backed ApplicantCounter.
func NewStoredCounter(forms repository.FormRepository) ApplicantCounter {
	return &storedCounter{forms: forms}
}

func (c *storedCounter) Increment(ctx context.Context, tx *gorm.DB, formID uint) error {
	return c.forms.WithTx(tx).AddApplicants(ctx, formID, 1)
}

func (c *storedCounter) Reset(ctx context.Context, tx *gorm.DB, formID, adminID uint) error {
	return c.forms.WithTx(tx).ResetApplicants(ctx, formID, adminID)
}

func (c *storedCounter) Current(form *models.ApplicationForm) int {
	if form == nil {
		return 0
	}
	return form.CurrentApplicants
}
