package repository

import (
	"errors"

	"clubhub/internal/database"
	"clubhub/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxPageSize = 100

// paginate clamps limit to [1, maxPageSize] and offset to >= 0.
func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit <= 0 || limit > maxPageSize {
			limit = maxPageSize
		}
		if offset < 0 {
			offset = 0
		}
		return db.Limit(limit).Offset(offset)
	}
}

// forUpdate locks the selected rows until the surrounding transaction ends.
// SQLite serialises writers on its own and has no row locks.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// translate maps storage errors onto AppErrors.
func translate(err error, resource string, id any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError(resource, id)
	case database.IsUniqueViolation(err):
		return models.NewConflictError(resource + " already exists")
	default:
		var appErr *models.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return models.NewInternalError(err)
	}
}
