package repository

import (
	"context"

	"clubhub/internal/models"

	"gorm.io/gorm"
)

// GalleryRepository persists albums and their items.
type GalleryRepository interface {
	WithTx(tx *gorm.DB) GalleryRepository
	CreateAlbum(ctx context.Context, album *models.GalleryAlbum) error
	CreateItem(ctx context.Context, item *models.GalleryItem) error
	GetAlbum(ctx context.Context, id uint) (*models.GalleryAlbum, error)
	ListAlbums(ctx context.Context, category string, limit, offset int) ([]models.GalleryAlbum, error)
	DeleteAlbum(ctx context.Context, id uint) error
}

type galleryRepository struct {
	db *gorm.DB
}

// NewGalleryRepository creates a new GalleryRepository
func NewGalleryRepository(db *gorm.DB) GalleryRepository {
	return &galleryRepository{db: db}
}

func (r *galleryRepository) WithTx(tx *gorm.DB) GalleryRepository {
	return &galleryRepository{db: tx}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("gallery_items.id ASC")
}

func (r *galleryRepository) CreateAlbum(ctx context.Context, album *models.GalleryAlbum) error {
	if err := r.db.WithContext(ctx).Omit("Items", "Uploader").Create(album).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *galleryRepository) CreateItem(ctx context.Context, item *models.GalleryItem) error {
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *galleryRepository) GetAlbum(ctx context.Context, id uint) (*models.GalleryAlbum, error) {
	var album models.GalleryAlbum
	err := r.db.WithContext(ctx).
		Preload("Uploader").
		Preload("Items", orderedItems).
		First(&album, id).Error
	if err != nil {
		return nil, translate(err, "GalleryAlbum", id)
	}
	return &album, nil
}

// ListAlbums returns albums newest first with their items.
func (r *galleryRepository) ListAlbums(ctx context.Context, category string, limit, offset int) ([]models.GalleryAlbum, error) {
	var albums []models.GalleryAlbum
	q := r.db.WithContext(ctx).Preload("Items", orderedItems)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if err := q.Scopes(paginate(limit, offset)).
		Order("created_at DESC").Order("id DESC").
		Find(&albums).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return albums, nil
}

// DeleteAlbum removes the album and its item rows.
func (r *galleryRepository) DeleteAlbum(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("album_id = ?", id).Delete(&models.GalleryItem{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Delete(&models.GalleryAlbum{}, id)
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("GalleryAlbum", id)
		}
		return nil
	})
}
