package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"clubhub/internal/featureflags"
	"clubhub/internal/middleware"
	"clubhub/internal/models"
	"clubhub/internal/observability"
	"clubhub/internal/repository"
	"clubhub/internal/storage"
	"clubhub/internal/validation"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultMaxUploadBytes = 10 << 20

var allowedGalleryExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
	".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {},
}

// UploadFile is one file of a multipart album upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

type CreateAlbumInput struct {
	UploaderID  uint
	Title       string
	Description string
	Category    string
	Files       []UploadFile
}

type GalleryService struct {
	db       *gorm.DB
	gallery  repository.GalleryRepository
	store    storage.ObjectStore
	flags    *featureflags.Manager
	maxBytes int64
}

func NewGalleryService(db *gorm.DB, gallery repository.GalleryRepository, store storage.ObjectStore, flags *featureflags.Manager, maxBytes int64) *GalleryService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &GalleryService{db: db, gallery: gallery, store: store, flags: flags, maxBytes: maxBytes}
}

func sizeLabel(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d-byte", n)
}

func normalizeContentType(raw string) string {
	mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(mediaType)
}

// fileKind classifies an upload as image or video, rejecting anything else.
func (s *GalleryService) fileKind(f UploadFile) (kind, ext string, err error) {
	ext = strings.ToLower(filepath.Ext(f.Filename))
	if _, ok := allowedGalleryExt[ext]; !ok {
		return "", "", models.NewValidationError(fmt.Sprintf("%s: file type %q is not allowed", f.Filename, ext))
	}
	switch ct := normalizeContentType(f.ContentType); {
	case strings.HasPrefix(ct, "image/"):
		kind = models.GalleryFileImage
	case strings.HasPrefix(ct, "video/"):
		kind = models.GalleryFileVideo
	default:
		return "", "", models.NewValidationError(fmt.Sprintf("%s: only image and video files are allowed", f.Filename))
	}
	if f.Size > s.maxBytes {
		return "", "", models.NewValidationError(fmt.Sprintf("%s exceeds the %s limit", f.Filename, sizeLabel(s.maxBytes)))
	}
	if f.Open == nil {
		return "", "", models.NewValidationError(fmt.Sprintf("%s: empty upload", f.Filename))
	}
	return kind, ext, nil
}

func (s *GalleryService) withURLs(ctx context.Context, album *models.GalleryAlbum) {
	for i := range album.Items {
		item := &album.Items[i]
		if u, err := s.store.URL(ctx, galleryKey(item.FilePath)); err == nil {
			item.URL = u
		}
		if item.ThumbnailPath != "" {
			if u, err := s.store.URL(ctx, galleryKey(item.ThumbnailPath)); err == nil {
				item.ThumbnailURL = u
			}
		}
	}
}

// CreateAlbum stores every file and records the album in one transaction.
// Either all files and rows are kept or none are.
func (s *GalleryService) CreateAlbum(ctx context.Context, in CreateAlbumInput) (*models.GalleryAlbum, error) {
	ctx, span := observability.StartServiceSpan(ctx, "gallery", "create_album")
	defer span.End()

	title := strings.TrimSpace(in.Title)
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = defaultCategory
	}
	if err := validation.RequiredText("title", title, maxTitleLen); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateCategory(category); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len(in.Files) == 0 {
		return nil, models.NewValidationError("at least one file is required")
	}

	kinds := make([]string, len(in.Files))
	exts := make([]string, len(in.Files))
	for i, f := range in.Files {
		kind, ext, err := s.fileKind(f)
		if err != nil {
			observability.GalleryUploadsTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		kinds[i], exts[i] = kind, ext
	}

	album := &models.GalleryAlbum{
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		UploaderID:  in.UploaderID,
	}
	var written []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.gallery.WithTx(tx)
		if err := repo.CreateAlbum(ctx, album); err != nil {
			return err
		}
		for i, f := range in.Files {
			item, keys, err := s.storeFile(ctx, album.ID, in.UploaderID, f, kinds[i], exts[i])
			written = append(written, keys...)
			if err != nil {
				return err
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return err
			}
			album.Items = append(album.Items, *item)
		}
		return nil
	})
	if err != nil {
		if cleanupErr := storage.DeleteAll(context.WithoutCancel(ctx), s.store, written); cleanupErr != nil {
			middleware.Logger.ErrorContext(ctx, "gallery rollback left stored files",
				slog.Int("count", len(written)), slog.String("error", cleanupErr.Error()))
		}
		observability.GalleryUploadsTotal.WithLabelValues("failed").Inc()
		span.SetError(err)
		return nil, err
	}

	observability.GalleryUploadsTotal.WithLabelValues("stored").Inc()
	s.withURLs(ctx, album)
	return album, nil
}

// storeFile writes one upload (and its thumbnail) and returns the keys written.
func (s *GalleryService) storeFile(ctx context.Context, albumID, uploaderID uint, f UploadFile, kind, ext string) (*models.GalleryItem, []string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, nil, models.NewInternalError(fmt.Errorf("open %s: %w", f.Filename, err))
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, s.maxBytes+1))
	if err != nil {
		return nil, nil, models.NewInternalError(fmt.Errorf("read %s: %w", f.Filename, err))
	}
	if int64(len(data)) > s.maxBytes {
		return nil, nil, models.NewValidationError(fmt.Sprintf("%s exceeds the %s limit", f.Filename, sizeLabel(s.maxBytes)))
	}

	name := uuid.NewString()
	key := fmt.Sprintf("%d/%s%s", albumID, name, ext)
	if err := s.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), normalizeContentType(f.ContentType)); err != nil {
		return nil, nil, models.NewInternalError(fmt.Errorf("store %s: %w", f.Filename, err))
	}
	keys := []string{key}

	item := &models.GalleryItem{
		Title:      filepath.Base(f.Filename),
		FilePath:   galleryPathPrefix + key,
		FileType:   kind,
		AlbumID:    albumID,
		UploaderID: uploaderID,
	}

	if kind == models.GalleryFileImage && s.flags.On(featureflags.GalleryThumbnails) {
		thumbKey := fmt.Sprintf("%d/thumbs/%s.webp", albumID, name)
		if thumb, err := MakeThumbnail(bytes.NewReader(data)); err != nil {
			middleware.Logger.WarnContext(ctx, "thumbnail generation failed",
				slog.String("file", f.Filename), slog.String("error", err.Error()))
		} else if err := s.store.Put(ctx, thumbKey, bytes.NewReader(thumb), int64(len(thumb)), "image/webp"); err != nil {
			middleware.Logger.WarnContext(ctx, "thumbnail upload failed",
				slog.String("file", f.Filename), slog.String("error", err.Error()))
		} else {
			keys = append(keys, thumbKey)
			item.ThumbnailPath = galleryPathPrefix + thumbKey
		}
	}
	return item, keys, nil
}

func (s *GalleryService) GetAlbum(ctx context.Context, id uint) (*models.GalleryAlbum, error) {
	album, err := s.gallery.GetAlbum(ctx, id)
	if err != nil {
		return nil, err
	}
	s.withURLs(ctx, album)
	return album, nil
}

func (s *GalleryService) ListAlbums(ctx context.Context, category string, limit, offset int) ([]models.GalleryAlbum, error) {
	albums, err := s.gallery.ListAlbums(ctx, strings.TrimSpace(category), limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range albums {
		s.withURLs(ctx, &albums[i])
	}
	return albums, nil
}

// DeleteAlbum removes the album rows, then its stored files.
func (s *GalleryService) DeleteAlbum(ctx context.Context, actor Actor, id uint) error {
	album, err := s.gallery.GetAlbum(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(album.UploaderID) {
		return models.NewForbiddenError("You can only delete your own albums")
	}
	if err := s.gallery.DeleteAlbum(ctx, id); err != nil {
		return err
	}

	var paths []string
	for _, item := range album.Items {
		paths = append(paths, item.FilePath)
		if item.ThumbnailPath != "" {
			paths = append(paths, item.ThumbnailPath)
		}
	}
	removeFiles(ctx, s.store, paths)
	return nil
}
