package server

import (
	"io"
	"mime/multipart"

	"clubhub/internal/models"
	"clubhub/internal/service"

	"github.com/gofiber/fiber/v2"
)

func uploadFromHeader(fh *multipart.FileHeader) service.UploadFile {
	return service.UploadFile{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get(fiber.HeaderContentType),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// ListAlbums godoc
// @Summary List gallery albums, newest first
// @Tags gallery
// @Produce json
// @Param category query string false "Category filter"
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {array} models.GalleryAlbum
// @Router /api/gallery [get]
func (s *Server) ListAlbums(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	albums, err := s.gallery.ListAlbums(c.UserContext(), c.Query("category"), page.Limit, page.Offset)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(albums)
}

// GetAlbum godoc
// @Summary Get an album with its items
// @Tags gallery
// @Security BearerAuth
// @Produce json
// @Param id path int true "Album ID"
// @Success 200 {object} models.GalleryAlbum
// @Failure 404 {object} models.ErrorResponse
// @Router /api/gallery/{id} [get]
func (s *Server) GetAlbum(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	album, err := s.gallery.GetAlbum(c.UserContext(), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(album)
}

// CreateAlbum godoc
// @Summary Upload an album
// @Description All files are stored or none are.
// @Tags gallery
// @Security BearerAuth
// @Accept mpfd
// @Produce json
// @Param title formData string true "Album title"
// @Param description formData string false "Description"
// @Param category formData string false "Category"
// @Param files formData file true "Images or videos"
// @Success 201 {object} models.GalleryAlbum
// @Failure 400 {object} models.ErrorResponse
// @Router /api/gallery [post]
func (s *Server) CreateAlbum(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Expected a multipart form"))
	}
	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploadFromHeader(fh))
	}

	album, err := s.gallery.CreateAlbum(c.UserContext(), service.CreateAlbumInput{
		UploaderID:  currentUser(c).ID,
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
		Files:       files,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(album)
}

// DeleteAlbum godoc
// @Summary Delete an album and its files
// @Tags gallery
// @Security BearerAuth
// @Param id path int true "Album ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Router /api/gallery/{id} [delete]
func (s *Server) DeleteAlbum(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.gallery.DeleteAlbum(c.UserContext(), service.ActorOf(currentUser(c)), id); err != nil {
		return mapServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
