package models

import "time"

// Gallery item media kinds.
const (
	GalleryFileImage = "image"
	GalleryFileVideo = "video"
)

// GalleryAlbum groups uploaded media. Deleting an album deletes its items.
type GalleryAlbum struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description string        `gorm:"type:text" json:"description"`
	Category    string        `gorm:"size:50;not null;index" json:"category"`
	UploaderID  uint          `gorm:"not null;index" json:"uploader_id"`
	Uploader    *User         `gorm:"foreignKey:UploaderID" json:"uploader,omitempty"`
	Items       []GalleryItem `gorm:"foreignKey:AlbumID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt   time.Time     `json:"created_at"`
}

// GalleryItem is one stored file within an album.
type GalleryItem struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	FilePath      string    `gorm:"size:512;not null" json:"file_path"`
	ThumbnailPath string    `gorm:"size:512" json:"thumbnail_path,omitempty"`
	FileType      string    `gorm:"size:16;not null" json:"file_type"`
	URL           string    `gorm:"-" json:"url"`
	ThumbnailURL  string    `gorm:"-" json:"thumbnail_url,omitempty"`
	AlbumID       uint      `gorm:"not null;index" json:"album_id"`
	UploaderID    uint      `gorm:"not null;index" json:"uploader_id"`
	CreatedAt     time.Time `json:"created_at"`
}
