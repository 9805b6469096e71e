// Package service holds the membership, application and content business rules.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"clubhub/internal/middleware"
	"clubhub/internal/storage"
)

// Credentials is the password and token capability the services depend on.
type Credentials interface {
	HashPassword(password string) (string, error)
	CheckPassword(password, hash string) bool
	IssueToken(userID uint, ttl time.Duration) (string, error)
	TTL() time.Duration
}

const galleryPathPrefix = "gallery/"

// galleryKey turns a stored gallery path into its object-store key.
func galleryKey(filePath string) string {
	return strings.TrimPrefix(filePath, galleryPathPrefix)
}

// removeFiles deletes stored gallery files after the owning rows are gone.
// Failures leave orphaned objects behind and are only logged.
func removeFiles(ctx context.Context, store storage.ObjectStore, paths []string) {
	if store == nil || len(paths) == 0 {
		return
	}
	keys := make([]string, 0, len(paths))
	for _, p := range paths {
		keys = append(keys, galleryKey(p))
	}
	if err := storage.DeleteAll(ctx, store, keys); err != nil {
		middleware.Logger.WarnContext(ctx, "failed to remove gallery files",
			slog.Int("count", len(keys)), slog.String("error", err.Error()))
	}
}

func optionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
