package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectStore persists uploaded material bytes.
type ObjectStore interface {
	// Put writes body under key and returns a reference the worker can
	// resolve, such as gs://bucket/key.
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// MaterialKey builds the object key for an uploaded file.
func MaterialKey(userID, materialID uuid.UUID, fileName string) string {
	name := sanitizeName(fileName)
	return fmt.Sprintf("materials/%s/%s/%s", userID, materialID, name)
}

func sanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
