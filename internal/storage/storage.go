// Package storage persists uploaded media under generated keys.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrInvalidKey = errors.New("invalid storage key")

// ImageStore saves and removes media objects addressed by slash-separated keys.
type ImageStore interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

func joinURL(base, key string) string {
	if key == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
