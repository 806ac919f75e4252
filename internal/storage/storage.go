// Package storage keeps uploaded files addressed by tenant-scoped keys.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var ErrNotFound = errors.New("stored file not found")

type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete is idempotent: a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// ObjectKey lays out files as {tenant}/{document}/original.{ext}.
func ObjectKey(tenantID, documentID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return path.Join(tenantID, documentID, "original."+ext)
}
