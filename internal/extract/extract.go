// Package extract turns stored documents into plain text.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"docuquery/internal/storage"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrExtraction      = errors.New("text extraction failed")
)

// SupportedTypes is the upload allow-list.
var SupportedTypes = []string{"pdf", "docx", "txt"}

func IsSupported(ext string) bool {
	ext = normalizeExt(ext)
	for _, t := range SupportedTypes {
		if t == ext {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(ext), ".")
}

// FileType returns the lower-case extension of name without the dot.
func FileType(name string) string {
	return normalizeExt(path.Ext(name))
}

// Extractor reads files from a FileStore and dispatches on the key suffix.
type Extractor struct {
	store storage.FileStore
}

func New(store storage.FileStore) *Extractor {
	return &Extractor{store: store}
}

// Extract returns the text of the stored file. A file without a text layer
// yields "" and no error.
func (e *Extractor) Extract(ctx context.Context, key string) (string, error) {
	ext := FileType(key)
	if !IsSupported(ext) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}

	rc, err := e.store.Open(ctx, key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtraction, key, err)
	}

	var text string
	switch ext {
	case "pdf":
		text, err = PDFText(data)
	case "docx":
		text, err = DOCXText(data)
	case "txt":
		text, err = PlainText(data)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtraction, ext, err)
	}
	return text, nil
}
