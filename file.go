package piimask

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// File is one upload candidate: raw image bytes plus the media type the
// client declares for them. Validation trusts the declared type and never
// sniffs the bytes, the same way a browser trusts file metadata. Files are
// built per submission and discarded once the upload settles.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// LoadFile reads path into memory and declares its media type from the
// file extension. Unknown extensions fall back to the platform mime
// registry and may declare no type at all; whether the declared type is
// acceptable is the Uploader's decision, not LoadFile's.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &File{
		Name:        filepath.Base(path),
		ContentType: MediaTypeByPath(path),
		Data:        data,
	}, nil
}

// MediaTypeByPath returns the media type implied by the extension of path.
// PNG and JPEG resolve locally so the outcome never depends on the host
// mime registry.
func MediaTypeByPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	return mime.TypeByExtension(ext)
}
