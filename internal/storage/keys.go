package storage

import (
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const imageKeyPrefix = "chat_image_"

var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedImageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// AllowedImageExtension reports whether filename carries one of the accepted image extensions.
func AllowedImageExtension(filename string) bool {
	_, ok := allowedImageExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ContentTypeFor returns the content type implied by the file extension.
func ContentTypeFor(filename string) string {
	if ct, ok := allowedImageExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// NewImageKey generates a unique blob key for an uploaded image, keeping the original extension.
func NewImageKey(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedImageExtensions[ext]; !ok {
		return "", ErrUnsupportedImage
	}
	return imageKeyPrefix + uuid.NewString() + ext, nil
}

// KeyFromURL recovers the blob key from a public URL produced by PublicURL.
// It returns "" when the URL has no usable final path segment.
func KeyFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	key := path.Base(u.Path)
	if !validKey(key) {
		return ""
	}
	return key
}

func validKey(key string) bool {
	if key == "" || key == "." || key == ".." || key == "/" {
		return false
	}
	return !strings.ContainsAny(key, `/\`)
}
