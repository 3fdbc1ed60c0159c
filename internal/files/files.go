// Package files defines the file-storage collaborator contract and the URL
// derivation applied to file records on read. Storage adapters live outside
// this module.
package files

import (
	"context"
	"fmt"
	"strings"

	"github.com/jsguru-git/api/internal/schema"
)

// Storage is the contract a file-storage adapter fulfils
type Storage interface {
	// SaveData writes the data under the given filename and returns the
	// stored file's record. When replace is false an existing file with the
	// same name gets a derived unique name.
	SaveData(ctx context.Context, data []byte, filename string, replace bool) (schema.Record, error)

	// GetDataInfo resolves metadata for a stored file by its uri
	GetDataInfo(ctx context.Context, uri string) (schema.Record, error)
}

// URLResolver derives public URLs for stored files
type URLResolver struct {
	// RootURL is the public base for original files
	RootURL string
	// ThumbnailRootURL is the public base for generated thumbnails
	ThumbnailRootURL string
}

// NewURLResolver creates a resolver over the given public roots
func NewURLResolver(rootURL, thumbnailRootURL string) *URLResolver {
	return &URLResolver{
		RootURL:          strings.TrimRight(rootURL, "/"),
		ThumbnailRootURL: strings.TrimRight(thumbnailRootURL, "/"),
	}
}

// URL returns the public URL of a stored file
func (r *URLResolver) URL(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s", r.RootURL, filename)
}

// ThumbnailURL returns the public thumbnail URL of a stored file, or the
// empty string for file types without thumbnails
func (r *URLResolver) ThumbnailURL(filename string) string {
	if filename == "" || !thumbnailable(filename) {
		return ""
	}
	return fmt.Sprintf("%s/%s", r.ThumbnailRootURL, filename)
}

// AppendURLs adds derived url fields to a file record in place. Records
// without a filename are left untouched.
func (r *URLResolver) AppendURLs(record schema.Record) {
	name, ok := record["filename"].(string)
	if !ok || name == "" {
		return
	}
	record["url"] = r.URL(name)
	if thumb := r.ThumbnailURL(name); thumb != "" {
		record["thumbnail_url"] = thumb
	}
}

// thumbnailable reports whether thumbnails exist for the file type
func thumbnailable(filename string) bool {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	switch strings.ToLower(filename[idx+1:]) {
	case "jpg", "jpeg", "png", "gif", "webp":
		return true
	default:
		return false
	}
}
