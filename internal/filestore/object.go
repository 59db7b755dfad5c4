package filestore

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/koustreak/protodb/internal/errs"
)

// ObjectInfo describes a single stored object.
type ObjectInfo struct {
	// Key is the full object path (e.g. "manifests/protodb.json").
	Key string

	// Size is the byte size of the object. -1 if unknown.
	Size int64

	// ContentType is the MIME type (e.g. "application/json").
	ContentType string

	// ETag is the object's entity tag / hash, as returned by the backend.
	ETag string

	// LastModified is when the object was last written.
	LastModified time.Time
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// CleanKey validates key and returns it in canonical form. Keys are
// relative slash paths and never climb out of the store root.
func CleanKey(key string) (string, error) {
	if key == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "empty object key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", errs.Newf(errs.ErrKindInvalidInput, "object key %q must be a relative slash path", key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", errs.Newf(errs.ErrKindInvalidInput, "object key %q must not contain '..'", key)
		}
	}
	cleaned := path.Clean(key)
	if cleaned == "." {
		return "", errs.Newf(errs.ErrKindInvalidInput, "object key %q names no object", key)
	}
	return cleaned, nil
}
