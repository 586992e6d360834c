// Package fsx abstracts the blob storage that holds the signing-key document
// and rendered invoices. Backends live in fsxlocal and fsxs3.
package fsx

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("FSX")

var (
	CodeNotFound    = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "File not found")
	CodeUnavailable = ErrRegistry.Register("UNAVAILABLE", errx.TypeExternal, http.StatusServiceUnavailable, "Storage unavailable")
)

// ErrNotFound reports a missing object. Backends return it so callers can
// tell "never written" apart from "storage is down".
func ErrNotFound(path string) *errx.Error {
	return ErrRegistry.New(CodeNotFound).WithDetail("path", path)
}

func ErrUnavailable(op, path string, cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeUnavailable, cause).
		WithDetail("op", op).
		WithDetail("path", path)
}

// IsNotFound reports whether err is a missing-object error from any backend.
func IsNotFound(err error) bool {
	return errx.IsCode(err, CodeNotFound)
}

// FileInfo represents information about a stored object
type FileInfo struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations. WriteFile replaces the object as a
// whole: readers see either the previous or the new content.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

type FileDeleter interface {
	DeleteFile(ctx context.Context, path string) error
}

type PathOperations interface {
	Join(elem ...string) string
}

// FileSystem combines all file operations
type FileSystem interface {
	FileReader
	FileWriter
	FileDeleter
	PathOperations
}

// ContentTypeFor maps a file extension to the MIME type stored with the object.
func ContentTypeFor(path string) string {
	switch ext(path) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
