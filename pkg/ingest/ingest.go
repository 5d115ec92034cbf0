// Package ingest stores the contents of file handles carried by file-input
// and drop events.
//
// The event bridge assigns every file an id before the event reaches the
// pipeline and streams the contents to a Store in the background. The
// pipeline later claims the file by that id.
package ingest

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a file doesn't exist.
var ErrNotFound = errors.New("ingest: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("ingest: file too large")

// ErrInvalidID is returned for ids that are not ingest ids.
var ErrInvalidID = errors.New("ingest: invalid file id")

// Store is the interface for ingest storage backends.
type Store interface {
	// Put stores the contents of r under id.
	Put(ctx context.Context, id string, meta Meta, r io.Reader) error

	// Claim retrieves a stored file and removes it from the store once the
	// returned reader is closed.
	Claim(ctx context.Context, id string) (*File, error)

	// Cleanup removes files older than maxAge.
	Cleanup(ctx context.Context, maxAge time.Duration) error
}

// Meta describes a stored file.
type Meta struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// File represents a claimed file.
type File struct {
	// ID is the ingest id reported in the event data.
	ID string

	Meta

	// Path is the local filesystem path (for DiskStore).
	Path string

	// URL is a presigned download URL (for S3Store, when a presigner is set).
	URL string

	// Reader provides access to the file contents.
	Reader io.ReadCloser
}

// Close closes the file reader if open.
func (f *File) Close() error {
	if f.Reader != nil {
		return f.Reader.Close()
	}
	return nil
}

// NewID returns a fresh ingest id.
func NewID() string {
	return uuid.NewString()
}

// checkID rejects anything that is not a uuid so ids can be used as file
// names and object keys.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	return nil
}

// limit copies r through a reader that fails with ErrTooLarge past max bytes.
func limit(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitedReader{r: io.LimitReader(r, max+1), max: max}
}

type limitedReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.max {
		return n, ErrTooLarge
	}
	return n, err
}
