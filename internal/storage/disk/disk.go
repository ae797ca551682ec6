// Package disk maps logical disk names onto physical object storage.
package disk

import (
	"context"
	"io"
	"iter"
	"os"
	"path"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"github.com/minio/minio-go/v7"
)

// Name is a logical disk.
type Name string

const (
	// Organizations holds organization logos and attachments.
	Organizations Name = "organizations"
	// Activities holds activity images.
	Activities Name = "activities"
	// News holds news images.
	News Name = "news"
	// Announcements holds announcement images.
	Announcements Name = "announcements"
)

var (
	// ErrUnknownName is returned for a disk name outside the closed set, or one that is not configured.
	ErrUnknownName = errors.New("unknown disk")
	// ErrNotFound is returned when the object does not exist on the disk.
	ErrNotFound = errors.New("object not found")
	// ErrExists is returned by Put when the target filename is already taken.
	ErrExists = errors.New("object already exists")
	// ErrUnavailable is returned when the storage medium itself cannot be reached.
	ErrUnavailable = errors.New("disk unavailable")
	// ErrWrite is returned when bytes could not be durably written.
	ErrWrite = errors.New("write failure")
	// ErrInvalidFilename is returned for names that are empty or escape the disk root.
	ErrInvalidFilename = errors.New("invalid filename")
)

// Names returns every logical disk in display order.
func Names() []Name {
	return []Name{Organizations, Activities, News, Announcements}
}

// ParseName converts raw into a Name.
func ParseName(raw string) (Name, error) {
	name := Name(strings.ToLower(strings.TrimSpace(raw)))
	switch name {
	case Organizations, Activities, News, Announcements:
		return name, nil
	default:
		return "", errors.Wrapf(ErrUnknownName, "%q", raw)
	}
}

// String returns the disk name.
func (n Name) String() string {
	return string(n)
}

// Object describes one stored object as reported by List.
type Object struct {
	Filename string
	Size     int64
	ModTime  time.Time
}

// Disk is one logical storage area.
type Disk interface {
	// Name returns the logical name of the disk.
	Name() Name
	// Put writes r under filename and returns the number of bytes written.
	// It never replaces an existing object.
	Put(ctx context.Context, filename string, r io.Reader, contentType string) (int64, error)
	// Get opens the object for reading. The caller closes the reader.
	Get(ctx context.Context, filename string) (io.ReadCloser, error)
	// Delete removes the object and reports whether something was removed.
	Delete(ctx context.Context, filename string) (bool, error)
	// Exists reports whether the object is present.
	Exists(ctx context.Context, filename string) (bool, error)
	// List lazily enumerates the objects on the disk. Every call starts a new listing.
	List(ctx context.Context) iter.Seq2[Object, error]
	// URL returns the public URL for filename.
	URL(filename string) string
}

// Error decorates a disk failure with its location.
type Error struct {
	Kind     error
	Disk     Name
	Filename string
	Err      error
}

// Error returns the error message.
func (e *Error) Error() string {
	msg := e.Kind.Error() + ": " + string(e.Disk)
	if e.Filename != "" {
		msg += "/" + e.Filename
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, disk Name, filename string, cause error) error {
	return &Error{Kind: kind, Disk: disk, Filename: filename, Err: cause}
}

// ValidateFilename rejects names that are empty, hidden, or contain path segments.
func ValidateFilename(filename string) error {
	if filename == "" || filename == "." || filename == ".." {
		return errors.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	if strings.ContainsAny(filename, `/\`) || strings.ContainsRune(filename, 0) {
		return errors.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	if strings.HasPrefix(filename, ".") {
		return errors.Wrapf(ErrInvalidFilename, "%q", filename)
	}
	return nil
}

// Extension returns the lowercase extension of filename without the dot,
// or "none" when it has no extension.
func Extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return "none"
	}
	return ext
}

// ObjectSize returns the size of a reader opened by Get, or false when it cannot tell.
func ObjectSize(r io.Reader) (int64, bool) {
	switch obj := r.(type) {
	case *os.File:
		info, err := obj.Stat()
		if err != nil {
			return 0, false
		}
		return info.Size(), true
	case *minio.Object:
		info, err := obj.Stat()
		if err != nil {
			return 0, false
		}
		return info.Size, true
	default:
		return 0, false
	}
}

func joinURL(base, filename string) string {
	return strings.TrimRight(base, "/") + "/" + filename
}
