package storage

import (
	"context"
	"strings"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

// ReferenceKind tells how a domain entity refers to a file.
type ReferenceKind int

const (
	// RefFilename is a bare store filename.
	RefFilename ReferenceKind = iota + 1
	// RefPublicPath is a root-relative path such as /storage/news/x.png.
	RefPublicPath
	// RefExternalURL is an absolute or scheme-relative URL.
	RefExternalURL
)

// String returns the kind name.
func (k ReferenceKind) String() string {
	switch k {
	case RefFilename:
		return "filename"
	case RefPublicPath:
		return "public_path"
	case RefExternalURL:
		return "external_url"
	default:
		return "unknown"
	}
}

// Reference is a file reference stored on a domain entity.
type Reference struct {
	Kind  ReferenceKind
	Value string
}

// ParseReference classifies raw. It returns false for an empty value.
func ParseReference(raw string) (Reference, bool) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	switch {
	case raw == "":
		return Reference{}, false
	case strings.HasPrefix(lower, "http://"),
		strings.HasPrefix(lower, "https://"),
		strings.HasPrefix(raw, "//"):
		return Reference{Kind: RefExternalURL, Value: raw}, true
	case strings.HasPrefix(raw, "/"):
		return Reference{Kind: RefPublicPath, Value: raw}, true
	default:
		return Reference{Kind: RefFilename, Value: raw}, true
	}
}

// ResolveReference turns ref into a URL. Filenames are looked up on the disk
// and yield false when absent; paths and external URLs are returned as is.
func (s *Service) ResolveReference(ctx context.Context, name disk.Name, ref Reference) (string, bool) {
	switch ref.Kind {
	case RefFilename:
		return s.GetFileURL(ctx, name, ref.Value)
	case RefPublicPath, RefExternalURL:
		return ref.Value, ref.Value != ""
	default:
		return "", false
	}
}

// LocalFilename returns the filename ref points to when ref lives on disk name.
// External URLs and paths outside the disk's URL prefix return false.
func (s *Service) LocalFilename(name disk.Name, ref Reference) (string, bool) {
	var filename string
	switch ref.Kind {
	case RefFilename:
		filename = ref.Value
	case RefPublicPath, RefExternalURL:
		d, err := s.disks.Disk(name)
		if err != nil {
			return "", false
		}
		prefix := d.URL("")
		if !strings.HasPrefix(ref.Value, prefix) {
			return "", false
		}
		filename = strings.TrimPrefix(ref.Value, prefix)
	default:
		return "", false
	}

	if disk.ValidateFilename(filename) != nil {
		return "", false
	}
	return filename, true
}
