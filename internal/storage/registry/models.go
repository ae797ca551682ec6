package registry

import (
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

// Context is the domain category that owns a file.
type Context string

const (
	// ContextNone marks a file not tied to any domain category.
	ContextNone Context = ""
	// ContextOrganization files belong to an organization.
	ContextOrganization Context = "organization"
	// ContextActivity files belong to an activity.
	ContextActivity Context = "activity"
	// ContextNews files belong to a news item.
	ContextNews Context = "news"
	// ContextAnnouncement files belong to an announcement.
	ContextAnnouncement Context = "announcement"
)

// ErrUnknownContext is returned for a context outside the closed set.
var ErrUnknownContext = errors.New("unknown context")

// ParseContext converts raw into a Context. Empty and "none" map to ContextNone.
func ParseContext(raw string) (Context, error) {
	switch c := Context(strings.ToLower(strings.TrimSpace(raw))); c {
	case ContextNone, "none":
		return ContextNone, nil
	case ContextOrganization, ContextActivity, ContextNews, ContextAnnouncement:
		return c, nil
	default:
		return "", errors.Wrapf(ErrUnknownContext, "%q", raw)
	}
}

// Valid reports whether c is one of the known contexts.
func (c Context) Valid() bool {
	_, err := ParseContext(string(c))
	return err == nil
}

// RequiresOwner reports whether files in this context must carry a context id.
func (c Context) RequiresOwner() bool {
	return c == ContextOrganization || c == ContextActivity
}

// FileRecord is one uploaded file.
type FileRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	// Filename is the store-unique name used on disk.
	Filename     string    `gorm:"type:varchar(255);not null;uniqueIndex:uq_file_records_filename"`
	OriginalName string    `gorm:"type:varchar(255);not null"`
	MimeType     string    `gorm:"type:varchar(127);not null;default:''"`
	Size         int64     `gorm:"not null"`
	Path         string    `gorm:"type:varchar(512);not null"`
	Disk         disk.Name `gorm:"type:varchar(32);not null;index:idx_file_records_disk_created,priority:1"`
	Context      Context   `gorm:"type:varchar(32);not null;default:'';index:idx_file_records_context,priority:1"`
	ContextID    *uint64   `gorm:"index:idx_file_records_context,priority:2"`
	UploadedBy   uint64    `gorm:"not null;index"`
	CreatedAt    time.Time `gorm:"index:idx_file_records_disk_created,priority:2"`
	UpdatedAt    time.Time
}

// TableName returns the database table name.
func (FileRecord) TableName() string {
	return "file_records"
}

// Validate checks the record before it is inserted.
func (r *FileRecord) Validate() error {
	if err := disk.ValidateFilename(r.Filename); err != nil {
		return errors.WithStack(err)
	}
	if r.Size < 0 {
		return errors.Errorf("size must be >= 0, got %d", r.Size)
	}
	if _, err := disk.ParseName(string(r.Disk)); err != nil {
		return errors.WithStack(err)
	}
	if !r.Context.Valid() {
		return errors.Wrapf(ErrUnknownContext, "%q", r.Context)
	}
	if r.Context.RequiresOwner() && r.ContextID == nil {
		return errors.Errorf("context %q requires a context id", r.Context)
	}
	return nil
}

// IsImage reports whether the declared mime type is an image.
func (r *FileRecord) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(r.MimeType), "image/")
}

var documentMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-excel":                                                  {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"text/plain": {},
	"text/csv":   {},
}

// IsDocument reports whether the declared mime type is an office document, pdf or text.
func (r *FileRecord) IsDocument() bool {
	mimeType := strings.ToLower(strings.TrimSpace(r.MimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	_, ok := documentMimeTypes[mimeType]
	return ok
}
