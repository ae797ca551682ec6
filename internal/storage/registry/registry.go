// Package registry is the relational index of uploaded files.
package registry

import (
	"context"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage/disk"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("file record not found")
	// ErrDuplicateFilename is returned when the filename is already registered.
	ErrDuplicateFilename = errors.New("duplicate filename")
)

// Registry stores FileRecords through gorm.
type Registry struct {
	db *gorm.DB
}

// New constructs a registry on db.
func New(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	return &Registry{db: db}, nil
}

// WithTx returns a registry bound to the transaction tx.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx}
}

// Migrate creates the file_records table and its indexes.
func (r *Registry) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&FileRecord{}); err != nil {
		return errors.Wrap(err, "auto migrate file_records")
	}
	return nil
}

// Create inserts rec in a single statement, so a colliding filename leaves no row behind.
func (r *Registry) Create(ctx context.Context, rec *FileRecord) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if err := rec.Validate(); err != nil {
		return errors.WithStack(err)
	}

	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if isDuplicateKeyError(err) {
			return errors.Wrapf(ErrDuplicateFilename, "%q", rec.Filename)
		}
		return errors.Wrap(err, "create file record")
	}
	return nil
}

// Find returns the record of filename on disk.
func (r *Registry) Find(ctx context.Context, diskName disk.Name, filename string) (*FileRecord, error) {
	rec := new(FileRecord)
	err := r.db.WithContext(ctx).
		Where("filename = ? AND disk = ?", filename, diskName).
		Take(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%s/%s", diskName, filename)
		}
		return nil, errors.Wrap(err, "find file record")
	}
	return rec, nil
}

// FindByFilename returns the record of filename on whichever disk holds it.
func (r *Registry) FindByFilename(ctx context.Context, filename string) (*FileRecord, error) {
	rec := new(FileRecord)
	err := r.db.WithContext(ctx).
		Where("filename = ?", filename).
		Take(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%s", filename)
		}
		return nil, errors.Wrap(err, "find file record by filename")
	}
	return rec, nil
}

// FindByContext lists the records of a context. A nil contextID matches records without one.
func (r *Registry) FindByContext(ctx context.Context, c Context, contextID *uint64) ([]FileRecord, error) {
	query := r.db.WithContext(ctx).Where("context = ?", c)
	if contextID == nil {
		query = query.Where("context_id IS NULL")
	} else {
		query = query.Where("context_id = ?", *contextID)
	}

	var recs []FileRecord
	if err := query.Order("id").Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "find file records by context")
	}
	return recs, nil
}

// Delete removes the record with id. Deleting a missing id is a no-op.
func (r *Registry) Delete(ctx context.Context, id uint64) error {
	if err := r.db.WithContext(ctx).Delete(&FileRecord{}, id).Error; err != nil {
		return errors.Wrapf(err, "delete file record %d", id)
	}
	return nil
}

// ListOlderThan lists the records on disk created before cutoff, oldest first.
func (r *Registry) ListOlderThan(ctx context.Context, diskName disk.Name, cutoff time.Time) ([]FileRecord, error) {
	var recs []FileRecord
	if err := r.db.WithContext(ctx).
		Where("disk = ? AND created_at < ?", diskName, cutoff).
		Order("created_at, id").
		Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "list file records older than cutoff")
	}
	return recs, nil
}

// isDuplicateKeyError reports whether err is a unique constraint violation.
// gorm translates it when TranslateError is on; the string checks cover connections opened without it.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "sqlstate 23505")
}
