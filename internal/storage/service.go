// Package storage is the orchestration layer over disks and the file registry.
package storage

import (
	"context"
	"encoding/hex"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	errors "github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v7"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/google/uuid"

	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
	"github.com/Laisky/campus-portal/library/log"
)

// Clock returns the current time in UTC.
type Clock func() time.Time

// FileRegistry is the subset of the registry the service writes through.
type FileRegistry interface {
	Create(ctx context.Context, rec *registry.FileRecord) error
	Find(ctx context.Context, diskName disk.Name, filename string) (*registry.FileRecord, error)
	FindByFilename(ctx context.Context, filename string) (*registry.FileRecord, error)
	FindByContext(ctx context.Context, c registry.Context, contextID *uint64) ([]registry.FileRecord, error)
	Delete(ctx context.Context, id uint64) error
	ListOlderThan(ctx context.Context, diskName disk.Name, cutoff time.Time) ([]registry.FileRecord, error)
}

// OwnerChecker reports whether the domain entity owning a file still exists.
type OwnerChecker interface {
	OwnerExists(ctx context.Context, c registry.Context, id uint64) (bool, error)
}

// Service coordinates disks and the registry.
type Service struct {
	disks    *disk.Manager
	registry FileRegistry
	owners   OwnerChecker
	settings Settings
	logger   logSDK.Logger
	clock    Clock
	// newFilename generates a candidate store filename from the original name.
	newFilename func(originalName string) string
}

// NewService constructs a storage service.
func NewService(disks *disk.Manager, reg FileRegistry, owners OwnerChecker, settings Settings, logger logSDK.Logger, clock Clock) (*Service, error) {
	if disks == nil {
		return nil, errors.New("disk manager is required")
	}
	if reg == nil {
		return nil, errors.New("file registry is required")
	}
	if owners == nil {
		return nil, errors.New("owner checker is required")
	}
	if settings.NameAttempts <= 0 {
		settings.NameAttempts = defaultNameAttempts
	}
	if logger == nil {
		logger = log.Logger.Named("storage_service")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	svc := &Service{
		disks:    disks,
		registry: reg,
		owners:   owners,
		settings: settings,
		logger:   logger,
		clock:    clock,
	}
	svc.newFilename = svc.generateFilename
	return svc, nil
}

// WithRegistry returns a copy of the service writing through reg,
// typically a registry bound to a database transaction.
func (s *Service) WithRegistry(reg FileRegistry) *Service {
	cp := *s
	cp.registry = reg
	return &cp
}

// Disks returns the disk manager.
func (s *Service) Disks() *disk.Manager {
	return s.disks
}

// Settings returns the settings the service was built with.
func (s *Service) Settings() Settings {
	return s.settings
}

// LoggerFromContext returns the request-scoped logger when available.
func (s *Service) LoggerFromContext(ctx context.Context) logSDK.Logger {
	if ctx != nil {
		if ctxLogger := gmw.GetLogger(ctx); ctxLogger != nil {
			return ctxLogger
		}
	}
	if s != nil && s.logger != nil {
		return s.logger
	}
	return log.Logger.Named("storage_fallback")
}

// disk resolves name into a configured disk.
func (s *Service) disk(name disk.Name) (disk.Disk, error) {
	d, err := s.disks.Disk(name)
	if err != nil {
		return nil, wrapError(ErrCodeUnknownDisk, err, false, "unknown disk")
	}
	return d, nil
}

// generateFilename returns `<unix-seconds>_<16 hex>.<ext>`.
func (s *Service) generateFilename(originalName string) string {
	token := uuid.New()
	name := strconv.FormatInt(s.clock().Unix(), 10) + "_" + hex.EncodeToString(token[:8])
	if ext := strings.ToLower(strings.TrimPrefix(path.Ext(path.Base(originalName)), ".")); ext != "" && isSafeExtension(ext) {
		name += "." + ext
	}
	return name
}

// isSafeExtension accepts short alphanumeric extensions only.
func isSafeExtension(ext string) bool {
	if len(ext) > 16 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// StoreRequest describes one upload.
type StoreRequest struct {
	Disk disk.Name
	// Body is read once per write attempt. A body implementing io.Seeker
	// is rewound when the registry rejects a filename after the write.
	Body         io.Reader
	OriginalName string
	MimeType     string
	Context      registry.Context
	ContextID    *uint64
	UploadedBy   uint64
}

// Store writes the upload to its disk and registers it.
// The object is durable before the record is created; a failed
// registration removes the object again.
func (s *Service) Store(ctx context.Context, req StoreRequest) (*registry.FileRecord, error) {
	logger := s.LoggerFromContext(ctx)
	d, err := s.disk(req.Disk)
	if err != nil {
		return nil, err
	}
	if req.Body == nil {
		return nil, NewError(ErrCodeInvalidArgument, "upload body is required", false)
	}
	if !req.Context.Valid() {
		return nil, NewError(ErrCodeInvalidArgument, "unknown context "+strconv.Quote(string(req.Context)), false)
	}
	if req.Context.RequiresOwner() && req.ContextID == nil {
		return nil, NewError(ErrCodeInvalidArgument, "context "+string(req.Context)+" requires a context id", false)
	}

	start, seekable := bodyOffset(req.Body)
	for attempt := 1; attempt <= s.settings.NameAttempts; attempt++ {
		filename := s.newFilename(req.OriginalName)

		taken, err := s.filenameTaken(ctx, d, filename)
		if err != nil {
			return nil, err
		}
		if taken {
			logger.Debug("generated filename already taken",
				zap.String("disk", d.Name().String()),
				zap.String("filename", filename),
				zap.Int("attempt", attempt))
			continue
		}

		size, err := d.Put(ctx, filename, req.Body, req.MimeType)
		if err != nil {
			switch {
			case errors.Is(err, disk.ErrExists):
				// taken since filenameTaken, the body may be consumed
				if seekable && rewind(req.Body, start) {
					continue
				}
				return nil, wrapError(ErrCodeWriteFailure, err, true, "filename taken while writing")
			case errors.Is(err, disk.ErrUnavailable):
				return nil, wrapError(ErrCodeDiskUnavailable, err, true, "disk unavailable")
			default:
				return nil, wrapError(ErrCodeWriteFailure, err, true, "write upload")
			}
		}

		rec := &registry.FileRecord{
			Filename:     filename,
			OriginalName: req.OriginalName,
			MimeType:     req.MimeType,
			Size:         size,
			Path:         filename,
			Disk:         d.Name(),
			Context:      req.Context,
			ContextID:    req.ContextID,
			UploadedBy:   req.UploadedBy,
		}
		err = s.registry.Create(ctx, rec)
		if err == nil {
			logger.Info("stored file",
				zap.String("disk", d.Name().String()),
				zap.String("filename", filename),
				zap.Int64("size", size),
				zap.String("context", string(req.Context)))
			return rec, nil
		}

		s.removeUnregistered(ctx, d, filename)
		if errors.Is(err, registry.ErrDuplicateFilename) && seekable && rewind(req.Body, start) {
			continue
		}
		return nil, wrapError(ErrCodeRegistrationFailure, err, true, "register upload")
	}

	return nil, NewError(ErrCodeNameGenerationExhausted,
		"no unique filename after "+strconv.Itoa(s.settings.NameAttempts)+" attempts", false)
}

// filenameTaken checks both the disk and the registry.
func (s *Service) filenameTaken(ctx context.Context, d disk.Disk, filename string) (bool, error) {
	exists, err := d.Exists(ctx, filename)
	if err != nil {
		return false, wrapError(ErrCodeDiskUnavailable, err, true, "check filename on disk")
	}
	if exists {
		return true, nil
	}

	if _, err = s.registry.FindByFilename(ctx, filename); err == nil {
		return true, nil
	} else if !errors.Is(err, registry.ErrNotFound) {
		return false, wrapError(ErrCodeRegistryUnavailable, err, true, "check filename in registry")
	}
	return false, nil
}

// removeUnregistered is the compensating delete after a failed registration.
func (s *Service) removeUnregistered(ctx context.Context, d disk.Disk, filename string) {
	if _, err := d.Delete(context.WithoutCancel(ctx), filename); err != nil {
		s.LoggerFromContext(ctx).Warn("remove unregistered upload",
			zap.String("disk", d.Name().String()),
			zap.String("filename", filename),
			zap.Error(err))
	}
}

func bodyOffset(body io.Reader) (int64, bool) {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return 0, false
	}
	offset, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, false
	}
	return offset, true
}

func rewind(body io.Reader, offset int64) bool {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return false
	}
	_, err := seeker.Seek(offset, io.SeekStart)
	return err == nil
}

// GetFileURL returns the public URL of filename, or false when it is absent.
// Unknown disks and unreadable disks also yield false.
func (s *Service) GetFileURL(ctx context.Context, name disk.Name, filename string) (string, bool) {
	d, err := s.disks.Disk(name)
	if err != nil {
		return "", false
	}
	if disk.ValidateFilename(filename) != nil {
		return "", false
	}

	exists, err := d.Exists(ctx, filename)
	if err != nil {
		s.LoggerFromContext(ctx).Warn("probe file url",
			zap.String("disk", name.String()),
			zap.String("filename", filename),
			zap.Error(err))
		return "", false
	}
	if !exists {
		return "", false
	}
	return d.URL(filename), true
}

// Open streams filename from its disk.
func (s *Service) Open(ctx context.Context, name disk.Name, filename string) (io.ReadCloser, error) {
	d, err := s.disk(name)
	if err != nil {
		return nil, err
	}

	rc, err := d.Get(ctx, filename)
	if err != nil {
		switch {
		case errors.Is(err, disk.ErrNotFound):
			return nil, wrapError(ErrCodeNotFound, err, false, "file not found")
		case errors.Is(err, disk.ErrInvalidFilename):
			return nil, wrapError(ErrCodeInvalidArgument, err, false, "invalid filename")
		default:
			return nil, wrapError(ErrCodeDiskUnavailable, err, true, "open file")
		}
	}
	return rc, nil
}

// DeleteFile removes the object and then its registry row. It reports
// whether either side existed. Deleting nothing is not an error.
func (s *Service) DeleteFile(ctx context.Context, name disk.Name, filename string) (bool, error) {
	d, err := s.disk(name)
	if err != nil {
		return false, err
	}
	if err = disk.ValidateFilename(filename); err != nil {
		return false, wrapError(ErrCodeInvalidArgument, err, false, "invalid filename")
	}

	removedObject, err := d.Delete(ctx, filename)
	if err != nil {
		return false, wrapError(ErrCodeDiskUnavailable, err, true, "delete object")
	}

	removedRecord := false
	rec, err := s.registry.Find(ctx, name, filename)
	switch {
	case err == nil:
		if err = s.registry.Delete(ctx, rec.ID); err != nil {
			return removedObject, wrapError(ErrCodeRegistryUnavailable, err, true, "delete file record")
		}
		removedRecord = true
	case errors.Is(err, registry.ErrNotFound):
	default:
		return removedObject, wrapError(ErrCodeRegistryUnavailable, err, true, "find file record")
	}

	if removedObject || removedRecord {
		s.LoggerFromContext(ctx).Info("deleted file",
			zap.String("disk", name.String()),
			zap.String("filename", filename),
			zap.Bool("object", removedObject),
			zap.Bool("record", removedRecord))
	}
	return removedObject || removedRecord, nil
}

// DeleteContextFiles deletes every registered file of one domain entity and
// returns how many were removed.
func (s *Service) DeleteContextFiles(ctx context.Context, c registry.Context, contextID uint64) (int, error) {
	recs, err := s.registry.FindByContext(ctx, c, &contextID)
	if err != nil {
		return 0, wrapError(ErrCodeRegistryUnavailable, err, true, "find context files")
	}

	removed := 0
	for _, rec := range recs {
		ok, err := s.DeleteFile(ctx, rec.Disk, rec.Filename)
		if err != nil {
			return removed, errors.Wrapf(err, "delete %s/%s", rec.Disk, rec.Filename)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
