package portal

import (
	"context"
	"io"

	errors "github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
)

// Upload is a file handed to an entity.
type Upload struct {
	Body         io.Reader
	OriginalName string
	MimeType     string
	UploadedBy   uint64
}

// Media stores entity images and resolves their references to URLs.
type Media struct {
	db      *gorm.DB
	storage *storage.Service
}

// NewMedia constructs a media helper.
func NewMedia(db *gorm.DB, svc *storage.Service) (*Media, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if svc == nil {
		return nil, errors.New("storage service is required")
	}
	return &Media{db: db, storage: svc}, nil
}

// SetOrganizationLogo stores the upload and points the organization's logo at it.
// The previous logo, if stored locally, is deleted.
func (m *Media) SetOrganizationLogo(ctx context.Context, orgID uint64, upload Upload) (*registry.FileRecord, error) {
	var org Organization
	if err := takeEntity(m.db.WithContext(ctx), &org, orgID); err != nil {
		return nil, err
	}

	rec, err := m.store(ctx, disk.Organizations, registry.ContextOrganization, &orgID, upload)
	if err != nil {
		return nil, err
	}
	previous := org.Logo
	if err = m.db.WithContext(ctx).Model(&org).Update("logo", rec.Filename).Error; err != nil {
		m.discard(ctx, rec)
		return nil, errors.Wrap(err, "update organization logo")
	}

	m.replaced(ctx, disk.Organizations, previous)
	return rec, nil
}

// AddActivityImage stores the upload and appends it to the activity's images.
func (m *Media) AddActivityImage(ctx context.Context, activityID uint64, upload Upload) (*registry.FileRecord, error) {
	var activity Activity
	if err := takeEntity(m.db.WithContext(ctx), &activity, activityID); err != nil {
		return nil, err
	}

	rec, err := m.store(ctx, disk.Activities, registry.ContextActivity, &activityID, upload)
	if err != nil {
		return nil, err
	}
	images := append(append([]string{}, activity.Images...), rec.Filename)
	// struct updates go through the json serializer, column updates do not
	if err = m.db.WithContext(ctx).Model(&activity).Select("Images").Updates(&Activity{Images: images}).Error; err != nil {
		m.discard(ctx, rec)
		return nil, errors.Wrap(err, "update activity images")
	}
	return rec, nil
}

// SetNewsImage stores the upload as the news item's image.
func (m *Media) SetNewsImage(ctx context.Context, newsID uint64, upload Upload) (*registry.FileRecord, error) {
	var news News
	if err := takeEntity(m.db.WithContext(ctx), &news, newsID); err != nil {
		return nil, err
	}

	rec, err := m.store(ctx, disk.News, registry.ContextNews, &newsID, upload)
	if err != nil {
		return nil, err
	}
	previous := news.Image
	if err = m.db.WithContext(ctx).Model(&news).Update("image", rec.Filename).Error; err != nil {
		m.discard(ctx, rec)
		return nil, errors.Wrap(err, "update news image")
	}

	m.replaced(ctx, disk.News, previous)
	return rec, nil
}

// SetAnnouncementImage stores the upload as the announcement's image.
func (m *Media) SetAnnouncementImage(ctx context.Context, announcementID uint64, upload Upload) (*registry.FileRecord, error) {
	var announcement Announcement
	if err := takeEntity(m.db.WithContext(ctx), &announcement, announcementID); err != nil {
		return nil, err
	}

	rec, err := m.store(ctx, disk.Announcements, registry.ContextAnnouncement, &announcementID, upload)
	if err != nil {
		return nil, err
	}
	previous := announcement.Image
	if err = m.db.WithContext(ctx).Model(&announcement).Update("image", rec.Filename).Error; err != nil {
		m.discard(ctx, rec)
		return nil, errors.Wrap(err, "update announcement image")
	}

	m.replaced(ctx, disk.Announcements, previous)
	return rec, nil
}

// URL resolves an entity column value on disk name to a URL.
func (m *Media) URL(ctx context.Context, name disk.Name, raw string) (string, bool) {
	ref, ok := storage.ParseReference(raw)
	if !ok {
		return "", false
	}
	return m.storage.ResolveReference(ctx, name, ref)
}

func (m *Media) store(ctx context.Context, name disk.Name, c registry.Context, id *uint64, upload Upload) (*registry.FileRecord, error) {
	rec, err := m.storage.Store(ctx, storage.StoreRequest{
		Disk:         name,
		Body:         upload.Body,
		OriginalName: upload.OriginalName,
		MimeType:     upload.MimeType,
		Context:      c,
		ContextID:    id,
		UploadedBy:   upload.UploadedBy,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "store %s image", c)
	}
	return rec, nil
}

// discard removes a stored file the entity could not be linked to.
func (m *Media) discard(ctx context.Context, rec *registry.FileRecord) {
	if _, err := m.storage.DeleteFile(context.WithoutCancel(ctx), rec.Disk, rec.Filename); err != nil {
		m.storage.LoggerFromContext(ctx).Warn("discard unlinked upload", zapFile(rec, err)...)
	}
}

// replaced deletes a previous local reference after the entity moved off it.
func (m *Media) replaced(ctx context.Context, name disk.Name, raw string) {
	ref, ok := storage.ParseReference(raw)
	if !ok {
		return
	}
	filename, ok := m.storage.LocalFilename(name, ref)
	if !ok {
		return
	}
	if _, err := m.storage.DeleteFile(ctx, name, filename); err != nil {
		m.storage.LoggerFromContext(ctx).Warn("delete replaced file", zapFile(&registry.FileRecord{Disk: name, Filename: filename}, err)...)
	}
}

func zapFile(rec *registry.FileRecord, err error) []zap.Field {
	return []zap.Field{
		zap.String("disk", rec.Disk.String()),
		zap.String("filename", rec.Filename),
		zap.Error(err),
	}
}
