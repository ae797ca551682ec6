package portal

import (
	"context"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"gorm.io/gorm"

	"github.com/Laisky/campus-portal/internal/storage"
	"github.com/Laisky/campus-portal/internal/storage/disk"
	"github.com/Laisky/campus-portal/internal/storage/registry"
	"github.com/Laisky/campus-portal/library/log"
)

// Deleter removes domain entities together with their files.
//
// Each delete runs in one transaction: the entity's registered files and
// the files its columns reference are deleted through the storage service
// first, then the entity row. Objects are not transactional: a rollback
// after some objects were removed keeps their records, which serve as not
// found until the orphan sweep removes them.
type Deleter struct {
	db       *gorm.DB
	storage  *storage.Service
	registry *registry.Registry
	logger   logSDK.Logger
}

// NewDeleter constructs a deleter. reg must share db so its writes join the transaction.
func NewDeleter(db *gorm.DB, svc *storage.Service, reg *registry.Registry, logger logSDK.Logger) (*Deleter, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	if svc == nil {
		return nil, errors.New("storage service is required")
	}
	if reg == nil {
		return nil, errors.New("file registry is required")
	}
	if logger == nil {
		logger = log.Logger.Named("portal_deleter")
	}
	return &Deleter{db: db, storage: svc, registry: reg, logger: logger}, nil
}

// inTx runs fn with a storage service whose registry writes join the transaction.
func (d *Deleter) inTx(ctx context.Context, fn func(tx *gorm.DB, svc *storage.Service) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, d.storage.WithRegistry(d.registry.WithTx(tx)))
	})
}

// DeleteOrganization deletes the organization, its activities, its members and all their files.
// It returns the number of files removed.
func (d *Deleter) DeleteOrganization(ctx context.Context, id uint64) (int, error) {
	removed := 0
	err := d.inTx(ctx, func(tx *gorm.DB, svc *storage.Service) error {
		var org Organization
		if err := takeEntity(tx, &org, id); err != nil {
			return err
		}

		var activities []Activity
		if err := tx.Where("organization_id = ?", id).Order("id").Find(&activities).Error; err != nil {
			return errors.Wrap(err, "find organization activities")
		}
		for i := range activities {
			n, err := d.deleteActivity(ctx, tx, svc, &activities[i])
			removed += n
			if err != nil {
				return err
			}
		}

		n, err := d.deleteFiles(ctx, svc, registry.ContextOrganization, id, disk.Organizations, org.Logo)
		removed += n
		if err != nil {
			return err
		}

		if err := tx.Where("organization_id = ?", id).Delete(&OrganizationMember{}).Error; err != nil {
			return errors.Wrap(err, "delete organization members")
		}
		if err := tx.Delete(&org).Error; err != nil {
			return errors.Wrap(err, "delete organization")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("deleted organization", zap.Uint64("id", id), zap.Int("files", removed))
	return removed, nil
}

// DeleteActivity deletes the activity and its files.
func (d *Deleter) DeleteActivity(ctx context.Context, id uint64) (int, error) {
	removed := 0
	err := d.inTx(ctx, func(tx *gorm.DB, svc *storage.Service) error {
		var activity Activity
		if err := takeEntity(tx, &activity, id); err != nil {
			return err
		}
		n, err := d.deleteActivity(ctx, tx, svc, &activity)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("deleted activity", zap.Uint64("id", id), zap.Int("files", removed))
	return removed, nil
}

// DeleteNews deletes the news item and its image.
func (d *Deleter) DeleteNews(ctx context.Context, id uint64) (int, error) {
	removed := 0
	err := d.inTx(ctx, func(tx *gorm.DB, svc *storage.Service) error {
		var news News
		if err := takeEntity(tx, &news, id); err != nil {
			return err
		}
		n, err := d.deleteFiles(ctx, svc, registry.ContextNews, id, disk.News, news.Image)
		removed = n
		if err != nil {
			return err
		}
		return errors.Wrap(tx.Delete(&news).Error, "delete news")
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("deleted news", zap.Uint64("id", id), zap.Int("files", removed))
	return removed, nil
}

// DeleteAnnouncement deletes the announcement and its image.
func (d *Deleter) DeleteAnnouncement(ctx context.Context, id uint64) (int, error) {
	removed := 0
	err := d.inTx(ctx, func(tx *gorm.DB, svc *storage.Service) error {
		var announcement Announcement
		if err := takeEntity(tx, &announcement, id); err != nil {
			return err
		}
		n, err := d.deleteFiles(ctx, svc, registry.ContextAnnouncement, id, disk.Announcements, announcement.Image)
		removed = n
		if err != nil {
			return err
		}
		return errors.Wrap(tx.Delete(&announcement).Error, "delete announcement")
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info("deleted announcement", zap.Uint64("id", id), zap.Int("files", removed))
	return removed, nil
}

func (d *Deleter) deleteActivity(ctx context.Context, tx *gorm.DB, svc *storage.Service, activity *Activity) (int, error) {
	removed, err := d.deleteFiles(ctx, svc, registry.ContextActivity, activity.ID, disk.Activities, activity.Images...)
	if err != nil {
		return removed, err
	}
	if err = tx.Delete(activity).Error; err != nil {
		return removed, errors.Wrapf(err, "delete activity %d", activity.ID)
	}
	return removed, nil
}

// deleteFiles removes the entity's registered files, then the files its columns reference.
func (d *Deleter) deleteFiles(ctx context.Context, svc *storage.Service, c registry.Context, id uint64, name disk.Name, refs ...string) (int, error) {
	removed, err := svc.DeleteContextFiles(ctx, c, id)
	if err != nil {
		return removed, errors.Wrapf(err, "delete %s %d files", c, id)
	}

	for _, raw := range refs {
		ref, ok := storage.ParseReference(raw)
		if !ok {
			continue
		}
		filename, ok := svc.LocalFilename(name, ref)
		if !ok {
			d.logger.Debug("keep reference outside disk",
				zap.String("disk", name.String()),
				zap.String("kind", ref.Kind.String()),
				zap.String("reference", ref.Value))
			continue
		}

		ok, err := svc.DeleteFile(ctx, name, filename)
		if err != nil {
			return removed, errors.Wrapf(err, "delete referenced file %s", filename)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}

func takeEntity(tx *gorm.DB, dest any, id uint64) error {
	if err := tx.Take(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrNotFound, "id %d", id)
		}
		return errors.Wrapf(err, "find entity %d", id)
	}
	return nil
}
